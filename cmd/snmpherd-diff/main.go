package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/awksedgreep/snmpherd/internal/store"
)

func main() {
	left := flag.String("left", "", "left walk file")
	right := flag.String("right", "", "right walk file")
	showAll := flag.Bool("show-all", false, "show every difference (default shows the first 100)")
	flag.Parse()

	if *left == "" || *right == "" {
		fmt.Fprintln(os.Stderr, "usage: snmpherd-diff -left <fileA> -right <fileB>")
		os.Exit(2)
	}

	result, err := store.CompareWalkFiles(*left, *right)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diff failed: %v\n", err)
		os.Exit(1)
	}

	if result.Identical() {
		fmt.Printf("IDENTICAL: %d OIDs\n", result.LeftCount)
		return
	}

	fmt.Printf("DIFF: left=%d right=%d differences=%d\n",
		result.LeftCount, result.RightCount, len(result.Diffs))
	limit := len(result.Diffs)
	if !*showAll && limit > 100 {
		limit = 100
	}
	for i := 0; i < limit; i++ {
		d := result.Diffs[i]
		fmt.Printf("- %s [%s]\n", d.OID, d.Kind)
		if d.LeftValue != "" {
			fmt.Printf("  left : %s\n", d.LeftValue)
		}
		if d.RightValue != "" {
			fmt.Printf("  right: %s\n", d.RightValue)
		}
	}
	if !*showAll && len(result.Diffs) > limit {
		fmt.Printf("... %d more differences omitted (use -show-all)\n", len(result.Diffs)-limit)
	}
	os.Exit(1)
}
