package store

import (
	"fmt"
	"sort"

	"github.com/gosnmp/gosnmp"
)

// Difference is one divergence between two walk captures.
type Difference struct {
	OID        OID
	Kind       string // missing-in-right, missing-in-left, value-mismatch
	LeftType   gosnmp.Asn1BER
	LeftValue  string
	RightType  gosnmp.Asn1BER
	RightValue string
}

// DiffResult summarizes a walk comparison.
type DiffResult struct {
	LeftCount  int
	RightCount int
	Diffs      []Difference
}

// Identical reports whether the two walks matched exactly.
func (r DiffResult) Identical() bool { return len(r.Diffs) == 0 }

// CompareWalkFiles diffs two walk files by OID.
func CompareWalkFiles(leftPath, rightPath string) (DiffResult, error) {
	left, _, err := ParseWalkFile(leftPath)
	if err != nil {
		return DiffResult{}, err
	}
	right, _, err := ParseWalkFile(rightPath)
	if err != nil {
		return DiffResult{}, err
	}
	return CompareWalks(left, right), nil
}

// CompareWalks diffs two parsed walks. Values compare on their rendered
// text form, so 0x41 bytes and "A" strings of the same declared type match.
func CompareWalks(left, right []WalkRecord) DiffResult {
	leftMap := recordMap(left)
	rightMap := recordMap(right)

	keys := make([]OID, 0, len(leftMap)+len(rightMap))
	seen := make(map[string]struct{}, len(leftMap)+len(rightMap))
	for _, rec := range left {
		if _, ok := seen[rec.OID.String()]; !ok {
			seen[rec.OID.String()] = struct{}{}
			keys = append(keys, rec.OID)
		}
	}
	for _, rec := range right {
		if _, ok := seen[rec.OID.String()]; !ok {
			seen[rec.OID.String()] = struct{}{}
			keys = append(keys, rec.OID)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	var diffs []Difference
	for _, oid := range keys {
		key := oid.String()
		l, leftOK := leftMap[key]
		r, rightOK := rightMap[key]
		switch {
		case leftOK && !rightOK:
			diffs = append(diffs, Difference{
				OID:       oid,
				Kind:      "missing-in-right",
				LeftType:  l.Type,
				LeftValue: renderValue(l),
			})
		case !leftOK && rightOK:
			diffs = append(diffs, Difference{
				OID:        oid,
				Kind:       "missing-in-left",
				RightType:  r.Type,
				RightValue: renderValue(r),
			})
		case l.Type != r.Type || renderValue(l) != renderValue(r):
			diffs = append(diffs, Difference{
				OID:        oid,
				Kind:       "value-mismatch",
				LeftType:   l.Type,
				LeftValue:  renderValue(l),
				RightType:  r.Type,
				RightValue: renderValue(r),
			})
		}
	}
	return DiffResult{LeftCount: len(left), RightCount: len(right), Diffs: diffs}
}

func recordMap(records []WalkRecord) map[string]WalkRecord {
	m := make(map[string]WalkRecord, len(records))
	for _, rec := range records {
		m[rec.OID.String()] = rec
	}
	return m
}

func renderValue(rec WalkRecord) string {
	s, err := formatValue(rec.Type, rec.Value)
	if err != nil {
		return fmt.Sprint(rec.Value)
	}
	return s
}
