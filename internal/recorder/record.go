// Package recorder captures a live agent's OID tree over SNMP into walk
// records, so device profiles can be built from real hardware instead of
// hand-written files.
package recorder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/awksedgreep/snmpherd/internal/store"
)

// DefaultRoots covers the subtrees the simulator's profiles care about:
// system, interface tables, the DOCSIS RF and cable device MIBs, and the
// private enterprise arc.
var DefaultRoots = []string{
	"1.3.6.1.2.1.1",
	"1.3.6.1.2.1.2.2",
	"1.3.6.1.2.1.31.1.1",
	"1.3.6.1.2.1.10.127",
	"1.3.6.1.2.1.69",
	"1.3.6.1.4.1",
}

// Options configures one capture.
type Options struct {
	Target    string        // agent host, default 127.0.0.1
	Port      uint16        // default 161
	Community string        // required
	Version   string        // "1" or "2c", default "2c"
	Timeout   time.Duration // per request, default 2s
	Retries   int
	MaxOIDs   int // capture budget across all roots, 0 is unlimited
	RateLimit int // walked OIDs per second, 0 is unthrottled

	Roots   []string // default DefaultRoots
	Exclude []string // subtrees dropped from the capture
}

// errLimit stops a bulk walk once the OID budget is spent.
var errLimit = errors.New("recorder: oid budget reached")

// Record walks the target and returns the capture in OID order plus the
// number of varbinds skipped as unconvertible. v2c walks use GETBULK; v1
// falls back to a GETNEXT loop. A failing root leaves the other roots'
// results intact; its error surfaces only when nothing was captured.
func Record(opts Options) ([]store.WalkRecord, int, error) {
	client, err := newClient(opts)
	if err != nil {
		return nil, 0, err
	}
	if err := client.Connect(); err != nil {
		return nil, 0, fmt.Errorf("connect %s:%d: %w", client.Target, client.Port, err)
	}
	defer client.Conn.Close()

	roots := opts.Roots
	if len(roots) == 0 {
		roots = append([]string(nil), DefaultRoots...)
	}

	s := &session{
		client:  client,
		exclude: opts.Exclude,
		maxOIDs: opts.MaxOIDs,
		entries: make(map[string]store.WalkRecord),
	}
	if opts.RateLimit > 0 {
		interval := time.Second / time.Duration(opts.RateLimit)
		if interval <= 0 {
			interval = time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		s.throttle = ticker.C
	}

	var rootErrs []error
	for _, root := range roots {
		if s.full() {
			break
		}
		root = strings.TrimPrefix(root, ".")
		if client.Version == gosnmp.Version1 {
			err = s.walkNext(root)
		} else {
			err = s.walkBulk(root)
		}
		if err != nil {
			rootErrs = append(rootErrs, fmt.Errorf("root %s: %w", root, err))
		}
	}
	if len(s.entries) == 0 && len(rootErrs) > 0 {
		return nil, s.skipped, rootErrs[0]
	}

	out := make([]store.WalkRecord, 0, len(s.entries))
	for _, rec := range s.entries {
		out = append(out, rec)
	}
	store.SortRecords(out)
	return out, s.skipped, nil
}

type session struct {
	client   *gosnmp.GoSNMP
	exclude  []string
	maxOIDs  int
	throttle <-chan time.Time
	entries  map[string]store.WalkRecord
	skipped  int
}

func (s *session) full() bool {
	return s.maxOIDs > 0 && len(s.entries) >= s.maxOIDs
}

func (s *session) wait() {
	if s.throttle != nil {
		<-s.throttle
	}
}

// keep converts one varbind, dropping excluded subtrees, duplicates and
// value types the walk format cannot carry.
func (s *session) keep(vb gosnmp.SnmpPDU) {
	oid := strings.TrimPrefix(vb.Name, ".")
	if excluded(oid, s.exclude) {
		return
	}
	if _, ok := s.entries[oid]; ok {
		return
	}
	rec, err := store.RecordFromPDU(oid, vb.Type, vb.Value)
	if err != nil {
		s.skipped++
		return
	}
	s.entries[oid] = rec
}

func (s *session) walkBulk(root string) error {
	err := s.client.BulkWalk(root, func(vb gosnmp.SnmpPDU) error {
		if s.full() {
			return errLimit
		}
		s.wait()
		s.keep(vb)
		return nil
	})
	if errors.Is(err, errLimit) {
		return nil
	}
	return err
}

// walkNext is the v1 path: one GETNEXT per OID until the agent answers
// noSuchName or the walk leaves the root subtree.
func (s *session) walkNext(root string) error {
	current := root
	var last store.OID
	for {
		if s.full() {
			return nil
		}
		s.wait()
		pkt, err := s.client.GetNext([]string{current})
		if err != nil {
			return fmt.Errorf("getnext %s: %w", current, err)
		}
		if pkt == nil || len(pkt.Variables) == 0 {
			return nil
		}
		if pkt.Error == gosnmp.NoSuchName {
			return nil
		}
		if pkt.Error != gosnmp.NoError {
			return fmt.Errorf("getnext %s: error status %v", current, pkt.Error)
		}
		vb := pkt.Variables[0]
		if vb.Type == gosnmp.EndOfMibView || vb.Type == gosnmp.NoSuchObject || vb.Type == gosnmp.NoSuchInstance {
			return nil
		}
		oid := strings.TrimPrefix(vb.Name, ".")
		if !inSubtree(oid, root) {
			return nil
		}
		next, err := store.ParseOID(oid)
		if err != nil {
			return fmt.Errorf("getnext %s: bad oid %q", current, vb.Name)
		}
		if last != nil && next.Compare(last) <= 0 {
			return fmt.Errorf("getnext %s: oid %s not increasing", current, oid)
		}
		last = next
		current = oid
		s.keep(vb)
	}
}

func newClient(opts Options) (*gosnmp.GoSNMP, error) {
	if opts.Community == "" {
		return nil, errors.New("recorder: community is required")
	}
	version := gosnmp.Version2c
	switch strings.TrimSpace(opts.Version) {
	case "", "2c", "2":
	case "1":
		version = gosnmp.Version1
	default:
		return nil, fmt.Errorf("recorder: unknown snmp version %q", opts.Version)
	}

	target := opts.Target
	if target == "" {
		target = "127.0.0.1"
	}
	port := opts.Port
	if port == 0 {
		port = 161
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}

	return &gosnmp.GoSNMP{
		Target:         target,
		Port:           port,
		Version:        version,
		Community:      opts.Community,
		Timeout:        timeout,
		Retries:        retries,
		MaxRepetitions: 25,
	}, nil
}

func inSubtree(oid, root string) bool {
	return oid == root || strings.HasPrefix(oid, root+".")
}

func excluded(oid string, excludes []string) bool {
	for _, ex := range excludes {
		ex = strings.TrimPrefix(strings.TrimSpace(ex), ".")
		if ex == "" {
			continue
		}
		if oid == ex || strings.HasPrefix(oid, ex+".") {
			return true
		}
	}
	return false
}
