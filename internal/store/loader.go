package store

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// walkExtensions are the profile source formats the loader accepts.
// Anything else is ErrUnsupportedSource: there is no MIB compiler here,
// captured walks are the only input.
var walkExtensions = map[string]bool{
	"":          true,
	".walk":     true,
	".txt":      true,
	".snmpwalk": true,
}

// LoadWalkProfile parses a walk file, runs the behavior analyzer over every
// record, and installs the result as the current profile for deviceType.
// All-or-nothing: on any error the previously installed profile stays.
func (r *Registry) LoadWalkProfile(deviceType, path string) (*Profile, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !walkExtensions[ext] {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedSource)
	}

	records, skipped, err := ParseWalkFile(path)
	if err != nil {
		return nil, err
	}
	p, err := BuildProfile(deviceType, path, records)
	if err != nil {
		return nil, err
	}
	p.Skipped = skipped

	// The registry takes over the build reference.
	r.Install(p)
	log.Printf("store: profile %s loaded from %s (%d oids, %d lines skipped)",
		deviceType, path, p.Len(), skipped)
	return p, nil
}

// BuildProfile assembles a profile from parsed records. The behavior
// analyzer assigns each entry its default simulation behavior.
func BuildProfile(deviceType, source string, records []WalkRecord) (*Profile, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%s: %w", source, ErrEmptyProfile)
	}
	tree := NewTree()
	for _, rec := range records {
		tree.Insert(rec.OID, &Entry{
			Type:     rec.Type,
			Value:    rec.Value,
			Behavior: AnalyzeBehavior(rec),
		})
	}
	tree.Sort()
	return NewProfile(deviceType, source, tree), nil
}

// EnsureDefaults installs a minimal built-in profile for deviceType when
// none is loaded, so lazily created devices always have something to serve.
// A later LoadWalkProfile replaces it.
func (r *Registry) EnsureDefaults(deviceType string) {
	if r.Has(deviceType) {
		return
	}
	p, err := BuildProfile(deviceType, "builtin", defaultRecords(deviceType))
	if err != nil {
		return
	}
	r.Install(p)
	log.Printf("store: installed builtin profile for %s (%d oids)", deviceType, p.Len())
}

// defaultRecords is the built-in baseline: system group plus a two-port
// interface table, enough for pollers to walk. Cable-family types also
// get DOCSIS signal-quality rows so RF metrics have somewhere to live.
func defaultRecords(deviceType string) []WalkRecord {
	rec := func(oid string, ber gosnmp.Asn1BER, value interface{}) WalkRecord {
		return WalkRecord{OID: MustParseOID(oid), Type: ber, Value: value}
	}
	out := []WalkRecord{
		rec("1.3.6.1.2.1.1.1.0", gosnmp.OctetString, fmt.Sprintf("Simulated %s", deviceType)),
		rec("1.3.6.1.2.1.1.2.0", gosnmp.ObjectIdentifier, "1.3.6.1.4.1.8072.3.2.10"),
		rec("1.3.6.1.2.1.1.3.0", gosnmp.TimeTicks, uint32(0)),
		rec("1.3.6.1.2.1.1.4.0", gosnmp.OctetString, "ops@example.net"),
		rec("1.3.6.1.2.1.1.5.0", gosnmp.OctetString, deviceType),
		rec("1.3.6.1.2.1.1.6.0", gosnmp.OctetString, "lab"),
		rec("1.3.6.1.2.1.1.7.0", gosnmp.Integer, 72),
		rec("1.3.6.1.2.1.2.1.0", gosnmp.Integer, 2),
	}
	for i := 1; i <= 2; i++ {
		out = append(out,
			rec(fmt.Sprintf("1.3.6.1.2.1.2.2.1.1.%d", i), gosnmp.Integer, i),
			rec(fmt.Sprintf("1.3.6.1.2.1.2.2.1.2.%d", i), gosnmp.OctetString, fmt.Sprintf("eth%d", i-1)),
			rec(fmt.Sprintf("1.3.6.1.2.1.2.2.1.3.%d", i), gosnmp.Integer, 6),
			rec(fmt.Sprintf("1.3.6.1.2.1.2.2.1.5.%d", i), gosnmp.Gauge32, uint32(1_000_000_000)),
			rec(fmt.Sprintf("1.3.6.1.2.1.2.2.1.7.%d", i), gosnmp.Integer, 1),
			rec(fmt.Sprintf("1.3.6.1.2.1.2.2.1.8.%d", i), gosnmp.Integer, 1),
			rec(fmt.Sprintf("1.3.6.1.2.1.2.2.1.10.%d", i), gosnmp.Counter32, uint32(1_000_000*i)),
			rec(fmt.Sprintf("1.3.6.1.2.1.2.2.1.16.%d", i), gosnmp.Counter32, uint32(800_000*i)),
		)
	}
	switch deviceType {
	case "cable_modem", "mta":
		out = append(out,
			rec("1.3.6.1.2.1.10.127.1.1.1.1.6.3", gosnmp.Integer, 50),         // docsIfDownChannelPower, TenthdBmV
			rec("1.3.6.1.2.1.10.127.1.1.4.1.5.3", gosnmp.Integer, 350),        // docsIfSigQSignalNoise, TenthdB
			rec("1.3.6.1.2.1.10.127.1.1.4.1.6.3", gosnmp.Gauge32, uint32(12)), // docsIfSigQMicroreflections
			rec("1.3.6.1.2.1.10.127.1.2.2.1.1.2", gosnmp.Integer, 12),         // docsIfCmStatusValue: operational
		)
	case "cmts":
		out = append(out,
			rec("1.3.6.1.2.1.10.127.1.1.1.1.6.3", gosnmp.Integer, 50),
			rec("1.3.6.1.2.1.10.127.1.1.4.1.5.3", gosnmp.Integer, 350),
			rec("1.3.6.1.2.1.10.127.1.1.4.1.6.3", gosnmp.Gauge32, uint32(12)),
		)
	}
	return out
}
