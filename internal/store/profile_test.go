package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gosnmp/gosnmp"
)

func TestAnalyzerClassification(t *testing.T) {
	rec := func(oid, name string, ber gosnmp.Asn1BER, value interface{}) WalkRecord {
		return WalkRecord{OID: MustParseOID(oid), Name: name, Type: ber, Value: value}
	}

	cases := []struct {
		rec  WalkRecord
		want Kind
	}{
		{rec("1.3.6.1.2.1.1.1.0", "SNMPv2-MIB::sysDescr", gosnmp.OctetString, "x"), StaticValue},
		{rec("1.3.6.1.2.1.1.3.0", "SNMPv2-MIB::sysUpTime", gosnmp.TimeTicks, uint32(0)), UptimeCounter},
		{rec("1.3.6.1.2.1.2.2.1.10.1", "IF-MIB::ifInOctets", gosnmp.Counter32, uint32(1)), TrafficCounter},
		{rec("1.3.6.1.2.1.2.2.1.14.1", "IF-MIB::ifInErrors", gosnmp.Counter32, uint32(0)), ErrorCounter},
		{rec("1.3.6.1.2.1.2.2.1.13.1", "IF-MIB::ifInDiscards", gosnmp.Counter32, uint32(0)), ErrorCounter},
		{rec("1.3.6.1.2.1.2.2.1.8.1", "IF-MIB::ifOperStatus", gosnmp.Integer, 1), StatusEnum},
		{rec("1.3.6.1.2.1.2.2.1.7.1", "IF-MIB::ifAdminStatus", gosnmp.Integer, 1), StaticValue},
		{rec("1.3.6.1.2.1.10.127.1.1.4.1.5.3", "DOCS-IF-MIB::docsIfSigQSignalNoise", gosnmp.Integer, 350), SNRGauge},
		{rec("1.3.6.1.2.1.10.127.1.1.1.1.6.3", "DOCS-IF-MIB::docsIfDownChannelPower", gosnmp.Integer, 5), PowerGauge},
		{rec("1.3.6.1.2.1.10.127.1.1.4.1.6.3", "DOCS-IF-MIB::docsIfSigQMicroreflections", gosnmp.Gauge32, uint32(10)), SignalGauge},
		{rec("1.3.6.1.2.1.25.3.3.1.2.1", "HOST-RESOURCES-MIB::hrProcessorLoad", gosnmp.Integer, 12), CPUGauge},
		{rec("1.3.6.1.2.1.6.10.0", "TCP-MIB::tcpInSegs", gosnmp.Counter32, uint32(5)), TrafficCounter},
		{rec("1.3.6.1.2.1.1.5.0", "SNMPv2-MIB::sysName", gosnmp.OctetString, "cm"), StaticValue},
	}
	for _, c := range cases {
		got := AnalyzeBehavior(c.rec)
		if got.Kind != c.want {
			t.Fatalf("behavior for %s = %s, want %s", c.rec.Name, got.Kind, c.want)
		}
	}
}

func TestAnalyzerResolvesNumericLines(t *testing.T) {
	// Numeric-only walk lines still classify through the reverse MIB lookup.
	rec := WalkRecord{OID: MustParseOID("1.3.6.1.2.1.2.2.1.10.3"), Type: gosnmp.Counter32, Value: uint32(1)}
	if got := AnalyzeBehavior(rec); got.Kind != TrafficCounter {
		t.Fatalf("numeric ifInOctets classified as %s", got.Kind)
	}
}

func TestAnalyzerPacketCounterpart(t *testing.T) {
	rec := WalkRecord{
		OID:  MustParseOID("1.3.6.1.2.1.2.2.1.11.3"),
		Name: "IF-MIB::ifInUcastPkts",
		Type: gosnmp.Counter32, Value: uint32(1),
	}
	b := AnalyzeBehavior(rec)
	if b.Kind != PacketCounter {
		t.Fatalf("kind = %s", b.Kind)
	}
	if b.CounterpartOID != "1.3.6.1.2.1.2.2.1.10.3" {
		t.Fatalf("counterpart = %q, want octets column on same row", b.CounterpartOID)
	}
}

func TestAnalyzerCounter64Wrap(t *testing.T) {
	rec := WalkRecord{
		OID:  MustParseOID("1.3.6.1.2.1.31.1.1.1.6.1"),
		Name: "IF-MIB::ifHCInOctets",
		Type: gosnmp.Counter64, Value: uint64(1),
	}
	b := AnalyzeBehavior(rec)
	if b.Kind != TrafficCounter || b.WrapBits != 64 {
		t.Fatalf("ifHCInOctets behavior = %+v, want 64-bit traffic counter", b)
	}
}

func TestProfileRefcount(t *testing.T) {
	p, err := BuildProfile("cable_modem", "test", []WalkRecord{
		{OID: MustParseOID("1.3.6.1.2.1.1.1.0"), Type: gosnmp.OctetString, Value: "x"},
	})
	if err != nil {
		t.Fatalf("BuildProfile error: %v", err)
	}
	if p.Refs() != 1 {
		t.Fatalf("initial refs = %d", p.Refs())
	}
	p.Acquire()
	if p.Refs() != 2 {
		t.Fatalf("refs after Acquire = %d", p.Refs())
	}
	p.Release()
	p.Release()
	if p.Refs() != 0 {
		t.Fatalf("refs after draining = %d", p.Refs())
	}
}

func TestRegistryInstallSwapsAtomically(t *testing.T) {
	reg := NewRegistry()
	p1, _ := BuildProfile("cmts", "one", defaultRecords("cmts"))
	reg.Install(p1)

	held, ok := reg.Acquire("cmts")
	if !ok || held != p1 {
		t.Fatalf("Acquire returned %v", held)
	}

	p2, _ := BuildProfile("cmts", "two", defaultRecords("cmts"))
	reg.Install(p2)

	// The registry dropped its reference to p1; only our hold remains.
	if p1.Refs() != 1 {
		t.Fatalf("old profile refs = %d after replacement, want 1", p1.Refs())
	}
	held.Release()
	if p1.Refs() != 0 {
		t.Fatalf("old profile refs = %d after drain", p1.Refs())
	}

	now, ok := reg.Acquire("cmts")
	if !ok || now != p2 {
		t.Fatalf("Acquire after swap returned old profile")
	}
	now.Release()
}

func TestLoadWalkProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "modem.walk")
	if err := os.WriteFile(path, []byte(sampleWalk), 0o644); err != nil {
		t.Fatalf("write walk: %v", err)
	}

	reg := NewRegistry()
	p, err := reg.LoadWalkProfile("cable_modem", path)
	if err != nil {
		t.Fatalf("LoadWalkProfile error: %v", err)
	}
	if p.Len() != 11 || p.Skipped != 2 {
		t.Fatalf("profile has %d oids, %d skipped", p.Len(), p.Skipped)
	}

	e, ok := reg.GetOIDValue("cable_modem", MustParseOID("1.3.6.1.2.1.1.1.0"))
	if !ok || e.Value != "Motorola SB6183" {
		t.Fatalf("sysDescr lookup = %v %v", ok, e)
	}
	n, ok := reg.GetNextOID("cable_modem", MustParseOID("1.3.6.1.2.1.1.1.0"))
	if !ok || n.Key != "1.3.6.1.2.1.1.2.0" {
		t.Fatalf("GetNextOID = %q", n.Key)
	}
	if nodes := reg.BulkWalk("cable_modem", MustParseOID("1.3.6.1.2.1.1"), 3); len(nodes) != 3 {
		t.Fatalf("BulkWalk = %d nodes", len(nodes))
	}
}

func TestLoadWalkProfileErrors(t *testing.T) {
	reg := NewRegistry()

	if _, err := reg.LoadWalkProfile("mta", "profile.json"); !errors.Is(err, ErrUnsupportedSource) {
		t.Fatalf("expected ErrUnsupportedSource, got %v", err)
	}
	if _, err := reg.LoadWalkProfile("mta", filepath.Join(t.TempDir(), "missing.walk")); err == nil {
		t.Fatalf("expected error for missing file")
	}

	empty := filepath.Join(t.TempDir(), "empty.walk")
	if err := os.WriteFile(empty, []byte("# nothing here\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := reg.LoadWalkProfile("mta", empty); !errors.Is(err, ErrEmptyProfile) {
		t.Fatalf("expected ErrEmptyProfile, got %v", err)
	}
	if reg.Has("mta") {
		t.Fatalf("failed load must not install a profile")
	}
}

func TestFailedReloadKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.walk")
	if err := os.WriteFile(good, []byte(sampleWalk), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	bad := filepath.Join(dir, "bad.walk")
	if err := os.WriteFile(bad, []byte("garbage\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg := NewRegistry()
	if _, err := reg.LoadWalkProfile("switch", good); err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := reg.LoadWalkProfile("switch", bad); err == nil {
		t.Fatalf("expected reload failure")
	}
	e, ok := reg.GetOIDValue("switch", MustParseOID("1.3.6.1.2.1.1.1.0"))
	if !ok || e.Value != "Motorola SB6183" {
		t.Fatalf("previous profile lost after failed reload")
	}
}

func TestEnsureDefaults(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureDefaults("router")
	if !reg.Has("router") {
		t.Fatalf("no builtin profile installed")
	}
	e, ok := reg.GetOIDValue("router", MustParseOID("1.3.6.1.2.1.1.1.0"))
	if !ok || e.Value != "Simulated router" {
		t.Fatalf("builtin sysDescr = %v", e)
	}

	// A later explicit load replaces the builtin.
	dir := t.TempDir()
	path := filepath.Join(dir, "router.walk")
	if err := os.WriteFile(path, []byte(sampleWalk), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := reg.LoadWalkProfile("router", path); err != nil {
		t.Fatalf("load: %v", err)
	}
	e, _ = reg.GetOIDValue("router", MustParseOID("1.3.6.1.2.1.1.1.0"))
	if e.Value != "Motorola SB6183" {
		t.Fatalf("walk profile did not replace builtin")
	}

	reg.EnsureDefaults("router")
	e, _ = reg.GetOIDValue("router", MustParseOID("1.3.6.1.2.1.1.1.0"))
	if e.Value != "Motorola SB6183" {
		t.Fatalf("EnsureDefaults clobbered a loaded profile")
	}
}

func TestDefaultsCarryDocsisSignalRows(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureDefaults("cable_modem")
	reg.EnsureDefaults("server")

	e, ok := reg.GetOIDValue("cable_modem", MustParseOID("1.3.6.1.2.1.10.127.1.1.4.1.5.3"))
	if !ok {
		t.Fatal("cable_modem builtin has no docsIfSigQSignalNoise row")
	}
	if e.Behavior.Kind != SNRGauge {
		t.Errorf("SNR row behavior = %v, want SNRGauge", e.Behavior.Kind)
	}
	if _, ok := reg.GetOIDValue("cable_modem", MustParseOID("1.3.6.1.2.1.10.127.1.2.2.1.1.2")); !ok {
		t.Error("cable_modem builtin has no docsIfCmStatusValue row")
	}

	// Non-cable types stay plain IF-MIB.
	if _, ok := reg.GetOIDValue("server", MustParseOID("1.3.6.1.2.1.10.127.1.1.4.1.5.3")); ok {
		t.Error("server builtin grew DOCSIS rows")
	}
}

func TestRegistryList(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureDefaults("switch")
	reg.EnsureDefaults("cable_modem")
	got := reg.List()
	if len(got) != 2 || got[0] != "cable_modem" || got[1] != "switch" {
		t.Fatalf("List = %v", got)
	}
}
