package store

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/gosnmp/gosnmp"
)

const sampleWalk = `# capture of a lab cable modem
SNMPv2-MIB::sysDescr.0 = STRING: "Motorola SB6183"
SNMPv2-MIB::sysObjectID.0 = OID: SNMPv2-SMI::enterprises.4115.1.20.1.1.2.5
SNMPv2-MIB::sysUpTime.0 = Timeticks: (123456789) 14 days, 6:56:07.89
IF-MIB::ifNumber.0 = INTEGER: 2
IF-MIB::ifOperStatus.1 = INTEGER: up(1)
IF-MIB::ifInOctets.1 = Counter32: 987654321
IF-MIB::ifHCInOctets.1 = Counter64: 9876543210
IF-MIB::ifSpeed.1 = Gauge32: 1000000000
IF-MIB::ifPhysAddress.1 = Hex-STRING: 00 1a 2b 3c 4d 5e

.1.3.6.1.2.1.4.20.1.1.192.168.100.1 = IpAddress: 192.168.100.1
.1.3.6.1.2.1.2.2.1.10.2 = Counter32: 22222
this line is noise from a broken capture
FOO-MIB::unknownThing.0 = INTEGER: 1
`

func parseSample(t *testing.T) []WalkRecord {
	t.Helper()
	records, skipped, err := ParseWalk(strings.NewReader(sampleWalk))
	if err != nil {
		t.Fatalf("ParseWalk error: %v", err)
	}
	if skipped != 2 {
		t.Fatalf("skipped = %d, want 2 (noise line + unknown module)", skipped)
	}
	if len(records) != 11 {
		t.Fatalf("parsed %d records, want 11", len(records))
	}
	return records
}

func findRecord(t *testing.T, records []WalkRecord, oid string) WalkRecord {
	t.Helper()
	want := MustParseOID(oid)
	for _, rec := range records {
		if rec.OID.Compare(want) == 0 {
			return rec
		}
	}
	t.Fatalf("no record for %s", oid)
	return WalkRecord{}
}

func TestParseWalkMixedFormats(t *testing.T) {
	records := parseSample(t)

	descr := findRecord(t, records, "1.3.6.1.2.1.1.1.0")
	if descr.Type != gosnmp.OctetString || descr.Value != "Motorola SB6183" {
		t.Fatalf("sysDescr = %v %v", descr.Type, descr.Value)
	}
	if descr.Name != "SNMPv2-MIB::sysDescr" {
		t.Fatalf("sysDescr name = %q", descr.Name)
	}

	objID := findRecord(t, records, "1.3.6.1.2.1.1.2.0")
	if objID.Type != gosnmp.ObjectIdentifier || objID.Value != "1.3.6.1.4.1.4115.1.20.1.1.2.5" {
		t.Fatalf("sysObjectID = %v, want expanded enterprises oid", objID.Value)
	}

	uptime := findRecord(t, records, "1.3.6.1.2.1.1.3.0")
	if uptime.Type != gosnmp.TimeTicks || uptime.Value != uint32(123456789) {
		t.Fatalf("sysUpTime = %v %v", uptime.Type, uptime.Value)
	}

	oper := findRecord(t, records, "1.3.6.1.2.1.2.2.1.8.1")
	if oper.Value != 1 {
		t.Fatalf("ifOperStatus enum = %v, want 1", oper.Value)
	}

	hc := findRecord(t, records, "1.3.6.1.2.1.31.1.1.1.6.1")
	if hc.Type != gosnmp.Counter64 || hc.Value != uint64(9876543210) {
		t.Fatalf("ifHCInOctets = %v %v", hc.Type, hc.Value)
	}

	mac := findRecord(t, records, "1.3.6.1.2.1.2.2.1.6.1")
	wantMAC := []byte{0x00, 0x1a, 0x2b, 0x3c, 0x4d, 0x5e}
	if !reflect.DeepEqual(mac.Value, wantMAC) {
		t.Fatalf("ifPhysAddress = %#v, want decoded bytes", mac.Value)
	}

	addr := findRecord(t, records, "1.3.6.1.2.1.4.20.1.1.192.168.100.1")
	if addr.Type != gosnmp.IPAddress || addr.Value != "192.168.100.1" {
		t.Fatalf("ipAdEntAddr = %v %v", addr.Type, addr.Value)
	}
	if addr.Name != "" {
		t.Fatalf("numeric line should have no symbolic name, got %q", addr.Name)
	}
}

func TestWriteWalkRoundTrip(t *testing.T) {
	records := parseSample(t)

	var buf bytes.Buffer
	if err := WriteWalk(&buf, records); err != nil {
		t.Fatalf("WriteWalk error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `.1.3.6.1.2.1.1.1.0 = STRING: "Motorola SB6183"`) {
		t.Fatalf("missing sysDescr line in output:\n%s", out)
	}
	if !strings.Contains(out, "Hex-STRING: 00 1A 2B 3C 4D 5E") {
		t.Fatalf("missing uppercased hex line in output:\n%s", out)
	}
	if !strings.Contains(out, "Timeticks: (123456789)") {
		t.Fatalf("missing timeticks line in output:\n%s", out)
	}

	again, skipped, err := ParseWalk(&buf)
	if err != nil {
		t.Fatalf("reparse error: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("reparse skipped %d lines", skipped)
	}
	res := CompareWalks(records, again)
	if !res.Identical() {
		t.Fatalf("round trip differs: %+v", res.Diffs)
	}
}

func TestWriteWalkOrdersOutput(t *testing.T) {
	records := []WalkRecord{
		{OID: MustParseOID("1.3.6.1.2.1.2.2.1.1.10"), Type: gosnmp.Integer, Value: 10},
		{OID: MustParseOID("1.3.6.1.2.1.1.1.0"), Type: gosnmp.OctetString, Value: "x"},
		{OID: MustParseOID("1.3.6.1.2.1.2.2.1.1.2"), Type: gosnmp.Integer, Value: 2},
	}
	var buf bytes.Buffer
	if err := WriteWalk(&buf, records); err != nil {
		t.Fatalf("WriteWalk error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("wrote %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], ".1.3.6.1.2.1.1.1.0") ||
		!strings.HasPrefix(lines[1], ".1.3.6.1.2.1.2.2.1.1.2") ||
		!strings.HasPrefix(lines[2], ".1.3.6.1.2.1.2.2.1.1.10") {
		t.Fatalf("output not in oid order:\n%s", buf.String())
	}
}

func TestParseWalkFileMissing(t *testing.T) {
	if _, _, err := ParseWalkFile("/nonexistent/capture.walk"); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
