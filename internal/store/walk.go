package store

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// WalkRecord is one parsed line of snmpwalk output.
type WalkRecord struct {
	OID   OID
	Name  string // "MODULE::object" when the line was MIB-qualified
	Type  gosnmp.Asn1BER
	Value interface{}
}

// SortRecords orders records by OID.
func SortRecords(records []WalkRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].OID.Less(records[j].OID)
	})
}

// ParseWalkFile reads a walk capture from disk. Returns the parsed records
// and the number of lines that were skipped as unparseable.
func ParseWalkFile(path string) ([]WalkRecord, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("read walk file %s: %w", path, err)
	}
	defer f.Close()
	records, skipped, err := ParseWalk(f)
	if err != nil {
		return nil, skipped, fmt.Errorf("read walk file %s: %w", path, err)
	}
	return records, skipped, nil
}

// ParseWalk parses snmpwalk text. MIB-qualified and numeric lines may be
// intermixed; comments ("#") and blank lines are skipped; lines that do not
// parse are dropped and counted, never fatal. The parser is pure: no
// logging, no globals.
func ParseWalk(r io.Reader) ([]WalkRecord, int, error) {
	var records []WalkRecord
	skipped := 0

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, ok := parseWalkLine(line)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, fmt.Errorf("read walk input: %w", err)
	}
	return records, skipped, nil
}

// parseWalkLine handles both line formats:
//
//	IF-MIB::ifInOctets.3 = Counter32: 987654321
//	.1.3.6.1.2.1.2.2.1.10.3 = Counter32: 987654321
func parseWalkLine(line string) (WalkRecord, bool) {
	parts := strings.SplitN(line, " = ", 2)
	if len(parts) != 2 {
		return WalkRecord{}, false
	}
	lhs := strings.TrimSpace(parts[0])
	rhs := strings.TrimSpace(parts[1])

	var (
		oid  OID
		name string
		err  error
	)
	if strings.Contains(lhs, "::") {
		oid, name, err = resolveNamedOID(lhs)
	} else {
		oid, err = ParseOID(lhs)
	}
	if err != nil || len(oid) == 0 {
		return WalkRecord{}, false
	}

	typ, value := parseTypedValue(rhs)
	return WalkRecord{OID: oid, Name: name, Type: typ, Value: value}, true
}

// resolveNamedOID converts "MODULE::object[.suffix]" to a numeric OID using
// the built-in dictionary. A raw numeric suffix after a known object name is
// retained verbatim (SNMPv2-SMI::enterprises.4491.2.4 style).
func resolveNamedOID(lhs string) (OID, string, error) {
	mp := strings.SplitN(lhs, "::", 2)
	if len(mp) != 2 {
		return nil, "", fmt.Errorf("invalid named oid %q", lhs)
	}
	module := strings.TrimSpace(mp[0])
	object := strings.TrimSpace(mp[1])

	objName := object
	suffix := ""
	if i := strings.IndexByte(object, '.'); i >= 0 {
		objName = object[:i]
		suffix = object[i+1:]
	}

	base, ok := LookupMIB(module, objName)
	if !ok {
		return nil, "", fmt.Errorf("unknown object %s::%s", module, objName)
	}
	oid := base.Clone()
	if suffix != "" {
		sfx, err := ParseOID(suffix)
		if err != nil {
			return nil, "", err
		}
		oid = append(oid, sfx...)
	}
	return oid, module + "::" + objName, nil
}

// parseTypedValue extracts the SNMP type and value from the right-hand side
// of a walk line. Examples:
//
//	STRING: "Motorola SB6183"
//	INTEGER: up(1)
//	Timeticks: (123456789) 14 days, 6:56:07.89
//	Counter32: 987654321
//	Hex-STRING: 00 1A 2B 3C 4D 5E
//	OID: SNMPv2-SMI::enterprises.4115.1.20
//	IpAddress: 10.1.32.14
//
// Unknown type tokens are retained as opaque octet strings.
func parseTypedValue(rhs string) (gosnmp.Asn1BER, interface{}) {
	switch {
	case hasToken(rhs, "STRING"), hasToken(rhs, "OCTET STRING"):
		return gosnmp.OctetString, extractQuotedString(rhs)
	case hasToken(rhs, "INTEGER"):
		return gosnmp.Integer, extractEnumInt(rhs)
	case hasToken(rhs, "Timeticks"):
		return gosnmp.TimeTicks, extractTimeticks(rhs)
	case hasToken(rhs, "Counter32"):
		return gosnmp.Counter32, extractUint32(rhs)
	case hasToken(rhs, "Counter64"):
		return gosnmp.Counter64, extractUint64(rhs)
	case hasToken(rhs, "Gauge32"), hasToken(rhs, "Gauge"):
		return gosnmp.Gauge32, extractUint32(rhs)
	case hasToken(rhs, "Hex-STRING"), hasToken(rhs, "HEX-STRING"):
		return gosnmp.OctetString, extractHexBytes(rhs)
	case hasToken(rhs, "OID"):
		return gosnmp.ObjectIdentifier, extractOIDValue(rhs)
	case hasToken(rhs, "IpAddress"):
		return gosnmp.IPAddress, afterToken(rhs)
	default:
		return gosnmp.OctetString, rhs
	}
}

// hasToken matches a leading type token followed by ':' , space, or end of
// line, so "Counter32:" does not shadow "Counter3".
func hasToken(rhs, token string) bool {
	if !strings.HasPrefix(rhs, token) {
		return false
	}
	if len(rhs) == len(token) {
		return true
	}
	c := rhs[len(token)]
	return c == ':' || c == ' '
}

// afterToken returns the value text after the leading "TOKEN:" part.
func afterToken(rhs string) string {
	if i := strings.IndexAny(rhs, ": "); i >= 0 {
		return strings.TrimSpace(strings.TrimPrefix(rhs[i:], ":"))
	}
	return ""
}

func extractQuotedString(s string) string {
	start := strings.IndexByte(s, '"')
	end := strings.LastIndexByte(s, '"')
	if start >= 0 && end > start {
		return s[start+1 : end]
	}
	return afterToken(s)
}

// extractEnumInt handles both plain integers and the enum form "up(1)".
func extractEnumInt(s string) int {
	v := afterToken(s)
	if open := strings.IndexByte(v, '('); open >= 0 {
		if close := strings.IndexByte(v[open:], ')'); close > 0 {
			v = v[open+1 : open+close]
		}
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0
	}
	return int(n)
}

// extractTimeticks takes the tick count out of "(N) humanreadable".
func extractTimeticks(s string) uint32 {
	start := strings.IndexByte(s, '(')
	end := strings.IndexByte(s, ')')
	if start >= 0 && end > start {
		n, err := strconv.ParseUint(s[start+1:end], 10, 32)
		if err == nil {
			return uint32(n)
		}
	}
	// Some walkers emit a bare number.
	if fields := strings.Fields(afterToken(s)); len(fields) > 0 {
		if n, err := strconv.ParseUint(fields[0], 10, 32); err == nil {
			return uint32(n)
		}
	}
	return 0
}

func extractUint32(s string) uint32 {
	fields := strings.Fields(afterToken(s))
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

func extractUint64(s string) uint64 {
	fields := strings.Fields(afterToken(s))
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// extractOIDValue normalizes an OID-typed value to the undotted canonical
// string. "SNMPv2-SMI::enterprises." prefixes expand to "1.3.6.1.4.1.".
func extractOIDValue(s string) string {
	v := afterToken(s)
	if strings.HasPrefix(v, "SNMPv2-SMI::enterprises.") {
		v = "1.3.6.1.4.1." + strings.TrimPrefix(v, "SNMPv2-SMI::enterprises.")
	}
	oid, err := ParseOID(v)
	if err != nil {
		return strings.TrimPrefix(v, ".")
	}
	return oid.String()
}

// extractHexBytes decodes "Hex-STRING: 00 1A 2B" into raw bytes. The hex
// text is whitespace-stripped and uppercased first; undecodable input is
// kept as the normalized text.
func extractHexBytes(s string) interface{} {
	v := afterToken(s)
	var b strings.Builder
	for _, r := range v {
		switch r {
		case ' ', '\t':
		default:
			b.WriteRune(r)
		}
	}
	norm := strings.ToUpper(b.String())
	raw, err := hex.DecodeString(norm)
	if err != nil {
		return norm
	}
	return raw
}
