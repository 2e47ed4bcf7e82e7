package store

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/gosnmp/gosnmp"
)

// RecordFromPDU converts a decoded varbind into a WalkRecord, normalizing
// the value representation so that writing and re-parsing yields the same
// record.
func RecordFromPDU(oid string, ber gosnmp.Asn1BER, value interface{}) (WalkRecord, error) {
	parsed, err := ParseOID(oid)
	if err != nil {
		return WalkRecord{}, fmt.Errorf("bad oid %q: %w", oid, err)
	}
	rec := WalkRecord{OID: parsed, Type: ber}
	switch ber {
	case gosnmp.Integer:
		n, err := asInt64(value)
		if err != nil {
			return WalkRecord{}, fmt.Errorf("oid %s: %w", oid, err)
		}
		rec.Value = int(n)
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		n, err := asUint64(value)
		if err != nil {
			return WalkRecord{}, fmt.Errorf("oid %s: %w", oid, err)
		}
		rec.Value = uint32(n)
	case gosnmp.Counter64:
		n, err := asUint64(value)
		if err != nil {
			return WalkRecord{}, fmt.Errorf("oid %s: %w", oid, err)
		}
		rec.Value = n
	case gosnmp.ObjectIdentifier:
		s, ok := value.(string)
		if !ok {
			return WalkRecord{}, fmt.Errorf("oid %s: object identifier value is %T", oid, value)
		}
		rec.Value = strings.TrimPrefix(s, ".")
	case gosnmp.IPAddress:
		s, ok := value.(string)
		if !ok {
			return WalkRecord{}, fmt.Errorf("oid %s: ip address value is %T", oid, value)
		}
		rec.Value = s
	case gosnmp.OctetString:
		switch v := value.(type) {
		case string:
			rec.Value = v
		case []byte:
			if isPrintable(v) {
				rec.Value = string(v)
			} else {
				rec.Value = append([]byte(nil), v...)
			}
		default:
			return WalkRecord{}, fmt.Errorf("oid %s: octet string value is %T", oid, value)
		}
	default:
		return WalkRecord{}, fmt.Errorf("oid %s: unsupported type %v", oid, ber)
	}
	return rec, nil
}

// FormatRecord renders one numeric walk line for rec, in the same shape the
// parser accepts.
func FormatRecord(rec WalkRecord) (string, error) {
	val, err := formatValue(rec.Type, rec.Value)
	if err != nil {
		return "", fmt.Errorf("oid %s: %w", rec.OID, err)
	}
	return fmt.Sprintf(".%s = %s", rec.OID, val), nil
}

func formatValue(ber gosnmp.Asn1BER, value interface{}) (string, error) {
	switch ber {
	case gosnmp.Integer:
		n, err := asInt64(value)
		if err != nil {
			return "", err
		}
		return "INTEGER: " + strconv.FormatInt(n, 10), nil
	case gosnmp.Counter32:
		n, err := asUint64(value)
		if err != nil {
			return "", err
		}
		return "Counter32: " + strconv.FormatUint(n, 10), nil
	case gosnmp.Counter64:
		n, err := asUint64(value)
		if err != nil {
			return "", err
		}
		return "Counter64: " + strconv.FormatUint(n, 10), nil
	case gosnmp.Gauge32, gosnmp.Uinteger32:
		n, err := asUint64(value)
		if err != nil {
			return "", err
		}
		return "Gauge32: " + strconv.FormatUint(n, 10), nil
	case gosnmp.TimeTicks:
		n, err := asUint64(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Timeticks: (%d) %s", n, ticksDuration(n)), nil
	case gosnmp.ObjectIdentifier:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("object identifier value is %T", value)
		}
		return "OID: ." + strings.TrimPrefix(s, "."), nil
	case gosnmp.IPAddress:
		s, ok := value.(string)
		if !ok {
			return "", fmt.Errorf("ip address value is %T", value)
		}
		return "IpAddress: " + s, nil
	case gosnmp.OctetString:
		switch v := value.(type) {
		case []byte:
			return "Hex-STRING: " + hexString(v), nil
		case string:
			return "STRING: " + strconv.Quote(v), nil
		default:
			return "", fmt.Errorf("octet string value is %T", value)
		}
	default:
		return "", fmt.Errorf("unsupported type %v", ber)
	}
}

// ticksDuration renders centiseconds the way snmpwalk does. Only the (N)
// part is authoritative; this suffix is for human readers.
func ticksDuration(ticks uint64) string {
	centis := ticks % 100
	secs := ticks / 100
	days := secs / 86400
	secs %= 86400
	hours := secs / 3600
	secs %= 3600
	mins := secs / 60
	secs %= 60
	if days == 1 {
		return fmt.Sprintf("1 day, %d:%02d:%02d.%02d", hours, mins, secs, centis)
	}
	if days > 0 {
		return fmt.Sprintf("%d days, %d:%02d:%02d.%02d", days, hours, mins, secs, centis)
	}
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, mins, secs, centis)
}

func hexString(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", c)
	}
	return sb.String()
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

// WriteWalk emits records as numeric walk lines in OID order.
func WriteWalk(w io.Writer, records []WalkRecord) error {
	sorted := append([]WalkRecord(nil), records...)
	SortRecords(sorted)
	bw := bufio.NewWriter(w)
	for _, rec := range sorted {
		line, err := FormatRecord(rec)
		if err != nil {
			return err
		}
		if _, err := bw.WriteString(line + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteWalkFile writes records to path, replacing any existing file.
func WriteWalkFile(path string, records []WalkRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteWalk(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func asInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("integer value is %T", v)
	}
}

func asUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case int:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int32:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("negative value %d", n)
		}
		return uint64(n), nil
	case uint:
		return uint64(n), nil
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	default:
		return 0, fmt.Errorf("unsigned value is %T", v)
	}
}
