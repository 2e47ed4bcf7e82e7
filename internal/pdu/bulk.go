package pdu

import (
	"errors"
	"time"

	"github.com/gosnmp/gosnmp"
)

// DefaultMaxResponse bounds encoded responses to a safe UDP payload.
const DefaultMaxResponse = 1400

// responseOverhead covers the message header, community and PDU envelope
// in the size estimate.
const responseOverhead = 50

// maxRepetitionsCap bounds per-varbind walk allocation; the byte cap
// truncates far earlier in practice.
const maxRepetitionsCap = 4096

var (
	ErrInvalidNonRepeaters        = errors.New("pdu: non-repeaters must be >= 0")
	ErrInvalidMaxRepetitions      = errors.New("pdu: max-repetitions must be >= 0")
	ErrNonRepeatersExceedVarbinds = errors.New("pdu: non-repeaters exceeds varbind count")
	ErrTooBig                     = errors.New("pdu: response exceeds size limit")
)

// bulk runs GETBULK semantics: one GETNEXT per non-repeater, then up to
// maxRepetitions successors for each repeating varbind, column-major per
// varbind. Exhausted varbinds yield endOfMibView. The result is truncated
// to the response byte cap from the tail, never touching non-repeaters;
// if even the first varbind cannot fit, ErrTooBig is returned.
func bulk(v View, nonRepeaters, maxRepetitions int, reqVars []gosnmp.SnmpPDU, now time.Time) ([]gosnmp.SnmpPDU, error) {
	if nonRepeaters < 0 {
		return nil, ErrInvalidNonRepeaters
	}
	if maxRepetitions < 0 {
		return nil, ErrInvalidMaxRepetitions
	}
	if nonRepeaters > len(reqVars) {
		return nil, ErrNonRepeatersExceedVarbinds
	}
	if maxRepetitions > maxRepetitionsCap {
		maxRepetitions = maxRepetitionsCap
	}

	out := make([]gosnmp.SnmpPDU, 0, len(reqVars))
	for i, vb := range reqVars {
		start, err := parseName(vb.Name)
		if err != nil {
			out = append(out, exception(vb.Name, gosnmp.EndOfMibView))
			continue
		}
		if i < nonRepeaters {
			if n, ok := v.next(start); ok {
				ber, val := v.nodeValue(n, now)
				out = append(out, gosnmp.SnmpPDU{Name: responseName(n.Key), Type: ber, Value: val})
			} else {
				out = append(out, exception(vb.Name, gosnmp.EndOfMibView))
			}
			continue
		}
		nodes := v.bulkWalk(start, maxRepetitions)
		if len(nodes) == 0 {
			out = append(out, exception(vb.Name, gosnmp.EndOfMibView))
			continue
		}
		for _, n := range nodes {
			ber, val := v.nodeValue(n, now)
			out = append(out, gosnmp.SnmpPDU{Name: responseName(n.Key), Type: ber, Value: val})
		}
	}
	return truncate(out, nonRepeaters, v.maxResponse())
}

// truncate drops trailing repeaters until the estimate fits. Non-repeater
// results must all survive; losing one means the response cannot be
// expressed and the request gets tooBig.
func truncate(vars []gosnmp.SnmpPDU, nonRepeaters, maxBytes int) ([]gosnmp.SnmpPDU, error) {
	size := responseOverhead
	for i, vb := range vars {
		size += varbindSize(vb)
		if size <= maxBytes {
			continue
		}
		if i == 0 || i < nonRepeaters {
			return nil, ErrTooBig
		}
		return vars[:i], nil
	}
	return vars, nil
}

// varbindSize estimates the encoded footprint of one varbind: OID bytes
// plus BER framing plus the value.
func varbindSize(vb gosnmp.SnmpPDU) int {
	size := len(normalizeOID(vb.Name)) + 10 + 8
	switch vb.Type {
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.IPAddress, gosnmp.Uinteger32:
		size += 8
	case gosnmp.Counter64:
		size += 12
	case gosnmp.Integer:
		size += 8
	case gosnmp.OctetString:
		switch s := vb.Value.(type) {
		case string:
			size += len(s) + 4
		case []byte:
			size += len(s) + 4
		default:
			size += 4
		}
	case gosnmp.ObjectIdentifier:
		if s, ok := vb.Value.(string); ok {
			size += len(s) + 4
		} else {
			size += 4
		}
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		size += 4
	default:
		size += 8
	}
	return size
}

// estimateSize is the whole-response estimate used for GET and GETNEXT.
func estimateSize(vars []gosnmp.SnmpPDU) int {
	size := responseOverhead
	for _, vb := range vars {
		size += varbindSize(vb)
	}
	return size
}
