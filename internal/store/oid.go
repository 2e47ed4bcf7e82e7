package store

import (
	"fmt"
	"strconv"
	"strings"
)

// OID is the canonical form of an object identifier: an ordered sequence of
// non-negative components. String forms ("1.3.6.1..." with or without a
// leading dot) are accepted at boundaries only; all ordering is defined on
// the integer sequence.
type OID []uint32

// ParseOID converts a dotted string into its integer-sequence form. A single
// leading dot is tolerated (gosnmp reports OIDs as ".1.3.6...").
func ParseOID(s string) (OID, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), ".")
	if s == "" {
		return nil, fmt.Errorf("empty oid")
	}
	parts := strings.Split(s, ".")
	oid := make(OID, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid oid component %q in %q", p, s)
		}
		oid = append(oid, uint32(n))
	}
	return oid, nil
}

// MustParseOID is ParseOID for literals; panics on malformed input.
func MustParseOID(s string) OID {
	oid, err := ParseOID(s)
	if err != nil {
		panic(err)
	}
	return oid
}

// String renders the dotted form without a leading dot.
func (o OID) String() string {
	if len(o) == 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(len(o) * 3)
	for i, c := range o {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	return b.String()
}

// Compare orders two OIDs componentwise. A strict prefix sorts before its
// extensions: 1.3.6 < 1.3.6.1 < 1.3.7.
func (o OID) Compare(other OID) int {
	n := len(o)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if o[i] != other[i] {
			if o[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(o) < len(other):
		return -1
	case len(o) > len(other):
		return 1
	}
	return 0
}

// Less reports whether o sorts strictly before other.
func (o OID) Less(other OID) bool { return o.Compare(other) < 0 }

// HasPrefix reports whether prefix is a (non-strict) prefix of o.
func (o OID) HasPrefix(prefix OID) bool {
	if len(prefix) > len(o) {
		return false
	}
	for i, c := range prefix {
		if o[i] != c {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (o OID) Clone() OID {
	out := make(OID, len(o))
	copy(out, o)
	return out
}

// Append returns a new OID with extra components appended.
func (o OID) Append(components ...uint32) OID {
	out := make(OID, 0, len(o)+len(components))
	out = append(out, o...)
	return append(out, components...)
}
