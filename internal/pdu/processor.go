// Package pdu implements the SNMPv1/v2c request semantics over a device's
// profile tree: GET with per-version miss handling, GETNEXT in strict
// lexicographic order, size-bounded GETBULK, and the DOCSIS software
// upgrade SET group. It is wire-format agnostic; callers hand it decoded
// gosnmp packets and encode what comes back.
package pdu

import (
	"errors"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/awksedgreep/snmpherd/internal/store"
)

var (
	// ErrBadCommunity means the request fails authentication. Callers
	// drop the request silently, as agents do.
	ErrBadCommunity = errors.New("pdu: community mismatch")
	// ErrUnsupportedVersion rejects anything that is not v1 or v2c.
	ErrUnsupportedVersion = errors.New("pdu: unsupported snmp version")
)

// SimFunc computes the live value for one tree node.
type SimFunc func(n store.Node, now time.Time) (gosnmp.Asn1BER, interface{})

// View is the slice of device state one request sees. The device actor
// builds it per request; the processor never retains it.
type View struct {
	Community   string
	Profile     *store.Profile // nil degrades every request to genErr
	Simulate    SimFunc        // nil serves base values verbatim
	Sets        *SetState      // nil makes every SET fail notWritable
	Schedule    func(Transition)
	MaxResponse int // response byte cap; 0 means DefaultMaxResponse
}

// Process answers one decoded request. A nil response with ErrBadCommunity
// means drop silently; any other error also produces no response.
func Process(req *gosnmp.SnmpPacket, v View, now time.Time) (*gosnmp.SnmpPacket, error) {
	if req.Version != gosnmp.Version1 && req.Version != gosnmp.Version2c {
		return nil, ErrUnsupportedVersion
	}
	if req.Community != v.Community {
		return nil, ErrBadCommunity
	}

	switch req.PDUType {
	case gosnmp.GetRequest:
		return processGet(req, v, now), nil
	case gosnmp.GetNextRequest:
		return processGetNext(req, v, now), nil
	case gosnmp.GetBulkRequest:
		// GETBULK does not exist in v1; answer genErr rather than
		// guessing at a GETNEXT translation.
		if req.Version == gosnmp.Version1 {
			return ErrorResponse(req, gosnmp.GenErr, 0), nil
		}
		return processGetBulk(req, v, now), nil
	case gosnmp.SetRequest:
		return processSet(req, v), nil
	default:
		return ErrorResponse(req, gosnmp.GenErr, 0), nil
	}
}

// OpName names a PDU type for logs and metrics.
func OpName(t gosnmp.PDUType) string {
	switch t {
	case gosnmp.GetRequest:
		return "get"
	case gosnmp.GetNextRequest:
		return "getnext"
	case gosnmp.GetBulkRequest:
		return "getbulk"
	case gosnmp.SetRequest:
		return "set"
	case gosnmp.GetResponse:
		return "response"
	default:
		return "other"
	}
}

func processGet(req *gosnmp.SnmpPacket, v View, now time.Time) *gosnmp.SnmpPacket {
	if v.Profile == nil && v.Sets == nil {
		return ErrorResponse(req, gosnmp.GenErr, 0)
	}
	vars := make([]gosnmp.SnmpPDU, 0, len(req.Variables))
	for i, vb := range req.Variables {
		oid, err := parseName(vb.Name)
		if err != nil {
			if req.Version == gosnmp.Version1 {
				return ErrorResponse(req, gosnmp.NoSuchName, i+1)
			}
			vars = append(vars, exception(vb.Name, gosnmp.NoSuchObject))
			continue
		}
		ber, val, ok := v.lookup(oid, now)
		if !ok {
			if req.Version == gosnmp.Version1 {
				return ErrorResponse(req, gosnmp.NoSuchName, i+1)
			}
			vars = append(vars, exception(vb.Name, v.missKind(oid)))
			continue
		}
		vars = append(vars, gosnmp.SnmpPDU{Name: vb.Name, Type: ber, Value: val})
	}
	return sizedResponse(req, vars, v.maxResponse())
}

func processGetNext(req *gosnmp.SnmpPacket, v View, now time.Time) *gosnmp.SnmpPacket {
	if v.Profile == nil {
		return ErrorResponse(req, gosnmp.GenErr, 0)
	}
	vars := make([]gosnmp.SnmpPDU, 0, len(req.Variables))
	for i, vb := range req.Variables {
		oid, err := parseName(vb.Name)
		if err != nil {
			return ErrorResponse(req, gosnmp.GenErr, i+1)
		}
		n, ok := v.next(oid)
		if !ok {
			if req.Version == gosnmp.Version1 {
				return ErrorResponse(req, gosnmp.NoSuchName, i+1)
			}
			vars = append(vars, exception(vb.Name, gosnmp.EndOfMibView))
			continue
		}
		ber, val := v.nodeValue(n, now)
		vars = append(vars, gosnmp.SnmpPDU{Name: responseName(n.Key), Type: ber, Value: val})
	}
	return sizedResponse(req, vars, v.maxResponse())
}

func processGetBulk(req *gosnmp.SnmpPacket, v View, now time.Time) *gosnmp.SnmpPacket {
	if v.Profile == nil {
		return ErrorResponse(req, gosnmp.GenErr, 0)
	}
	vars, err := bulk(v, int(req.NonRepeaters), int(req.MaxRepetitions), req.Variables, now)
	switch {
	case errors.Is(err, ErrTooBig):
		return ErrorResponse(req, gosnmp.TooBig, 0)
	case err != nil:
		return ErrorResponse(req, gosnmp.GenErr, 0)
	}
	return Response(req, vars)
}

func processSet(req *gosnmp.SnmpPacket, v View) *gosnmp.SnmpPacket {
	if v.Sets == nil {
		return ErrorResponse(req, translateSetStatus(gosnmp.NoSuchName, req.Version), 1)
	}
	// Validate everything before touching anything: a SET is atomic, so
	// the first failure rejects the whole request untouched.
	for i, vb := range req.Variables {
		if st := v.Sets.Validate(vb); st != gosnmp.NoError {
			return ErrorResponse(req, translateSetStatus(st, req.Version), i+1)
		}
	}
	vars := make([]gosnmp.SnmpPDU, 0, len(req.Variables))
	for _, vb := range req.Variables {
		applied, transitions := v.Sets.apply(vb)
		for _, tr := range transitions {
			if v.Schedule != nil {
				v.Schedule(tr)
			}
		}
		vars = append(vars, applied)
	}
	return Response(req, vars)
}

// Response builds a GetResponse around the request envelope, echoing
// version, community and request-id.
func Response(req *gosnmp.SnmpPacket, vars []gosnmp.SnmpPDU) *gosnmp.SnmpPacket {
	resp := *req
	resp.PDUType = gosnmp.GetResponse
	resp.Error = gosnmp.NoError
	resp.ErrorIndex = 0
	resp.Variables = vars
	return &resp
}

// ErrorResponse echoes the request varbinds under an error status with a
// 1-based error index.
func ErrorResponse(req *gosnmp.SnmpPacket, status gosnmp.SNMPError, index int) *gosnmp.SnmpPacket {
	resp := *req
	resp.PDUType = gosnmp.GetResponse
	resp.Error = status
	resp.ErrorIndex = uint8(index)
	resp.Variables = req.Variables
	return &resp
}

func sizedResponse(req *gosnmp.SnmpPacket, vars []gosnmp.SnmpPDU, maxBytes int) *gosnmp.SnmpPacket {
	if estimateSize(vars) > maxBytes {
		return ErrorResponse(req, gosnmp.TooBig, 0)
	}
	return Response(req, vars)
}

func (v View) maxResponse() int {
	if v.MaxResponse > 0 {
		return v.MaxResponse
	}
	return DefaultMaxResponse
}

// lookup resolves an exact OID: writable overlay first, then the profile
// with simulation applied.
func (v View) lookup(oid store.OID, now time.Time) (gosnmp.Asn1BER, interface{}, bool) {
	key := oid.String()
	if v.Sets != nil {
		if ber, val, ok := v.Sets.Lookup(key); ok {
			return ber, val, true
		}
	}
	if v.Profile == nil {
		return 0, nil, false
	}
	e, ok := v.Profile.Get(oid)
	if !ok {
		return 0, nil, false
	}
	if v.Simulate == nil {
		return e.Type, e.Value, true
	}
	ber, val := v.Simulate(store.Node{OID: oid, Key: key, Entry: e}, now)
	return ber, val, true
}

func (v View) next(after store.OID) (store.Node, bool) {
	if v.Profile == nil {
		return store.Node{}, false
	}
	return v.Profile.Next(after)
}

func (v View) bulkWalk(start store.OID, max int) []store.Node {
	if v.Profile == nil {
		return nil
	}
	return v.Profile.BulkWalk(start, max)
}

// nodeValue produces the response value for a tree node, letting the
// writable overlay shadow profiled objects it owns.
func (v View) nodeValue(n store.Node, now time.Time) (gosnmp.Asn1BER, interface{}) {
	if v.Sets != nil {
		if ber, val, ok := v.Sets.Lookup(n.Key); ok {
			return ber, val
		}
	}
	if v.Simulate != nil {
		return v.Simulate(n, now)
	}
	return n.Entry.Type, n.Entry.Value
}

// missKind classifies a v2c GET miss: noSuchInstance when the object (or
// a sibling instance under the same parent) exists, noSuchObject when the
// whole subtree is foreign.
func (v View) missKind(oid store.OID) gosnmp.Asn1BER {
	if v.Profile == nil {
		return gosnmp.NoSuchObject
	}
	if v.Profile.HasSubtree(oid) {
		return gosnmp.NoSuchInstance
	}
	if len(oid) > 1 && v.Profile.HasSubtree(oid[:len(oid)-1]) {
		return gosnmp.NoSuchInstance
	}
	return gosnmp.NoSuchObject
}

func exception(name string, kind gosnmp.Asn1BER) gosnmp.SnmpPDU {
	return gosnmp.SnmpPDU{Name: name, Type: kind, Value: nil}
}

func parseName(name string) (store.OID, error) {
	return store.ParseOID(normalizeOID(name))
}

func normalizeOID(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), ".")
}

func responseName(key string) string {
	return "." + key
}
