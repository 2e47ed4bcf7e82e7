package pdu

import (
	"net"
	"time"

	"github.com/gosnmp/gosnmp"
)

// The writable surface is the DOCSIS software upgrade control group
// (docsDevSoftware, RFC 4639). Everything else answers notWritable.
const (
	oidSwServer      = "1.3.6.1.2.1.69.1.3.1.0"
	oidSwFilename    = "1.3.6.1.2.1.69.1.3.2.0"
	oidSwAdminStatus = "1.3.6.1.2.1.69.1.3.3.0"
	oidSwOperStatus  = "1.3.6.1.2.1.69.1.3.4.0"
	oidSwCurrentVers = "1.3.6.1.2.1.69.1.3.5.0"
)

// docsDevSwAdminStatus values.
const (
	SwAdminUpgradeFromMgt            = 1
	SwAdminAllowProvisioningUpgrade  = 2
	SwAdminIgnoreProvisioningUpgrade = 3
)

// docsDevSwOperStatus values.
const (
	SwOperInProgress               = 1
	SwOperCompleteFromProvisioning = 2
	SwOperCompleteFromMgt          = 3
	SwOperFailed                   = 4
	SwOperOther                    = 5
)

const maxFilenameLen = 64

// Transition is a deferred oper-status change produced by a SET. The
// device actor schedules it and applies it through its own inbox, so the
// upgrade completes asynchronously like a real download would.
type Transition struct {
	After          time.Duration
	OperStatus     int
	PromoteVersion bool // copy Filename into CurrentVers on completion
}

// SetState is one device's writable object store. Owned by the device
// goroutine; never shared.
type SetState struct {
	Server      string // dotted quad; "0.0.0.0" until provisioned
	Filename    string
	AdminStatus int
	OperStatus  int
	CurrentVers string

	completeAfter time.Duration
}

// NewSetState returns the boot-time upgrade group: no server, no file,
// provisioning upgrades allowed, status other(5).
func NewSetState(currentVers string, completeAfter time.Duration) *SetState {
	if currentVers == "" {
		currentVers = "SW_1.0.0"
	}
	if completeAfter <= 0 {
		completeAfter = 2 * time.Second
	}
	return &SetState{
		Server:        "0.0.0.0",
		AdminStatus:   SwAdminAllowProvisioningUpgrade,
		OperStatus:    SwOperOther,
		CurrentVers:   currentVers,
		completeAfter: completeAfter,
	}
}

// Lookup serves GETs over the writable group.
func (s *SetState) Lookup(key string) (gosnmp.Asn1BER, interface{}, bool) {
	switch key {
	case oidSwServer:
		return gosnmp.IPAddress, s.Server, true
	case oidSwFilename:
		return gosnmp.OctetString, s.Filename, true
	case oidSwAdminStatus:
		return gosnmp.Integer, s.AdminStatus, true
	case oidSwOperStatus:
		return gosnmp.Integer, s.OperStatus, true
	case oidSwCurrentVers:
		return gosnmp.OctetString, s.CurrentVers, true
	}
	return 0, nil, false
}

// Validate checks one SET varbind without applying it. The returned
// status is in v2c vocabulary; translateSetStatus narrows it for v1.
func (s *SetState) Validate(vb gosnmp.SnmpPDU) gosnmp.SNMPError {
	switch normalizeOID(vb.Name) {
	case oidSwServer:
		if vb.Type != gosnmp.IPAddress {
			return gosnmp.WrongType
		}
		if _, ok := ipValue(vb.Value); !ok {
			return gosnmp.WrongValue
		}
	case oidSwFilename:
		if vb.Type != gosnmp.OctetString {
			return gosnmp.WrongType
		}
		name, ok := stringValue(vb.Value)
		if !ok {
			return gosnmp.WrongType
		}
		if len(name) > maxFilenameLen {
			return gosnmp.WrongLength
		}
	case oidSwAdminStatus:
		if vb.Type != gosnmp.Integer {
			return gosnmp.WrongType
		}
		n, ok := intValue(vb.Value)
		if !ok {
			return gosnmp.WrongType
		}
		switch n {
		case SwAdminUpgradeFromMgt:
			// Trigger preconditions: a real server and a filename, and
			// no download already running.
			if s.Server == "" || s.Server == "0.0.0.0" || s.Filename == "" {
				return gosnmp.WrongValue
			}
			if s.OperStatus == SwOperInProgress {
				return gosnmp.WrongValue
			}
		case SwAdminAllowProvisioningUpgrade, SwAdminIgnoreProvisioningUpgrade:
		default:
			return gosnmp.WrongValue
		}
	case oidSwOperStatus, oidSwCurrentVers:
		return gosnmp.NotWritable
	default:
		return gosnmp.NoSuchName
	}
	return gosnmp.NoError
}

// apply commits one validated varbind and returns the echo varbind plus
// any deferred transitions. Callers must have validated first.
func (s *SetState) apply(vb gosnmp.SnmpPDU) (gosnmp.SnmpPDU, []Transition) {
	key := normalizeOID(vb.Name)
	switch key {
	case oidSwServer:
		ip, _ := ipValue(vb.Value)
		s.Server = ip
		return gosnmp.SnmpPDU{Name: vb.Name, Type: gosnmp.IPAddress, Value: ip}, nil
	case oidSwFilename:
		name, _ := stringValue(vb.Value)
		s.Filename = name
		return gosnmp.SnmpPDU{Name: vb.Name, Type: gosnmp.OctetString, Value: name}, nil
	case oidSwAdminStatus:
		n, _ := intValue(vb.Value)
		s.AdminStatus = n
		echo := gosnmp.SnmpPDU{Name: vb.Name, Type: gosnmp.Integer, Value: n}
		if n == SwAdminUpgradeFromMgt {
			s.OperStatus = SwOperInProgress
			return echo, []Transition{{
				After:          s.completeAfter,
				OperStatus:     SwOperCompleteFromMgt,
				PromoteVersion: true,
			}}
		}
		return echo, nil
	}
	return gosnmp.SnmpPDU{Name: vb.Name, Type: vb.Type, Value: vb.Value}, nil
}

// ApplyTransition lands a scheduled oper-status change.
func (s *SetState) ApplyTransition(tr Transition) {
	s.OperStatus = tr.OperStatus
	if tr.PromoteVersion && s.Filename != "" {
		s.CurrentVers = s.Filename
	}
}

// Reset puts the group back to boot defaults, keeping the running
// firmware version.
func (s *SetState) Reset() {
	vers := s.CurrentVers
	after := s.completeAfter
	*s = *NewSetState(vers, after)
}

// translateSetStatus narrows a v2c SET status to the v1 vocabulary.
// Unknown OIDs stay noSuchName in v1 but read as notWritable in v2c.
func translateSetStatus(st gosnmp.SNMPError, version gosnmp.SnmpVersion) gosnmp.SNMPError {
	if version != gosnmp.Version1 {
		if st == gosnmp.NoSuchName {
			return gosnmp.NotWritable
		}
		return st
	}
	switch st {
	case gosnmp.WrongType, gosnmp.WrongLength, gosnmp.WrongValue:
		return gosnmp.BadValue
	case gosnmp.NotWritable:
		return gosnmp.ReadOnly
	default:
		return st
	}
}

func ipValue(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		ip := net.ParseIP(x)
		if ip == nil || ip.To4() == nil {
			return "", false
		}
		return ip.To4().String(), true
	case []byte:
		if len(x) != 4 {
			return "", false
		}
		return net.IP(x).String(), true
	}
	return "", false
}

func stringValue(v interface{}) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	}
	return "", false
}

func intValue(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint32:
		return int(x), true
	}
	return 0, false
}
