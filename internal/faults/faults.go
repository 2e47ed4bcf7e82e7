// Package faults injects network and agent misbehavior into simulated
// devices: timeouts, packet loss, SNMP error responses, malformed frames
// and whole-device failures. An Injector belongs to exactly one device
// goroutine; scheduled transitions (burst windows, failure recovery) are
// routed back through that goroutine via the Scheduler callback, so no
// condition state is ever touched concurrently.
package faults

import (
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
)

// Kind names a fault family.
type Kind string

const (
	Timeout       Kind = "timeout"
	PacketLoss    Kind = "packet_loss"
	SNMPError     Kind = "snmp_error"
	Malformed     Kind = "malformed"
	DeviceFailure Kind = "device_failure"
)

// Kinds lists every fault family.
func Kinds() []Kind {
	return []Kind{Timeout, PacketLoss, SNMPError, Malformed, DeviceFailure}
}

// CorruptionMode selects how a malformed response is damaged.
type CorruptionMode string

const (
	CorruptTruncated      CorruptionMode = "truncated"
	CorruptInvalidBER     CorruptionMode = "invalid_ber"
	CorruptWrongCommunity CorruptionMode = "wrong_community"
	CorruptInvalidPDUType CorruptionMode = "invalid_pdu_type"
	CorruptVarbinds       CorruptionMode = "corrupted_varbinds"
)

// FailureType selects how a device failure presents.
type FailureType string

const (
	FailReboot     FailureType = "reboot"
	FailPower      FailureType = "power_failure"
	FailDisconnect FailureType = "network_disconnect"
	FailFirmware   FailureType = "firmware_crash"
	FailOverload   FailureType = "overload"
)

// RecoveryBehavior selects what happens when a failed device comes back.
type RecoveryBehavior string

const (
	RecoverNormal        RecoveryBehavior = "normal"
	RecoverGradual       RecoveryBehavior = "gradual"
	RecoverResetCounters RecoveryBehavior = "reset_counters"
)

// TimeoutConfig delays (or swallows) responses. A zero Duration means the
// response is dropped outright; a nonzero one delays it, which reads as a
// timeout to any poller with a shorter deadline.
type TimeoutConfig struct {
	Probability      float64
	Duration         time.Duration
	BurstProbability float64       // 0 disables burst windows
	BurstDuration    time.Duration // length of a burst window
	TargetOIDs       []string      // empty matches every request
}

// PacketLossConfig drops requests silently. With Burst set, losses arrive
// in runs of BurstSize instead of independently.
type PacketLossConfig struct {
	LossRate     float64
	Burst        bool
	BurstSize    int
	RecoveryTime time.Duration // latent gap between bursts
	TargetOIDs   []string
}

// SNMPErrorConfig substitutes an error-status response.
type SNMPErrorConfig struct {
	Status      gosnmp.SNMPError
	Probability float64
	ErrorIndex  int // 0 lets the responder pick the first varbind
	TargetOIDs  []string
}

// MalformedConfig corrupts the encoded response after a correct one is
// built. Severity in 0..1 scales how much of the frame is damaged.
type MalformedConfig struct {
	Mode        CorruptionMode
	Probability float64
	Severity    float64
	TargetOIDs  []string
}

// DeviceFailureConfig takes the whole device down. Probability 1 fails it
// at install; smaller values make the device flap, tripping per request.
type DeviceFailureConfig struct {
	Type        FailureType
	Duration    time.Duration
	Recovery    RecoveryBehavior
	Probability float64
}

func (c *TimeoutConfig) normalize() {
	c.Probability = clamp01(c.Probability)
	if c.Probability == 0 && c.BurstProbability == 0 {
		c.Probability = 1
	}
	if c.BurstProbability > 0 && c.BurstDuration <= 0 {
		c.BurstDuration = 5 * time.Second
	}
	normalizeTargets(&c.TargetOIDs)
}

func (c *PacketLossConfig) normalize() {
	c.LossRate = clamp01(c.LossRate)
	if c.Burst {
		if c.BurstSize <= 0 {
			c.BurstSize = 5
		}
		if c.RecoveryTime <= 0 {
			c.RecoveryTime = 10 * time.Second
		}
	}
	normalizeTargets(&c.TargetOIDs)
}

func (c *SNMPErrorConfig) normalize() {
	if c.Status == gosnmp.NoError {
		c.Status = gosnmp.GenErr
	}
	c.Probability = clamp01(c.Probability)
	if c.Probability == 0 {
		c.Probability = 1
	}
	if c.ErrorIndex < 0 {
		c.ErrorIndex = 0
	}
	normalizeTargets(&c.TargetOIDs)
}

func (c *MalformedConfig) normalize() {
	if c.Mode == "" {
		c.Mode = CorruptVarbinds
	}
	c.Probability = clamp01(c.Probability)
	if c.Probability == 0 {
		c.Probability = 1
	}
	if c.Severity <= 0 || c.Severity > 1 {
		c.Severity = 0.3
	}
	normalizeTargets(&c.TargetOIDs)
}

func (c *DeviceFailureConfig) normalize() {
	if c.Type == "" {
		c.Type = FailReboot
	}
	if c.Duration <= 0 {
		c.Duration = 30 * time.Second
	}
	if c.Recovery == "" {
		c.Recovery = RecoverNormal
	}
	c.Probability = clamp01(c.Probability)
	if c.Probability == 0 {
		c.Probability = 1
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalizeTargets(targets *[]string) {
	out := (*targets)[:0]
	for _, t := range *targets {
		t = strings.TrimSpace(strings.TrimPrefix(t, "."))
		if t != "" {
			out = append(out, t)
		}
	}
	*targets = out
}

// matchesTargets reports whether any requested OID falls under any target
// prefix. An empty target list matches everything.
func matchesTargets(oids, targets []string) bool {
	if len(targets) == 0 {
		return true
	}
	for _, oid := range oids {
		oid = strings.TrimPrefix(oid, ".")
		for _, t := range targets {
			if oid == t || strings.HasPrefix(oid, t+".") {
				return true
			}
		}
	}
	return false
}

// ParseSNMPError maps a config/API error name to its wire value.
func ParseSNMPError(name string) (gosnmp.SNMPError, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "generr", "generror":
		return gosnmp.GenErr, nil
	case "nosuchname":
		return gosnmp.NoSuchName, nil
	case "toobig":
		return gosnmp.TooBig, nil
	case "badvalue":
		return gosnmp.BadValue, nil
	case "readonly":
		return gosnmp.ReadOnly, nil
	case "wrongtype":
		return gosnmp.WrongType, nil
	case "wrongvalue":
		return gosnmp.WrongValue, nil
	case "notwritable":
		return gosnmp.NotWritable, nil
	case "resourceunavailable":
		return gosnmp.ResourceUnavailable, nil
	default:
		return gosnmp.GenErr, fmt.Errorf("faults: unknown snmp error %q", name)
	}
}
