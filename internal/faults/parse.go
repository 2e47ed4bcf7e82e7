package faults

import (
	"encoding/json"
	"fmt"
	"time"
)

// conditionJSON is the REST payload for installing a condition. Durations
// travel as milliseconds.
type conditionJSON struct {
	Probability      float64  `json:"probability"`
	DurationMS       int64    `json:"duration_ms"`
	BurstProbability float64  `json:"burst_probability"`
	BurstDurationMS  int64    `json:"burst_duration_ms"`
	TargetOIDs       []string `json:"target_oids"`

	LossRate       float64 `json:"loss_rate"`
	BurstLoss      bool    `json:"burst_loss"`
	BurstSize      int     `json:"burst_size"`
	RecoveryTimeMS int64   `json:"recovery_time_ms"`

	Error      string `json:"error"`
	ErrorIndex int    `json:"error_index"`

	Corruption string  `json:"corruption"`
	Severity   float64 `json:"severity"`

	FailureType        string  `json:"failure_type"`
	RecoveryBehavior   string  `json:"recovery_behavior"`
	FailureProbability float64 `json:"failure_probability"`
}

// ParseCondition decodes a REST condition body into the typed config for
// kind. The result is one of the *Config types; Install dispatches on it.
func ParseCondition(kind string, body []byte) (Kind, interface{}, error) {
	var raw conditionJSON
	if len(body) > 0 {
		if err := json.Unmarshal(body, &raw); err != nil {
			return "", nil, fmt.Errorf("faults: bad condition body: %w", err)
		}
	}
	switch Kind(kind) {
	case Timeout:
		return Timeout, TimeoutConfig{
			Probability:      raw.Probability,
			Duration:         time.Duration(raw.DurationMS) * time.Millisecond,
			BurstProbability: raw.BurstProbability,
			BurstDuration:    time.Duration(raw.BurstDurationMS) * time.Millisecond,
			TargetOIDs:       raw.TargetOIDs,
		}, nil
	case PacketLoss:
		return PacketLoss, PacketLossConfig{
			LossRate:     raw.LossRate,
			Burst:        raw.BurstLoss,
			BurstSize:    raw.BurstSize,
			RecoveryTime: time.Duration(raw.RecoveryTimeMS) * time.Millisecond,
			TargetOIDs:   raw.TargetOIDs,
		}, nil
	case SNMPError:
		status, err := ParseSNMPError(raw.Error)
		if err != nil {
			return "", nil, err
		}
		return SNMPError, SNMPErrorConfig{
			Status:      status,
			Probability: raw.Probability,
			ErrorIndex:  raw.ErrorIndex,
			TargetOIDs:  raw.TargetOIDs,
		}, nil
	case Malformed:
		return Malformed, MalformedConfig{
			Mode:        CorruptionMode(raw.Corruption),
			Probability: raw.Probability,
			Severity:    raw.Severity,
			TargetOIDs:  raw.TargetOIDs,
		}, nil
	case DeviceFailure:
		p := raw.FailureProbability
		if p == 0 {
			p = raw.Probability
		}
		return DeviceFailure, DeviceFailureConfig{
			Type:        FailureType(raw.FailureType),
			Duration:    time.Duration(raw.DurationMS) * time.Millisecond,
			Recovery:    RecoveryBehavior(raw.RecoveryBehavior),
			Probability: p,
		}, nil
	default:
		return "", nil, fmt.Errorf("faults: unknown condition kind %q", kind)
	}
}
