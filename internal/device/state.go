package device

import (
	"sync/atomic"
	"time"
)

// Stats counts one device's traffic. The read loop and the actor
// goroutine both write here, so every field is atomic.
type Stats struct {
	packetsReceived atomic.Int64
	decodeErrors    atomic.Int64
	versionRejects  atomic.Int64
	authFailures    atomic.Int64
	queueDrops      atomic.Int64
	responsesSent   atomic.Int64
	errorResponses  atomic.Int64
	dropped         atomic.Int64
	processNanos    atomic.Int64
}

// StatsSnapshot is the JSON form the control API serves.
type StatsSnapshot struct {
	PacketsReceived int64   `json:"packets_received"`
	ResponsesSent   int64   `json:"responses_sent"`
	ErrorResponses  int64   `json:"error_responses"`
	Dropped         int64   `json:"dropped"`
	DecodeErrors    int64   `json:"decode_errors"`
	VersionRejects  int64   `json:"version_rejects"`
	AuthFailures    int64   `json:"auth_failures"`
	QueueDrops      int64   `json:"queue_drops"`
	AvgResponseMS   float64 `json:"avg_response_ms"`
}

func (s *Stats) snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		PacketsReceived: s.packetsReceived.Load(),
		ResponsesSent:   s.responsesSent.Load(),
		ErrorResponses:  s.errorResponses.Load(),
		Dropped:         s.dropped.Load(),
		DecodeErrors:    s.decodeErrors.Load(),
		VersionRejects:  s.versionRejects.Load(),
		AuthFailures:    s.authFailures.Load(),
		QueueDrops:      s.queueDrops.Load(),
	}
	if snap.ResponsesSent > 0 {
		snap.AvgResponseMS = float64(s.processNanos.Load()) / float64(snap.ResponsesSent) / 1e6
	}
	return snap
}

// Info describes one device for listings and the per-device endpoint.
type Info struct {
	Port       int           `json:"port"`
	DeviceType string        `json:"device_type"`
	Community  string        `json:"community"`
	MAC        string        `json:"mac_address"`
	Source     string        `json:"profile_source"`
	OIDs       int           `json:"oid_count"`
	BootedAt   time.Time     `json:"booted_at"`
	UptimeSec  int64         `json:"uptime_seconds"`
	LastSeen   time.Time     `json:"last_seen"`
	Health     float64       `json:"health"`
	Failed     bool          `json:"failed"`
	Conditions int           `json:"active_conditions"`
	Stats      StatsSnapshot `json:"stats"`
}
