// Package sim turns a profile's base values into live readings: counters
// accumulate at time-shaped rates, gauges drift around their captured
// values, and correlated metrics move together. All state lives in an Env
// owned by a single device goroutine; nothing here locks.
package sim

import (
	"math/rand"
	"time"

	"github.com/awksedgreep/snmpherd/internal/correlate"
)

// Env is one device's simulation state. The owning goroutine advances
// Uptime before each request and calls Value per varbind; Value mutates
// the rate and counter memory as it goes.
type Env struct {
	DeviceType string
	Uptime     time.Duration
	Rand       *rand.Rand

	// Metrics holds the device-level health signals gauges read from and
	// feed back into (keys are the correlate.Metric* names plus
	// "health_score" in 0..1).
	Metrics      map[string]float64
	Correlations []correlate.Correlation

	// PrevRate remembers the last smoothed rate or gauge level per OID.
	PrevRate map[string]float64
	// Counters is the raw accumulated count per OID, before wrapping.
	// Monotonicity between wraps is enforced against this map.
	Counters map[string]uint64
	// Offsets holds operator adjustments applied on top of the computed
	// count (the update-counter control op).
	Offsets map[string]uint64

	// distance models plant position: far devices read weaker signal.
	distance float64
	// varianceBias is the per-device factor used by device_specific
	// variance, drawn once so the device keeps its personality.
	varianceBias float64
}

const healthMetric = "health_score"

// NewEnv seeds a device environment. The seed fixes every random draw, so
// two devices built with the same seed replay identical values.
func NewEnv(deviceType string, seed int64) *Env {
	rng := rand.New(rand.NewSource(seed))
	e := &Env{
		DeviceType:   deviceType,
		Rand:         rng,
		Correlations: correlate.DefaultCorrelations(deviceType),
		PrevRate:     make(map[string]float64),
		Counters:     make(map[string]uint64),
		Offsets:      make(map[string]uint64),
		distance:     0.85 + 0.3*rng.Float64(),
		varianceBias: 0.85 + 0.3*rng.Float64(),
	}
	e.Metrics = startingMetrics(rng)
	return e
}

func startingMetrics(rng *rand.Rand) map[string]float64 {
	return map[string]float64{
		correlate.MetricInterfaceUtilization: 25 + 10*rng.Float64(),
		correlate.MetricCPUUsage:             15 + 10*rng.Float64(),
		correlate.MetricSignalQuality:        30 + 5*rng.Float64(),
		correlate.MetricTemperature:          38 + 6*rng.Float64(),
		correlate.MetricErrorRate:            0.005 + 0.01*rng.Float64(),
		correlate.MetricPowerConsumption:     90 + 20*rng.Float64(),
		correlate.MetricThroughput:           1e6 + 5e6*rng.Float64(),
		healthMetric:                         1.0,
	}
}

// Metric reads a health signal, falling back to def when unset.
func (e *Env) Metric(name string, def float64) float64 {
	if v, ok := e.Metrics[name]; ok {
		return v
	}
	return def
}

// SetMetric pins a health signal and propagates it through the device's
// correlation set, so forcing signal quality down also drags throughput.
func (e *Env) SetMetric(name string, value float64, now time.Time) {
	e.Metrics = correlate.Apply(name, value, e.Metrics, e.Correlations, now, e.Rand)
}

// Health reads the composite health score in 0..1.
func (e *Env) Health() float64 { return e.Metric(healthMetric, 1.0) }

// SetHealth pins the health score without correlation side effects.
func (e *Env) SetHealth(v float64) {
	e.Metrics[healthMetric] = clampf(v, 0, 1)
}

// utilization returns current load as a 0..1 fraction.
func (e *Env) utilization() float64 {
	return clampf(e.Metric(correlate.MetricInterfaceUtilization, 30)/100, 0, 1)
}

// Reset clears all accumulated state, as a reboot does. The rng and the
// device personality survive; counters, rates and health go back to their
// starting points.
func (e *Env) Reset() {
	e.Uptime = 0
	e.PrevRate = make(map[string]float64)
	e.Counters = make(map[string]uint64)
	e.Offsets = make(map[string]uint64)
	e.Metrics = startingMetrics(e.Rand)
	e.Correlations = correlate.DefaultCorrelations(e.DeviceType)
}

// ResetCounters zeroes counter memory only, for the reset_counters
// recovery behavior.
func (e *Env) ResetCounters() {
	e.PrevRate = make(map[string]float64)
	e.Counters = make(map[string]uint64)
	e.Offsets = make(map[string]uint64)
}

// AddOffset bumps the operator adjustment for one counter OID.
func (e *Env) AddOffset(key string, delta uint64) {
	e.Offsets[key] += delta
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
