// Package correlate propagates changes between device metrics: utilization
// drives error rates, temperature drags signal quality, CPU load heats the
// chassis. Apply is pure so the device actor can call it on every metric
// update without locking.
package correlate

import (
	"math"
	"math/rand"
	"time"

	"github.com/awksedgreep/snmpherd/internal/clock"
)

// Kind selects the coupling shape between a metric pair.
type Kind string

const (
	Positive    Kind = "positive"
	Negative    Kind = "negative"
	Threshold   Kind = "threshold"
	Exponential Kind = "exponential"
	Logarithmic Kind = "logarithmic"
)

// Metric names shared between the simulator and the correlation tables.
const (
	MetricErrorRate            = "error_rate"
	MetricCPUUsage             = "cpu_usage"
	MetricInterfaceUtilization = "interface_utilization"
	MetricSignalQuality        = "signal_quality"
	MetricTemperature          = "temperature"
	MetricPowerConsumption     = "power_consumption"
	MetricThroughput           = "throughput"
)

// Correlation couples a secondary metric to a primary one with a strength
// in [0, 1].
type Correlation struct {
	Primary   string
	Secondary string
	Kind      Kind
	Strength  float64
}

const noiseAmplitude = 0.02

// Apply records primary=value into a copy of state and recomputes every
// secondary whose correlation names primary. Correlations whose primary is
// a different metric are ignored, so updating an uncorrelated metric is the
// identity on the rest of the state.
func Apply(primary string, value float64, state map[string]float64, correlations []Correlation, now time.Time, rng *rand.Rand) map[string]float64 {
	out := make(map[string]float64, len(state)+1)
	for k, v := range state {
		out[k] = v
	}
	out[primary] = value

	for _, c := range correlations {
		if c.Primary != primary {
			continue
		}
		secondary, ok := out[c.Secondary]
		if !ok {
			continue
		}
		norm := Normalize(primary, value)
		next, fired := correlated(c, norm, secondary)
		if !fired {
			continue
		}
		if utilizationPair(c) {
			next *= clock.DailyUtilization(now)
		}
		next *= 1 + noiseAmplitude*(2*rng.Float64()-1)
		out[c.Secondary] = Clamp(c.Secondary, next)
	}
	return out
}

// correlated computes the raw coupled value. fired is false when a
// threshold correlation stays below its trip point, leaving the secondary
// exactly as it was.
func correlated(c Correlation, norm, secondary float64) (next float64, fired bool) {
	frac := norm / 100
	switch c.Kind {
	case Positive:
		return secondary * (1 + (frac-0.5)*0.2*c.Strength), true
	case Negative:
		return secondary * (1 - (frac-0.5)*0.2*c.Strength), true
	case Threshold:
		if norm < thresholdFor(c.Primary, c.Secondary) {
			return secondary, false
		}
		return secondary * (1 + 0.5*c.Strength), true
	case Exponential:
		if c.Primary == MetricInterfaceUtilization && c.Secondary == MetricErrorRate {
			// Congestion errors grow quadratically, hard.
			return secondary * (1 + frac*frac*5*c.Strength), true
		}
		return secondary * (1 + frac*frac*c.Strength), true
	case Logarithmic:
		n := norm
		if n < 1 {
			n = 1
		}
		return secondary * (1 + c.Strength*math.Log(n)), true
	}
	return secondary, false
}

// Normalize maps a metric value onto 0..100. Temperatures are already in
// degrees; rates in 0..1 scale up; percentage metrics pass through.
func Normalize(metric string, value float64) float64 {
	switch metric {
	case MetricTemperature:
		return clampRange(value, 0, 100)
	case MetricErrorRate:
		return clampRange(value*100, 0, 100)
	case MetricInterfaceUtilization, MetricCPUUsage, MetricSignalQuality:
		if value <= 1.0 {
			value *= 100
		}
		return clampRange(value, 0, 100)
	default:
		return clampRange(value, 0, 100)
	}
}

// Clamp applies the per-metric output bounds.
func Clamp(metric string, v float64) float64 {
	switch metric {
	case MetricErrorRate:
		return clampRange(v, 0, 1)
	case MetricCPUUsage, MetricInterfaceUtilization, MetricSignalQuality:
		return clampRange(v, 0, 100)
	case MetricTemperature:
		return clampRange(v, -10, 100)
	case MetricPowerConsumption, MetricThroughput:
		if v < 0 {
			return 0
		}
		return v
	default:
		return v
	}
}

// thresholdFor returns the trip point (on the normalized 0..100 scale) for
// a threshold correlation pair.
func thresholdFor(primary, secondary string) float64 {
	if t, ok := thresholds[pair{primary, secondary}]; ok {
		return t
	}
	return 70
}

type pair struct{ primary, secondary string }

var thresholds = map[pair]float64{
	{MetricInterfaceUtilization, MetricErrorRate}: 80,
	{MetricCPUUsage, MetricTemperature}:           75,
	{MetricTemperature, MetricSignalQuality}:      60,
}

// utilizationPair reports whether the coupling involves a load metric;
// only those follow the time-of-day curve.
func utilizationPair(c Correlation) bool {
	return loadMetric(c.Primary) || loadMetric(c.Secondary)
}

func loadMetric(m string) bool {
	switch m {
	case MetricInterfaceUtilization, MetricCPUUsage, MetricThroughput:
		return true
	}
	return false
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
