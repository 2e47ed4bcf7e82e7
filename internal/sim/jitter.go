package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/awksedgreep/snmpherd/internal/correlate"
	"github.com/awksedgreep/snmpherd/internal/store"
)

// Jitter is the measurement noise layered on a gauge after its model
// value is computed. Amplitude is in the gauge's own units.
type Jitter struct {
	Pattern   JitterPattern
	Amplitude float64

	Period      time.Duration // periodic: full cycle length
	Probability float64       // burst: chance per sample
	Magnitude   float64       // burst: amplitude multiplier during a spike
	Factor      string        // correlated: metric the noise follows
	Weight      float64       // correlated: units of noise per unit of factor
}

type JitterPattern string

const (
	JitterUniform    JitterPattern = "uniform"
	JitterGaussian   JitterPattern = "gaussian"
	JitterPeriodic   JitterPattern = "periodic"
	JitterBurst      JitterPattern = "burst"
	JitterCorrelated JitterPattern = "correlated"
)

func applyJitter(v float64, j Jitter, env *Env, now time.Time) float64 {
	if j.Amplitude == 0 && j.Weight == 0 {
		return v
	}
	switch j.Pattern {
	case JitterUniform:
		return v + j.Amplitude*(2*env.Rand.Float64()-1)
	case JitterGaussian:
		return v + j.Amplitude*gaussian(env.Rand)
	case JitterPeriodic:
		period := j.Period
		if period <= 0 {
			period = 5 * time.Minute
		}
		phase := float64(now.UnixNano()%int64(period)) / float64(period)
		return v + j.Amplitude*math.Sin(2*math.Pi*phase)
	case JitterBurst:
		if env.Rand.Float64() < j.Probability {
			mag := j.Magnitude
			if mag == 0 {
				mag = 3
			}
			return v + mag*j.Amplitude*(2*env.Rand.Float64()-1)
		}
		return v + 0.2*j.Amplitude*(2*env.Rand.Float64()-1)
	case JitterCorrelated:
		base := env.Metric(j.Factor, 0)
		return v + j.Weight*base + j.Amplitude*(2*env.Rand.Float64()-1)
	default:
		return v
	}
}

// jitterFor is the stock gauge-noise matrix by device family. Access
// devices on coax read noisier than hardware in a rack; routers see their
// utilization jump when flows move.
func jitterFor(deviceType string, kind store.Kind) Jitter {
	coax := deviceType == "cable_modem" || deviceType == "mta"
	switch kind {
	case store.SNRGauge:
		if coax {
			return Jitter{Pattern: JitterGaussian, Amplitude: 0.8}
		}
		return Jitter{Pattern: JitterGaussian, Amplitude: 0.4}
	case store.PowerGauge:
		if deviceType == "cmts" {
			return Jitter{Pattern: JitterPeriodic, Amplitude: 0.3, Period: 5 * time.Minute}
		}
		return Jitter{Pattern: JitterUniform, Amplitude: 0.5}
	case store.TemperatureGauge:
		if deviceType == "server" {
			return Jitter{Pattern: JitterCorrelated, Amplitude: 0.3, Factor: correlate.MetricCPUUsage, Weight: 0.02}
		}
		return Jitter{Pattern: JitterGaussian, Amplitude: 0.6}
	case store.UtilizationGauge:
		if deviceType == "router" {
			return Jitter{Pattern: JitterBurst, Amplitude: 2, Probability: 0.05, Magnitude: 4}
		}
		return Jitter{Pattern: JitterUniform, Amplitude: 2}
	case store.CPUGauge:
		if deviceType == "server" {
			return Jitter{Pattern: JitterBurst, Amplitude: 1.5, Probability: 0.08, Magnitude: 3}
		}
		return Jitter{Pattern: JitterGaussian, Amplitude: 1.5}
	case store.SignalGauge:
		return Jitter{Pattern: JitterUniform, Amplitude: 1}
	default:
		return Jitter{}
	}
}

// gaussian draws a standard normal via Box-Muller. rand.NormFloat64 would
// do, but the explicit form keeps draws reproducible if the rng source
// changes.
func gaussian(rng *rand.Rand) float64 {
	u1 := rng.Float64()
	for u1 == 0 {
		u1 = rng.Float64()
	}
	u2 := rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
}
