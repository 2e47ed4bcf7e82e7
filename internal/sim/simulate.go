package sim

import (
	"errors"
	"math"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/awksedgreep/snmpherd/internal/clock"
	"github.com/awksedgreep/snmpherd/internal/correlate"
	"github.com/awksedgreep/snmpherd/internal/store"
)

var errNotNumeric = errors.New("sim: value is not numeric")

// avgPacketBytes turns an octets rate into a packets rate when a packet
// counter is tied to its octets column.
const avgPacketBytes = 750

// Value computes the current reading for one profile entry. The returned
// type is always the entry's declared wire type; only the value moves.
// Counters never step backwards between wraps, whatever the rate does.
func Value(n store.Node, p *store.Profile, env *Env, now time.Time) (gosnmp.Asn1BER, interface{}) {
	e := n.Entry
	b := e.Behavior
	switch b.Kind {
	case store.TrafficCounter:
		rate := trafficRate(n.Key, b, env, now)
		return counterValue(n, env, rate*env.Uptime.Seconds())
	case store.PacketCounter:
		rate := packetRate(n, p, env, now)
		return counterValue(n, env, rate*env.Uptime.Seconds())
	case store.ErrorCounter:
		rate := errorRate(b, env)
		return counterValue(n, env, rate*env.Uptime.Hours())
	case store.UtilizationGauge:
		return utilizationGauge(n, env, now)
	case store.CPUGauge:
		return cpuGauge(n, env, now)
	case store.PowerGauge:
		return powerGauge(n, env, now)
	case store.SNRGauge:
		return snrGauge(n, env, now)
	case store.SignalGauge:
		return signalGauge(n, env, now)
	case store.TemperatureGauge:
		return temperatureGauge(n, env, now)
	case store.UptimeCounter:
		return e.Type, cast(e.Type, uptimeTicks(env.Uptime))
	case store.StatusEnum:
		return e.Type, statusValue(e, env)
	default:
		return e.Type, e.Value
	}
}

// trafficRate derives the instantaneous octets-per-second rate for a
// counter: the behavior's rate band scaled by utilization, shaped by time
// of day, week and device role, then smoothed against the previous sample
// so polls see a continuous curve rather than jumps.
func trafficRate(key string, b store.Behavior, env *Env, now time.Time) float64 {
	rate := b.RateMin + (b.RateMax-b.RateMin)*env.utilization()
	rate *= clock.DailyUtilization(now)
	rate *= clock.WeeklyPattern(now)
	rate *= clock.DevicePattern(env.DeviceType, now)
	rate *= variance(b, env, now)
	if prev, ok := env.PrevRate[key]; ok {
		rate = 0.7*prev + 0.3*rate
	}
	if rate < 0 {
		rate = 0
	}
	env.PrevRate[key] = rate
	return rate
}

// packetRate follows the paired octets column when the analyzer found one,
// so packets and octets move together on the same row.
func packetRate(n store.Node, p *store.Profile, env *Env, now time.Time) float64 {
	b := n.Entry.Behavior
	if b.CounterpartOID != "" && p != nil {
		if oid, err := store.ParseOID(b.CounterpartOID); err == nil {
			if counterpart, ok := p.Get(oid); ok && counterpart.Behavior.IsCounter() {
				octets := trafficRate(b.CounterpartOID, counterpart.Behavior, env, now)
				return octets / avgPacketBytes
			}
		}
	}
	return trafficRate(n.Key, b, env, now)
}

// errorRate is errors per hour. It rises with load, worsens as signal
// quality drops, and spikes tenfold during an error burst.
func errorRate(b store.Behavior, env *Env) float64 {
	util := env.utilization()
	rate := b.RateMin + (b.RateMax-b.RateMin)*util
	quality := env.Metric(correlate.MetricSignalQuality, 33)
	if quality > 1 {
		rate *= clampf(25/quality, 0.6, 2.5)
	}
	if b.BurstProbability > 0 && env.Rand.Float64() < b.BurstProbability {
		rate *= 10
	}
	return rate
}

// counterValue folds the accumulated delta into the per-OID raw count,
// clamps against the last raw value so rate drops never read backwards,
// then wraps to the counter's width. Post-wrap quirk offsets model the
// firmware skid some families show after rollover.
func counterValue(n store.Node, env *Env, delta float64) (gosnmp.Asn1BER, interface{}) {
	e := n.Entry
	if delta < 0 {
		delta = 0
	}
	base, _ := valueUint64(e.Value)
	raw := base + env.Offsets[n.Key] + uint64(delta)
	if last, ok := env.Counters[n.Key]; ok && raw < last {
		raw = last
	}
	env.Counters[n.Key] = raw

	bits := e.Behavior.WrapBits
	if bits == 0 {
		bits = 32
		if e.Type == gosnmp.Counter64 {
			bits = 64
		}
	}
	if bits == 64 {
		wrapped := raw < base
		v := Wrap64(raw) + wrapQuirk(env.DeviceType, 64, wrapped, env.Rand)
		return e.Type, cast(e.Type, v)
	}
	wrapped := raw > math.MaxUint32
	v := uint64(Wrap32(raw)) + wrapQuirk(env.DeviceType, 32, wrapped, env.Rand)
	return e.Type, cast(e.Type, uint64(Wrap32(v)))
}

func utilizationGauge(n store.Node, env *Env, now time.Time) (gosnmp.Asn1BER, interface{}) {
	e := n.Entry
	base := valueFloat(e.Value)
	if base <= 0 {
		base = 30
	}
	v := base * clock.DailyUtilization(now) * clock.WeeklyPattern(now) * clock.DevicePattern(env.DeviceType, now)
	if prev, ok := env.PrevRate[n.Key]; ok {
		v = 0.6*prev + 0.4*v
	}
	env.PrevRate[n.Key] = v
	v = applyJitter(v, jitterFor(env.DeviceType, store.UtilizationGauge), env, now)
	v = gaugeClamp(v, e.Behavior, 0, 100)
	env.SetMetric(correlate.MetricInterfaceUtilization, v, now)
	return e.Type, castSigned(e.Type, v)
}

func cpuGauge(n store.Node, env *Env, now time.Time) (gosnmp.Asn1BER, interface{}) {
	e := n.Entry
	base := valueFloat(e.Value)
	if base <= 0 {
		base = 20
	}
	netUtil := env.Metric(correlate.MetricInterfaceUtilization, 30)
	v := (0.6*base + 0.4*netUtil) * clock.DailyUtilization(now)
	if e.Behavior.BurstProbability > 0 && env.Rand.Float64() < e.Behavior.BurstProbability {
		v *= 2
	}
	v = applyJitter(v, jitterFor(env.DeviceType, store.CPUGauge), env, now)
	v = gaugeClamp(v, e.Behavior, 0, 100)
	env.SetMetric(correlate.MetricCPUUsage, v, now)
	return e.Type, castSigned(e.Type, v)
}

// powerGauge models RF transmit/receive power: temperature pulls it down,
// a clean plant holds it up, weather wobbles it. The model runs in dBmV;
// TenthdBmV captures are scaled back on the way out.
func powerGauge(n store.Node, env *Env, now time.Time) (gosnmp.Asn1BER, interface{}) {
	e := n.Entry
	base, scale := tenthScale(valueFloat(e.Value), 30)
	temp := env.Metric(correlate.MetricTemperature, 40)
	quality := env.Metric(correlate.MetricSignalQuality, 33)
	v := base * (1 - 0.005*(temp-40))
	v *= 0.9 + 0.2*clampf((quality-10)/30, 0, 1)
	v *= clock.WeatherVariation(now, env.Rand)
	v = applyJitter(v, jitterFor(env.DeviceType, store.PowerGauge), env, now)
	v = gaugeClamp(v, e.Behavior, -15, 15)
	return e.Type, castSigned(e.Type, v*scale)
}

func snrGauge(n store.Node, env *Env, now time.Time) (gosnmp.Asn1BER, interface{}) {
	e := n.Entry
	base, scale := tenthScale(valueFloat(e.Value), 100)
	if base <= 0 {
		base = 33
	}
	v := base * (1 - 0.2*env.utilization())
	v *= clock.WeatherVariation(now, env.Rand)
	v = applyJitter(v, jitterFor(env.DeviceType, store.SNRGauge), env, now)
	v = gaugeClamp(v, e.Behavior, 10, 40)
	env.SetMetric(correlate.MetricSignalQuality, v, now)
	return e.Type, castSigned(e.Type, v*scale)
}

func signalGauge(n store.Node, env *Env, now time.Time) (gosnmp.Asn1BER, interface{}) {
	e := n.Entry
	base := valueFloat(e.Value)
	v := base * clock.WeatherVariation(now, env.Rand) * env.distance
	v = applyJitter(v, jitterFor(env.DeviceType, store.SignalGauge), env, now)
	v = gaugeClamp(v, e.Behavior, 0, 100)
	return e.Type, castSigned(e.Type, v)
}

func temperatureGauge(n store.Node, env *Env, now time.Time) (gosnmp.Asn1BER, interface{}) {
	e := n.Entry
	base := valueFloat(e.Value)
	if base == 0 {
		base = 40
	}
	v := base + clock.DailyTemperatureOffset(now) + clock.SeasonalTemperatureOffset(now)
	v *= 1 + 0.1*clampf(env.Metric(correlate.MetricCPUUsage, 20)/100, 0, 1)
	v = applyJitter(v, jitterFor(env.DeviceType, store.TemperatureGauge), env, now)
	v = gaugeClamp(v, e.Behavior, -10, 85)
	env.SetMetric(correlate.MetricTemperature, v, now)
	return e.Type, castSigned(e.Type, v)
}

// uptimeTicks converts uptime to TimeTicks (hundredths of a second),
// wrapping at 2^32 like a real agent after ~497 days.
func uptimeTicks(uptime time.Duration) uint64 {
	ticks := uint64(uptime / (10 * time.Millisecond))
	return uint64(Wrap32(ticks))
}

// statusValue maps device health onto an operational status enum: healthy
// devices report their captured value (or up), degraded ones testing(3),
// failed ones down(2).
func statusValue(e *store.Entry, env *Env) interface{} {
	health := env.Health()
	errRate := env.Metric(correlate.MetricErrorRate, 0.01)
	switch {
	case health >= 0.8 && errRate < 0.5:
		if base, err := valueInt(e.Value); err == nil && base > 0 {
			return cast(e.Type, uint64(base))
		}
		return cast(e.Type, 1)
	case health >= 0.4:
		return cast(e.Type, 3)
	default:
		return cast(e.Type, 2)
	}
}

// variance returns the per-sample multiplicative factor for counters.
// Burst mode folds its spike in directly; every other mode layers the
// behavior's burst probability on top of its own texture.
func variance(b store.Behavior, env *Env, now time.Time) float64 {
	var f float64
	switch b.Variance {
	case store.VarianceGaussian:
		f = clampf(1+0.15*gaussian(env.Rand), 0.4, 1.8)
	case store.VarianceBurst:
		if b.BurstProbability > 0 && env.Rand.Float64() < b.BurstProbability {
			return 2 + 4*env.Rand.Float64()
		}
		return 1 + 0.05*(2*env.Rand.Float64()-1)
	case store.VarianceTimeCorrelated:
		// Slow six-hour swell, deterministic in wall time.
		f = 1 + 0.2*math.Sin(2*math.Pi*float64(now.Unix())/(6*3600))
	case store.VarianceDeviceSpecific:
		f = env.varianceBias
	default:
		f = 1 + 0.2*(2*env.Rand.Float64()-1)
	}
	if b.BurstProbability > 0 && env.Rand.Float64() < b.BurstProbability {
		f *= 2 + 3*env.Rand.Float64()
	}
	return f
}

// tenthScale splits a captured RF reading into its engineering value and
// output scale. DOCS-IF-MIB reports signal quality in TenthdB and channel
// power in TenthdBmV; a magnitude past limit cannot be a plain-dB figure,
// so the capture must be a tenth-unit one. The model and the correlation
// metrics always run in dB.
func tenthScale(base, limit float64) (float64, float64) {
	if base > limit || base < -limit {
		return base / 10, 10
	}
	return base, 1
}

// gaugeClamp applies the behavior's bounds, falling back to the kind's
// stock range when the behavior carries none.
func gaugeClamp(v float64, b store.Behavior, lo, hi float64) float64 {
	if b.Min != 0 || b.Max != 0 {
		lo, hi = b.Min, b.Max
	}
	return clampf(v, lo, hi)
}

// cast renders an unsigned quantity in the entry's declared wire type.
func cast(ber gosnmp.Asn1BER, v uint64) interface{} {
	switch ber {
	case gosnmp.Counter64:
		return v
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		return uint32(v & 0xffffffff)
	case gosnmp.Integer:
		if v > math.MaxInt32 {
			v = math.MaxInt32
		}
		return int(v)
	default:
		return v
	}
}

// castSigned renders a possibly negative gauge reading in the declared
// wire type. Unsigned types floor at zero.
func castSigned(ber gosnmp.Asn1BER, f float64) interface{} {
	n := int64(math.Round(f))
	switch ber {
	case gosnmp.Integer:
		return int(n)
	case gosnmp.Counter64:
		if n < 0 {
			n = 0
		}
		return uint64(n)
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.TimeTicks, gosnmp.Uinteger32:
		if n < 0 {
			n = 0
		}
		return uint32(n)
	default:
		return int(n)
	}
}

func valueUint64(v interface{}) (uint64, bool) {
	switch n := v.(type) {
	case uint64:
		return n, true
	case uint32:
		return uint64(n), true
	case uint:
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	default:
		return 0, false
	}
}

func valueInt(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case uint32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	default:
		return 0, errNotNumeric
	}
}

func valueFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
