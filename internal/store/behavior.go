package store

// Kind names a value-synthesis strategy for a profile entry.
type Kind string

const (
	TrafficCounter   Kind = "traffic_counter"
	PacketCounter    Kind = "packet_counter"
	ErrorCounter     Kind = "error_counter"
	UtilizationGauge Kind = "utilization_gauge"
	CPUGauge         Kind = "cpu_gauge"
	PowerGauge       Kind = "power_gauge"
	SNRGauge         Kind = "snr_gauge"
	SignalGauge      Kind = "signal_gauge"
	TemperatureGauge Kind = "temperature_gauge"
	UptimeCounter    Kind = "uptime_counter"
	StatusEnum       Kind = "status_enum"
	StaticValue      Kind = "static_value"
)

// VarianceMode selects how a counter's rate fluctuates between samples.
type VarianceMode string

const (
	VarianceUniform        VarianceMode = "uniform"
	VarianceGaussian       VarianceMode = "gaussian"
	VarianceBurst          VarianceMode = "burst"
	VarianceTimeCorrelated VarianceMode = "time_correlated"
	VarianceDeviceSpecific VarianceMode = "device_specific"
)

// Behavior tells the simulator how an object's value evolves over time.
// Counters use RateMin/RateMax (units per second, except error counters
// which count per hour); gauges use Min/Max as clamp bounds.
type Behavior struct {
	Kind             Kind
	RateMin          float64
	RateMax          float64
	Min              float64
	Max              float64
	Variance         VarianceMode
	BurstProbability float64
	WrapBits         int    // 32 or 64; counter modulus
	CounterpartOID   string // packet counters: octets column on the same row
}

// IsCounter reports whether the behavior produces a monotonically
// increasing value between reboots.
func (b Behavior) IsCounter() bool {
	switch b.Kind {
	case TrafficCounter, PacketCounter, ErrorCounter, UptimeCounter:
		return true
	}
	return false
}

// DefaultBehavior returns the stock parameters for a kind. The analyzer
// starts from these and the loader may override per device group.
func DefaultBehavior(kind Kind) Behavior {
	switch kind {
	case TrafficCounter:
		return Behavior{Kind: kind, RateMin: 1_000, RateMax: 125_000_000, Variance: VarianceUniform, BurstProbability: 0.05, WrapBits: 32}
	case PacketCounter:
		return Behavior{Kind: kind, RateMin: 100, RateMax: 100_000, Variance: VarianceBurst, BurstProbability: 0.10, WrapBits: 32}
	case ErrorCounter:
		return Behavior{Kind: kind, RateMin: 0.1, RateMax: 20, Variance: VarianceUniform, BurstProbability: 0.02, WrapBits: 32}
	case UtilizationGauge:
		return Behavior{Kind: kind, Min: 0, Max: 100, Variance: VarianceGaussian}
	case CPUGauge:
		return Behavior{Kind: kind, Min: 0, Max: 100, Variance: VarianceGaussian, BurstProbability: 0.05}
	case PowerGauge:
		return Behavior{Kind: kind, Min: -15, Max: 15, Variance: VarianceUniform}
	case SNRGauge:
		return Behavior{Kind: kind, Min: 10, Max: 40, Variance: VarianceGaussian}
	case SignalGauge:
		return Behavior{Kind: kind, Min: 0, Max: 100, Variance: VarianceUniform}
	case TemperatureGauge:
		return Behavior{Kind: kind, Min: -10, Max: 85, Variance: VarianceGaussian}
	case UptimeCounter:
		return Behavior{Kind: kind}
	case StatusEnum:
		return Behavior{Kind: kind}
	default:
		return Behavior{Kind: StaticValue}
	}
}

// conservativeCounter covers Counter32/64 objects the analyzer cannot
// classify more precisely.
func conservativeCounter() Behavior {
	return Behavior{Kind: TrafficCounter, RateMin: 10, RateMax: 1_000, Variance: VarianceUniform, WrapBits: 32}
}
