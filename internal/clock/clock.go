// Package clock derives traffic and environment factors from wall-clock
// time. DailyUtilization and WeeklyPattern are pure functions of the
// timestamp so simulated counters stay reproducible; only WeatherVariation
// draws randomness, and the generator is passed in by the caller.
package clock

import (
	"math"
	"math/rand"
	"time"
)

// DailyUtilization maps the time of day to a load factor in [0.2, 1.8]:
// overnight trough, morning ramp, business plateau with a lunch dip, an
// evening residential peak, and a late decline. Piecewise cosine blends
// keep the segment joins smooth.
func DailyUtilization(t time.Time) float64 {
	h := hourOfDay(t)

	var f float64
	switch {
	case h < 5:
		// Overnight trough.
		f = 0.25 + 0.05*math.Sin(math.Pi*h/5)
	case h < 9:
		// Morning ramp 0.3 → 1.2.
		f = 0.3 + 0.9*easeIn((h-5)/4)
	case h < 17:
		// Business plateau with a dip around 12:30.
		f = 1.2 - 0.15*math.Exp(-sq(h-12.5)/0.5)
	case h < 18:
		// Hand-off from business to residential load.
		f = 1.2 + 0.2*easeIn(h-17)
	case h < 21:
		// Residential peak. The high-frequency term stands in for
		// evening burstiness without breaking determinism; its envelope
		// zeroes at both segment joins.
		env := math.Sin(math.Pi * (h - 18) / 3)
		f = 1.4 + 0.3*env + 0.06*env*math.Sin(2*math.Pi*(h-18)*1.7)
	default:
		// Decline 1.4 → 0.3.
		f = 0.3 + 1.1*(1-easeIn((h-21)/3))
	}

	return clamp(f, 0.2, 1.8)
}

// WeeklyPattern scales utilization by weekday. Weekends vary smoothly
// within their documented bands (Saturday 0.5–0.8, Sunday 0.3–0.6).
func WeeklyPattern(t time.Time) float64 {
	h := hourOfDay(t)
	switch t.Weekday() {
	case time.Monday:
		return 0.95
	case time.Tuesday, time.Wednesday:
		return 1.05
	case time.Thursday:
		return 1.00
	case time.Friday:
		return 0.90
	case time.Saturday:
		return 0.65 + 0.15*math.Sin(2*math.Pi*(h-9)/24)
	default: // Sunday
		return 0.45 + 0.15*math.Sin(2*math.Pi*(h-9)/24)
	}
}

// SeasonalTemperatureOffset is a ±15 °C sinusoid over the year peaking
// around July 1 (northern-hemisphere bias, same as the device fleet).
func SeasonalTemperatureOffset(t time.Time) float64 {
	doy := float64(t.YearDay())
	return 15 * math.Cos(2*math.Pi*(doy-182)/365.25)
}

// DailyTemperatureOffset is a ±5 °C swing with the minimum at 06:00 and the
// maximum at 15:00. The rise (9 h) and fall (15 h) halves use separate
// cosine segments so both extremes land where observed.
func DailyTemperatureOffset(t time.Time) float64 {
	h := hourOfDay(t)
	if h >= 6 && h < 15 {
		return -5 * math.Cos(math.Pi*(h-6)/9)
	}
	if h < 6 {
		h += 24
	}
	return 5 * math.Cos(math.Pi*(h-15)/15)
}

// WeatherVariation draws a signal-attenuation factor in [0.70, 1.05]. Bad
// weather is more likely in winter and during the evening; rng is supplied
// by the caller so devices can be seeded deterministically.
func WeatherVariation(t time.Time, rng *rand.Rand) float64 {
	p := 0.15 + 0.10*winterFactor(t) + 0.05*eveningFactor(t)
	var f float64
	if rng.Float64() < p {
		// Degraded: rain fade, wet plant, wind.
		f = 0.70 + 0.25*rng.Float64()
	} else {
		f = 0.95 + 0.10*rng.Float64()
	}
	return clamp(f, 0.70, 1.05)
}

// DevicePattern biases utilization by role: residential gear peaks in the
// evening, infrastructure follows business hours. Factor stays in
// [0.8, 1.2].
func DevicePattern(deviceType string, t time.Time) float64 {
	h := hourOfDay(t)
	switch deviceType {
	case "cable_modem", "mta":
		// Evening-heavy: peak near 20:00.
		return 1.0 + 0.2*math.Cos(2*math.Pi*(h-20)/24)
	case "server", "router", "switch", "cmts":
		// Business-heavy: peak near 14:00.
		return 1.0 + 0.2*math.Cos(2*math.Pi*(h-14)/24)
	default:
		return 1.0
	}
}

func hourOfDay(t time.Time) float64 {
	return float64(t.Hour()) + float64(t.Minute())/60 + float64(t.Second())/3600
}

// easeIn is a cosine ease over x in [0,1].
func easeIn(x float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return (1 - math.Cos(math.Pi*x)) / 2
}

func winterFactor(t time.Time) float64 {
	doy := float64(t.YearDay())
	return (1 - math.Cos(2*math.Pi*(doy-182)/365.25)) / 2
}

func eveningFactor(t time.Time) float64 {
	h := hourOfDay(t)
	if h >= 17 && h <= 22 {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func sq(x float64) float64 { return x * x }
