package clock

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func TestDailyUtilizationRange(t *testing.T) {
	day := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	for m := 0; m < 24*60; m += 5 {
		at := day.Add(time.Duration(m) * time.Minute)
		f := DailyUtilization(at)
		if f < 0.2 || f > 1.8 {
			t.Fatalf("utilization %v at %s out of range", f, at.Format("15:04"))
		}
	}
}

func TestDailyUtilizationShape(t *testing.T) {
	day := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	night := DailyUtilization(day.Add(3 * time.Hour))
	business := DailyUtilization(day.Add(10 * time.Hour))
	lunch := DailyUtilization(day.Add(12*time.Hour + 30*time.Minute))
	evening := DailyUtilization(day.Add(19*time.Hour + 30*time.Minute))

	if night >= business {
		t.Fatalf("night %v should be below business %v", night, business)
	}
	if lunch >= business {
		t.Fatalf("lunch dip %v should be below plateau %v", lunch, business)
	}
	if evening <= business {
		t.Fatalf("evening peak %v should exceed business %v", evening, business)
	}
}

func TestDailyUtilizationPure(t *testing.T) {
	at := time.Date(2024, 7, 19, 20, 15, 42, 0, time.UTC)
	a := DailyUtilization(at)
	for i := 0; i < 100; i++ {
		if b := DailyUtilization(at); b != a {
			t.Fatalf("not deterministic: %v then %v", a, b)
		}
	}
}

func TestWeeklyPattern(t *testing.T) {
	// 2024-03-04 is a Monday.
	monday := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	wants := []float64{0.95, 1.05, 1.05, 1.00, 0.90}
	for i, want := range wants {
		got := WeeklyPattern(monday.AddDate(0, 0, i))
		if got != want {
			t.Fatalf("weekday %d factor = %v, want %v", i, got, want)
		}
	}

	for h := 0; h < 24; h++ {
		sat := WeeklyPattern(time.Date(2024, 3, 9, h, 0, 0, 0, time.UTC))
		if sat < 0.5 || sat > 0.8 {
			t.Fatalf("saturday factor %v at %dh out of band", sat, h)
		}
		sun := WeeklyPattern(time.Date(2024, 3, 10, h, 0, 0, 0, time.UTC))
		if sun < 0.3 || sun > 0.6 {
			t.Fatalf("sunday factor %v at %dh out of band", sun, h)
		}
	}
}

func TestSeasonalTemperatureOffset(t *testing.T) {
	july := SeasonalTemperatureOffset(time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC))
	january := SeasonalTemperatureOffset(time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC))
	if july < 14 || july > 15 {
		t.Fatalf("july offset = %v, want near +15", july)
	}
	if january > -13 {
		t.Fatalf("january offset = %v, want strongly negative", january)
	}
	for d := 0; d < 366; d += 7 {
		f := SeasonalTemperatureOffset(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d))
		if math.Abs(f) > 15 {
			t.Fatalf("seasonal offset %v exceeds ±15", f)
		}
	}
}

func TestDailyTemperatureOffset(t *testing.T) {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	coldest := DailyTemperatureOffset(day.Add(6 * time.Hour))
	warmest := DailyTemperatureOffset(day.Add(15 * time.Hour))
	if coldest != -5 {
		t.Fatalf("06:00 offset = %v, want -5", coldest)
	}
	if warmest != 5 {
		t.Fatalf("15:00 offset = %v, want +5", warmest)
	}
	for m := 0; m < 24*60; m += 10 {
		f := DailyTemperatureOffset(day.Add(time.Duration(m) * time.Minute))
		if f < -5 || f > 5 {
			t.Fatalf("daily offset %v out of ±5", f)
		}
	}
}

func TestWeatherVariationRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
		f := WeatherVariation(at, rng)
		if f < 0.70 || f > 1.05 {
			t.Fatalf("weather factor %v out of range at iteration %d", f, i)
		}
	}
}

func TestWeatherVariationSeedable(t *testing.T) {
	at := time.Date(2024, 11, 20, 18, 0, 0, 0, time.UTC)
	a := WeatherVariation(at, rand.New(rand.NewSource(42)))
	b := WeatherVariation(at, rand.New(rand.NewSource(42)))
	if a != b {
		t.Fatalf("same seed should reproduce: %v vs %v", a, b)
	}
}

func TestDevicePattern(t *testing.T) {
	evening := time.Date(2024, 3, 6, 20, 0, 0, 0, time.UTC)
	noonish := time.Date(2024, 3, 6, 14, 0, 0, 0, time.UTC)

	if DevicePattern("cable_modem", evening) <= DevicePattern("cable_modem", noonish) {
		t.Fatalf("cable modem pattern should peak in the evening")
	}
	if DevicePattern("server", noonish) <= DevicePattern("server", evening) {
		t.Fatalf("server pattern should peak during business hours")
	}
	if f := DevicePattern("unknown", evening); f != 1.0 {
		t.Fatalf("unknown device type factor = %v, want 1.0", f)
	}

	for h := 0; h < 24; h++ {
		at := time.Date(2024, 3, 6, h, 0, 0, 0, time.UTC)
		for _, dt := range []string{"cable_modem", "mta", "server", "router", "switch", "cmts"} {
			f := DevicePattern(dt, at)
			if f < 0.8 || f > 1.2 {
				t.Fatalf("%s pattern %v at %dh out of range", dt, f, h)
			}
		}
	}
}
