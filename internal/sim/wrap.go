package sim

import "math/rand"

// Wrap32 reduces an accumulated count to Counter32 range.
func Wrap32(v uint64) uint32 {
	return uint32(v & 0xffffffff)
}

// Wrap64 reduces to Counter64 range. uint64 arithmetic already wraps at
// 2^64; the function exists so call sites read the same as Wrap32.
func Wrap64(v uint64) uint64 {
	return v
}

// wrapQuirk adds the small post-wrap offsets some device families show
// after a counter rolls over (firmware re-seeding its counters). Bounded to
// 50 for 32-bit and 5 for 64-bit counters; applied only when the counter
// actually wrapped so monotonicity between wraps is untouched.
func wrapQuirk(deviceType string, bits int, wrapped bool, rng *rand.Rand) uint64 {
	if !wrapped {
		return 0
	}
	switch deviceType {
	case "cable_modem", "mta":
		if bits == 64 {
			return uint64(rng.Intn(6))
		}
		return uint64(rng.Intn(51))
	case "switch":
		// Buffered counter flush: a fixed small skid.
		if bits == 64 {
			return 2
		}
		return 16
	default:
		return 0
	}
}
