package faults

import "math/rand"

// Corrupt damages an encoded response frame according to the condition's
// mode. The input is a valid BER message; the output is deliberately not.
// A fresh slice is returned so encode buffers stay reusable.
func Corrupt(frame []byte, cfg MalformedConfig, rng *rand.Rand) []byte {
	if len(frame) == 0 {
		return frame
	}
	out := make([]byte, len(frame))
	copy(out, frame)

	severity := cfg.Severity
	if severity <= 0 || severity > 1 {
		severity = 0.3
	}

	switch cfg.Mode {
	case CorruptTruncated:
		keep := int(float64(len(out)) * (1 - severity))
		if keep < 2 {
			keep = 2
		}
		return out[:keep]

	case CorruptInvalidBER:
		// Destroy the outer SEQUENCE tag, then scatter damage behind it.
		out[0] = 0xff
		if len(out) > 2 {
			flipRandom(out[2:], severity, rng)
		}
		return out

	case CorruptWrongCommunity:
		// The community is the first OCTET STRING after the version
		// integer; invert it so auth checks on the poller side fail.
		if i := findOctetString(out); i >= 0 {
			n := int(out[i+1])
			for j := i + 2; j < i+2+n && j < len(out); j++ {
				out[j] ^= 0xff
			}
		}
		return out

	case CorruptInvalidPDUType:
		// Context-class tags 0xa0..0xa8 carry the PDU type.
		for i, b := range out {
			if b >= 0xa0 && b <= 0xa8 {
				out[i] = 0xaf
				break
			}
		}
		return out

	default: // CorruptVarbinds
		// Varbinds sit in the back half of the frame. The trailing byte
		// always takes a hit, so a lucky roll cannot hand back a frame
		// that still parses.
		flipRandom(out[len(out)/2:], severity, rng)
		out[len(out)-1] ^= 0x55
		return out
	}
}

// findOctetString locates the first OCTET STRING tag with a short-form
// length, skipping the header bytes.
func findOctetString(b []byte) int {
	for i := 2; i < len(b)-1; i++ {
		if b[i] == 0x04 && b[i+1] < 0x80 {
			return i
		}
	}
	return -1
}

func flipRandom(b []byte, severity float64, rng *rand.Rand) {
	if len(b) == 0 {
		return
	}
	n := int(float64(len(b)) * severity / 4)
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		b[rng.Intn(len(b))] ^= byte(1 + rng.Intn(255))
	}
}
