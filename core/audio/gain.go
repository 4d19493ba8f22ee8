package audio

import (
	"encoding/binary"
	"math"
)

// GainSource reports the current playback gain multiplier.
type GainSource interface {
	Gain() float64
}

// ScaleLinear16 applies gain to little-endian signed 16-bit samples in place.
// A trailing odd byte is left untouched.
func ScaleLinear16(samples []byte, gain float64) {
	if gain == 1 {
		return
	}
	if gain <= 0 {
		for i := range samples[:len(samples)&^1] {
			samples[i] = 0
		}
		return
	}

	for i := 0; i+1 < len(samples); i += 2 {
		sample := float64(int16(binary.LittleEndian.Uint16(samples[i:])))
		scaled := math.Round(sample * gain)
		scaled = max(math.MinInt16, min(math.MaxInt16, scaled))
		binary.LittleEndian.PutUint16(samples[i:], uint16(int16(scaled)))
	}
}

// ScaleInt16 applies gain to decoded samples in place.
func ScaleInt16(samples []int16, gain float64) {
	if gain == 1 {
		return
	}
	for i, sample := range samples {
		scaled := math.Round(float64(sample) * gain)
		samples[i] = int16(max(math.MinInt16, min(math.MaxInt16, scaled)))
	}
}
