package util

import "math"

// Clamp01 limits v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ToPCM16 converts a float sample in [-1, 1] to signed 16-bit, saturating
// out-of-range input.
func ToPCM16(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	v = max(-1, min(1, v))
	return int16(math.Round(v * math.MaxInt16))
}

// PCMToFloat scales a signed integer sample of the given bit depth to
// [-1, 1). A non-positive depth is treated as 16 bits.
func PCMToFloat(v int, bitDepth int) float32 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	return float32(float64(v) / math.Ldexp(1, bitDepth-1))
}
