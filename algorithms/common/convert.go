package common

import (
	"encoding/binary"
	"math"

	"golang.org/x/exp/constraints"
)

// ToFloat64 widens float samples (e.g. float32 capture data) into dst, growing it as needed
func ToFloat64[T constraints.Float](src []T, dst []float64) []float64 {
	dst = grow(dst, len(src))
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

// IntsToFloat64 scales signed PCM integers of the given bit depth into [-1, 1)
func IntsToFloat64[T constraints.Signed](src []T, bitDepth int, dst []float64) []float64 {
	if bitDepth <= 0 || bitDepth > 32 {
		bitDepth = 16
	}
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))

	dst = grow(dst, len(src))
	for i, v := range src {
		dst[i] = float64(v) * scale
	}
	return dst
}

// Float32FromLE decodes little-endian IEEE-754 float32 samples into dst, ignoring a trailing
// partial sample
func Float32FromLE(data []byte, dst []float32) []float32 {
	n := len(data) / 4
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return dst
}

func grow(dst []float64, n int) []float64 {
	if cap(dst) < n {
		return make([]float64, n)
	}
	return dst[:n]
}
