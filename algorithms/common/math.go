package common

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SilenceFloorDB is reported for digital silence instead of -Inf
const SilenceFloorDB = -100.0

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// LevelDBFS returns the RMS level of data in dBFS.
// Empty or all-zero input reports SilenceFloorDB.
func LevelDBFS(data []float64) float64 {
	rms := RMS(data)
	if rms == 0 || !IsFinite(rms) {
		return SilenceFloorDB
	}
	return 20 * math.Log10(rms)
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// RoundHalfUp rounds to the nearest integer with ties toward +Inf
func RoundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}

// NextPowerOfTwo returns the smallest power of two >= n
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
