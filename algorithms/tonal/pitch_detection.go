package tonal

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/narevent/REA/algorithms/common"
)

// ErrInvalidParams is returned when estimator, smoother, quantizer or locker parameters
// cannot describe a working analysis chain
var ErrInvalidParams = errors.New("invalid pitch analysis parameters")

// cmndEpsilon keeps the cumulative mean normalization finite on near-silent frames
const cmndEpsilon = 1e-6

// PitchEstimate is a single-frame fundamental frequency reading.
// The zero value means "no pitch".
type PitchEstimate struct {
	Frequency  float64 `json:"frequency"`  // Hz, 0 when unpitched
	Confidence float64 `json:"confidence"` // 0-1
}

// IsPitched reports whether the estimate carries a usable frequency
func (p PitchEstimate) IsPitched() bool {
	return p.Frequency > 0
}

// YINParams contains parameters for the YIN estimator
type YINParams struct {
	SampleRate int              `json:"sample_rate"`
	WindowSize int              `json:"window_size"`
	MinFreq    float64          `json:"min_freq"`      // lowest detectable fundamental (Hz)
	MaxFreq    float64          `json:"max_freq"`      // highest detectable fundamental (Hz)
	Threshold  float64          `json:"yin_threshold"` // absolute CMND threshold
	Difference DifferenceMethod `json:"difference_method"`
}

// DefaultYINParams returns the tuned defaults for vocal and instrument input
func DefaultYINParams(sampleRate, windowSize int) YINParams {
	return YINParams{
		SampleRate: sampleRate,
		WindowSize: windowSize,
		MinFreq:    80.0,   // ~E2
		MaxFreq:    1200.0, // ~D6
		Threshold:  0.15,
		Difference: DifferenceDirect,
	}
}

// YIN estimates the fundamental frequency of a windowed frame using the cumulative mean
// normalized difference function with absolute thresholding and parabolic refinement.
//
// Scratch buffers are allocated once; an estimator must not be shared between goroutines.
type YIN struct {
	params    YINParams
	minPeriod int
	maxPeriod int

	diff []float64
	cmnd []float64

	difference differenceFunction
}

// NewYIN creates a YIN estimator. The lag search range [sr/maxFreq, sr/minFreq) must fit
// inside the analysis window.
func NewYIN(params YINParams) (*YIN, error) {
	if params.SampleRate <= 0 || params.WindowSize <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d and window size %d must be positive",
			ErrInvalidParams, params.SampleRate, params.WindowSize)
	}
	if params.MinFreq <= 0 || params.MaxFreq <= params.MinFreq {
		return nil, fmt.Errorf("%w: frequency range [%g, %g] Hz", ErrInvalidParams, params.MinFreq, params.MaxFreq)
	}
	if params.Threshold <= 0 || params.Threshold >= 1 {
		return nil, fmt.Errorf("%w: yin threshold %g outside (0, 1)", ErrInvalidParams, params.Threshold)
	}

	sr := float64(params.SampleRate)
	minPeriod := int(math.Floor(sr / params.MaxFreq))
	maxPeriod := int(math.Floor(sr / params.MinFreq))

	if minPeriod < 1 {
		return nil, fmt.Errorf("%w: max frequency %g Hz is above the sample rate", ErrInvalidParams, params.MaxFreq)
	}
	if maxPeriod >= params.WindowSize {
		return nil, fmt.Errorf("%w: window of %d samples cannot hold a %d sample period (min freq %g Hz)",
			ErrInvalidParams, params.WindowSize, maxPeriod, params.MinFreq)
	}
	if maxPeriod <= minPeriod {
		return nil, fmt.Errorf("%w: empty lag range [%d, %d)", ErrInvalidParams, minPeriod, maxPeriod)
	}

	difference, err := newDifferenceFunction(params.Difference, params.WindowSize, maxPeriod)
	if err != nil {
		return nil, err
	}

	return &YIN{
		params:     params,
		minPeriod:  minPeriod,
		maxPeriod:  maxPeriod,
		diff:       make([]float64, maxPeriod),
		cmnd:       make([]float64, maxPeriod),
		difference: difference,
	}, nil
}

// Estimate returns the pitch of a single windowed frame. Degenerate input (silence, NaN or
// Inf anywhere along the way) yields the zero estimate rather than an error; the error is
// reserved for frames of the wrong length.
func (y *YIN) Estimate(frame []float64) (PitchEstimate, error) {
	if len(frame) != y.params.WindowSize {
		return PitchEstimate{}, fmt.Errorf("frame length (%d) doesn't match window size (%d)",
			len(frame), y.params.WindowSize)
	}

	energy := floats.Dot(frame, frame)
	if energy == 0 || !common.IsFinite(energy) {
		return PitchEstimate{}, nil
	}

	y.difference.compute(frame, y.diff)
	if !y.normalize() {
		return PitchEstimate{}, nil
	}

	tau := y.selectPeriod()
	if tau <= 0 {
		return PitchEstimate{}, nil
	}

	refined := float64(tau)
	if tau > 1 && tau < y.maxPeriod-1 {
		if offset, ok := common.ParabolicOffset(y.cmnd[tau-1], y.cmnd[tau], y.cmnd[tau+1]); ok {
			refined += offset
		}
	}

	frequency := float64(y.params.SampleRate) / refined
	if !common.IsFinite(frequency) || frequency <= 0 {
		return PitchEstimate{}, nil
	}

	return PitchEstimate{
		Frequency:  frequency,
		Confidence: math.Max(0, 1-y.cmnd[tau]),
	}, nil
}

// normalize turns the difference function into the CMND in place and reports whether every
// value is finite
func (y *YIN) normalize() bool {
	y.cmnd[0] = 1.0

	runningSum := 0.0
	for tau := 1; tau < y.maxPeriod; tau++ {
		runningSum += y.diff[tau]
		y.cmnd[tau] = y.diff[tau] / ((runningSum / float64(tau)) + cmndEpsilon)
		if !common.IsFinite(y.cmnd[tau]) {
			return false
		}
	}
	return true
}

// selectPeriod finds the first dip below the threshold, follows it down to its local
// minimum, and falls back to the global minimum of the search range
func (y *YIN) selectPeriod() int {
	for tau := y.minPeriod; tau < y.maxPeriod; tau++ {
		if y.cmnd[tau] < y.params.Threshold {
			for tau+1 < y.maxPeriod && y.cmnd[tau+1] < y.cmnd[tau] {
				tau++
			}
			return tau
		}
	}

	best := 0
	minVal := math.Inf(1)
	for tau := y.minPeriod; tau < y.maxPeriod; tau++ {
		if y.cmnd[tau] < minVal {
			minVal = y.cmnd[tau]
			best = tau
		}
	}
	return best
}

// MinPeriod returns the shortest lag searched, in samples
func (y *YIN) MinPeriod() int {
	return y.minPeriod
}

// MaxPeriod returns the exclusive upper bound of the lag search, in samples
func (y *YIN) MaxPeriod() int {
	return y.maxPeriod
}

// GetParameters returns the estimator parameters
func (y *YIN) GetParameters() YINParams {
	return y.params
}
