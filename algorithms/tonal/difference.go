package tonal

import (
	"fmt"

	"github.com/mjibson/go-dsp/fft"

	"github.com/narevent/REA/algorithms/common"
)

// DifferenceMethod selects how the YIN difference function is computed
type DifferenceMethod string

const (
	// DifferenceDirect sums squared differences lag by lag, O(N*maxPeriod)
	DifferenceDirect DifferenceMethod = "direct"
	// DifferenceFFT derives the same values from energy prefix sums and an FFT autocorrelation
	DifferenceFFT DifferenceMethod = "fft"
)

// ParseDifferenceMethod maps a config string to a DifferenceMethod; empty means direct
func ParseDifferenceMethod(name string) (DifferenceMethod, error) {
	switch DifferenceMethod(name) {
	case "", DifferenceDirect:
		return DifferenceDirect, nil
	case DifferenceFFT:
		return DifferenceFFT, nil
	default:
		return "", fmt.Errorf("%w: unknown difference method %q", ErrInvalidParams, name)
	}
}

// differenceFunction fills diff[1:maxPeriod] with
// d(tau) = sum_{i=0}^{N-tau-1} (x[i] - x[i+tau])^2. diff[0] is always 0.
type differenceFunction interface {
	compute(frame, diff []float64)
}

func newDifferenceFunction(method DifferenceMethod, windowSize, maxPeriod int) (differenceFunction, error) {
	switch method {
	case "", DifferenceDirect:
		return &directDifference{maxPeriod: maxPeriod}, nil
	case DifferenceFFT:
		return newFFTDifference(windowSize, maxPeriod), nil
	default:
		return nil, fmt.Errorf("%w: unknown difference method %q", ErrInvalidParams, method)
	}
}

type directDifference struct {
	maxPeriod int
}

func (d *directDifference) compute(frame, diff []float64) {
	n := len(frame)
	diff[0] = 0
	for tau := 1; tau < d.maxPeriod; tau++ {
		sum := 0.0
		for i := 0; i < n-tau; i++ {
			delta := frame[i] - frame[i+tau]
			sum += delta * delta
		}
		diff[tau] = sum
	}
}

// fftDifference expands d(tau) = E[0,N-tau) + E[tau,N) - 2*r(tau), where E is frame energy
// over a range and r the linear autocorrelation. The frame is zero-padded to at least
// N+maxPeriod so the circular correlation does not wrap into the searched lags.
type fftDifference struct {
	maxPeriod int
	padded    []float64
	energy    []float64 // prefix sums of x^2, energy[k] = sum_{i<k} x[i]^2
}

func newFFTDifference(windowSize, maxPeriod int) *fftDifference {
	return &fftDifference{
		maxPeriod: maxPeriod,
		padded:    make([]float64, common.NextPowerOfTwo(windowSize+maxPeriod)),
		energy:    make([]float64, windowSize+1),
	}
}

func (d *fftDifference) compute(frame, diff []float64) {
	n := len(frame)

	d.energy[0] = 0
	for i, v := range frame {
		d.energy[i+1] = d.energy[i] + v*v
	}

	copy(d.padded, frame)
	clear(d.padded[n:])

	spectrum := fft.FFTReal(d.padded)
	for k, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[k] = complex(re*re+im*im, 0)
	}
	acf := fft.IFFT(spectrum)

	diff[0] = 0
	for tau := 1; tau < d.maxPeriod; tau++ {
		v := d.energy[n-tau] + (d.energy[n] - d.energy[tau]) - 2*real(acf[tau])
		if v < 0 {
			// rounding noise around a perfect period
			v = 0
		}
		diff[tau] = v
	}
}
