package windowing

import (
	"errors"
	"fmt"

	"github.com/mjibson/go-dsp/window"
)

// ErrShortBuffer is returned when the raw buffer cannot hold a full analysis window
var ErrShortBuffer = errors.New("raw buffer shorter than analysis window")

// Hann extracts a centered analysis window from a raw capture buffer and tapers it with a
// symmetric Hann window: w[i] = 0.5 * (1 - cos(2*pi*i/(N-1))).
type Hann struct {
	size         int
	coefficients []float64
}

// NewHann creates a Hann preprocessor for windows of size samples
func NewHann(size int) (*Hann, error) {
	if size < 2 {
		return nil, fmt.Errorf("window size must be at least 2, got %d", size)
	}
	return &Hann{
		size:         size,
		coefficients: window.Hann(size),
	}, nil
}

// Offset returns where the centered window starts inside a raw buffer of rawLen samples
func (h *Hann) Offset(rawLen int) int {
	return (rawLen - h.size) / 2
}

// Apply writes the tapered, centered window of raw into dst.
// dst must have exactly Size() elements; raw must have at least Size().
func (h *Hann) Apply(raw, dst []float64) error {
	if len(raw) < h.size {
		return fmt.Errorf("%w: have %d samples, need %d", ErrShortBuffer, len(raw), h.size)
	}
	if len(dst) != h.size {
		return fmt.Errorf("destination length (%d) doesn't match window size (%d)", len(dst), h.size)
	}

	start := h.Offset(len(raw))
	for i := range h.size {
		dst[i] = raw[start+i] * h.coefficients[i]
	}

	return nil
}

// ApplyInPlace tapers a signal that is already exactly one window long
func (h *Hann) ApplyInPlace(signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := range h.size {
		signal[i] *= h.coefficients[i]
	}

	return nil
}

// GetCoefficients returns a copy of the window coefficients
func (h *Hann) GetCoefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// GetSize returns the window size
func (h *Hann) GetSize() int {
	return h.size
}
