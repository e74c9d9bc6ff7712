package tonal

import (
	"fmt"
	"math"

	"github.com/narevent/REA/algorithms/common"
)

// SmootherParams contains parameters for temporal pitch smoothing
type SmootherParams struct {
	Factor       float64 `json:"smoothing_factor"`  // weight of the previous smoothed value
	JumpHz       float64 `json:"smoothing_jump_hz"` // deltas above this bypass smoothing
	HistoryDepth int     `json:"history_depth"`
}

// DefaultSmootherParams returns the default smoothing configuration
func DefaultSmootherParams() SmootherParams {
	return SmootherParams{
		Factor:       0.7,
		JumpHz:       50.0,
		HistoryDepth: 5,
	}
}

// Smoother applies exponential smoothing to successive pitch estimates. Large jumps pass
// through untouched so note changes are not smeared into glides.
type Smoother struct {
	params  SmootherParams
	history *common.CircularBuffer
}

// NewSmoother creates a smoother
func NewSmoother(params SmootherParams) (*Smoother, error) {
	if params.Factor < 0 || params.Factor >= 1 {
		return nil, fmt.Errorf("%w: smoothing factor %g outside [0, 1)", ErrInvalidParams, params.Factor)
	}
	if params.JumpHz <= 0 {
		return nil, fmt.Errorf("%w: smoothing jump %g Hz must be positive", ErrInvalidParams, params.JumpHz)
	}
	if params.HistoryDepth < 1 {
		return nil, fmt.Errorf("%w: history depth %d must be at least 1", ErrInvalidParams, params.HistoryDepth)
	}

	return &Smoother{
		params:  params,
		history: common.NewCircularBuffer(params.HistoryDepth),
	}, nil
}

// Update smooths the frequency of est against the previous smoothed value and records the
// result. Confidence passes through unchanged.
func (s *Smoother) Update(est PitchEstimate) PitchEstimate {
	if !common.IsFinite(est.Frequency) {
		est = PitchEstimate{}
	}

	out := est
	if last, ok := s.history.Last(); ok && math.Abs(last-est.Frequency) <= s.params.JumpHz {
		out.Frequency = s.params.Factor*last + (1-s.params.Factor)*est.Frequency
	}

	s.history.Push(out.Frequency)
	return out
}

// History returns the retained smoothed frequencies, oldest first
func (s *Smoother) History() []float64 {
	out := make([]float64, s.history.Available())
	s.history.Peek(out)
	return out
}

// Reset clears the smoothing history
func (s *Smoother) Reset() {
	s.history.Clear()
}
