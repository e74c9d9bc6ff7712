package engine

import (
	"fmt"

	"github.com/narevent/REA/algorithms/common"
	"github.com/narevent/REA/algorithms/tonal"
	"github.com/narevent/REA/algorithms/windowing"
	"github.com/narevent/REA/logging"
)

// Frame is the outcome of one analysis pass
type Frame struct {
	Index    uint64              `json:"index"`
	LevelDB  float64             `json:"level_db"`
	Raw      tonal.PitchEstimate `json:"raw"`
	Smoothed tonal.PitchEstimate `json:"smoothed"`

	// Reading is the tentative note for this frame, silence when it did not qualify
	Reading           tonal.Note      `json:"reading"`
	ReadingConfidence float64         `json:"reading_confidence"`
	State             tonal.LockState `json:"state"`

	Event *Event `json:"event,omitempty"`
}

// Engine runs the full chain (window, estimate, smooth, quantize, stabilize) once per raw
// buffer. All buffers are allocated in New and reused for every frame.
//
// An Engine is owned by a single session and is not safe for concurrent use.
type Engine struct {
	config Config

	window    *windowing.Hann
	yin       *tonal.YIN
	smoother  *tonal.Smoother
	quantizer *tonal.Quantizer
	locker    *tonal.NoteLocker

	frame []float64
	index uint64

	logger logging.Logger
}

// New validates cfg and builds an engine. Every failure wraps ErrConfiguration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	window, err := windowing.NewHann(cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	yinParams, err := cfg.yinParams()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	yin, err := tonal.NewYIN(yinParams)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	smoother, err := tonal.NewSmoother(cfg.smootherParams())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	quantizer, err := tonal.NewQuantizer(cfg.A4)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	locker, err := tonal.NewNoteLocker(cfg.lockerParams(), quantizer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	return &Engine{
		config:    cfg,
		window:    window,
		yin:       yin,
		smoother:  smoother,
		quantizer: quantizer,
		locker:    locker,
		frame:     make([]float64, cfg.WindowSize),
		logger: logging.WithFields(logging.Fields{
			"component": "engine",
		}),
	}, nil
}

// Process analyses one raw buffer, measuring its level from the samples themselves
func (e *Engine) Process(raw []float64) (Frame, error) {
	return e.ProcessWithLevel(raw, common.LevelDBFS(raw))
}

// ProcessWithLevel analyses one raw buffer whose RMS level in dBFS is already known
func (e *Engine) ProcessWithLevel(raw []float64, levelDB float64) (Frame, error) {
	if err := e.window.Apply(raw, e.frame); err != nil {
		return Frame{}, err
	}

	est, err := e.yin.Estimate(e.frame)
	if err != nil {
		return Frame{}, err
	}
	smoothed := e.smoother.Update(est)
	lockEvent, emitted := e.locker.Update(smoothed, levelDB)
	reading, readingConfidence := e.locker.Current()

	result := Frame{
		Index:             e.index,
		LevelDB:           levelDB,
		Raw:               est,
		Smoothed:          smoothed,
		Reading:           reading,
		ReadingConfidence: readingConfidence,
		State:             e.locker.State(),
	}

	if emitted {
		ev := newEvent(lockEvent, e.index)
		result.Event = &ev

		e.logger.Debug("Note event", logging.Fields{
			"frame":        e.index,
			"type":         ev.Type,
			"label":        ev.Label,
			"frequency_hz": ev.FrequencyHz,
			"cents":        ev.Cents,
		})
	}

	e.index++
	return result, nil
}

// Current returns the tentative note being heard right now and its confidence
func (e *Engine) Current() (tonal.Note, float64) {
	return e.locker.Current()
}

// Quantizer returns the quantizer the engine reports notes with
func (e *Engine) Quantizer() *tonal.Quantizer {
	return e.quantizer
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.config
}

// Frames returns how many frames have been processed since the last reset
func (e *Engine) Frames() uint64 {
	return e.index
}

// Reset clears the note buffer, smoothing history and last reported note
func (e *Engine) Reset() {
	e.smoother.Reset()
	e.locker.Reset()
	clear(e.frame)
	e.index = 0
}
