package engine

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/narevent/REA/algorithms/tonal"
)

// Config holds every tunable of the analysis chain
type Config struct {
	// Capture
	SampleRate  int `json:"sample_rate"`
	CaptureSize int `json:"capture_size"` // raw buffer length handed to the engine
	WindowSize  int `json:"window_size"`  // analysis window centered inside the raw buffer

	// Estimation
	A4               float64 `json:"a4"`
	MinFreq          float64 `json:"min_freq"`
	MaxFreq          float64 `json:"max_freq"`
	YINThreshold     float64 `json:"yin_threshold"`
	DifferenceMethod string  `json:"difference_method"` // "direct" or "fft"

	// Smoothing
	SmoothingFactor float64 `json:"smoothing_factor"`
	SmoothingJumpHz float64 `json:"smoothing_jump_hz"`
	HistoryDepth    int     `json:"history_depth"`

	// Stabilization
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	SilenceThresholdDB  float64 `json:"silence_threshold_db"`
	StabilityThreshold  float64 `json:"stability_threshold"` // semitones
	BufferSize          int     `json:"buffer_size"`
	LockOverlap         int     `json:"lock_overlap"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	yin := tonal.DefaultYINParams(44100, 4096)
	smoother := tonal.DefaultSmootherParams()
	locker := tonal.DefaultLockerParams()

	return Config{
		SampleRate:  yin.SampleRate,
		CaptureSize: 8192,
		WindowSize:  yin.WindowSize,

		A4:               440.0,
		MinFreq:          yin.MinFreq,
		MaxFreq:          yin.MaxFreq,
		YINThreshold:     yin.Threshold,
		DifferenceMethod: string(yin.Difference),

		SmoothingFactor: smoother.Factor,
		SmoothingJumpHz: smoother.JumpHz,
		HistoryDepth:    smoother.HistoryDepth,

		ConfidenceThreshold: locker.ConfidenceThreshold,
		SilenceThresholdDB:  locker.SilenceThresholdDB,
		StabilityThreshold:  locker.StabilityThreshold,
		BufferSize:          locker.BufferSize,
		LockOverlap:         locker.LockOverlap,
	}
}

// LoadConfig reads a JSON file and overlays it on DefaultConfig. Keys missing from the file
// keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: failed to parse %s: %w", ErrConfiguration, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the configuration without allocating any analysis buffers
func (c Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample_rate %d must be positive", ErrConfiguration, c.SampleRate)
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("%w: window_size %d must be at least 2", ErrConfiguration, c.WindowSize)
	}
	if c.CaptureSize < c.WindowSize {
		return fmt.Errorf("%w: capture_size %d is smaller than window_size %d", ErrConfiguration, c.CaptureSize, c.WindowSize)
	}
	if c.A4 <= 0 {
		return fmt.Errorf("%w: a4 %g must be positive", ErrConfiguration, c.A4)
	}
	if c.MinFreq <= 0 || c.MaxFreq <= c.MinFreq {
		return fmt.Errorf("%w: frequency range [%g, %g]", ErrConfiguration, c.MinFreq, c.MaxFreq)
	}
	if c.MaxFreq > float64(c.SampleRate) {
		return fmt.Errorf("%w: max_freq %g is above the sample rate", ErrConfiguration, c.MaxFreq)
	}
	if c.YINThreshold <= 0 || c.YINThreshold >= 1 {
		return fmt.Errorf("%w: yin_threshold %g outside (0, 1)", ErrConfiguration, c.YINThreshold)
	}
	if maxPeriod := int(math.Floor(float64(c.SampleRate) / c.MinFreq)); maxPeriod >= c.WindowSize {
		return fmt.Errorf("%w: window_size %d cannot hold the %d sample period of min_freq %g Hz",
			ErrConfiguration, c.WindowSize, maxPeriod, c.MinFreq)
	}
	if _, err := tonal.ParseDifferenceMethod(c.DifferenceMethod); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold >= 1 {
		return fmt.Errorf("%w: confidence_threshold %g outside [0, 1)", ErrConfiguration, c.ConfidenceThreshold)
	}
	if c.SmoothingFactor < 0 || c.SmoothingFactor >= 1 {
		return fmt.Errorf("%w: smoothing_factor %g outside [0, 1)", ErrConfiguration, c.SmoothingFactor)
	}
	if c.SmoothingJumpHz <= 0 {
		return fmt.Errorf("%w: smoothing_jump_hz %g must be positive", ErrConfiguration, c.SmoothingJumpHz)
	}
	if c.HistoryDepth < 1 {
		return fmt.Errorf("%w: history_depth %d must be at least 1", ErrConfiguration, c.HistoryDepth)
	}
	if c.StabilityThreshold <= 0 {
		return fmt.Errorf("%w: stability_threshold %g must be positive", ErrConfiguration, c.StabilityThreshold)
	}
	if c.BufferSize < 1 || c.LockOverlap < 0 || c.LockOverlap >= c.BufferSize {
		return fmt.Errorf("%w: buffer_size %d / lock_overlap %d", ErrConfiguration, c.BufferSize, c.LockOverlap)
	}
	return nil
}

func (c Config) yinParams() (tonal.YINParams, error) {
	method, err := tonal.ParseDifferenceMethod(c.DifferenceMethod)
	if err != nil {
		return tonal.YINParams{}, err
	}
	return tonal.YINParams{
		SampleRate: c.SampleRate,
		WindowSize: c.WindowSize,
		MinFreq:    c.MinFreq,
		MaxFreq:    c.MaxFreq,
		Threshold:  c.YINThreshold,
		Difference: method,
	}, nil
}

func (c Config) smootherParams() tonal.SmootherParams {
	return tonal.SmootherParams{
		Factor:       c.SmoothingFactor,
		JumpHz:       c.SmoothingJumpHz,
		HistoryDepth: c.HistoryDepth,
	}
}

func (c Config) lockerParams() tonal.LockerParams {
	return tonal.LockerParams{
		ConfidenceThreshold: c.ConfidenceThreshold,
		SilenceThresholdDB:  c.SilenceThresholdDB,
		StabilityThreshold:  c.StabilityThreshold,
		BufferSize:          c.BufferSize,
		LockOverlap:         c.LockOverlap,
	}
}
