package engine

import (
	"errors"

	"github.com/narevent/REA/algorithms/windowing"
)

var (
	// ErrConfiguration is returned when a Config cannot drive the analysis chain
	ErrConfiguration = errors.New("invalid engine configuration")

	// ErrCaptureUnavailable is returned when an audio source fails to start
	ErrCaptureUnavailable = errors.New("audio capture unavailable")

	// ErrShortBuffer is returned when a raw buffer is shorter than the analysis window
	ErrShortBuffer = windowing.ErrShortBuffer
)
