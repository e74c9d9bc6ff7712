package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/narevent/REA/engine"
	"github.com/narevent/REA/logging"
)

// ErrAlreadyRunning is returned when Run is called on a driver that is still running
var ErrAlreadyRunning = errors.New("session already running")

// Handler receives every emitted note event
type Handler func(engine.Event)

// FrameHandler receives the full result of every analysis pass
type FrameHandler func(engine.Frame)

// Option configures a Driver
type Option func(*Driver)

// WithInterval paces analysis at most once per interval, like a display refresh.
// Zero runs as fast as the source delivers buffers.
func WithInterval(interval time.Duration) Option {
	return func(d *Driver) {
		d.interval = interval
	}
}

// WithLogger sets the logger; the default derives one from the global logger
func WithLogger(logger logging.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithHandler sets the note event callback
func WithHandler(h Handler) Option {
	return func(d *Driver) {
		d.handler = h
	}
}

// WithFrameHandler sets the per-frame callback
func WithFrameHandler(h FrameHandler) Option {
	return func(d *Driver) {
		d.frameHandler = h
	}
}

// Stats summarises a finished run
type Stats struct {
	SessionID string        `json:"session_id"`
	Frames    uint64        `json:"frames"`
	Locked    int           `json:"locked"`
	Silences  int           `json:"silences"`
	Duration  time.Duration `json:"duration"`
}

// Driver pulls capture buffers from a Source, runs them through an Engine one at a time and
// relays the resulting events
type Driver struct {
	engine *engine.Engine
	source Source
	raw    []float64

	interval     time.Duration
	handler      Handler
	frameHandler FrameHandler
	logger       logging.Logger

	running atomic.Bool

	mu   sync.Mutex
	last Stats
}

// NewDriver builds the engine for cfg and binds it to src
func NewDriver(cfg engine.Config, src Source, opts ...Option) (*Driver, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source is required", engine.ErrConfiguration)
	}

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}

	d := &Driver{
		engine: eng,
		source: src,
		raw:    make([]float64, cfg.CaptureSize),
		logger: logging.WithFields(logging.Fields{
			"component": "session",
		}),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.interval < 0 {
		return nil, fmt.Errorf("%w: negative interval %s", engine.ErrConfiguration, d.interval)
	}

	return d, nil
}

// Run processes buffers until the source is exhausted or ctx is cancelled. Both end the
// session cleanly and return nil. A source that fails to start yields ErrCaptureUnavailable.
// The engine is reset before the first frame and after the last.
func (d *Driver) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	stats := Stats{SessionID: uuid.New().String()}
	ctx = logging.ContextWithFields(ctx, logging.Fields{"session_id": stats.SessionID})
	logger := d.logger.WithContext(ctx)

	d.engine.Reset()
	if err := d.source.Start(ctx); err != nil {
		logger.Error(err, "Failed to start audio source")
		return fmt.Errorf("%w: %w", engine.ErrCaptureUnavailable, err)
	}

	started := time.Now()
	logger.Info("Session started", logging.Fields{
		"interval":     d.interval.String(),
		"capture_size": len(d.raw),
	})

	err := d.loop(ctx, &stats)

	if closeErr := d.source.Close(); closeErr != nil {
		logger.Warn("Failed to close audio source", logging.Fields{"error": closeErr.Error()})
	}
	stats.Frames = d.engine.Frames()
	stats.Duration = time.Since(started)
	d.engine.Reset()
	d.mu.Lock()
	d.last = stats
	d.mu.Unlock()

	if err != nil {
		logger.Error(err, "Session failed", logging.Fields{"frames": stats.Frames})
		return err
	}

	logger.Info("Session stopped", logging.Fields{
		"frames":   stats.Frames,
		"locked":   stats.Locked,
		"silences": stats.Silences,
		"duration": stats.Duration.String(),
	})
	return nil
}

func (d *Driver) loop(ctx context.Context, stats *Stats) error {
	var tick <-chan time.Time
	if d.interval > 0 {
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		if err := d.source.Next(ctx, d.raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to read audio source: %w", err)
		}

		frame, err := d.engine.Process(d.raw)
		if err != nil {
			return err
		}

		if d.frameHandler != nil {
			d.frameHandler(frame)
		}
		if frame.Event == nil {
			continue
		}

		if frame.Event.IsSilence() {
			stats.Silences++
		} else {
			stats.Locked++
		}
		if d.handler != nil {
			d.handler(*frame.Event)
		}
	}
}

// Engine returns the engine owned by the driver
func (d *Driver) Engine() *engine.Engine {
	return d.engine
}

// LastStats returns the summary of the most recent completed run
func (d *Driver) LastStats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// Running reports whether Run is in progress
func (d *Driver) Running() bool {
	return d.running.Load()
}
