package session

import (
	"context"
	"io"
	"sync"

	"github.com/narevent/REA/algorithms/common"
)

// StreamSource is a Source fed by a producer goroutine (a capture callback or a network
// connection). It keeps the most recent samples in a ring and hands out a buffer whenever at
// least hop new samples have arrived. A consumer that falls behind skips straight to the
// newest audio.
type StreamSource struct {
	mu      sync.Mutex
	ring    *common.CircularBuffer
	scratch []float64
	hop     int
	fresh   int
	closed  bool

	notify chan struct{}
}

// NewStreamSource creates a stream holding capacity samples that yields a buffer every hop
// new samples. A hop below 1 is treated as 1.
func NewStreamSource(capacity, hop int) *StreamSource {
	if hop < 1 {
		hop = 1
	}
	return &StreamSource{
		ring:   common.NewCircularBuffer(capacity),
		hop:    hop,
		notify: make(chan struct{}, 1),
	}
}

// Start opens the stream for a session. Samples written before the first Start are kept;
// a stream closed by an earlier session is reopened empty so no stale audio carries over.
func (s *StreamSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		return nil
	}
	s.closed = false
	s.ring.Clear()
	s.fresh = 0
	select {
	case <-s.notify:
	default:
	}
	return nil
}

// Write appends samples
func (s *StreamSource) Write(samples []float64) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSourceClosed
	}
	n := s.ring.Write(samples)
	s.fresh += n
	s.mu.Unlock()

	s.signal()
	return n, nil
}

// WriteFloat32 appends float32 samples, the native format of capture devices and the wire
func (s *StreamSource) WriteFloat32(samples []float32) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrSourceClosed
	}
	s.scratch = common.ToFloat64(samples, s.scratch)
	n := s.ring.Write(s.scratch)
	s.fresh += n
	s.mu.Unlock()

	s.signal()
	return n, nil
}

// Next waits for hop new samples and copies the latest len(dst) of them into dst, zero
// padding the front while the stream is still filling up
func (s *StreamSource) Next(ctx context.Context, dst []float64) error {
	for {
		s.mu.Lock()
		if s.fresh >= s.hop {
			s.ring.Latest(dst)
			s.fresh = 0
			s.mu.Unlock()
			return nil
		}
		if s.closed {
			s.mu.Unlock()
			return io.EOF
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.notify:
		}
	}
}

// Close ends the stream; a pending Next returns io.EOF. Close is idempotent.
func (s *StreamSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.signal()
	return nil
}

func (s *StreamSource) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
