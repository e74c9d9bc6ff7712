package session

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrSourceClosed is returned when writing to a closed stream
var ErrSourceClosed = errors.New("source closed")

// Source delivers raw capture buffers to a Driver.
//
// Next fills dst with the most recent len(dst) samples, blocking until a new buffer is
// available. It returns io.EOF once the source is exhausted and ctx.Err() on cancellation.
type Source interface {
	Start(ctx context.Context) error
	Next(ctx context.Context, dst []float64) error
	Close() error
}

// BufferSource walks decoded PCM at a fixed hop, one capture buffer per Next
type BufferSource struct {
	pcm []float64
	hop int
	pos int
}

// NewBufferSource creates a source over pcm that advances hop samples per buffer
func NewBufferSource(pcm []float64, hop int) (*BufferSource, error) {
	if hop < 1 {
		return nil, fmt.Errorf("hop must be at least 1 sample, got %d", hop)
	}
	return &BufferSource{pcm: pcm, hop: hop}, nil
}

// Start rewinds to the beginning of the PCM
func (b *BufferSource) Start(ctx context.Context) error {
	b.pos = 0
	return nil
}

// Next copies the next full buffer; a trailing partial buffer is not delivered
func (b *BufferSource) Next(ctx context.Context, dst []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.pos+len(dst) > len(b.pcm) {
		return io.EOF
	}

	copy(dst, b.pcm[b.pos:b.pos+len(dst)])
	b.pos += b.hop
	return nil
}

// Position returns the sample offset of the next buffer
func (b *BufferSource) Position() int {
	return b.pos
}

// Close is a no-op
func (b *BufferSource) Close() error {
	return nil
}
