package common

// CircularBuffer is a fixed-capacity ring of samples. Writes past capacity overwrite the
// oldest samples, so the buffer always holds the most recent Size() values.
//
// It is not safe for concurrent use.
type CircularBuffer struct {
	buffer   []float64
	size     int
	writePos int
	readPos  int
	count    int
}

// NewCircularBuffer creates a new circular buffer
func NewCircularBuffer(size int) *CircularBuffer {
	if size < 1 {
		size = 1
	}
	return &CircularBuffer{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Write adds data to the buffer
func (cb *CircularBuffer) Write(data []float64) int {
	written := 0
	for _, sample := range data {
		cb.Push(sample)
		written++
	}
	return written
}

// Push appends a single value, evicting the oldest one when full
func (cb *CircularBuffer) Push(sample float64) {
	cb.buffer[cb.writePos] = sample
	cb.writePos = (cb.writePos + 1) % cb.size
	if cb.count < cb.size {
		cb.count++
	} else {
		cb.readPos = (cb.readPos + 1) % cb.size
	}
}

// Peek copies the oldest min(len(data), Available()) values without consuming them
func (cb *CircularBuffer) Peek(data []float64) int {
	read := 0
	pos := cb.readPos
	remaining := cb.count

	for i := range data {
		if remaining == 0 {
			break
		}
		data[i] = cb.buffer[pos]
		pos = (pos + 1) % cb.size
		remaining--
		read++
	}
	return read
}

// Latest fills dst with the most recent len(dst) values, oldest first. When fewer values
// are available the front of dst is zero-filled. It returns the number of real samples.
func (cb *CircularBuffer) Latest(dst []float64) int {
	n := min(len(dst), cb.count)
	pad := len(dst) - n
	for i := range pad {
		dst[i] = 0
	}

	pos := (cb.writePos - n + cb.size) % cb.size
	for i := range n {
		dst[pad+i] = cb.buffer[pos]
		pos = (pos + 1) % cb.size
	}
	return n
}

// Last returns the most recently written value
func (cb *CircularBuffer) Last() (float64, bool) {
	if cb.count == 0 {
		return 0, false
	}
	return cb.buffer[(cb.writePos-1+cb.size)%cb.size], true
}

// Available returns number of samples held
func (cb *CircularBuffer) Available() int {
	return cb.count
}

// Size returns the buffer capacity
func (cb *CircularBuffer) Size() int {
	return cb.size
}

// Clear empties the buffer
func (cb *CircularBuffer) Clear() {
	cb.writePos = 0
	cb.readPos = 0
	cb.count = 0
}

// IsFull returns true if buffer is full
func (cb *CircularBuffer) IsFull() bool {
	return cb.count == cb.size
}

// IsEmpty returns true if buffer is empty
func (cb *CircularBuffer) IsEmpty() bool {
	return cb.count == 0
}
