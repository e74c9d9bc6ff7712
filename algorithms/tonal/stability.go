package tonal

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// LockState is the state of a NoteLocker
type LockState int

const (
	// StateIdle has an empty buffer; the last reading did not qualify
	StateIdle LockState = iota
	// StateAccumulating is collecting a streak of consistent readings
	StateAccumulating
	// StateLocked has just emitted a locked note and retains the overlap
	StateLocked
)

// String implements fmt.Stringer
func (s LockState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateLocked:
		return "locked"
	default:
		return fmt.Sprintf("LockState(%d)", int(s))
	}
}

// LockEventKind distinguishes the events a NoteLocker emits
type LockEventKind int

const (
	LockEventLocked LockEventKind = iota + 1
	LockEventSilence
)

// String implements fmt.Stringer
func (k LockEventKind) String() string {
	switch k {
	case LockEventLocked:
		return "locked"
	case LockEventSilence:
		return "silence"
	default:
		return "none"
	}
}

// LockEvent is a stabilized decision: a locked note with confidence 1, or a silence edge
type LockEvent struct {
	Kind       LockEventKind `json:"kind"`
	Note       Note          `json:"note"`
	Confidence float64       `json:"confidence"`
}

// LockerParams contains parameters for note stabilization
type LockerParams struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"` // readings must exceed this
	SilenceThresholdDB  float64 `json:"silence_threshold_db"` // signal level must exceed this
	StabilityThreshold  float64 `json:"stability_threshold"`  // max semitone step within a streak
	BufferSize          int     `json:"buffer_size"`          // readings needed to lock
	LockOverlap         int     `json:"lock_overlap"`         // readings kept after a lock
}

// DefaultLockerParams returns the default stabilization configuration
func DefaultLockerParams() LockerParams {
	return LockerParams{
		ConfidenceThreshold: 0.6,
		SilenceThresholdDB:  -60.0,
		StabilityThreshold:  0.5,
		BufferSize:          6,
		LockOverlap:         2,
	}
}

type noteKey struct {
	name   string
	octave int
}

// NoteLocker turns a jittery stream of per-frame readings into discrete note events.
// A note locks once BufferSize consecutive readings stay within StabilityThreshold
// semitones of their predecessor; any unqualified reading clears the streak and reports
// silence once.
type NoteLocker struct {
	params    LockerParams
	quantizer *Quantizer

	buffer []Note
	state  LockState

	// tentative reading, also the last note reported for silence edge detection
	current           Note
	currentConfidence float64

	// tally scratch
	keys   []noteKey
	counts []int
	freqs  []float64
}

// NewNoteLocker creates a locker that requantizes averaged frequencies with q
func NewNoteLocker(params LockerParams, q *Quantizer) (*NoteLocker, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: quantizer is required", ErrInvalidParams)
	}
	if params.ConfidenceThreshold < 0 || params.ConfidenceThreshold >= 1 {
		return nil, fmt.Errorf("%w: confidence threshold %g outside [0, 1)", ErrInvalidParams, params.ConfidenceThreshold)
	}
	if params.StabilityThreshold <= 0 {
		return nil, fmt.Errorf("%w: stability threshold %g must be positive", ErrInvalidParams, params.StabilityThreshold)
	}
	if params.BufferSize < 1 {
		return nil, fmt.Errorf("%w: buffer size %d must be at least 1", ErrInvalidParams, params.BufferSize)
	}
	if params.LockOverlap < 0 || params.LockOverlap >= params.BufferSize {
		return nil, fmt.Errorf("%w: lock overlap %d must be in [0, %d)", ErrInvalidParams, params.LockOverlap, params.BufferSize)
	}

	return &NoteLocker{
		params:    params,
		quantizer: q,
		buffer:    make([]Note, 0, params.BufferSize),
		current:   SilentNote(),
		keys:      make([]noteKey, 0, params.BufferSize),
		counts:    make([]int, 0, params.BufferSize),
		freqs:     make([]float64, 0, params.BufferSize),
	}, nil
}

// Qualifies reports whether a reading is confident and loud enough to join a streak
func (l *NoteLocker) Qualifies(est PitchEstimate, levelDB float64) bool {
	return est.Confidence > l.params.ConfidenceThreshold &&
		levelDB > l.params.SilenceThresholdDB &&
		est.IsPitched()
}

// Update feeds one smoothed reading and its signal level. It returns the event emitted by
// this frame, if any.
func (l *NoteLocker) Update(est PitchEstimate, levelDB float64) (LockEvent, bool) {
	var note Note
	if l.Qualifies(est, levelDB) {
		note = l.quantizer.FrequencyToNote(est.Frequency)
	}

	if note.IsSilence() {
		return l.silence()
	}

	l.current = note
	l.currentConfidence = est.Confidence
	l.push(note)

	if len(l.buffer) >= l.params.BufferSize {
		return l.lock(), true
	}
	return LockEvent{}, false
}

func (l *NoteLocker) push(note Note) {
	if len(l.buffer) == 0 {
		l.buffer = append(l.buffer, note)
		l.state = StateAccumulating
		return
	}

	last := l.buffer[len(l.buffer)-1]
	distance := math.Abs(12 * math.Log2(note.Frequency/last.Frequency))
	if distance < l.params.StabilityThreshold {
		l.buffer = append(l.buffer, note)
		return
	}

	l.buffer = append(l.buffer[:0], note)
	l.state = StateAccumulating
}

func (l *NoteLocker) silence() (LockEvent, bool) {
	l.buffer = l.buffer[:0]
	l.state = StateIdle

	if l.current.IsSilence() {
		return LockEvent{}, false
	}

	l.current = SilentNote()
	l.currentConfidence = 0
	return LockEvent{Kind: LockEventSilence, Note: SilentNote()}, true
}

// lock picks the modal note of the buffer (first seen wins ties), averages the frequencies of
// its readings and requantizes the average
func (l *NoteLocker) lock() LockEvent {
	l.keys = l.keys[:0]
	l.counts = l.counts[:0]

	for _, n := range l.buffer {
		key := noteKey{name: n.Name, octave: n.Octave}
		found := false
		for i, k := range l.keys {
			if k == key {
				l.counts[i]++
				found = true
				break
			}
		}
		if !found {
			l.keys = append(l.keys, key)
			l.counts = append(l.counts, 1)
		}
	}

	best := 0
	for i := 1; i < len(l.counts); i++ {
		if l.counts[i] > l.counts[best] {
			best = i
		}
	}
	mode := l.keys[best]

	l.freqs = l.freqs[:0]
	for _, n := range l.buffer {
		if n.Name == mode.name && n.Octave == mode.octave {
			l.freqs = append(l.freqs, n.Frequency)
		}
	}
	locked := l.quantizer.FrequencyToNote(stat.Mean(l.freqs, nil))

	keep := l.params.LockOverlap
	copy(l.buffer, l.buffer[len(l.buffer)-keep:])
	l.buffer = l.buffer[:keep]
	l.state = StateLocked

	return LockEvent{Kind: LockEventLocked, Note: locked, Confidence: 1.0}
}

// Current returns the latest tentative reading and its confidence. It is the silence
// sentinel with zero confidence after an unqualified frame.
func (l *NoteLocker) Current() (Note, float64) {
	return l.current, l.currentConfidence
}

// State returns the current lock state
func (l *NoteLocker) State() LockState {
	return l.state
}

// Buffered returns the number of readings in the current streak
func (l *NoteLocker) Buffered() int {
	return len(l.buffer)
}

// GetParameters returns the locker parameters
func (l *NoteLocker) GetParameters() LockerParams {
	return l.params
}

// Reset returns the locker to Idle with an empty streak and no reported note
func (l *NoteLocker) Reset() {
	l.buffer = l.buffer[:0]
	l.state = StateIdle
	l.current = SilentNote()
	l.currentConfidence = 0
}
