package assessment

import (
	"errors"
	"math"
	"sync"

	"github.com/narevent/REA/engine"
	"github.com/narevent/REA/logging"
)

// ErrEmptyExercise is returned when an assessment has no expected notes
var ErrEmptyExercise = errors.New("exercise has no notes")

// Rating buckets an accuracy percentage
type Rating string

const (
	RatingGood Rating = "good"
	RatingFair Rating = "fair"
	RatingPoor Rating = "poor"
)

// RatingFor returns the rating of an accuracy percentage
func RatingFor(accuracy int) Rating {
	switch {
	case accuracy >= 80:
		return RatingGood
	case accuracy >= 60:
		return RatingFair
	default:
		return RatingPoor
	}
}

// Result is a snapshot of assessment progress
type Result struct {
	Correct  int    `json:"correct"`
	Total    int    `json:"total"`
	Accuracy int    `json:"accuracy"` // percent, rounded
	Rating   Rating `json:"rating"`
	Complete bool   `json:"complete"`
}

// MatchFunc is called when a locked note matches the expected one
type MatchFunc func(expected ExpectedNote, detected engine.Event)

// CompleteFunc is called once when the last expected note is matched
type CompleteFunc func(Result)

// Option configures an Assessment
type Option func(*Assessment)

// OnMatch sets the match callback
func OnMatch(fn MatchFunc) Option {
	return func(a *Assessment) {
		a.onMatch = fn
	}
}

// OnComplete sets the completion callback
func OnComplete(fn CompleteFunc) Option {
	return func(a *Assessment) {
		a.onComplete = fn
	}
}

// Assessment scores locked note events against an expected sequence. A locked note that
// matches the current target by name and octave advances the cursor; anything else is
// ignored, so a singer may retry a note until it is right.
type Assessment struct {
	mu       sync.Mutex
	expected []ExpectedNote
	cursor   int
	correct  int

	onMatch    MatchFunc
	onComplete CompleteFunc
	logger     logging.Logger
}

// New creates an assessment over expected
func New(expected []ExpectedNote, opts ...Option) (*Assessment, error) {
	if len(expected) == 0 {
		return nil, ErrEmptyExercise
	}

	a := &Assessment{
		expected: expected,
		logger: logging.WithFields(logging.Fields{
			"component": "assessment",
			"notes":     len(expected),
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Observe scores one engine event and reports whether it matched the current target
func (a *Assessment) Observe(ev engine.Event) bool {
	a.mu.Lock()

	if ev.Type != engine.EventLocked || a.cursor >= len(a.expected) {
		a.mu.Unlock()
		return false
	}

	target := a.expected[a.cursor]
	if ev.Label != target.Label() {
		a.mu.Unlock()
		return false
	}

	a.correct++
	a.cursor++
	result := a.resultLocked()
	onMatch, onComplete := a.onMatch, a.onComplete
	a.mu.Unlock()

	a.logger.Debug("Note matched", logging.Fields{
		"expected": target.Label(),
		"cents":    ev.Cents,
		"progress": result.Correct,
	})

	if onMatch != nil {
		onMatch(target, ev)
	}
	if result.Complete {
		a.logger.Info("Assessment complete", logging.Fields{
			"accuracy": result.Accuracy,
			"rating":   string(result.Rating),
		})
		if onComplete != nil {
			onComplete(result)
		}
	}
	return true
}

// Handle adapts Observe to an event callback
func (a *Assessment) Handle(ev engine.Event) {
	a.Observe(ev)
}

// Current returns the note the singer should produce next
func (a *Assessment) Current() (ExpectedNote, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cursor >= len(a.expected) {
		return ExpectedNote{}, false
	}
	return a.expected[a.cursor], true
}

// Done reports whether every expected note has been matched
func (a *Assessment) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cursor >= len(a.expected)
}

// Result returns the current score
func (a *Assessment) Result() Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resultLocked()
}

func (a *Assessment) resultLocked() Result {
	total := len(a.expected)
	accuracy := int(math.Round(float64(a.correct) / float64(total) * 100))
	return Result{
		Correct:  a.correct,
		Total:    total,
		Accuracy: accuracy,
		Rating:   RatingFor(accuracy),
		Complete: a.cursor >= total,
	}
}

// Reset rewinds to the first expected note
func (a *Assessment) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cursor = 0
	a.correct = 0
}
