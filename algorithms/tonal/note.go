package tonal

import (
	"fmt"
	"math"
	"strconv"

	"github.com/narevent/REA/algorithms/common"
)

// SilenceName is the note name reported when there is no usable pitch
const SilenceName = "--"

// PitchClassNames lists the twelve pitch classes in C-rooted order
var PitchClassNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// a4Index is the position of A in PitchClassNames
const a4Index = 9

// a4MIDI is the MIDI note number of A4
const a4MIDI = 69

// Note is a frequency quantized to the nearest equal-tempered pitch
type Note struct {
	Name      string  `json:"name"`      // pitch class, e.g. "C#", or SilenceName
	Octave    int     `json:"octave"`    // scientific pitch notation octave
	Cents     int     `json:"cents"`     // deviation from the nominal pitch, [-50, 50]
	Frequency float64 `json:"frequency"` // measured frequency in Hz
	Semitones int     `json:"semitones"` // signed distance from A4
}

// SilentNote returns the silence sentinel
func SilentNote() Note {
	return Note{Name: SilenceName}
}

// IsSilence reports whether n is the silence sentinel
func (n Note) IsSilence() bool {
	return n.Name == SilenceName || n.Name == ""
}

// Label returns the name with octave, e.g. "C4"; silence is "--"
func (n Note) Label() string {
	if n.IsSilence() {
		return SilenceName
	}
	return n.Name + strconv.Itoa(n.Octave)
}

// MIDI returns the MIDI note number, or -1 for silence
func (n Note) MIDI() int {
	if n.IsSilence() {
		return -1
	}
	return a4MIDI + n.Semitones
}

// String implements fmt.Stringer
func (n Note) String() string {
	if n.IsSilence() {
		return SilenceName
	}
	return fmt.Sprintf("%s %+d¢", n.Label(), n.Cents)
}

// Quantizer maps frequencies to scientific pitch notation against a tuning reference
type Quantizer struct {
	a4 float64
}

// NewQuantizer creates a quantizer tuned to the given A4 frequency
func NewQuantizer(a4 float64) (*Quantizer, error) {
	if a4 <= 0 || !common.IsFinite(a4) {
		return nil, fmt.Errorf("%w: reference A4 %g Hz must be positive", ErrInvalidParams, a4)
	}
	return &Quantizer{a4: a4}, nil
}

// A4 returns the tuning reference in Hz
func (q *Quantizer) A4() float64 {
	return q.a4
}

// FrequencyToNote quantizes freq to the nearest semitone. Non-positive or non-finite input
// yields the silence sentinel.
func (q *Quantizer) FrequencyToNote(freq float64) Note {
	if freq <= 0 || !common.IsFinite(freq) {
		return SilentNote()
	}

	semitones := 12 * math.Log2(freq/q.a4)
	if !common.IsFinite(semitones) {
		return SilentNote()
	}

	rounded := int(common.RoundHalfUp(semitones))
	cents := int(common.RoundHalfUp((semitones - float64(rounded)) * 100))

	// A-rooted index translated to the C-rooted table
	index := (mod(rounded, 12) + a4Index) % 12
	octave := floorDiv(rounded+a4Index, 12) + 4

	return Note{
		Name:      PitchClassNames[index],
		Octave:    octave,
		Cents:     cents,
		Frequency: freq,
		Semitones: rounded,
	}
}

// NoteFrequency returns the nominal frequency of a MIDI note number
func (q *Quantizer) NoteFrequency(midi int) float64 {
	return q.a4 * math.Pow(2, float64(midi-a4MIDI)/12)
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

func floorDiv(a, n int) int {
	q := a / n
	if a%n != 0 && (a < 0) != (n < 0) {
		q--
	}
	return q
}
