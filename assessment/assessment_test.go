package assessment

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/narevent/REA/engine"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		key    string
		label  string
		midi   int
		hasErr bool
	}{
		{key: "c/4", label: "C4", midi: 60},
		{key: "c#/4", label: "C#4", midi: 61},
		{key: "eb/4", label: "D#4", midi: 63},
		{key: "C#4", label: "C#4", midi: 61},
		{key: "Bb3", label: "A#3", midi: 58},
		{key: "BB3", label: "A#3", midi: 58},
		{key: "a/4", label: "A4", midi: 69},
		{key: "cb/4", label: "B3", midi: 59},
		{key: "e#/4", label: "F4", midi: 65},
		{key: "B#3", label: "C4", midi: 60},
		{key: " g / 5 ", label: "G5", midi: 79},
		{key: "C-1", label: "C-1", midi: 0},
		{key: "h/4", hasErr: true},
		{key: "c", hasErr: true},
		{key: "c/x", hasErr: true},
		{key: "/4", hasErr: true},
		{key: "c?4", hasErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			note, err := ParseKey(tt.key)
			if tt.hasErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.label, note.Label())
			assert.Equal(t, tt.midi, note.MIDI)
			assert.Equal(t, tt.key, note.Key)
		})
	}
}

func TestParseKeysStopsAtFirstError(t *testing.T) {
	notes, err := ParseKeys([]string{"c/4", "d/4", "e/4"})
	require.NoError(t, err)
	require.Len(t, notes, 3)
	assert.Equal(t, "E4", notes[2].Label())

	_, err = ParseKeys([]string{"c/4", "zz"})
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestNoteFromMIDI(t *testing.T) {
	assert.Equal(t, "A4", NoteFromMIDI(69).Label())
	assert.Equal(t, "C4", NoteFromMIDI(60).Label())
	assert.Equal(t, "B3", NoteFromMIDI(59).Label())
	assert.Equal(t, "C-1", NoteFromMIDI(0).Label())
	assert.Equal(t, "G9", NoteFromMIDI(127).Label())
}

func melodyMIDI(t *testing.T) []byte {
	t.Helper()

	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(480, midi.NoteOff(0, 60))
	// chord: the highest key wins
	tr.Add(0, midi.NoteOn(0, 55, 100))
	tr.Add(0, midi.NoteOn(0, 64, 100))
	tr.Add(480, midi.NoteOff(0, 55))
	tr.Add(0, midi.NoteOff(0, 64))
	tr.Add(0, midi.NoteOn(0, 70, 90))
	tr.Add(480, midi.NoteOff(0, 70))
	tr.Close(0)

	s := smf.New()
	require.NoError(t, s.Add(tr))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func TestReadMIDI(t *testing.T) {
	notes, err := ReadMIDI(melodyMIDI(t))
	require.NoError(t, err)

	labels := make([]string, len(notes))
	for i, n := range notes {
		labels[i] = n.Label()
	}
	assert.Equal(t, []string{"C4", "E4", "A#4"}, labels)
}

func TestLoadMIDI(t *testing.T) {
	path := filepath.Join(t.TempDir(), "melody.mid")
	require.NoError(t, os.WriteFile(path, melodyMIDI(t), 0o644))

	notes, err := LoadMIDI(path)
	require.NoError(t, err)
	assert.Len(t, notes, 3)

	_, err = LoadMIDI(filepath.Join(t.TempDir(), "missing.mid"))
	assert.Error(t, err)
}

func TestReadMIDIRejectsGarbage(t *testing.T) {
	_, err := ReadMIDI([]byte("not a midi file"))
	assert.Error(t, err)
}

func locked(label string) engine.Event {
	return engine.Event{Type: engine.EventLocked, Label: label, Confidence: 1}
}

func silence() engine.Event {
	return engine.Event{Type: engine.EventSilence, Name: "--", Label: "--"}
}

func TestAssessmentScoresInOrder(t *testing.T) {
	expected, err := ParseKeys([]string{"c/4", "e/4", "g/4"})
	require.NoError(t, err)

	var matched []string
	var final *Result
	a, err := New(expected,
		OnMatch(func(exp ExpectedNote, ev engine.Event) {
			assert.Equal(t, exp.Label(), ev.Label)
			matched = append(matched, exp.Label())
		}),
		OnComplete(func(r Result) {
			final = &r
		}),
	)
	require.NoError(t, err)

	current, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, "C4", current.Label())

	assert.False(t, a.Observe(locked("D4")))
	assert.False(t, a.Observe(silence()))
	assert.True(t, a.Observe(locked("C4")))
	// the same note again does not count twice
	assert.False(t, a.Observe(locked("C4")))

	progress := a.Result()
	assert.Equal(t, 1, progress.Correct)
	assert.Equal(t, 33, progress.Accuracy)
	assert.Equal(t, RatingPoor, progress.Rating)
	assert.False(t, progress.Complete)

	assert.False(t, a.Observe(locked("E5")))
	assert.True(t, a.Observe(locked("E4")))
	assert.Nil(t, final)
	assert.True(t, a.Observe(locked("G4")))

	require.NotNil(t, final)
	assert.Equal(t, Result{Correct: 3, Total: 3, Accuracy: 100, Rating: RatingGood, Complete: true}, *final)
	assert.Equal(t, []string{"C4", "E4", "G4"}, matched)
	assert.True(t, a.Done())

	_, ok = a.Current()
	assert.False(t, ok)

	// events after completion are ignored
	assert.False(t, a.Observe(locked("G4")))
	assert.Equal(t, 3, a.Result().Correct)
}

func TestAssessmentFlatsMatchSharps(t *testing.T) {
	expected, err := ParseKeys([]string{"bb/3"})
	require.NoError(t, err)

	a, err := New(expected)
	require.NoError(t, err)

	a.Handle(locked("A#3"))
	assert.True(t, a.Done())
}

func TestAssessmentReset(t *testing.T) {
	expected, err := ParseKeys([]string{"a/4", "b/4"})
	require.NoError(t, err)

	a, err := New(expected)
	require.NoError(t, err)
	a.Observe(locked("A4"))
	assert.Equal(t, 50, a.Result().Accuracy)

	a.Reset()
	assert.Equal(t, 0, a.Result().Correct)
	current, ok := a.Current()
	require.True(t, ok)
	assert.Equal(t, "A4", current.Label())
}

func TestNewRejectsEmptyExercise(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrEmptyExercise)
}

func TestRatingFor(t *testing.T) {
	assert.Equal(t, RatingGood, RatingFor(100))
	assert.Equal(t, RatingGood, RatingFor(80))
	assert.Equal(t, RatingFair, RatingFor(79))
	assert.Equal(t, RatingFair, RatingFor(60))
	assert.Equal(t, RatingPoor, RatingFor(59))
	assert.Equal(t, RatingPoor, RatingFor(0))
}
