package assessment

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/narevent/REA/algorithms/tonal"
)

// ErrInvalidKey is returned for note keys that cannot be parsed
var ErrInvalidKey = errors.New("invalid note key")

// ExpectedNote is one target pitch of an exercise, spelled with sharps
type ExpectedNote struct {
	Name   string `json:"name"`
	Octave int    `json:"octave"`
	MIDI   int    `json:"midi"`
	Key    string `json:"key,omitempty"` // the key as written in the source
}

// Label returns the name with octave, e.g. "C#4"
func (n ExpectedNote) Label() string {
	return n.Name + strconv.Itoa(n.Octave)
}

var letterSemitones = map[byte]int{
	'C': 0, 'D': 2, 'E': 4, 'F': 5, 'G': 7, 'A': 9, 'B': 11,
}

// NoteFromMIDI spells a MIDI note number with sharps
func NoteFromMIDI(midi int) ExpectedNote {
	return ExpectedNote{
		Name:   tonal.PitchClassNames[((midi%12)+12)%12],
		Octave: floorDiv(midi, 12) - 1,
		MIDI:   midi,
	}
}

// ParseKey reads a note written as "c#/4", "eb/4", "C#4" or "Bb3". Flats and other
// enharmonic spellings are normalized to the sharp names the pitch detector reports, so "cb/4"
// becomes B3.
func ParseKey(key string) (ExpectedNote, error) {
	trimmed := strings.TrimSpace(key)

	var name, octaveText string
	if before, after, ok := strings.Cut(trimmed, "/"); ok {
		name, octaveText = before, after
	} else {
		i := strings.IndexFunc(trimmed, func(r rune) bool { return r == '-' || (r >= '0' && r <= '9') })
		if i < 0 {
			return ExpectedNote{}, fmt.Errorf("%w: %q has no octave", ErrInvalidKey, key)
		}
		name, octaveText = trimmed[:i], trimmed[i:]
	}

	octave, err := strconv.Atoi(strings.TrimSpace(octaveText))
	if err != nil {
		return ExpectedNote{}, fmt.Errorf("%w: %q has a bad octave", ErrInvalidKey, key)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return ExpectedNote{}, fmt.Errorf("%w: %q has no note name", ErrInvalidKey, key)
	}

	semitone, ok := letterSemitones[strings.ToUpper(name[:1])[0]]
	if !ok {
		return ExpectedNote{}, fmt.Errorf("%w: %q has an unknown letter", ErrInvalidKey, key)
	}
	for _, accidental := range name[1:] {
		switch accidental {
		case '#':
			semitone++
		case 'b', 'B':
			semitone--
		default:
			return ExpectedNote{}, fmt.Errorf("%w: %q has an unknown accidental", ErrInvalidKey, key)
		}
	}

	note := NoteFromMIDI((octave+1)*12 + semitone)
	note.Key = key
	return note, nil
}

// ParseKeys parses a list of keys, stopping at the first bad one
func ParseKeys(keys []string) ([]ExpectedNote, error) {
	notes := make([]ExpectedNote, 0, len(keys))
	for _, key := range keys {
		note, err := ParseKey(key)
		if err != nil {
			return nil, err
		}
		notes = append(notes, note)
	}
	return notes, nil
}

// LoadMIDI reads the expected melody from a standard MIDI file
func LoadMIDI(path string) ([]ExpectedNote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading midi file: %w", err)
	}
	return ReadMIDI(data)
}

// ReadMIDI extracts note-on events from every track in time order. Notes starting on the same
// tick are reduced to the highest one, which keeps the melody of a harmonised line.
func ReadMIDI(data []byte) (notes []ExpectedNote, err error) {
	// smf can panic on malformed input
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error parsing midi file: %v", r)
		}
	}()

	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing midi file: %w", err)
	}

	type onset struct {
		tick uint64
		key  uint8
	}
	var onsets []onset

	for _, track := range s.Tracks {
		var absTicks uint64
		for _, ev := range track {
			absTicks += uint64(ev.Delta)

			var channel, key, velocity uint8
			if ev.Message.GetNoteOn(&channel, &key, &velocity) && velocity > 0 {
				onsets = append(onsets, onset{tick: absTicks, key: key})
			}
		}
	}

	sort.SliceStable(onsets, func(i, j int) bool {
		return onsets[i].tick < onsets[j].tick
	})

	for i := 0; i < len(onsets); {
		highest := onsets[i]
		j := i + 1
		for ; j < len(onsets) && onsets[j].tick == highest.tick; j++ {
			if onsets[j].key > highest.key {
				highest = onsets[j]
			}
		}
		notes = append(notes, NoteFromMIDI(int(highest.key)))
		i = j
	}

	return notes, nil
}

func floorDiv(a, n int) int {
	q := a / n
	if a%n != 0 && (a < 0) != (n < 0) {
		q--
	}
	return q
}
