package engine

import (
	"github.com/narevent/REA/algorithms/tonal"
)

// EventType identifies what an Event announces
type EventType string

const (
	EventLocked  EventType = "locked"
	EventSilence EventType = "silence"
)

// Event is a stabilized note decision delivered to consumers
type Event struct {
	Type        EventType `json:"type"`
	Name        string    `json:"name"`
	Octave      int       `json:"octave"`
	Label       string    `json:"label"`
	Cents       int       `json:"cents"`
	FrequencyHz float64   `json:"frequency_hz"`
	Confidence  float64   `json:"confidence"`
	MIDI        int       `json:"midi,omitempty"`
	Frame       uint64    `json:"frame"`
}

// IsSilence reports whether the event clears the current note
func (e Event) IsSilence() bool {
	return e.Type == EventSilence
}

func newEvent(ev tonal.LockEvent, frame uint64) Event {
	if ev.Kind == tonal.LockEventSilence {
		return Event{
			Type:  EventSilence,
			Name:  tonal.SilenceName,
			Label: tonal.SilenceName,
			Frame: frame,
		}
	}

	return Event{
		Type:        EventLocked,
		Name:        ev.Note.Name,
		Octave:      ev.Note.Octave,
		Label:       ev.Note.Label(),
		Cents:       ev.Note.Cents,
		FrequencyHz: ev.Note.Frequency,
		Confidence:  ev.Confidence,
		MIDI:        ev.Note.MIDI(),
		Frame:       frame,
	}
}
