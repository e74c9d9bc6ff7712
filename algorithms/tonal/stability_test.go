package tonal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loud = -20.0

func newTestLocker(t *testing.T, mutate func(p *LockerParams)) *NoteLocker {
	t.Helper()
	params := DefaultLockerParams()
	if mutate != nil {
		mutate(&params)
	}
	l, err := NewNoteLocker(params, newTestQuantizer(t, 440))
	require.NoError(t, err)
	return l
}

func pitched(freq float64) PitchEstimate {
	return PitchEstimate{Frequency: freq, Confidence: 0.9}
}

// feed runs readings through the locker and collects every emitted event
func feed(l *NoteLocker, readings []PitchEstimate, levelDB float64) []LockEvent {
	var events []LockEvent
	for _, r := range readings {
		if ev, ok := l.Update(r, levelDB); ok {
			events = append(events, ev)
		}
	}
	return events
}

func repeat(est PitchEstimate, n int) []PitchEstimate {
	out := make([]PitchEstimate, n)
	for i := range out {
		out[i] = est
	}
	return out
}

func TestLockerLocksAfterStableStreak(t *testing.T) {
	l := newTestLocker(t, nil)
	assert.Equal(t, StateIdle, l.State())

	for i := range 5 {
		_, ok := l.Update(pitched(440+float64(i)*0.2), loud)
		assert.False(t, ok, "frame %d", i)
		assert.Equal(t, StateAccumulating, l.State())
	}

	ev, ok := l.Update(pitched(440), loud)
	require.True(t, ok)
	assert.Equal(t, LockEventLocked, ev.Kind)
	assert.Equal(t, "A4", ev.Note.Label())
	assert.Equal(t, 1.0, ev.Confidence)
	assert.InDelta(t, (440+440.2+440.4+440.6+440.8+440)/6, ev.Note.Frequency, 1e-9)

	assert.Equal(t, StateLocked, l.State())
	assert.Equal(t, 2, l.Buffered())
}

func TestLockerRelocksAfterOverlap(t *testing.T) {
	l := newTestLocker(t, nil)

	events := feed(l, repeat(pitched(440), 6), loud)
	require.Len(t, events, 1)

	// two readings carried over, so four more complete the next lock
	events = feed(l, repeat(pitched(440), 3), loud)
	assert.Empty(t, events)
	assert.Equal(t, StateLocked, l.State())

	events = feed(l, repeat(pitched(440), 1), loud)
	require.Len(t, events, 1)
	assert.Equal(t, "A4", events[0].Note.Label())
}

func TestLockerOutlierRestartsStreak(t *testing.T) {
	l := newTestLocker(t, nil)

	readings := append(repeat(pitched(440), 3), pitched(660))
	readings = append(readings, repeat(pitched(440), 5)...)
	events := feed(l, readings, loud)
	assert.Empty(t, events, "the outlier and the return both reset the streak")
	assert.Equal(t, 5, l.Buffered())

	ev, ok := l.Update(pitched(440), loud)
	require.True(t, ok)
	assert.Equal(t, "A4", ev.Note.Label())
}

func TestLockerSilenceIsEdgeTriggered(t *testing.T) {
	l := newTestLocker(t, nil)

	// nothing reported yet, so silence is not announced
	events := feed(l, repeat(PitchEstimate{}, 4), loud)
	assert.Empty(t, events)

	feed(l, repeat(pitched(440), 3), loud)
	current, conf := l.Current()
	assert.Equal(t, "A4", current.Label())
	assert.Equal(t, 0.9, conf)

	events = feed(l, repeat(PitchEstimate{Frequency: 440, Confidence: 0.3}, 5), loud)
	require.Len(t, events, 1)
	assert.Equal(t, LockEventSilence, events[0].Kind)
	assert.True(t, events[0].Note.IsSilence())
	assert.Equal(t, 0.0, events[0].Confidence)
	assert.Equal(t, StateIdle, l.State())
	assert.Equal(t, 0, l.Buffered())

	current, conf = l.Current()
	assert.True(t, current.IsSilence())
	assert.Equal(t, 0.0, conf)
}

func TestLockerQuietSignalDoesNotQualify(t *testing.T) {
	l := newTestLocker(t, nil)

	events := feed(l, repeat(pitched(440), 10), -70)
	assert.Empty(t, events)
	assert.Equal(t, StateIdle, l.State())

	assert.False(t, l.Qualifies(pitched(440), -60), "threshold is exclusive")
	assert.False(t, l.Qualifies(PitchEstimate{Frequency: 440, Confidence: 0.6}, loud))
	assert.True(t, l.Qualifies(pitched(440), -59.9))
}

func TestLockerSilenceGapBreaksStreak(t *testing.T) {
	l := newTestLocker(t, nil)

	feed(l, repeat(pitched(440), 5), loud)
	ev, ok := l.Update(PitchEstimate{}, loud)
	require.True(t, ok)
	assert.Equal(t, LockEventSilence, ev.Kind)

	events := feed(l, repeat(pitched(440), 5), loud)
	assert.Empty(t, events)
}

func TestLockerModeTieGoesToFirstSeen(t *testing.T) {
	// 452 Hz quantizes to A4 (+47 cents), 453.5 Hz to A#4 (-48 cents); the two are
	// well inside the stability threshold of each other
	small := func(p *LockerParams) { p.BufferSize = 4; p.LockOverlap = 1 }

	l := newTestLocker(t, small)
	events := feed(l, []PitchEstimate{pitched(453.5), pitched(452), pitched(452), pitched(453.5)}, loud)
	require.Len(t, events, 1)
	assert.Equal(t, "A#4", events[0].Note.Label())
	assert.InDelta(t, 453.5, events[0].Note.Frequency, 1e-9)

	l = newTestLocker(t, small)
	events = feed(l, []PitchEstimate{pitched(452), pitched(453.5), pitched(453.5), pitched(452)}, loud)
	require.Len(t, events, 1)
	assert.Equal(t, "A4", events[0].Note.Label())
	assert.Equal(t, 1, l.Buffered())
}

func TestLockerModeAveragesMajority(t *testing.T) {
	l := newTestLocker(t, nil)

	readings := []PitchEstimate{
		pitched(452), pitched(453.5), pitched(451), pitched(450), pitched(452.5), pitched(449),
	}
	events := feed(l, readings, loud)
	require.Len(t, events, 1)
	assert.Equal(t, "A4", events[0].Note.Label())
	assert.InDelta(t, (452+451+450+452.5+449)/5.0, events[0].Note.Frequency, 1e-9)
}

func TestLockerReset(t *testing.T) {
	l := newTestLocker(t, nil)

	feed(l, repeat(pitched(440), 4), loud)
	l.Reset()

	assert.Equal(t, StateIdle, l.State())
	assert.Equal(t, 0, l.Buffered())
	current, _ := l.Current()
	assert.True(t, current.IsSilence())

	// after a reset there is nothing to clear, so no silence edge
	_, ok := l.Update(PitchEstimate{}, loud)
	assert.False(t, ok)
}

func TestNewNoteLockerRejectsBadParams(t *testing.T) {
	q := newTestQuantizer(t, 440)

	params := DefaultLockerParams()
	params.LockOverlap = params.BufferSize
	_, err := NewNoteLocker(params, q)
	assert.ErrorIs(t, err, ErrInvalidParams)

	params = DefaultLockerParams()
	params.BufferSize = 0
	_, err = NewNoteLocker(params, q)
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = NewNoteLocker(DefaultLockerParams(), nil)
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestLockStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "accumulating", StateAccumulating.String())
	assert.Equal(t, "locked", StateLocked.String())
	assert.Equal(t, "silence", LockEventSilence.String())
}
