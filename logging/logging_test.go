package logging

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
		"fatal":   FatalLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestWriterLoggerFiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, WarnLevel)

	logger.Info("hidden")
	logger.Warn("shown", Fields{"frame": 3})
	logger.Error(errors.New("boom"), "failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown frame=3")
	assert.Contains(t, out, "[ERROR] failed: boom")
}

func TestWithFieldsAndContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWriterLogger(&buf, DebugLevel)

	ctx := ContextWithFields(context.Background(), Fields{"session_id": "abc"})
	ctx = ContextWithFields(ctx, Fields{"component": "driver"})

	base.WithContext(ctx).WithFields(Fields{"frame": 1}).Debug("tick")

	assert.Contains(t, buf.String(), "[DEBUG] tick component=driver frame=1 session_id=abc")
}

func TestChildLoggersFollowLevel(t *testing.T) {
	var buf bytes.Buffer
	root := NewWriterLogger(&buf, InfoLevel)
	child := root.WithFields(Fields{"component": "server"})

	child.Debug("before")
	root.SetLevel(DebugLevel)
	child.Debug("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "[DEBUG] after component=server")
}

func TestSetGlobalLoggerNil(t *testing.T) {
	previous := GetGlobalLogger()
	defer SetGlobalLogger(previous)

	SetGlobalLogger(nil)
	_, ok := GetGlobalLogger().(*NoOpLogger)
	assert.True(t, ok)
}
