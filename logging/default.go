package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"maps"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

// TextLogger writes one line per entry: level, message, error, then the fields as
// key=value pairs in key order. Everything goes to a single writer (stderr by default)
// so command output on stdout stays machine readable.
type TextLogger struct {
	out    *log.Logger
	level  *atomic.Int32
	fields Fields
}

// NewTextLogger logs at InfoLevel and above to stderr with timestamps
func NewTextLogger() *TextLogger {
	return newTextLogger(log.New(os.Stderr, "", log.LstdFlags), InfoLevel)
}

// NewWriterLogger logs at level and above to w without timestamps
func NewWriterLogger(w io.Writer, level Level) *TextLogger {
	return newTextLogger(log.New(w, "", 0), level)
}

func newTextLogger(out *log.Logger, level Level) *TextLogger {
	l := &TextLogger{out: out, level: new(atomic.Int32)}
	l.level.Store(int32(level))
	return l
}

func (t *TextLogger) emit(level Level, err error, msg string, fields []Fields) {
	if level < Level(t.level.Load()) {
		return
	}

	var b strings.Builder
	b.WriteString("[" + level.String() + "] " + msg)
	if err != nil {
		b.WriteString(": " + err.Error())
	}

	merged := t.fields
	if len(fields) > 0 {
		merged = maps.Clone(t.fields)
		if merged == nil {
			merged = make(Fields)
		}
		for _, f := range fields {
			maps.Copy(merged, f)
		}
	}
	for _, k := range slices.Sorted(maps.Keys(merged)) {
		fmt.Fprintf(&b, " %s=%v", k, merged[k])
	}

	t.out.Println(b.String())
}

func (t *TextLogger) Debug(msg string, fields ...Fields) { t.emit(DebugLevel, nil, msg, fields) }
func (t *TextLogger) Info(msg string, fields ...Fields)  { t.emit(InfoLevel, nil, msg, fields) }
func (t *TextLogger) Warn(msg string, fields ...Fields)  { t.emit(WarnLevel, nil, msg, fields) }

func (t *TextLogger) Error(err error, msg string, fields ...Fields) {
	t.emit(ErrorLevel, err, msg, fields)
}

// WithFields returns a child sharing this logger's writer and level
func (t *TextLogger) WithFields(fields Fields) Logger {
	merged := maps.Clone(t.fields)
	if merged == nil {
		merged = make(Fields, len(fields))
	}
	maps.Copy(merged, fields)
	return &TextLogger{out: t.out, level: t.level, fields: merged}
}

func (t *TextLogger) WithContext(ctx context.Context) Logger {
	if fields, ok := FieldsFromContext(ctx); ok {
		return t.WithFields(fields)
	}
	return t
}

// SetLevel changes the level for this logger and every child derived from it
func (t *TextLogger) SetLevel(level Level) {
	t.level.Store(int32(level))
}

// NoOpLogger discards everything
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(string, ...Fields)            {}
func (n *NoOpLogger) Info(string, ...Fields)             {}
func (n *NoOpLogger) Warn(string, ...Fields)             {}
func (n *NoOpLogger) Error(error, string, ...Fields)     {}
func (n *NoOpLogger) WithFields(Fields) Logger           { return n }
func (n *NoOpLogger) WithContext(context.Context) Logger { return n }
func (n *NoOpLogger) SetLevel(Level)                     {}
