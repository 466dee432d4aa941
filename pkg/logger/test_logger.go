package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// TestLogger captures log entries in memory for assertions.
type TestLogger struct {
	mu      sync.Mutex
	entries []Entry
	zerolog *zerolog.Logger
}

// Entry is a single captured log entry.
type Entry struct {
	Level   string
	Message string
	Fields  map[string]interface{}
}

// NewTestLogger creates a logger that records entries instead of writing them.
func NewTestLogger() *TestLogger {
	nop := zerolog.Nop()
	return &TestLogger{zerolog: &nop}
}

// Entries returns a copy of all captured entries.
func (l *TestLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// HasMessage reports whether any entry contains the given message.
func (l *TestLogger) HasMessage(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Message == msg {
			return true
		}
	}
	return false
}

func (l *TestLogger) record(level, msg string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, Entry{Level: level, Message: msg, Fields: fields})
}

func (l *TestLogger) Debug(msg string) { l.record("DEBUG", msg, nil) }
func (l *TestLogger) Info(msg string)  { l.record("INFO", msg, nil) }
func (l *TestLogger) Warn(msg string)  { l.record("WARN", msg, nil) }
func (l *TestLogger) Error(msg string) { l.record("ERROR", msg, nil) }
func (l *TestLogger) Fatal(msg string) { l.record("FATAL", msg, nil) }

func (l *TestLogger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.record("DEBUG", msg, fields)
}

func (l *TestLogger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.record("INFO", msg, fields)
}

func (l *TestLogger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.record("WARN", msg, fields)
}

func (l *TestLogger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.record("ERROR", msg, fields)
}

func (l *TestLogger) WithField(key string, value interface{}) Logger {
	return &testLoggerContext{parent: l, fields: map[string]interface{}{key: value}}
}

func (l *TestLogger) WithFields(fields map[string]interface{}) Logger {
	return &testLoggerContext{parent: l, fields: fields}
}

func (l *TestLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// GetZerolog returns a no-op zerolog instance.
func (l *TestLogger) GetZerolog() *zerolog.Logger {
	return l.zerolog
}

// testLoggerContext carries bound fields back into the parent test logger.
type testLoggerContext struct {
	parent *TestLogger
	fields map[string]interface{}
}

func (c *testLoggerContext) merge(fields map[string]interface{}) map[string]interface{} {
	merged := make(map[string]interface{}, len(c.fields)+len(fields))
	for k, v := range c.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func (c *testLoggerContext) Debug(msg string) { c.parent.record("DEBUG", msg, c.fields) }
func (c *testLoggerContext) Info(msg string)  { c.parent.record("INFO", msg, c.fields) }
func (c *testLoggerContext) Warn(msg string)  { c.parent.record("WARN", msg, c.fields) }
func (c *testLoggerContext) Error(msg string) { c.parent.record("ERROR", msg, c.fields) }
func (c *testLoggerContext) Fatal(msg string) { c.parent.record("FATAL", msg, c.fields) }

func (c *testLoggerContext) DebugWithFields(msg string, fields map[string]interface{}) {
	c.parent.record("DEBUG", msg, c.merge(fields))
}

func (c *testLoggerContext) InfoWithFields(msg string, fields map[string]interface{}) {
	c.parent.record("INFO", msg, c.merge(fields))
}

func (c *testLoggerContext) WarnWithFields(msg string, fields map[string]interface{}) {
	c.parent.record("WARN", msg, c.merge(fields))
}

func (c *testLoggerContext) ErrorWithFields(msg string, fields map[string]interface{}) {
	c.parent.record("ERROR", msg, c.merge(fields))
}

func (c *testLoggerContext) WithField(key string, value interface{}) Logger {
	return &testLoggerContext{parent: c.parent, fields: c.merge(map[string]interface{}{key: value})}
}

func (c *testLoggerContext) WithFields(fields map[string]interface{}) Logger {
	return &testLoggerContext{parent: c.parent, fields: c.merge(fields)}
}

func (c *testLoggerContext) WithError(err error) Logger {
	if err == nil {
		return c
	}
	return c.WithField("error", err.Error())
}

func (c *testLoggerContext) GetZerolog() *zerolog.Logger {
	return c.parent.zerolog
}
