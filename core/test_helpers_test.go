package core

import (
	"context"
	"sync"
)

type recordedLog struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu      *sync.Mutex
	entries *[]recordedLog
}

func newCaptureLogger() captureLogger {
	return captureLogger{mu: &sync.Mutex{}, entries: &[]recordedLog{}}
}

func (l captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.entries = append(*l.entries, recordedLog{level: level, message: message, args: args})
}

func (l captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }
func (l captureLogger) WithContext(context.Context) Logger {
	return l
}

func (l captureLogger) logs() []recordedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recordedLog(nil), (*l.entries)...)
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	return StaticRawConfigLoader{Values: l.values}.LoadRaw(context.Background())
}
