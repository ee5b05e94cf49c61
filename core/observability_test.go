package core

import (
	"context"
	"testing"
)

func TestLog_FlattensFieldsInKeyOrder(t *testing.T) {
	logger := newCaptureLogger()
	Log(context.Background(), logger, LevelWarn, "insecure mode", map[string]any{"b": 2, "a": 1})

	logs := logger.logs()
	if len(logs) != 1 {
		t.Fatalf("expected one entry, got %d", len(logs))
	}
	if logs[0].level != "warn" {
		t.Fatalf("expected warn level, got %q", logs[0].level)
	}
	if len(logs[0].args) != 4 || logs[0].args[0] != "a" || logs[0].args[2] != "b" {
		t.Fatalf("expected sorted flattened args, got %v", logs[0].args)
	}
}

func TestResolveLogger_FallsBackToNop(t *testing.T) {
	if ResolveLogger("labelwatch", nil, nil) == nil {
		t.Fatalf("expected nop logger")
	}
}
