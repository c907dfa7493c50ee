package corolog

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLogsJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug")

	l.Warn("reactor", "handler panicked", "fd", 7)

	out := buf.String()
	if !strings.Contains(out, `"component":"reactor"`) {
		t.Fatalf("expected component field, got %s", out)
	}
	if !strings.Contains(out, `"fd":7`) {
		t.Fatalf("expected fd field, got %s", out)
	}
	if !strings.Contains(out, "handler panicked") {
		t.Fatalf("expected message, got %s", out)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var l *Logger
	l.Debug("scheduler", "spawned")
	l.Warn("scheduler", "warn")
	l.Err("scheduler", nil)
}

func TestUnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "not-a-level")

	l.Debug("stack", "should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected debug to be filtered at default info level, got %s", buf.String())
	}

	l.Warn("stack", "should appear")
	if buf.Len() == 0 {
		t.Fatal("expected warning to pass the default info level")
	}
}
