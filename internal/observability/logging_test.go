package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer) *Logger {
	return NewLogger(LogConfig{Output: buf, Format: "text", Level: "debug"})
}

func TestRedactsAPIKeyInMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	key := "sk-ant-" + strings.Repeat("a1B2c3D4", 15) // well past the 95-char minimum
	logger.Info(context.Background(), "request failed: "+key)
	if strings.Contains(buf.String(), key) {
		t.Fatalf("expected the Anthropic-style key to be redacted, got %q", buf.String())
	}
}

func TestRedactsSecretInArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.Info(context.Background(), "config loaded", "raw", "password=hunter2hunter2")
	if strings.Contains(buf.String(), "hunter2hunter2") {
		t.Fatalf("expected the password value to be redacted, got %q", buf.String())
	}
}

func TestNonSecretMessagesPassThroughUnredacted(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)
	logger.Info(context.Background(), "agent started", "agent_id", "agent-1")
	if !strings.Contains(buf.String(), "agent-1") {
		t.Fatalf("expected an ordinary field to pass through, got %q", buf.String())
	}
}

func TestWithFieldsCarriesAcrossCalls(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf).WithFields("agent_id", "agent-1")
	logger.Info(context.Background(), "iteration started")
	if !strings.Contains(buf.String(), "agent-1") {
		t.Fatalf("expected WithFields to attach agent_id, got %q", buf.String())
	}
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Output: &buf, Format: "text", Level: "warn"})
	logger.Debug(context.Background(), "should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected debug record to be filtered at warn level, got %q", buf.String())
	}
	logger.Warn(context.Background(), "should appear")
	if buf.Len() == 0 {
		t.Fatalf("expected warn record to be emitted")
	}
}
