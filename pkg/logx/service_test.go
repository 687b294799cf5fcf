package logx

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatOpsLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"2026-01-01T00:00:00Z","message":"send failed","user_id":42,"caller":"dispatch.go:10"}`
	got := formatOpsLine([]byte(line))

	if !strings.HasPrefix(got, "[WARN] send failed") {
		t.Fatalf("unexpected header: %q", got)
	}
	// keys are sorted
	ci := strings.Index(got, "- caller=")
	ui := strings.Index(got, "- user_id=42")
	if ci < 0 || ui < 0 || ci > ui {
		t.Fatalf("expected sorted fields, got %q", got)
	}
	if strings.Contains(got, "time=") {
		t.Fatalf("time must not be rendered: %q", got)
	}
}

func TestFormatOpsLineNotJSON(t *testing.T) {
	t.Parallel()
	if got := formatOpsLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	if got := truncate("abcdefghijklmnop", 12); got != "abcdefghi..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 12); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "DEBUG").With(String("comp", "test"))
	log.Info("hello", Int("n", 3))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["comp"] != "test" || m["message"] != "hello" || m["n"] != float64(3) {
		t.Fatalf("unexpected fields: %v", m)
	}
	if _, ok := m["caller"]; !ok {
		t.Fatalf("expected caller field: %v", m)
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("ignored")
}
