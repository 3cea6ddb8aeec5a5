package assistant

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTranscriptLogWritesPerVisitorNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewTranscriptLog(TranscriptLogConfig{
		Enabled:   true,
		Dir:       dir,
		QueueSize: 16,
	}, slog.Default())
	if err != nil {
		t.Fatalf("NewTranscriptLog failed: %v", err)
	}
	defer func() { _ = logger.Close() }()

	logger.Log(TranscriptEvent{
		VisitorID: "user_1_abcd1234_example.com",
		Direction: "outbound",
		EventType: "user_message",
		Text:      "how much is a suite?",
	})

	path := filepath.Join(dir, "user_1_abcd1234_example.com.ndjson")
	line := waitForLogLine(t, path)

	var got TranscriptEvent
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("failed to unmarshal log line: %v", err)
	}
	if got.Text != "how much is a suite?" {
		t.Errorf("unexpected text: %q", got.Text)
	}
	if got.Timestamp == "" {
		t.Error("expected timestamp to be stamped")
	}
}

func TestTranscriptLogDisabledIsNoop(t *testing.T) {
	t.Parallel()

	logger, err := NewTranscriptLog(TranscriptLogConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("NewTranscriptLog failed: %v", err)
	}
	logger.Log(TranscriptEvent{VisitorID: "x", Text: "dropped"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestCleanForReadabilityStripsANSI(t *testing.T) {
	t.Parallel()

	raw := "\x1b[31merror\x1b[0m plain"
	clean := cleanForReadability(raw)
	if strings.Contains(clean, "\x1b[31m") {
		t.Fatalf("expected ANSI sequence to be stripped: %q", clean)
	}
	if !strings.Contains(clean, "error plain") {
		t.Fatalf("expected readable text to remain: %q", clean)
	}
}

func TestSanitizePathComponent(t *testing.T) {
	t.Parallel()

	got := sanitizePathComponent("../../etc/passwd")
	if strings.ContainsAny(got, `/\`) {
		t.Errorf("path separators not neutralized: %q", got)
	}
	if !strings.Contains(got, "etc_passwd") {
		t.Errorf("unexpected sanitized form: %q", got)
	}
}

func waitForLogLine(t *testing.T, path string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		data, err := os.ReadFile(path)
		if err == nil && len(data) > 0 {
			lines := strings.Split(strings.TrimSpace(string(data)), "\n")
			if len(lines) > 0 {
				return lines[len(lines)-1]
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for log file %s", path)
	return ""
}
