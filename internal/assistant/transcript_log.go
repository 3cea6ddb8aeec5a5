package assistant

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// TranscriptLogger records conversation events for offline review.
type TranscriptLogger interface {
	Log(event TranscriptEvent)
	Close() error
}

// TranscriptEvent is one logged conversation turn.
type TranscriptEvent struct {
	Timestamp string `json:"timestamp"`
	VisitorID string `json:"visitor_id"`
	Direction string `json:"direction"`
	EventType string `json:"event_type"`
	Text      string `json:"text"`
}

// TranscriptLogConfig configures the NDJSON transcript logger.
type TranscriptLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// NopTranscriptLogger discards every event.
type NopTranscriptLogger struct{}

// Log discards the event.
func (NopTranscriptLogger) Log(TranscriptEvent) {}

// Close is a no-op.
func (NopTranscriptLogger) Close() error { return nil }

// TranscriptLog appends events to one NDJSON file per visitor under the
// configured directory. Writes happen on a single background goroutine; a
// full queue drops the event rather than blocking the request path.
type TranscriptLog struct {
	dir    string
	queue  chan TranscriptEvent
	done   chan struct{}
	log    *slog.Logger
	closed sync.Once
	wg     sync.WaitGroup
}

// NewTranscriptLog creates the transcript logger and starts its writer
// goroutine. A disabled config yields the no-op logger.
func NewTranscriptLog(cfg TranscriptLogConfig, logger *slog.Logger) (TranscriptLogger, error) {
	if !cfg.Enabled {
		return NopTranscriptLogger{}, nil
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript log: dir is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("transcript log: create dir: %w", err)
	}

	tl := &TranscriptLog{
		dir:   cfg.Dir,
		queue: make(chan TranscriptEvent, cfg.QueueSize),
		done:  make(chan struct{}),
		log:   logger,
	}
	tl.wg.Add(1)
	go tl.run()
	return tl, nil
}

// Log enqueues an event. The timestamp is stamped here when absent so callers
// can leave it empty.
func (tl *TranscriptLog) Log(event TranscriptEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	event.Text = cleanForReadability(event.Text)

	select {
	case tl.queue <- event:
	case <-tl.done:
	default:
		tl.log.Warn("Transcript log queue full, dropping event", "visitor_id", event.VisitorID)
	}
}

// Close stops the writer after draining queued events.
func (tl *TranscriptLog) Close() error {
	tl.closed.Do(func() { close(tl.done) })
	tl.wg.Wait()
	return nil
}

func (tl *TranscriptLog) run() {
	defer tl.wg.Done()
	for {
		select {
		case event := <-tl.queue:
			tl.write(event)
		case <-tl.done:
			for {
				select {
				case event := <-tl.queue:
					tl.write(event)
				default:
					return
				}
			}
		}
	}
}

func (tl *TranscriptLog) write(event TranscriptEvent) {
	visitor := sanitizePathComponent(event.VisitorID)
	if visitor == "" {
		visitor = "unknown"
	}
	path := filepath.Join(tl.dir, visitor+".ndjson")

	line, err := json.Marshal(event)
	if err != nil {
		tl.log.Warn("Failed to encode transcript event", "error", err)
		return
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		tl.log.Warn("Failed to open transcript file", "path", path, "error", err)
		return
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		tl.log.Warn("Failed to write transcript event", "path", path, "error", err)
	}
}

var (
	ansiEscapes   = regexp.MustCompile(`\x1b\[[0-9;?]*[a-zA-Z]`)
	unsafePathRun = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
)

// cleanForReadability strips terminal escape sequences and control characters
// so transcripts stay readable in a pager.
func cleanForReadability(s string) string {
	s = ansiEscapes.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r >= 0x20 {
			return r
		}
		return -1
	}, s)
}

// sanitizePathComponent keeps visitor IDs from escaping the log directory.
func sanitizePathComponent(s string) string {
	return unsafePathRun.ReplaceAllString(s, "_")
}
