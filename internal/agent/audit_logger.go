package agent

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AuditEvent is one NDJSON line in the interaction audit stream. It mirrors
// the persisted interaction row but is written asynchronously so a slow
// disk never sits on the request path.
type AuditEvent struct {
	Timestamp       string   `json:"ts"`
	UserID          string   `json:"user_id"`
	ConversationID  string   `json:"conversation_id"`
	Policy          string   `json:"policy"`
	AgentUsed       string   `json:"agent_used"`
	ToolsCalled     []string `json:"tools_called,omitempty"`
	InputText       string   `json:"input_text"`
	OutputText      string   `json:"output_text"`
	ConfidenceScore float64  `json:"confidence_score"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
	Error           string   `json:"error,omitempty"`
}

// AuditLogger records interaction events. Implementations must be safe for
// concurrent use and must never block the caller.
type AuditLogger interface {
	Log(event AuditEvent)
	Close() error
}

// NopAuditLogger discards events; used when audit logging is disabled.
type NopAuditLogger struct{}

func (NopAuditLogger) Log(AuditEvent) {}
func (NopAuditLogger) Close() error   { return nil }

// FileAuditLogger appends events as NDJSON, one file per user under the
// configured directory. Events flow through a bounded queue; when the queue
// is full the event is dropped and counted rather than stalling a turn.
type FileAuditLogger struct {
	dir     string
	queue   chan AuditEvent
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
	dropped int64
	mu      sync.Mutex
}

// NewFileAuditLogger creates the logger and starts its writer goroutine.
func NewFileAuditLogger(dir string, queueSize int, logger *slog.Logger) (*FileAuditLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	l := &FileAuditLogger{
		dir:    dir,
		queue:  make(chan AuditEvent, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	l.wg.Add(1)
	go l.writeLoop()
	return l, nil
}

// Log enqueues an event, dropping it when the queue is full.
func (l *FileAuditLogger) Log(event AuditEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	select {
	case l.queue <- event:
	default:
		l.mu.Lock()
		l.dropped++
		dropped := l.dropped
		l.mu.Unlock()
		l.logger.Warn("audit log queue full, event dropped", "total_dropped", dropped)
	}
}

// Close drains the queue and stops the writer.
func (l *FileAuditLogger) Close() error {
	close(l.done)
	l.wg.Wait()
	return nil
}

func (l *FileAuditLogger) writeLoop() {
	defer l.wg.Done()
	for {
		select {
		case event := <-l.queue:
			l.write(event)
		case <-l.done:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case event := <-l.queue:
					l.write(event)
				default:
					return
				}
			}
		}
	}
}

func (l *FileAuditLogger) write(event AuditEvent) {
	userDir := filepath.Join(l.dir, sanitizePathComponent(event.UserID))
	if err := os.MkdirAll(userDir, 0750); err != nil {
		l.logger.Warn("failed to create audit log user directory", "error", err)
		return
	}

	path := filepath.Join(userDir, sanitizePathComponent(event.ConversationID)+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		l.logger.Warn("failed to open audit log file", "path", path, "error", err)
		return
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			l.logger.Warn("failed to close audit log file", "path", path, "error", closeErr)
		}
	}()

	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal audit event", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("failed to write audit event", "path", path, "error", err)
	}
}

func sanitizePathComponent(s string) string {
	if s == "" {
		return "unknown"
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			out = append(out, c)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
