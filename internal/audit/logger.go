// Package audit records management commands as JSON lines in a rotated
// audit.jsonl file.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/flight-control/mixerd/internal/auth"
)

// FileName is the audit log file inside the audit directory.
const FileName = "audit.jsonl"

// CodeSuccess is recorded for commands that completed without error.
const CodeSuccess = "SUCCESS"

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp time.Time              `json:"ts"`
	User      string                 `json:"user"`
	Source    string                 `json:"source"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Outcome   string                 `json:"outcome"`
	Code      string                 `json:"code"`
	LatencyMS float64                `json:"latencyMs"`
}

// Rotation controls when the audit file is rolled.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Logger appends audit entries to a rotated file.
type Logger struct {
	mu       sync.Mutex
	filePath string
	out      *lumberjack.Logger
}

// NewLogger creates the audit directory and opens the audit file in it.
func NewLogger(logDir string, rot Rotation) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filePath := filepath.Join(logDir, FileName)
	out := &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
	}
	// A zero-length write creates the file.
	if _, err := out.Write(nil); err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}

	return &Logger{filePath: filePath, out: out}, nil
}

// LogCommand records one command. code is CodeSuccess or the command error
// code; outcome is a short human-readable result.
func (l *Logger) LogCommand(ctx context.Context, source, action string, params map[string]interface{}, outcome, code string, latency time.Duration) {
	if l == nil {
		return
	}
	l.writeEntry(Entry{
		Timestamp: time.Now().UTC(),
		User:      userFromContext(ctx),
		Source:    source,
		Action:    action,
		Params:    params,
		Outcome:   outcome,
		Code:      code,
		LatencyMS: float64(latency.Microseconds()) / 1000,
	})
}

func (l *Logger) writeEntry(entry Entry) {
	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Failed to marshal audit entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		log.Printf("Failed to write audit entry: %v", err)
	}
}

func userFromContext(ctx context.Context) string {
	if claims := auth.ClaimsFromContext(ctx); claims != nil {
		return claims.Subject
	}
	return "unknown"
}

// Rotate closes the current file and starts a new one.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Rotate()
}

// Close closes the audit file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}

// GetFilePath returns the path to the audit log file.
func (l *Logger) GetFilePath() string {
	return l.filePath
}
