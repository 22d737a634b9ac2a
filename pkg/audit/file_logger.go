package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	activeLogName  = "audit.log"
	defaultMaxSize = 100 * 1024 * 1024
	defaultMaxLogs = 10
)

// FileLogger appends events as JSON lines to a local file, rotating by
// size. It is the on-host trail for deployments that ship files to a
// collector instead of a database.
type FileLogger struct {
	recorder
	dir      string
	maxSize  int64
	maxFiles int
	rotate   bool

	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// FileLoggerConfig configures the file trail
type FileLoggerConfig struct {
	BasePath string // directory holding the trail
	Rotate   bool
	MaxSize  int64 // bytes before rotation
	MaxFiles int   // rotated files kept
}

// DefaultFileLoggerConfig returns default configuration
func DefaultFileLoggerConfig() FileLoggerConfig {
	return FileLoggerConfig{
		BasePath: "/var/log/greenroom/audit",
		Rotate:   true,
		MaxSize:  defaultMaxSize,
		MaxFiles: defaultMaxLogs,
	}
}

// NewFileLogger opens the file trail, creating the directory as needed.
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	l := &FileLogger{
		dir:      config.BasePath,
		rotate:   config.Rotate,
		maxSize:  config.MaxSize,
		maxFiles: config.MaxFiles,
	}
	l.recorder = recorder{sink: l}
	if l.maxSize <= 0 {
		l.maxSize = defaultMaxSize
	}
	if l.maxFiles <= 0 {
		l.maxFiles = defaultMaxLogs
	}

	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) activePath() string {
	return filepath.Join(l.dir, activeLogName)
}

// open attaches the encoder to the active file, rotating first when
// the file is already over the size limit.
func (l *FileLogger) open() error {
	if l.rotate {
		if info, err := os.Stat(l.activePath()); err == nil && info.Size() >= l.maxSize {
			if err := l.rotateActive(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	file, err := os.OpenFile(l.activePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log file: %w", err)
	}
	l.file = file
	l.encoder = json.NewEncoder(file)
	return nil
}

// rotateActive renames the active file to a timestamped name and prunes
// the oldest rotated files beyond the retention count.
func (l *FileLogger) rotateActive() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	stamp := time.Now().Format("2006-01-02-15-04-05")
	rotated := filepath.Join(l.dir, fmt.Sprintf("audit-%s.log", stamp))
	if err := os.Rename(l.activePath(), rotated); err != nil {
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	if err := l.prune(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to prune old audit logs: %v\n", err)
	}
	return nil
}

func (l *FileLogger) prune() error {
	rotated, err := filepath.Glob(filepath.Join(l.dir, "audit-*.log"))
	if err != nil {
		return err
	}

	// Glob sorts lexically, and the timestamped names sort oldest first.
	if excess := len(rotated) - l.maxFiles; excess > 0 {
		for _, path := range rotated[:excess] {
			if err := os.Remove(path); err != nil {
				fmt.Fprintf(os.Stderr, "failed to remove old audit log %s: %v\n", path, err)
			}
		}
	}
	return nil
}

// Log appends one event, rotating first if the file outgrew the limit.
func (l *FileLogger) Log(ctx context.Context, event *AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotate && l.file != nil {
		if info, err := l.file.Stat(); err == nil && info.Size() >= l.maxSize {
			if err := l.open(); err != nil {
				return fmt.Errorf("failed to rotate log file: %w", err)
			}
		}
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// Close releases the active file. Safe to call twice.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ReadLogs returns up to count events from the active file, oldest
// first. A count of zero reads everything.
func (l *FileLogger) ReadLogs(count int) ([]*AuditEvent, error) {
	file, err := os.Open(l.activePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer file.Close()

	var events []*AuditEvent
	decoder := json.NewDecoder(file)
	for {
		var event AuditEvent
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode audit log entry: %w", err)
		}
		events = append(events, &event)
		if count > 0 && len(events) >= count {
			break
		}
	}
	return events, nil
}
