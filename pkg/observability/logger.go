package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/greenroomhq/greenroom/pkg/contextkeys"
)

// LogLevel is the minimum severity a logger emits
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[LogLevel]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger writes structured JSON log lines. Authorization refusals are
// investigated after the fact, so every line should carry enough
// fields (user_id, code, request_id) to reconstruct the decision.
type Logger struct {
	s     *slog.Logger
	level LogLevel
}

// NewLogger returns a JSON logger writing to output, or stdout when
// output is nil.
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level.slogLevel(),
	})
	return &Logger{s: slog.New(handler), level: level}
}

// WithField returns a logger that adds key=value to every line
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{s: l.s.With(key, value), level: l.level}
}

// WithFields returns a logger that adds every given field
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{s: l.s.With(args...), level: l.level}
}

// WithError returns a logger carrying the error message, or the
// receiver unchanged when err is nil.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// WithRequest returns a logger carrying the request ID and acting user
// from the request context, when the middleware chain has set them.
func (l *Logger) WithRequest(ctx context.Context) *Logger {
	out := l
	if requestID := contextkeys.GetRequestID(ctx); requestID != "" {
		out = out.WithField("request_id", requestID)
	}
	if userID := contextkeys.GetUserID(ctx); userID != "" {
		out = out.WithField("user_id", userID)
	}
	return out
}

func (l *Logger) Debug(message string) { l.s.Debug(message) }
func (l *Logger) Info(message string)  { l.s.Info(message) }
func (l *Logger) Warn(message string)  { l.s.Warn(message) }
func (l *Logger) Error(message string) { l.s.Error(message) }

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.s.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.s.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.s.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.s.Error(fmt.Sprintf(format, args...))
}
