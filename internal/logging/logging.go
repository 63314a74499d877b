// Package logging provides structured logging for all sentinel processes.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	// TraceIDKey carries the request trace id.
	TraceIDKey contextKey = "trace_id"
	// UserIDKey carries the authenticated user id.
	UserIDKey contextKey = "user_id"
	// RoleKey carries the authenticated user role.
	RoleKey contextKey = "role"
)

// LoggingConfig controls logger construction.
type LoggingConfig struct {
	Level      string
	Format     string
	Output     string // stdout, file or both
	Dir        string
	FilePrefix string
}

// Logger wraps a logrus entry bound to a service name.
type Logger struct {
	*logrus.Entry
	service string
	closer  io.Closer
}

// New creates a logger writing to stdout.
func New(service, level, format string) *Logger {
	l, _ := NewFromConfig(service, LoggingConfig{Level: level, Format: format, Output: "stdout"})
	return l
}

// NewDefault creates an info-level json logger.
func NewDefault(service string) *Logger {
	return New(service, "info", "json")
}

// NewFromConfig creates a logger honouring the output settings. When the log
// file cannot be opened the logger falls back to stdout and returns the error.
func NewFromConfig(service string, cfg LoggingConfig) (*Logger, error) {
	base := logrus.New()

	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	switch strings.ToLower(cfg.Format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	var (
		out     io.Writer = os.Stdout
		closer  io.Closer
		openErr error
	)
	output := strings.ToLower(cfg.Output)
	if output == "file" || output == "both" {
		f, err := openLogFile(service, cfg)
		if err != nil {
			openErr = err
		} else {
			closer = f
			if output == "both" {
				out = io.MultiWriter(os.Stdout, f)
			} else {
				out = f
			}
		}
	}
	base.SetOutput(out)

	return &Logger{
		Entry:   base.WithField("service", service),
		service: service,
		closer:  closer,
	}, openErr
}

func openLogFile(service string, cfg LoggingConfig) (*os.File, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	prefix := cfg.FilePrefix
	if prefix == "" {
		prefix = "sentinel"
	}
	name := filepath.Join(dir, fmt.Sprintf("%s-%s.log", prefix, service))
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Service returns the service name the logger was created for.
func (l *Logger) Service() string { return l.service }

// Named returns a child logger for a sub-component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component), service: l.service}
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WithContext returns an entry annotated with request-scoped identifiers.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Entry.WithContext(ctx)
	if ctx == nil {
		return entry
	}
	fields := logrus.Fields{}
	if v := GetTraceID(ctx); v != "" {
		fields["trace_id"] = v
	}
	if v := GetUserID(ctx); v != "" {
		fields["user_id"] = v
	}
	if len(fields) == 0 {
		return entry
	}
	return entry.WithFields(fields)
}

// LogRequest records a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, status int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	})
	switch {
	case status >= 500:
		entry.Error("request failed")
	case status >= 400:
		entry.Warn("request rejected")
	default:
		entry.Info("request completed")
	}
}

// LogSecurityEvent records an authentication or abuse related event.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithFields(fields).WithField("security_event", event).Warn("security event")
}

// NewTraceID generates a fresh trace id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID stores the trace id in the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace id stored in ctx.
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetUserID returns the authenticated user id stored in ctx.
func GetUserID(ctx context.Context) string {
	return stringValue(ctx, UserIDKey)
}

// GetRole returns the authenticated role stored in ctx.
func GetRole(ctx context.Context) string {
	return stringValue(ctx, RoleKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
