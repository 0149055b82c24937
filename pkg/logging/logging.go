// Package logging provides the broker's structured logging and
// security-event audit trail (spec §4.9). Every record is a JSON object
// with an ISO-8601, Z-suffixed timestamp; fields whose key is in the
// redaction set are replaced at serialization time so a forgotten call
// site can never leak a secret.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel defines the severity of a log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy fmt.Stringer.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SlogLevel maps LogLevel to its slog.Level equivalent.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a config string ("DEBUG"/"INFO"/"WARN"/"ERROR") into
// a LogLevel, defaulting to LevelInfo for anything unrecognized.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// redactedFields is the set of attribute keys that must never reach a log
// sink in plaintext (spec §4.9 / I3).
var redactedFields = map[string]bool{
	"client_secret": true,
	"password":      true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"authorization": true,
}

const redactedValue = "***REDACTED***"

// redactAttr is a slog.HandlerOptions.ReplaceAttr hook applied at
// serialization time, so redaction can never be forgotten at a call site.
// It also rewrites the default "time" key to an explicit Z-suffixed
// RFC3339 string, since spec §4.9 requires "timestamp", ISO-8601, UTC, and
// renames slog's default "msg" key to "message".
func redactAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		return slog.Attr{Key: "timestamp", Value: slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339))}
	}
	if a.Key == slog.MessageKey && len(groups) == 0 {
		return slog.Attr{Key: "message", Value: a.Value}
	}
	if redactedFields[strings.ToLower(a.Key)] {
		return slog.Attr{Key: a.Key, Value: slog.StringValue(redactedValue)}
	}
	return a
}

var defaultLogger *slog.Logger

// Init configures the package-level logger. Call once at startup, before
// any other function in this package is used.
func Init(level LogLevel, output io.Writer) {
	opts := &slog.HandlerOptions{
		Level:       level.SlogLevel(),
		ReplaceAttr: redactAttr,
	}
	defaultLogger = slog.New(slog.NewJSONHandler(output, opts))
	slog.SetDefault(defaultLogger)
}

func init() {
	// Safe to call Debug/Info/Warn/Error before Init: fall back to stderr
	// at INFO so a missing Init call degrades instead of panicking.
	Init(LevelInfo, os.Stderr)
}

func logInternal(level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	if defaultLogger == nil || !defaultLogger.Enabled(context.Background(), level.SlogLevel()) {
		return
	}
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	attrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	defaultLogger.LogAttrs(context.Background(), level.SlogLevel(), msg, attrs...)
}

// Debug logs a debug-level operational message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an info-level operational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warn-level operational message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error-level operational message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(LevelError, subsystem, err, messageFmt, args...)
}

// SecurityEventKind enumerates the audit-event kinds named in spec §4.9.
type SecurityEventKind string

const (
	EventAuthSuccess            SecurityEventKind = "auth_success"
	EventAuthFailure            SecurityEventKind = "auth_failure"
	EventTokenValidationFailure SecurityEventKind = "token_validation_failure"
	EventRateLimitExceeded      SecurityEventKind = "rate_limit_exceeded"
	EventSSLVerificationFailure SecurityEventKind = "ssl_verification_failure"
	EventConfigChange           SecurityEventKind = "config_change"
	EventUnauthorizedAccess     SecurityEventKind = "unauthorized_access"
	EventCircuitOpened          SecurityEventKind = "circuit_opened"
	EventCircuitClosed          SecurityEventKind = "circuit_closed"
)

// SecurityEvent is the structured audit record produced by §4.9's audit
// channel. Fields are logged individually so the redaction hook can act on
// any of them by key.
type SecurityEvent struct {
	Kind   SecurityEventKind
	Server string
	Fields map[string]string
}

// Audit logs a security event at WARN or higher, tagged security_event so
// log sinks can route or alert on it separately from operational logs.
func Audit(event SecurityEvent) {
	if defaultLogger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("subsystem", "AUDIT"),
		slog.Bool("security_event", true),
		slog.String("event_type", string(event.Kind)),
	}
	if event.Server != "" {
		attrs = append(attrs, slog.String("server", event.Server))
	}
	for k, v := range event.Fields {
		attrs = append(attrs, slog.String(k, v))
	}
	defaultLogger.LogAttrs(context.Background(), slog.LevelWarn, string(event.Kind), attrs...)
}
