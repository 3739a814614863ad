package gcp

import (
	"context"

	"cloud.google.com/go/logging"
	"github.com/harnessd/agentharness/internal/security"
	"google.golang.org/api/option"
)

// SecureLogger wraps a Logger with automatic secret redaction, so an
// agent-supplied value that happens to contain a credential never reaches
// Cloud Logging or stderr unredacted.
type SecureLogger struct {
	inner     Logger
	sanitizer *security.LogSanitizer
}

// NewSecureCloudLogger builds a Cloud Logging-backed Logger wrapped with
// redaction.
func NewSecureCloudLogger(ctx context.Context, sessionID, logName string, opts ...option.ClientOption) (*SecureLogger, error) {
	cl, err := NewCloudLogger(ctx, sessionID, logName, opts...)
	if err != nil {
		return nil, err
	}
	return WrapSecure(cl), nil
}

// WrapSecure wraps any Logger with redaction, used for the StdLogger
// fallback path too.
func WrapSecure(inner Logger) *SecureLogger {
	return &SecureLogger{inner: inner, sanitizer: security.NewLogSanitizer()}
}

func (sl *SecureLogger) Log(severity logging.Severity, message string, labels map[string]string) {
	sl.inner.Log(severity, sl.sanitizer.Sanitize(message), sl.sanitizer.SanitizeMap(labels))
}

func (sl *SecureLogger) Info(message string)  { sl.Log(logging.Info, message, nil) }
func (sl *SecureLogger) Warn(message string)  { sl.Log(logging.Warning, message, nil) }
func (sl *SecureLogger) Error(message string) { sl.Log(logging.Error, message, nil) }
func (sl *SecureLogger) Flush() error         { return sl.inner.Flush() }
func (sl *SecureLogger) Close() error         { return sl.inner.Close() }

var _ Logger = (*SecureLogger)(nil)
