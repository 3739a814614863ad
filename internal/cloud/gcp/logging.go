// Package gcp adapts the harness's structured logging and credential
// resolution to Google Cloud Logging and Secret Manager when a task's
// HarnessConfig.Cloud section enables it.
package gcp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

// Logger is the structured-logging sink the harness writes to: one entry
// per terminal task outcome and one per LLM-proxy inspection-hook call
// (spec.md §4.4's "Observers must not block the response path").
type Logger interface {
	Log(severity logging.Severity, message string, labels map[string]string)
	Info(message string)
	Warn(message string)
	Error(message string)
	Flush() error
	Close() error
}

// CloudLogger ships structured entries to Cloud Logging via the
// cloud.google.com/go/logging client.
type CloudLogger struct {
	mu        sync.Mutex
	client    *logging.Client
	logger    *logging.Logger
	sessionID string
	iteration int
	projectID string
}

// NewCloudLogger creates a Cloud Logging-backed Logger for the given
// project-scoped logName ("agentharness" by default). sessionID labels
// every entry so log queries can be scoped to one task run.
func NewCloudLogger(ctx context.Context, sessionID, logName string, opts ...option.ClientOption) (*CloudLogger, error) {
	projectID, err := resolveProjectID(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcp: resolve project id: %w", err)
	}
	if logName == "" {
		logName = "agentharness"
	}
	client, err := logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcp: new logging client: %w", err)
	}
	return &CloudLogger{
		client:    client,
		logger:    client.Logger(logName),
		sessionID: sessionID,
		projectID: projectID,
	}, nil
}

// SetIteration tags subsequent entries with a monotonic counter (e.g. the
// Nth LLM-proxy request observed this task), for ordering in log queries.
func (cl *CloudLogger) SetIteration(iteration int) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.iteration = iteration
}

// Log writes a structured entry at the given severity.
func (cl *CloudLogger) Log(severity logging.Severity, message string, labels map[string]string) {
	cl.mu.Lock()
	merged := map[string]string{
		"session_id": cl.sessionID,
		"component":  "agentharness",
		"iteration":  strconv.Itoa(cl.iteration),
	}
	cl.mu.Unlock()
	for k, v := range labels {
		merged[k] = v
	}
	cl.logger.Log(logging.Entry{
		Timestamp: time.Now().UTC(),
		Severity:  severity,
		Payload:   message,
		Labels:    merged,
	})
}

// Info logs message at INFO severity.
func (cl *CloudLogger) Info(message string) { cl.Log(logging.Info, message, nil) }

// Warn logs message at WARNING severity.
func (cl *CloudLogger) Warn(message string) { cl.Log(logging.Warning, message, nil) }

// Error logs message at ERROR severity.
func (cl *CloudLogger) Error(message string) { cl.Log(logging.Error, message, nil) }

// Flush blocks until buffered entries are sent.
func (cl *CloudLogger) Flush() error {
	return cl.logger.Flush()
}

// Close flushes and releases the underlying client.
func (cl *CloudLogger) Close() error {
	if err := cl.logger.Flush(); err != nil {
		_ = cl.client.Close()
		return err
	}
	return cl.client.Close()
}

// StdLogger is the non-cloud fallback: plain-text lines to an io.Writer,
// used when HarnessConfig.Cloud is disabled (the common case — this
// harness runs once per task, typically outside GCP).
type StdLogger struct {
	mu     sync.Mutex
	writer io.Writer
	prefix string
}

// NewStdLogger creates a Logger that writes "<prefix>[Severity] message
// {labels}" lines to w.
func NewStdLogger(w io.Writer, prefix string) *StdLogger {
	return &StdLogger{writer: w, prefix: prefix}
}

func (sl *StdLogger) Log(severity logging.Severity, message string, labels map[string]string) {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	var b strings.Builder
	b.WriteString(sl.prefix)
	b.WriteString("[")
	b.WriteString(severity.String())
	b.WriteString("] ")
	b.WriteString(message)
	if len(labels) > 0 {
		b.WriteString(" {")
		first := true
		for k, v := range labels {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(k)
			b.WriteString("=")
			b.WriteString(v)
		}
		b.WriteString("}")
	}
	fmt.Fprintln(sl.writer, b.String())
}

func (sl *StdLogger) Info(message string)  { sl.Log(logging.Info, message, nil) }
func (sl *StdLogger) Warn(message string)  { sl.Log(logging.Warning, message, nil) }
func (sl *StdLogger) Error(message string) { sl.Log(logging.Error, message, nil) }

// Flush is a no-op: writes are synchronous.
func (sl *StdLogger) Flush() error { return nil }

// Close is a no-op: the writer is owned by the caller.
func (sl *StdLogger) Close() error { return nil }

// NewLogger returns a CloudLogger when cloudEnabled and project resolution
// succeeds, otherwise a StdLogger writing to stderr — matching
// HarnessConfig.Cloud.Enabled's role in SPEC_FULL.md §4.10.
func NewLogger(ctx context.Context, sessionID, logName string, cloudEnabled bool) Logger {
	if cloudEnabled {
		if cl, err := NewCloudLogger(ctx, sessionID, logName); err == nil {
			return cl
		}
	}
	return NewStdLogger(os.Stderr, "")
}

func resolveProjectID(ctx context.Context) (string, error) {
	for _, key := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v, nil
		}
	}
	return getInstanceMetadataField(ctx, "project/project-id")
}

// getInstanceMetadataField fetches a single field from the GCP metadata
// server, relative to the metadata root (e.g. "project/project-id").
func getInstanceMetadataField(ctx context.Context, field string) (string, error) {
	url := "http://metadata.google.internal/computeMetadata/v1/" + field
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("gcp: build metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gcp: fetch metadata field %s: %w", field, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gcp: metadata server returned status %d for field %s", resp.StatusCode, field)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gcp: read metadata response: %w", err)
	}
	value := strings.TrimSpace(string(body))
	if value == "" {
		return "", fmt.Errorf("gcp: empty value for metadata field %s", field)
	}
	return value, nil
}

var _ Logger = (*CloudLogger)(nil)
var _ Logger = (*StdLogger)(nil)
