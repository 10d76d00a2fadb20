package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golemfacade/internal/logging"
	"golemfacade/internal/services"
)

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-info.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if strings.Contains(string(content), ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "debug",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerRendersComponentAndAgreement(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "activity").Info("job started",
		logging.String(logging.FieldAgreementID, "0123456789abcdef0123"),
		logging.String("status", "Computing"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "INFO activity: [0123456789ab] job started") {
		t.Fatalf("unexpected console line %q", line)
	}
	if !strings.Contains(line, "status=Computing") {
		t.Fatalf("expected status attr in %q", line)
	}
}

func TestJSONLoggerWritesStructuredRecord(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}, ErrorOutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("json message", logging.String("k", "v"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json line: %v", err)
	}
	if record["msg"] != "json message" || record["level"] != "info" || record["k"] != "v" {
		t.Fatalf("unexpected record %#v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key in %#v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewPublishesToStreamWithSession(t *testing.T) {
	hub := logging.NewStreamHub(8)
	logger, err := logging.New(logging.Options{
		Format:      "json",
		OutputPaths: []string{filepath.Join(t.TempDir(), "out.log")},
		Stream:      hub,
		SessionID:   "sess-1",
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("stream me", logging.String(logging.FieldEventType, "probe"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType != "probe" {
		t.Fatalf("event type = %q", events[0].EventType)
	}
	if events[0].Fields[logging.FieldSessionID] != "sess-1" {
		t.Fatalf("expected session id in fields, got %#v", events[0].Fields)
	}
}

type captureHandler struct {
	records *[]slog.Record
	attrs   []slog.Attr
}

func (h captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h captureHandler) Handle(_ context.Context, r slog.Record) error {
	r.AddAttrs(h.attrs...)
	*h.records = append(*h.records, r)
	return nil
}

func (h captureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return captureHandler{records: h.records, attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...)}
}

func (h captureHandler) WithGroup(string) slog.Handler { return h }

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithAgreementID(ctx, "agr-9")
	ctx = services.WithDaemon(ctx, "provider")
	ctx = services.WithRequestID(ctx, "req-xyz")

	var records []slog.Record
	logger := slog.New(captureHandler{records: &records})
	logging.WithContext(ctx, logger).Info("contextual log")

	if len(records) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(records))
	}
	got := map[string]string{}
	records[0].Attrs(func(a slog.Attr) bool {
		got[a.Key] = a.Value.String()
		return true
	})
	want := map[string]string{
		logging.FieldAgreementID:   "agr-9",
		logging.FieldDaemon:        "provider",
		logging.FieldCorrelationID: "req-xyz",
	}
	for key, value := range want {
		if got[key] != value {
			t.Fatalf("field %s = %q, want %q", key, got[key], value)
		}
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	var records []slog.Record
	logger := slog.New(captureHandler{records: &records})
	logging.WarnWithContext(logger, "retrying", "invoice_poll_retry", logging.String(logging.FieldImpact, "payments delayed"))

	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := map[string]string{}
	records[0].Attrs(func(a slog.Attr) bool {
		got[a.Key] = a.Value.String()
		return true
	})
	if got[logging.FieldEventType] != "invoice_poll_retry" {
		t.Fatalf("event type = %q", got[logging.FieldEventType])
	}
	if got[logging.FieldErrorHint] == "" {
		t.Fatal("expected default error hint")
	}
	if got[logging.FieldImpact] != "payments delayed" {
		t.Fatalf("impact overridden: %q", got[logging.FieldImpact])
	}
}
