package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type recordingHandler struct {
	level   slog.Level
	records *[]slog.Record
	err     error
}

func newRecording(level slog.Level) recordingHandler {
	return recordingHandler{level: level, records: new([]slog.Record)}
}

func (h recordingHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level }

func (h recordingHandler) Handle(_ context.Context, r slog.Record) error {
	*h.records = append(*h.records, r)
	return h.err
}

func (h recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h recordingHandler) WithGroup(string) slog.Handler      { return h }

func TestTeeCollapsesTrivialCases(t *testing.T) {
	if _, ok := tee(nil).(NoopHandler); !ok {
		t.Fatal("expected noop handler for no destinations")
	}
	single := newRecording(slog.LevelInfo)
	if got := tee([]slog.Handler{nil, single, nil}); got.(recordingHandler).records != single.records {
		t.Fatal("expected the only non-nil handler to be returned as is")
	}
}

func TestTeeLoggerRespectsEachLevel(t *testing.T) {
	info := newRecording(slog.LevelInfo)
	debug := newRecording(slog.LevelDebug)
	logger := TeeLogger(slog.New(info), debug)

	logger.Debug("only debug sink")
	logger.Info("both sinks")

	if len(*info.records) != 1 {
		t.Fatalf("info sink got %d records, want 1", len(*info.records))
	}
	if len(*debug.records) != 2 {
		t.Fatalf("debug sink got %d records, want 2", len(*debug.records))
	}
}

func TestTeeLoggerNilBase(t *testing.T) {
	sink := newRecording(slog.LevelInfo)
	TeeLogger(nil, sink).Info("hello")
	if len(*sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(*sink.records))
	}
}

func TestTeeJoinsErrorsAndKeepsGoing(t *testing.T) {
	failing := newRecording(slog.LevelInfo)
	failing.err = errors.New("disk full")
	healthy := newRecording(slog.LevelInfo)
	h := tee([]slog.Handler{failing, healthy})

	var r slog.Record
	r.Level = slog.LevelInfo
	err := h.Handle(context.Background(), r)
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(*healthy.records) != 1 {
		t.Fatal("healthy handler skipped after a failure")
	}
}

func TestTeeWithAttrsReachesEveryDestination(t *testing.T) {
	var a, b bytes.Buffer
	logger := TeeLogger(
		slog.New(slog.NewTextHandler(&a, nil)),
		slog.NewTextHandler(&b, nil),
	).With(Agreement("agr-1"))
	logger.Info("computing")

	for name, buf := range map[string]*bytes.Buffer{"base": &a, "extra": &b} {
		if !strings.Contains(buf.String(), "agreement_id=agr-1") {
			t.Fatalf("%s destination missing agreement: %q", name, buf.String())
		}
	}
}

func TestStampHandlerAddsAttrsAfterWith(t *testing.T) {
	var buf bytes.Buffer
	h := withStamp(slog.NewTextHandler(&buf, nil), slog.String(FieldSessionID, "sess-7"))
	slog.New(h).With(Daemon("yagna")).Info("started")

	out := buf.String()
	if !strings.Contains(out, "session_id=sess-7") || !strings.Contains(out, "daemon=yagna") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestStampHandlerNilBase(t *testing.T) {
	if _, ok := withStamp(nil, slog.String("k", "v")).(NoopHandler); !ok {
		t.Fatal("expected noop handler for nil base")
	}
}
