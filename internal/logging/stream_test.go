package logging

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func TestStreamHandlerWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, nil)
	handler := newStreamHandler(base, hub)

	logger := slog.New(handler).With(slog.String(FieldAgreementID, "agr-42"))
	logger.Info("test message", slog.String("extra", "value"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].AgreementID != "agr-42" {
		t.Errorf("expected agreement_id=agr-42, got %q", events[0].AgreementID)
	}
	if events[0].Message != "test message" {
		t.Errorf("expected message='test message', got %q", events[0].Message)
	}
	if events[0].Fields["extra"] != "value" {
		t.Errorf("expected extra field, got %#v", events[0].Fields)
	}
}

func TestStreamHandlerNestedWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).
		With(slog.String(FieldComponent, "golem")).
		With(slog.String(FieldDaemon, "yagna")).
		With(slog.String(FieldCorrelationID, "run-1"))
	logger.Info("daemon started")

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	evt := events[0]
	if evt.Component != "golem" || evt.Daemon != "yagna" || evt.CorrelationID != "run-1" {
		t.Errorf("unexpected event %+v", evt)
	}
}

func TestStreamHandlerCallSiteOverridesWithAttrs(t *testing.T) {
	hub := NewStreamHub(100)
	handler := newStreamHandler(slog.NewTextHandler(discardWriter{}, nil), hub)

	logger := slog.New(handler).With(slog.String(FieldDaemon, "yagna"))
	logger.Info("message", slog.String(FieldDaemon, "provider"))

	events, _ := hub.Tail(10)
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Daemon != "provider" {
		t.Errorf("expected daemon='provider', got %q", events[0].Daemon)
	}
}

func TestStreamHandlerNilHub(t *testing.T) {
	base := slog.NewTextHandler(discardWriter{}, nil)
	if handler := newStreamHandler(base, nil); handler != base {
		t.Errorf("expected base handler when hub is nil")
	}
}

func TestStreamHandlerEnabled(t *testing.T) {
	hub := NewStreamHub(100)
	base := slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	handler := newStreamHandler(base, hub)

	if handler.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected INFO to be disabled when base level is WARN")
	}
	if !handler.Enabled(context.Background(), slog.LevelWarn) {
		t.Error("expected WARN to be enabled when base level is WARN")
	}
}

func TestStreamHubBoundedCapacity(t *testing.T) {
	hub := NewStreamHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	events, next := hub.Tail(0)
	if len(events) != 3 {
		t.Fatalf("expected 3 buffered events, got %d", len(events))
	}
	if next != 5 || events[0].Sequence != 3 {
		t.Fatalf("unexpected sequences: next=%d first=%d", next, events[0].Sequence)
	}
	if hub.Oldest() != 3 {
		t.Fatalf("oldest sequence = %d", hub.Oldest())
	}
}

func TestStreamHubFetchWaitsForEvent(t *testing.T) {
	hub := NewStreamHub(10)
	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.Publish(LogEvent{Message: "late"})
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	events, next, err := hub.Fetch(ctx, 0, 10, true)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(events) != 1 || events[0].Message != "late" || next != 1 {
		t.Fatalf("unexpected fetch result %+v next=%d", events, next)
	}
}

func TestStreamHubFetchResumesAfterLimit(t *testing.T) {
	hub := NewStreamHub(10)
	for i := 0; i < 4; i++ {
		hub.Publish(LogEvent{Message: "m"})
	}
	events, next, err := hub.Fetch(context.Background(), 0, 2, false)
	if err != nil || len(events) != 2 || next != 2 {
		t.Fatalf("first page: %d events next=%d err=%v", len(events), next, err)
	}
	events, next, _ = hub.Fetch(context.Background(), next, 2, false)
	if len(events) != 2 || events[0].Sequence != 3 || next != 4 {
		t.Fatalf("second page: %+v next=%d", events, next)
	}
}

func TestStreamHubFetchHonoursCancellation(t *testing.T) {
	hub := NewStreamHub(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := hub.Fetch(ctx, 0, 10, true); err == nil {
		t.Fatal("expected context error")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
