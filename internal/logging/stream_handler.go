package logging

import (
	"context"
	"log/slog"
	"strings"
)

// streamHandler publishes every handled record to a StreamHub before
// passing it on.
type streamHandler struct {
	next slog.Handler
	hub  *StreamHub
	// bound holds attrs from WithAttrs; record attrs override them.
	bound []slog.Attr
}

func newStreamHandler(next slog.Handler, hub *StreamHub) slog.Handler {
	if hub == nil || next == nil {
		return next
	}
	return &streamHandler{next: next, hub: hub}
}

func (h *streamHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *streamHandler) Handle(ctx context.Context, record slog.Record) error {
	h.hub.Publish(toLogEvent(record, h.bound))
	return h.next.Handle(ctx, record)
}

func (h *streamHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]slog.Attr, 0, len(h.bound)+len(attrs))
	bound = append(append(bound, h.bound...), attrs...)
	return &streamHandler{next: h.next.WithAttrs(attrs), hub: h.hub, bound: bound}
}

func (h *streamHandler) WithGroup(name string) slog.Handler {
	return &streamHandler{next: h.next.WithGroup(name), hub: h.hub, bound: h.bound}
}

func toLogEvent(record slog.Record, bound []slog.Attr) LogEvent {
	evt := LogEvent{
		Timestamp: record.Time,
		Level:     strings.ToUpper(record.Level.String()),
		Message:   strings.TrimSpace(record.Message),
	}
	lifted := map[string]*string{
		FieldComponent:     &evt.Component,
		FieldAgreementID:   &evt.AgreementID,
		FieldDaemon:        &evt.Daemon,
		FieldEventType:     &evt.EventType,
		FieldCorrelationID: &evt.CorrelationID,
	}
	apply := func(attr slog.Attr) bool {
		key := strings.TrimSpace(attr.Key)
		if key == "" {
			return true
		}
		value := attrString(attr.Value)
		if dst, ok := lifted[key]; ok {
			*dst = value
			return true
		}
		if evt.Fields == nil {
			evt.Fields = make(map[string]string)
		}
		evt.Fields[key] = value
		return true
	}
	for _, attr := range bound {
		apply(attr)
	}
	record.Attrs(apply)
	return evt
}
