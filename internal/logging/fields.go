package logging

import (
	"context"
	"log/slog"
	"time"

	"golemfacade/internal/services"
)

// Structured keys shared by every component. The stream hub lifts the
// subject keys out of Fields so clients can filter on them.
const (
	FieldComponent     = "component"
	FieldAgreementID   = "agreement_id"
	FieldActivityID    = "activity_id"
	FieldInvoiceID     = "invoice_id"
	FieldDaemon        = "daemon"
	FieldCorrelationID = "correlation_id"
	FieldSessionID     = "session_id"

	// FieldEventType classifies a line for filtering, e.g. "activity_stream_closed".
	FieldEventType = "event_type"
	// FieldErrorHint is the operator's next step for a failure.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-visible consequence of a warning.
	FieldImpact = "impact"
)

type Attr = slog.Attr

func Any(key string, value any) Attr                { return slog.Any(key, value) }
func Bool(key string, value bool) Attr              { return slog.Bool(key, value) }
func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }
func Int(key string, value int) Attr                { return slog.Int(key, value) }
func String(key, value string) Attr                 { return slog.String(key, value) }
func Time(key string, value time.Time) Attr         { return slog.Time(key, value) }

// Error records err under "error". A nil error is logged as "<nil>" rather
// than dropped so call sites stay uniform.
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Agreement tags a line with a market agreement.
func Agreement(id string) Attr { return slog.String(FieldAgreementID, id) }

// Daemon tags a line with the managed daemon it concerns.
func Daemon(name string) Attr { return slog.String(FieldDaemon, name) }

func toArgs(attrs []Attr) []any {
	args := make([]any, len(attrs))
	for i := range attrs {
		args[i] = attrs[i]
	}
	return args
}

// WithContext returns logger tagged with the agreement, daemon and request
// identifiers carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	if ctx == nil {
		return logger
	}
	var attrs []Attr
	if id, ok := services.AgreementIDFromContext(ctx); ok {
		attrs = append(attrs, Agreement(id))
	}
	if name, ok := services.DaemonFromContext(ctx); ok {
		attrs = append(attrs, Daemon(name))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		attrs = append(attrs, slog.String(FieldCorrelationID, rid))
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(toArgs(attrs)...)
}

// NewComponentLogger derives a logger that stamps every line with component.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(slog.String(FieldComponent, component))
}
