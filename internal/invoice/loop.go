// Package invoice long-polls the payment API for invoice lifecycle events and
// folds the resulting payment status and confirmed payments into the job
// registry.
package invoice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

// Defaults for the polling cadence.
const (
	DefaultPollTimeout = 10 * time.Second
	DefaultHTTPRetry   = time.Second
	DefaultErrorRetry  = 5 * time.Second
)

// Source is the part of the payment API the loop reads.
type Source interface {
	InvoiceEvents(ctx context.Context, since time.Time, timeout time.Duration) ([]yagna.InvoiceEvent, error)
	Invoice(ctx context.Context, invoiceID string) (*yagna.Invoice, error)
	PaymentsSince(ctx context.Context, since time.Time) ([]yagna.Payment, error)
}

// Jobs receives payment updates. *jobs.Registry satisfies it.
type Jobs interface {
	Contains(id string) bool
	UpdatePaymentStatus(id string, status jobs.PaymentStatus)
	UpdatePaymentConfirmation(id string, payments []jobs.Payment)
}

// Loop is the invoice/payment reconciliation loop.
type Loop struct {
	source Source
	jobs   Jobs
	clock  clock.Clock
	logger *slog.Logger

	PollTimeout time.Duration
	// HTTPRetry is the pause after the daemon answers with an error status.
	HTTPRetry time.Duration
	// ErrorRetry is the pause after transport or decode failures.
	ErrorRetry time.Duration

	mu    sync.Mutex
	since time.Time
}

// NewLoop wires a loop whose watermark starts at the zero time, so every
// invoice event the daemon still holds is replayed once.
func NewLoop(source Source, registry Jobs, clk clock.Clock, logger *slog.Logger) *Loop {
	if clk == nil {
		clk = clock.Real()
	}
	return &Loop{
		source:      source,
		jobs:        registry,
		clock:       clk,
		logger:      logging.NewComponentLogger(logger, "invoice"),
		PollTimeout: DefaultPollTimeout,
		HTTPRetry:   DefaultHTTPRetry,
		ErrorRetry:  DefaultErrorRetry,
	}
}

// Since returns the current event watermark.
func (l *Loop) Since() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.since
}

// Run polls until ctx is cancelled and returns the context's error.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("invoice monitoring started", logging.Duration("poll_timeout", l.PollTimeout))
	defer l.logger.Info("invoice monitoring stopped")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := l.poll(ctx)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		delay := l.retryDelay(err)
		logging.WarnWithContext(l.logger, "invoice events poll failed", "invoice_poll_failed",
			logging.Error(err),
			logging.Duration("retry_in", delay),
			logging.Time("since", l.Since()),
			logging.String(logging.FieldImpact, "payment status updates delayed"),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(delay):
		}
	}
}

func (l *Loop) retryDelay(err error) time.Duration {
	var statusErr *yagna.StatusError
	if errors.As(err, &statusErr) {
		return l.HTTPRetry
	}
	return l.ErrorRetry
}

// poll runs one long-poll round. The watermark only moves once every event
// of the batch was handled.
func (l *Loop) poll(ctx context.Context) error {
	since := l.Since()
	events, err := l.source.InvoiceEvents(ctx, since, l.PollTimeout)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}
	l.logger.Debug("invoice events received", logging.Int("count", len(events)))

	latest := since
	for _, event := range events {
		if err := l.handle(ctx, event); err != nil {
			return err
		}
		if event.EventDate.After(latest) {
			latest = event.EventDate
		}
	}
	l.mu.Lock()
	l.since = latest
	l.mu.Unlock()
	return nil
}

func (l *Loop) handle(ctx context.Context, event yagna.InvoiceEvent) error {
	invoice, err := l.source.Invoice(ctx, event.InvoiceID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrDecode) {
			l.logger.Warn("invoice skipped",
				logging.String(logging.FieldInvoiceID, event.InvoiceID),
				logging.Error(err),
			)
			return nil
		}
		return err
	}

	id := invoice.AgreementID
	if !l.jobs.Contains(id) {
		l.logger.Info("invoice for untracked agreement dropped",
			logging.String(logging.FieldEventType, "invoice_untracked_agreement"),
			logging.String(logging.FieldInvoiceID, invoice.InvoiceID),
			logging.String(logging.FieldAgreementID, id),
			logging.String("invoice_status", string(invoice.Status)),
			logging.String(logging.FieldImpact, "payment status of this agreement is not recorded"),
		)
		return nil
	}
	status, err := jobs.PaymentStatusFromInvoice(invoice.Status)
	if err != nil {
		l.logger.Warn("invoice status not recognised",
			logging.String(logging.FieldInvoiceID, invoice.InvoiceID),
			logging.Error(err),
		)
		return nil
	}
	l.logger.Info("invoice event",
		logging.String(logging.FieldInvoiceID, invoice.InvoiceID),
		logging.String(logging.FieldAgreementID, id),
		logging.String("event_kind", event.EventType),
		logging.String("payment_status", string(status)),
	)
	l.jobs.UpdatePaymentStatus(id, status)

	if status != jobs.PaymentSettled {
		return nil
	}
	payments, err := l.source.PaymentsSince(ctx, time.Time{})
	if err != nil {
		return err
	}
	var confirmed []jobs.Payment
	for _, p := range payments {
		if partial, ok := jobs.PaymentForAgreement(p, id); ok {
			confirmed = append(confirmed, partial)
		}
	}
	if len(confirmed) > 0 {
		l.jobs.UpdatePaymentConfirmation(id, confirmed)
	}
	return nil
}
