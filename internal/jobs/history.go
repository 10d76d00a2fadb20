package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golemfacade/internal/logging"
	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

// HistorySource is the slice of the daemon REST API used to rebuild jobs
// after the fact.
type HistorySource interface {
	AgreementsSince(ctx context.Context, since time.Time) ([]yagna.AgreementInfo, error)
	Agreement(ctx context.Context, id string) (*yagna.Agreement, error)
	ActivitiesForAgreement(ctx context.Context, agreementID string) ([]string, error)
	ActivityState(ctx context.Context, activityID string) (yagna.StatePair, error)
	ActivityUsage(ctx context.Context, activityID string) (yagna.ActivityUsage, error)
	TerminationReason(ctx context.Context, agreementID string) (*yagna.AgreementEvent, error)
	AgreementEvents(ctx context.Context, since time.Time) ([]yagna.AgreementEvent, error)
	InvoicesSince(ctx context.Context, since time.Time) ([]yagna.Invoice, error)
	PaymentsSince(ctx context.Context, since time.Time) ([]yagna.Payment, error)
}

// Reconcile queries the daemon for every agreement since the given time and
// folds activities, invoices and payments into the registry through the same
// update methods the live loops use, so both paths converge on one Job per
// agreement. Failures on a single agreement are logged and skipped.
func (r *Registry) Reconcile(ctx context.Context, src HistorySource, since time.Time) ([]Job, error) {
	infos, err := src.AgreementsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list agreements: %w", err)
	}

	terminations := r.terminationEvents(ctx, src, since)
	known := make(map[string]struct{}, len(infos))
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !since.IsZero() && info.Timestamp.Before(since) {
			continue
		}
		if err := r.reconcileAgreement(ctx, src, info.ID, terminations[info.ID]); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			logging.WarnWithContext(r.logger, "job history skipped agreement", "history_agreement_skipped",
				logging.String(logging.FieldAgreementID, info.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "job missing from history listing"),
			)
			continue
		}
		known[info.ID] = struct{}{}
	}

	invoices, err := src.InvoicesSince(ctx, since)
	if err != nil {
		logging.WarnWithContext(r.logger, "job history invoices unavailable", "history_invoices_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "payment status may be stale"),
		)
	}
	for _, invoice := range invoices {
		if _, ok := known[invoice.AgreementID]; !ok {
			continue
		}
		status, err := PaymentStatusFromInvoice(invoice.Status)
		if err != nil {
			r.logger.Warn("job history invoice ignored",
				logging.String(logging.FieldInvoiceID, invoice.InvoiceID),
				logging.Error(err),
			)
			continue
		}
		r.UpdatePaymentStatus(invoice.AgreementID, status)
	}

	payments, err := src.PaymentsSince(ctx, since)
	if err != nil {
		logging.WarnWithContext(r.logger, "job history payments unavailable", "history_payments_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "payment confirmations may be incomplete"),
		)
	}
	for id := range known {
		var confirmed []Payment
		for _, p := range payments {
			if partial, ok := PaymentForAgreement(p, id); ok {
				confirmed = append(confirmed, partial)
			}
		}
		if len(confirmed) > 0 {
			r.UpdatePaymentConfirmation(id, confirmed)
		}
	}

	return r.List(since), nil
}

// terminationEvents fetches termination events in one call. Agreements
// missing from the result fall back to a per-agreement reason lookup.
func (r *Registry) terminationEvents(ctx context.Context, src HistorySource, since time.Time) map[string]*yagna.AgreementEvent {
	events, err := src.AgreementEvents(ctx, since)
	if err != nil {
		r.logger.Debug("agreement events unavailable", logging.Error(err))
		return nil
	}
	byID := make(map[string]*yagna.AgreementEvent)
	for i := range events {
		if events[i].EventType == yagna.AgreementTerminatedEvent {
			byID[events[i].AgreementID] = &events[i]
		}
	}
	return byID
}

func (r *Registry) reconcileAgreement(ctx context.Context, src HistorySource, id string, termination *yagna.AgreementEvent) error {
	agreement, err := src.Agreement(ctx, id)
	if err != nil {
		return err
	}
	if agreement.AgreementID == "" {
		agreement.AgreementID = id
	}
	if _, err := r.GetOrCreateJob(agreement); err != nil {
		return err
	}

	names, _ := agreement.Offer.UsageVector()
	activities, err := src.ActivitiesForAgreement(ctx, id)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}
	for _, activityID := range activities {
		if state, err := src.ActivityState(ctx, activityID); err == nil {
			r.UpdateActivityState(id, state)
		} else if !errors.Is(err, services.ErrNotFound) {
			r.logger.Debug("activity state unavailable",
				logging.String(logging.FieldActivityID, activityID),
				logging.Error(err),
			)
		}
		if usage, err := src.ActivityUsage(ctx, activityID); err == nil {
			r.UpdateUsage(id, UsageFromVector(names, usage.CurrentUsage))
		}
	}

	if agreement.Terminated() {
		if termination == nil {
			termination, _ = src.TerminationReason(ctx, id)
		}
		code := ""
		if termination != nil {
			code = termination.Code()
		}
		r.MarkTerminated(id, code)
	}
	return nil
}
