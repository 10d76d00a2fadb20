// Package activity follows the provider's activity monitor stream and keeps
// the job registry's statuses, usage counters and current job up to date.
package activity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

// DefaultReconnectDelay spaces consecutive monitor connection attempts.
const DefaultReconnectDelay = 10 * time.Second

// Source is the part of the daemon REST API the loop reads.
type Source interface {
	OpenMonitor(ctx context.Context) (*yagna.MessageReader, error)
	Agreement(ctx context.Context, id string) (*yagna.Agreement, error)
	TerminationReason(ctx context.Context, agreementID string) (*yagna.AgreementEvent, error)
}

// Jobs receives the loop's updates. *jobs.Registry satisfies it.
type Jobs interface {
	GetOrCreateJob(agreement *yagna.Agreement) (jobs.Job, error)
	UpdateActivityState(id string, pair yagna.StatePair)
	UpdateUsage(id string, usage jobs.Usage)
	MarkTerminated(id, code string)
	Get(id string) (jobs.Job, bool)
	List(since time.Time) []jobs.Job
	SetCurrent(id string)
}

// Loop is the activity reconciliation loop.
type Loop struct {
	source Source
	jobs   Jobs
	clock  clock.Clock
	logger *slog.Logger

	// ReconnectDelay is measured from the start of the previous attempt.
	ReconnectDelay time.Duration
}

// NewLoop wires a loop; call Run to start it.
func NewLoop(source Source, registry Jobs, clk clock.Clock, logger *slog.Logger) *Loop {
	if clk == nil {
		clk = clock.Real()
	}
	return &Loop{
		source:         source,
		jobs:           registry,
		clock:          clk,
		logger:         logging.NewComponentLogger(logger, "activity"),
		ReconnectDelay: DefaultReconnectDelay,
	}
}

// Run follows the monitor stream until ctx is cancelled, reconnecting after
// failures. It always clears the current job before returning and returns
// the context's error.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("activity monitoring started")
	defer func() {
		l.jobs.SetCurrent("")
		l.logger.Info("activity monitoring stopped")
	}()

	next := l.clock.Now()
	for {
		if wait := next.Sub(l.clock.Now()); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(wait):
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		next = l.clock.Now().Add(l.ReconnectDelay)

		err := l.follow(ctx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		l.jobs.SetCurrent("")
		logging.WarnWithContext(l.logger, "activity monitor disconnected", "activity_monitor_disconnected",
			logging.Error(err),
			logging.Time("reconnect_at", next),
			logging.String(logging.FieldImpact, "current job unknown until the monitor reconnects"),
		)
	}
}

// follow consumes one monitor connection until it fails or ends.
func (l *Loop) follow(ctx context.Context) error {
	reader, err := l.source.OpenMonitor(ctx)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = reader.Close() })
	defer func() {
		stop()
		_ = reader.Close()
	}()

	l.logger.Debug("activity monitor connected")
	for {
		event, err := reader.NextEvent()
		if err != nil {
			if errors.Is(err, services.ErrDecode) {
				l.logger.Error("invalid monitoring event",
					logging.Error(err),
					logging.String(logging.FieldEventType, "activity_event_invalid"),
				)
				continue
			}
			if yagna.IsStreamEnd(err) {
				return services.Wrap(services.ErrTransport, "activity", "monitor", "stream closed by daemon", nil)
			}
			return services.Wrap(services.ErrTransport, "activity", "monitor", "", err)
		}
		l.handle(ctx, event)
	}
}

func (l *Loop) handle(ctx context.Context, event yagna.TrackingEvent) {
	l.logger.Debug("activity event received", logging.Int("activities", len(event.Activities)))

	var current []jobs.Job
	seen := make(map[string]bool, len(event.Activities))
	for _, record := range event.Activities {
		seen[record.AgreementID] = true
		job, ok := l.apply(ctx, record)
		if !ok || record.State.Current == yagna.StateTerminated || !job.Active() {
			continue
		}
		current = append(current, job)
	}

	switch len(current) {
	case 0:
		l.jobs.SetCurrent("")
		l.settleVanished(ctx, seen)
	case 1:
		l.jobs.SetCurrent(current[0].ID)
	default:
		attrs := []logging.Attr{
			logging.Int("count", len(current)),
			logging.String(logging.FieldAgreementID, current[0].ID),
			logging.String(logging.FieldImpact, "only the first job is reported as current"),
		}
		logging.WarnWithContext(l.logger, "multiple non terminated jobs", "activity_multiple_jobs", attrs...)
		for _, job := range current[1:] {
			l.logger.Warn("non terminated job ignored",
				logging.String(logging.FieldAgreementID, job.ID),
				logging.String("status", string(job.Status)),
			)
		}
		l.jobs.SetCurrent(current[0].ID)
	}
}

// settleVanished re-reads the agreement of every active job whose activity
// is no longer reported, so a job terminated between messages still reaches
// a terminal status.
func (l *Loop) settleVanished(ctx context.Context, seen map[string]bool) {
	for _, job := range l.jobs.List(time.Time{}) {
		if seen[job.ID] || job.Terminated || !job.Active() {
			continue
		}
		agreement, err := l.source.Agreement(ctx, job.ID)
		if err != nil {
			l.logger.Debug("agreement recheck failed",
				logging.String(logging.FieldAgreementID, job.ID),
				logging.Error(err),
			)
			continue
		}
		if agreement.Terminated() {
			l.logger.Info("job activity gone and agreement terminated",
				logging.String(logging.FieldAgreementID, job.ID),
				logging.String("status", string(job.Status)),
			)
			l.jobs.MarkTerminated(job.ID, l.terminationCode(ctx, job.ID))
		}
	}
}

// apply folds one activity record into the registry and returns the updated
// job snapshot.
func (l *Loop) apply(ctx context.Context, record yagna.ActivityRecord) (jobs.Job, bool) {
	id := record.AgreementID
	if id == "" {
		l.logger.Info("activity without agreement dropped", logging.String(logging.FieldActivityID, record.ID))
		return jobs.Job{}, false
	}

	agreement, err := l.source.Agreement(ctx, id)
	if err != nil {
		l.logger.Warn("agreement unavailable",
			logging.String(logging.FieldAgreementID, id),
			logging.String(logging.FieldActivityID, record.ID),
			logging.Error(err),
		)
		if _, known := l.jobs.Get(id); known && len(record.Usage) > 0 {
			l.jobs.UpdateUsage(id, jobs.UsageFromCounters(record.Usage))
		}
		return jobs.Job{}, false
	}
	if agreement.AgreementID == "" {
		agreement.AgreementID = id
	}
	if _, err := l.jobs.GetOrCreateJob(agreement); err != nil {
		l.logger.Warn("job not created",
			logging.String(logging.FieldAgreementID, id),
			logging.Error(err),
		)
		return jobs.Job{}, false
	}

	if record.State.Current != "" {
		l.jobs.UpdateActivityState(id, record.State)
	}
	if len(record.Usage) > 0 {
		l.jobs.UpdateUsage(id, jobs.UsageFromCounters(record.Usage))
	}
	if agreement.Terminated() {
		l.jobs.MarkTerminated(id, l.terminationCode(ctx, id))
	}

	return l.jobs.Get(id)
}

func (l *Loop) terminationCode(ctx context.Context, id string) string {
	reason, err := l.source.TerminationReason(ctx, id)
	if err != nil || reason == nil {
		l.logger.Debug("termination reason unavailable",
			logging.String(logging.FieldAgreementID, id),
			logging.Error(err),
		)
		return ""
	}
	return reason.Code()
}
