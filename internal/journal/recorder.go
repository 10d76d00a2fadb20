package journal

import (
	"context"
	"log/slog"
	"sync"

	"golemfacade/internal/golem"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
)

// sessionRestarted closes a session replaced by a resume restart.
const sessionRestarted = "restarted"

// Recorder writes facade updates to the journal on its own goroutine so
// observers never wait on SQLite.
type Recorder struct {
	store   *Store
	logger  *slog.Logger
	updates chan golem.Update

	mu          sync.Mutex
	sessionID   string
	sessionOpen bool
}

// NewRecorder builds a recorder with a bounded backlog.
func NewRecorder(store *Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:   store,
		logger:  logging.NewComponentLogger(logger, "journal"),
		updates: make(chan golem.Update, 256),
	}
}

// Observe queues an update. It never blocks; updates beyond the backlog are
// dropped with a warning.
func (r *Recorder) Observe(update golem.Update) {
	switch update.Kind {
	case golem.UpdateStatus, golem.UpdateJob, golem.UpdateEvent:
	default:
		return
	}
	select {
	case r.updates <- update:
	default:
		logging.WarnWithContext(r.logger, "journal backlog full, update dropped", "journal_backlog_full",
			logging.String("kind", string(update.Kind)),
			logging.String(logging.FieldImpact, "offline job listing may be stale"),
		)
	}
}

// Run records queued updates until ctx is cancelled, then drains what is
// already queued. Writes themselves are not cut short by the cancellation.
func (r *Recorder) Run(ctx context.Context) {
	writeCtx := context.WithoutCancel(ctx)
	for {
		select {
		case update := <-r.updates:
			r.recordLogged(writeCtx, update)
		case <-ctx.Done():
			for {
				select {
				case update := <-r.updates:
					r.recordLogged(writeCtx, update)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) recordLogged(ctx context.Context, update golem.Update) {
	if err := r.Record(ctx, update); err != nil {
		logging.WarnWithContext(r.logger, "journal write failed", "journal_write_failed",
			logging.Error(err),
			logging.String("kind", string(update.Kind)),
			logging.String(logging.FieldImpact, "offline job listing may be stale"),
		)
	}
}

// Record applies one update synchronously.
func (r *Recorder) Record(ctx context.Context, update golem.Update) error {
	switch update.Kind {
	case golem.UpdateStatus:
		return r.recordStatus(ctx, update)
	case golem.UpdateJob:
		if update.Job == nil {
			return nil
		}
		r.mu.Lock()
		sessionID := r.sessionID
		r.mu.Unlock()
		return r.store.SaveJob(ctx, *update.Job, sessionID)
	case golem.UpdateEvent:
		return r.recordEvent(ctx, update.Event)
	}
	return nil
}

func (r *Recorder) recordStatus(ctx context.Context, update golem.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch update.Status {
	case golem.StatusStarting:
		if r.sessionOpen && r.sessionID != update.SessionID {
			if err := r.store.EndSession(ctx, r.sessionID, update.At, sessionRestarted); err != nil {
				return err
			}
		}
		if err := r.store.BeginSession(ctx, update.SessionID, update.At); err != nil {
			return err
		}
		r.sessionID = update.SessionID
		r.sessionOpen = true
	case golem.StatusOff, golem.StatusError:
		if !r.sessionOpen || update.SessionID == "" {
			return nil
		}
		if err := r.store.EndSession(ctx, update.SessionID, update.At, string(update.Status)); err != nil {
			return err
		}
		r.sessionOpen = false
	}
	return nil
}

func (r *Recorder) recordEvent(ctx context.Context, ev *golem.Event) error {
	if ev == nil || ev.Kind != golem.EventOrphanTerminated || ev.AgreementID == "" {
		return nil
	}
	job, err := r.store.Job(ctx, ev.AgreementID)
	if err != nil || job == nil {
		return err
	}
	if job.Status == jobs.StatusComputing || job.Status == jobs.StatusDownloadingModel {
		r.logger.Info("orphaned agreement was computing when the previous run ended",
			logging.String(logging.FieldEventType, "orphan_was_computing"),
			logging.String(logging.FieldAgreementID, job.ID),
			logging.String("requestor_id", job.RequestorID),
			logging.String("reward", job.CurrentReward().String()),
		)
	}
	return nil
}
