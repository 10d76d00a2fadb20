package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/golem"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
)

type pending struct {
	event   Event
	key     string
	payload Payload
}

// Forwarder turns facade updates into notifications. Observe never blocks
// the facade; delivery happens on the Run goroutine.
type Forwarder struct {
	svc    Service
	logger *slog.Logger
	clock  clock.Clock
	dedup  time.Duration
	queue  chan pending

	mu   sync.Mutex
	sent map[string]time.Time
}

// NewForwarder builds a forwarder. Identical notifications inside dedup are
// sent once.
func NewForwarder(svc Service, dedup time.Duration, clk clock.Clock, logger *slog.Logger) *Forwarder {
	if clk == nil {
		clk = clock.Real()
	}
	return &Forwarder{
		svc:    svc,
		logger: logging.NewComponentLogger(logger, "notifications"),
		clock:  clk,
		dedup:  dedup,
		queue:  make(chan pending, 64),
		sent:   make(map[string]time.Time),
	}
}

// Observe is a golem.Observer.
func (f *Forwarder) Observe(update golem.Update) {
	item, ok := translate(update)
	if !ok {
		return
	}
	select {
	case f.queue <- item:
	default:
		f.logger.Debug("notification queue full, dropping", logging.String("event", string(item.event)))
	}
}

func translate(update golem.Update) (pending, bool) {
	switch update.Kind {
	case golem.UpdateEvent:
		ev := update.Event
		if ev == nil || ev.Severity != golem.SeverityError {
			return pending{}, false
		}
		return pending{
			event:   EventGolemError,
			key:     string(ev.Kind) + ":" + ev.Message,
			payload: Payload{"message": ev.Message, "error": ev.Err, "agreement": ev.AgreementID},
		}, true
	case golem.UpdateJob:
		job := update.Job
		if job == nil {
			return pending{}, false
		}
		payload := Payload{"agreement": job.ID, "reward": job.CurrentReward().String()}
		switch {
		case update.JobChange == jobs.ChangeStatus && job.Status == jobs.StatusFinished:
			return pending{event: EventJobFinished, key: "finished:" + job.ID, payload: payload}, true
		case update.JobChange == jobs.ChangePaymentStatus && job.PaymentStatus == jobs.PaymentSettled:
			return pending{event: EventPaymentSettled, key: "settled:" + job.ID, payload: payload}, true
		}
	}
	return pending{}, false
}

// Run delivers queued notifications until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case item := <-f.queue:
			if f.duplicate(item.key) {
				continue
			}
			if err := f.svc.Publish(ctx, item.event, item.payload); err != nil {
				logging.WarnWithContext(f.logger, "notification delivery failed", "notification_failed",
					logging.Error(err),
					logging.String("event", string(item.event)),
					logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				)
			}
		}
	}
}

func (f *Forwarder) duplicate(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock.Now()
	if last, ok := f.sent[key]; ok && f.dedup > 0 && now.Sub(last) < f.dedup {
		return true
	}
	for k, at := range f.sent {
		if now.Sub(at) >= f.dedup {
			delete(f.sent, k)
		}
	}
	f.sent[key] = now
	return false
}
