package jobs

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

// ChangeKind identifies which part of a job changed.
type ChangeKind string

const (
	ChangeCreated       ChangeKind = "created"
	ChangePrice         ChangeKind = "price"
	ChangeStatus        ChangeKind = "status"
	ChangeUsage         ChangeKind = "usage"
	ChangePaymentStatus ChangeKind = "payment_status"
	ChangePayments      ChangeKind = "payments"
	ChangeCurrent       ChangeKind = "current"
)

// Change describes one observable mutation. Job is a snapshot taken right
// after the mutation; for ChangeCurrent it is nil when no job is current.
type Change struct {
	Kind ChangeKind
	Job  *Job
	At   time.Time
}

// Observer receives changes synchronously, in mutation order. Observers must
// not call mutating Registry methods.
type Observer func(Change)

// Registry owns every Job aggregate, keyed by agreement id, and the
// distinguished current job. Both reconciliation loops submit updates through
// it concurrently.
type Registry struct {
	// emitMu serializes mutate+notify so observers see changes in order.
	emitMu sync.Mutex
	mu     sync.RWMutex

	jobs      map[string]*Job
	currentID string

	observers  map[int]Observer
	nextObsKey int

	clock  clock.Clock
	logger *slog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(logger *slog.Logger, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.Real()
	}
	return &Registry{
		jobs:      make(map[string]*Job),
		observers: make(map[int]Observer),
		clock:     clk,
		logger:    logging.NewComponentLogger(logger, "jobs"),
	}
}

// Subscribe registers obs and returns a function that removes it.
func (r *Registry) Subscribe(obs Observer) func() {
	r.mu.Lock()
	key := r.nextObsKey
	r.nextObsKey++
	r.observers[key] = obs
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		delete(r.observers, key)
		r.mu.Unlock()
	}
}

// mutate runs fn under the write lock and dispatches the changes it returns.
func (r *Registry) mutate(fn func() []Change) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	r.mu.Lock()
	changes := fn()
	observers := make([]Observer, 0, len(r.observers))
	keys := make([]int, 0, len(r.observers))
	for key := range r.observers {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		observers = append(observers, r.observers[key])
	}
	r.mu.Unlock()

	for _, change := range changes {
		for _, obs := range observers {
			obs(change)
		}
	}
}

func (r *Registry) change(kind ChangeKind, job *Job) Change {
	c := Change{Kind: kind, At: r.clock.Now()}
	if job != nil {
		snap := job.clone()
		c.Job = &snap
	}
	return c
}

func (r *Registry) touch(job *Job) {
	job.UpdatedAt = r.clock.Now()
}

// GetOrCreateJob returns the job for the agreement, creating it on first
// reference. The price is refreshed from the agreement on every call without
// touching status or usage. Agreements lacking a requestor or price vector
// fail with services.ErrIncompleteAgreement.
func (r *Registry) GetOrCreateJob(agreement *yagna.Agreement) (Job, error) {
	if agreement == nil || agreement.AgreementID == "" {
		return Job{}, services.Wrap(services.ErrIncompleteAgreement, "jobs", "get or create", "agreement id missing", nil)
	}
	requestor := agreement.RequestorID()
	if requestor == "" {
		return Job{}, services.Wrap(services.ErrIncompleteAgreement, "jobs", "get or create", "requestor id missing for "+agreement.AgreementID, nil)
	}
	price, err := PriceFromAgreement(agreement)
	if err != nil {
		return Job{}, err
	}

	var out Job
	r.mutate(func() []Change {
		job, ok := r.jobs[agreement.AgreementID]
		if !ok {
			ts := agreement.Timestamp
			if ts.IsZero() {
				ts = r.clock.Now()
			}
			job = &Job{
				ID:          agreement.AgreementID,
				RequestorID: requestor,
				Price:       price,
				Status:      StatusIdle,
				Usage:       NewUsage(),
				Timestamp:   ts.UTC(),
			}
			r.touch(job)
			r.jobs[job.ID] = job
			r.logger.Info("job created",
				logging.String(logging.FieldAgreementID, job.ID),
				logging.String("requestor_id", requestor),
			)
			out = job.clone()
			return []Change{r.change(ChangeCreated, job)}
		}
		if job.Price.Equal(price) {
			out = job.clone()
			return nil
		}
		job.Price = price
		r.touch(job)
		out = job.clone()
		return []Change{r.change(ChangePrice, job)}
	})
	return out, nil
}

// UpdateActivityState applies an activity state pair to a job.
func (r *Registry) UpdateActivityState(id string, pair yagna.StatePair) {
	r.mutate(func() []Change {
		job := r.lookupLocked(id)
		if job == nil {
			return nil
		}
		previous := job.Status
		if !job.UpdateActivityState(pair) {
			return nil
		}
		r.touch(job)
		r.logger.Debug("job status resolved",
			logging.String(logging.FieldAgreementID, id),
			logging.String("activity_state", pair.String()),
			logging.String("previous", string(previous)),
			logging.String("status", string(job.Status)),
		)
		return []Change{r.change(ChangeStatus, job)}
	})
}

// UpdateUsage merges usage counters into a job. Counters never decrease, and
// an Accepted payment is re-evaluated against the new reward.
func (r *Registry) UpdateUsage(id string, usage Usage) {
	r.mutate(func() []Change {
		job := r.lookupLocked(id)
		if job == nil {
			return nil
		}
		merged := job.Usage.merge(usage)
		if merged.Equal(job.Usage) {
			return nil
		}
		job.Usage = merged
		r.touch(job)
		changes := []Change{r.change(ChangeUsage, job)}
		if next := job.EvaluatePaymentStatus(job.PaymentStatus); next != job.PaymentStatus {
			job.PaymentStatus = next
			changes = append(changes, r.change(ChangePaymentStatus, job))
		}
		return changes
	})
}

// UpdatePaymentStatus applies an invoice-derived payment status. Settled is
// final.
func (r *Registry) UpdatePaymentStatus(id string, status PaymentStatus) {
	r.mutate(func() []Change {
		job := r.lookupLocked(id)
		if job == nil {
			return nil
		}
		if job.PaymentStatus == PaymentSettled {
			return nil
		}
		next := job.EvaluatePaymentStatus(status)
		if next == job.PaymentStatus {
			return nil
		}
		job.PaymentStatus = next
		r.touch(job)
		r.logger.Info("job payment status updated",
			logging.String(logging.FieldAgreementID, id),
			logging.String("payment_status", string(next)),
			logging.String("requestor_id", job.RequestorID),
		)
		return []Change{r.change(ChangePaymentStatus, job)}
	})
}

// UpdatePaymentConfirmation records confirmed payments for a job. Payments
// already recorded are ignored.
func (r *Registry) UpdatePaymentConfirmation(id string, payments []Payment) {
	r.mutate(func() []Change {
		job := r.lookupLocked(id)
		if job == nil {
			return nil
		}
		previousStatus := job.PaymentStatus
		added := 0
		for _, p := range payments {
			if job.AddPartialPayment(p) {
				added++
			}
		}
		if added == 0 {
			return nil
		}
		r.touch(job)
		r.logger.Info("job payments confirmed",
			logging.String(logging.FieldAgreementID, id),
			logging.Int("added", added),
			logging.String("confirmed", job.ConfirmedAmount().String()),
			logging.String("reward", job.CurrentReward().String()),
		)
		changes := []Change{r.change(ChangePayments, job)}
		if job.PaymentStatus != previousStatus {
			changes = append(changes, r.change(ChangePaymentStatus, job))
		}
		return changes
	})
}

// MarkTerminated records that the agreement ended. code is the termination
// reason code, empty when unknown.
func (r *Registry) MarkTerminated(id, code string) {
	r.mutate(func() []Change {
		job := r.lookupLocked(id)
		if job == nil {
			return nil
		}
		if !job.terminate(code) {
			return nil
		}
		r.touch(job)
		r.logger.Info("job agreement terminated",
			logging.String(logging.FieldAgreementID, id),
			logging.String("code", code),
			logging.String("status", string(job.Status)),
		)
		return []Change{r.change(ChangeStatus, job)}
	})
}

// SetAllJobsFinished marks every job that is not yet Finished as Finished.
// Used once no further authoritative updates can arrive. Jobs whose agreement
// termination was already observed keep the status it resolved to.
func (r *Registry) SetAllJobsFinished() {
	r.mutate(func() []Change {
		var changes []Change
		for _, id := range r.sortedIDsLocked() {
			job := r.jobs[id]
			if job.Status == StatusFinished || job.Terminated {
				continue
			}
			job.Status = StatusFinished
			r.touch(job)
			changes = append(changes, r.change(ChangeStatus, job))
		}
		return changes
	})
}

// SetCurrent marks id as the current job; an empty id clears it.
func (r *Registry) SetCurrent(id string) {
	r.mutate(func() []Change {
		if id != "" {
			if _, ok := r.jobs[id]; !ok {
				r.logger.Error("job not found", logging.String(logging.FieldAgreementID, id))
				return nil
			}
		}
		if r.currentID == id {
			return nil
		}
		r.currentID = id
		if id == "" {
			r.logger.Debug("current job cleared")
			return []Change{r.change(ChangeCurrent, nil)}
		}
		r.logger.Debug("current job set", logging.String(logging.FieldAgreementID, id))
		return []Change{r.change(ChangeCurrent, r.jobs[id])}
	})
}

// Current returns the current job.
func (r *Registry) Current() (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.currentID == "" {
		return Job{}, false
	}
	job, ok := r.jobs[r.currentID]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// Get returns a snapshot of the job with the given agreement id.
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, false
	}
	return job.clone(), true
}

// Contains reports whether the registry tracks the agreement.
func (r *Registry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobs[id]
	return ok
}

// List returns snapshots of jobs created at or after since, oldest first.
func (r *Registry) List(since time.Time) []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if !since.IsZero() && job.Timestamp.Before(since) {
			continue
		}
		out = append(out, job.clone())
	}
	slices.SortFunc(out, func(a, b Job) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

func (r *Registry) lookupLocked(id string) *Job {
	job, ok := r.jobs[id]
	if !ok {
		r.logger.Error("job not found", logging.String(logging.FieldAgreementID, id))
		return nil
	}
	return job
}

func (r *Registry) sortedIDsLocked() []string {
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
