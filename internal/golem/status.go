package golem

import (
	"time"

	"golemfacade/internal/jobs"
)

// Status is the lifecycle state of the facade.
type Status string

const (
	StatusOff      Status = "off"
	StatusStarting Status = "starting"
	StatusReady    Status = "ready"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Daemon names one of the two managed processes.
type Daemon string

const (
	DaemonYagna    Daemon = "yagna"
	DaemonProvider Daemon = "provider"
)

// Snapshot is a consistent view of the facade for status reporting.
type Snapshot struct {
	Status    Status
	NodeID    string
	SessionID string
	StartedAt time.Time
	LastError string
	Current   *jobs.Job
}

// UpdateKind selects which field of an Update carries the payload.
type UpdateKind string

const (
	UpdateStatus     UpdateKind = "status"
	UpdateCurrentJob UpdateKind = "current_job"
	UpdateJob        UpdateKind = "job"
	UpdateEvent      UpdateKind = "event"
)

// Update is one observable change of the facade.
//
//   - UpdateStatus: Status holds the new status and SessionID the Start
//     attempt it belongs to.
//   - UpdateCurrentJob: Job is the new current job, nil when none.
//   - UpdateJob: Job is the changed job snapshot and JobChange what changed.
//   - UpdateEvent: Event is the published application event.
type Update struct {
	Kind      UpdateKind
	At        time.Time
	Status    Status
	SessionID string
	Job       *jobs.Job
	JobChange jobs.ChangeKind
	Event     *Event
}

// Observer receives updates synchronously and in order. Observers must not
// block or call back into Start or Stop.
type Observer func(Update)
