package golem

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Severity ranks application events.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// EventKind classifies application events.
type EventKind string

const (
	EventStarted             EventKind = "started"
	EventStartFailed         EventKind = "start_failed"
	EventStopped             EventKind = "stopped"
	EventStopFailed          EventKind = "stop_failed"
	EventDaemonExited        EventKind = "daemon_exited"
	EventUnauthorized        EventKind = "unauthorized"
	EventPresetsFailed       EventKind = "presets_failed"
	EventOrphanTerminated    EventKind = "orphan_terminated"
	EventOrphanCleanupFailed EventKind = "orphan_cleanup_failed"
	EventSuspending          EventKind = "suspending"
	EventResumed             EventKind = "resumed"
)

// Event is a user-facing record of something the orchestrator did or
// suffered. Err carries the failure text when there is one.
type Event struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	Severity    Severity  `json:"severity"`
	Kind        EventKind `json:"kind"`
	Message     string    `json:"message"`
	Err         string    `json:"error,omitempty"`
	AgreementID string    `json:"agreement_id,omitempty"`
}

// DefaultEventCapacity bounds the in-memory event history.
const DefaultEventCapacity = 200

type eventLog struct {
	mu    sync.Mutex
	items []Event
	start int
	size  int
}

func newEventLog(capacity int) *eventLog {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &eventLog{items: make([]Event, capacity)}
}

func newEvent(at time.Time, severity Severity, kind EventKind, message string, err error) Event {
	ev := Event{
		ID:       uuid.NewString(),
		Time:     at,
		Severity: severity,
		Kind:     kind,
		Message:  message,
	}
	if err != nil {
		ev.Err = err.Error()
	}
	return ev
}

func (l *eventLog) add(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	capacity := len(l.items)
	if l.size < capacity {
		l.items[(l.start+l.size)%capacity] = ev
		l.size++
		return
	}
	l.items[l.start] = ev
	l.start = (l.start + 1) % capacity
}

// recent returns up to limit events, oldest first. limit <= 0 returns all.
func (l *eventLog) recent(limit int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Event, 0, n)
	capacity := len(l.items)
	for i := l.size - n; i < l.size; i++ {
		out = append(out, l.items[(l.start+i)%capacity])
	}
	return out
}
