package api

import (
	"slices"
	"time"

	"golemfacade/internal/golem"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
)

// FromJob converts a job snapshot to its API representation.
func FromJob(job jobs.Job) Job {
	dto := Job{
		ID:              job.ID,
		RequestorID:     job.RequestorID,
		Status:          string(job.Status),
		PaymentStatus:   string(job.PaymentStatus),
		Price:           fromVector(jobs.Usage(job.Price)),
		Usage:           fromVector(job.Usage),
		Reward:          job.CurrentReward().String(),
		Confirmed:       job.ConfirmedAmount().String(),
		Terminated:      job.Terminated,
		TerminationCode: job.TerminationCode,
		CreatedAt:       formatTime(job.Timestamp),
		UpdatedAt:       formatTime(job.UpdatedAt),
	}
	for _, p := range job.Payments {
		dto.Payments = append(dto.Payments, Payment{
			ID:        p.ID,
			Amount:    p.Amount.String(),
			Timestamp: formatTime(p.Timestamp),
			Platform:  p.Platform,
		})
	}
	return dto
}

func fromVector(v jobs.Usage) Rates {
	return Rates{
		Start:    v.Start.String(),
		GPU:      v.GPU.String(),
		Duration: v.Duration.String(),
		Requests: v.Requests.String(),
	}
}

// FromJobs converts and orders jobs newest first.
func FromJobs(list []jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	SortJobsNewestFirst(out)
	return out
}

// FromSnapshot converts the facade snapshot.
func FromSnapshot(s golem.Snapshot) GolemStatus {
	dto := GolemStatus{
		Status:    string(s.Status),
		NodeID:    s.NodeID,
		SessionID: s.SessionID,
		StartedAt: formatTime(s.StartedAt),
		LastError: s.LastError,
	}
	if s.Current != nil {
		current := FromJob(*s.Current)
		dto.Current = &current
	}
	return dto
}

// FromEvents converts application events, keeping their order.
func FromEvents(events []golem.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, ev := range events {
		out = append(out, Event{
			ID:          ev.ID,
			Time:        formatTime(ev.Time),
			Severity:    string(ev.Severity),
			Kind:        string(ev.Kind),
			Message:     ev.Message,
			Error:       ev.Err,
			AgreementID: ev.AgreementID,
		})
	}
	return out
}

// FromLogEvents converts hub log events.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:    evt.Sequence,
			Time:        formatTime(evt.Timestamp),
			Level:       evt.Level,
			Message:     evt.Message,
			Component:   evt.Component,
			AgreementID: evt.AgreementID,
			Daemon:      evt.Daemon,
			EventType:   evt.EventType,
			Fields:      evt.Fields,
		})
	}
	return out
}

// SortJobsNewestFirst orders jobs by CreatedAt descending, breaking ties by
// ID.
func SortJobsNewestFirst(list []Job) {
	slices.SortStableFunc(list, func(a, b Job) int {
		ta, tb := ParseTime(a.CreatedAt), ParseTime(b.CreatedAt)
		if c := tb.Compare(ta); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// ParseTime parses an API timestamp. Unparseable values yield the zero time.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
