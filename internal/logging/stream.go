package logging

import (
	"context"
	"sync"
	"time"
)

// LogEvent is one log line as published to the stream hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	AgreementID   string            `json:"agreement_id,omitempty"`
	Daemon        string            `json:"daemon,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// StreamHub keeps the most recent log events in a ring and lets readers
// resume by sequence number. Sequences start at 1 and never repeat.
type StreamHub struct {
	mu    sync.Mutex
	ring  []LogEvent
	start int // index of the oldest event in ring
	count int
	last  uint64
	// wake is closed and replaced on every Publish.
	wake chan struct{}
}

// NewStreamHub returns a hub holding up to capacity events (512 if <= 0).
func NewStreamHub(capacity int) *StreamHub {
	if capacity <= 0 {
		capacity = 512
	}
	return &StreamHub{ring: make([]LogEvent, capacity), wake: make(chan struct{})}
}

// Publish assigns the next sequence to evt and stores it, evicting the
// oldest event when full.
func (h *StreamHub) Publish(evt LogEvent) {
	if h == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	h.mu.Lock()
	h.last++
	evt.Sequence = h.last
	size := len(h.ring)
	if h.count < size {
		h.ring[(h.start+h.count)%size] = evt
		h.count++
	} else {
		h.ring[h.start] = evt
		h.start = (h.start + 1) % size
	}
	close(h.wake)
	h.wake = make(chan struct{})
	h.mu.Unlock()
}

// Fetch returns up to limit events with a sequence above since, plus the
// sequence to pass as since on the next call. With wait set and nothing
// newer buffered, Fetch blocks until an event arrives or ctx ends.
func (h *StreamHub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]LogEvent, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	for {
		h.mu.Lock()
		events := h.after(since, limit)
		wake := h.wake
		last := h.last
		h.mu.Unlock()

		if len(events) > 0 {
			return events, events[len(events)-1].Sequence, ctx.Err()
		}
		if since > last {
			since = last
		}
		if !wait {
			return nil, since, ctx.Err()
		}
		select {
		case <-ctx.Done():
			return nil, since, ctx.Err()
		case <-wake:
		}
	}
}

// Tail returns the newest limit events (all buffered when limit <= 0) and the
// last assigned sequence.
func (h *StreamHub) Tail(limit int) ([]LogEvent, uint64) {
	if h == nil {
		return nil, 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > h.count {
		limit = h.count
	}
	if limit == 0 {
		return nil, h.last
	}
	out := make([]LogEvent, limit)
	for i := range out {
		out[i] = h.at(h.count - limit + i)
	}
	return out, h.last
}

// Oldest reports the sequence of the oldest buffered event, or the next
// sequence to be assigned when empty.
func (h *StreamHub) Oldest() uint64 {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return h.last + 1
	}
	return h.at(0).Sequence
}

// at returns the i-th oldest buffered event. Callers hold mu.
func (h *StreamHub) at(i int) LogEvent {
	return h.ring[(h.start+i)%len(h.ring)]
}

// after copies buffered events newer than since. Callers hold mu.
func (h *StreamHub) after(since uint64, limit int) []LogEvent {
	if h.count == 0 || since >= h.last {
		return nil
	}
	oldest := h.at(0).Sequence
	skip := 0
	if since >= oldest {
		skip = int(since - oldest + 1)
	}
	n := h.count - skip
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]LogEvent, n)
	for i := range out {
		out[i] = h.at(skip + i)
	}
	return out
}
