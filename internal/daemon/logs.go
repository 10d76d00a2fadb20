package daemon

import (
	"context"
	"errors"
	"strings"

	"golemfacade/internal/api"
	"golemfacade/internal/logging"
)

const defaultLogLimit = 200

// LogQuery selects events from the log hub.
type LogQuery struct {
	Since  uint64
	Limit  int
	Follow bool
	// Tail returns the newest events instead of the oldest after Since.
	Tail      bool
	Component string
	Agreement string
}

// QueryLogs reads hub according to q. Follow blocks until an event newer
// than Since arrives or ctx ends; an expired ctx is not an error. A Since
// beyond the hub's last sequence, as after a daemon restart, is rewound.
func QueryLogs(ctx context.Context, hub *logging.StreamHub, q LogQuery) (api.LogStreamResponse, error) {
	if hub == nil {
		return api.LogStreamResponse{Next: q.Since}, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLogLimit
	}

	var (
		raw  []logging.LogEvent
		next uint64
	)
	if q.Tail && q.Since == 0 && !q.Follow {
		raw, next = hub.Tail(limit)
	} else {
		var err error
		raw, next, err = hub.Fetch(ctx, q.Since, limit, q.Follow)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return api.LogStreamResponse{}, err
		}
	}

	component := strings.TrimSpace(q.Component)
	agreement := strings.TrimSpace(q.Agreement)
	filtered := make([]api.LogEvent, 0, len(raw))
	for _, evt := range api.FromLogEvents(raw) {
		if component != "" && !strings.EqualFold(component, evt.Component) {
			continue
		}
		if agreement != "" && agreement != evt.AgreementID {
			continue
		}
		filtered = append(filtered, evt)
	}
	return api.LogStreamResponse{Events: filtered, Next: next}, nil
}
