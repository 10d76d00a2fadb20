package power

import (
	"log/slog"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
)

// Hooks receive host power transitions on the watcher's goroutine. Either
// may be nil.
type Hooks struct {
	// Suspend runs before the host sleeps. Detectors that only notice the
	// resume never call it.
	Suspend func()
	// Resume runs after the host wakes with the time spent asleep.
	Resume func(gap time.Duration)
}

// Watcher is a source of power transitions. Both implementations in this
// package satisfy it.
type Watcher interface {
	Start(hooks Hooks)
	Stop()
	Close() error
}

// NewWatcher prefers logind and falls back to a clock-jump Monitor sampling
// every interval when the system bus cannot be reached.
func NewWatcher(clk clock.Clock, interval, threshold time.Duration, logger *slog.Logger) Watcher {
	w, err := DialLogind(clk, logger)
	if err == nil {
		return w
	}
	logging.NewComponentLogger(logger, "power").Info("logind unavailable, detecting resume from clock jumps",
		logging.String(logging.FieldEventType, "power_watcher_fallback"),
		logging.Error(err),
	)
	return NewMonitor(clk, interval, threshold, logger)
}
