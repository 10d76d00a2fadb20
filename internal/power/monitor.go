package power

import (
	"log/slog"
	"sync"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
)

// Monitor detects system suspend by sampling the wall clock. A sleeping host
// does not run the ticker, so on resume the time since the previous sample
// exceeds the interval by roughly the suspended duration.
type Monitor struct {
	clock     clock.Clock
	interval  time.Duration
	threshold time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	quit    chan struct{}
	running bool
}

// NewMonitor builds a monitor sampling every interval. Jumps longer than
// threshold beyond the interval are reported as a resume.
func NewMonitor(clk clock.Clock, interval, threshold time.Duration, logger *slog.Logger) *Monitor {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if threshold <= 0 {
		threshold = 30 * time.Second
	}
	return &Monitor{
		clock:     clk,
		interval:  interval,
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "power-monitor"),
	}
}

// Start begins sampling. hooks.Resume runs on the monitor goroutine with the
// estimated suspended duration and sampling pauses until it returns.
// hooks.Suspend is never called. Starting a running monitor is a no-op.
func (m *Monitor) Start(hooks Hooks) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	m.quit = make(chan struct{})
	m.running = true

	ticker := m.clock.NewTicker(m.interval)
	last := m.clock.Now().Round(0)
	go m.loop(ticker, last, m.quit, hooks.Resume)

	m.logger.Debug("power monitor started",
		logging.String(logging.FieldEventType, "power_monitor_started"),
		logging.Duration("interval", m.interval),
	)
}

// Stop ends sampling. It does not wait for an in-flight onResume.
func (m *Monitor) Stop() {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	close(m.quit)
	m.quit = nil
	m.running = false

	m.logger.Debug("power monitor stopped",
		logging.String(logging.FieldEventType, "power_monitor_stopped"),
	)
}

// Close stops sampling. A monitor holds no other resources.
func (m *Monitor) Close() error {
	m.Stop()
	return nil
}

// Running reports whether the monitor is sampling.
func (m *Monitor) Running() bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) loop(ticker *clock.Ticker, last time.Time, quit <-chan struct{}, onResume func(time.Duration)) {
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			return
		case <-ticker.C:
		}

		// Round(0) strips the monotonic reading, which does not advance
		// while the host sleeps.
		now := m.clock.Now().Round(0)
		gap := now.Sub(last) - m.interval
		if gap > m.threshold {
			select {
			case <-quit:
				return
			default:
			}
			m.logger.Info("system resume detected",
				logging.String(logging.FieldEventType, "system_resumed"),
				logging.Duration("gap", gap),
			)
			if onResume != nil {
				onResume(gap)
			}
			now = m.clock.Now().Round(0)
		}
		last = now
	}
}
