package power

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
)

const (
	logindDest      = "org.freedesktop.login1"
	logindPath      = dbus.ObjectPath("/org/freedesktop/login1")
	logindInterface = "org.freedesktop.login1.Manager"
	prepareForSleep = "PrepareForSleep"
)

// signalBus is the part of *dbus.Conn the watcher subscribes through.
type signalBus interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// Logind follows org.freedesktop.login1.Manager.PrepareForSleep. While
// started it holds a delay inhibitor so logind waits for the Suspend hook
// before putting the host to sleep.
type Logind struct {
	bus     signalBus
	inhibit func() (io.Closer, error)
	clock   clock.Clock
	logger  *slog.Logger

	mu      sync.Mutex
	signals chan *dbus.Signal
	quit    chan struct{}
	lock    io.Closer
	running bool
}

// DialLogind connects to the system bus. It fails on hosts without one,
// such as containers and non-systemd distributions.
func DialLogind(clk clock.Clock, logger *slog.Logger) (*Logind, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	obj := conn.Object(logindDest, logindPath)
	inhibit := func() (io.Closer, error) {
		var fd dbus.UnixFD
		call := obj.Call(logindInterface+".Inhibit", 0,
			"sleep", "golemfacade", "Stopping Golem daemons before sleep", "delay")
		if err := call.Store(&fd); err != nil {
			return nil, err
		}
		return os.NewFile(uintptr(fd), "logind-inhibitor"), nil
	}
	return newLogind(conn, inhibit, clk, logger), nil
}

func newLogind(bus signalBus, inhibit func() (io.Closer, error), clk clock.Clock, logger *slog.Logger) *Logind {
	if clk == nil {
		clk = clock.Real()
	}
	return &Logind{
		bus:     bus,
		inhibit: inhibit,
		clock:   clk,
		logger:  logging.NewComponentLogger(logger, "power-logind"),
	}
}

func sleepMatch() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(logindPath),
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember(prepareForSleep),
	}
}

// Start subscribes to sleep signals. Hooks run on the watcher goroutine and
// the inhibitor is released only after Suspend returns. Starting a running
// watcher is a no-op.
func (w *Logind) Start(hooks Hooks) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	if err := w.bus.AddMatchSignal(sleepMatch()...); err != nil {
		logging.WarnWithContext(w.logger, "logind sleep subscription failed", "power_subscribe_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "daemons are not stopped before suspend"),
		)
		return
	}
	w.signals = make(chan *dbus.Signal, 8)
	w.bus.Signal(w.signals)
	w.quit = make(chan struct{})
	w.running = true
	w.takeLockLocked()
	go w.loop(w.signals, w.quit, hooks)

	w.logger.Debug("logind watcher started",
		logging.String(logging.FieldEventType, "power_monitor_started"),
	)
}

// Stop unsubscribes and releases the inhibitor. It does not wait for an
// in-flight hook.
func (w *Logind) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	w.bus.RemoveSignal(w.signals)
	if err := w.bus.RemoveMatchSignal(sleepMatch()...); err != nil {
		w.logger.Debug("remove sleep match", logging.Error(err))
	}
	close(w.quit)
	w.quit = nil
	w.signals = nil
	w.running = false
	w.releaseLockLocked()

	w.logger.Debug("logind watcher stopped",
		logging.String(logging.FieldEventType, "power_monitor_stopped"),
	)
}

// Close stops the watcher and closes the bus connection.
func (w *Logind) Close() error {
	w.Stop()
	return w.bus.Close()
}

// Running reports whether the watcher is subscribed.
func (w *Logind) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Logind) loop(signals <-chan *dbus.Signal, quit <-chan struct{}, hooks Hooks) {
	var sleptAt time.Time
	for {
		var sig *dbus.Signal
		select {
		case <-quit:
			return
		case received, open := <-signals:
			if !open {
				w.logger.Warn("system bus closed, suspend no longer observed")
				return
			}
			sig = received
		}
		entering, ok := sleepSignal(sig)
		if !ok {
			continue
		}

		if entering {
			sleptAt = w.clock.Now().Round(0)
			w.logger.Info("system suspend announced",
				logging.String(logging.FieldEventType, "system_suspending"),
			)
			if hooks.Suspend != nil {
				hooks.Suspend()
			}
			w.mu.Lock()
			w.releaseLockLocked()
			w.mu.Unlock()
			continue
		}

		var gap time.Duration
		if !sleptAt.IsZero() {
			gap = w.clock.Now().Round(0).Sub(sleptAt)
			sleptAt = time.Time{}
		}
		w.mu.Lock()
		if w.running {
			w.takeLockLocked()
		}
		w.mu.Unlock()
		w.logger.Info("system resume detected",
			logging.String(logging.FieldEventType, "system_resumed"),
			logging.Duration("gap", gap),
		)
		if hooks.Resume != nil {
			hooks.Resume(gap)
		}
	}
}

// sleepSignal decodes PrepareForSleep's single boolean argument: true before
// sleep, false after wake.
func sleepSignal(sig *dbus.Signal) (entering, ok bool) {
	if sig == nil || sig.Name != logindInterface+"."+prepareForSleep || len(sig.Body) != 1 {
		return false, false
	}
	entering, ok = sig.Body[0].(bool)
	return entering, ok
}

func (w *Logind) takeLockLocked() {
	if w.lock != nil || w.inhibit == nil {
		return
	}
	lock, err := w.inhibit()
	if err != nil {
		logging.WarnWithContext(w.logger, "sleep inhibitor not granted", "power_inhibit_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the host may sleep before the daemons stop"),
		)
		return
	}
	w.lock = lock
}

func (w *Logind) releaseLockLocked() {
	if w.lock == nil {
		return
	}
	if err := w.lock.Close(); err != nil {
		w.logger.Debug("release sleep inhibitor", logging.Error(err))
	}
	w.lock = nil
}
