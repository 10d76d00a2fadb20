package power_test

import (
	"testing"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
	"golemfacade/internal/power"
)

func TestMonitorReportsWallClockJump(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	m := power.NewMonitor(clk, time.Minute, 2*time.Minute, logging.NewNop())

	gaps := make(chan time.Duration, 4)
	m.Start(power.Hooks{Resume: func(gap time.Duration) { gaps <- gap }})
	defer m.Stop()
	if !m.Running() {
		t.Fatal("monitor not running after Start")
	}

	clk.Advance(time.Minute)
	select {
	case gap := <-gaps:
		t.Fatalf("regular tick reported as resume (gap %s)", gap)
	case <-time.After(50 * time.Millisecond):
	}

	clk.Set(start.Add(11 * time.Minute))
	select {
	case gap := <-gaps:
		if gap < 9*time.Minute {
			t.Fatalf("gap = %s, want at least 9m", gap)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resume not reported")
	}
}

func TestMonitorStartStopIdempotent(t *testing.T) {
	m := power.NewMonitor(clock.NewFake(time.Now()), 0, 0, nil)
	m.Stop()
	m.Start(power.Hooks{})
	m.Start(power.Hooks{})
	if !m.Running() {
		t.Fatal("expected running")
	}
	m.Stop()
	m.Stop()
	if m.Running() {
		t.Fatal("expected stopped")
	}

	var nilMonitor *power.Monitor
	nilMonitor.Start(power.Hooks{})
	if nilMonitor.Running() {
		t.Fatal("nil monitor reports running")
	}
}
