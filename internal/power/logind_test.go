package power

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
)

type fakeBus struct {
	mu      sync.Mutex
	ch      chan<- *dbus.Signal
	matches int
	removed bool
	closed  bool
}

func (b *fakeBus) AddMatchSignal(...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matches++
	return nil
}

func (b *fakeBus) RemoveMatchSignal(...dbus.MatchOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matches--
	return nil
}

func (b *fakeBus) Signal(ch chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ch = ch
}

func (b *fakeBus) RemoveSignal(chan<- *dbus.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.removed = true
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBus) emit(name string, body ...any) {
	b.mu.Lock()
	ch := b.ch
	b.mu.Unlock()
	ch <- &dbus.Signal{Path: logindPath, Name: name, Body: body}
}

// fakeInhibitor counts granted and released delay locks.
type fakeInhibitor struct {
	mu       sync.Mutex
	granted  int
	released int
	err      error
}

type releaser struct{ inh *fakeInhibitor }

func (r releaser) Close() error {
	r.inh.mu.Lock()
	defer r.inh.mu.Unlock()
	r.inh.released++
	return nil
}

func (i *fakeInhibitor) take() (io.Closer, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.err != nil {
		return nil, i.err
	}
	i.granted++
	return releaser{inh: i}, nil
}

func (i *fakeInhibitor) counts() (int, int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.granted, i.released
}

func TestLogindRunsSuspendBeforeReleasingInhibitor(t *testing.T) {
	start := time.Date(2025, 3, 1, 22, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	bus := &fakeBus{}
	inh := &fakeInhibitor{}
	w := newLogind(bus, inh.take, clk, logging.NewNop())

	suspended := make(chan [2]int, 1)
	gaps := make(chan time.Duration, 1)
	w.Start(Hooks{
		Suspend: func() {
			granted, released := inh.counts()
			suspended <- [2]int{granted, released}
		},
		Resume: func(gap time.Duration) { gaps <- gap },
	})
	if !w.Running() {
		t.Fatal("watcher not running after Start")
	}
	if granted, _ := inh.counts(); granted != 1 {
		t.Fatalf("inhibitors granted at start = %d, want 1", granted)
	}

	bus.emit("org.freedesktop.login1.Manager.SessionNew", "c1", dbus.ObjectPath("/s/c1"))
	bus.emit(logindInterface+"."+prepareForSleep, true)
	select {
	case counts := <-suspended:
		if counts != [2]int{1, 0} {
			t.Fatalf("inhibitor state during suspend hook = %v, want still held", counts)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("suspend hook not called")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, released := inh.counts(); released == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("inhibitor not released after suspend hook")
		}
		time.Sleep(10 * time.Millisecond)
	}

	clk.Set(start.Add(8 * time.Hour))
	bus.emit(logindInterface+"."+prepareForSleep, false)
	select {
	case gap := <-gaps:
		if gap != 8*time.Hour {
			t.Fatalf("gap = %s, want 8h", gap)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resume hook not called")
	}
	if granted, _ := inh.counts(); granted != 2 {
		t.Fatalf("inhibitor not retaken after resume, granted = %d", granted)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.Running() {
		t.Fatal("watcher running after Close")
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if !bus.removed || !bus.closed || bus.matches != 0 {
		t.Fatalf("bus not released: removed=%v closed=%v matches=%d", bus.removed, bus.closed, bus.matches)
	}
	if granted, released := inh.counts(); granted != released {
		t.Fatalf("inhibitor leaked: granted=%d released=%d", granted, released)
	}
}

func TestLogindStartsWithoutInhibitor(t *testing.T) {
	bus := &fakeBus{}
	inh := &fakeInhibitor{err: errors.New("access denied")}
	w := newLogind(bus, inh.take, clock.NewFake(time.Now()), logging.NewNop())

	resumed := make(chan time.Duration, 1)
	w.Start(Hooks{Resume: func(gap time.Duration) { resumed <- gap }})
	w.Start(Hooks{})
	defer w.Stop()

	bus.emit(logindInterface+"."+prepareForSleep, false)
	select {
	case gap := <-resumed:
		if gap != 0 {
			t.Fatalf("gap without a prior suspend = %s, want 0", gap)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resume hook not called")
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	if bus.matches != 1 {
		t.Fatalf("matches = %d, second Start must be a no-op", bus.matches)
	}
}

func TestSleepSignalDecoding(t *testing.T) {
	name := logindInterface + "." + prepareForSleep
	cases := []struct {
		sig      *dbus.Signal
		entering bool
		ok       bool
	}{
		{&dbus.Signal{Name: name, Body: []any{true}}, true, true},
		{&dbus.Signal{Name: name, Body: []any{false}}, false, true},
		{&dbus.Signal{Name: name, Body: []any{"yes"}}, false, false},
		{&dbus.Signal{Name: name}, false, false},
		{&dbus.Signal{Name: "org.freedesktop.login1.Manager.PrepareForShutdown", Body: []any{true}}, false, false},
		{nil, false, false},
	}
	for i, tc := range cases {
		entering, ok := sleepSignal(tc.sig)
		if entering != tc.entering || ok != tc.ok {
			t.Fatalf("case %d: got (%v, %v), want (%v, %v)", i, entering, ok, tc.entering, tc.ok)
		}
	}
}
