package testsupport

import (
	"context"
	"errors"
	"sync"
	"time"

	"golemfacade/internal/procexec"
)

// FakeLauncher records launches and hands out FakeProcess handles.
type FakeLauncher struct {
	mu       sync.Mutex
	Launched []procexec.Spec
	Procs    []*FakeProcess
	// FailNames makes Start fail for specs with these names.
	FailNames map[string]error
	// OnStart runs after each successful launch.
	OnStart func(*FakeProcess)
}

// NewFakeLauncher returns an empty launcher.
func NewFakeLauncher() *FakeLauncher {
	return &FakeLauncher{FailNames: map[string]error{}}
}

func (l *FakeLauncher) Start(spec procexec.Spec, onExit func(code int)) (procexec.Process, error) {
	l.mu.Lock()
	if err, ok := l.FailNames[spec.Name]; ok {
		l.mu.Unlock()
		if err == nil {
			err = errors.New("launch failed")
		}
		return nil, err
	}
	proc := &FakeProcess{
		Spec:   spec,
		pid:    1000 + len(l.Procs),
		done:   make(chan struct{}),
		onExit: onExit,
		code:   -1,
	}
	l.Launched = append(l.Launched, spec)
	l.Procs = append(l.Procs, proc)
	hook := l.OnStart
	l.mu.Unlock()
	if hook != nil {
		hook(proc)
	}
	return proc, nil
}

// Count returns how many processes named name were launched.
func (l *FakeLauncher) Count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, spec := range l.Launched {
		if spec.Name == name {
			n++
		}
	}
	return n
}

// Last returns the most recent process named name.
func (l *FakeLauncher) Last(name string) *FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.Procs) - 1; i >= 0; i-- {
		if l.Procs[i].Spec.Name == name {
			return l.Procs[i]
		}
	}
	return nil
}

// FakeProcess is a controllable procexec.Process.
type FakeProcess struct {
	Spec procexec.Spec
	// IgnoreStop makes Stop wait for Exit instead of ending the process.
	IgnoreStop bool

	pid    int
	done   chan struct{}
	onExit func(int)

	mu     sync.Mutex
	code   int
	exited bool
	stops  int
	graces []time.Duration
}

func (p *FakeProcess) PID() int { return p.pid }

func (p *FakeProcess) Done() <-chan struct{} { return p.done }

func (p *FakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

// Exit simulates the process ending with code. Later calls are ignored.
func (p *FakeProcess) Exit(code int) {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return
	}
	p.exited = true
	p.code = code
	onExit := p.onExit
	p.mu.Unlock()
	if onExit != nil {
		onExit(code)
	}
	close(p.done)
}

func (p *FakeProcess) Stop(ctx context.Context, grace time.Duration) error {
	p.mu.Lock()
	p.stops++
	p.graces = append(p.graces, grace)
	ignore := p.IgnoreStop
	p.mu.Unlock()
	if ignore {
		select {
		case <-p.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.Exit(-1)
	return nil
}

// Stops returns how many times Stop was called and the graces used.
func (p *FakeProcess) Stops() (int, []time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stops, append([]time.Duration(nil), p.graces...)
}

// Exited reports whether the process has ended.
func (p *FakeProcess) Exited() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}
