package yagna

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golemfacade/internal/clock"
	"golemfacade/internal/logging"
	"golemfacade/internal/procexec"
	"golemfacade/internal/services"
)

// ServiceOptions configures `yagna service run`.
type ServiceOptions struct {
	Binary string
	Env    []string
	Debug  bool
	Dir    string
}

// Service supervises the yagna daemon process.
type Service struct {
	opts     ServiceOptions
	launcher procexec.Launcher
	clock    clock.Clock
	logger   *slog.Logger

	// ReadyPoll is the spacing between readiness probes.
	ReadyPoll time.Duration

	mu   sync.Mutex
	proc procexec.Process
}

// NewService builds a yagna supervisor.
func NewService(opts ServiceOptions, launcher procexec.Launcher, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	return &Service{
		opts:      opts,
		launcher:  launcher,
		clock:     clk,
		logger:    logging.NewComponentLogger(logger, "yagna-service"),
		ReadyPoll: 500 * time.Millisecond,
	}
}

// Run launches the daemon. onExit fires once when the process exits.
func (s *Service) Run(onExit func(code int)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil && !exited(s.proc) {
		return services.Wrap(services.ErrDaemon, "yagna-service", "run", "yagna process is already running", nil)
	}
	args := []string{"service", "run"}
	if s.opts.Debug {
		args = append(args, "--debug")
	}
	proc, err := s.launcher.Start(procexec.Spec{
		Name: "yagna",
		Path: s.opts.Binary,
		Args: args,
		Env:  s.opts.Env,
		Dir:  s.opts.Dir,
	}, onExit)
	if err != nil {
		return services.Wrap(services.ErrDaemon, "yagna-service", "run", "", err)
	}
	s.proc = proc
	return nil
}

// Me is the readiness probe WaitReady polls.
type Me interface {
	Me(ctx context.Context) (MeInfo, error)
}

// WaitReady polls the REST API until it answers, the process exits or
// timeout elapses. A 401 ends the wait immediately since it means another
// daemon owns the port.
func (s *Service) WaitReady(ctx context.Context, api Me, timeout time.Duration) (MeInfo, error) {
	deadline := s.clock.After(timeout)
	var done <-chan struct{}
	if proc := s.Process(); proc != nil {
		done = proc.Done()
	}
	var lastErr error
	for {
		me, err := api.Me(ctx)
		if err == nil {
			s.logger.Info("yagna api ready", logging.String("node_id", me.Identity))
			return me, nil
		}
		if errors.Is(err, services.ErrUnauthorized) || ctx.Err() != nil {
			return MeInfo{}, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return MeInfo{}, ctx.Err()
		case <-done:
			return MeInfo{}, services.Wrap(services.ErrDaemon, "yagna-service", "wait ready", "yagna exited during startup", lastErr)
		case <-deadline:
			return MeInfo{}, services.Wrap(services.ErrTimeout, "yagna-service", "wait ready", "yagna api did not become ready", lastErr)
		case <-s.clock.After(s.ReadyPoll):
		}
	}
}

// Process returns the running process, if any.
func (s *Service) Process() procexec.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// Running reports whether a launched process is still alive.
func (s *Service) Running() bool {
	proc := s.Process()
	return proc != nil && !exited(proc)
}

// Stop terminates the daemon, escalating to a kill after grace. Stopping a
// daemon that never ran or already exited is a no-op.
func (s *Service) Stop(ctx context.Context, grace time.Duration) error {
	proc := s.Process()
	if proc == nil {
		return nil
	}
	s.logger.Info("stopping yagna", logging.Duration("grace", grace))
	if err := proc.Stop(ctx, grace); err != nil {
		return services.Wrap(services.ErrDaemon, "yagna-service", "stop", "", err)
	}
	return nil
}

func exited(p procexec.Process) bool {
	select {
	case <-p.Done():
		return true
	default:
		return false
	}
}
