package provider

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golemfacade/internal/logging"
	"golemfacade/internal/procexec"
	"golemfacade/internal/services"
)

// DefaultMinAgreementExpiration lets the provider accept the short-lived
// agreements the facade's requestors negotiate.
const DefaultMinAgreementExpiration = "30s"

// ServiceOptions configures `ya-provider run`.
type ServiceOptions struct {
	Binary                 string
	Env                    []string
	Network                string
	Debug                  bool
	MinAgreementExpiration string
	Dir                    string
}

// Service supervises the ya-provider process.
type Service struct {
	opts     ServiceOptions
	launcher procexec.Launcher
	logger   *slog.Logger

	mu   sync.Mutex
	proc procexec.Process
}

// NewService builds a provider supervisor.
func NewService(opts ServiceOptions, launcher procexec.Launcher, logger *slog.Logger) *Service {
	if strings.TrimSpace(opts.MinAgreementExpiration) == "" {
		opts.MinAgreementExpiration = DefaultMinAgreementExpiration
	}
	return &Service{
		opts:     opts,
		launcher: launcher,
		logger:   logging.NewComponentLogger(logger, "provider-service"),
	}
}

// Run launches the provider authenticated with appKey. onExit fires once
// when the process exits.
func (s *Service) Run(appKey string, onExit func(code int)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil && !exited(s.proc) {
		return services.Wrap(services.ErrDaemon, "provider-service", "run", "provider process is already running", nil)
	}
	if strings.TrimSpace(appKey) == "" {
		return services.Wrap(services.ErrConfiguration, "provider-service", "run", "app key required", nil)
	}
	args := []string{"run"}
	if s.opts.Debug {
		args = append(args, "--debug")
	}
	if s.opts.Network != "" {
		args = append(args, "--payment-network", s.opts.Network)
	}
	env := append([]string(nil), s.opts.Env...)
	env = append(env,
		"MIN_AGREEMENT_EXPIRATION="+s.opts.MinAgreementExpiration,
		"YAGNA_APPKEY="+appKey,
	)
	proc, err := s.launcher.Start(procexec.Spec{
		Name: "ya-provider",
		Path: s.opts.Binary,
		Args: args,
		Env:  env,
		Dir:  s.opts.Dir,
	}, onExit)
	if err != nil {
		return services.Wrap(services.ErrDaemon, "provider-service", "run", "", err)
	}
	s.logger.Info("provider started",
		logging.Int("pid", proc.PID()),
		logging.String("network", s.opts.Network),
	)
	s.proc = proc
	return nil
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

// Stop terminates the provider, escalating to a kill after grace.
func (s *Service) Stop(ctx context.Context, grace time.Duration) error {
	proc := s.Process()
	if proc == nil {
		return nil
	}
	s.logger.Info("stopping provider", logging.Duration("grace", grace))
	if err := proc.Stop(ctx, grace); err != nil {
		return services.Wrap(services.ErrDaemon, "provider-service", "stop", "", err)
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
