package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golemfacade/internal/config"
	"golemfacade/internal/daemon"
	"golemfacade/internal/deps"
	"golemfacade/internal/ipc"
	"golemfacade/internal/journal"
	"golemfacade/internal/logging"
	"golemfacade/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
	// NoAutoStart keeps yagna and ya-provider off until a client asks.
	NoAutoStart bool
	SocketPath  string
}

// Run hosts the facade until SIGINT, SIGTERM or an IPC Shutdown request.
func Run(parent context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}
	ctx, stopSignals := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	now := time.Now()
	files, err := newLogFiles(cfg.Paths.LogDir, opts.Diagnostic, now)
	if err != nil {
		return err
	}
	hub := logging.NewStreamHub(4096)
	logger, err := files.buildLogger(cfg, opts, hub)
	if err != nil {
		return err
	}
	files.prune(logger, cfg.Logging.RetentionDays, now)
	logEnvironment(ctx, logger, cfg)

	pidPath := cfg.PIDPath()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, unclean, err := openJournal(ctx, cfg, logger)
	if err != nil {
		return err
	}
	g, err := buildGolem(cfg, logger, unclean)
	if err != nil {
		if store != nil {
			store.Close()
		}
		return err
	}

	done, shutdown := context.WithCancel(ctx)
	defer shutdown()
	d, err := daemon.New(cfg, g, logger, daemon.Options{
		Journal:   store,
		LogHub:    hub,
		AutoStart: !opts.NoAutoStart,
		Shutdown:  shutdown,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()
	if err := d.Start(ctx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another golemfacade daemon and the api_bind address"),
			logging.String(logging.FieldImpact, "golem is not supervised"),
		)
		return err
	}

	socketPath := opts.SocketPath
	if socketPath == "" {
		socketPath = cfg.SocketPath()
	}
	server, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer server.Close()
	server.Serve()

	<-done.Done()
	logger.Info("golemfacade daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// openJournal returns a nil store when the journal is disabled. unclean
// reports whether the previous session ended without Stop.
func openJournal(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*journal.Store, bool, error) {
	if !cfg.Journal.Enabled {
		return nil, false, nil
	}
	store, err := journal.Open(cfg)
	if err != nil {
		logger.Error("open job journal", logging.Error(err))
		return nil, false, err
	}
	unclean, err := store.UncleanShutdown(ctx)
	if err != nil {
		logging.WarnWithContext(logger, "unable to read last session", "journal_session_unknown",
			logging.Error(err),
			logging.String(logging.FieldImpact, "orphaned agreements from a crashed run are not terminated"),
		)
	}
	return store, unclean, nil
}

// logEnvironment records binaries and directory checks once at startup.
func logEnvironment(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	statuses := preflight.CheckSystemDeps(cfg)
	attrs := make([]any, 0, 2*len(statuses)+4)
	attrs = append(attrs, logging.String(logging.FieldEventType, "dependency_snapshot"))
	for _, dep := range statuses {
		attrs = append(attrs,
			logging.Bool(dep.Name+"_available", dep.Available),
			logging.String(dep.Name+"_detail", dep.Detail),
		)
	}
	attrs = append(attrs,
		logging.String("payment_network", cfg.Provider.Network),
		logging.Bool("app_key_forced", cfg.Yagna.AppKey != ""),
		logging.Bool("notifications", cfg.Notifications.NtfyTopic != ""),
	)
	logger.Info("dependency snapshot", attrs...)

	if missing := deps.MissingRequired(statuses); len(missing) > 0 {
		logging.WarnWithContext(logger, "required binaries missing", "dependency_missing",
			logging.String("missing", strings.Join(missing, ", ")),
			logging.String(logging.FieldErrorHint, "set paths.binaries_dir to the golem installation"),
			logging.String(logging.FieldImpact, "golem start will fail"),
		)
	}
	for _, result := range preflight.RunAll(ctx, cfg) {
		if !result.Passed {
			logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldImpact, "daemons may fail to start"),
			)
		}
	}
}
