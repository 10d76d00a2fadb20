package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"golemfacade/internal/clock"
	"golemfacade/internal/config"
	"golemfacade/internal/deps"
	"golemfacade/internal/golem"
	"golemfacade/internal/jobs"
	"golemfacade/internal/journal"
	"golemfacade/internal/logging"
	"golemfacade/internal/notifications"
	"golemfacade/internal/preflight"
)

// ErrNotRunning is returned by facade operations before Start or after Stop.
var ErrNotRunning = errors.New("daemon not running")

// Options carries the optional collaborators of a Daemon.
type Options struct {
	// Journal is owned by the daemon once passed in and closed by Close.
	Journal  *journal.Store
	LogHub   *logging.StreamHub
	Notifier notifications.Service
	Clock    clock.Clock
	// AutoStart starts the facade as soon as the daemon is up.
	AutoStart bool
	// Shutdown asks the hosting process to exit.
	Shutdown func()
}

// Daemon hosts the facade and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	golem    *golem.Golem
	store    *journal.Store
	logHub   *logging.StreamHub
	notifier notifications.Service
	clock    clock.Clock
	opts     Options

	lockPath string
	lock     *flock.Flock

	// lifecycle serializes Start and Stop.
	lifecycle   sync.Mutex
	running     atomic.Bool
	runCancel   context.CancelFunc
	background  sync.WaitGroup
	unsubscribe []func()
	api         *apiServer

	// startMu guards startCtx, which is cancelled when the daemon stops so
	// facade starts in flight give up.
	startMu     sync.Mutex
	startCtx    context.Context
	startCancel context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	JournalPath  string
	LockFilePath string
	Golem        golem.Snapshot
	JobCounts    map[jobs.Status]int
	Dependencies []deps.Status
}

// New constructs a daemon around g.
func New(cfg *config.Config, g *golem.Golem, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || g == nil {
		return nil, errors.New("daemon requires config and golem")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real()
	}
	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		golem:    g,
		store:    opts.Journal,
		logHub:   opts.LogHub,
		notifier: notifier,
		clock:    clk,
		opts:     opts,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock and starts the journal, notifications and
// HTTP API. With AutoStart the facade is started in the background.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another golemfacade daemon instance is already running")
	}

	runCtx, runCancel := context.WithCancel(ctx)
	d.runCancel = runCancel
	d.startMu.Lock()
	d.startCtx, d.startCancel = context.WithCancel(runCtx)
	d.startMu.Unlock()

	if d.store != nil {
		recorder := journal.NewRecorder(d.store, d.logger)
		d.unsubscribe = append(d.unsubscribe, d.golem.Subscribe(recorder.Observe))
		d.background.Go(func() { recorder.Run(runCtx) })
	}
	dedup := time.Duration(d.cfg.Notifications.DedupWindowSeconds) * time.Second
	forwarder := notifications.NewForwarder(d.notifier, dedup, d.clock, d.logger)
	d.unsubscribe = append(d.unsubscribe, d.golem.Subscribe(forwarder.Observe))
	d.background.Go(func() { forwarder.Run(runCtx) })

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil {
		err = srv.start(runCtx)
	}
	if err != nil {
		d.teardownLocked()
		return fmt.Errorf("start api server: %w", err)
	}
	d.api = srv

	d.running.Store(true)
	d.logger.Info("golemfacade daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
	)

	if d.opts.AutoStart {
		d.background.Go(func() {
			if _, err := d.StartGolem(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Debug("auto start interrupted", logging.Error(err))
			}
		})
	}
	return nil
}

// Stop stops the facade and background services and releases the lock.
func (d *Daemon) Stop() {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()
	if !d.running.Load() {
		return
	}
	d.running.Store(false)

	d.api.stop()
	d.api = nil

	// A Start still in flight gives up first so Stop does not wait out the
	// startup timeout.
	d.cancelStarts()
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*d.cfg.StopGrace()+10*time.Second)
	if err := d.golem.Stop(stopCtx); err != nil {
		logging.WarnWithContext(d.logger, "golem stop did not complete", "daemon_golem_stop_incomplete",
			logging.Error(err),
			logging.String(logging.FieldImpact, "yagna or ya-provider may still be running"),
			logging.String(logging.FieldErrorHint, "check for leftover yagna/ya-provider processes"),
		)
	}
	cancel()

	d.teardownLocked()
	d.logger.Info("golemfacade daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

func (d *Daemon) cancelStarts() {
	d.startMu.Lock()
	defer d.startMu.Unlock()
	if d.startCancel != nil {
		d.startCancel()
	}
}

func (d *Daemon) teardownLocked() {
	d.cancelStarts()
	if d.runCancel != nil {
		d.runCancel()
	}
	d.background.Wait()
	for _, unsubscribe := range d.unsubscribe {
		unsubscribe()
	}
	d.unsubscribe = nil
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Close stops the daemon and releases the journal.
func (d *Daemon) Close() error {
	d.Stop()
	d.golem.Close()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// RequestShutdown asks the hosting process to exit. It returns immediately.
func (d *Daemon) RequestShutdown() bool {
	if d.opts.Shutdown == nil {
		return false
	}
	go d.opts.Shutdown()
	return true
}

// StartGolem starts the facade and waits until it is Ready or failed. A
// daemon Stop cancels a start in flight.
func (d *Daemon) StartGolem(ctx context.Context) (golem.Snapshot, error) {
	if !d.running.Load() {
		return golem.Snapshot{}, ErrNotRunning
	}
	d.startMu.Lock()
	parent := d.startCtx
	d.startMu.Unlock()

	startCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release := context.AfterFunc(parent, cancel)
	defer release()

	err := d.golem.Start(startCtx)
	return d.golem.Snapshot(), err
}

// StopGolem stops the facade and waits until it is Off.
func (d *Daemon) StopGolem(ctx context.Context) (golem.Snapshot, error) {
	if !d.running.Load() {
		return golem.Snapshot{}, ErrNotRunning
	}
	err := d.golem.Stop(ctx)
	return d.golem.Snapshot(), err
}

// ListJobs returns jobs touched since the given time. Jobs only the journal
// still knows about are included so history survives daemon restarts.
func (d *Daemon) ListJobs(ctx context.Context, since time.Time) ([]jobs.Job, error) {
	live, err := d.golem.ListJobs(ctx, since)
	if err != nil {
		return nil, err
	}
	if d.store == nil {
		return live, nil
	}
	stored, err := d.store.ListJobs(ctx, since)
	if err != nil {
		logging.WarnWithContext(d.logger, "journal listing failed", "journal_list_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "jobs from previous runs omitted"),
		)
		return live, nil
	}
	seen := make(map[string]struct{}, len(live))
	for _, job := range live {
		seen[job.ID] = struct{}{}
	}
	for _, job := range stored {
		if _, ok := seen[job.ID]; !ok {
			live = append(live, job)
		}
	}
	return live, nil
}

// Job returns one job, preferring the live registry over the journal. It
// returns nil when neither knows the agreement.
func (d *Daemon) Job(ctx context.Context, id string) (*jobs.Job, error) {
	if job, ok := d.golem.Job(id); ok {
		return &job, nil
	}
	if d.store == nil {
		return nil, nil
	}
	return d.store.Job(ctx, id)
}

// CurrentJob returns the job being computed right now.
func (d *Daemon) CurrentJob() (jobs.Job, bool) {
	return d.golem.CurrentJob()
}

// Events returns up to limit recent application events, oldest first.
func (d *Daemon) Events(limit int) []golem.Event {
	return d.golem.Events(limit)
}

// LogStream exposes the in-memory log hub.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.Publish(ctx, notifications.EventTest, nil)
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Golem:        d.golem.Snapshot(),
		Dependencies: preflight.CheckSystemDeps(d.cfg),
	}
	if d.store != nil {
		status.JournalPath = d.store.Path()
		if counts, err := d.store.Stats(ctx); err == nil {
			status.JobCounts = counts
		}
	}
	if status.JobCounts == nil {
		status.JobCounts = make(map[jobs.Status]int)
		for _, job := range d.golem.Registry().List(time.Time{}) {
			status.JobCounts[job.Status]++
		}
	}
	return status
}
