package golem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"golemfacade/internal/activity"
	"golemfacade/internal/invoice"
	"golemfacade/internal/logging"
	"golemfacade/internal/power"
	"golemfacade/internal/services"
	"golemfacade/internal/yagna"
)

// session is one Start attempt. Each daemon gets its own cancellation scope
// and the loops share a third one nested in the yagna scope.
type session struct {
	id        string
	startedAt time.Time

	yagnaCtx       context.Context
	cancelYagna    context.CancelFunc
	providerCtx    context.Context
	cancelProvider context.CancelFunc
	loopsCtx       context.Context
	cancelLoops    context.CancelFunc
	loops          sync.WaitGroup

	// closed is set once the session is torn down; late exit callbacks
	// for a closed session are ignored. Guarded by Golem.seq.
	closed bool
}

func newSession(now time.Time) *session {
	s := &session{id: uuid.NewString(), startedAt: now}
	s.yagnaCtx, s.cancelYagna = context.WithCancel(context.Background())
	s.providerCtx, s.cancelProvider = context.WithCancel(context.Background())
	s.loopsCtx, s.cancelLoops = context.WithCancel(s.yagnaCtx)
	return s
}

func (s *session) cancelAll() {
	s.cancelLoops()
	s.cancelProvider()
	s.cancelYagna()
}

// bind derives a context that ends with either scope or the caller's ctx.
func bind(scope, caller context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(scope)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Start launches yagna, then ya-provider, then both reconciliation loops.
// Start on a Ready, Starting or Stopping facade is a no-op, as is Start
// racing an in-flight Stop. Daemon failures do not surface as errors: they
// leave the facade in Error with an event describing why. Only
// cancellation of ctx is returned.
func (g *Golem) Start(ctx context.Context) error {
	if g.stopInFlight() {
		g.logger.Debug("start ignored while stopping")
		return nil
	}
	g.seq.Lock()
	defer g.seq.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if g.stopInFlight() {
		return nil
	}
	switch g.Status() {
	case StatusReady, StatusStarting:
		return nil
	}
	return g.startLocked(ctx)
}

func (g *Golem) stopInFlight() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status == StatusStopping || g.stopsPending > 0
}

func (g *Golem) startLocked(ctx context.Context) error {
	sess := newSession(g.clock.Now())
	g.mu.Lock()
	g.session = sess
	g.mu.Unlock()
	g.setStatus(StatusStarting, "")

	logger := g.logger.With(logging.String("session_id", sess.id))
	logger.Info("starting golem",
		logging.String(logging.FieldEventType, "golem_start"),
	)

	if err := g.launch(ctx, sess); err != nil {
		if ctx.Err() != nil {
			g.teardownLocked(context.Background(), sess, g.cfg.ErrorStopGrace(), true)
			g.setStatus(StatusOff, "")
			return ctx.Err()
		}
		g.failLocked(sess, EventStartFailed, "golem failed to start", err)
		return nil
	}

	g.attachHookLocked()
	g.setStatus(StatusReady, "")
	logger.Info("golem ready",
		logging.String(logging.FieldEventType, "golem_ready"),
		logging.String("node_id", g.NodeID()),
	)
	g.publish(SeverityInfo, EventStarted, "Golem started", nil, "")
	return nil
}

func (g *Golem) launch(ctx context.Context, sess *session) error {
	yctx, cancel := bind(sess.yagnaCtx, ctx)
	defer cancel()
	yctx = services.WithDaemon(yctx, string(DaemonYagna))

	if err := g.yagna.Run(g.exitHandler(sess, DaemonYagna)); err != nil {
		return err
	}

	appKey := strings.TrimSpace(g.cfg.Yagna.AppKey)
	if appKey == "" {
		key, err := g.keys.AppKey(yctx, yagna.DefaultAppKeyName)
		if err != nil {
			return fmt.Errorf("resolve app key: %w", err)
		}
		appKey = key.Key
	}
	g.api.Authorize(appKey)

	me, err := g.yagna.WaitReady(yctx, g.api, g.cfg.YagnaStartupTimeout())
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			g.publish(SeverityError, EventUnauthorized,
				"yagna rejected the app key; another instance may be running", err, "")
		}
		return err
	}
	g.mu.Lock()
	g.nodeID = me.Identity
	g.mu.Unlock()

	if g.cfg.Lifecycle.OrphanCleanup && g.dirty {
		g.cleanupOrphans(yctx)
		g.dirty = false
	}

	pctx, pcancel := bind(sess.providerCtx, ctx)
	defer pcancel()
	g.configurePresets(services.WithDaemon(pctx, string(DaemonProvider)))
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := g.provider.Run(appKey, g.exitHandler(sess, DaemonProvider)); err != nil {
		return err
	}

	g.startLoops(sess)
	return nil
}

func (g *Golem) configurePresets(ctx context.Context) {
	if g.presets == nil {
		return
	}
	if g.cfg.Provider.InitPresets {
		if err := g.presets.InitializeDefaultPresets(ctx); err != nil {
			g.presetWarning("default preset setup failed", err)
			return
		}
	}
	if g.price != nil {
		if err := g.presets.UpdateAllPrices(ctx, *g.price); err != nil {
			g.presetWarning("preset price update failed", err)
		}
	}
}

func (g *Golem) presetWarning(message string, err error) {
	logging.WarnWithContext(g.logger, message, "provider_presets_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "run ya-provider preset list to inspect presets"),
		logging.String(logging.FieldImpact, "provider offers may use stale presets or prices"),
	)
	g.publish(SeverityWarning, EventPresetsFailed, message, err, "")
}

func (g *Golem) startLoops(sess *session) {
	activityLoop := activity.NewLoop(g.api, g.registry, g.clock, g.logger)
	activityLoop.ReconnectDelay = g.cfg.ActivityReconnect()

	invoiceLoop := invoice.NewLoop(g.api, g.registry, g.clock, g.logger)
	invoiceLoop.PollTimeout = g.cfg.InvoicePollTimeout()
	invoiceLoop.HTTPRetry = g.cfg.InvoiceHTTPRetry()
	invoiceLoop.ErrorRetry = g.cfg.InvoiceErrorRetry()

	sess.loops.Add(2)
	go func() {
		defer sess.loops.Done()
		_ = activityLoop.Run(sess.loopsCtx)
	}()
	go func() {
		defer sess.loops.Done()
		_ = invoiceLoop.Run(sess.loopsCtx)
	}()
}

// Stop cancels the loops, then stops ya-provider and yagna. It always ends
// in Off, or Error when a daemon could not be stopped. Stop on an Off
// facade is a no-op; Stop on an Error facade tears down leftovers with the
// short grace. A Stop issued while another is running shortens the running
// one's grace.
func (g *Golem) Stop(ctx context.Context) error {
	g.mu.Lock()
	g.stopsPending++
	stopping := g.status == StatusStopping
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.stopsPending--
		g.mu.Unlock()
	}()
	if stopping {
		g.hurryStop()
	}
	g.seq.Lock()
	defer g.seq.Unlock()
	g.suspended = false

	status := g.Status()
	if status == StatusOff {
		return nil
	}
	grace := g.cfg.StopGrace()
	if status == StatusError {
		grace = g.cfg.ErrorStopGrace()
	}

	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()

	g.setStatus(StatusStopping, "")
	g.logger.Info("stopping golem",
		logging.String(logging.FieldEventType, "golem_stop"),
		logging.Duration("grace", grace),
	)

	stopCtx, done := g.stopContext(ctx)
	err := g.teardownLocked(stopCtx, sess, grace, true)
	done()

	if err != nil {
		logging.ErrorWithContext(g.logger, "golem stop incomplete", "golem_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for leftover yagna or ya-provider processes"),
		)
		g.setStatus(StatusError, err.Error())
		g.publish(SeverityError, EventStopFailed, "Golem did not stop cleanly", err, "")
		return ctx.Err()
	}
	g.setStatus(StatusOff, "")
	g.publish(SeverityInfo, EventStopped, "Golem stopped", nil, "")
	return ctx.Err()
}

// stopContext returns a context for daemon stops that is cancelled, which
// forces a kill, once a second Stop arrives and the short grace elapses.
func (g *Golem) stopContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	hurry := make(chan struct{})
	g.mu.Lock()
	g.hurry = hurry
	g.mu.Unlock()
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-hurry:
		}
		select {
		case <-ctx.Done():
		case <-g.clock.After(g.cfg.ErrorStopGrace()):
			cancel()
		}
	}()
	return ctx, func() {
		g.mu.Lock()
		g.hurry = nil
		g.mu.Unlock()
		cancel()
	}
}

func (g *Golem) hurryStop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hurry != nil {
		close(g.hurry)
		g.hurry = nil
	}
}

// teardownLocked cancels loops before asking either daemon to exit, then
// stops ya-provider ahead of yagna. Callers hold seq.
func (g *Golem) teardownLocked(ctx context.Context, sess *session, grace time.Duration, detachHook bool) error {
	if detachHook {
		g.detachHookLocked()
	}
	if sess != nil {
		sess.closed = true
		sess.cancelLoops()
		sess.loops.Wait()
		sess.cancelProvider()
	}

	var errs []error
	if err := g.provider.Stop(ctx, grace); err != nil {
		errs = append(errs, fmt.Errorf("stop provider: %w", err))
	}
	if sess != nil {
		sess.cancelYagna()
	}
	if err := g.yagna.Stop(ctx, grace); err != nil {
		errs = append(errs, fmt.Errorf("stop yagna: %w", err))
	}

	g.registry.SetCurrent("")
	g.registry.SetAllJobsFinished()
	return errors.Join(errs...)
}

func (g *Golem) failLocked(sess *session, kind EventKind, message string, err error) {
	logging.ErrorWithContext(g.logger, message, "golem_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hintFor(err)),
	)
	if stopErr := g.teardownLocked(context.Background(), sess, g.cfg.ErrorStopGrace(), true); stopErr != nil {
		logging.WarnWithContext(g.logger, "cleanup after failure incomplete", "golem_cleanup_failed",
			logging.Error(stopErr),
			logging.String(logging.FieldImpact, "a daemon process may still be running"),
		)
	}
	g.dirty = true
	g.setStatus(StatusError, err.Error())
	g.publish(SeverityError, kind, message, err, "")
}

func hintFor(err error) string {
	switch services.Classify(err) {
	case services.CategoryTransport:
		if errors.Is(err, services.ErrUnauthorized) {
			return "stop other yagna instances or set yagna.app_key"
		}
		return "check that yagna is reachable at yagna.api_url"
	case services.CategoryConfig:
		return "run golemfacade config validate"
	case services.CategoryDaemon:
		return "check the yagna and ya-provider logs"
	default:
		return "check logs for details"
	}
}

// exitHandler returns the onExit callback for one daemon of one session.
// It never blocks the process watcher.
func (g *Golem) exitHandler(sess *session, daemon Daemon) func(code int) {
	return func(code int) {
		go g.handleExit(sess, daemon, code)
	}
}

// handleExit reacts to a daemon exiting on its own: the peer is cancelled
// and stopped, the facade enters Error and the resume hook is detached.
// Exits caused by Stop, or by a failed Start's cleanup, find the session
// already closed and are ignored.
func (g *Golem) handleExit(sess *session, daemon Daemon, code int) {
	g.seq.Lock()
	defer g.seq.Unlock()

	g.mu.Lock()
	current := g.session == sess
	g.mu.Unlock()
	if !current || sess.closed {
		g.logger.Debug("daemon exit ignored",
			logging.String(logging.FieldDaemon, string(daemon)),
			logging.Int("exit_code", code),
		)
		return
	}

	err := services.Wrap(services.ErrDaemon, "golem", "supervise",
		fmt.Sprintf("%s exited unexpectedly with code %d", daemon, code), nil)
	logging.ErrorWithContext(g.logger, "daemon exited unexpectedly", "daemon_crashed",
		logging.String(logging.FieldDaemon, string(daemon)),
		logging.Int("exit_code", code),
		logging.String(logging.FieldErrorHint, "check the daemon log; golemfacade golem start restarts both daemons"),
	)

	g.detachHookLocked()
	sess.closed = true
	sess.cancelLoops()
	sess.loops.Wait()

	grace := g.cfg.ErrorStopGrace()
	var stopErr error
	switch daemon {
	case DaemonYagna:
		sess.cancelProvider()
		stopErr = g.provider.Stop(context.Background(), grace)
	case DaemonProvider:
		sess.cancelYagna()
		stopErr = g.yagna.Stop(context.Background(), grace)
	}
	sess.cancelAll()
	if stopErr != nil {
		logging.WarnWithContext(g.logger, "peer daemon stop failed", "daemon_stop_failed",
			logging.Error(stopErr),
			logging.String(logging.FieldImpact, "a daemon process may still be running"),
		)
	}

	g.registry.SetCurrent("")
	g.registry.SetAllJobsFinished()
	g.dirty = true
	g.setStatus(StatusError, err.Error())
	g.publish(SeverityError, EventDaemonExited, fmt.Sprintf("%s exited unexpectedly", daemon), err, "")
}

func (g *Golem) attachHookLocked() {
	if g.power == nil || g.hookRegistered || !g.cfg.Lifecycle.SuspendDetection {
		return
	}
	g.power.Start(power.Hooks{Suspend: g.handleSuspend, Resume: g.handleResume})
	g.hookRegistered = true
}

func (g *Golem) detachHookLocked() {
	if g.power == nil || !g.hookRegistered {
		return
	}
	g.power.Stop()
	g.hookRegistered = false
}

// handleSuspend runs the Stop sequence before the host sleeps. The status
// stays Stopping instead of reaching Off and the hook stays registered, so
// the matching resume brings the daemons back.
func (g *Golem) handleSuspend() {
	g.seq.Lock()
	defer g.seq.Unlock()
	if !g.hookRegistered || g.Status() != StatusReady {
		return
	}

	g.publish(SeverityInfo, EventSuspending, "system suspending; stopping daemons", nil, "")

	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()

	g.setStatus(StatusStopping, "")
	if err := g.teardownLocked(context.Background(), sess, g.cfg.StopGrace(), false); err != nil {
		logging.WarnWithContext(g.logger, "stop before suspend incomplete", "suspend_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "a daemon may not survive the suspend"),
		)
	}
	g.suspended = true
}

// handleResume brings both daemons back after a host sleep, since neither
// survives one reliably. After a reported suspend it runs a full Start.
// When only the resume was observed the daemons are still up, so they are
// torn down first. The status never passes through Off and the hook stays
// registered.
func (g *Golem) handleResume(gap time.Duration) {
	g.seq.Lock()
	defer g.seq.Unlock()
	if !g.hookRegistered {
		return
	}
	if g.suspended {
		g.suspended = false
		if g.Status() != StatusStopping {
			return
		}
		g.publish(SeverityInfo, EventResumed,
			fmt.Sprintf("system resumed after %s; starting daemons", gap.Round(time.Second)), nil, "")
		_ = g.startLocked(context.Background())
		return
	}
	if g.Status() != StatusReady {
		return
	}

	g.publish(SeverityInfo, EventResumed,
		fmt.Sprintf("system resumed after %s; restarting daemons", gap.Round(time.Second)), nil, "")

	g.mu.Lock()
	sess := g.session
	g.mu.Unlock()

	g.setStatus(StatusStopping, "")
	if err := g.teardownLocked(context.Background(), sess, g.cfg.StopGrace(), false); err != nil {
		logging.WarnWithContext(g.logger, "stop before resume restart incomplete", "resume_stop_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "restart may find a daemon still running"),
		)
	}
	_ = g.startLocked(context.Background())
}
