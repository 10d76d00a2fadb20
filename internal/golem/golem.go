package golem

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"golemfacade/internal/activity"
	"golemfacade/internal/clock"
	"golemfacade/internal/config"
	"golemfacade/internal/invoice"
	"golemfacade/internal/jobs"
	"golemfacade/internal/logging"
	"golemfacade/internal/power"
	"golemfacade/internal/yagna"
)

// YagnaDaemon controls the network/payment daemon. *yagna.Service satisfies it.
type YagnaDaemon interface {
	Run(onExit func(code int)) error
	WaitReady(ctx context.Context, api yagna.Me, timeout time.Duration) (yagna.MeInfo, error)
	Stop(ctx context.Context, grace time.Duration) error
}

// ProviderDaemon controls ya-provider. *provider.Service satisfies it.
type ProviderDaemon interface {
	Run(appKey string, onExit func(code int)) error
	Stop(ctx context.Context, grace time.Duration) error
}

// API is the REST surface the facade and its loops use. *yagna.Client
// satisfies it.
type API interface {
	yagna.Me
	activity.Source
	invoice.Source
	jobs.HistorySource
	Authorize(key string)
	TerminateAgreement(ctx context.Context, agreementID string, reason yagna.Reason) error
	DestroyActivity(ctx context.Context, activityID string) error
}

// KeySource looks up daemon app keys. *yagna.CLI satisfies it.
type KeySource interface {
	AppKey(ctx context.Context, name string) (yagna.KeyInfo, error)
}

// Presets configures provider presets before launch. *provider.CLI satisfies it.
type Presets interface {
	InitializeDefaultPresets(ctx context.Context) error
	UpdateAllPrices(ctx context.Context, price jobs.Price) error
}

// SuspendWatcher reports host suspends and resumes. *power.Logind and
// *power.Monitor satisfy it; the monitor only ever reports resumes.
type SuspendWatcher interface {
	Start(hooks power.Hooks)
	Stop()
}

// Deps wires the facade to its collaborators. Presets, Power, Registry,
// Clock and Logger are optional.
type Deps struct {
	Yagna    YagnaDaemon
	Provider ProviderDaemon
	API      API
	Keys     KeySource
	Presets  Presets
	Power    SuspendWatcher
	Registry *jobs.Registry
	Clock    clock.Clock
	Logger   *slog.Logger

	// Price, when set, is applied to every default preset on Start.
	Price *jobs.Price
	// UncleanShutdown marks the previous run as crashed so the first Start
	// terminates orphaned agreements.
	UncleanShutdown bool
	// EventCapacity bounds the event history; zero uses DefaultEventCapacity.
	EventCapacity int
}

// Golem supervises yagna and ya-provider, runs the reconciliation loops
// while both are up and exposes the resulting jobs.
type Golem struct {
	cfg      *config.Config
	yagna    YagnaDaemon
	provider ProviderDaemon
	api      API
	keys     KeySource
	presets  Presets
	power    SuspendWatcher
	price    *jobs.Price
	registry *jobs.Registry
	clock    clock.Clock
	logger   *slog.Logger
	events   *eventLog

	// seq serializes Start, Stop, crash handling and power transitions. It
	// also guards hookRegistered, suspended and dirty.
	seq            sync.Mutex
	hookRegistered bool
	// suspended is set while the daemons are down for a host sleep.
	suspended bool
	dirty     bool

	mu      sync.Mutex
	status  Status
	lastErr string
	nodeID  string
	session *session
	hurry   chan struct{}
	// stopsPending counts Stop calls that have not returned yet.
	stopsPending int
	observers    map[int]Observer
	nextObs      int

	// notifyMu keeps observer deliveries in emission order.
	notifyMu sync.Mutex

	unsubscribe func()
}

// New builds a stopped facade.
func New(cfg *config.Config, deps Deps) *Golem {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	registry := deps.Registry
	if registry == nil {
		registry = jobs.NewRegistry(deps.Logger, clk)
	}
	g := &Golem{
		cfg:       cfg,
		yagna:     deps.Yagna,
		provider:  deps.Provider,
		api:       deps.API,
		keys:      deps.Keys,
		presets:   deps.Presets,
		power:     deps.Power,
		price:     deps.Price,
		registry:  registry,
		clock:     clk,
		logger:    logging.NewComponentLogger(deps.Logger, "golem"),
		events:    newEventLog(deps.EventCapacity),
		dirty:     deps.UncleanShutdown,
		status:    StatusOff,
		observers: make(map[int]Observer),
	}
	g.unsubscribe = registry.Subscribe(g.forwardJobChange)
	return g
}

// Close detaches the facade from its registry and releases the suspend
// watcher. It does not stop daemons.
func (g *Golem) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
	if closer, ok := g.power.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			g.logger.Debug("close suspend watcher", logging.Error(err))
		}
	}
}

// Registry exposes the job registry the loops feed.
func (g *Golem) Registry() *jobs.Registry {
	return g.registry
}

// Status returns the current lifecycle status.
func (g *Golem) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.status
}

// NodeID returns the node identity resolved during the last Start.
func (g *Golem) NodeID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodeID
}

// Snapshot returns status, identity and current job together.
func (g *Golem) Snapshot() Snapshot {
	g.mu.Lock()
	snap := Snapshot{
		Status:    g.status,
		NodeID:    g.nodeID,
		LastError: g.lastErr,
	}
	if g.session != nil {
		snap.SessionID = g.session.id
		snap.StartedAt = g.session.startedAt
	}
	g.mu.Unlock()
	if job, ok := g.registry.Current(); ok {
		snap.Current = &job
	}
	return snap
}

// CurrentJob returns the job being computed right now.
func (g *Golem) CurrentJob() (jobs.Job, bool) {
	return g.registry.Current()
}

// Job returns one job by agreement id.
func (g *Golem) Job(id string) (jobs.Job, bool) {
	return g.registry.Get(id)
}

// ListJobs returns jobs touched since the given time. While the daemons are
// up the registry is first reconciled against the daemon's history; otherwise
// only what the registry already holds is returned.
func (g *Golem) ListJobs(ctx context.Context, since time.Time) ([]jobs.Job, error) {
	if g.Status() != StatusReady {
		return g.registry.List(since), nil
	}
	list, err := g.registry.Reconcile(ctx, g.api, since)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.WarnWithContext(g.logger, "job history reconcile failed", "job_history_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "listing limited to jobs observed live"),
		)
		return g.registry.List(since), nil
	}
	return list, nil
}

// Events returns up to limit recent events, oldest first.
func (g *Golem) Events(limit int) []Event {
	return g.events.recent(limit)
}

// Subscribe registers obs and returns a function that removes it.
func (g *Golem) Subscribe(obs Observer) func() {
	g.mu.Lock()
	key := g.nextObs
	g.nextObs++
	g.observers[key] = obs
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.observers, key)
		g.mu.Unlock()
	}
}

func (g *Golem) notify(update Update) {
	g.notifyMu.Lock()
	defer g.notifyMu.Unlock()
	g.mu.Lock()
	observers := make([]Observer, 0, len(g.observers))
	for _, obs := range g.observers {
		observers = append(observers, obs)
	}
	g.mu.Unlock()
	for _, obs := range observers {
		obs(update)
	}
}

func (g *Golem) forwardJobChange(change jobs.Change) {
	update := Update{Kind: UpdateJob, At: change.At, Job: change.Job, JobChange: change.Kind}
	if change.Kind == jobs.ChangeCurrent {
		update.Kind = UpdateCurrentJob
	}
	g.notify(update)
}

func (g *Golem) setStatus(status Status, lastErr string) {
	g.mu.Lock()
	if g.status == status && g.lastErr == lastErr {
		g.mu.Unlock()
		return
	}
	g.status = status
	g.lastErr = lastErr
	sessionID := ""
	if g.session != nil {
		sessionID = g.session.id
	}
	g.mu.Unlock()

	g.logger.Info("golem status changed",
		logging.String(logging.FieldEventType, "golem_status"),
		logging.String("status", string(status)),
	)
	g.notify(Update{Kind: UpdateStatus, At: g.clock.Now(), Status: status, SessionID: sessionID})
}

func (g *Golem) publish(severity Severity, kind EventKind, message string, err error, agreementID string) {
	ev := newEvent(g.clock.Now(), severity, kind, message, err)
	ev.AgreementID = agreementID
	g.events.add(ev)
	g.notify(Update{Kind: UpdateEvent, At: ev.Time, Event: &ev})
}
