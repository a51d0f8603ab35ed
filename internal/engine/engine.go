// Package engine keeps a user's workflow collection loaded, cached and in
// sync with the dashboard API.
package engine

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kyleking/gh-actionboard/internal/batch"
	"github.com/kyleking/gh-actionboard/internal/billing"
	"github.com/kyleking/gh-actionboard/internal/cache"
	"github.com/kyleking/gh-actionboard/internal/github"
	"github.com/kyleking/gh-actionboard/internal/poller"
	"github.com/kyleking/gh-actionboard/internal/pubsub"
	"github.com/kyleking/gh-actionboard/internal/rerun"
	"github.com/kyleking/gh-actionboard/internal/workflows"
)

// ErrNotStarted is returned by operations that need a signed-in user.
var ErrNotStarted = errors.New("engine: not started")

// API is everything the engine needs from the dashboard API.
type API interface {
	batch.Fetcher
	poller.Syncer
	poller.StatusFetcher
	rerun.API
}

// Options tunes the engine's schedules.
type Options struct {
	BatchDelay     time.Duration
	SyncInterval   time.Duration
	ActiveInterval time.Duration
	RerunDelay     time.Duration
	Concurrency    int
	Logger         *zap.Logger
}

// DefaultOptions returns the standard schedules.
func DefaultOptions() Options {
	return Options{
		BatchDelay:     batch.DefaultDelay,
		SyncInterval:   poller.DefaultSyncInterval,
		ActiveInterval: poller.DefaultActiveInterval,
		RerunDelay:     rerun.DefaultDelay,
		Concurrency:    poller.DefaultConcurrency,
	}
}

type loadRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns the shared run collection. Batch loads, both pollers and
// re-run refreshes all mutate it through whole-collection merges.
type Engine struct {
	api    API
	cache  *cache.WorkflowCache
	log    *zap.Logger
	now    func() time.Time
	runs   *workflows.Collection
	events *pubsub.Broadcaster[Event]

	loader     *batch.Loader
	syncPoller *poller.SyncPoller
	active     *poller.ActivePoller
	syncTask   *poller.Task
	activeTask *poller.Task
	reruns     *rerun.Coordinator

	// applyMu serializes merges and persists against resets.
	applyMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	state       State
	user        string
	billing     billing.Config
	batches     map[string]cache.BatchMetadata
	batchErrors map[string]error
	gen         uint64
	load        *loadRun
}

// New creates an idle engine backed by api and persisting through wc.
func New(api API, wc *cache.WorkflowCache, opts Options) *Engine {
	def := DefaultOptions()
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = def.SyncInterval
	}
	if opts.ActiveInterval <= 0 {
		opts.ActiveInterval = def.ActiveInterval
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		api:         api,
		cache:       wc,
		log:         log,
		now:         time.Now,
		runs:        workflows.NewCollection(),
		events:      pubsub.New[Event](),
		batches:     map[string]cache.BatchMetadata{},
		batchErrors: map[string]error{},
	}
	e.loader = batch.NewLoader(api, opts.BatchDelay, log.Named("batch"))
	e.syncPoller = poller.NewSyncPoller(api, e.runs.Repositories, opts.Concurrency, log.Named("sync"))
	e.active = poller.NewActivePoller(api, e.runs.Active, opts.Concurrency, log.Named("active"))
	e.syncTask = poller.NewTask("sync", opts.SyncInterval, e.pollSync, log)
	e.activeTask = poller.NewTask("active", opts.ActiveInterval, e.pollActive, log)
	e.reruns = rerun.NewCoordinator(api, opts.RerunDelay, e.applyRerun, log.Named("rerun"))
	e.reruns.OnChange(func(id int64, retrying bool) {
		e.events.Publish(Event{Kind: EventRetrying, RunID: id, Retrying: retrying, State: e.State()})
	})
	return e
}

// Start loads the user's collection from cache, or from the API when the
// cache misses, and starts the pollers. Start returns immediately; progress
// is reported through events.
func (e *Engine) Start(ctx context.Context, username string, cfg billing.Config) error {
	if username == "" {
		return errors.New("engine: username is required")
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.mu.Unlock()
		return errors.New("engine: already started")
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.user = username
	e.billing = cfg
	e.mu.Unlock()

	e.activeTask.Start(e.ctx)

	if snap, ok := e.cache.Load(username); ok && len(snap.Batches) > 0 {
		e.log.Info("loaded workflows from cache",
			zap.String("user", username), zap.Int("runs", len(snap.Data)), zap.Int("batches", len(snap.Batches)))
		e.applyMu.Lock()
		e.runs.Replace(snap.Data)
		e.mu.Lock()
		e.batches = snap.Batches
		e.mu.Unlock()
		e.applyMu.Unlock()
		e.events.Publish(Event{Kind: EventRuns, State: Ready})

		e.setState(Ready)
		e.LoadMissing()
		return nil
	}

	e.startLoad(e.plan(), InitialLoad)
	return nil
}

// Stop cancels every load, poll and pending refresh and waits for them.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	e.cancelLoad()
	e.syncTask.Stop()
	e.activeTask.Stop()
	e.reruns.Wait()

	e.mu.Lock()
	e.state = Idle
	e.cancel = nil
	e.mu.Unlock()
}

func (e *Engine) plan() []batch.Window {
	e.mu.Lock()
	cfg := e.billing
	e.mu.Unlock()
	return batch.Plan(cfg.MaxDays, cfg.MaxBatches)
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	if e.state == s {
		e.mu.Unlock()
		return
	}
	prev := e.state
	e.state = s
	ctx := e.ctx
	e.mu.Unlock()

	e.log.Debug("state changed", zap.Stringer("from", prev), zap.Stringer("to", s))
	switch {
	case s.Blocking():
		e.syncTask.Stop()
	case s != Idle && ctx != nil:
		e.syncTask.Start(ctx)
	}
	e.events.Publish(Event{Kind: EventState, State: s})
}

// startLoad fetches windows in the background, entering state first. A load
// already in flight is left alone and false is returned.
func (e *Engine) startLoad(windows []batch.Window, state State) bool {
	e.mu.Lock()
	if e.load != nil || e.ctx == nil {
		e.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(e.ctx)
	lr := &loadRun{cancel: cancel, done: make(chan struct{})}
	e.load = lr
	e.mu.Unlock()

	if len(windows) == 0 {
		e.finishLoad(lr)
		e.setState(Ready)
		return true
	}

	e.setState(state)
	go func() {
		defer e.finishLoad(lr)
		err := e.loader.Run(ctx, windows, func(r batch.Result) {
			e.applyBatch(ctx, r)
			if r.Index == 0 && state.Blocking() {
				e.setState(BackgroundLoad)
			}
		})
		if err == nil {
			e.setState(Ready)
		}
	}()
	return true
}

func (e *Engine) finishLoad(lr *loadRun) {
	e.mu.Lock()
	if e.load == lr {
		e.load = nil
	}
	e.mu.Unlock()
	lr.cancel()
	close(lr.done)
}

// cancelLoad cancels the load in flight and waits for it to return.
func (e *Engine) cancelLoad() {
	e.mu.Lock()
	lr := e.load
	e.load = nil
	e.mu.Unlock()
	if lr == nil {
		return
	}
	lr.cancel()
	<-lr.done
}

func (e *Engine) applyBatch(ctx context.Context, r batch.Result) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	e.mu.Lock()
	if r.Err != nil {
		e.batchErrors[r.Window.ID] = r.Err
		e.mu.Unlock()
		e.events.Publish(Event{Kind: EventBatch, BatchID: r.Window.ID, Err: r.Err, State: e.State()})
		return
	}
	delete(e.batchErrors, r.Window.ID)
	e.batches[r.Window.ID] = cache.BatchMetadata{
		DateFrom:      r.DateFrom,
		DateTo:        r.DateTo,
		LoadedAt:      e.now().UnixMilli(),
		WorkflowCount: r.Response.WorkflowCount,
	}
	e.mu.Unlock()

	e.runs.Merge(r.Response.Workflows)
	e.persist()
	e.events.Publish(Event{Kind: EventBatch, BatchID: r.Window.ID, State: e.State()})
	e.events.Publish(Event{Kind: EventRuns, State: e.State()})
}

// applyRuns merges poll results taken at generation gen. Results from before
// the last reset are dropped.
func (e *Engine) applyRuns(ctx context.Context, gen uint64, runs []github.WorkflowRun) {
	if len(runs) == 0 {
		return
	}
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if ctx.Err() != nil || gen != e.generation() {
		return
	}
	e.runs.Merge(runs)
	e.persist()
	e.events.Publish(Event{Kind: EventRuns, State: e.State()})
}

func (e *Engine) generation() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// persist saves the collection. Callers hold applyMu.
func (e *Engine) persist() {
	e.mu.Lock()
	user := e.user
	batches := maps.Clone(e.batches)
	e.mu.Unlock()
	if user == "" || len(batches) == 0 {
		return
	}
	if err := e.cache.Save(user, e.runs.Snapshot(), batches); err != nil {
		e.log.Warn("failed to save workflow cache", zap.String("user", user), zap.Error(err))
	}
}

func (e *Engine) pollSync(ctx context.Context) {
	gen := e.generation()
	e.applyRuns(ctx, gen, e.syncPoller.Poll(ctx))
}

func (e *Engine) pollActive(ctx context.Context) {
	gen := e.generation()
	e.applyRuns(ctx, gen, e.active.Poll(ctx))
}

func (e *Engine) applyRerun(run github.WorkflowRun) {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		return
	}
	e.applyRuns(ctx, e.generation(), []github.WorkflowRun{run})
}

// LoadMissing fetches, in the background, every planned batch that has not
// loaded yet, including ones that failed. It reports whether a load started.
func (e *Engine) LoadMissing() bool {
	e.mu.Lock()
	loaded := maps.Clone(e.batches)
	e.mu.Unlock()

	missing := batch.Missing(e.plan(), loaded)
	if len(missing) == 0 {
		return false
	}
	return e.startLoad(missing, BackgroundLoad)
}

// ForceFullRefresh discards the cache and reloads every batch. confirm is
// asked first with the number of days that will be reloaded; a false answer
// changes nothing.
func (e *Engine) ForceFullRefresh(confirm func(maxDays int) bool) (bool, error) {
	e.mu.Lock()
	user, cfg, started := e.user, e.billing, e.ctx != nil
	e.mu.Unlock()
	if !started {
		return false, ErrNotStarted
	}
	if confirm != nil && !confirm(cfg.MaxDays) {
		return false, nil
	}

	e.cancelLoad()
	e.setState(FullRefresh)
	e.reset(user)
	e.events.Publish(Event{Kind: EventRuns, State: FullRefresh})

	e.startLoadBlocking(FullRefresh)
	return true, nil
}

// startLoadBlocking starts a full load, cancelling once a load that raced
// in since the caller's own cancel.
func (e *Engine) startLoadBlocking(state State) {
	if !e.startLoad(e.plan(), state) {
		e.cancelLoad()
		e.startLoad(e.plan(), state)
	}
}

func (e *Engine) reset(user string) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	if err := e.cache.Clear(user); err != nil {
		e.log.Warn("failed to clear workflow cache", zap.String("user", user), zap.Error(err))
	}
	e.runs.Reset()
	e.syncPoller.State().Reset()
	e.active.State().Reset()

	e.mu.Lock()
	e.batches = map[string]cache.BatchMetadata{}
	e.batchErrors = map[string]error{}
	e.gen++
	e.mu.Unlock()
}

// SetBilling applies a new quota. When the batch plan changes, the loaded
// batch metadata is dropped and every window of the new plan is fetched in
// the background; the collection itself is kept.
func (e *Engine) SetBilling(cfg billing.Config) {
	e.mu.Lock()
	old := e.billing
	e.billing = cfg
	started := e.ctx != nil
	e.mu.Unlock()

	if !started || old.SamePlan(cfg) {
		return
	}
	e.log.Info("batch plan changed",
		zap.Int("maxDays", cfg.MaxDays), zap.Int("maxBatches", cfg.MaxBatches))

	e.cancelLoad()
	e.applyMu.Lock()
	e.mu.Lock()
	e.batches = map[string]cache.BatchMetadata{}
	e.batchErrors = map[string]error{}
	e.mu.Unlock()
	e.applyMu.Unlock()

	if !e.LoadMissing() {
		e.setState(Ready)
	}
}

// Rerun re-runs run in mode; see rerun.Coordinator.Rerun.
func (e *Engine) Rerun(run github.WorkflowRun, mode rerun.Mode) error {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		return ErrNotStarted
	}
	return e.reruns.Rerun(ctx, run, mode)
}

// RerunJob re-runs a single job.
func (e *Engine) RerunJob(owner, repo string, jobID int64) error {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()
	if ctx == nil {
		return ErrNotStarted
	}
	return e.reruns.RerunJob(ctx, owner, repo, jobID)
}

// IsRetrying reports whether a re-run of id is waiting for its refresh.
func (e *Engine) IsRetrying(id int64) bool {
	return e.reruns.IsRetrying(id)
}

// Runs returns the current collection snapshot.
func (e *Engine) Runs() []github.WorkflowRun {
	return e.runs.Snapshot()
}

// Run returns one run by id.
func (e *Engine) Run(id int64) (github.WorkflowRun, bool) {
	return e.runs.Get(id)
}

// State returns the load state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Billing returns the quota in effect.
func (e *Engine) Billing() billing.Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.billing
}

// User returns the user the engine was started for.
func (e *Engine) User() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.user
}

// Batches returns the metadata of loaded batches.
func (e *Engine) Batches() map[string]cache.BatchMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.batches)
}

// BatchErrors returns the batches whose last load failed.
func (e *Engine) BatchErrors() map[string]error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.batchErrors)
}

// Subscribe returns a channel of engine events.
func (e *Engine) Subscribe() <-chan Event {
	return e.events.Subscribe()
}

// Unsubscribe stops delivery to ch.
func (e *Engine) Unsubscribe(ch <-chan Event) {
	e.events.Unsubscribe(ch)
}

// WaitIdle blocks until no batch load is in flight or ctx is done.
func (e *Engine) WaitIdle(ctx context.Context) error {
	for {
		e.mu.Lock()
		lr := e.load
		e.mu.Unlock()
		if lr == nil {
			return nil
		}
		select {
		case <-lr.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
