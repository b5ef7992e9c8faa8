// Package taskmanager grants exclusive, queued access to one shared and
// mutable ontology graph, and replaces that graph atomically on reload.
//
// All graph access goes through RunManagedTask or RunMutatingTask. Tasks run
// one at a time in arrival order. A reload builds the replacement graph
// without holding the lock and only takes it to swap the graph pointer, so a
// running task always completes against the instance it started with.
package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"term-forge/internal/ontology"
)

var (
	// ErrOntologyFailed is returned for tasks on an ontology whose load
	// failed and that has not been reloaded since.
	ErrOntologyFailed = errors.New("ontology failed to load")
	// ErrReloadInProgress is returned when a reload is already building.
	ErrReloadInProgress = errors.New("reload already in progress")
)

const (
	kindRead     = "read"
	kindMutating = "mutating"
)

// Task is a unit of work with exclusive access to the graph. It must not
// keep g, or anything bound to g, after it returns.
type Task func(g *ontology.Graph) error

// TaskFailure reports a fault inside a managed task. The graph the task ran
// against has been discarded and will be reloaded on next use.
type TaskFailure struct {
	Ontology string
	Err      error
	// Panic holds the recovered value when the task panicked.
	Panic interface{}
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("managed task on %s failed: %v", e.Ontology, e.Err)
}

func (e *TaskFailure) Unwrap() error {
	return e.Err
}

// Options configures a Manager.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
}

// Manager owns one ontology graph.
type Manager struct {
	descriptor ontology.Descriptor
	source     ontology.Source
	logger     *slog.Logger
	metrics    *Metrics

	lock      fifoLock
	graph     atomic.Pointer[ontology.Graph]
	state     atomic.Int32
	reloading atomic.Bool
	loaded    atomic.Bool

	// guarded by lock
	lastErr error

	hooksMu sync.Mutex
	hooks   []func(ontology string)
}

// New creates a manager in the unloaded state. Nothing is loaded until the
// first task, Load or Reload.
func New(d ontology.Descriptor, source ontology.Source, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		descriptor: d,
		source:     source,
		logger:     logger.With("ontology", d.Name),
		metrics:    opts.Metrics,
	}
	m.setState(StateUnloaded)
	return m
}

// Name returns the ontology name.
func (m *Manager) Name() string {
	return m.descriptor.Name
}

// Descriptor returns the ontology descriptor.
func (m *Manager) Descriptor() ontology.Descriptor {
	return m.descriptor
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
	m.metrics.setState(m.descriptor.Name, s)
}

// OnReload registers fn to be called after the graph instance changes. Hooks
// run after the task lock has been released.
func (m *Manager) OnReload(fn func(ontology string)) {
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, fn)
}

func (m *Manager) notifyReload() {
	m.hooksMu.Lock()
	hooks := append([]func(string){}, m.hooks...)
	m.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(m.descriptor.Name)
	}
}

// Load makes sure a graph is loaded, loading it if needed.
func (m *Manager) Load(ctx context.Context) error {
	_, fresh, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	m.release(false)
	if fresh {
		m.notifyReload()
	}
	return nil
}

// RunManagedTask runs task with exclusive access to the current graph. The
// task must leave the graph unchanged. Errors returned by the task are passed
// through; a panic is reported as a *TaskFailure and discards the graph.
//
// ctx only bounds the wait in the queue. Once the task has the graph it runs
// to completion.
func (m *Manager) RunManagedTask(ctx context.Context, task Task) error {
	return m.run(ctx, kindRead, task)
}

// RunMutatingTask runs a task that may change the graph. Any error or panic
// is reported as a *TaskFailure and the graph is discarded, so the next task
// gets a freshly loaded instance.
func (m *Manager) RunMutatingTask(ctx context.Context, task Task) error {
	return m.run(ctx, kindMutating, task)
}

func (m *Manager) run(ctx context.Context, kind string, task Task) error {
	g, fresh, err := m.acquire(ctx)
	if err != nil {
		return err
	}
	if fresh {
		defer m.notifyReload()
	}

	start := time.Now()
	err = m.invoke(g, task)

	var failure *TaskFailure
	discard := errors.As(err, &failure)
	if err != nil && !discard && kind == kindMutating {
		failure = &TaskFailure{Ontology: m.Name(), Err: err}
		err = failure
		discard = true
	}
	m.release(discard)

	outcome := "ok"
	switch {
	case discard:
		outcome = "failure"
		m.logger.Error("managed task failed, graph discarded", "kind", kind, "error", failure.Err)
	case err != nil:
		outcome = "error"
		m.logger.Debug("managed task returned error", "kind", kind, "error", err)
	}
	m.metrics.observeTask(m.Name(), kind, outcome, time.Since(start))
	return err
}

func (m *Manager) invoke(g *ontology.Graph, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskFailure{Ontology: m.Name(), Err: fmt.Errorf("panic: %v", r), Panic: r}
		}
	}()
	return task(g)
}

// acquire takes the lock and returns the graph, loading it first when there
// is none. fresh reports whether a new instance was loaded.
func (m *Manager) acquire(ctx context.Context) (*ontology.Graph, bool, error) {
	if err := m.lock.Lock(ctx); err != nil {
		return nil, false, fmt.Errorf("task on %s abandoned while queued: %w", m.Name(), err)
	}
	m.metrics.setQueued(m.Name(), m.lock.Waiting())

	g := m.graph.Load()
	fresh := false
	if g == nil {
		if m.State() == StateFailed {
			err := m.lastErr
			m.lock.Unlock()
			return nil, false, fmt.Errorf("%w: %s: %w", ErrOntologyFailed, m.Name(), err)
		}
		var err error
		if g, err = m.loadLocked(ctx); err != nil {
			m.lock.Unlock()
			return nil, false, err
		}
		fresh = true
	}
	m.setState(StateBusy)
	return g, fresh, nil
}

func (m *Manager) release(discard bool) {
	if discard {
		m.graph.Store(nil)
		m.setState(StateUnloaded)
	} else {
		m.setState(StateReady)
	}
	m.lock.Unlock()
	m.metrics.setQueued(m.Name(), m.lock.Waiting())
}

// loadLocked builds a graph while holding the lock.
func (m *Manager) loadLocked(ctx context.Context) (*ontology.Graph, error) {
	m.setState(StateLoading)
	start := time.Now()
	g, err := m.source.Load(context.WithoutCancel(ctx), m.descriptor)
	if err != nil {
		m.lastErr = err
		m.setState(StateFailed)
		m.metrics.reloaded(m.Name(), "failure")
		m.logger.Error("ontology load failed", "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrOntologyFailed, m.Name(), err)
	}
	m.graph.Store(g)
	m.loaded.Store(true)
	m.lastErr = nil
	m.metrics.reloaded(m.Name(), "success")
	m.logger.Info("ontology loaded", "terms", g.Size(), "duration", time.Since(start))
	return g, nil
}

// Reload builds a new graph from the source without holding the lock, then
// swaps it in once running tasks have finished. If the build fails the
// current graph stays in place; the ontology only becomes failed when it was
// never loaded successfully. Reload is also the way out of the failed state.
func (m *Manager) Reload(ctx context.Context) error {
	if !m.reloading.CompareAndSwap(false, true) {
		return ErrReloadInProgress
	}
	defer m.reloading.Store(false)

	start := time.Now()
	g, err := m.source.Load(ctx, m.descriptor)
	if err != nil {
		m.metrics.reloaded(m.Name(), "failure")
		m.logger.Warn("ontology reload failed", "error", err)
		if !m.loaded.Load() {
			if lockErr := m.lock.Lock(context.WithoutCancel(ctx)); lockErr == nil {
				if !m.loaded.Load() {
					m.lastErr = err
					m.setState(StateFailed)
				}
				m.lock.Unlock()
			}
		}
		return fmt.Errorf("failed to reload %s: %w", m.Name(), err)
	}

	if err := m.lock.Lock(ctx); err != nil {
		return fmt.Errorf("reload of %s abandoned before swap: %w", m.Name(), err)
	}
	m.setState(StateReloading)
	m.graph.Store(g)
	m.loaded.Store(true)
	m.lastErr = nil
	m.setState(StateReady)
	m.lock.Unlock()

	m.metrics.reloaded(m.Name(), "success")
	m.logger.Info("ontology reloaded", "terms", g.Size(), "duration", time.Since(start))
	m.notifyReload()
	return nil
}

// StartPeriodicReload reloads the graph every interval until ctx is done.
// The returned channel is closed when the loop has exited.
func (m *Manager) StartPeriodicReload(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := m.Reload(ctx)
				if err != nil && !errors.Is(err, ErrReloadInProgress) && ctx.Err() == nil {
					m.logger.Warn("periodic reload failed", "error", err)
				}
			}
		}
	}()
	return done
}
