package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"term-forge/internal/obo"
	"term-forge/internal/ontology"
	"term-forge/internal/ontology/ontologytest"
)

// countingSource builds a fresh MiniGO graph on every call.
type countingSource struct {
	calls  atomic.Int32
	failOn func(call int32) error
}

func (s *countingSource) Load(_ context.Context, d ontology.Descriptor) (*ontology.Graph, error) {
	n := s.calls.Add(1)
	if s.failOn != nil {
		if err := s.failOn(n); err != nil {
			return nil, err
		}
	}
	doc, err := obo.Read(strings.NewReader(ontologytest.MiniGO))
	if err != nil {
		return nil, err
	}
	return ontology.NewGraphFromDocument(d, doc)
}

func newManager(src ontology.Source) *Manager {
	return New(ontologytest.Descriptor(), src, Options{})
}

func noop(*ontology.Graph) error { return nil }

// hold runs a task that keeps the lock until release is closed.
func hold(t *testing.T, m *Manager) (release chan struct{}, done chan error) {
	t.Helper()
	started := make(chan struct{})
	release = make(chan struct{})
	done = make(chan error, 1)
	go func() {
		done <- m.RunManagedTask(context.Background(), func(*ontology.Graph) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	return release, done
}

func TestManager_LazyLoad(t *testing.T) {
	src := &countingSource{}
	m := newManager(src)
	assert.Equal(t, StateUnloaded, m.State())
	assert.EqualValues(t, 0, src.calls.Load())

	var size int
	err := m.RunManagedTask(context.Background(), func(g *ontology.Graph) error {
		size = g.Size()
		assert.Equal(t, StateBusy, m.State())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 16, size)
	assert.Equal(t, StateReady, m.State())

	require.NoError(t, m.RunManagedTask(context.Background(), noop))
	require.NoError(t, m.Load(context.Background()))
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestManager_MutualExclusion(t *testing.T) {
	m := newManager(&countingSource{})

	var active, overlaps, ran atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < 20; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				err := m.RunManagedTask(context.Background(), func(*ontology.Graph) error {
					if active.Add(1) > 1 {
						overlaps.Add(1)
					}
					time.Sleep(50 * time.Microsecond)
					active.Add(-1)
					ran.Add(1)
					return nil
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 0, overlaps.Load())
	assert.EqualValues(t, 200, ran.Load())
}

func TestManager_FIFOOrder(t *testing.T) {
	m := newManager(&countingSource{})
	release, blocker := hold(t, m)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = m.RunManagedTask(context.Background(), func(*ontology.Graph) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		require.Eventually(t, func() bool { return m.lock.Waiting() == i+1 }, time.Second, time.Millisecond)
	}

	close(release)
	require.NoError(t, <-blocker)
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestManager_AbandonQueuedTask(t *testing.T) {
	m := newManager(&countingSource{})
	release, blocker := hold(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.RunManagedTask(ctx, func(*ontology.Graph) error {
			ran.Store(true)
			return nil
		})
	}()
	require.Eventually(t, func() bool { return m.lock.Waiting() == 1 }, time.Second, time.Millisecond)

	cancel()
	err := <-errCh
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.lock.Waiting())

	close(release)
	require.NoError(t, <-blocker)
	require.NoError(t, m.RunManagedTask(context.Background(), noop))
	assert.False(t, ran.Load())
}

func TestManager_ReloadSwapIsAtomic(t *testing.T) {
	src := &countingSource{}
	m := newManager(src)
	require.NoError(t, m.Load(context.Background()))

	var seen *ontology.Graph
	inTask := make(chan struct{})
	release := make(chan struct{})
	taskDone := make(chan error, 1)
	go func() {
		taskDone <- m.RunManagedTask(context.Background(), func(g *ontology.Graph) error {
			seen = g
			close(inTask)
			<-release
			if _, ok := g.Term("GO:0040007"); !ok {
				return errors.New("graph changed under the task")
			}
			return nil
		})
	}()
	<-inTask

	reloadDone := make(chan error, 1)
	go func() { reloadDone <- m.Reload(context.Background()) }()

	// the rebuild does not wait for the running task, only the swap does
	require.Eventually(t, func() bool { return src.calls.Load() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return m.lock.Waiting() == 1 }, time.Second, time.Millisecond)
	assert.Same(t, seen, m.graph.Load())
	assert.Equal(t, StateBusy, m.State())

	close(release)
	require.NoError(t, <-taskDone)
	require.NoError(t, <-reloadDone)

	var next *ontology.Graph
	require.NoError(t, m.RunManagedTask(context.Background(), func(g *ontology.Graph) error {
		next = g
		return nil
	}))
	assert.NotSame(t, seen, next)
	assert.Equal(t, StateReady, m.State())
}

func TestManager_ReloadFailureKeepsGraph(t *testing.T) {
	boom := errors.New("source unavailable")
	src := &countingSource{failOn: func(n int32) error {
		if n == 2 {
			return boom
		}
		return nil
	}}
	m := newManager(src)

	var first *ontology.Graph
	require.NoError(t, m.RunManagedTask(context.Background(), func(g *ontology.Graph) error {
		first = g
		return nil
	}))

	err := m.Reload(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateReady, m.State())

	require.NoError(t, m.RunManagedTask(context.Background(), func(g *ontology.Graph) error {
		assert.Same(t, first, g)
		return nil
	}))
}

func TestManager_InitialLoadFailure(t *testing.T) {
	boom := errors.New("parse error")
	src := &countingSource{failOn: func(n int32) error {
		if n == 1 {
			return boom
		}
		return nil
	}}
	m := newManager(src)

	err := m.RunManagedTask(context.Background(), noop)
	assert.ErrorIs(t, err, ErrOntologyFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, m.State())

	// failed is terminal until an explicit reload
	err = m.RunManagedTask(context.Background(), noop)
	assert.ErrorIs(t, err, ErrOntologyFailed)
	assert.EqualValues(t, 1, src.calls.Load())

	require.NoError(t, m.Reload(context.Background()))
	assert.Equal(t, StateReady, m.State())
	require.NoError(t, m.RunManagedTask(context.Background(), noop))
}

func TestManager_ReloadFailureWithoutPriorLoad(t *testing.T) {
	m := newManager(&countingSource{failOn: func(int32) error { return errors.New("missing") }})

	assert.Error(t, m.Reload(context.Background()))
	assert.Equal(t, StateFailed, m.State())
}

func TestManager_PanicDiscardsGraph(t *testing.T) {
	src := &countingSource{}
	m := newManager(src)
	require.NoError(t, m.Load(context.Background()))

	err := m.RunManagedTask(context.Background(), func(*ontology.Graph) error {
		panic("boom")
	})
	var failure *TaskFailure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "boom", failure.Panic)
	assert.Equal(t, "GO", failure.Ontology)
	assert.Equal(t, StateUnloaded, m.State())

	require.NoError(t, m.RunManagedTask(context.Background(), noop))
	assert.EqualValues(t, 2, src.calls.Load())
	assert.Equal(t, StateReady, m.State())
}

func TestManager_FailedMutationIsNotVisible(t *testing.T) {
	src := &countingSource{}
	m := newManager(src)
	halfDone := errors.New("half done")

	err := m.RunMutatingTask(context.Background(), func(g *ontology.Graph) error {
		f := obo.NewFrame("GO:0099999")
		f.Set(obo.TagName, "partial")
		if err := g.Apply([]*obo.Frame{f}); err != nil {
			return err
		}
		return halfDone
	})
	var failure *TaskFailure
	require.ErrorAs(t, err, &failure)
	assert.ErrorIs(t, err, halfDone)
	assert.Equal(t, StateUnloaded, m.State())

	require.NoError(t, m.RunManagedTask(context.Background(), func(g *ontology.Graph) error {
		_, ok := g.Term("GO:0099999")
		assert.False(t, ok)
		return nil
	}))
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestManager_ReadTaskErrorPassesThrough(t *testing.T) {
	src := &countingSource{}
	m := newManager(src)
	notFound := errors.New("not found")

	err := m.RunManagedTask(context.Background(), func(*ontology.Graph) error { return notFound })
	assert.ErrorIs(t, err, notFound)
	var failure *TaskFailure
	assert.False(t, errors.As(err, &failure))
	assert.Equal(t, StateReady, m.State())

	require.NoError(t, m.RunManagedTask(context.Background(), noop))
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestManager_NoInterleavedMutation(t *testing.T) {
	m := newManager(&countingSource{})
	rename := func(g *ontology.Graph, id, label string) error {
		f, ok := g.Frame(id)
		if !ok {
			return fmt.Errorf("missing %s", id)
		}
		f.Set(obo.TagName, label)
		return g.Apply([]*obo.Frame{f})
	}

	var torn atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 20; i++ {
			err := m.RunMutatingTask(context.Background(), func(g *ontology.Graph) error {
				if err := rename(g, "GO:0040007", fmt.Sprintf("growth %d", i)); err != nil {
					return err
				}
				time.Sleep(200 * time.Microsecond)
				return rename(g, "GO:0016049", fmt.Sprintf("cell growth %d", i))
			})
			assert.NoError(t, err)
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_ = m.RunManagedTask(context.Background(), func(g *ontology.Graph) error {
					a, _ := g.Term("GO:0040007")
					b, _ := g.Term("GO:0016049")
					if strings.TrimPrefix(a.Label, "growth") != strings.TrimPrefix(b.Label, "cell growth") {
						torn.Add(1)
					}
					return nil
				})
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 0, torn.Load())
}

func TestManager_OnReloadRunsOutsideLock(t *testing.T) {
	m := newManager(&countingSource{})
	require.NoError(t, m.Load(context.Background()))

	notified := make(chan string, 1)
	m.OnReload(func(name string) {
		// would deadlock if hooks ran under the task lock
		_ = m.RunManagedTask(context.Background(), noop)
		notified <- name
	})

	require.NoError(t, m.Reload(context.Background()))
	select {
	case name := <-notified:
		assert.Equal(t, "GO", name)
	case <-time.After(time.Second):
		t.Fatal("reload hook not called")
	}
}

func TestManager_ConcurrentReloadRejected(t *testing.T) {
	m := newManager(&countingSource{})
	m.reloading.Store(true)
	assert.ErrorIs(t, m.Reload(context.Background()), ErrReloadInProgress)
}

func TestManager_PeriodicReload(t *testing.T) {
	src := &countingSource{}
	m := newManager(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := m.StartPeriodicReload(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return src.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, StateReady, m.State())

	closed := m.StartPeriodicReload(context.Background(), 0)
	_, open := <-closed
	assert.False(t, open)
}

func TestWatcher_ReloadsOnSourceChange(t *testing.T) {
	dir := t.TempDir()
	path := ontologytest.WriteFile(t, dir)
	m := New(ontology.Descriptor{Name: "GO", Source: path}, ontology.FileSource{}, Options{})
	require.NoError(t, m.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w, err := NewWatcher(m, 20*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	updated := ontologytest.MiniGO + "\n[Term]\nid: GO:0099999\nname: watched term\nis_a: GO:0008150\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	require.Eventually(t, func() bool {
		found := false
		_ = m.RunManagedTask(context.Background(), func(g *ontology.Graph) error {
			_, found = g.Term("GO:0099999")
			return nil
		})
		return found
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWatcher_StopWithoutRunningLoop(t *testing.T) {
	dir := t.TempDir()
	path := ontologytest.WriteFile(t, dir)
	missing := dir + "/gone/support.obo"

	tests := []struct {
		name  string
		d     ontology.Descriptor
		start bool
	}{
		{"never started", ontology.Descriptor{Name: "GO", Source: path}, false},
		{"start failed", ontology.Descriptor{Name: "GO", Source: path, Support: []string{missing}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewWatcher(New(tt.d, ontology.FileSource{}, Options{}), 0)
			require.NoError(t, err)
			if tt.start {
				require.Error(t, w.Start(context.Background()))
			}

			stopped := make(chan struct{})
			go func() {
				w.Stop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(5 * time.Second):
				t.Fatal("Stop blocked")
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	goManager := newManager(&countingSource{})
	cl := New(ontology.Descriptor{Name: "CL"}, &countingSource{}, Options{})

	require.NoError(t, r.Register(goManager))
	require.NoError(t, r.Register(cl))
	assert.ErrorIs(t, r.Register(newManager(&countingSource{})), ErrAlreadyRegistered)
	assert.Error(t, r.Register(nil))

	got, err := r.Get("GO")
	require.NoError(t, err)
	assert.Same(t, goManager, got)
	_, err = r.Get("FBbt")
	assert.ErrorIs(t, err, ErrUnknownOntology)

	assert.Equal(t, []string{"CL", "GO"}, r.Names())
	assert.Equal(t, map[string]State{"CL": StateUnloaded, "GO": StateUnloaded}, r.States())
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(ontologytest.Descriptor(), &countingSource{}, Options{Metrics: NewMetrics(reg)})
	require.NoError(t, m.RunManagedTask(context.Background(), noop))
	require.NoError(t, m.Reload(context.Background()))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"termforge_taskmanager_task_duration_seconds",
		"termforge_taskmanager_queued_tasks",
		"termforge_taskmanager_reloads_total",
		"termforge_taskmanager_state",
	} {
		assert.True(t, names[want], want)
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "reloading", StateReloading.String())
	assert.Equal(t, "unknown", State(42).String())
}
