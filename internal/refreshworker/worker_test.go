package refreshworker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"neomap/core-go/internal/controller"
	"neomap/core-go/internal/layer"
	"neomap/core-go/internal/results"
	"neomap/core-go/internal/store"
)

type fakeUpdater struct {
	calls    int32
	busy     bool
	updateFn func(ctx context.Context) error
}

func (f *fakeUpdater) TryTriggerUpdate(ctx context.Context) (bool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.busy {
		return false, nil
	}
	if f.updateFn == nil {
		return true, nil
	}
	return true, f.updateFn(ctx)
}

func testWorker(updaters map[string]*fakeUpdater, keys []string, opts Options) *Worker {
	return newWorker(zerolog.New(io.Discard),
		func() []string { return keys },
		func(key string) (Updater, bool) {
			u, ok := updaters[key]
			if !ok {
				return nil, false
			}
			return u, true
		},
		opts,
	)
}

func TestRunOnce_CountsOutcomes(t *testing.T) {
	updaters := map[string]*fakeUpdater{
		"ok":         {},
		"broken":     {updateFn: func(context.Context) error { return errors.New("boom") }},
		"superseded": {updateFn: func(context.Context) error { return controller.ErrSuperseded }},
		"busy":       {busy: true},
	}
	// "gone" was deleted after the key list was taken.
	w := testWorker(updaters, []string{"ok", "broken", "superseded", "busy", "gone"}, Options{Workers: 2})

	res := w.RunOnce(context.Background())
	if res.Layers != 5 || res.Updated != 1 || res.Failed != 1 || res.Superseded != 1 || res.Busy != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	for key, u := range updaters {
		if atomic.LoadInt32(&u.calls) != 1 {
			t.Fatalf("expected %s to be refreshed once, got %d", key, u.calls)
		}
	}
}

func TestRunOnce_BoundedConcurrency(t *testing.T) {
	var inflight, peak int32
	var mu sync.Mutex
	slow := func(context.Context) error {
		n := atomic.AddInt32(&inflight, 1)
		mu.Lock()
		if n > peak {
			peak = n
		}
		mu.Unlock()
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inflight, -1)
		return nil
	}

	updaters := map[string]*fakeUpdater{}
	var keys []string
	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		updaters[k] = &fakeUpdater{updateFn: slow}
		keys = append(keys, k)
	}
	w := testWorker(updaters, keys, Options{Workers: 2})

	res := w.RunOnce(context.Background())
	if res.Updated != 6 {
		t.Fatalf("expected 6 updates, got %+v", res)
	}
	if peak > 2 {
		t.Fatalf("expected at most 2 concurrent refreshes, got %d", peak)
	}
}

func TestRunOnce_MaxRuntimeCancelsPass(t *testing.T) {
	blocking := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	updaters := map[string]*fakeUpdater{
		"a": {updateFn: blocking},
		"b": {updateFn: blocking},
	}
	w := testWorker(updaters, []string{"a", "b"}, Options{Workers: 1, MaxRuntime: 20 * time.Millisecond})

	done := make(chan PassResult, 1)
	go func() { done <- w.RunOnce(context.Background()) }()

	select {
	case res := <-done:
		if res.Updated != 0 || res.Failed != 1 {
			t.Fatalf("expected one failed refresh before the deadline, got %+v", res)
		}
		if atomic.LoadInt32(&updaters["b"].calls) != 0 {
			t.Fatalf("expected second layer to be skipped after the deadline")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected pass to stop at max runtime")
	}
}

func TestRun_DisabledWithoutInterval(t *testing.T) {
	u := &fakeUpdater{}
	w := testWorker(map[string]*fakeUpdater{"a": u}, []string{"a"}, Options{})

	done := make(chan struct{})
	go func() {
		w.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("expected Run to return immediately when disabled")
	}
	if u.calls != 0 {
		t.Fatalf("expected no refresh, got %d", u.calls)
	}
}

func TestRun_RefreshesUntilCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	u := &fakeUpdater{}
	u.updateFn = func(context.Context) error {
		if atomic.LoadInt32(&u.calls) >= 2 {
			cancel()
		}
		return nil
	}
	w := testWorker(map[string]*fakeUpdater{"a": u}, []string{"a"}, Options{Interval: 5 * time.Millisecond})

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to stop after cancel")
	}
	if atomic.LoadInt32(&u.calls) < 2 {
		t.Fatalf("expected at least 2 refreshes, got %d", u.calls)
	}
}

func TestBackoffDuration(t *testing.T) {
	base := time.Second
	cases := []struct {
		failures int
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{20, 10 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDuration(base, tc.failures); got != tc.want {
			t.Fatalf("failures=%d: expected %v, got %v", tc.failures, tc.want, got)
		}
	}
}

func TestNew_DrivesRegistryLayers(t *testing.T) {
	log := zerolog.New(io.Discard)
	mem := store.NewMemory()
	reg := controller.NewRegistry(log, graphStub{}, mem, controller.Options{})
	for _, key := range []string{"a", "b"} {
		if _, err := reg.Hydrate(layer.Default(key)); err != nil {
			t.Fatalf("hydrate: %v", err)
		}
	}

	res := New(log, reg, Options{}).RunOnce(context.Background())
	if res.Layers != 2 || res.Updated != 2 {
		t.Fatalf("expected both layers refreshed, got %+v", res)
	}
	stored, err := mem.ListLayers(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected refreshed layers to be stored, got %d", len(stored))
	}
}

// slowGraph blocks every query until release is closed.
type slowGraph struct {
	graphStub
	started chan struct{}
	once    sync.Once
	release chan struct{}
}

func (g *slowGraph) Execute(ctx context.Context, q string, p map[string]any) ([]results.Row, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.graphStub.Execute(ctx, q, p)
}

func TestRunOnce_DoesNotSupersedeUserUpdate(t *testing.T) {
	log := zerolog.New(io.Discard)
	graph := &slowGraph{started: make(chan struct{}), release: make(chan struct{})}
	reg := controller.NewRegistry(log, graph, store.NewMemory(), controller.Options{})
	c, err := reg.Hydrate(layer.Default("a"))
	if err != nil {
		t.Fatalf("hydrate: %v", err)
	}

	userErr := make(chan error, 1)
	go func() { userErr <- c.TriggerUpdate(context.Background()) }()
	<-graph.started

	res := New(log, reg, Options{}).RunOnce(context.Background())
	if res.Busy != 1 || res.Updated != 0 || res.Superseded != 0 {
		t.Fatalf("expected the busy layer to be skipped, got %+v", res)
	}
	close(graph.release)

	select {
	case err := <-userErr:
		if err != nil {
			t.Fatalf("expected user update to complete, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("user update did not finish")
	}
	if len(c.Config().Data) != 1 {
		t.Fatalf("expected user update data applied, got %+v", c.Config().Data)
	}
}
