// Package refreshworker re-runs every layer's queries on a fixed interval so
// long-lived maps follow changes in the graph. A scheduled refresh never
// cancels an update somebody else started: busy layers are skipped until the
// next pass.
package refreshworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"neomap/core-go/internal/controller"
)

// Layers is the registry as seen by the worker. *controller.Registry
// satisfies it.
type Layers interface {
	Keys() []string
	Get(key string) (*controller.Controller, bool)
}

// Updater is the part of a layer controller the worker drives. ran is false
// when the layer was busy and nothing was started.
type Updater interface {
	TryTriggerUpdate(ctx context.Context) (ran bool, err error)
}

type Options struct {
	// Interval between passes; zero disables the worker.
	Interval time.Duration
	Workers  int
	// MaxRuntime bounds one pass over all layers.
	MaxRuntime time.Duration
}

type Worker struct {
	log        zerolog.Logger
	layers     func() []string
	get        func(key string) (Updater, bool)
	interval   time.Duration
	workers    int
	maxRuntime time.Duration
}

// PassResult summarises one refresh pass.
type PassResult struct {
	Layers     int
	Updated    int
	Failed     int
	Superseded int
	Busy       int
}

func New(log zerolog.Logger, layers Layers, opts Options) *Worker {
	w := newWorker(log, nil, nil, opts)
	if layers != nil {
		w.layers = layers.Keys
		w.get = func(key string) (Updater, bool) {
			c, ok := layers.Get(key)
			if !ok {
				return nil, false
			}
			return c, true
		}
	}
	return w
}

func newWorker(log zerolog.Logger, keys func() []string, get func(string) (Updater, bool), opts Options) *Worker {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	mr := opts.MaxRuntime
	if mr <= 0 {
		mr = 5 * time.Minute
	}
	return &Worker{
		log:        log,
		layers:     keys,
		get:        get,
		interval:   opts.Interval,
		workers:    workers,
		maxRuntime: mr,
	}
}

// Run refreshes all layers every interval until ctx is done. Passes where
// every layer failed back off exponentially.
func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.layers == nil || w.interval <= 0 {
		return
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	var consecutiveFailures int
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		res := w.RunOnce(ctx)
		if res.Layers > 0 && res.Failed == res.Layers {
			consecutiveFailures++
		} else {
			consecutiveFailures = 0
		}

		timer.Reset(backoffDuration(w.interval, consecutiveFailures))
	}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if failures <= 0 {
		return base
	}

	// base * 2^failures, capped at ten intervals.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if ceiling := 10 * base; d > ceiling {
		return ceiling
	}
	return d
}

// RunOnce refreshes every registered layer once using a bounded pool.
func (w *Worker) RunOnce(ctx context.Context) PassResult {
	keys := w.layers()
	res := PassResult{Layers: len(keys)}
	if len(keys) == 0 {
		return res
	}

	passCtx, cancel := context.WithTimeout(ctx, w.maxRuntime)
	defer cancel()

	start := time.Now()
	var updated, failed, superseded, busy int32

	jobs := make(chan string)
	wg := sync.WaitGroup{}

	worker := func() {
		defer wg.Done()
		for key := range jobs {
			if passCtx.Err() != nil {
				return
			}
			u, ok := w.get(key)
			if !ok {
				// Deleted since the pass started.
				continue
			}
			ran, err := u.TryTriggerUpdate(passCtx)
			switch {
			case !ran:
				atomic.AddInt32(&busy, 1)
			case err == nil:
				atomic.AddInt32(&updated, 1)
			case errors.Is(err, controller.ErrSuperseded):
				atomic.AddInt32(&superseded, 1)
			default:
				atomic.AddInt32(&failed, 1)
				w.log.Warn().Err(err).Str("layer", key).Msg("scheduled layer refresh failed")
			}
		}
	}

	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go worker()
	}

feed:
	for _, key := range keys {
		select {
		case <-passCtx.Done():
			break feed
		case jobs <- key:
		}
	}
	close(jobs)
	wg.Wait()

	res.Updated = int(updated)
	res.Failed = int(failed)
	res.Superseded = int(superseded)
	res.Busy = int(busy)

	w.log.Info().
		Int("layers", res.Layers).
		Int("updated", res.Updated).
		Int("failed", res.Failed).
		Int("superseded", res.Superseded).
		Int("busy", res.Busy).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("layer refresh pass")
	return res
}
