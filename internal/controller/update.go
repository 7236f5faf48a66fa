package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"neomap/core-go/internal/cypher"
	"neomap/core-go/internal/layer"
	"neomap/core-go/internal/results"
)

// TriggerUpdate runs the layer's queries and replaces its data.
//
// The node query always runs; the relationship query runs only for
// relationship rendering. Both run concurrently and each applies its own
// slice of state, so one failing never rolls back the other. A newer call
// cancels this one; completions from a superseded call are dropped and
// reported as ErrSuperseded.
func (c *Controller) TriggerUpdate(ctx context.Context) error {
	c.mu.Lock()
	if c.cancelInflight != nil {
		c.cancelInflight()
	}
	gen, snap, runCtx := c.beginUpdateLocked(ctx)
	c.mu.Unlock()

	return c.runUpdate(ctx, runCtx, gen, snap)
}

// TryTriggerUpdate is TriggerUpdate for callers that must never supersede
// someone else: while an update is in flight, or once the layer is deleted,
// it reports false and leaves the layer alone.
func (c *Controller) TryTriggerUpdate(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.cancelInflight != nil || c.deleted {
		c.mu.Unlock()
		return false, nil
	}
	gen, snap, runCtx := c.beginUpdateLocked(ctx)
	c.mu.Unlock()

	return true, c.runUpdate(ctx, runCtx, gen, snap)
}

// beginUpdateLocked claims a new generation. c.mu must be held.
func (c *Controller) beginUpdateLocked(ctx context.Context) (uint64, layer.Config, context.Context) {
	c.generation++
	runCtx, cancel := context.WithCancel(ctx)
	c.cancelInflight = cancel
	return c.generation, c.cfg.Clone(), runCtx
}

func (c *Controller) runUpdate(ctx, runCtx context.Context, gen uint64, snap layer.Config) error {
	defer func() {
		c.mu.Lock()
		if c.generation == gen && c.cancelInflight != nil {
			c.cancelInflight()
			c.cancelInflight = nil
		}
		c.mu.Unlock()
	}()

	preview := cypher.PreviewQueries(snap)
	start := time.Now()

	var (
		wg                sync.WaitGroup
		nodeErr, relErr   error
		nodeOK, relOK     bool
		wantRelationships = preview.Relationship != ""
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		nodeOK, nodeErr = c.fetchNodes(runCtx, gen, snap.LayerType, preview.Node)
	}()
	if wantRelationships {
		wg.Add(1)
		go func() {
			defer wg.Done()
			relOK, relErr = c.fetchRelationships(runCtx, gen, snap.LayerType, preview.Relationship)
		}()
	}
	wg.Wait()

	err := joinUpdateErrors(nodeErr, relErr)
	c.observeUpdate(err, time.Since(start))

	if nodeOK || relOK {
		c.mu.Lock()
		published := c.cfg.Clone()
		c.mu.Unlock()
		if perr := c.publish(ctx, published); perr != nil && err == nil {
			err = perr
		}
	}

	ev := c.log.Info()
	if err != nil {
		ev = c.log.Warn().Err(err)
	}
	ev.Uint64("generation", gen).
		Bool("relationships", wantRelationships).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("layer update finished")
	return err
}

func (c *Controller) fetchNodes(ctx context.Context, gen uint64, lt layer.Type, query string) (bool, error) {
	rows, err := c.execute(ctx, QueryKindNode, query)
	if c.stale(gen) {
		return false, ErrSuperseded
	}
	if err != nil {
		return false, &QueryExecutionError{LayerType: lt, Kind: QueryKindNode, Query: query, Err: err}
	}
	points, err := results.ToPoints(rows)
	if err != nil {
		return false, &QueryExecutionError{LayerType: lt, Kind: QueryKindNode, Query: query, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false, ErrSuperseded
	}
	c.cfg.Data = points
	c.cfg.Bounds = results.ComputeBounds(c.cfg.Data)
	return true, nil
}

func (c *Controller) fetchRelationships(ctx context.Context, gen uint64, lt layer.Type, query string) (bool, error) {
	rows, err := c.execute(ctx, QueryKindRelationship, query)
	if c.stale(gen) {
		return false, ErrSuperseded
	}
	if err != nil {
		return false, &QueryExecutionError{LayerType: lt, Kind: QueryKindRelationship, Query: query, Err: err}
	}
	edges, err := results.ToEdges(rows)
	if err != nil {
		return false, &QueryExecutionError{LayerType: lt, Kind: QueryKindRelationship, Query: query, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false, ErrSuperseded
	}
	c.cfg.RelationshipData = edges
	// Bounds only ever follow node data.
	c.cfg.Bounds = results.ComputeBounds(c.cfg.Data)
	return true, nil
}

func (c *Controller) execute(ctx context.Context, kind QueryKind, query string) ([]results.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	start := time.Now()
	rows, err := c.ds.Execute(ctx, query, map[string]any{})
	if c.metrics != nil {
		c.metrics.ObserveQuery(string(kind), err == nil, time.Since(start))
	}
	return rows, err
}

func (c *Controller) stale(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

func (c *Controller) observeUpdate(err error, d time.Duration) {
	if c.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrSuperseded):
		outcome = "superseded"
	default:
		outcome = "error"
	}
	c.metrics.ObserveLayerUpdate(outcome, d)
}

// joinUpdateErrors reports ErrSuperseded only when nothing else went wrong;
// a real query failure from the other half is never hidden behind it.
func joinUpdateErrors(nodeErr, relErr error) error {
	nodeStale := errors.Is(nodeErr, ErrSuperseded)
	relStale := errors.Is(relErr, ErrSuperseded)
	switch {
	case nodeStale && (relErr == nil || relStale), relStale && nodeErr == nil:
		return ErrSuperseded
	case nodeStale:
		return relErr
	case relStale:
		return nodeErr
	}
	return errors.Join(nodeErr, relErr)
}
