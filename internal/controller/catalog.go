package controller

import (
	"context"
	"errors"
	"time"

	"neomap/core-go/internal/cypher"
	"neomap/core-go/internal/layer"
)

const (
	CatalogNodeLabels    = "node_labels"
	CatalogRelationships = "relationship_types"
	CatalogProperties    = "properties"
	CatalogSpatialLayers = "spatial_layers"
	CatalogSpatialPlugin = "spatial_plugin"
)

// noTooltip is offered with the property names so "no tooltip" can be chosen.
var noTooltip = layer.Option{Value: "", Label: ""}

// RefreshCatalog reloads every option list. Failures are logged and returned
// joined, but never clear a list: an option list that failed to load keeps its
// previous value.
func (c *Controller) RefreshCatalog(ctx context.Context) error {
	var errs []error

	if labels, err := c.fetchOptions(ctx, CatalogNodeLabels, c.ds.ListNodeLabels); err != nil {
		errs = append(errs, err)
	} else {
		c.mu.Lock()
		c.cfg.Catalog.NodeLabels = labels
		c.mu.Unlock()
	}

	if types, err := c.fetchOptions(ctx, CatalogRelationships, c.ds.ListRelationshipTypes); err != nil {
		errs = append(errs, err)
	} else {
		c.mu.Lock()
		c.cfg.Catalog.RelationshipLabels = types
		c.mu.Unlock()
	}

	if err := c.refreshProperties(ctx); err != nil {
		errs = append(errs, err)
	}

	if layers, err := c.fetchOptions(ctx, CatalogSpatialLayers, c.ds.ListSpatialLayers); err != nil {
		errs = append(errs, err)
	} else {
		c.mu.Lock()
		c.cfg.Catalog.SpatialLayers = layers
		c.mu.Unlock()
	}

	var hasSpatial bool
	err := c.withRetry(ctx, CatalogSpatialPlugin, func(ctx context.Context) error {
		var err error
		hasSpatial, err = c.ds.HasSpatialCapability(ctx)
		return err
	})
	if err != nil {
		errs = append(errs, err)
	} else {
		c.mu.Lock()
		c.cfg.Catalog.HasSpatialPlugin = hasSpatial
		c.mu.Unlock()
	}

	return errors.Join(errs...)
}

// refreshProperties reloads the property names for the current label
// selection. A response for an older selection is dropped.
func (c *Controller) refreshProperties(ctx context.Context) error {
	c.mu.Lock()
	c.propsGen++
	gen := c.propsGen
	filter := cypher.NodeFilter(c.cfg.NodeLabels)
	c.mu.Unlock()

	props, err := c.fetchOptions(ctx, CatalogProperties, func(ctx context.Context) ([]layer.Option, error) {
		return c.ds.ListProperties(ctx, filter)
	})
	if err != nil {
		return err
	}
	props = append(props, noTooltip)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.propsGen == gen {
		c.cfg.Catalog.PropertyNames = props
	}
	return nil
}

func (c *Controller) fetchOptions(ctx context.Context, name string, fn func(context.Context) ([]layer.Option, error)) ([]layer.Option, error) {
	var out []layer.Option
	err := c.withRetry(ctx, name, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []layer.Option{}
	}
	return out, nil
}

// withRetry runs fn with the fetch timeout, retrying up to catalogRetries
// times with exponential backoff. The final error is a *CatalogFetchError.
func (c *Controller) withRetry(ctx context.Context, name string, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= c.catalogRetries; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(backoffDuration(c.retryBackoff, attempt-1))
			select {
			case <-ctx.Done():
				t.Stop()
				return &CatalogFetchError{Catalog: name, Err: ctx.Err()}
			case <-t.C:
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		err = fn(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		c.log.Warn().Err(err).Str("catalog", name).Int("attempt", attempt+1).Msg("catalog fetch failed")
	}
	return &CatalogFetchError{Catalog: name, Err: err}
}

func backoffDuration(base time.Duration, failures int) time.Duration {
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	if failures <= 0 {
		return base
	}

	// Exponential-ish backoff: base * 2^failures, capped.
	if failures > 6 {
		failures = 6
	}
	d := base * time.Duration(1<<failures)
	if d > 5*time.Second {
		return 5 * time.Second
	}
	return d
}
