// Package controller owns layer state: it applies user edits to a layer
// configuration, runs the generated queries against the graph database and
// keeps the derived data and bounds consistent.
package controller

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"neomap/core-go/internal/cypher"
	"neomap/core-go/internal/layer"
	"neomap/core-go/internal/metrics"
	"neomap/core-go/internal/results"
)

// DataSource is the graph database as seen by a layer. *graphdb.Source
// satisfies it.
type DataSource interface {
	Execute(ctx context.Context, query string, params map[string]any) ([]results.Row, error)
	ListNodeLabels(ctx context.Context) ([]layer.Option, error)
	ListRelationshipTypes(ctx context.Context) ([]layer.Option, error)
	ListProperties(ctx context.Context, filter string) ([]layer.Option, error)
	ListSpatialLayers(ctx context.Context) ([]layer.Option, error)
	HasSpatialCapability(ctx context.Context) (bool, error)
}

// LayerStore is the system of record for the list of layers. The controller
// writes to it after state changes and never reads it back.
type LayerStore interface {
	UpsertLayer(ctx context.Context, cfg layer.Config) error
	RemoveLayer(ctx context.Context, key string) error
}

// Confirmer asks the user to approve a destructive change.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) bool { return f(ctx, prompt) }

// Always is a Confirmer that approves (true) or declines (false) everything.
type Always bool

func (a Always) Confirm(context.Context, string) bool { return bool(a) }

const (
	promptDiscardCypher = "You will lose your cypher query, is that what you want?"
)

type Options struct {
	FetchTimeout   time.Duration
	CatalogRetries int
	RetryBackoff   time.Duration
	Metrics        *metrics.Metrics
}

type Controller struct {
	log            zerolog.Logger
	ds             DataSource
	store          LayerStore
	metrics        *metrics.Metrics
	fetchTimeout   time.Duration
	catalogRetries int
	retryBackoff   time.Duration

	mu             sync.Mutex
	cfg            layer.Config
	generation     uint64
	propsGen       uint64
	cancelInflight context.CancelFunc
	deleted        bool
}

func New(log zerolog.Logger, ds DataSource, store LayerStore, cfg layer.Config, opts Options) *Controller {
	ft := opts.FetchTimeout
	if ft <= 0 {
		ft = 30 * time.Second
	}
	retries := opts.CatalogRetries
	if retries < 0 {
		retries = 0
	}
	backoff := opts.RetryBackoff
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}

	cfg = cfg.Clone()
	cfg.Bounds = results.ComputeBounds(cfg.Data)

	return &Controller{
		log:            log.With().Str("layer", cfg.Key).Logger(),
		ds:             ds,
		store:          store,
		metrics:        opts.Metrics,
		fetchTimeout:   ft,
		catalogRetries: retries,
		retryBackoff:   backoff,
		cfg:            cfg,
	}
}

func (c *Controller) Key() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Key
}

// Config returns a snapshot of the layer.
func (c *Controller) Config() layer.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg.Clone()
}

// PreviewQuery returns exactly what an update would submit.
func (c *Controller) PreviewQuery() cypher.Preview {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cypher.PreviewQueries(c.cfg)
}

// SetLayerType switches the query strategy. Entering cypher seeds the query
// text with what the previous type generated; leaving cypher discards the
// text and needs confirmation. It reports whether the type changed.
func (c *Controller) SetLayerType(ctx context.Context, t layer.Type, confirm Confirmer) (bool, error) {
	if !t.Valid() {
		return false, fmt.Errorf("invalid layer type %q", t)
	}

	c.mu.Lock()
	old := c.cfg.LayerType
	if old == t {
		c.mu.Unlock()
		return false, nil
	}
	if old == layer.TypeCypher {
		// Do not hold the lock while the user decides.
		c.mu.Unlock()
		if confirm == nil || !confirm.Confirm(ctx, promptDiscardCypher) {
			c.log.Debug().Str("from", string(old)).Str("to", string(t)).Msg("layer type change declined")
			return false, nil
		}
		c.mu.Lock()
		if c.cfg.LayerType != old {
			c.mu.Unlock()
			return false, nil
		}
		c.cfg.Cypher = ""
	} else if t == layer.TypeCypher {
		c.cfg.Cypher = cypher.NodeQuery(c.cfg)
	}
	c.cfg.LayerType = t
	snap := c.cfg.Clone()
	c.mu.Unlock()

	c.log.Info().Str("from", string(old)).Str("to", string(t)).Msg("layer type changed")
	return true, c.publish(ctx, snap)
}

// SetNodeLabels replaces the node label selection and refreshes the
// candidate property names, which depend on it.
func (c *Controller) SetNodeLabels(ctx context.Context, labels []layer.Option) error {
	return c.Apply(ctx, Settings{NodeLabels: &labels})
}

func (c *Controller) SetName(ctx context.Context, name string) error {
	return c.Apply(ctx, Settings{Name: &name})
}

func (c *Controller) SetRendering(ctx context.Context, r layer.Rendering) error {
	return c.Apply(ctx, Settings{Rendering: &r})
}

func (c *Controller) SetRelationshipLabels(ctx context.Context, labels []layer.Option) error {
	return c.Apply(ctx, Settings{RelationshipLabels: &labels})
}

func (c *Controller) SetLatitudeProperty(ctx context.Context, o layer.Option) error {
	return c.Apply(ctx, Settings{LatitudeProperty: &o})
}

func (c *Controller) SetLongitudeProperty(ctx context.Context, o layer.Option) error {
	return c.Apply(ctx, Settings{LongitudeProperty: &o})
}

func (c *Controller) SetPointProperty(ctx context.Context, o layer.Option) error {
	return c.Apply(ctx, Settings{PointProperty: &o})
}

// SetTooltipProperty takes the empty option to mean no tooltip.
func (c *Controller) SetTooltipProperty(ctx context.Context, o layer.Option) error {
	return c.Apply(ctx, Settings{TooltipProperty: &o})
}

func (c *Controller) SetRelationshipTooltipProperty(ctx context.Context, o layer.Option) error {
	return c.Apply(ctx, Settings{RelationshipTooltipProperty: &o})
}

func (c *Controller) SetSpatialLayer(ctx context.Context, o layer.Option) error {
	return c.Apply(ctx, Settings{SpatialLayer: &o})
}

// SetCypher stores the query text as typed; it is only validated by running it.
func (c *Controller) SetCypher(ctx context.Context, query string) error {
	return c.Apply(ctx, Settings{Cypher: &query})
}

// SetLimit stores l; an invalid limit means no limit.
func (c *Controller) SetLimit(ctx context.Context, l layer.Limit) error {
	return c.Apply(ctx, Settings{Limit: &l})
}

func (c *Controller) SetColor(ctx context.Context, col layer.Color) error {
	return c.Apply(ctx, Settings{Color: &col})
}

func (c *Controller) SetRelationshipColor(ctx context.Context, col layer.Color) error {
	return c.Apply(ctx, Settings{RelationshipColor: &col})
}

// SetRadius clamps r to the allowed range.
func (c *Controller) SetRadius(ctx context.Context, r float64) error {
	return c.Apply(ctx, Settings{Radius: &r})
}

// Settings is a partial update; nil fields are left alone. Layer type is not
// part of it because leaving cypher needs confirmation.
type Settings struct {
	Name                        *string
	Rendering                   *layer.Rendering
	NodeLabels                  *[]layer.Option
	RelationshipLabels          *[]layer.Option
	LatitudeProperty            *layer.Option
	LongitudeProperty           *layer.Option
	PointProperty               *layer.Option
	TooltipProperty             *layer.Option
	RelationshipTooltipProperty *layer.Option
	SpatialLayer                *layer.Option
	Cypher                      *string
	Limit                       *layer.Limit
	Color                       *layer.Color
	RelationshipColor           *layer.Color
	Radius                      *float64
}

// Apply validates and applies s. A node label change is followed by a
// property catalog refresh.
func (c *Controller) Apply(ctx context.Context, s Settings) error {
	if s.Rendering != nil && !s.Rendering.Valid() {
		return fmt.Errorf("invalid rendering %q", *s.Rendering)
	}

	c.mu.Lock()
	if s.Name != nil {
		c.cfg.Name = strings.TrimSpace(*s.Name)
	}
	if s.Rendering != nil {
		c.cfg.Rendering = *s.Rendering
	}
	if s.NodeLabels != nil {
		c.cfg.NodeLabels = append([]layer.Option{}, (*s.NodeLabels)...)
	}
	if s.RelationshipLabels != nil {
		c.cfg.RelationshipLabels = append([]layer.Option{}, (*s.RelationshipLabels)...)
	}
	if s.LatitudeProperty != nil {
		c.cfg.LatitudeProperty = *s.LatitudeProperty
	}
	if s.LongitudeProperty != nil {
		c.cfg.LongitudeProperty = *s.LongitudeProperty
	}
	if s.PointProperty != nil {
		c.cfg.PointProperty = *s.PointProperty
	}
	if s.TooltipProperty != nil {
		c.cfg.TooltipProperty = *s.TooltipProperty
	}
	if s.RelationshipTooltipProperty != nil {
		c.cfg.RelationshipTooltipProperty = *s.RelationshipTooltipProperty
	}
	if s.SpatialLayer != nil {
		c.cfg.SpatialLayer = *s.SpatialLayer
	}
	if s.Cypher != nil {
		c.cfg.Cypher = *s.Cypher
	}
	if s.Limit != nil {
		l := *s.Limit
		if !l.Valid() {
			l = 0
		}
		c.cfg.Limit = l
	}
	if s.Color != nil {
		c.cfg.Color = *s.Color
	}
	if s.RelationshipColor != nil {
		c.cfg.RelationshipColor = *s.RelationshipColor
	}
	if s.Radius != nil {
		c.cfg.Radius = layer.ClampRadius(*s.Radius)
	}
	snap := c.cfg.Clone()
	c.mu.Unlock()

	if err := c.publish(ctx, snap); err != nil {
		return err
	}
	if s.NodeLabels != nil {
		// Failure leaves the previous list; nothing to surface here.
		_ = c.refreshProperties(ctx)
	}
	return nil
}

// Delete removes the layer from the store once the user confirms. Deleting
// twice is a no-op.
func (c *Controller) Delete(ctx context.Context, confirm Confirmer) (bool, error) {
	c.mu.Lock()
	name, key, deleted := c.cfg.Name, c.cfg.Key, c.deleted
	c.mu.Unlock()
	if deleted {
		return true, nil
	}

	prompt := fmt.Sprintf("Delete layer %s? This action can not be undone.", name)
	if confirm == nil || !confirm.Confirm(ctx, prompt) {
		return false, nil
	}

	if c.store != nil {
		if err := c.store.RemoveLayer(ctx, key); err != nil {
			return false, fmt.Errorf("remove layer %s: %w", key, err)
		}
	}

	c.mu.Lock()
	c.deleted = true
	if c.cancelInflight != nil {
		c.cancelInflight()
		c.cancelInflight = nil
	}
	c.mu.Unlock()

	c.log.Info().Msg("layer deleted")
	return true, nil
}

func (c *Controller) publish(ctx context.Context, snap layer.Config) error {
	c.mu.Lock()
	deleted := c.deleted
	c.mu.Unlock()
	if deleted || c.store == nil {
		return nil
	}
	if err := c.store.UpsertLayer(ctx, snap); err != nil {
		c.log.Error().Err(err).Msg("upsert layer failed")
		return fmt.Errorf("upsert layer %s: %w", snap.Key, err)
	}
	return nil
}
