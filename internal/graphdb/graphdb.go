// Package graphdb runs layer queries against Neo4j and answers the catalog
// questions layers ask (labels, relationship types, properties, spatial
// layers).
package graphdb

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"neomap/core-go/internal/layer"
	"neomap/core-go/internal/results"
)

const (
	queryNodeLabels    = "CALL db.labels() YIELD label RETURN label AS name ORDER BY name"
	queryRelTypes      = "CALL db.relationshipTypes() YIELD relationshipType RETURN relationshipType AS name ORDER BY name"
	querySpatialLayers = "CALL spatial.layers() YIELD name RETURN name ORDER BY name"
	queryShowSpatial   = "SHOW PROCEDURES YIELD name WHERE name STARTS WITH 'spatial.' RETURN count(name) > 0 AS present"
	queryLegacySpatial = "CALL dbms.procedures() YIELD name WHERE name STARTS WITH 'spatial.' RETURN count(name) > 0 AS present"

	// Properties are sampled from this many matching nodes.
	propertySample = 100
)

const (
	cacheNodeLabels    = "node_labels"
	cacheRelTypes      = "relationship_types"
	cacheSpatialLayers = "spatial_layers"
	cacheSpatialPlugin = "spatial_plugin"
)

type Options struct {
	URI      string
	Username string
	Password string
	Database string
	// CatalogCacheTTL caches database-wide catalog answers; zero disables.
	CatalogCacheTTL time.Duration
}

type execFunc func(ctx context.Context, query string, params map[string]any) ([]results.Row, error)

// Source is a read-only view of a Neo4j database.
type Source struct {
	log      zerolog.Logger
	driver   neo4j.DriverWithContext
	database string
	cache    *gocache.Cache
	exec     execFunc
}

// Open creates the driver and verifies the server is reachable.
func Open(ctx context.Context, log zerolog.Logger, opts Options) (*Source, error) {
	driver, err := neo4j.NewDriverWithContext(opts.URI, neo4j.BasicAuth(opts.Username, opts.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("connect neo4j %s: %w", opts.URI, err)
	}

	s := newSource(log, opts.CatalogCacheTTL, nil)
	s.driver = driver
	s.database = opts.Database
	s.exec = s.executeRead
	return s, nil
}

func newSource(log zerolog.Logger, ttl time.Duration, exec execFunc) *Source {
	s := &Source{log: log, exec: exec}
	if ttl > 0 {
		s.cache = gocache.New(ttl, 2*ttl)
	}
	return s
}

func (s *Source) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Source) Ping(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.VerifyConnectivity(ctx)
}

// InvalidateCatalog drops every cached catalog answer.
func (s *Source) InvalidateCatalog() {
	if s.cache != nil {
		s.cache.Flush()
	}
}

// Execute runs query in a read transaction and returns its records.
func (s *Source) Execute(ctx context.Context, query string, params map[string]any) ([]results.Row, error) {
	return s.exec(ctx, query, params)
}

func (s *Source) executeRead(ctx context.Context, query string, params map[string]any) ([]results.Row, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer func() { _ = session.Close(ctx) }()

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]results.Row, 0, len(records))
		for _, rec := range records {
			rows = append(rows, rowFromRecord(rec))
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]results.Row), nil
}

func rowFromRecord(rec *neo4j.Record) results.Row {
	row := make(results.Row, len(rec.Keys))
	for i, key := range rec.Keys {
		if i < len(rec.Values) {
			row[key] = rec.Values[i]
		}
	}
	return row
}

func (s *Source) ListNodeLabels(ctx context.Context) ([]layer.Option, error) {
	return s.cachedOptions(ctx, cacheNodeLabels, queryNodeLabels)
}

func (s *Source) ListRelationshipTypes(ctx context.Context) ([]layer.Option, error) {
	return s.cachedOptions(ctx, cacheRelTypes, queryRelTypes)
}

func (s *Source) ListSpatialLayers(ctx context.Context) ([]layer.Option, error) {
	return s.cachedOptions(ctx, cacheSpatialLayers, querySpatialLayers)
}

// ListProperties returns the property keys found on a sample of the nodes
// matched by filter, a node label filter clause. Answers depend on the
// filter and are never cached.
func (s *Source) ListProperties(ctx context.Context, filter string) ([]layer.Option, error) {
	query := PropertiesQuery(filter)
	rows, err := s.exec(ctx, query, map[string]any{})
	if err != nil {
		return nil, err
	}
	return optionsFromColumn(rows, "name")
}

// PropertiesQuery builds the property sampling query for a node filter.
func PropertiesQuery(filter string) string {
	return fmt.Sprintf("MATCH (n) WHERE true%s\nWITH n LIMIT %d\nUNWIND keys(n) AS key\nRETURN DISTINCT key AS name ORDER BY name",
		filter, propertySample)
}

// HasSpatialCapability reports whether the neo4j-spatial procedures are
// installed. Servers without SHOW PROCEDURES are asked via dbms.procedures.
func (s *Source) HasSpatialCapability(ctx context.Context) (bool, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheSpatialPlugin); ok {
			return v.(bool), nil
		}
	}

	rows, err := s.exec(ctx, queryShowSpatial, map[string]any{})
	if err != nil {
		s.log.Debug().Err(err).Msg("SHOW PROCEDURES failed, trying dbms.procedures")
		rows, err = s.exec(ctx, queryLegacySpatial, map[string]any{})
		if err != nil {
			return false, err
		}
	}
	present := false
	if len(rows) > 0 {
		present, _ = rows[0]["present"].(bool)
	}

	if s.cache != nil {
		s.cache.SetDefault(cacheSpatialPlugin, present)
	}
	return present, nil
}

func (s *Source) cachedOptions(ctx context.Context, cacheKey, query string) ([]layer.Option, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			return cloneOptions(v.([]layer.Option)), nil
		}
	}
	rows, err := s.exec(ctx, query, map[string]any{})
	if err != nil {
		return nil, err
	}
	opts, err := optionsFromColumn(rows, "name")
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetDefault(cacheKey, cloneOptions(opts))
	}
	return opts, nil
}

func optionsFromColumn(rows []results.Row, column string) ([]layer.Option, error) {
	out := make([]layer.Option, 0, len(rows))
	for i, row := range rows {
		name, ok := row[column].(string)
		if !ok {
			return nil, &results.MalformedRowError{Row: i, Column: column, Value: row[column], Reason: "is not a string"}
		}
		out = append(out, layer.Option{Value: name, Label: name})
	}
	return out, nil
}

func cloneOptions(in []layer.Option) []layer.Option {
	return append([]layer.Option{}, in...)
}
