package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"neomap/core-go/internal/layer"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS layers (
  key        TEXT PRIMARY KEY,
  name       TEXT NOT NULL,
  config     TEXT NOT NULL,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLite stores layers in a single-file database.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating layers table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) UpsertLayer(ctx context.Context, cfg layer.Config) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode layer %s: %w", cfg.Key, err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO layers (key, name, config) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET name = excluded.name, config = excluded.config, updated_at = CURRENT_TIMESTAMP`,
		cfg.Key, cfg.Name, string(raw))
	return err
}

func (s *SQLite) RemoveLayer(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM layers WHERE key = ?`, key)
	return err
}

func (s *SQLite) ListLayers(ctx context.Context) ([]layer.Config, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, config FROM layers ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []layer.Config
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, err
		}
		cfg, err := layer.Hydrate([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("layer %s: %w", key, err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}
