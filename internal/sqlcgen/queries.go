package sqlcgen

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const insertAuditEvent = `-- name: InsertAuditEvent :exec
INSERT INTO audit_events (
  actor,
  action,
  target_type,
  target_id,
  details
)
VALUES ($1, $2, $3, $4, COALESCE($5, '{}'::jsonb))
`

type InsertAuditEventParams struct {
	Actor      string
	Action     string
	TargetType *string
	TargetID   *string
	Details    map[string]any
}

func (q *Queries) InsertAuditEvent(ctx context.Context, arg InsertAuditEventParams) error {
	_, err := q.db.Exec(ctx, insertAuditEvent, arg.Actor, arg.Action, arg.TargetType, arg.TargetID, arg.Details)
	return err
}

const listLayers = `-- name: ListLayers :many
SELECT key,
       name,
       config,
       created_at,
       updated_at
FROM layers
ORDER BY created_at ASC, key ASC
`

func (q *Queries) ListLayers(ctx context.Context) ([]Layer, error) {
	rows, err := q.db.Query(ctx, listLayers)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Layer
	for rows.Next() {
		var i Layer
		if err := rows.Scan(&i.Key, &i.Name, &i.Config, &i.CreatedAt, &i.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertLayer = `-- name: UpsertLayer :exec
INSERT INTO layers (key, name, config)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (key) DO UPDATE
SET name = EXCLUDED.name,
    config = EXCLUDED.config,
    updated_at = now()
`

type UpsertLayerParams struct {
	Key    string
	Name   string
	Config []byte
}

func (q *Queries) UpsertLayer(ctx context.Context, arg UpsertLayerParams) error {
	_, err := q.db.Exec(ctx, upsertLayer, arg.Key, arg.Name, arg.Config)
	return err
}

const deleteLayer = `-- name: DeleteLayer :execrows
DELETE FROM layers
WHERE key = $1
`

func (q *Queries) DeleteLayer(ctx context.Context, key string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteLayer, key)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
