// Package postgres provides a core.Store backed by PostgreSQL.
//
// Each dataset is one row of the villages table. The schema and the records
// are stored as JSONB documents, so a push is a single-row UPDATE that
// overwrites both and bumps updated_at.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/landrecords/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the query surface the store needs. *pgxpool.Pool, *pgx.Conn and
// pgx.Tx all satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS villages (
    id          UUID PRIMARY KEY,
    name        TEXT NOT NULL,
    name_tamil  TEXT NOT NULL,
    columns     JSONB NOT NULL DEFAULT '[]'::jsonb,
    records     JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS villages_created_at_idx ON villages (created_at);
`

const datasetColumns = `id, name, name_tamil, columns, records, created_at, updated_at`

const (
	listSQL = `SELECT ` + datasetColumns + ` FROM villages ORDER BY created_at, name`

	loadSQL = `SELECT ` + datasetColumns + ` FROM villages WHERE id = $1`

	replaceSQL = `
UPDATE villages
SET columns = COALESCE($2::jsonb, columns),
    records = COALESCE($3::jsonb, records),
    updated_at = now()
WHERE id = $1
RETURNING ` + datasetColumns

	createSQL = `
INSERT INTO villages (id, name, name_tamil, columns, records)
VALUES ($1, $2, $3, $4::jsonb, $5::jsonb)
RETURNING ` + datasetColumns

	deleteSQL = `DELETE FROM villages WHERE id = $1`

	countSQL = `SELECT count(*) FROM villages`
)

// Store implements core.Store over a DBTX.
type Store struct {
	db DBTX
}

// New creates a Store using db.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// PoolConfig sizes the connection pool opened by Connect.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the villages table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]core.Dataset, error) {
	rows, err := s.db.Query(ctx, listSQL)
	if err != nil {
		return nil, fmt.Errorf("query villages: %w", err)
	}
	defer rows.Close()

	var out []core.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate villages: %w", err)
	}
	return out, nil
}

func (s *Store) Load(ctx context.Context, key string) (*core.Dataset, error) {
	id, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	d, err := scanDataset(s.db.QueryRow(ctx, loadSQL, id))
	if err != nil {
		return nil, fmt.Errorf("load village %s: %w", key, err)
	}
	return d, nil
}

func (s *Store) Replace(ctx context.Context, key string, u core.Update) (*core.Dataset, error) {
	id, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	// A nil part is sent as NULL so COALESCE keeps the stored value.
	var columns, records any
	if u.Schema != nil {
		if columns, err = encodeJSON(u.Schema); err != nil {
			return nil, err
		}
	}
	if u.Records != nil {
		if records, err = encodeJSON(u.Records); err != nil {
			return nil, err
		}
	}

	d, err := scanDataset(s.db.QueryRow(ctx, replaceSQL, id, columns, records))
	if err != nil {
		return nil, fmt.Errorf("replace village %s: %w", key, err)
	}
	return d, nil
}

func (s *Store) Create(ctx context.Context, d core.Dataset) (*core.Dataset, error) {
	key := d.Key
	if key == "" {
		key = uuid.NewString()
	}
	id, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	schema := d.Schema
	if schema == nil {
		schema = []core.ColumnSchema{}
	}
	records := d.Records
	if records == nil {
		records = []core.Record{}
	}
	columnsJSON, err := encodeJSON(schema)
	if err != nil {
		return nil, err
	}
	recordsJSON, err := encodeJSON(records)
	if err != nil {
		return nil, err
	}

	out, err := scanDataset(s.db.QueryRow(ctx, createSQL, id, d.Name, d.DisplayName, columnsJSON, recordsJSON))
	if err != nil {
		return nil, fmt.Errorf("create village %s: %w", d.Name, err)
	}
	return out, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	id, err := parseKey(key)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, deleteSQL, id)
	if err != nil {
		return fmt.Errorf("delete village %s: %w", key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("village %s: %w", key, core.ErrNotFound)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count villages: %w", err)
	}
	return n, nil
}

// parseKey converts a dataset key to a UUID parameter. A key that is not a
// UUID cannot name a stored village and reports ErrNotFound.
func parseKey(key string) (pgtype.UUID, error) {
	parsed, err := uuid.Parse(key)
	if err != nil {
		return pgtype.UUID{}, fmt.Errorf("village %s: %w", key, core.ErrNotFound)
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}, nil
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode jsonb: %w", err)
	}
	return string(b), nil
}

// scanDataset reads one villages row.
func scanDataset(row pgx.Row) (*core.Dataset, error) {
	var (
		id            pgtype.UUID
		d             core.Dataset
		columns, recs []byte
	)
	err := row.Scan(&id, &d.Name, &d.DisplayName, &columns, &recs, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan village: %w", err)
	}

	if id.Valid {
		d.Key = uuid.UUID(id.Bytes).String()
	}
	d.Schema = []core.ColumnSchema{}
	if err := json.Unmarshal(columns, &d.Schema); err != nil {
		return nil, fmt.Errorf("decode columns of %s: %w", d.Key, err)
	}
	d.Records = []core.Record{}
	if err := json.Unmarshal(recs, &d.Records); err != nil {
		return nil, fmt.Errorf("decode records of %s: %w", d.Key, err)
	}
	return &d, nil
}
