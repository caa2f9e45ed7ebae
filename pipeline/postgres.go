package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-harvest/models"
)

// Execer is the subset of *pgxpool.Pool used by PostgresStore.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore mirrors records into a key/JSONB table. Conflicting keys
// are merged with the jsonb concatenation operator, so only non-empty
// fields of the new record overwrite stored values.
type PostgresStore struct {
	db     Execer
	table  string
	schema models.Schema
	pool   *pgxpool.Pool
}

// NewPostgresStore returns a store writing through db into table.
func NewPostgresStore(db Execer, table string, schema models.Schema) *PostgresStore {
	return &PostgresStore{db: db, table: table, schema: schema}
}

// OpenPostgresStore connects to dsn and makes sure table exists.
func OpenPostgresStore(ctx context.Context, dsn, table string, schema models.Schema) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns <= 0 || cfg.MaxConns > 4 {
		cfg.MaxConns = 4
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := NewPostgresStore(pool, table, schema)
	s.pool = pool
	if err := s.EnsureTable(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Name() string { return "postgres" }

// EnsureTable creates the records table when it does not exist.
func (s *PostgresStore) EnsureTable(ctx context.Context) error {
	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	schema_version TEXT NOT NULL,
	data JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.ident())
	if _, err := s.db.Exec(ctx, sql); err != nil {
		return &PersistenceError{Path: s.table, Err: fmt.Errorf("create table: %w", err)}
	}
	return nil
}

// Upsert inserts or merges record. Records without a key are skipped.
func (s *PostgresStore) Upsert(ctx context.Context, record models.Record) (Outcome, error) {
	key := record.Get(s.schema.Key)
	if key == "" {
		return OutcomeSkipped, nil
	}

	data := make(map[string]string, len(record))
	for k, v := range record {
		if strings.TrimSpace(v) != "" {
			data[k] = v
		}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return "", &PersistenceError{Path: s.table, Err: fmt.Errorf("encode record: %w", err)}
	}

	tag, err := s.db.Exec(ctx, s.upsertSQL(), key, s.schema.Version, string(payload))
	if err != nil {
		return "", &PersistenceError{Path: s.table, Err: err}
	}
	if tag.RowsAffected() == 0 {
		return OutcomeSkipped, nil
	}
	// INSERT ... ON CONFLICT reports the same tag for both paths.
	return OutcomeInserted, nil
}

func (s *PostgresStore) upsertSQL() string {
	table := s.ident()
	return fmt.Sprintf(`INSERT INTO %s (key, schema_version, data) VALUES ($1, $2, $3::jsonb)
ON CONFLICT (key) DO UPDATE SET data = %s.data || EXCLUDED.data, schema_version = EXCLUDED.schema_version, updated_at = now()`,
		table, table)
}

func (s *PostgresStore) ident() string {
	return pgx.Identifier(strings.Split(s.table, ".")).Sanitize()
}

// Close releases the connection pool opened by OpenPostgresStore.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
