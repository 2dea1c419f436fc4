// Package postgres keeps the seen-id set in a Postgres table, one row per id.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/stockwatch-monitor/internal/monitor"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for seen ids.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Store implements monitor.SeenStore on Postgres. Save only ever inserts, so
// concurrent writers cannot drop each other's ids.
type Store struct {
	pool   querier
	table  string
	logger *zap.Logger
}

// New connects to Postgres using cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewWithPool(pool, cfg.Table, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(pool querier, table string, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "seen_updates"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: pool, table: table, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id text PRIMARY KEY,
	first_seen_at timestamptz NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create seen table: %w", err)
	}
	return nil
}

// Read returns every stored id.
func (s *Store) Read(ctx context.Context) (*monitor.SeenSet, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT id FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("select seen ids: %w", err)
	}
	defer rows.Close()

	seen := monitor.NewSeenSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan seen id: %w", err)
		}
		seen.Union([]string{id})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate seen ids: %w", err)
	}
	return seen, nil
}

// Load implements monitor.SeenStore. Failures are logged and degrade to an
// empty set.
func (s *Store) Load(ctx context.Context) *monitor.SeenSet {
	seen, err := s.Read(ctx)
	if err != nil {
		s.logger.Warn("could not load seen ids, starting empty", zap.String("table", s.table), zap.Error(err))
		return monitor.NewSeenSet()
	}
	return seen
}

// Save inserts every id of the set, ignoring ones already present.
func (s *Store) Save(ctx context.Context, seen *monitor.SeenSet) error {
	ids := seen.IDs()
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id)
SELECT unnest($1::text[])
ON CONFLICT (id) DO NOTHING`, s.table)
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("insert seen ids: %w", err)
	}
	return nil
}

// Count returns the number of stored ids, or zero when the query fails.
func (s *Store) Count(ctx context.Context) int {
	var n int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		s.logger.Warn("count seen ids failed", zap.String("table", s.table), zap.Error(err))
		return 0
	}
	return n
}
