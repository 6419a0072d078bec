// Package postgres persists resolution attempts into Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "puzzle_attempts"

// AttemptStoreConfig controls the Postgres connection pool used for attempt rows.
type AttemptStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Ping(context.Context) error
	Close()
}

// AttemptStore writes one row per candidate attempt.
type AttemptStore struct {
	pool  execCloser
	table string
}

// NewAttemptStore creates a Postgres-backed AttemptStore using the provided config.
func NewAttemptStore(ctx context.Context, cfg AttemptStoreConfig) (*AttemptStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	table, err := resolveTable(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &AttemptStore{pool: pool, table: table}, nil
}

// NewAttemptStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAttemptStoreWithPool(pool execCloser, table string) (*AttemptStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	resolved, err := resolveTable(table)
	if err != nil {
		return nil, err
	}
	return &AttemptStore{pool: pool, table: resolved}, nil
}

func resolveTable(table string) (string, error) {
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Ping checks connectivity; it backs the readiness probe.
func (s *AttemptStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("attempt store is not configured")
	}
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *AttemptStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordAttempt inserts an attempt row.
func (s *AttemptStore) RecordAttempt(ctx context.Context, attempt resolver.Attempt) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("attempt store is not configured")
	}
	if attempt.ID == "" {
		return fmt.Errorf("attempt id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	puzzle_date,
	candidate,
	url,
	status_code,
	outcome,
	rule,
	used_headless,
	body_hash,
	snapshot_uri,
	error_text,
	duration_ms,
	attempted_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table)

	args := []any{
		attempt.ID,
		attempt.Date,
		attempt.Candidate,
		attempt.URL,
		attempt.StatusCode,
		string(attempt.Outcome),
		attempt.Rule,
		attempt.UsedHeadless,
		attempt.BodyHash,
		attempt.SnapshotURI,
		attempt.ErrorText,
		attempt.Duration.Milliseconds(),
		attempt.AttemptedAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}
