package store

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates fusb.sync_runs. It is idempotent.
//
//go:embed schema.sql
var Schema string

type Store struct {
	pool *pgxpool.Pool
}

func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// ExecSQL executes raw SQL, e.g. a schema file given on the command line.
func (s *Store) ExecSQL(ctx context.Context, sql string) error {
	_, err := s.pool.Exec(ctx, sql)
	return err
}

// Migrate applies the bundled Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.ExecSQL(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreateRun inserts a running sync and returns its id.
func (s *Store) CreateRun(ctx context.Context, r SyncRun) (string, error) {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fusb.sync_runs (run_id, host, drive, source, target, status)
		VALUES ($1::uuid,$2,$3,$4,$5,$6)
	`, r.RunID, nullIfEmpty(r.Host), r.Drive, r.Source, r.Target, r.Status)
	if err != nil {
		return "", err
	}
	return r.RunID, nil
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, copied, deleted int, bytes int64, resultJSON []byte) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE fusb.sync_runs
		SET status=$2, copied=$3, deleted=$4, bytes=$5, finished_at=now(), result=$6::jsonb
		WHERE run_id=$1::uuid
	`, runID, status, copied, deleted, bytes, jsonOrEmpty(resultJSON))
	return err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id::text, COALESCE(host,''), drive, source, target, status,
		       copied, deleted, bytes, started_at, finished_at, result
		FROM fusb.sync_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.RunID, &r.Host, &r.Drive, &r.Source, &r.Target, &r.Status,
			&r.Copied, &r.Deleted, &r.Bytes, &r.StartedAt, &r.FinishedAt, &r.ResultJSON); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func jsonOrEmpty(b []byte) string {
	if len(b) == 0 {
		return "{}"
	}
	return string(b)
}
