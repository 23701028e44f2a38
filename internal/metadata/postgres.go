package metadata

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 2
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	logger := slog.With("component", "metadata")
	logger.Info("connected to PostgreSQL catalog")
	return &PostgresWriter{pool: pool, logger: logger}, nil
}

// RecordTask inserts one task outcome.
func (w *PostgresWriter) RecordTask(ctx context.Context, rec TaskRecord) error {
	query := `
		INSERT INTO _meta_downloads (
			run_id, job, target, kind, data_release, url, object_key,
			outcome, http_status, bytes, checksum, error, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := w.pool.Exec(ctx, query,
		rec.RunID, rec.Job, rec.Target, rec.Kind, rec.Release, rec.URL, rec.Key,
		rec.Outcome, rec.HTTPStatus, rec.Bytes, rec.Checksum, rec.Error, recordedAt(rec),
	)
	if err != nil {
		return fmt.Errorf("insert task record: %w", err)
	}
	return nil
}

// CountByOutcome tallies the records of one run.
func (w *PostgresWriter) CountByOutcome(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := w.pool.Query(ctx,
		`SELECT outcome, COUNT(*) FROM _meta_downloads WHERE run_id = $1 GROUP BY outcome`, runID)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = int(n)
	}
	return counts, rows.Err()
}

// Close releases the connection pool.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}
