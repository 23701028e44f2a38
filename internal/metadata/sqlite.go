package metadata

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchemaSQL string

// SQLiteWriter implements Writer on a local SQLite file.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens (or creates) the database at dsn.
func NewSQLiteWriter(ctx context.Context, dsn string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

func (w *SQLiteWriter) RecordTask(ctx context.Context, rec TaskRecord) error {
	query := `
        INSERT INTO _meta_downloads (
            run_id, job, target, kind, data_release, url, object_key,
            outcome, http_status, bytes, checksum, error, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := w.db.ExecContext(ctx, query,
		rec.RunID, rec.Job, rec.Target, rec.Kind, rec.Release, rec.URL, rec.Key,
		rec.Outcome, rec.HTTPStatus, rec.Bytes, rec.Checksum, rec.Error, recordedAt(rec),
	)
	if err != nil {
		return fmt.Errorf("insert task record: %w", err)
	}
	return nil
}

func (w *SQLiteWriter) CountByOutcome(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM _meta_downloads WHERE run_id = ? GROUP BY outcome`, runID)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan outcome count: %w", err)
		}
		counts[outcome] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
