package metadata

import (
	"context"
	"fmt"
	"time"
)

// Config selects the download catalog backend.
type Config struct {
	Driver string // "" | "postgres" | "sqlite"
	DSN    string
}

// Writer records the outcome of every task so runs can be compared and
// audited after the fact.
type Writer interface {
	RecordTask(ctx context.Context, rec TaskRecord) error
	CountByOutcome(ctx context.Context, runID string) (map[string]int, error)
	Close() error
}

// TaskRecord is one fetch attempt as stored in the catalog.
type TaskRecord struct {
	RunID      string
	Job        string
	Target     string
	Kind       string
	Release    string
	URL        string
	Key        string
	Outcome    string
	HTTPStatus int
	Bytes      int64
	Checksum   string
	Error      string
	RecordedAt time.Time
}

// NewWriter opens the configured backend. An empty driver yields a writer
// that records nothing.
func NewWriter(ctx context.Context, cfg Config) (Writer, error) {
	switch cfg.Driver {
	case "":
		return noopWriter{}, nil
	case "postgres":
		return NewPostgresWriter(ctx, cfg.DSN)
	case "sqlite":
		return NewSQLiteWriter(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown metadata driver: %s", cfg.Driver)
	}
}

type noopWriter struct{}

func (noopWriter) RecordTask(_ context.Context, _ TaskRecord) error { return nil }

func (noopWriter) CountByOutcome(_ context.Context, _ string) (map[string]int, error) {
	return map[string]int{}, nil
}

func (noopWriter) Close() error { return nil }

func recordedAt(rec TaskRecord) time.Time {
	if rec.RecordedAt.IsZero() {
		return time.Now().UTC()
	}
	return rec.RecordedAt.UTC()
}
