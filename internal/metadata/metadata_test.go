package metadata

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteWriterCounts(t *testing.T) {
	ctx := context.Background()
	w, err := NewWriter(ctx, Config{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "downloads.db")})
	require.NoError(t, err)
	defer w.Close()

	records := []TaskRecord{
		{RunID: "r1", Job: "manga-cube", Target: "8485-1901", Kind: "manga-dap-logcube", URL: "u1", Key: "k1", Outcome: "downloaded", HTTPStatus: 200, Bytes: 10, Checksum: "sha256:aa"},
		{RunID: "r1", Job: "manga-cube", Target: "8485-1902", Kind: "manga-dap-logcube", URL: "u2", Key: "k2", Outcome: "http-error", HTTPStatus: 404},
		{RunID: "r1", Job: "manga-cube", Target: "8485-3701", Kind: "manga-dap-logcube", URL: "u3", Key: "k3", Outcome: "downloaded", HTTPStatus: 200},
		{RunID: "r2", Job: "manga-cube", Target: "8485-1901", Kind: "manga-dap-logcube", URL: "u1", Key: "k1", Outcome: "already-present"},
	}
	for _, rec := range records {
		require.NoError(t, w.RecordTask(ctx, rec))
	}

	counts, err := w.CountByOutcome(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"downloaded": 2, "http-error": 1}, counts)

	counts, err = w.CountByOutcome(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"already-present": 1}, counts)
}

func TestSQLiteWriterReopens(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "downloads.db")

	w, err := NewSQLiteWriter(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, w.RecordTask(ctx, TaskRecord{RunID: "r", Job: "j", Target: "t", Kind: "k", URL: "u", Key: "key", Outcome: "downloaded"}))
	require.NoError(t, w.Close())

	w, err = NewSQLiteWriter(ctx, dsn)
	require.NoError(t, err)
	defer w.Close()
	counts, err := w.CountByOutcome(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, 1, counts["downloaded"])
}

func TestNewWriter(t *testing.T) {
	ctx := context.Background()

	w, err := NewWriter(ctx, Config{})
	require.NoError(t, err)
	require.NoError(t, w.RecordTask(ctx, TaskRecord{}))
	counts, err := w.CountByOutcome(ctx, "any")
	require.NoError(t, err)
	assert.Empty(t, counts)

	_, err = NewWriter(ctx, Config{Driver: "mysql"})
	assert.Error(t, err)
}
