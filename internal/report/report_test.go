package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.parquet")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	rows := []Row{
		{
			RunID: "run-1", Job: "lotss-dr3", Target: "P000+23",
			Kind: "lotss-dr3-mosaic", Release: "DR3",
			URL: "https://example.org/DR3/mosaics/P000+23/mosaic-blanked.fits",
			Key: "P000+23_high_mosaic.fits", Outcome: "downloaded",
			Status: 200, Bytes: 4096, Checksum: "sha256:abc",
			DurationMs: 120, RecordedAt: at,
		},
		{
			RunID: "run-1", Job: "lotss-dr3", Target: "P000+23",
			Kind: "lotss-dr2-rms", Release: "DR2",
			Key: "P000+23_rms.fits", Outcome: "http-error",
			Status: 404, Error: "not found", RecordedAt: at,
		},
	}
	require.NoError(t, Write(path, rows))

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "P000+23_high_mosaic.fits", got[0].Key)
	assert.Equal(t, int64(4096), got[0].Bytes)
	assert.Equal(t, "sha256:abc", got[0].Checksum)
	assert.True(t, at.Equal(got[0].RecordedAt))
	assert.Equal(t, int32(404), got[1].Status)
	assert.Equal(t, "not found", got[1].Error)
}

func TestWriteReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.parquet")

	require.NoError(t, Write(path, []Row{{RunID: "a", Outcome: "downloaded"}}))
	require.NoError(t, Write(path, []Row{{RunID: "b", Outcome: "already-present"}, {RunID: "b"}}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "b", got[0].RunID)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteMissingDirectory(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "missing", "run.parquet"), nil)
	assert.Error(t, err)
}
