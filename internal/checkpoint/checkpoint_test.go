package checkpoint

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileManagerRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	m, err := NewManager(Config{Enabled: true, Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = m.Load(ctx, "manga-cube")
	assert.ErrorIs(t, err, ErrNoCheckpoint)

	p := &Progress{
		RunID:     "run-1",
		Job:       "manga-cube",
		NextIndex: 42,
		Total:     100,
		Outcomes:  map[string]int{"downloaded": 40, "http-error": 2},
		UpdatedAt: time.Date(2024, 10, 21, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, m.Save(ctx, p))

	got, err := m.Load(ctx, "manga-cube")
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.False(t, got.Done())

	// checkpoints are per job
	_, err = m.Load(ctx, "lotss-dr3")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}

func TestNoopManager(t *testing.T) {
	m, err := NewManager(Config{})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Save(ctx, &Progress{Job: "x", NextIndex: 3}))
	_, err = m.Load(ctx, "x")
	assert.ErrorIs(t, err, ErrNoCheckpoint)
}
