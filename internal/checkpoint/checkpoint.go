package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNoCheckpoint is returned when no checkpoint exists.
	ErrNoCheckpoint = errors.New("no checkpoint found")
)

// Progress is how far a job got through its request list.
type Progress struct {
	RunID     string         `json:"run_id"`
	Job       string         `json:"job"`
	NextIndex int            `json:"next_index"`
	Total     int            `json:"total"`
	Outcomes  map[string]int `json:"outcomes,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Done reports whether every request was processed.
func (p *Progress) Done() bool {
	return p.NextIndex >= p.Total
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the checkpoint of job.
	Load(ctx context.Context, job string) (*Progress, error)

	// Save persists the checkpoint.
	Save(ctx context.Context, p *Progress) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // Directory for checkpoint files
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}

	// Ensure checkpoint directory exists
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}

	return &fileManager{dir: cfg.Dir}, nil
}

// fileManager persists checkpoints to local files, one per job.
type fileManager struct {
	dir string
}

func (m *fileManager) checkpointPath(job string) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s.json", job))
}

// Load reads the checkpoint from file.
func (m *fileManager) Load(ctx context.Context, job string) (*Progress, error) {
	data, err := os.ReadFile(m.checkpointPath(job))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}
	return &p, nil
}

// Save persists the checkpoint to file.
func (m *fileManager) Save(ctx context.Context, p *Progress) error {
	path := m.checkpointPath(p.Job)

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	// Write atomically
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	return nil
}

// noopManager is a no-op checkpoint manager for when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context, job string) (*Progress, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, p *Progress) error {
	return nil
}
