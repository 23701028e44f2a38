package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const headsFile = "audit-chain-heads.json"

// ChainTracker remembers, per job, the hash of the last event written to
// that job's log. Heads survive restarts so a resumed run keeps extending
// the same chain.
type ChainTracker struct {
	mu    sync.Mutex
	heads map[string]string // job -> event_hash of the newest logged event
	path  string
}

// NewChainTracker loads the heads stored in dir, if any.
func NewChainTracker(dir string) (*ChainTracker, error) {
	if dir == "" {
		dir = "./audit"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	ct := &ChainTracker{
		heads: make(map[string]string),
		path:  filepath.Join(dir, headsFile),
	}
	data, err := os.ReadFile(ct.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read chain heads: %w", err)
	default:
		if err := json.Unmarshal(data, &ct.heads); err != nil {
			return nil, fmt.Errorf("parse chain heads %s: %w", ct.path, err)
		}
	}
	return ct, nil
}

// Head returns the hash the next event of job must link to. A job with
// no logged events starts from "".
func (ct *ChainTracker) Head(job string) string {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.heads[job]
}

// Advance moves the head of job once an event is in the job's log,
// whether or not it also reached a remote endpoint.
func (ct *ChainTracker) Advance(job, eventHash string) error {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.heads[job] = eventHash

	data, err := json.MarshalIndent(ct.heads, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal chain heads: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(ct.path), "."+headsFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("create chain heads temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write chain heads: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close chain heads: %w", err)
	}
	if err := os.Rename(tmp.Name(), ct.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename chain heads: %w", err)
	}
	return nil
}
