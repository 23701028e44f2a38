package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileLog appends events as JSON lines to <dir>/audit_<job>.jsonl.
type FileLog struct {
	mu  sync.Mutex
	dir string
}

// NewFileLog creates the log directory if needed.
func NewFileLog(dir string) (*FileLog, error) {
	if dir == "" {
		dir = "./audit"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	return &FileLog{dir: dir}, nil
}

func (f *FileLog) path(job string) string {
	return filepath.Join(f.dir, fmt.Sprintf("audit_%s.jsonl", job))
}

// Append writes one event line.
func (f *FileLog) Append(evt *Event) error {
	line, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	f.mu.Lock()
	defer f.mu.Unlock()

	fh, err := os.OpenFile(f.path(evt.Job), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := fh.Write(line); err != nil {
		fh.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	return fh.Close()
}

// ReadAll returns every event logged for job, oldest first.
func (f *FileLog) ReadAll(job string) ([]Event, error) {
	fh, err := os.Open(f.path(job))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer fh.Close()

	var events []Event
	sc := bufio.NewScanner(fh)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			return nil, fmt.Errorf("parse audit line %d: %w", len(events)+1, err)
		}
		events = append(events, evt)
	}
	return events, sc.Err()
}

// VerifyChain checks that every event hash is intact and links to the
// previous one.
func VerifyChain(events []Event) error {
	prev := ""
	for i := range events {
		evt := &events[i]
		if evt.Chain.PrevEventHash != prev {
			return fmt.Errorf("event %d (%s): prev_event_hash %q, want %q", i, evt.EventID, evt.Chain.PrevEventHash, prev)
		}
		if !evt.Verify() {
			return fmt.Errorf("event %d (%s): event_hash does not match content", i, evt.EventID)
		}
		prev = evt.Chain.EventHash
	}
	return nil
}

// FileEmitter writes chained events to local files only.
type FileEmitter struct {
	chainTracker *ChainTracker
	log          *FileLog
	logger       *slog.Logger
}

// NewFileEmitter creates an emitter that only writes to local files.
func NewFileEmitter(dir string) (*FileEmitter, error) {
	chainTracker, err := NewChainTracker(dir)
	if err != nil {
		return nil, fmt.Errorf("create chain tracker: %w", err)
	}
	log, err := NewFileLog(dir)
	if err != nil {
		return nil, fmt.Errorf("create file log: %w", err)
	}
	return &FileEmitter{
		chainTracker: chainTracker,
		log:          log,
		logger:       slog.With("component", "audit"),
	}, nil
}

// Emit chains the event and appends it to the job's log file.
func (e *FileEmitter) Emit(evt *Event) error {
	stamp(evt)
	evt.SetChainHashes(e.chainTracker.Head(evt.ChainKey()))

	if err := e.log.Append(evt); err != nil {
		return err
	}

	e.logger.Debug("audit event written", "job", evt.Job, "key", evt.Key, "event_hash", evt.Chain.EventHash)

	if err := e.chainTracker.Advance(evt.ChainKey(), evt.Chain.EventHash); err != nil {
		e.logger.Warn("failed to update chain head", "error", err)
	}
	return nil
}

// Close releases resources.
func (e *FileEmitter) Close() error {
	return nil
}
