package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/util"
)

// LocalStore writes files below a directory on the local filesystem. It
// never creates directories: a missing parent is reported, not repaired.
type LocalStore struct {
	root string
}

// NewLocalStore creates a store rooted at root, which must exist. An empty
// root means keys are used as plain paths.
func NewLocalStore(root string) (*LocalStore, error) {
	if root != "" {
		ok, err := util.DirExists(root)
		if err != nil {
			return nil, fmt.Errorf("stat destination %s: %w", root, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingRoot, root)
		}
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// Exists checks if a file already exists at key. Temp files never sit at
// a final key, so any entry there is a committed download.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	return util.FileExists(s.path(key))
}

// ParentExists checks the directory that would hold key.
func (s *LocalStore) ParentExists(ctx context.Context, key string) (bool, error) {
	return util.DirExists(filepath.Dir(s.path(key)))
}

// Create writes to a hidden temp file next to the destination; Commit
// renames it into place.
func (s *LocalStore) Create(ctx context.Context, key string) (PendingObject, error) {
	path := s.path(key)
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	f, err := os.CreateTemp(dir, "."+base+".*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file for %s: %w", path, err)
	}
	return &localPending{f: f, path: path}, nil
}

type localPending struct {
	f    *os.File
	path string
	done bool
}

func (p *localPending) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

func (p *localPending) Commit() error {
	if p.done {
		return errors.New("pending object already finished")
	}
	p.done = true

	tempPath := p.f.Name()
	if err := p.f.Sync(); err != nil {
		p.f.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync %s: %w", tempPath, err)
	}
	if err := p.f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close %s: %w", tempPath, err)
	}
	if err := os.Rename(tempPath, p.path); err != nil {
		// Clean up temp file on rename failure
		os.Remove(tempPath)
		return fmt.Errorf("rename %s to %s: %w", tempPath, p.path, err)
	}
	return nil
}

func (p *localPending) Abort() error {
	if p.done {
		return nil
	}
	p.done = true
	p.f.Close()
	if err := os.Remove(p.f.Name()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", p.f.Name(), err)
	}
	return nil
}

// Head returns size and modification time of the file at key.
func (s *LocalStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:     key,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// URI returns the canonical URI for the given key.
func (s *LocalStore) URI(key string) string {
	absPath, err := filepath.Abs(s.path(key))
	if err != nil {
		absPath = s.path(key)
	}
	return "file://" + filepath.ToSlash(absPath)
}

// Close is a no-op for local storage.
func (s *LocalStore) Close() error {
	return nil
}
