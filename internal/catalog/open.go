// Package catalog loads the input catalogs: LoTSS field lists, the MaNGA
// DAPall table and the Pipe3D summary table.
package catalog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

type readCloser struct {
	io.Reader
	closers []func() error
}

func (rc *readCloser) Close() error {
	var first error
	for i := len(rc.closers) - 1; i >= 0; i-- {
		if err := rc.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a catalog file, decompressing .gz and .zst transparently.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip catalog %s: %w", path, err)
		}
		return &readCloser{Reader: gz, closers: []func() error{f.Close, gz.Close}}, nil
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd catalog %s: %w", path, err)
		}
		return &readCloser{Reader: zr, closers: []func() error{f.Close, func() error { zr.Close(); return nil }}}, nil
	default:
		return f, nil
	}
}

// baseExt returns the extension of path ignoring a compression suffix.
func baseExt(path string) string {
	p := strings.ToLower(path)
	for _, suffix := range []string{".gz", ".zst"} {
		p = strings.TrimSuffix(p, suffix)
	}
	return filepath.Ext(p)
}
