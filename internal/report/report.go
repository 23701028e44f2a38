// Package report writes the per-task run report as a Parquet file.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Row is one task outcome.
type Row struct {
	RunID    string `parquet:"run_id"`
	Job      string `parquet:"job"`
	Target   string `parquet:"target"`
	Kind     string `parquet:"kind"`
	Release  string `parquet:"release,optional"`
	URL      string `parquet:"url"`
	Key      string `parquet:"key"`
	URI      string `parquet:"uri"`
	Outcome  string `parquet:"outcome"`
	Status   int32  `parquet:"http_status"`
	Bytes    int64  `parquet:"bytes"`             // written by this run
	Checksum string `parquet:"checksum,optional"` // sha256:<hex>, downloads only
	Error    string `parquet:"error,optional"`

	StoredBytes int64 `parquet:"stored_bytes"` // at the key after the task, 0 if absent

	DurationMs int64     `parquet:"duration_ms"`
	RecordedAt time.Time `parquet:"recorded_at,timestamp(millisecond)"`
}

// Write replaces the file at path with rows. The file is written next to
// path and renamed into place, so readers never see a partial report.
func Write(path string, rows []Row) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create report temp file: %w", err)
	}
	tempPath := tmp.Name()

	fail := func(err error) error {
		tmp.Close()
		os.Remove(tempPath)
		return err
	}

	w := parquet.NewGenericWriter[Row](tmp, parquet.Compression(&parquet.Snappy))
	if _, err := w.Write(rows); err != nil {
		return fail(fmt.Errorf("write report rows: %w", err))
	}
	if err := w.Close(); err != nil {
		return fail(fmt.Errorf("close report writer: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync report: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close report file: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

// Read loads a report written by Write.
func Read(path string) ([]Row, error) {
	rows, err := parquet.ReadFile[Row](path)
	if err != nil {
		return nil, fmt.Errorf("read report %s: %w", path, err)
	}
	return rows, nil
}
