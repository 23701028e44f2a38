package catalog

import (
	"fmt"
	"strconv"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/sky"
)

// CubeRow identifies one MaNGA observation. Plate and IFU are kept as the
// text that appears in archive paths.
type CubeRow struct {
	Plate   string
	IFU     string
	DAPDone bool
}

func loadFITS(path string, cols Columns) ([]Row, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	rows, err := ReadFITSTable(rc, cols)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return rows, nil
}

// LoadTargets reads galaxy positions from a DAPall table. PLATEIFU is the
// target ID when present, otherwise the row index.
func LoadTargets(path string) ([]sky.Target, error) {
	rows, err := loadFITS(path, Columns{
		Required: []string{"OBJRA", "OBJDEC"},
		Optional: []string{"PLATEIFU"},
	})
	if err != nil {
		return nil, err
	}

	targets := make([]sky.Target, 0, len(rows))
	for i, row := range rows {
		ra, err := row.Float("OBJRA")
		if err != nil {
			return nil, fmt.Errorf("catalog %s row %d: %w", path, i, err)
		}
		dec, err := row.Float("OBJDEC")
		if err != nil {
			return nil, fmt.Errorf("catalog %s row %d: %w", path, i, err)
		}
		id := row.String("PLATEIFU")
		if id == "" {
			id = strconv.Itoa(i)
		}
		targets = append(targets, sky.Target{ID: id, RA: ra, Dec: dec})
	}
	return targets, nil
}

// LoadCubeRows reads PLATE, IFUDESIGN and DAPDONE from a DAPall table.
func LoadCubeRows(path string) ([]CubeRow, error) {
	rows, err := loadFITS(path, Columns{
		Required: []string{"PLATE", "IFUDESIGN"},
		Optional: []string{"DAPDONE"},
	})
	if err != nil {
		return nil, err
	}

	out := make([]CubeRow, 0, len(rows))
	for i, row := range rows {
		done := true
		if row.Has("DAPDONE") {
			if done, err = row.Bool("DAPDONE"); err != nil {
				return nil, fmt.Errorf("catalog %s row %d: %w", path, i, err)
			}
		}
		out = append(out, CubeRow{
			Plate:   row.String("PLATE"),
			IFU:     row.String("IFUDESIGN"),
			DAPDone: done,
		})
	}
	return out, nil
}

// LoadPipe3DRows reads plate and ifudsgn from the Pipe3D summary table.
func LoadPipe3DRows(path string) ([]CubeRow, error) {
	rows, err := loadFITS(path, Columns{Required: []string{"plate", "ifudsgn"}})
	if err != nil {
		return nil, err
	}

	out := make([]CubeRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, CubeRow{
			Plate:   row.String("plate"),
			IFU:     row.String("ifudsgn"),
			DAPDone: true,
		})
	}
	return out, nil
}
