package catalog

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"
)

var (
	ErrNoTable       = errors.New("no binary table HDU")
	ErrMissingColumn = errors.New("missing column")
	ErrBadValue      = errors.New("bad column value")
)

// Columns selects what ReadFITSTable extracts. Names match
// case-insensitively, like astropy does.
type Columns struct {
	Required []string
	Optional []string
}

// Row is one table row keyed by the requested column names.
type Row map[string]any

func (r Row) Has(col string) bool {
	_, ok := r[col]
	return ok
}

func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return strings.Trim(v, " \x00")
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) Int(col string) (int64, error) {
	switch v := r[col].(type) {
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", ErrBadValue, col, v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrBadValue, col, v)
	}
}

func (r Row) Float(col string) (float64, error) {
	switch v := r[col].(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", ErrBadValue, col, v)
		}
		return f, nil
	default:
		n, err := r.Int(col)
		if err != nil {
			return 0, err
		}
		return float64(n), nil
	}
}

func (r Row) Bool(col string) (bool, error) {
	switch v := r[col].(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "T", "TRUE", "1":
			return true, nil
		case "F", "FALSE", "0", "":
			return false, nil
		}
		return false, fmt.Errorf("%w: %s=%q", ErrBadValue, col, v)
	default:
		n, err := r.Int(col)
		if err != nil {
			return false, err
		}
		return n != 0, nil
	}
}

// ReadFITSTable reads the first binary-table HDU of a FITS stream and
// returns the selected columns of every row.
func ReadFITSTable(r io.Reader, cols Columns) ([]Row, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("open fits: %w", err)
	}
	defer f.Close()

	var tbl *fitsio.Table
	for _, hdu := range f.HDUs() {
		if t, ok := hdu.(*fitsio.Table); ok {
			tbl = t
			break
		}
	}
	if tbl == nil {
		return nil, ErrNoTable
	}

	actual := make(map[string]string)
	for _, c := range tbl.Cols() {
		actual[strings.ToUpper(c.Name)] = c.Name
	}

	// requested name -> column name in the file
	selected := make(map[string]string)
	for _, name := range cols.Required {
		colName, ok := actual[strings.ToUpper(name)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		selected[name] = colName
	}
	for _, name := range cols.Optional {
		if colName, ok := actual[strings.ToUpper(name)]; ok {
			selected[name] = colName
		}
	}

	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return nil, fmt.Errorf("read fits table: %w", err)
	}
	defer rows.Close()

	out := make([]Row, 0, tbl.NumRows())
	for rows.Next() {
		data := make(map[string]interface{}, len(selected))
		for _, colName := range selected {
			data[colName] = nil
		}
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan fits row %d: %w", len(out), err)
		}
		row := make(Row, len(selected))
		for name, colName := range selected {
			row[name] = data[colName]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fits table: %w", err)
	}
	return out, nil
}
