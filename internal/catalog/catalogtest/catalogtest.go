// Package catalogtest writes small FITS catalogs for tests.
package catalogtest

import (
	"fmt"
	"os"
	"testing"

	"github.com/astrogo/fitsio"
)

// WriteTable writes a FITS file at path holding an empty primary HDU and one
// binary table. Each row holds one value per column, typed to match the
// column format (J=int32, K=int64, D=float64, L=bool, nA=string).
func WriteTable(t testing.TB, path, name string, cols []fitsio.Column, rows [][]any) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	fits, err := fitsio.Create(f)
	if err != nil {
		t.Fatalf("fitsio create: %v", err)
	}
	defer fits.Close()

	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		t.Fatalf("primary hdu: %v", err)
	}
	if err := fits.Write(phdu); err != nil {
		t.Fatalf("write primary hdu: %v", err)
	}

	tbl, err := fitsio.NewTable(name, cols, fitsio.BINARY_TBL)
	if err != nil {
		t.Fatalf("new table: %v", err)
	}
	defer tbl.Close()

	for i, row := range rows {
		ptrs := make([]any, len(row))
		for j, v := range row {
			switch v := v.(type) {
			case int32:
				ptrs[j] = &v
			case int64:
				ptrs[j] = &v
			case float64:
				ptrs[j] = &v
			case bool:
				ptrs[j] = &v
			case string:
				ptrs[j] = &v
			default:
				t.Fatalf("row %d col %d: unsupported type %T", i, j, v)
			}
		}
		if err := tbl.Write(ptrs...); err != nil {
			t.Fatalf("write row %d: %v", i, err)
		}
	}

	if err := fits.Write(tbl); err != nil {
		t.Fatalf("write table: %v", err)
	}
}

// DAPallColumns are the DAPall columns the jobs read.
func DAPallColumns() []fitsio.Column {
	return []fitsio.Column{
		{Name: "PLATEIFU", Format: "11A"},
		{Name: "PLATE", Format: "J"},
		{Name: "IFUDESIGN", Format: "J"},
		{Name: "OBJRA", Format: "D"},
		{Name: "OBJDEC", Format: "D"},
		{Name: "DAPDONE", Format: "L"},
	}
}

// DAPallRow builds a row for DAPallColumns.
func DAPallRow(plate, ifu int32, ra, dec float64, done bool) []any {
	return []any{
		formatPlateIFU(plate, ifu), plate, ifu, ra, dec, done,
	}
}

// Pipe3DColumns are the Pipe3D summary columns the jobs read.
func Pipe3DColumns() []fitsio.Column {
	return []fitsio.Column{
		{Name: "plate", Format: "J"},
		{Name: "ifudsgn", Format: "J"},
	}
}

func formatPlateIFU(plate, ifu int32) string {
	return fmt.Sprintf("%d-%d", plate, ifu)
}
