package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/sky"
)

var ErrEmptyCatalog = errors.New("catalog has no rows")

var (
	fieldColumns = []string{"field name", "field", "field_name", "id"}
	raColumns    = []string{"ra"}
	decColumns   = []string{"dec"}
)

// LoadFootprints reads a LoTSS field list. HTML files (the archive's own
// field table) are parsed as the first <table>; anything else as CSV with a
// header row.
func LoadFootprints(path string) ([]sky.Footprint, error) {
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var records [][]string
	switch baseExt(path) {
	case ".html", ".htm":
		records, err = readHTMLTable(rc)
	default:
		records, err = readCSV(rc)
	}
	if err != nil {
		return nil, fmt.Errorf("footprints %s: %w", path, err)
	}

	fps, err := footprintsFromRecords(records)
	if err != nil {
		return nil, fmt.Errorf("footprints %s: %w", path, err)
	}
	return fps, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	return cr.ReadAll()
}

// readHTMLTable returns the cell text of every row of the first table in
// the document, header row included.
func readHTMLTable(r io.Reader) ([][]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	table := findElement(doc, atom.Table)
	if table == nil {
		return nil, errors.New("no <table> element")
	}

	var records [][]string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Tr {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.DataAtom == atom.Td || c.DataAtom == atom.Th) {
					cells = append(cells, strings.TrimSpace(textContent(c)))
				}
			}
			if len(cells) > 0 {
				records = append(records, cells)
			}
			return
		}
		// nested tables are not part of this one
		if n.Type == html.ElementNode && n.DataAtom == atom.Table && n != table {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(table)
	return records, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func footprintsFromRecords(records [][]string) ([]sky.Footprint, error) {
	if len(records) < 2 {
		return nil, ErrEmptyCatalog
	}

	header := records[0]
	idCol, err := columnIndex(header, fieldColumns)
	if err != nil {
		return nil, err
	}
	raCol, err := columnIndex(header, raColumns)
	if err != nil {
		return nil, err
	}
	decCol, err := columnIndex(header, decColumns)
	if err != nil {
		return nil, err
	}

	fps := make([]sky.Footprint, 0, len(records)-1)
	for i, rec := range records[1:] {
		line := i + 2
		if len(rec) <= max(idCol, raCol, decCol) {
			return nil, fmt.Errorf("row %d: expected %d cells, got %d", line, len(header), len(rec))
		}
		ra, err := strconv.ParseFloat(strings.TrimSpace(rec[raCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w: RA %q", line, ErrBadValue, rec[raCol])
		}
		dec, err := strconv.ParseFloat(strings.TrimSpace(rec[decCol]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w: Dec %q", line, ErrBadValue, rec[decCol])
		}
		fps = append(fps, sky.Footprint{
			ID:  strings.TrimSpace(rec[idCol]),
			RA:  ra,
			Dec: dec,
		})
	}
	return fps, nil
}

func columnIndex(header []string, names []string) (int, error) {
	for _, want := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				return i, nil
			}
		}
	}
	return -1, fmt.Errorf("%w: %s", ErrMissingColumn, names[0])
}
