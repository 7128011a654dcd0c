// Package datasets loads the tabular inputs of the sector-space pipeline from
// .xlsx and .csv files, caches them behind TTL handles and decodes them into
// the typed records each engine consumes.
package datasets

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/xuri/excelize/v2"
)

// Table is an immutable header plus string rows.
type Table struct {
	Path   string
	Sheet  string
	Header []string
	Rows   [][]string
	// Date1904 is set for workbooks using the 1904 date system, so serial
	// date cells decode correctly.
	Date1904 bool
}

// ErrNoHeader indicates an input with no non-empty first row.
var ErrNoHeader = errors.New("datasets: table has no header row")

// ReadTable reads a whole table. Sheet selects a worksheet (first when empty)
// and is ignored for CSV. More than maxRows data rows is an error; maxRows <= 0
// disables the limit.
func ReadTable(path, sheet string, maxRows int) (*Table, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".xlsx":
		return readWorkbook(path, sheet, maxRows)
	case ".csv":
		return readCSV(path, maxRows)
	default:
		return nil, analysiserr.Newf(analysiserr.UnsupportedFormat, "datasets.ReadTable", "unsupported format: %s", ext)
	}
}

func readWorkbook(path, sheet string, maxRows int) (*Table, error) {
	const op = "datasets.readWorkbook"
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.OpenFailed, op, err)
	}
	defer func() { _ = f.Close() }()

	if strings.TrimSpace(sheet) == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, analysiserr.Newf(analysiserr.ReadFailed, op, "workbook has no sheets")
		}
		sheet = list[0]
	}
	if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "sheet %q not found", sheet)
	}

	t := &Table{Path: path, Sheet: sheet}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil && *props.Date1904 {
		t.Date1904 = true
	}

	// Stream rows so oversized sheets fail before being fully materialised.
	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.ReadFailed, op, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		cols, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, analysiserr.Wrap(analysiserr.ReadFailed, op, err)
		}
		if err := t.add(cols, maxRows); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, analysiserr.Wrap(analysiserr.ReadFailed, op, err)
	}
	return t.finish()
}

func readCSV(path string, maxRows int) (*Table, error) {
	const op = "datasets.readCSV"
	fh, err := os.Open(path)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.OpenFailed, op, err)
	}
	defer func() { _ = fh.Close() }()

	t := &Table{Path: path}
	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, analysiserr.Wrap(analysiserr.ReadFailed, op, err)
		}
		if err := t.add(rec, maxRows); err != nil {
			return nil, err
		}
	}
	return t.finish()
}

func (t *Table) add(cols []string, maxRows int) error {
	if t.Header == nil {
		if blank(cols) {
			return nil
		}
		t.Header = make([]string, len(cols))
		for i, c := range cols {
			t.Header[i] = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		}
		return nil
	}
	if blank(cols) {
		return nil
	}
	if maxRows > 0 && len(t.Rows) >= maxRows {
		return analysiserr.Newf(analysiserr.LimitExceeded, "datasets.ReadTable",
			"%s has more than %d data rows", filepath.Base(t.Path), maxRows)
	}
	t.Rows = append(t.Rows, cols)
	return nil
}

func (t *Table) finish() (*Table, error) {
	if t.Header == nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(t.Path), ErrNoHeader)
	}
	return t, nil
}

func blank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Column returns the index of a header, matched case-insensitively.
func (t *Table) Column(name string) (int, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for i, h := range t.Header {
		if strings.ToLower(h) == want {
			return i, true
		}
	}
	return -1, false
}

// Cell returns the trimmed value at (row, col), empty when the row is short.
func (t *Table) Cell(row, col int) string {
	r := t.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return strings.TrimSpace(r[col])
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.Rows) }
