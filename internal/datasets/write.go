package datasets

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/xuri/excelize/v2"
)

// Sheet is one output table. Cells may be strings, numbers, bools or nil.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// maxSheetName is Excel's limit on worksheet names.
const maxSheetName = 31

// WriteWorkbook writes sheets, in order, to a new .xlsx file at path.
func WriteWorkbook(path string, sheets []Sheet) error {
	const op = "datasets.WriteWorkbook"
	if len(sheets) == 0 {
		return analysiserr.Newf(analysiserr.Validation, op, "no sheets to write")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	first := f.GetSheetName(0)
	for i, s := range sheets {
		if len(s.Name) == 0 || len(s.Name) > maxSheetName {
			return analysiserr.Newf(analysiserr.Validation, op, "invalid sheet name %q", s.Name)
		}
		if i == 0 {
			if err := f.SetSheetName(first, s.Name); err != nil {
				return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
			}
		} else if _, err := f.NewSheet(s.Name); err != nil {
			return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
		}
		if err := streamSheet(f, s); err != nil {
			return analysiserr.Wrap(analysiserr.WriteFailed, op, fmt.Errorf("sheet %s: %w", s.Name, err))
		}
	}
	f.SetActiveSheet(0)
	if err := f.SaveAs(path); err != nil {
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	return nil
}

func streamSheet(f *excelize.File, s Sheet) error {
	sw, err := f.NewStreamWriter(s.Name)
	if err != nil {
		return err
	}
	header := make([]any, len(s.Header))
	for i, h := range s.Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}
	for i, r := range s.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, finiteCells(r)); err != nil {
			return err
		}
	}
	return sw.Flush()
}

// finiteCells blanks NaN and infinite numbers, which xlsx cannot hold.
func finiteCells(r []any) []any {
	out := make([]any, len(r))
	for i, c := range r {
		if v, ok := c.(float64); ok && (math.IsNaN(v) || math.IsInf(v, 0)) {
			continue
		}
		out[i] = c
	}
	return out
}

// WriteCSV writes one sheet as a CSV file.
func WriteCSV(path string, s Sheet) error {
	const op = "datasets.WriteCSV"
	fh, err := os.Create(path)
	if err != nil {
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	w := csv.NewWriter(fh)
	if err := w.Write(s.Header); err != nil {
		_ = fh.Close()
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	rec := make([]string, 0, len(s.Header))
	for _, r := range s.Rows {
		rec = rec[:0]
		for _, c := range r {
			rec = append(rec, formatCell(c))
		}
		if err := w.Write(rec); err != nil {
			_ = fh.Close()
			return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = fh.Close()
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	if err := fh.Close(); err != nil {
		return analysiserr.Wrap(analysiserr.WriteFailed, op, err)
	}
	return nil
}

func formatCell(c any) string {
	switch v := c.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if math.IsNaN(v) {
			return ""
		}
		return strconv.FormatFloat(v, 'g', -1, 64)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
