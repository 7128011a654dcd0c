package datasets

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/exposure"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/internal/sectorspace"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/xuri/excelize/v2"
)

// require resolves named columns, failing with every missing name at once.
func (t *Table) require(op string, names ...string) ([]int, error) {
	idx := make([]int, len(names))
	var missing []string
	for i, n := range names {
		j, ok := t.Column(n)
		if !ok {
			missing = append(missing, n)
		}
		idx[i] = j
	}
	if len(missing) > 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "%s: missing column(s) %s",
			t.Path, strings.Join(missing, ", "))
	}
	return idx, nil
}

// skipped turns a list of rejected row numbers into one warning.
func skipped(op, what string, rows []int) []analysiserr.Warning {
	if len(rows) == 0 {
		return nil
	}
	labels := make([]string, 0, min(len(rows), 10))
	for _, r := range rows[:min(len(rows), 10)] {
		labels = append(labels, "row "+strconv.Itoa(r))
	}
	w := analysiserr.NewWarning(op, fmt.Sprintf("skipped %d row(s) with %s", len(rows), what), labels...)
	return []analysiserr.Warning{w}
}

// Activity decodes a long location × sector table into matrix records. Rows
// with a blank or non-numeric value are skipped and reported.
func Activity(t *Table, cols config.ActivityColumns) ([]matrix.Record, []analysiserr.Warning, error) {
	const op = "datasets.Activity"
	idx, err := t.require(op, cols.Location, cols.Sector, cols.Value)
	if err != nil {
		return nil, nil, err
	}
	nameCol := -1
	if cols.Name != "" {
		if nameCol, _ = t.Column(cols.Name); nameCol < 0 {
			return nil, nil, analysiserr.Newf(analysiserr.Validation, op, "%s: missing column %s", t.Path, cols.Name)
		}
	}
	out := make([]matrix.Record, 0, t.Len())
	var bad []int
	for r := range t.Rows {
		loc, sec := t.Cell(r, idx[0]), t.Cell(r, idx[1])
		v, ok := parseFloatStrict(t.Cell(r, idx[2]))
		if loc == "" || sec == "" || !ok {
			bad = append(bad, r+2)
			continue
		}
		rec := matrix.Record{LocationID: loc, Sector: sec, Value: v}
		if nameCol >= 0 {
			rec.LocationName = t.Cell(r, nameCol)
		}
		out = append(out, rec)
	}
	return out, skipped(op, "missing location, sector or value", bad), nil
}

// Observations decodes the keyword search-volume table.
func Observations(t *Table, cols config.TrendColumns) ([]exposure.Observation, []analysiserr.Warning, error) {
	const op = "datasets.Observations"
	idx, err := t.require(op, cols.Keyword, cols.Sector, cols.Date, cols.Volume)
	if err != nil {
		return nil, nil, err
	}
	out := make([]exposure.Observation, 0, t.Len())
	var bad []int
	for r := range t.Rows {
		kw, sec := t.Cell(r, idx[0]), t.Cell(r, idx[1])
		date, okDate := t.parseDate(t.Cell(r, idx[2]))
		vol, okVol := parseFloatStrict(t.Cell(r, idx[3]))
		if kw == "" || sec == "" || !okDate || !okVol {
			bad = append(bad, r+2)
			continue
		}
		out = append(out, exposure.Observation{Keyword: kw, Sector: sec, Date: date, Volume: vol})
	}
	return out, skipped(op, "unparseable keyword, sector, date or volume", bad), nil
}

// Saliences decodes the keyword salience table.
func Saliences(t *Table, cols config.SalienceColumns) ([]exposure.Salience, []analysiserr.Warning, error) {
	const op = "datasets.Saliences"
	idx, err := t.require(op, cols.Keyword, cols.Sector, cols.Salience)
	if err != nil {
		return nil, nil, err
	}
	out := make([]exposure.Salience, 0, t.Len())
	var bad []int
	for r := range t.Rows {
		kw, sec := t.Cell(r, idx[0]), t.Cell(r, idx[1])
		s, ok := parseFloatStrict(t.Cell(r, idx[2]))
		if kw == "" || sec == "" || !ok {
			bad = append(bad, r+2)
			continue
		}
		out = append(out, exposure.Salience{Keyword: kw, Sector: sec, Salience: s})
	}
	return out, skipped(op, "unparseable keyword, sector or salience", bad), nil
}

// Predictions decodes a document × sector probability table. Every column
// other than idCol is a sector; blank or non-numeric cells become NaN.
func Predictions(t *Table, idCol string) (*matrix.Matrix, error) {
	const op = "datasets.Predictions"
	idx, err := t.require(op, idCol)
	if err != nil {
		return nil, err
	}
	var sectors []string
	var sectorIdx []int
	for j, h := range t.Header {
		if j == idx[0] || h == "" {
			continue
		}
		sectors = append(sectors, h)
		sectorIdx = append(sectorIdx, j)
	}
	if len(sectors) == 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "%s: no sector columns", t.Path)
	}
	ids := make([]string, t.Len())
	values := make([]float64, 0, t.Len()*len(sectors))
	for r := range t.Rows {
		ids[r] = t.Cell(r, idx[0])
		for _, j := range sectorIdx {
			v, ok := parseFloatStrict(t.Cell(r, j))
			if !ok {
				v = math.NaN()
			}
			values = append(values, v)
		}
	}
	m, err := matrix.New(ids, sectors, values)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.Validation, op, err)
	}
	return m, nil
}

// Edges decodes a precomputed sector edge list.
func Edges(t *Table, cols config.EdgeColumns) ([]sectorspace.Edge, []analysiserr.Warning, error) {
	const op = "datasets.Edges"
	idx, err := t.require(op, cols.A, cols.B, cols.Weight)
	if err != nil {
		return nil, nil, err
	}
	out := make([]sectorspace.Edge, 0, t.Len())
	var bad []int
	for r := range t.Rows {
		a, b := t.Cell(r, idx[0]), t.Cell(r, idx[1])
		w, ok := parseFloatStrict(t.Cell(r, idx[2]))
		if a == "" || b == "" || !ok {
			bad = append(bad, r+2)
			continue
		}
		out = append(out, sectorspace.Edge{A: a, B: b, Weight: w})
	}
	return out, skipped(op, "unparseable endpoints or weight", bad), nil
}

func parseFloatStrict(s string) (float64, bool) {
	if strings.TrimSpace(s) == "" {
		return 0, false
	}
	// Thousands separators
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if strings.HasSuffix(clean, "%") {
		v := strings.TrimSpace(strings.TrimSuffix(clean, "%"))
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f / 100.0, true
		}
		return 0, false
	}
	if f, err := strconv.ParseFloat(clean, 64); err == nil && !math.IsNaN(f) {
		return f, true
	}
	return 0, false
}

func tryParseTime(s string) (time.Time, bool) {
	layouts := []string{time.RFC3339, "2006-01-02", "2006-01", "2006/01/02", "02/01/2006", "2006-01-02 15:04:05"}
	for _, l := range layouts {
		if t, err := time.Parse(l, strings.TrimSpace(s)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDate accepts text dates and, for workbooks, raw serial date numbers.
func (t *Table) parseDate(s string) (time.Time, bool) {
	if d, ok := tryParseTime(s); ok {
		return d, true
	}
	if t.Sheet == "" {
		return time.Time{}, false
	}
	serial, err := strconv.ParseFloat(s, 64)
	if err != nil || serial <= 0 {
		return time.Time{}, false
	}
	d, err := excelize.ExcelDateToTime(serial, t.Date1904)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}
