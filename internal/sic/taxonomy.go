// Package sic reads the UK SIC 2007 structure workbook and answers lookups
// between sections, divisions and classes.
package sic

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/xuri/excelize/v2"
)

// Taxonomy is an immutable SIC 2007 lookup. Build it once and share it.
type Taxonomy struct {
	sections        map[string]string
	divisions       map[string]string
	divisionSection map[string]string
	classes         map[string]string
}

// Load reads the first sheet of a SIC structure workbook.
func Load(path string) (*Taxonomy, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.OpenFailed, "sic.Load", err)
	}
	defer func() { _ = f.Close() }()
	return fromFile(f)
}

// Read is Load for an in-memory workbook.
func Read(r io.Reader) (*Taxonomy, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.OpenFailed, "sic.Read", err)
	}
	defer func() { _ = f.Close() }()
	return fromFile(f)
}

func fromFile(f *excelize.File) (*Taxonomy, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, analysiserr.Newf(analysiserr.ReadFailed, "sic.Load", "workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.ReadFailed, "sic.Load", err)
	}
	return Parse(rows)
}

// Parse builds a taxonomy from sheet rows. The header row is the first row
// with a SECTION cell; it must also name Division and Class columns. Each
// code column is followed by its description. Section and division carry
// down to the rows below them.
func Parse(rows [][]string) (*Taxonomy, error) {
	const op = "sic.Parse"
	hdr := -1
	var secCol, divCol, clsCol int
	for i, r := range rows {
		cols := headerIndex(r)
		s, ok := cols["section"]
		if !ok {
			continue
		}
		d, okD := cols["division"]
		c, okC := cols["class"]
		if !okD || !okC {
			return nil, analysiserr.Newf(analysiserr.Validation, op, "header row %d lacks Division or Class", i+1)
		}
		hdr, secCol, divCol, clsCol = i, s, d, c
		break
	}
	if hdr < 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "no SECTION header row")
	}

	t := &Taxonomy{
		sections:        map[string]string{},
		divisions:       map[string]string{},
		divisionSection: map[string]string{},
		classes:         map[string]string{},
	}
	var section string
	for _, r := range rows[hdr+1:] {
		if code := strings.TrimSpace(cell(r, secCol)); code != "" {
			section = code
			t.sections[code] = strings.TrimSpace(cell(r, secCol+1))
		}
		if code := normalizeCode(cell(r, divCol)); code != "" {
			t.divisions[code] = strings.TrimSpace(cell(r, divCol+1))
			t.divisionSection[code] = section
		}
		if code := normalizeCode(cell(r, clsCol)); code != "" {
			t.classes[code] = strings.TrimSpace(cell(r, clsCol+1))
		}
	}
	if len(t.divisions) == 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "no divisions found")
	}
	return t, nil
}

func headerIndex(r []string) map[string]int {
	out := map[string]int{}
	for i, c := range r {
		k := strings.ToLower(strings.TrimSpace(c))
		if _, dup := out[k]; k != "" && !dup {
			out[k] = i
		}
	}
	return out
}

func cell(r []string, i int) string {
	if i < 0 || i >= len(r) {
		return ""
	}
	return r[i]
}

func normalizeCode(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), ".", "")
}

// DivisionName returns the description of a two-digit division.
func (t *Taxonomy) DivisionName(code string) (string, bool) {
	n, ok := t.divisions[normalizeCode(code)]
	return n, ok
}

// SectionOf returns the section letter of a division.
func (t *Taxonomy) SectionOf(division string) (string, bool) {
	s, ok := t.divisionSection[normalizeCode(division)]
	return s, ok && s != ""
}

// SectionName returns "A: Agriculture, ..." style labels.
func (t *Taxonomy) SectionName(section string) string {
	if n, ok := t.sections[section]; ok && n != "" {
		return section + ": " + n
	}
	return section
}

// ClassName returns the description of a four-digit class.
func (t *Taxonomy) ClassName(code string) (string, bool) {
	n, ok := t.classes[normalizeCode(code)]
	return n, ok
}

// Divisions lists every division code in order.
func (t *Taxonomy) Divisions() []string {
	out := make([]string, 0, len(t.divisions))
	for d := range t.divisions {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// DivisionOfClass returns the division a class code belongs to: its first
// two digits once dots are removed.
func DivisionOfClass(class string) (string, error) {
	c := normalizeCode(class)
	if len(c) < 2 {
		return "", fmt.Errorf("sic: class code %q too short", class)
	}
	return c[:2], nil
}

// AggregateClasses rolls class-level records up to divisions, summing values
// per (location, division) in order of first appearance. Records whose class
// is not in the taxonomy are dropped and their codes returned.
func (t *Taxonomy) AggregateClasses(records []matrix.Record) ([]matrix.Record, []string) {
	type key struct{ location, division string }
	idx := map[key]int{}
	var out []matrix.Record
	unknown := map[string]struct{}{}
	for _, r := range records {
		cls := normalizeCode(r.Sector)
		if _, ok := t.classes[cls]; !ok {
			unknown[r.Sector] = struct{}{}
			continue
		}
		div, err := DivisionOfClass(cls)
		if err != nil {
			unknown[r.Sector] = struct{}{}
			continue
		}
		k := key{r.LocationID, div}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, matrix.Record{LocationID: r.LocationID, LocationName: r.LocationName, Sector: div})
		}
		out[i].Value += r.Value
	}
	codes := make([]string, 0, len(unknown))
	for c := range unknown {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return out, codes
}
