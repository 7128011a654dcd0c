package complexity

import (
	"errors"
	"math"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// DiversityRow counts the active and specialised sectors of a location.
type DiversityRow struct {
	Location string `json:"location"`
	Name     string `json:"name"`
	Active   int    `json:"n_active"`
	RCA      int    `json:"n_rca"`
}

// SimpleDiversity counts, per location, sectors with any activity and sectors with RCA.
func SimpleDiversity(x *matrix.Matrix, threshold float64) []DiversityRow {
	if x.Empty() {
		return nil
	}
	lq := LocationQuotient(x, threshold, false)
	n, p := x.Dims()
	keys := x.RowKeys()
	out := make([]DiversityRow, n)
	for c := 0; c < n; c++ {
		row := DiversityRow{Location: keys[c], Name: x.RowName(c)}
		for j := 0; j < p; j++ {
			if x.At(c, j) > 0 {
				row.Active++
			}
			if lq.At(c, j) > threshold {
				row.RCA++
			}
		}
		out[c] = row
	}
	return out
}

// SummaryRow is the aggregated complexity profile of one row entity.
type SummaryRow struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	Size    float64  `json:"size"`
	Index   *float64 `json:"index,omitempty"`
	Outlook *float64 `json:"outlook,omitempty"`
}

// SummaryOptions configures Summarize.
type SummaryOptions struct {
	Options
	// Transpose profiles sectors (PCI and product outlook) instead of locations.
	Transpose bool
}

// Summarize computes size, complexity index and outlook index per row of x
// (per column when Transpose is set). Rows dropped by the index computation
// carry no index value. A degenerate index leaves Index and Outlook unset on
// every row and is reported as a warning.
func Summarize(x *matrix.Matrix, opts SummaryOptions) ([]SummaryRow, Report, error) {
	if opts.Transpose {
		x = x.T()
	}
	base := opts.Options.withDefaults()

	size := x.RowSums()
	proxy, err := matrix.NewVector(x.RowKeys(), size)
	if err != nil {
		return nil, Report{}, err
	}
	var rep Report
	index, irep, err := ECI(RCA(x, base.Threshold), &proxy, base)
	rep.merge(irep)
	if err != nil && !rep.degenerate(base.Logger, "complexity.Summarize", "complexity index", err) {
		return nil, rep, err
	}
	outlook, orep, err := ComplexityOutlookIndex(x, base)
	rep.Warnings = append(rep.Warnings, orep.Warnings...)
	if err != nil && !rep.degenerate(base.Logger, "complexity.Summarize", "outlook index", err) {
		return nil, rep, err
	}

	idx := index.Map()
	out := outlook.Map()
	keys := x.RowKeys()
	rows := make([]SummaryRow, len(keys))
	for i, k := range keys {
		row := SummaryRow{Key: k, Name: x.RowName(i), Size: size[i]}
		if v, ok := idx[k]; ok {
			row.Index = ptr(v)
		}
		if v, ok := out[k]; ok && !math.IsNaN(v) {
			row.Outlook = ptr(v)
		}
		rows[i] = row
	}
	return rows, rep, nil
}

// UnitRow is the complexity profile of one (location, sector) cell.
type UnitRow struct {
	Location string   `json:"location"`
	Name     string   `json:"name"`
	Sector   string   `json:"sector"`
	Value    float64  `json:"value"`
	LQ       float64  `json:"lq"`
	HasRCA   bool     `json:"has_rca"`
	Distance *float64 `json:"distance,omitempty"`
	Omega    float64  `json:"omega"`
	OOG      *float64 `json:"oog,omitempty"`
}

// UnitProfile returns value, LQ, RCA flag, distance, omega (1 - density) and
// opportunity outlook gain for every cell of x, in row-major order. OOG needs
// PCI; when PCI is degenerate it is left unset and a warning is reported.
func UnitProfile(x *matrix.Matrix, opts Options) ([]UnitRow, Report, error) {
	opts = opts.withDefaults()
	lq := LocationQuotient(x, opts.Threshold, false)
	m := RCA(x, opts.Threshold)
	density := densityFrom(m, proximityFromRCA(m))
	dist := distanceFrom(m, density)
	oog, rep, err := OpportunityOutlookGain(x, opts)
	if err != nil && !rep.degenerate(opts.Logger, "complexity.UnitProfile", "opportunity outlook gain", err) {
		return nil, rep, err
	}

	n, p := x.Dims()
	rows := x.RowKeys()
	cols := x.ColKeys()
	out := make([]UnitRow, 0, n*p)
	for c := 0; c < n; c++ {
		for j := 0; j < p; j++ {
			u := UnitRow{
				Location: rows[c],
				Name:     x.RowName(c),
				Sector:   cols[j],
				Value:    x.At(c, j),
				LQ:       lq.At(c, j),
				HasRCA:   m.At(c, j) == 1,
				Omega:    1 - density.At(c, j),
			}
			if d := dist.At(c, j); !math.IsNaN(d) {
				u.Distance = ptr(d)
			}
			if oog != nil {
				if g, ok := oog.Get(rows[c], cols[j]); ok && !math.IsNaN(g) {
					u.OOG = ptr(g)
				}
			}
			out = append(out, u)
		}
	}
	return out, rep, nil
}

func ptr(v float64) *float64 { return &v }

func (r *Report) merge(o Report) {
	r.DroppedRows = o.DroppedRows
	r.DroppedCols = o.DroppedCols
	r.Eigenvalue = o.Eigenvalue
	r.Sign = o.Sign
	r.Warnings = append(r.Warnings, o.Warnings...)
}

// degenerate records a degenerate-input error as a warning and reports
// whether it was one.
func (r *Report) degenerate(logger zerolog.Logger, op, what string, err error) bool {
	if !errors.Is(err, analysiserr.ErrDegenerateInput) {
		return false
	}
	w := analysiserr.NewWarning(op, what+" unavailable: "+err.Error())
	w.Code = analysiserr.DegenerateInput
	r.warn(logger, w)
	return true
}
