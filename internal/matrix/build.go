package matrix

import (
	"fmt"
	"math"
	"sort"

	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// Record is one row of a long activity table.
type Record struct {
	LocationID   string
	LocationName string
	Sector       string
	Value        float64
}

// Order selects how row and column labels are arranged.
type Order int

const (
	// OrderUnspecified is rejected so that callers always pick an ordering.
	OrderUnspecified Order = iota
	// OrderSorted sorts labels lexicographically.
	OrderSorted
	// OrderInsertion keeps labels in order of first appearance.
	OrderInsertion
)

func (o Order) String() string {
	switch o {
	case OrderSorted:
		return "sorted"
	case OrderInsertion:
		return "insertion"
	default:
		return "unspecified"
	}
}

// ParseOrder maps a configuration string onto an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "sorted":
		return OrderSorted, nil
	case "insertion":
		return OrderInsertion, nil
	}
	return OrderUnspecified, analysiserr.Newf(analysiserr.Validation, "matrix.ParseOrder", "unknown order %q", s)
}

// AggregateFunc folds the values that share a (location, sector) cell.
type AggregateFunc func([]float64) float64

// Sum adds the values.
func Sum(vs []float64) float64 {
	var s float64
	for _, v := range vs {
		s += v
	}
	return s
}

// Mean averages the values.
func Mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	return Sum(vs) / float64(len(vs))
}

// Max keeps the largest value.
func Max(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// BuildOptions configures Build.
type BuildOptions struct {
	Aggregate AggregateFunc
	Order     Order
}

// Build pivots long activity records into a location-by-sector matrix.
// Missing cells are zero and NaN values count as missing.
func Build(records []Record, opts BuildOptions) (*Matrix, error) {
	const op = "matrix.Build"
	if opts.Order == OrderUnspecified {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "label order must be specified")
	}
	if len(records) == 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "no records")
	}
	agg := opts.Aggregate
	if agg == nil {
		agg = Sum
	}

	type cell struct{ row, col string }
	cells := make(map[cell][]float64, len(records))
	var rows, cols []string
	names := map[string]string{}
	seenCol := map[string]struct{}{}
	for i, r := range records {
		if r.LocationID == "" || r.Sector == "" {
			return nil, analysiserr.Newf(analysiserr.Validation, op, "record %d has an empty location or sector", i)
		}
		if r.Value < 0 || math.IsInf(r.Value, 0) {
			return nil, analysiserr.Newf(analysiserr.Validation, op, "record %d (%s, %s) has invalid value %v", i, r.LocationID, r.Sector, r.Value)
		}
		if _, ok := names[r.LocationID]; !ok {
			rows = append(rows, r.LocationID)
			name := r.LocationName
			if name == "" {
				name = r.LocationID
			}
			names[r.LocationID] = name
		}
		if _, ok := seenCol[r.Sector]; !ok {
			cols = append(cols, r.Sector)
			seenCol[r.Sector] = struct{}{}
		}
		if math.IsNaN(r.Value) {
			continue
		}
		k := cell{r.LocationID, r.Sector}
		cells[k] = append(cells[k], r.Value)
	}
	if opts.Order == OrderSorted {
		sort.Strings(rows)
		sort.Strings(cols)
	}

	values := make([]float64, len(rows)*len(cols))
	for i, row := range rows {
		for j, col := range cols {
			if vs, ok := cells[cell{row, col}]; ok {
				values[i*len(cols)+j] = agg(vs)
			}
		}
	}
	m, err := New(rows, cols, values)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rowNames := make([]string, len(rows))
	for i, r := range rows {
		rowNames[i] = names[r]
	}
	return m.WithRowNames(rowNames)
}
