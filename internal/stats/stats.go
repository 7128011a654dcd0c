// Package stats provides the ranking statistics used by the exposure and
// diversification engines.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrZeroVariance is returned when a standardisation has no spread.
var ErrZeroVariance = errors.New("stats: zero variance")

// ZScore standardises values with the sample standard deviation.
func ZScore(values []float64) ([]float64, error) {
	if len(values) < 2 {
		return nil, fmt.Errorf("stats: zscore needs at least 2 values, got %d: %w", len(values), ErrZeroVariance)
	}
	mean, std := stat.MeanStdDev(values, nil)
	if std == 0 || math.IsNaN(std) {
		return nil, ErrZeroVariance
	}
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - mean) / std
	}
	return out, nil
}

// Quantile returns the linearly interpolated quantile of sorted at q:
// position (n-1)*q between neighbouring order statistics.
func Quantile(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * q
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	if lo < 0 {
		return sorted[0]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// ValidateEdges checks quantile edges are increasing and span [0, 1].
func ValidateEdges(edges []float64) error {
	if len(edges) < 2 {
		return fmt.Errorf("stats: need at least 2 quantile edges, got %d", len(edges))
	}
	if edges[0] != 0 || edges[len(edges)-1] != 1 {
		return fmt.Errorf("stats: quantile edges must start at 0 and end at 1")
	}
	for i := 1; i < len(edges); i++ {
		if edges[i] <= edges[i-1] {
			return fmt.Errorf("stats: quantile edges must be strictly increasing")
		}
	}
	return nil
}

// Cut is the result of a quantile cut.
type Cut struct {
	// Labels holds the 0-based bucket of every input value.
	Labels []int
	// Bins are the distinct bucket boundaries actually used.
	Bins []float64
	// Collapsed reports that duplicate boundaries were dropped.
	Collapsed bool
}

// Buckets returns the number of buckets after collapsing.
func (c Cut) Buckets() int {
	if len(c.Bins) < 2 {
		return 1
	}
	return len(c.Bins) - 1
}

// QCut assigns every value to a quantile bucket. Bucket i covers
// (bins[i], bins[i+1]] with the lowest boundary included in bucket 0.
// Duplicate boundaries are dropped, so ties may reduce the number of buckets.
// NaN values are labelled -1.
func QCut(values []float64, edges []float64) (Cut, error) {
	if err := ValidateEdges(edges); err != nil {
		return Cut{}, err
	}
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return Cut{}, fmt.Errorf("stats: qcut needs at least one non-NaN value")
	}
	sort.Float64s(sorted)

	var cut Cut
	for _, q := range edges {
		b := Quantile(sorted, q)
		if len(cut.Bins) > 0 && b == cut.Bins[len(cut.Bins)-1] {
			cut.Collapsed = true
			continue
		}
		cut.Bins = append(cut.Bins, b)
	}

	cut.Labels = make([]int, len(values))
	for i, v := range values {
		switch {
		case math.IsNaN(v):
			cut.Labels[i] = -1
		case v <= cut.Bins[0]:
			cut.Labels[i] = 0
		default:
			// first boundary >= v
			k := sort.SearchFloat64s(cut.Bins, v)
			if k >= len(cut.Bins) {
				k = len(cut.Bins) - 1
			}
			cut.Labels[i] = k - 1
		}
	}
	return cut, nil
}
