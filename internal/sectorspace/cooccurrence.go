package sectorspace

import (
	"math"
	"sort"

	"github.com/vinodismyname/sectorspace/internal/matrix"
)

// LabelSet is the set of sectors predicted for one document.
type LabelSet struct {
	ID      string   `json:"id"`
	Sectors []string `json:"sectors"`
}

// ExtractSectors reads a document × sector probability matrix and keeps, per
// document, the sectors with probability strictly above threshold. Documents
// with no sector above the threshold are omitted.
func ExtractSectors(pred *matrix.Matrix, threshold float64) []LabelSet {
	rows, cols := pred.Dims()
	rowKeys, colKeys := pred.RowKeys(), pred.ColKeys()
	var out []LabelSet
	for i := 0; i < rows; i++ {
		var sectors []string
		for j := 0; j < cols; j++ {
			if v := pred.At(i, j); !math.IsNaN(v) && v > threshold {
				sectors = append(sectors, colKeys[j])
			}
		}
		if len(sectors) > 0 {
			out = append(out, LabelSet{ID: rowKeys[i], Sectors: sectors})
		}
	}
	return out
}

// CoOccurrence counts how often each pair of sectors appears in the same set.
// The edges come back in canonical order.
func CoOccurrence(sets []LabelSet) []Edge {
	type pair struct{ a, b string }
	counts := map[pair]float64{}
	for _, s := range sets {
		uniq := dedupe(s.Sectors)
		for i := 0; i < len(uniq); i++ {
			for j := i + 1; j < len(uniq); j++ {
				counts[pair{uniq[i], uniq[j]}]++
			}
		}
	}
	out := make([]Edge, 0, len(counts))
	for p, c := range counts {
		out = append(out, Edge{A: p.a, B: p.b, Weight: c})
	}
	SortEdges(out)
	return out
}

func dedupe(labels []string) []string {
	out := append([]string(nil), labels...)
	sort.Strings(out)
	j := 0
	for i, l := range out {
		if l == "" || (i > 0 && l == out[i-1]) {
			continue
		}
		out[j] = l
		j++
	}
	return out[:j]
}
