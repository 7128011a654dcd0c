package sectorspace

import (
	"sort"

	"github.com/vinodismyname/sectorspace/internal/exposure"
)

// NeighborRow describes the exposure mix around one sector in one month.
type NeighborRow struct {
	Sector string         `json:"sector"`
	Month  exposure.Month `json:"month"`
	Rank   int            `json:"rank"`
	// Neighbors counts all adjacent sectors; Unranked those without a rank
	// in the month, which are left out of Shares.
	Neighbors int `json:"neighbors"`
	Unranked  int `json:"unranked,omitempty"`
	// Shares maps exposure rank to the fraction of ranked neighbours at it.
	Shares map[int]float64 `json:"shares"`
}

// NeighborShares reports, for every ranked sector of the space, how many
// neighbours it has and how their exposure ranks are distributed. Rows are
// ordered from most to least exposed.
func NeighborShares(s *Space, ranks exposure.Lookup, month exposure.Month) []NeighborRow {
	var out []NeighborRow
	for _, label := range s.labels {
		rank, ok := ranks.Rank(label, month)
		if !ok {
			continue
		}
		row := NeighborRow{Sector: label, Month: month, Rank: rank, Shares: map[int]float64{}}
		ranked := 0
		for _, nb := range s.Neighbors(label) {
			row.Neighbors++
			r, ok := ranks.Rank(nb, month)
			if !ok {
				row.Unranked++
				continue
			}
			row.Shares[r]++
			ranked++
		}
		for r := range row.Shares {
			row.Shares[r] /= float64(ranked)
		}
		out = append(out, row)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rank > out[j].Rank })
	return out
}
