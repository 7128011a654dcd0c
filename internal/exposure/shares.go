package exposure

import (
	"sort"

	"github.com/vinodismyname/sectorspace/internal/matrix"
)

// ShareRow is the share of a location's activity at one exposure rank in one month.
type ShareRow struct {
	Location string  `json:"location"`
	Name     string  `json:"name"`
	Month    Month   `json:"month"`
	Rank     int     `json:"rank"`
	Value    float64 `json:"value"`
	Share    float64 `json:"share"`
}

// Shares distributes each location's activity over the exposure ranks of its
// sectors, month by month. Sectors without a rank in a month are left out of
// that month.
func Shares(activity []matrix.Record, ranks Lookup) []ShareRow {
	type key struct {
		location string
		month    Month
		rank     int
	}
	type locMonth struct {
		location string
		month    Month
	}
	names := map[string]string{}
	values := map[key]float64{}
	totals := map[locMonth]float64{}
	months := ranks.Months()
	for _, r := range activity {
		if _, ok := names[r.LocationID]; !ok {
			names[r.LocationID] = r.LocationName
		}
		for _, m := range months {
			rank, ok := ranks.Rank(r.Sector, m)
			if !ok {
				continue
			}
			values[key{r.LocationID, m, rank}] += r.Value
			totals[locMonth{r.LocationID, m}] += r.Value
		}
	}

	out := make([]ShareRow, 0, len(values))
	for k, v := range values {
		row := ShareRow{Location: k.location, Name: names[k.location], Month: k.month, Rank: k.rank, Value: v}
		if t := totals[locMonth{k.location, k.month}]; t > 0 {
			row.Share = v / t
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		if a.Location != b.Location {
			return a.Location < b.Location
		}
		return a.Rank < b.Rank
	})
	return out
}

// LevelShareRow is the share of a location's activity above a rank level.
type LevelShareRow struct {
	Location string  `json:"location"`
	Name     string  `json:"name"`
	Month    Month   `json:"month"`
	Share    float64 `json:"share"`
}

// HighExposureShares sums, per location and month, the shares with rank > level.
// Locations with no activity above the level report a zero share.
func HighExposureShares(shares []ShareRow, level int) []LevelShareRow {
	return SharesAbove(shares, func(rank int) bool { return rank > level })
}

// SharesAbove sums, per location and month, the shares whose rank satisfies keep.
func SharesAbove(shares []ShareRow, keep func(rank int) bool) []LevelShareRow {
	type locMonth struct {
		location string
		month    Month
	}
	idx := map[locMonth]int{}
	var out []LevelShareRow
	for _, s := range shares {
		k := locMonth{s.Location, s.Month}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, LevelShareRow{Location: s.Location, Name: s.Name, Month: s.Month})
		}
		if keep(s.Rank) {
			out[i].Share += s.Share
		}
	}
	return out
}
