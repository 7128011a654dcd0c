package diversification

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/exposure"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/internal/stats"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// RankRow is an exposed sector's diversification rank within its month.
// Higher ranks mean safe sectors are further away on average.
type RankRow struct {
	OptionRow
	Rank int `json:"rank"`
}

// Report lists the data-quality warnings raised while ranking.
type Report struct {
	Warnings []analysiserr.Warning `json:"warnings,omitempty"`
}

// RankMonthly cuts the mean distances of each month into quantile buckets
// (quartiles when edges is empty). The cut is on the distance itself, so the
// top bucket holds the sectors furthest from safe ones, i.e. the least
// diversified. Rows come back grouped by month, oldest first, and ordered by
// mean distance descending within a month.
func RankMonthly(rows []OptionRow, edges []float64, logger zerolog.Logger) ([]RankRow, Report, error) {
	const op = "diversification.RankMonthly"
	var rep Report
	if len(edges) == 0 {
		edges = config.DefaultDiversificationQuantiles
	}
	if err := stats.ValidateEdges(edges); err != nil {
		return nil, rep, analysiserr.Wrap(analysiserr.Validation, op, err)
	}

	byMonth := map[exposure.Month][]OptionRow{}
	for _, r := range rows {
		byMonth[r.Month] = append(byMonth[r.Month], r)
	}
	months := make([]exposure.Month, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	out := make([]RankRow, 0, len(rows))
	for _, m := range months {
		group := byMonth[m]
		sort.Slice(group, func(i, j int) bool {
			if group[i].Mean != group[j].Mean {
				return group[i].Mean > group[j].Mean
			}
			return group[i].Sector < group[j].Sector
		})
		means := make([]float64, len(group))
		for i, r := range group {
			means[i] = r.Mean
		}
		cut, err := stats.QCut(means, edges)
		if err != nil {
			return nil, rep, fmt.Errorf("%s: month %s: %w", op, m, err)
		}
		if cut.Collapsed {
			w := analysiserr.NewWarning(op,
				fmt.Sprintf("duplicate quantile boundaries collapsed to %d buckets", cut.Buckets()), m.String())
			rep.Warnings = append(rep.Warnings, w)
			logger.Warn().Str("op", op).Strs("labels", w.Labels).Msg(w.Message)
		}
		for i, r := range group {
			out = append(out, RankRow{OptionRow: r, Rank: cut.Labels[i]})
		}
	}
	return out, rep, nil
}

// lessExposed marks sectors that have an exposure rank but no diversification
// rank. They count towards a location's total but never towards the share.
const lessExposed = -1

// LowDiversificationShares returns, per location and month, the share of
// activity in ranked sectors whose diversification rank is at least level.
// The denominator is all activity in sectors with an exposure rank that month.
func LowDiversificationShares(activity []matrix.Record, ranks exposure.Lookup, div []RankRow, level int) []exposure.LevelShareRow {
	if level < 0 {
		level = config.DefaultLowDiversityLevel
	}
	divRank := make(map[exposure.Key]int, len(div))
	for _, r := range div {
		divRank[exposure.Key{Sector: r.Sector, Month: r.Month}] = r.Rank
	}
	combined := make(exposure.Lookup, len(ranks))
	for k := range ranks {
		if r, ok := divRank[k]; ok {
			combined[k] = r
			continue
		}
		combined[k] = lessExposed
	}
	shares := exposure.Shares(activity, combined)
	return exposure.SharesAbove(shares, func(rank int) bool { return rank != lessExposed && rank >= level })
}
