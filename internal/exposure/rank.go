package exposure

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/stats"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// SectorExposureRow is the exposure of one sector in one month.
type SectorExposureRow struct {
	Sector   string  `json:"sector"`
	Month    Month   `json:"month"`
	Interest float64 `json:"interest"`
	ZScore   float64 `json:"zscore"`
	Rank     int     `json:"rank"`
}

// RankOptions configures Rank.
type RankOptions struct {
	// Weighted sums Weight×Norm per sector; otherwise Norm is averaged.
	Weighted bool
	// Edges are the quantile edges of the ranking; deciles when empty.
	Edges []float64
	// SectorOf maps a trend's sector onto the ranking level. Identity when nil.
	SectorOf func(string) string
	Logger   zerolog.Logger
}

type sectorMonth struct {
	sector string
	month  Month
}

// Rank scores every (sector, month), z-scores the negated interest within each
// month and cuts the scores into quantile buckets. Ranks are relative to the
// month: higher rank means a larger fall in search interest than the month's
// other sectors. Months that cannot be ranked (fewer than two sectors or no
// spread) put every sector in bucket 0 and raise a warning.
func Rank(trends []Trend, opts RankOptions) ([]SectorExposureRow, Report, error) {
	const op = "exposure.Rank"
	var rep Report
	edges := opts.Edges
	if len(edges) == 0 {
		edges = config.DefaultExposureQuantiles
	}
	if err := stats.ValidateEdges(edges); err != nil {
		return nil, rep, analysiserr.Wrap(analysiserr.Validation, op, err)
	}
	if len(trends) == 0 {
		return nil, rep, analysiserr.Newf(analysiserr.Validation, op, "no trends to rank")
	}
	sectorOf := opts.SectorOf
	if sectorOf == nil {
		sectorOf = func(s string) string { return s }
	}

	type acc struct {
		sum float64
		n   int
	}
	interest := map[sectorMonth]*acc{}
	for _, t := range trends {
		sector := sectorOf(t.Sector)
		if sector == "" {
			continue
		}
		k := sectorMonth{sector, t.Month}
		a := interest[k]
		if a == nil {
			a = &acc{}
			interest[k] = a
		}
		if opts.Weighted {
			a.sum += t.Weight * t.Norm
		} else {
			a.sum += t.Norm
		}
		a.n++
	}

	byMonth := map[Month][]SectorExposureRow{}
	for k, a := range interest {
		v := a.sum
		if !opts.Weighted {
			v /= float64(a.n)
		}
		byMonth[k.month] = append(byMonth[k.month], SectorExposureRow{Sector: k.sector, Month: k.month, Interest: v})
	}
	months := make([]Month, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	var out []SectorExposureRow
	for _, m := range months {
		rows := byMonth[m]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Sector < rows[j].Sector })
		if err := rankMonth(rows, edges, &rep, opts.Logger); err != nil {
			return nil, rep, fmt.Errorf("%s: month %s: %w", op, m, err)
		}
		out = append(out, rows...)
	}
	return out, rep, nil
}

func rankMonth(rows []SectorExposureRow, edges []float64, rep *Report, logger zerolog.Logger) error {
	const op = "exposure.Rank"
	month := rows[0].Month.String()
	neg := make([]float64, len(rows))
	for i, r := range rows {
		neg[i] = -r.Interest
	}
	z, err := stats.ZScore(neg)
	if errors.Is(err, stats.ErrZeroVariance) {
		rep.warn(logger, analysiserr.NewWarning(op, "month has no spread in interest; all sectors ranked 0", month))
		for i := range rows {
			rows[i].ZScore, rows[i].Rank = 0, 0
		}
		return nil
	}
	if err != nil {
		return err
	}
	cut, err := stats.QCut(z, edges)
	if err != nil {
		return err
	}
	if cut.Collapsed {
		rep.warn(logger, analysiserr.NewWarning(op,
			fmt.Sprintf("duplicate quantile boundaries collapsed to %d buckets", cut.Buckets()), month))
	}
	for i := range rows {
		rows[i].ZScore = z[i]
		rows[i].Rank = cut.Labels[i]
	}
	return nil
}

// Key identifies a sector in a month.
type Key struct {
	Sector string
	Month  Month
}

// Lookup maps (sector, month) to exposure rank.
type Lookup map[Key]int

// NewLookup indexes ranked rows.
func NewLookup(rows []SectorExposureRow) Lookup {
	l := make(Lookup, len(rows))
	for _, r := range rows {
		l[Key{r.Sector, r.Month}] = r.Rank
	}
	return l
}

// Rank returns the exposure rank of sector in month.
func (l Lookup) Rank(sector string, month Month) (int, bool) {
	r, ok := l[Key{sector, month}]
	return r, ok
}

// Months lists the months present, oldest first.
func (l Lookup) Months() []Month {
	seen := map[Month]struct{}{}
	for k := range l {
		seen[k.Month] = struct{}{}
	}
	out := make([]Month, 0, len(seen))
	for m := range seen {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
