// Package diversification measures how close exposed sectors sit to safe
// ones in the sector space, and how much local activity lies in sectors with
// few nearby alternatives.
package diversification

import (
	"sort"

	"github.com/vinodismyname/sectorspace/internal/exposure"
	"github.com/vinodismyname/sectorspace/internal/sectorspace"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// OptionRow is the hop distance from an exposed sector to the safe sectors.
type OptionRow struct {
	Sector string         `json:"sector"`
	Month  exposure.Month `json:"month"`
	Mean   float64        `json:"mean"`
	Min    int            `json:"min"`
}

// Options computes, for every sector whose exposure rank in month is in
// exposed, the mean and minimum hop count to the sectors whose rank is in
// safe. Rows are sorted by sector.
//
// A safe sector that cannot be reached is an Unreachable error: the space is
// built on a spanning tree, so this indicates a construction defect. Ranked
// sectors missing from the space are an Alignment error.
func Options(space *sectorspace.Space, ranks exposure.Lookup, month exposure.Month, exposed, safe []int) ([]OptionRow, error) {
	const op = "diversification.Options"
	if len(exposed) == 0 || len(safe) == 0 {
		return nil, analysiserr.Newf(analysiserr.Validation, op, "exposed and safe rank sets must be non-empty")
	}
	exposedSet, safeSet := toSet(exposed), toSet(safe)
	for r := range exposedSet {
		if _, ok := safeSet[r]; ok {
			return nil, analysiserr.Newf(analysiserr.Validation, op, "rank %d is both exposed and safe", r)
		}
	}

	var exposedSectors, safeSectors []string
	for k, r := range ranks {
		if k.Month != month {
			continue
		}
		if _, ok := exposedSet[r]; ok {
			exposedSectors = append(exposedSectors, k.Sector)
		}
		if _, ok := safeSet[r]; ok {
			safeSectors = append(safeSectors, k.Sector)
		}
	}
	sort.Strings(exposedSectors)
	sort.Strings(safeSectors)
	if len(exposedSectors) == 0 {
		return nil, nil
	}
	if len(safeSectors) == 0 {
		return nil, analysiserr.Newf(analysiserr.DegenerateInput, op, "no safe sectors in %s", month)
	}
	for _, s := range safeSectors {
		if !space.Has(s) {
			return nil, analysiserr.Newf(analysiserr.Alignment, op, "safe sector %q is not in the sector space", s)
		}
	}

	out := make([]OptionRow, 0, len(exposedSectors))
	for _, e := range exposedSectors {
		dist, ok := space.HopDistances(e)
		if !ok {
			return nil, analysiserr.Newf(analysiserr.Alignment, op, "exposed sector %q is not in the sector space", e)
		}
		row := OptionRow{Sector: e, Month: month, Min: -1}
		var sum int
		for _, s := range safeSectors {
			d, ok := dist[s]
			if !ok {
				return nil, analysiserr.Newf(analysiserr.Unreachable, op, "no path from %q to %q", e, s)
			}
			sum += d
			if row.Min < 0 || d < row.Min {
				row.Min = d
			}
		}
		row.Mean = float64(sum) / float64(len(safeSectors))
		out = append(out, row)
	}
	return out, nil
}

func toSet(xs []int) map[int]struct{} {
	s := make(map[int]struct{}, len(xs))
	for _, x := range xs {
		s[x] = struct{}{}
	}
	return s
}
