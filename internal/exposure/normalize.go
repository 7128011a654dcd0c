package exposure

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// Observation is one raw search-volume reading for a keyword linked to a sector.
type Observation struct {
	Keyword string
	Sector  string
	Date    time.Time
	Volume  float64
}

// Salience is the weight of a keyword for a sector.
type Salience struct {
	Keyword  string
	Sector   string
	Salience float64
}

// Trend is a keyword's monthly search volume rescaled by its baseline-year value.
type Trend struct {
	Keyword string  `json:"keyword"`
	Sector  string  `json:"sector"`
	Month   Month   `json:"month"`
	Volume  float64 `json:"volume"`
	Norm    float64 `json:"norm"`
	// Weight is the salience×volume share of the keyword within its (sector, month).
	Weight float64 `json:"weight"`
}

// NormalizeOptions configures Normalize.
type NormalizeOptions struct {
	BaselineYear int
	StopWords    []string
	Logger       zerolog.Logger
}

type trendKey struct {
	keyword, sector string
	month           Month
}

type baselineKey struct {
	keyword, sector string
	month           time.Month
}

// Report lists the data-quality warnings raised by an exposure stage.
type Report struct {
	Warnings []analysiserr.Warning `json:"warnings,omitempty"`
}

func (r *Report) warn(logger zerolog.Logger, w analysiserr.Warning) {
	r.Warnings = append(r.Warnings, w)
	logger.Warn().Str("op", w.Op).Strs("labels", w.Labels).Msg(w.Message)
}

// Normalize averages observations per (keyword, sector, month) and divides each
// month after the baseline year by the same calendar month of the baseline
// year. Only positive volumes are kept on both sides; keywords without a
// baseline for a month are skipped and reported.
func Normalize(obs []Observation, opts NormalizeOptions) ([]Trend, Report, error) {
	const op = "exposure.Normalize"
	var rep Report
	if opts.BaselineYear == 0 {
		opts.BaselineYear = config.DefaultBaselineYear
	}
	stop := make(map[string]struct{}, len(opts.StopWords))
	for _, w := range opts.StopWords {
		stop[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}

	type acc struct {
		sum float64
		n   int
	}
	monthly := map[trendKey]*acc{}
	for _, o := range obs {
		if o.Keyword == "" || o.Sector == "" || o.Date.IsZero() {
			continue
		}
		if _, skip := stop[strings.ToLower(o.Keyword)]; skip {
			continue
		}
		k := trendKey{o.Keyword, o.Sector, MonthOf(o.Date)}
		a := monthly[k]
		if a == nil {
			a = &acc{}
			monthly[k] = a
		}
		a.sum += o.Volume
		a.n++
	}
	if len(monthly) == 0 {
		return nil, rep, analysiserr.Newf(analysiserr.Validation, op, "no usable observations")
	}

	baseline := map[baselineKey]float64{}
	for k, a := range monthly {
		v := a.sum / float64(a.n)
		if k.month.Year == opts.BaselineYear && v > 0 {
			baseline[baselineKey{k.keyword, k.sector, k.month.Month}] = v
		}
	}

	var out []Trend
	missing := map[string]struct{}{}
	for k, a := range monthly {
		if k.month.Year <= opts.BaselineYear {
			continue
		}
		v := a.sum / float64(a.n)
		if v <= 0 {
			continue
		}
		base, ok := baseline[baselineKey{k.keyword, k.sector, k.month.Month}]
		if !ok {
			missing[k.keyword+"/"+k.sector+"@"+k.month.String()] = struct{}{}
			continue
		}
		out = append(out, Trend{Keyword: k.keyword, Sector: k.sector, Month: k.month, Volume: v, Norm: v / base})
	}
	if len(missing) > 0 {
		labels := make([]string, 0, len(missing))
		for l := range missing {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		rep.warn(opts.Logger, analysiserr.NewWarning(op, "keyword months without a baseline were skipped", labels...))
	}
	sortTrends(out)
	return out, rep, nil
}

// Weight joins trends with keyword salience and sets each trend's weight to
// its salience×volume share within (sector, month). Trends without salience are dropped.
func Weight(trends []Trend, salience []Salience) []Trend {
	type key struct{ keyword, sector string }
	sal := make(map[key]float64, len(salience))
	for _, s := range salience {
		sal[key{s.Keyword, s.Sector}] = s.Salience
	}
	type group struct {
		sector string
		month  Month
	}
	totals := map[group]float64{}
	var out []Trend
	for _, t := range trends {
		s, ok := sal[key{t.Keyword, t.Sector}]
		if !ok {
			continue
		}
		t.Weight = s * t.Volume
		totals[group{t.Sector, t.Month}] += t.Weight
		out = append(out, t)
	}
	for i := range out {
		total := totals[group{out[i].Sector, out[i].Month}]
		if total == 0 {
			out[i].Weight = 0
			continue
		}
		out[i].Weight /= total
	}
	return out
}

func sortTrends(ts []Trend) {
	sort.Slice(ts, func(i, j int) bool {
		a, b := ts[i], ts[j]
		if a.Month != b.Month {
			return a.Month.Before(b.Month)
		}
		if a.Sector != b.Sector {
			return a.Sector < b.Sector
		}
		return a.Keyword < b.Keyword
	})
}
