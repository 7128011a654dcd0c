package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/complexity"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/diversification"
	"github.com/vinodismyname/sectorspace/internal/exposure"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/internal/sectorspace"
	"github.com/vinodismyname/sectorspace/internal/sic"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"golang.org/x/sync/errgroup"
)

// results holds every intermediate product of a run.
type results struct {
	taxonomy *sic.Taxonomy
	activity []matrix.Record
	obs      []exposure.Observation
	salience []exposure.Salience
	edges    []sectorspace.Edge

	x           *matrix.Matrix
	locations   []complexity.SummaryRow
	sectors     []complexity.SummaryRow
	fitness     matrix.Vector
	fitnessPlus matrix.Vector
	diversity   []complexity.DiversityRow
	units       []complexity.UnitRow

	trends   []exposure.Trend
	exposure []exposure.SectorExposureRow
	sections []exposure.SectorExposureRow
	lookup   exposure.Lookup

	space     *sectorspace.Space
	neighbors []sectorspace.NeighborRow

	options []diversification.OptionRow
	ranks   []diversification.RankRow

	exposureShares []exposure.ShareRow
	highExposure   []exposure.LevelShareRow
	lowDiversity   []exposure.LevelShareRow
}

func (s *run) read(ctx context.Context, role string, src config.TableSource) (*datasets.Table, error) {
	t, err := s.tables.Load(ctx, src.Path, src.Sheet)
	if err != nil {
		return nil, fmt.Errorf("%s table: %w", role, err)
	}
	s.manifest.Inputs = append(s.manifest.Inputs, InputSummary{Role: role, Path: t.Path, Sheet: t.Sheet, Rows: t.Len()})
	return t, nil
}

func (s *run) load(ctx context.Context) ([]analysiserr.Warning, error) {
	in := s.cfg.Inputs
	var warns []analysiserr.Warning

	if in.Taxonomy.Configured() {
		path := in.Taxonomy.Path
		if s.paths != nil {
			p, err := s.paths.ValidateOpenPath(path)
			if err != nil {
				return nil, fmt.Errorf("taxonomy: %w", err)
			}
			path = p
		}
		tx, err := sic.Load(path)
		if err != nil {
			return nil, err
		}
		s.res.taxonomy = tx
		s.manifest.Inputs = append(s.manifest.Inputs, InputSummary{Role: "taxonomy", Path: path, Rows: len(tx.Divisions())})
	}

	t, err := s.read(ctx, "activity", in.Activity.TableSource)
	if err != nil {
		return nil, err
	}
	activity, w, err := datasets.Activity(t, in.Activity.Columns)
	if err != nil {
		return nil, err
	}
	warns = append(warns, w...)
	if in.Activity.SICClasses {
		var unknown []string
		activity, unknown = s.res.taxonomy.AggregateClasses(activity)
		if len(unknown) > 0 {
			warns = append(warns, analysiserr.NewWarning("pipeline.load",
				fmt.Sprintf("dropped %d unknown SIC class code(s)", len(unknown)), unknown...))
		}
	}
	s.res.activity = activity

	if t, err = s.read(ctx, "trends", in.Trends.TableSource); err != nil {
		return nil, err
	}
	if s.res.obs, w, err = datasets.Observations(t, in.Trends.Columns); err != nil {
		return nil, err
	}
	warns = append(warns, w...)

	if in.Salience.Configured() {
		if t, err = s.read(ctx, "salience", in.Salience.TableSource); err != nil {
			return nil, err
		}
		if s.res.salience, w, err = datasets.Saliences(t, in.Salience.Columns); err != nil {
			return nil, err
		}
		warns = append(warns, w...)
	}

	// A precomputed edge list wins over raw predictions.
	if in.Edges.Configured() {
		if t, err = s.read(ctx, "edges", in.Edges.TableSource); err != nil {
			return nil, err
		}
		if s.res.edges, w, err = datasets.Edges(t, in.Edges.Columns); err != nil {
			return nil, err
		}
		warns = append(warns, w...)
	} else {
		if t, err = s.read(ctx, "predictions", in.Predictions.TableSource); err != nil {
			return nil, err
		}
		pred, err := datasets.Predictions(t, in.Predictions.ID)
		if err != nil {
			return nil, err
		}
		sets := sectorspace.ExtractSectors(pred, s.cfg.SectorSpace.PredictionThreshold)
		s.res.edges = sectorspace.CoOccurrence(sets)
	}
	return warns, nil
}

func (s *run) complexityOptions() complexity.Options {
	c := s.cfg.Complexity
	return complexity.Options{
		Threshold:     c.RCAThreshold,
		ImagTolerance: c.ImagTolerance,
		GapTolerance:  c.GapTolerance,
		Logger:        s.logger,
	}
}

func (s *run) complexity(ctx context.Context) ([]analysiserr.Warning, error) {
	order, err := matrix.ParseOrder(s.cfg.Inputs.Activity.Order)
	if err != nil {
		return nil, err
	}
	agg := map[string]matrix.AggregateFunc{"sum": matrix.Sum, "mean": matrix.Mean, "max": matrix.Max}
	x, err := matrix.Build(s.res.activity, matrix.BuildOptions{
		Aggregate: agg[s.cfg.Inputs.Activity.Aggregate],
		Order:     order,
	})
	if err != nil {
		return nil, err
	}
	s.res.x = x
	rows, cols := x.Dims()
	s.manifest.Counts.Locations, s.manifest.Counts.Sectors = rows, cols

	opts := s.complexityOptions()
	s.res.diversity = complexity.SimpleDiversity(x, opts.Threshold)

	var warns []analysiserr.Warning
	// Summaries and unit profiles record degenerate indices as warnings;
	// the fitness metrics still return them as errors.
	degenerate := func(what string, err error) error {
		if errors.Is(err, analysiserr.ErrDegenerateInput) {
			w := analysiserr.NewWarning("pipeline.complexity", fmt.Sprintf("%s skipped: %v", what, err))
			w.Code = analysiserr.DegenerateInput
			warns = append(warns, w)
			s.logger.Warn().Str("run_id", s.id).Err(err).Msg(what + " skipped")
			return nil
		}
		return err
	}

	locs, rep, err := complexity.Summarize(x, complexity.SummaryOptions{Options: opts})
	if err := degenerate("location summary", err); err != nil {
		return warns, err
	}
	s.res.locations = locs
	warns = append(warns, rep.Warnings...)

	secs, rep, err := complexity.Summarize(x, complexity.SummaryOptions{Options: opts, Transpose: true})
	if err := degenerate("sector summary", err); err != nil {
		return warns, err
	}
	s.res.sectors = secs
	warns = append(warns, rep.Warnings...)

	fit, rep, err := complexity.Fitness(complexity.RCA(x, opts.Threshold), s.cfg.Complexity.FitnessIters)
	if err := degenerate("fitness", err); err != nil {
		return warns, err
	}
	s.res.fitness = fit
	warns = append(warns, rep.Warnings...)

	fitPlus, rep, err := complexity.FitnessPlus(x, s.cfg.Complexity.FitnessIters, true)
	if err := degenerate("fitness plus", err); err != nil {
		return warns, err
	}
	s.res.fitnessPlus = fitPlus
	warns = append(warns, rep.Warnings...)

	units, rep, err := complexity.UnitProfile(x, opts)
	if err := degenerate("unit profile", err); err != nil {
		return warns, err
	}
	s.res.units = units
	warns = append(warns, rep.Warnings...)
	return warns, nil
}

func (s *run) exposure(ctx context.Context) ([]analysiserr.Warning, error) {
	e := s.cfg.Exposure
	trends, rep, err := exposure.Normalize(s.res.obs, exposure.NormalizeOptions{
		BaselineYear: e.BaselineYear,
		StopWords:    e.StopWords,
		Logger:       s.logger,
	})
	warns := rep.Warnings
	if err != nil {
		return warns, err
	}

	weighted := e.Weighted
	if weighted && len(s.res.salience) == 0 {
		warns = append(warns, analysiserr.NewWarning("pipeline.exposure",
			"weighted exposure requested without a salience table; using unweighted means"))
		weighted = false
	}
	if weighted {
		trends = exposure.Weight(trends, s.res.salience)
	}
	s.res.trends = trends

	ranked, rep, err := exposure.Rank(trends, exposure.RankOptions{
		Weighted: weighted,
		Edges:    e.Quantiles,
		Logger:   s.logger,
	})
	warns = append(warns, rep.Warnings...)
	if err != nil {
		return warns, err
	}
	s.res.exposure = ranked
	s.res.lookup = exposure.NewLookup(ranked)
	s.manifest.Counts.Months = len(s.res.lookup.Months())

	if e.SectorLevel == "section" {
		tx := s.res.taxonomy
		sections, rep, err := exposure.Rank(trends, exposure.RankOptions{
			Weighted: weighted,
			Edges:    e.Quantiles,
			SectorOf: func(division string) string {
				if sec, ok := tx.SectionOf(division); ok {
					return tx.SectionName(sec)
				}
				return division
			},
			Logger: s.logger,
		})
		warns = append(warns, rep.Warnings...)
		if err != nil {
			return warns, err
		}
		s.res.sections = sections
	}
	return warns, nil
}

func (s *run) network(ctx context.Context) ([]analysiserr.Warning, error) {
	c := s.cfg.SectorSpace
	space, err := sectorspace.Build(s.res.edges, sectorspace.Options{
		ExtraEdges:       c.ExtraEdges,
		Layout:           c.Layout,
		LayoutIterations: c.LayoutIterations,
		Logger:           s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.res.space = space
	s.manifest.Counts.NetworkNodes = len(space.Labels())
	s.manifest.Counts.TreeEdges = space.TreeEdges
	s.manifest.Counts.ExtraEdges = space.ExtraEdges

	var warns []analysiserr.Warning
	var missing []string
	for _, sec := range s.res.x.ColKeys() {
		if !space.Has(sec) {
			missing = append(missing, sec)
		}
	}
	if len(missing) > 0 {
		warns = append(warns, analysiserr.NewWarning("pipeline.sector_space",
			fmt.Sprintf("%d activity sector(s) absent from the sector space", len(missing)), missing...))
	}
	return warns, nil
}

// months returns the exposure months to diversify, restricted to the
// configured list when one is given.
func (s *run) months() ([]exposure.Month, error) {
	all := s.res.lookup.Months()
	if len(s.cfg.Diversification.Months) == 0 {
		return all, nil
	}
	want := map[exposure.Month]bool{}
	for _, m := range s.cfg.Diversification.Months {
		pm, err := exposure.ParseMonth(m)
		if err != nil {
			return nil, analysiserr.Wrap(analysiserr.Validation, "pipeline.months", err)
		}
		want[pm] = true
	}
	var out []exposure.Month
	for _, m := range all {
		if want[m] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *run) diversify(ctx context.Context, workers int) ([]analysiserr.Warning, error) {
	const op = "pipeline.diversification"
	d := s.cfg.Diversification
	months, err := s.months()
	if err != nil {
		return nil, err
	}

	perMonth := make([][]diversification.OptionRow, len(months))
	skipped := make([]error, len(months))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, m := range months {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rows, err := diversification.Options(s.res.space, s.res.lookup, m, d.ExposedRanks, d.SafeRanks)
			if errors.Is(err, analysiserr.ErrDegenerateInput) {
				skipped[i] = err
				return nil
			}
			if err != nil {
				return fmt.Errorf("month %s: %w", m, err)
			}
			perMonth[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var warns []analysiserr.Warning
	for i, err := range skipped {
		if err != nil {
			w := analysiserr.NewWarning(op, "month skipped: no safe sectors", months[i].String())
			w.Code = analysiserr.DegenerateInput
			warns = append(warns, w)
			s.logger.Warn().Str("run_id", s.id).Str("month", months[i].String()).Msg(w.Message)
		}
	}
	for _, rows := range perMonth {
		s.res.options = append(s.res.options, rows...)
	}
	s.manifest.Counts.ExposedSectors = len(s.res.options)

	ranked, rep, err := diversification.RankMonthly(s.res.options, d.Quantiles, s.logger)
	warns = append(warns, rep.Warnings...)
	if err != nil {
		return warns, err
	}
	s.res.ranks = ranked
	s.manifest.Counts.DiversifiedRows = len(ranked)

	for _, m := range months {
		s.res.neighbors = append(s.res.neighbors, sectorspace.NeighborShares(s.res.space, s.res.lookup, m)...)
	}
	return warns, nil
}

func (s *run) shares(ctx context.Context) ([]analysiserr.Warning, error) {
	s.res.exposureShares = exposure.Shares(s.res.activity, s.res.lookup)
	s.res.highExposure = exposure.HighExposureShares(s.res.exposureShares, s.cfg.Exposure.HighExposureLevel)
	s.res.lowDiversity = diversification.LowDiversificationShares(
		s.res.activity, s.res.lookup, s.res.ranks, s.cfg.Diversification.LowDiversityLevel)
	return nil, nil
}
