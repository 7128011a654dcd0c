package insights

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/exposure"
	"github.com/vinodismyname/sectorspace/internal/runtime"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/vinodismyname/sectorspace/pkg/pagination"
)

// TrendsSource locates a keyword search-interest table and its columns.
type TrendsSource struct {
	TrendsPath    string `json:"trends_path" validate:"required,filepath_ext" jsonschema_description:"Search-interest table (.xlsx or .csv): keyword, sector, date, volume"`
	TrendsSheet   string `json:"trends_sheet,omitempty" jsonschema_description:"Worksheet name; first sheet when empty"`
	KeywordCol    string `json:"keyword_col,omitempty" jsonschema_description:"Keyword column (default keyword)"`
	SectorCol     string `json:"sector_col,omitempty" jsonschema_description:"Sector code column (default sector)"`
	DateCol       string `json:"date_col,omitempty" jsonschema_description:"Observation date column (default date)"`
	VolumeCol     string `json:"volume_col,omitempty" jsonschema_description:"Search volume column (default volume)"`
	SaliencePath  string `json:"salience_path,omitempty" validate:"omitempty,filepath_ext" jsonschema_description:"Optional keyword salience table (keyword, sector, salience); weights the exposure when given"`
	SalienceSheet string `json:"salience_sheet,omitempty" jsonschema_description:"Salience worksheet name"`
	BaselineYear  int    `json:"baseline_year,omitempty" validate:"omitempty,min=1900,max=2100" jsonschema_description:"Year whose same-month volume normalises each keyword (default 2019)"`
}

// exposureResult is a ranked exposure table with its provenance.
type exposureResult struct {
	rows     []exposure.SectorExposureRow
	weighted bool
	warnings []analysiserr.Warning
	// rid identifies the tables the ranking was computed from.
	rid string
}

// rankExposure loads the trends (and salience) tables and ranks every
// sector within each month.
func rankExposure(ctx context.Context, mgr *datasets.Manager, src TrendsSource, logger zerolog.Logger) (exposureResult, error) {
	var res exposureResult
	t, err := mgr.Load(ctx, src.TrendsPath, src.TrendsSheet)
	if err != nil {
		return res, err
	}
	ids := []string{t.Path, t.Sheet}

	obs, warns, err := datasets.Observations(t, config.TrendColumns{
		Keyword: orDefault(src.KeywordCol, "keyword"),
		Sector:  orDefault(src.SectorCol, "sector"),
		Date:    orDefault(src.DateCol, "date"),
		Volume:  orDefault(src.VolumeCol, "volume"),
	})
	if err != nil {
		return res, err
	}
	res.warnings = warns

	baseline := src.BaselineYear
	if baseline == 0 {
		baseline = config.DefaultBaselineYear
	}
	trends, rep, err := exposure.Normalize(obs, exposure.NormalizeOptions{BaselineYear: baseline, Logger: logger})
	res.warnings = append(res.warnings, rep.Warnings...)
	if err != nil {
		return res, err
	}

	if src.SaliencePath != "" {
		st, err := mgr.Load(ctx, src.SaliencePath, src.SalienceSheet)
		if err != nil {
			return res, err
		}
		ids = append(ids, st.Path, st.Sheet)
		sal, warns, err := datasets.Saliences(st, config.SalienceColumns{Keyword: "keyword", Sector: "sector", Salience: "salience"})
		if err != nil {
			return res, err
		}
		res.warnings = append(res.warnings, warns...)
		trends = exposure.Weight(trends, sal)
		res.weighted = true
	}

	rows, rep, err := exposure.Rank(trends, exposure.RankOptions{Weighted: res.weighted, Logger: logger})
	res.warnings = append(res.warnings, rep.Warnings...)
	if err != nil {
		return res, err
	}
	res.rows = rows
	res.rid = pagination.HashInputs(ids...)
	return res, nil
}

// SectorExposureInput defines parameters for sector_exposure.
type SectorExposureInput struct {
	TrendsSource
	Month    string `json:"month,omitempty" validate:"omitempty,month" jsonschema_description:"Only return this month (YYYY-MM)"`
	MinRank  int    `json:"min_rank,omitempty" validate:"omitempty,min=0,max=9" jsonschema_description:"Only return sectors at or above this exposure decile"`
	PageSize int    `json:"page_size,omitempty" validate:"omitempty,min=1,max=1000" jsonschema_description:"Rows per page"`
	Cursor   string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page; send the same inputs"`
}

// SectorExposureOutput documents the sector_exposure response.
type SectorExposureOutput struct {
	Months   []string                     `json:"months"`
	Weighted bool                         `json:"weighted"`
	Rows     []exposure.SectorExposureRow `json:"rows"`
	Warnings []analysiserr.Warning        `json:"warnings,omitempty"`
	Meta     PageMeta                     `json:"meta"`
}

// ExposureRanker owns dependencies and effective limits for exposure ranking.
type ExposureRanker struct {
	Limits runtime.Limits
	Mgr    *datasets.Manager
	Logger zerolog.Logger
}

// Rank returns the per-month exposure deciles of every sector, ordered by
// month and then sector.
func (r *ExposureRanker) Rank(ctx context.Context, in SectorExposureInput) (SectorExposureOutput, error) {
	var out SectorExposureOutput
	res, err := rankExposure(ctx, r.Mgr, in.TrendsSource, r.Logger)
	out.Warnings = res.warnings
	if err != nil {
		return out, err
	}
	out.Weighted = res.weighted

	var month exposure.Month
	if in.Month != "" {
		if month, err = exposure.ParseMonth(in.Month); err != nil {
			return out, analysiserr.Wrap(analysiserr.Validation, "insights.sector_exposure", err)
		}
	}

	lookup := exposure.NewLookup(res.rows)
	for _, m := range lookup.Months() {
		out.Months = append(out.Months, m.String())
	}

	var rows []exposure.SectorExposureRow
	for _, row := range res.rows {
		if in.Month != "" && row.Month != month {
			continue
		}
		if row.Rank < in.MinRank {
			continue
		}
		rows = append(rows, row)
	}

	pg, err := newPager("sector_exposure", res.rid, in, in.Cursor, in.PageSize, r.Limits.PageSize)
	if err != nil {
		return out, err
	}
	out.Rows, out.Meta, err = page(pg, rows)
	return out, err
}
