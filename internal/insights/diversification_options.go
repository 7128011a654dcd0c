package insights

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/diversification"
	"github.com/vinodismyname/sectorspace/internal/exposure"
	"github.com/vinodismyname/sectorspace/internal/runtime"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/vinodismyname/sectorspace/pkg/pagination"
)

// DiversificationOptionsInput defines parameters for diversification_options.
type DiversificationOptionsInput struct {
	EdgesSource
	TrendsSource
	Month        string `json:"month,omitempty" validate:"omitempty,month" jsonschema_description:"Only rank this month (YYYY-MM); every month when empty"`
	ExposedRanks []int  `json:"exposed_ranks,omitempty" validate:"omitempty,dive,min=0,max=9" jsonschema_description:"Exposure deciles treated as highly exposed (default 7,8,9)"`
	SafeRanks    []int  `json:"safe_ranks,omitempty" validate:"omitempty,dive,min=0,max=9" jsonschema_description:"Exposure deciles treated as safe targets (default 0,1,2,3)"`
	PageSize     int    `json:"page_size,omitempty" validate:"omitempty,min=1,max=1000" jsonschema_description:"Rows per page"`
	Cursor       string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page; send the same inputs"`
}

// DiversificationOptionsOutput documents the diversification_options response.
type DiversificationOptionsOutput struct {
	Months []string `json:"months"`
	// Skipped lists months without any safe sector.
	Skipped  []string                  `json:"skipped,omitempty"`
	Rows     []diversification.RankRow `json:"rows"`
	Warnings []analysiserr.Warning     `json:"warnings,omitempty"`
	Meta     PageMeta                  `json:"meta"`
}

// Diversifier owns dependencies and effective limits for diversification ranking.
type Diversifier struct {
	Limits runtime.Limits
	Mgr    *datasets.Manager
	Logger zerolog.Logger
}

// Options measures how far each highly exposed sector sits from the safe
// sectors of its month and ranks those distances into quartiles.
func (d *Diversifier) Options(ctx context.Context, in DiversificationOptionsInput) (DiversificationOptionsOutput, error) {
	const op = "insights.diversification_options"
	var out DiversificationOptionsOutput

	exposed, safe := in.ExposedRanks, in.SafeRanks
	if len(exposed) == 0 {
		exposed = config.DefaultExposedRanks
	}
	if len(safe) == 0 {
		safe = config.DefaultSafeRanks
	}

	space, warns, spaceID, err := buildSpace(ctx, d.Mgr, in.EdgesSource, false, d.Logger)
	out.Warnings = warns
	if err != nil {
		return out, err
	}
	res, err := rankExposure(ctx, d.Mgr, in.TrendsSource, d.Logger)
	out.Warnings = append(out.Warnings, res.warnings...)
	if err != nil {
		return out, err
	}
	lookup := exposure.NewLookup(res.rows)

	months := lookup.Months()
	if in.Month != "" {
		m, err := exposure.ParseMonth(in.Month)
		if err != nil {
			return out, analysiserr.Wrap(analysiserr.Validation, op, err)
		}
		if _, ok := indexMonth(months, m); !ok {
			return out, analysiserr.Newf(analysiserr.Validation, op, "month %s has no exposure data", m)
		}
		months = []exposure.Month{m}
	}

	var options []diversification.OptionRow
	for _, m := range months {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		out.Months = append(out.Months, m.String())
		rows, err := diversification.Options(space, lookup, m, exposed, safe)
		if errors.Is(err, analysiserr.ErrDegenerateInput) {
			out.Skipped = append(out.Skipped, m.String())
			continue
		}
		if err != nil {
			return out, err
		}
		options = append(options, rows...)
	}

	ranked, rep, err := diversification.RankMonthly(options, nil, d.Logger)
	out.Warnings = append(out.Warnings, rep.Warnings...)
	if err != nil {
		return out, err
	}

	pg, err := newPager("diversification_options", pagination.HashInputs(spaceID, res.rid), in, in.Cursor, in.PageSize, d.Limits.PageSize)
	if err != nil {
		return out, err
	}
	out.Rows, out.Meta, err = page(pg, ranked)
	return out, err
}

func indexMonth(months []exposure.Month, m exposure.Month) (int, bool) {
	for i, x := range months {
		if x == m {
			return i, true
		}
	}
	return -1, false
}
