package insights

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/complexity"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/internal/runtime"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/vinodismyname/sectorspace/pkg/pagination"
)

// ComplexityProfileInput defines parameters for complexity_profile.
type ComplexityProfileInput struct {
	Path         string  `json:"path" validate:"required,filepath_ext" jsonschema_description:"Activity table (.xlsx or .csv) with one row per location and sector"`
	Sheet        string  `json:"sheet,omitempty" jsonschema_description:"Worksheet name; first sheet when empty"`
	LocationCol  string  `json:"location_col,omitempty" jsonschema_description:"Location code column (default location)"`
	NameCol      string  `json:"name_col,omitempty" jsonschema_description:"Optional location name column"`
	SectorCol    string  `json:"sector_col,omitempty" jsonschema_description:"Sector code column (default sector)"`
	ValueCol     string  `json:"value_col,omitempty" jsonschema_description:"Activity value column (default value)"`
	Entity       string  `json:"entity,omitempty" validate:"omitempty,oneof=locations sectors" jsonschema_description:"Profile locations (ECI) or sectors (PCI); default locations"`
	RCAThreshold float64 `json:"rca_threshold,omitempty" validate:"omitempty,gt=0" jsonschema_description:"Location quotient above which a sector counts as specialised (default 1)"`
	PageSize     int     `json:"page_size,omitempty" validate:"omitempty,min=1,max=1000" jsonschema_description:"Rows per page"`
	Cursor       string  `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page; send the same inputs"`
}

// ProfileRow is one location or sector with its complexity and diversity.
type ProfileRow struct {
	complexity.SummaryRow
	// Active and RCA are only filled for locations.
	Active int `json:"n_active,omitempty"`
	RCA    int `json:"n_rca,omitempty"`
}

// ComplexityProfileOutput documents the complexity_profile response.
type ComplexityProfileOutput struct {
	Path      string                `json:"path"`
	Entity    string                `json:"entity"`
	Locations int                   `json:"locations"`
	Sectors   int                   `json:"sectors"`
	Rows      []ProfileRow          `json:"rows"`
	Warnings  []analysiserr.Warning `json:"warnings,omitempty"`
	Meta      PageMeta              `json:"meta"`
}

// Profiler owns dependencies and effective limits for complexity profiles.
type Profiler struct {
	Limits runtime.Limits
	Mgr    *datasets.Manager
	Logger zerolog.Logger
}

// Profile ranks the locations (or sectors) of an activity table by
// economic complexity and outlook.
func (p *Profiler) Profile(ctx context.Context, in ComplexityProfileInput) (ComplexityProfileOutput, error) {
	entity := orDefault(in.Entity, "locations")
	out := ComplexityProfileOutput{Entity: entity}

	t, err := p.Mgr.Load(ctx, in.Path, in.Sheet)
	if err != nil {
		return out, err
	}
	out.Path = t.Path

	records, warns, err := datasets.Activity(t, config.ActivityColumns{
		Location: orDefault(in.LocationCol, "location"),
		Name:     in.NameCol,
		Sector:   orDefault(in.SectorCol, "sector"),
		Value:    orDefault(in.ValueCol, "value"),
	})
	if err != nil {
		return out, err
	}
	out.Warnings = warns

	x, err := matrix.Build(records, matrix.BuildOptions{Order: matrix.OrderSorted})
	if err != nil {
		return out, err
	}
	out.Locations, out.Sectors = x.Dims()

	opts := complexity.DefaultOptions()
	if in.RCAThreshold > 0 {
		opts.Threshold = in.RCAThreshold
	}
	opts.Logger = p.Logger

	summary, rep, err := complexity.Summarize(x, complexity.SummaryOptions{Options: opts, Transpose: entity == "sectors"})
	if err != nil {
		return out, err
	}
	out.Warnings = append(out.Warnings, rep.Warnings...)

	rows := make([]ProfileRow, len(summary))
	for i, s := range summary {
		rows[i] = ProfileRow{SummaryRow: s}
	}
	if entity == "locations" {
		for i, d := range complexity.SimpleDiversity(x, opts.Threshold) {
			rows[i].Active, rows[i].RCA = d.Active, d.RCA
		}
	}

	pg, err := newPager("complexity_profile", pagination.HashInputs(t.Path, t.Sheet), in, in.Cursor, in.PageSize, p.Limits.PageSize)
	if err != nil {
		return out, err
	}
	out.Rows, out.Meta, err = page(pg, rows)
	return out, err
}
