package insights

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/runtime"
	"github.com/vinodismyname/sectorspace/internal/sectorspace"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/vinodismyname/sectorspace/pkg/pagination"
)

// EdgesSource locates a weighted sector edge list.
type EdgesSource struct {
	EdgesPath  string `json:"edges_path" validate:"required,filepath_ext" jsonschema_description:"Sector co-occurrence edge list (.xlsx or .csv): a, b, weight"`
	EdgesSheet string `json:"edges_sheet,omitempty" jsonschema_description:"Worksheet name; first sheet when empty"`
	ACol       string `json:"a_col,omitempty" jsonschema_description:"First sector column (default a)"`
	BCol       string `json:"b_col,omitempty" jsonschema_description:"Second sector column (default b)"`
	WeightCol  string `json:"weight_col,omitempty" jsonschema_description:"Edge weight column (default weight)"`
	ExtraEdges *int   `json:"extra_edges,omitempty" validate:"omitempty,min=0" jsonschema_description:"Strongest non-tree edges added to the spanning tree (default 100)"`
}

// buildSpace loads an edge list and builds the sector space from it.
func buildSpace(ctx context.Context, mgr *datasets.Manager, src EdgesSource, layout bool, logger zerolog.Logger) (*sectorspace.Space, []analysiserr.Warning, string, error) {
	t, err := mgr.Load(ctx, src.EdgesPath, src.EdgesSheet)
	if err != nil {
		return nil, nil, "", err
	}
	edges, warns, err := datasets.Edges(t, config.EdgeColumns{
		A:      orDefault(src.ACol, "a"),
		B:      orDefault(src.BCol, "b"),
		Weight: orDefault(src.WeightCol, "weight"),
	})
	if err != nil {
		return nil, warns, "", err
	}
	opts := sectorspace.DefaultOptions()
	opts.Layout = layout
	opts.Logger = logger
	if src.ExtraEdges != nil {
		opts.ExtraEdges = *src.ExtraEdges
	}
	space, err := sectorspace.Build(edges, opts)
	if err != nil {
		return nil, warns, "", err
	}
	return space, warns, pagination.HashInputs(t.Path, t.Sheet), nil
}

// SectorSpaceInput defines parameters for sector_space.
type SectorSpaceInput struct {
	EdgesSource
	View     string `json:"view,omitempty" validate:"omitempty,oneof=edges nodes" jsonschema_description:"Page through edges (default) or nodes with layout positions"`
	Layout   bool   `json:"layout,omitempty" jsonschema_description:"Compute Kamada-Kawai node positions (nodes view)"`
	PageSize int    `json:"page_size,omitempty" validate:"omitempty,min=1,max=1000" jsonschema_description:"Rows per page"`
	Cursor   string `json:"cursor,omitempty" validate:"omitempty,cursor" jsonschema_description:"Opaque cursor from a previous page; send the same inputs"`
}

// NodeRow is one sector of the space.
type NodeRow struct {
	Sector string   `json:"sector"`
	Degree int      `json:"degree"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
}

// SectorSpaceOutput documents the sector_space response. Exactly one of
// Edges and Nodes is filled, per the requested view.
type SectorSpaceOutput struct {
	View       string                `json:"view"`
	NodeCount  int                   `json:"node_count"`
	TreeEdges  int                   `json:"tree_edges"`
	ExtraEdges int                   `json:"extra_edges"`
	Edges      []sectorspace.Edge    `json:"edges,omitempty"`
	Nodes      []NodeRow             `json:"nodes,omitempty"`
	Warnings   []analysiserr.Warning `json:"warnings,omitempty"`
	Meta       PageMeta              `json:"meta"`
}

// SpaceBuilder owns dependencies and effective limits for sector-space builds.
type SpaceBuilder struct {
	Limits runtime.Limits
	Mgr    *datasets.Manager
	Logger zerolog.Logger
}

// Build returns the maximum spanning tree plus extra edges of an edge list.
func (b *SpaceBuilder) Build(ctx context.Context, in SectorSpaceInput) (SectorSpaceOutput, error) {
	out := SectorSpaceOutput{View: orDefault(in.View, "edges")}
	space, warns, rid, err := buildSpace(ctx, b.Mgr, in.EdgesSource, in.Layout && out.View == "nodes", b.Logger)
	out.Warnings = warns
	if err != nil {
		return out, err
	}
	out.NodeCount = len(space.Labels())
	out.TreeEdges, out.ExtraEdges = space.TreeEdges, space.ExtraEdges

	pg, err := newPager("sector_space."+out.View, rid, in, in.Cursor, in.PageSize, b.Limits.PageSize)
	if err != nil {
		return out, err
	}
	if out.View == "edges" {
		out.Edges, out.Meta, err = page(pg, space.Edges())
		return out, err
	}

	labels := space.Labels()
	nodes := make([]NodeRow, len(labels))
	for i, l := range labels {
		nodes[i] = NodeRow{Sector: l, Degree: len(space.Neighbors(l))}
		if p, ok := space.Positions[l]; ok {
			nodes[i].X, nodes[i].Y = &p.X, &p.Y
		}
	}
	out.Nodes, out.Meta, err = page(pg, nodes)
	return out, err
}
