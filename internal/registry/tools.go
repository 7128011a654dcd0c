package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/insights"
	"github.com/vinodismyname/sectorspace/internal/pipeline"
	"github.com/vinodismyname/sectorspace/internal/runtime"
	"github.com/vinodismyname/sectorspace/internal/security"
	"github.com/vinodismyname/sectorspace/internal/telemetry"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/vinodismyname/sectorspace/pkg/validation"
)

// Deps carries the shared services the analysis tools run against.
type Deps struct {
	Limits runtime.Limits
	Tables *datasets.Manager
	Hooks  *telemetry.Hooks
	Logger zerolog.Logger
}

func sessionID(ctx context.Context) string {
	if s := server.ClientSessionFromContext(ctx); s != nil {
		return s.SessionID()
	}
	return ""
}

// toolError maps engine and allow-list failures onto coded tool errors.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return analysiserr.New(analysiserr.Timeout, "")
	case errors.Is(err, security.ErrNotAllowed):
		return analysiserr.New(analysiserr.PermissionDenied, err.Error())
	case errors.Is(err, security.ErrUnsupportedExtension):
		return analysiserr.New(analysiserr.UnsupportedFormat, err.Error())
	case errors.Is(err, security.ErrNotFound):
		return analysiserr.New(analysiserr.OpenFailed, err.Error())
	}
	return analysiserr.ToolResult(err)
}

// typed validates the input, runs the service and attaches a concise text
// summary for clients ignoring structured output.
func typed[In, Out any](name string, hooks *telemetry.Hooks, run func(context.Context, In) (Out, error), summarize func(Out) string) server.ToolHandlerFunc {
	return mcp.NewTypedToolHandler(func(ctx context.Context, req mcp.CallToolRequest, in In) (*mcp.CallToolResult, error) {
		if msg := validation.ValidateStruct(in); msg != "" {
			return mcp.NewToolResultError(msg), nil
		}
		start := time.Now()
		out, err := run(ctx, in)
		if hooks != nil {
			hooks.OnToolCall(sessionID(ctx), name, time.Since(start), err)
		}
		if err != nil {
			return toolError(err), nil
		}
		summary := summarize(out)
		res := mcp.NewToolResultStructured(out, summary)
		res.Content = []mcp.Content{mcp.NewTextContent(summary)}
		return res, nil
	})
}

func pageSummary(m insights.PageMeta) string {
	return fmt.Sprintf("returned=%d total=%d truncated=%v", m.Returned, m.Total, m.Truncated)
}

// RegisterSectorTools wires the read-only analysis tools.
func RegisterSectorTools(s *server.MCPServer, reg *Registry, d Deps) {
	profiler := &insights.Profiler{Limits: d.Limits, Mgr: d.Tables, Logger: d.Logger}
	cp := mcp.NewTool(
		"complexity_profile",
		mcp.WithDescription("Rank the locations (economic complexity index) or sectors (product complexity index) of a long-format activity table, with size, complexity outlook and, for locations, the count of active and specialised sectors. Specialisation uses the location quotient against rca_threshold. Results are paginated; pass nextCursor with identical inputs for the next page. Errors include VALIDATION (missing columns), DEGENERATE_INPUT (perfectly specialised or disconnected activity) and CURSOR_INVALID."),
		mcp.WithInputSchema[insights.ComplexityProfileInput](),
		mcp.WithOutputSchema[insights.ComplexityProfileOutput](),
	)
	s.AddTool(cp, typed("complexity_profile", d.Hooks, profiler.Profile, func(out insights.ComplexityProfileOutput) string {
		return fmt.Sprintf("entity=%s locations=%d sectors=%d %s", out.Entity, out.Locations, out.Sectors, pageSummary(out.Meta))
	}))
	reg.Register(cp)

	ranker := &insights.ExposureRanker{Limits: d.Limits, Mgr: d.Tables, Logger: d.Logger}
	se := mcp.NewTool(
		"sector_exposure",
		mcp.WithDescription("Rank sectors by Covid-19 exposure: keyword search volume is rescaled by the same month of the baseline year, averaged (or salience-weighted) per sector, z-scored within each month and cut into deciles; rank 9 is the largest fall in interest. Filter by month and min_rank. Results are paginated. Errors include VALIDATION (columns, month) and DATA_QUALITY warnings for keywords without a baseline."),
		mcp.WithInputSchema[insights.SectorExposureInput](),
		mcp.WithOutputSchema[insights.SectorExposureOutput](),
	)
	s.AddTool(se, typed("sector_exposure", d.Hooks, ranker.Rank, func(out insights.SectorExposureOutput) string {
		return fmt.Sprintf("months=%d weighted=%v %s", len(out.Months), out.Weighted, pageSummary(out.Meta))
	}))
	reg.Register(se)

	builder := &insights.SpaceBuilder{Limits: d.Limits, Mgr: d.Tables, Logger: d.Logger}
	ss := mcp.NewTool(
		"sector_space",
		mcp.WithDescription("Build the sector space from a weighted co-occurrence edge list: the maximum spanning tree plus the extra_edges strongest remaining edges. Page through edges, or nodes with degree and optional Kamada-Kawai positions. Errors include DEGENERATE_INPUT when the edge list is not connected."),
		mcp.WithInputSchema[insights.SectorSpaceInput](),
		mcp.WithOutputSchema[insights.SectorSpaceOutput](),
	)
	s.AddTool(ss, typed("sector_space", d.Hooks, builder.Build, func(out insights.SectorSpaceOutput) string {
		return fmt.Sprintf("view=%s nodes=%d tree_edges=%d extra_edges=%d %s", out.View, out.NodeCount, out.TreeEdges, out.ExtraEdges, pageSummary(out.Meta))
	}))
	reg.Register(ss)

	div := &insights.Diversifier{Limits: d.Limits, Mgr: d.Tables, Logger: d.Logger}
	do := mcp.NewTool(
		"diversification_options",
		mcp.WithDescription("For every highly exposed sector, measure the mean and minimum hop distance in the sector space to the safe (least exposed) sectors of the same month, then rank the mean distances into quartiles per month; rank 3 means safe sectors are furthest away. Months without safe sectors are listed as skipped. Errors include VALIDATION (overlapping rank sets, unknown month), ALIGNMENT (ranked sectors missing from the space) and UNREACHABLE."),
		mcp.WithInputSchema[insights.DiversificationOptionsInput](),
		mcp.WithOutputSchema[insights.DiversificationOptionsOutput](),
	)
	s.AddTool(do, typed("diversification_options", d.Hooks, div.Options, func(out insights.DiversificationOptionsOutput) string {
		return fmt.Sprintf("months=%d skipped=%d %s", len(out.Months), len(out.Skipped), pageSummary(out.Meta))
	}))
	reg.Register(do)
}

// WriteResultsInput defines parameters for write_results.
type WriteResultsInput struct {
	ConfigPath string `json:"config_path" validate:"required" jsonschema_description:"Pipeline YAML configuration naming the input tables and output workbook"`
}

// WriteResultsOutput summarises a completed pipeline run.
type WriteResultsOutput struct {
	RunID    string                `json:"run_id"`
	Outputs  []string              `json:"outputs"`
	Counts   pipeline.Counts       `json:"counts"`
	Warnings []analysiserr.Warning `json:"warnings,omitempty"`
}

// RegisterWriteTools wires write_results, which runs the batch pipeline and
// writes its workbook. Callers register it only when writes are enabled.
func RegisterWriteTools(s *server.MCPServer, reg *Registry, runner *pipeline.Runner, hooks *telemetry.Hooks) {
	wr := mcp.NewTool(
		"write_results",
		mcp.WithDescription("Run the full batch analysis described by a pipeline YAML file and write the results workbook, optional CSVs and run manifest. Input and output paths must sit inside the allowed directories. Disabled unless SECTORSPACE_ENABLE_WRITES=true."),
		mcp.WithInputSchema[WriteResultsInput](),
		mcp.WithOutputSchema[WriteResultsOutput](),
	)
	run := func(ctx context.Context, in WriteResultsInput) (WriteResultsOutput, error) {
		cfg, err := config.Load(in.ConfigPath)
		if err != nil {
			return WriteResultsOutput{}, analysiserr.Wrap(analysiserr.Validation, "registry.write_results", err)
		}
		m, err := runner.Run(ctx, *cfg)
		if err != nil {
			return WriteResultsOutput{}, err
		}
		return WriteResultsOutput{RunID: m.RunID, Outputs: m.Outputs, Counts: m.Counts, Warnings: m.Warnings}, nil
	}
	s.AddTool(wr, typed("write_results", hooks, run, func(out WriteResultsOutput) string {
		return fmt.Sprintf("run_id=%s outputs=%d warnings=%d", out.RunID, len(out.Outputs), len(out.Warnings))
	}))
	reg.Register(wr)
}
