// Package pipeline runs the batch sector-space analysis end to end: load the
// input tables, compute complexity and exposure, build the sector space, rank
// diversification options per month and write the results workbook together
// with a YAML run manifest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/runtime"
	"github.com/vinodismyname/sectorspace/internal/telemetry"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/vinodismyname/sectorspace/pkg/version"
)

// PathValidator guards the files a run reads and writes. *security.Manager
// satisfies it.
type PathValidator interface {
	ValidateOpenPath(path string) (string, error)
	ValidateOutputPath(path string) (string, error)
}

// Runner executes pipeline runs. The zero value is not usable; use NewRunner.
type Runner struct {
	logger zerolog.Logger
	hooks  *telemetry.Hooks
	paths  PathValidator
	clock  func() time.Time
}

// Option customises a Runner.
type Option func(*Runner)

// WithPathValidator restricts input and output paths to an allow-list.
func WithPathValidator(v PathValidator) Option { return func(r *Runner) { r.paths = v } }

// WithClock overrides time.Now, for tests.
func WithClock(clock func() time.Time) Option { return func(r *Runner) { r.clock = clock } }

// NewRunner builds a Runner logging through logger.
func NewRunner(logger zerolog.Logger, opts ...Option) *Runner {
	r := &Runner{
		logger: logger,
		hooks:  telemetry.NewHooks(logger),
		clock:  time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// StageSummary records the outcome of one pipeline stage.
type StageSummary struct {
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`
	Warnings int           `yaml:"warnings"`
}

// InputSummary describes one input table as read.
type InputSummary struct {
	Role  string `yaml:"role"`
	Path  string `yaml:"path"`
	Sheet string `yaml:"sheet,omitempty"`
	Rows  int    `yaml:"rows"`
}

// Counts summarises the size of a run's results.
type Counts struct {
	Locations       int `json:"locations" yaml:"locations"`
	Sectors         int `json:"sectors" yaml:"sectors"`
	Months          int `json:"months" yaml:"months"`
	NetworkNodes    int `json:"network_nodes" yaml:"network_nodes"`
	TreeEdges       int `json:"tree_edges" yaml:"tree_edges"`
	ExtraEdges      int `json:"extra_edges" yaml:"extra_edges"`
	ExposedSectors  int `json:"exposed_sector_months" yaml:"exposed_sector_months"`
	DiversifiedRows int `json:"diversification_rows" yaml:"diversification_rows"`
}

// Manifest is written next to the results workbook and returned by Run.
type Manifest struct {
	RunID      string                `yaml:"run_id"`
	Build      version.Info          `yaml:"build"`
	StartedAt  time.Time             `yaml:"started_at"`
	FinishedAt time.Time             `yaml:"finished_at"`
	Inputs     []InputSummary        `yaml:"inputs"`
	Outputs    []string              `yaml:"outputs"`
	Counts     Counts                `yaml:"counts"`
	Stages     []StageSummary        `yaml:"stages"`
	Warnings   []analysiserr.Warning `yaml:"warnings,omitempty"`
	Config     config.Config         `yaml:"config"`
}

// run carries the state of a single Run call.
type run struct {
	*Runner
	id       string
	cfg      config.Config
	tables   *datasets.Manager
	manifest *Manifest
	res      results
}

// Run executes every stage for cfg. The returned manifest is also written to
// cfg.Output.Manifest when set. Stages run in order and the first failure
// aborts the run.
func (r *Runner) Run(ctx context.Context, cfg config.Config) (*Manifest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, analysiserr.Wrap(analysiserr.Validation, "pipeline.Run", err)
	}
	if cfg.Runtime.OperationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Runtime.OperationTimeout)
		defer cancel()
	}

	limits := runtime.NewLimits(0, cfg.Runtime.MaxOpenTables)
	limits.MaxMonthWorkers = cfg.Runtime.MaxMonthWorkers
	limits.MaxRowsPerTable = cfg.Runtime.MaxRowsPerTable
	ctrl := runtime.NewController(limits)

	tables := datasets.NewManager(cfg.Runtime.OperationTimeout, 0, ctrl, r.clock)
	tables.SetMaxRows(limits.MaxRowsPerTable)
	if r.paths != nil {
		tables.SetValidator(r.paths)
	}
	defer func() { _ = tables.Close(context.Background()) }()

	st := &run{
		Runner: r,
		id:     uuid.NewString(),
		cfg:    cfg,
		tables: tables,
		manifest: &Manifest{
			Build:  version.Build(),
			Config: cfg,
		},
	}
	st.manifest.RunID = st.id
	st.manifest.StartedAt = r.clock().UTC()
	r.hooks.OnRunStart(st.id, cfg.Output.Workbook)

	err := st.execute(ctx, limits)
	st.manifest.FinishedAt = r.clock().UTC()
	r.hooks.OnRunEnd(st.id, st.manifest.FinishedAt.Sub(st.manifest.StartedAt), err)
	if err != nil {
		return st.manifest, err
	}
	return st.manifest, nil
}

func (s *run) execute(ctx context.Context, limits runtime.Limits) error {
	stages := []struct {
		name string
		fn   func(context.Context) ([]analysiserr.Warning, error)
	}{
		{"load", s.load},
		{"complexity", s.complexity},
		{"exposure", s.exposure},
		{"sector_space", s.network},
		{"diversification", func(ctx context.Context) ([]analysiserr.Warning, error) {
			return s.diversify(ctx, limits.MaxMonthWorkers)
		}},
		{"shares", s.shares},
		{"write", s.write},
	}
	for _, stg := range stages {
		if err := ctx.Err(); err != nil {
			return analysiserr.Wrap(analysiserr.Timeout, "pipeline."+stg.name, err)
		}
		done := s.hooks.Stage(s.id, stg.name)
		start := s.clock()
		warns, err := stg.fn(ctx)
		done(len(warns), err)
		s.manifest.Warnings = append(s.manifest.Warnings, warns...)
		s.manifest.Stages = append(s.manifest.Stages, StageSummary{
			Name:     stg.name,
			Duration: s.clock().Sub(start),
			Warnings: len(warns),
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return analysiserr.Wrap(analysiserr.Timeout, "pipeline."+stg.name, err)
			}
			return fmt.Errorf("pipeline: %s: %w", stg.name, err)
		}
	}
	return nil
}
