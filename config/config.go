package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/vinodismyname/sectorspace/pkg/validation"
)

// Config is the batch pipeline configuration, usually read from pipeline.yaml.
type Config struct {
	Inputs          InputsConfig          `mapstructure:"inputs" yaml:"inputs"`
	Complexity      ComplexityConfig      `mapstructure:"complexity" yaml:"complexity"`
	Exposure        ExposureConfig        `mapstructure:"exposure" yaml:"exposure"`
	SectorSpace     SectorSpaceConfig     `mapstructure:"sector_space" yaml:"sector_space"`
	Diversification DiversificationConfig `mapstructure:"diversification" yaml:"diversification"`
	Output          OutputConfig          `mapstructure:"output" yaml:"output"`
	Runtime         RuntimeConfig         `mapstructure:"runtime" yaml:"runtime"`
	Log             LogConfig             `mapstructure:"log" yaml:"log"`
}

// TableSource locates one input table. Sheet is ignored for CSV files and
// defaults to the first sheet of a workbook.
type TableSource struct {
	Path  string `mapstructure:"path" yaml:"path" validate:"omitempty,filepath_ext"`
	Sheet string `mapstructure:"sheet" yaml:"sheet,omitempty"`
}

// Configured reports whether a path was given.
func (s TableSource) Configured() bool { return strings.TrimSpace(s.Path) != "" }

// ActivityColumns names the columns of the location × sector activity table.
type ActivityColumns struct {
	Location string `mapstructure:"location" yaml:"location"`
	Name     string `mapstructure:"name" yaml:"name,omitempty"`
	Sector   string `mapstructure:"sector" yaml:"sector"`
	Value    string `mapstructure:"value" yaml:"value"`
}

// ActivityInput is the employment or establishment table.
type ActivityInput struct {
	TableSource `mapstructure:",squash" yaml:",inline"`
	Columns     ActivityColumns `mapstructure:"columns" yaml:"columns"`
	// Order is "sorted" or "insertion"; see matrix.Order.
	Order     string `mapstructure:"order" yaml:"order" validate:"oneof=sorted insertion"`
	Aggregate string `mapstructure:"aggregate" yaml:"aggregate" validate:"oneof=sum mean max"`
	// SICClasses rolls four-digit classes up to divisions using the taxonomy.
	SICClasses bool `mapstructure:"sic_classes" yaml:"sic_classes"`
}

// TrendColumns names the columns of the keyword search-volume table.
type TrendColumns struct {
	Keyword string `mapstructure:"keyword" yaml:"keyword"`
	Sector  string `mapstructure:"sector" yaml:"sector"`
	Date    string `mapstructure:"date" yaml:"date"`
	Volume  string `mapstructure:"volume" yaml:"volume"`
}

// TrendInput is the keyword search-volume table.
type TrendInput struct {
	TableSource `mapstructure:",squash" yaml:",inline"`
	Columns     TrendColumns `mapstructure:"columns" yaml:"columns"`
}

// SalienceColumns names the columns of the keyword salience table.
type SalienceColumns struct {
	Keyword  string `mapstructure:"keyword" yaml:"keyword"`
	Sector   string `mapstructure:"sector" yaml:"sector"`
	Salience string `mapstructure:"salience" yaml:"salience"`
}

// SalienceInput is the optional keyword salience table used for weighting.
type SalienceInput struct {
	TableSource `mapstructure:",squash" yaml:",inline"`
	Columns     SalienceColumns `mapstructure:"columns" yaml:"columns"`
}

// PredictionInput is a document × sector probability table; every column
// other than ID is a sector.
type PredictionInput struct {
	TableSource `mapstructure:",squash" yaml:",inline"`
	ID          string `mapstructure:"id" yaml:"id"`
}

// EdgeColumns names the columns of a precomputed sector edge list.
type EdgeColumns struct {
	A      string `mapstructure:"a" yaml:"a"`
	B      string `mapstructure:"b" yaml:"b"`
	Weight string `mapstructure:"weight" yaml:"weight"`
}

// EdgeInput is a precomputed co-occurrence edge list.
type EdgeInput struct {
	TableSource `mapstructure:",squash" yaml:",inline"`
	Columns     EdgeColumns `mapstructure:"columns" yaml:"columns"`
}

// InputsConfig lists every table the pipeline reads.
type InputsConfig struct {
	Activity    ActivityInput   `mapstructure:"activity" yaml:"activity"`
	Trends      TrendInput      `mapstructure:"trends" yaml:"trends"`
	Salience    SalienceInput   `mapstructure:"salience" yaml:"salience,omitempty"`
	Predictions PredictionInput `mapstructure:"predictions" yaml:"predictions,omitempty"`
	Edges       EdgeInput       `mapstructure:"edges" yaml:"edges,omitempty"`
	Taxonomy    TableSource     `mapstructure:"taxonomy" yaml:"taxonomy,omitempty"`
}

// ComplexityConfig tunes the LQ and ECI engines.
type ComplexityConfig struct {
	RCAThreshold  float64 `mapstructure:"rca_threshold" yaml:"rca_threshold" validate:"gt=0"`
	FitnessIters  int     `mapstructure:"fitness_iters" yaml:"fitness_iters" validate:"gte=1"`
	ImagTolerance float64 `mapstructure:"imag_tolerance" yaml:"imag_tolerance" validate:"gt=0"`
	GapTolerance  float64 `mapstructure:"gap_tolerance" yaml:"gap_tolerance" validate:"gte=0"`
}

// ExposureConfig tunes normalisation and ranking of search interest.
type ExposureConfig struct {
	BaselineYear int       `mapstructure:"baseline_year" yaml:"baseline_year" validate:"gte=1900"`
	StopWords    []string  `mapstructure:"stop_words" yaml:"stop_words,omitempty"`
	Weighted     bool      `mapstructure:"weighted" yaml:"weighted"`
	Quantiles    []float64 `mapstructure:"quantiles" yaml:"quantiles" validate:"quantile_edges"`
	// SectorLevel "section" adds a ranking of SIC sections next to the
	// division ranking; diversification always uses divisions.
	SectorLevel       string `mapstructure:"sector_level" yaml:"sector_level" validate:"oneof=division section"`
	HighExposureLevel int    `mapstructure:"high_exposure_level" yaml:"high_exposure_level" validate:"gte=0"`
}

// SectorSpaceConfig tunes the network builder.
type SectorSpaceConfig struct {
	ExtraEdges          int     `mapstructure:"extra_edges" yaml:"extra_edges" validate:"gte=0"`
	PredictionThreshold float64 `mapstructure:"prediction_threshold" yaml:"prediction_threshold" validate:"gte=0,lte=1"`
	Layout              bool    `mapstructure:"layout" yaml:"layout"`
	LayoutIterations    int     `mapstructure:"layout_iterations" yaml:"layout_iterations" validate:"gte=0"`
}

// DiversificationConfig tunes the diversification ranking.
type DiversificationConfig struct {
	ExposedRanks      []int     `mapstructure:"exposed_ranks" yaml:"exposed_ranks" validate:"min=1"`
	SafeRanks         []int     `mapstructure:"safe_ranks" yaml:"safe_ranks" validate:"min=1"`
	Quantiles         []float64 `mapstructure:"quantiles" yaml:"quantiles" validate:"quantile_edges"`
	LowDiversityLevel int       `mapstructure:"low_diversity_level" yaml:"low_diversity_level" validate:"gte=0"`
	// Months restricts the analysis to these YYYY-MM months; all when empty.
	Months []string `mapstructure:"months" yaml:"months,omitempty" validate:"dive,month"`
}

// OutputConfig names the result files.
type OutputConfig struct {
	Workbook string `mapstructure:"workbook" yaml:"workbook" validate:"required"`
	Manifest string `mapstructure:"manifest" yaml:"manifest,omitempty"`
	// CSVDir, when set, also receives one CSV per results sheet.
	CSVDir string `mapstructure:"csv_dir" yaml:"csv_dir,omitempty"`
}

// RuntimeConfig bounds resource use of a run.
type RuntimeConfig struct {
	MaxMonthWorkers  int           `mapstructure:"max_month_workers" yaml:"max_month_workers" validate:"gte=1"`
	MaxOpenTables    int           `mapstructure:"max_open_tables" yaml:"max_open_tables" validate:"gte=1"`
	MaxRowsPerTable  int           `mapstructure:"max_rows_per_table" yaml:"max_rows_per_table" validate:"gte=1"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout" validate:"gte=0"`
}

// LogConfig selects the zerolog level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json console"`
}

// ApplyDefaults fills zero-valued fields that have no meaningful zero.
func ApplyDefaults(cfg *Config) {
	a := &cfg.Inputs.Activity
	if a.Order == "" {
		a.Order = "sorted"
	}
	if a.Aggregate == "" {
		a.Aggregate = "sum"
	}
	if cfg.Inputs.Predictions.ID == "" {
		cfg.Inputs.Predictions.ID = "id"
	}

	c := &cfg.Complexity
	if c.RCAThreshold == 0 {
		c.RCAThreshold = DefaultRCAThreshold
	}
	if c.FitnessIters == 0 {
		c.FitnessIters = DefaultFitnessIters
	}
	if c.ImagTolerance == 0 {
		c.ImagTolerance = DefaultImagTolerance
	}
	if c.GapTolerance == 0 {
		c.GapTolerance = DefaultEigenGapTolerance
	}

	e := &cfg.Exposure
	if e.BaselineYear == 0 {
		e.BaselineYear = DefaultBaselineYear
	}
	if len(e.Quantiles) == 0 {
		e.Quantiles = append([]float64(nil), DefaultExposureQuantiles...)
	}
	if e.SectorLevel == "" {
		e.SectorLevel = "division"
	}

	s := &cfg.SectorSpace
	if s.PredictionThreshold == 0 {
		s.PredictionThreshold = DefaultPredictionThreshold
	}
	if s.LayoutIterations == 0 {
		s.LayoutIterations = DefaultLayoutIterations
	}

	d := &cfg.Diversification
	if len(d.ExposedRanks) == 0 {
		d.ExposedRanks = append([]int(nil), DefaultExposedRanks...)
	}
	if len(d.SafeRanks) == 0 {
		d.SafeRanks = append([]int(nil), DefaultSafeRanks...)
	}
	if len(d.Quantiles) == 0 {
		d.Quantiles = append([]float64(nil), DefaultDiversificationQuantiles...)
	}

	r := &cfg.Runtime
	if r.MaxMonthWorkers == 0 {
		r.MaxMonthWorkers = DefaultMaxRankMonthWorkers
	}
	if r.MaxOpenTables == 0 {
		r.MaxOpenTables = DefaultMaxOpenTables
	}
	if r.MaxRowsPerTable == 0 {
		r.MaxRowsPerTable = DefaultMaxRowsPerTable
	}
	if r.OperationTimeout == 0 {
		r.OperationTimeout = DefaultOperationTimeout
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
}

// Validate checks field rules and the cross-field constraints between inputs.
func (c *Config) Validate() error {
	if err := validation.Validator().Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%s (%s)", validation.Message(ve[0]), ve[0].Namespace())
		}
		return err
	}
	in := c.Inputs
	if !in.Activity.Configured() {
		return errors.New("VALIDATION: inputs.activity.path is required")
	}
	if !in.Trends.Configured() {
		return errors.New("VALIDATION: inputs.trends.path is required")
	}
	if !in.Predictions.Configured() && !in.Edges.Configured() {
		return errors.New("VALIDATION: one of inputs.predictions or inputs.edges is required")
	}
	if (in.Activity.SICClasses || c.Exposure.SectorLevel == "section") && !in.Taxonomy.Configured() {
		return errors.New("VALIDATION: inputs.taxonomy is required for SIC class roll-up or section ranking")
	}
	safe := map[int]struct{}{}
	for _, r := range c.Diversification.SafeRanks {
		safe[r] = struct{}{}
	}
	for _, r := range c.Diversification.ExposedRanks {
		if _, ok := safe[r]; ok {
			return fmt.Errorf("VALIDATION: rank %d is both exposed and safe", r)
		}
	}
	return nil
}
