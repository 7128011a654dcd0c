package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for every setting.
const envPrefix = "SECTORSPACE"

// newViper builds a Viper instance reading YAML with SECTORSPACE_ overrides.
// Nested keys like "runtime.max_month_workers" resolve to
// SECTORSPACE_RUNTIME_MAX_MONTH_WORKERS.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// setDefaults registers every key viper should resolve from the environment
// alone, plus the boolean defaults ApplyDefaults cannot tell apart from false.
func setDefaults(v *viper.Viper) {
	v.SetDefault("inputs.activity.path", "")
	v.SetDefault("inputs.activity.sheet", "")
	v.SetDefault("inputs.activity.columns.location", "location")
	v.SetDefault("inputs.activity.columns.name", "")
	v.SetDefault("inputs.activity.columns.sector", "sector")
	v.SetDefault("inputs.activity.columns.value", "value")
	v.SetDefault("inputs.activity.sic_classes", false)
	v.SetDefault("inputs.trends.path", "")
	v.SetDefault("inputs.trends.sheet", "")
	v.SetDefault("inputs.trends.columns.keyword", "keyword")
	v.SetDefault("inputs.trends.columns.sector", "sector")
	v.SetDefault("inputs.trends.columns.date", "date")
	v.SetDefault("inputs.trends.columns.volume", "volume")
	v.SetDefault("inputs.salience.path", "")
	v.SetDefault("inputs.salience.columns.keyword", "keyword")
	v.SetDefault("inputs.salience.columns.sector", "sector")
	v.SetDefault("inputs.salience.columns.salience", "salience")
	v.SetDefault("inputs.predictions.path", "")
	v.SetDefault("inputs.predictions.id", "id")
	v.SetDefault("inputs.edges.path", "")
	v.SetDefault("inputs.edges.columns.a", "a")
	v.SetDefault("inputs.edges.columns.b", "b")
	v.SetDefault("inputs.edges.columns.weight", "weight")
	v.SetDefault("inputs.taxonomy.path", "")

	v.SetDefault("complexity.rca_threshold", DefaultRCAThreshold)
	v.SetDefault("complexity.fitness_iters", DefaultFitnessIters)

	v.SetDefault("exposure.baseline_year", DefaultBaselineYear)
	v.SetDefault("exposure.weighted", DefaultWeightedExposure)
	v.SetDefault("exposure.sector_level", "division")
	v.SetDefault("exposure.high_exposure_level", DefaultHighExposureLevel)

	v.SetDefault("sector_space.extra_edges", DefaultExtraEdges)
	v.SetDefault("sector_space.prediction_threshold", DefaultPredictionThreshold)
	v.SetDefault("sector_space.layout", true)
	v.SetDefault("sector_space.layout_iterations", DefaultLayoutIterations)

	v.SetDefault("diversification.low_diversity_level", DefaultLowDiversityLevel)

	v.SetDefault("output.workbook", "")
	v.SetDefault("output.manifest", "")
	v.SetDefault("output.csv_dir", "")

	v.SetDefault("runtime.max_month_workers", DefaultMaxRankMonthWorkers)
	v.SetDefault("runtime.max_open_tables", DefaultMaxOpenTables)
	v.SetDefault("runtime.max_rows_per_table", DefaultMaxRowsPerTable)
	v.SetDefault("runtime.operation_timeout", DefaultOperationTimeout)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads the YAML file at configPath, merges SECTORSPACE_* overrides,
// applies defaults and validates the result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from SECTORSPACE_* environment variables alone.
//
//	SECTORSPACE_<SECTION>_<FIELD>   e.g.  SECTORSPACE_OUTPUT_WORKBOOK
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}
