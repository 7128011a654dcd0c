package config

import "time"

// Default analysis parameters and runtime guardrails for the sector-space engine.
// These values are referenced by the analysis packages, internal/runtime and the
// loader in this package; a pipeline YAML file or SECTORSPACE_* environment
// variables override them.

const (
	// Complexity
	DefaultRCAThreshold = 1.0
	DefaultFitnessIters = 20

	// Eigen output is accepted as real when imaginary parts stay below this.
	DefaultImagTolerance = 1e-8
	// Minimum gap between the two leading eigenvalues of the ECI operator.
	DefaultEigenGapTolerance = 1e-10
)

const (
	// Sector space
	DefaultExtraEdges          = 100
	DefaultPredictionThreshold = 0.5
	DefaultLayoutIterations    = 500
)

const (
	// Exposure and diversification
	DefaultBaselineYear        = 2019
	DefaultHighExposureLevel   = 7
	DefaultLowDiversityLevel   = 3
	DefaultWeightedExposure    = true
	DefaultMaxRankMonthWorkers = 4
)

// DefaultExposureQuantiles are decile edges for the exposure ranking.
var DefaultExposureQuantiles = []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}

// DefaultDiversificationQuantiles are quartile edges for the monthly diversification ranking.
var DefaultDiversificationQuantiles = []float64{0, 0.25, 0.5, 0.75, 1}

// DefaultExposedRanks are the exposure ranks treated as highly exposed.
var DefaultExposedRanks = []int{7, 8, 9}

// DefaultSafeRanks are the exposure ranks treated as safe diversification targets.
var DefaultSafeRanks = []int{0, 1, 2, 3}

const (
	// Concurrency
	DefaultMaxConcurrentRequests = 10
	DefaultMaxOpenTables         = 8

	// Payload and row limits
	DefaultMaxPayloadBytes = 128 * 1024 // 128KB
	DefaultMaxRowsPerTable = 2_000_000
	DefaultPageSize        = 200
)

const (
	// Timeouts
	DefaultOperationTimeout      = 60 * time.Second
	DefaultAcquireRequestTimeout = 2 * time.Second

	// Table cache
	DefaultTableIdleTTL       = 10 * time.Minute
	DefaultTableCleanupPeriod = time.Minute
)
