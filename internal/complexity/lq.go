// Package complexity implements the economic complexity engine: location
// quotients, ECI/PCI, proximity, density, distance, outlook indices and the
// fitness family of metrics.
package complexity

import (
	"math"

	"github.com/rs/zerolog"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// Options configures the complexity computations.
type Options struct {
	// Threshold binarises location quotients (RCA when LQ > Threshold).
	Threshold float64
	// ImagTolerance bounds the imaginary part accepted on eigen output.
	ImagTolerance float64
	// GapTolerance is the minimum separation of the two leading eigenvalues.
	GapTolerance float64
	Logger       zerolog.Logger
}

// DefaultOptions returns the configured defaults.
func DefaultOptions() Options {
	return Options{
		Threshold:     config.DefaultRCAThreshold,
		ImagTolerance: config.DefaultImagTolerance,
		GapTolerance:  config.DefaultEigenGapTolerance,
	}
}

func (o Options) withDefaults() Options {
	if o.ImagTolerance <= 0 {
		o.ImagTolerance = config.DefaultImagTolerance
	}
	if o.GapTolerance <= 0 {
		o.GapTolerance = config.DefaultEigenGapTolerance
	}
	return o
}

// Report collects what a computation corrected along the way.
type Report struct {
	DroppedRows []string              `json:"dropped_rows,omitempty"`
	DroppedCols []string              `json:"dropped_cols,omitempty"`
	Eigenvalue  float64               `json:"eigenvalue"`
	Sign        float64               `json:"sign"`
	Warnings    []analysiserr.Warning `json:"warnings,omitempty"`
}

func (r *Report) warn(logger zerolog.Logger, w analysiserr.Warning) {
	r.Warnings = append(r.Warnings, w)
	logger.Warn().Str("op", w.Op).Strs("labels", w.Labels).Msg(w.Message)
}

// LocationQuotient computes LQ[i,j] = X[i,j]*sum(X) / (rowsum[i]*colsum[j]).
// Cells with a zero denominator are 0. With binary set the result is 1 where
// LQ > threshold and 0 elsewhere.
func LocationQuotient(x *matrix.Matrix, threshold float64, binary bool) *matrix.Matrix {
	total := x.Total()
	rows := x.RowSums()
	cols := x.ColSums()
	return x.Apply(func(i, j int, v float64) float64 {
		den := rows[i] * cols[j]
		lq := 0.0
		if den != 0 && !math.IsNaN(v) {
			lq = v * total / den
		}
		if !binary {
			return lq
		}
		if lq > threshold {
			return 1
		}
		return 0
	})
}

// RCA is the binary location quotient at threshold.
func RCA(x *matrix.Matrix, threshold float64) *matrix.Matrix {
	return LocationQuotient(x, threshold, true)
}
