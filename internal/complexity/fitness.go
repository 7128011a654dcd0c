package complexity

import (
	"math"

	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Fitness computes the log fitness of each location by iterating
// F_c = sum_p X[c,p] / Q_p, Q_p = sum_c X[c,p] / F_c, normalising F to mean 1.
func Fitness(x *matrix.Matrix, iters int) (matrix.Vector, Report, error) {
	const op = "complexity.Fitness"
	pruned, rep, err := prune(op, x)
	if err != nil {
		return matrix.Vector{}, rep, err
	}
	n, _ := pruned.Dims()
	f := make([]float64, n)
	for i := range f {
		f[i] = 1
	}
	for it := 1; it < iters; it++ {
		f = fitnessStep(pruned, f)
		floats.Scale(1/stat.Mean(f, nil), f)
	}
	for i := range f {
		f[i] = math.Log(f[i])
	}
	return matrix.Vector{Keys: pruned.RowKeys(), Values: f}, rep, nil
}

// FitnessPlus computes the fitness+ metric. Binary inputs are normalised by the
// arithmetic mean, weighted inputs by the geometric mean. With correction the
// result is log(F) - log(sum_p X[c,p]/k_p).
func FitnessPlus(x *matrix.Matrix, iters int, correction bool) (matrix.Vector, Report, error) {
	const op = "complexity.FitnessPlus"
	pruned, rep, err := prune(op, x)
	if err != nil {
		return matrix.Vector{}, rep, err
	}
	norm := func(v []float64) float64 { return stat.GeometricMean(v, nil) }
	if isBinary(pruned) {
		norm = func(v []float64) float64 { return stat.Mean(v, nil) }
	}

	f := pruned.RowSums()
	floats.Scale(1/norm(f), f)
	for it := 1; it < iters; it++ {
		f = fitnessStep(pruned, f)
		floats.Scale(1/norm(f), f)
	}
	if correction {
		n, p := pruned.Dims()
		ubiquity := pruned.ColSums()
		for c := 0; c < n; c++ {
			var share float64
			for j := 0; j < p; j++ {
				share += pruned.At(c, j) / ubiquity[j]
			}
			f[c] = math.Log(f[c]) - math.Log(share)
		}
	}
	return matrix.Vector{Keys: pruned.RowKeys(), Values: f}, rep, nil
}

func fitnessStep(x *matrix.Matrix, f []float64) []float64 {
	n, p := x.Dims()
	q := make([]float64, p)
	for c := 0; c < n; c++ {
		for j := 0; j < p; j++ {
			q[j] += x.At(c, j) / f[c]
		}
	}
	next := make([]float64, n)
	for c := 0; c < n; c++ {
		for j := 0; j < p; j++ {
			next[c] += x.At(c, j) / q[j]
		}
	}
	return next
}

func prune(op string, x *matrix.Matrix) (*matrix.Matrix, Report, error) {
	var rep Report
	pruned, rows, cols := x.DropZero()
	rep.DroppedRows, rep.DroppedCols = rows, cols
	if len(rows) > 0 {
		rep.Warnings = append(rep.Warnings, analysiserr.NewWarning(op, "dropped all-zero rows", rows...))
	}
	if len(cols) > 0 {
		rep.Warnings = append(rep.Warnings, analysiserr.NewWarning(op, "dropped all-zero columns", cols...))
	}
	if pruned.Empty() {
		return nil, rep, analysiserr.Newf(analysiserr.DegenerateInput, op, "matrix is empty after pruning")
	}
	return pruned, rep, nil
}

func isBinary(x *matrix.Matrix) bool {
	n, p := x.Dims()
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if v := x.At(i, j); v != 0 && v != 1 {
				return false
			}
		}
	}
	return true
}
