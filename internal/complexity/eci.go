package complexity

import (
	"math"
	"math/cmplx"
	"sort"

	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ECI computes the economic complexity index of the rows of a binary RCA matrix.
//
// All-zero rows and then all-zero columns are dropped (reported as warnings).
// The score is the eigenvector of H = C·X·P·Xᵀ for the second largest
// eigenvalue, standardised to mean 0 and sample standard deviation 1, and
// signed to correlate positively with proxy. A nil proxy uses the row sums of
// the pruned input; otherwise every surviving row key must be present in it.
func ECI(xbin *matrix.Matrix, proxy *matrix.Vector, opts Options) (matrix.Vector, Report, error) {
	const op = "complexity.ECI"
	opts = opts.withDefaults()
	var rep Report

	x, droppedRows, droppedCols := xbin.DropZero()
	rep.DroppedRows, rep.DroppedCols = droppedRows, droppedCols
	if len(droppedRows) > 0 {
		rep.warn(opts.Logger, analysiserr.NewWarning(op, "dropped all-zero rows", droppedRows...))
	}
	if len(droppedCols) > 0 {
		rep.warn(opts.Logger, analysiserr.NewWarning(op, "dropped all-zero columns", droppedCols...))
	}
	n, k := x.Dims()
	if n < 2 || k < 1 {
		return matrix.Vector{}, rep, analysiserr.Newf(analysiserr.DegenerateInput, op, "%d rows and %d columns left after pruning", n, k)
	}

	h := transitionMatrix(x)

	var eig mat.Eigen
	if ok := eig.Factorize(h, mat.EigenRight); !ok {
		return matrix.Vector{}, rep, analysiserr.Newf(analysiserr.DegenerateInput, op, "eigen decomposition did not converge")
	}
	values := eig.Values(nil)
	var vectors mat.CDense
	eig.VectorsTo(&vectors)

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return real(values[order[a]]) > real(values[order[b]])
	})
	first, second := values[order[0]], values[order[1]]
	if real(first)-real(second) <= opts.GapTolerance {
		return matrix.Vector{}, rep, analysiserr.Newf(analysiserr.DegenerateInput, op,
			"leading eigenvalues %.6g and %.6g coincide; the location-sector network is disconnected", real(first), real(second))
	}
	if math.Abs(imag(second)) > opts.ImagTolerance {
		return matrix.Vector{}, rep, analysiserr.Newf(analysiserr.DegenerateInput, op, "second eigenvalue is complex (%v)", second)
	}

	scores := make([]float64, n)
	for i := 0; i < n; i++ {
		v := vectors.At(i, order[1])
		if math.Abs(imag(v)) > opts.ImagTolerance {
			return matrix.Vector{}, rep, analysiserr.Newf(analysiserr.DegenerateInput, op, "eigenvector entry %d is complex (%v)", i, v)
		}
		if cmplx.IsNaN(v) {
			return matrix.Vector{}, rep, analysiserr.Newf(analysiserr.DegenerateInput, op, "eigenvector entry %d is NaN", i)
		}
		scores[i] = real(v)
	}
	rep.Eigenvalue = real(second)

	mean, std := stat.MeanStdDev(scores, nil)
	if std == 0 || math.IsNaN(std) {
		return matrix.Vector{}, rep, analysiserr.Newf(analysiserr.DegenerateInput, op, "complexity scores have zero variance")
	}
	for i := range scores {
		scores[i] = (scores[i] - mean) / std
	}

	keys := x.RowKeys()
	corrWith := x.RowSums()
	if proxy != nil {
		corrWith = make([]float64, n)
		for i, key := range keys {
			v, ok := proxy.Get(key)
			if !ok {
				return matrix.Vector{}, rep, analysiserr.Newf(analysiserr.Alignment, op, "sign proxy has no value for %q", key)
			}
			corrWith[i] = v
		}
	}
	rep.Sign = 1
	corr := stat.Correlation(corrWith, scores, nil)
	switch {
	case math.IsNaN(corr) || corr == 0:
		rep.warn(opts.Logger, analysiserr.NewWarning(op, "sign proxy is uncorrelated with the index; keeping positive sign"))
	case corr < 0:
		rep.Sign = -1
		for i := range scores {
			scores[i] = -scores[i]
		}
	}
	opts.Logger.Debug().Float64("eigenvalue", rep.Eigenvalue).Float64("sign", rep.Sign).Int("rows", n).Msg("complexity index computed")

	return matrix.Vector{Keys: keys, Values: scores}, rep, nil
}

// PCI computes the product (sector) complexity index: ECI on the transposed matrix.
func PCI(xbin *matrix.Matrix, proxy *matrix.Vector, opts Options) (matrix.Vector, Report, error) {
	return ECI(xbin.T(), proxy, opts)
}

// transitionMatrix builds H = diag(1/rowsum)·X·diag(1/colsum)·Xᵀ.
// The input must have no zero rows or columns.
func transitionMatrix(x *matrix.Matrix) *mat.Dense {
	n, k := x.Dims()
	rows := x.RowSums()
	cols := x.ColSums()
	xd := x.Dense()

	left := mat.NewDense(n, k, nil)
	left.Apply(func(i, j int, v float64) float64 { return v / (rows[i] * cols[j]) }, xd)

	h := mat.NewDense(n, n, nil)
	h.Mul(left, xd.T())
	return h
}
