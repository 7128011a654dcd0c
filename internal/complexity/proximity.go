package complexity

import (
	"math"

	"github.com/vinodismyname/sectorspace/internal/matrix"
	"gonum.org/v1/gonum/mat"
)

// Proximity returns the sector-by-sector proximity
// phi[i,j] = sum_c M[c,i]*M[c,j] / max(k_i, k_j), where M is the RCA matrix
// and k the sector ubiquity. Pairs where both ubiquities are zero are NaN.
func Proximity(x *matrix.Matrix, threshold float64) *matrix.Matrix {
	return proximityFromRCA(RCA(x, threshold))
}

func proximityFromRCA(m *matrix.Matrix) *matrix.Matrix {
	n, p := m.Dims()
	keys := m.ColKeys()
	if p == 0 {
		out, _ := matrix.Wrap(keys, keys, nil)
		return out
	}
	ubiquity := m.ColSums()

	co := mat.NewDense(p, p, nil)
	if n > 0 {
		md := m.Dense()
		co.Mul(md.T(), md)
	}

	phi := mat.NewDense(p, p, nil)
	for i := 0; i < p; i++ {
		for j := 0; j <= i; j++ {
			den := math.Max(ubiquity[i], ubiquity[j])
			v := math.NaN()
			if den != 0 {
				v = co.At(i, j) / den
			}
			phi.Set(i, j, v)
			phi.Set(j, i, v)
		}
	}
	out, _ := matrix.Wrap(keys, m.ColKeys(), phi)
	return out
}

// ProximityDensity returns density[c,p] = sum_j M[c,j]*phi[j,p] / sum_j phi[j,p].
// NaN proximities count as zero and a sector with no proximity mass has density 0.
func ProximityDensity(x *matrix.Matrix, threshold float64) *matrix.Matrix {
	m := RCA(x, threshold)
	return densityFrom(m, proximityFromRCA(m))
}

func densityFrom(m, phi *matrix.Matrix) *matrix.Matrix {
	if m.Empty() {
		return m
	}
	p := zeroNaN(phi)
	mass := colSums(p)
	r, c := m.Dims()
	num := mat.NewDense(r, c, nil)
	num.Mul(m.Dense(), p)
	return m.Apply(func(i, j int, _ float64) float64 {
		if mass[j] == 0 {
			return 0
		}
		return num.At(i, j) / mass[j]
	})
}

// Distance is 1 - density, with NaN where the location already has RCA in the sector.
func Distance(x *matrix.Matrix, threshold float64) *matrix.Matrix {
	m := RCA(x, threshold)
	return distanceFrom(m, densityFrom(m, proximityFromRCA(m)))
}

func distanceFrom(m, density *matrix.Matrix) *matrix.Matrix {
	return density.Apply(func(i, j int, v float64) float64 {
		if m.At(i, j) == 1 {
			return math.NaN()
		}
		return 1 - v
	})
}

func zeroNaN(m *matrix.Matrix) *mat.Dense {
	d := m.Dense()
	d.Apply(func(_, _ int, v float64) float64 {
		if math.IsNaN(v) {
			return 0
		}
		return v
	}, d)
	return d
}

func colSums(d *mat.Dense) []float64 {
	r, c := d.Dims()
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out[j] += d.At(i, j)
		}
	}
	return out
}
