package sectorspace

import (
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat/mds"
)

// centringWeight keeps the layout near the origin; the stress term alone is
// translation invariant.
const centringWeight = 1e-3

// layout places nodes with the Kamada-Kawai stress model: pairwise Euclidean
// distances are pulled towards graph hop distances. The start comes from
// classical MDS of the hop distances and the result is rescaled to [-1, 1].
func (s *Space) layout(iters int, logger zerolog.Logger) map[string]Point {
	n := len(s.labels)
	out := make(map[string]Point, n)
	if n == 1 {
		out[s.labels[0]] = Point{}
		return out
	}

	hops := mat.NewSymDense(n, nil)
	for i, l := range s.labels {
		dist, _ := s.HopDistances(l)
		for j, m := range s.labels {
			hops.SetSym(i, j, float64(dist[m]))
		}
	}

	x0 := initialPositions(hops)
	p := optimize.Problem{
		Func: func(x []float64) float64 { return stress(x, hops, nil) },
		Grad: func(grad, x []float64) { stress(x, hops, grad) },
	}
	x := x0
	res, err := optimize.Minimize(p, x0, &optimize.Settings{MajorIterations: iters}, &optimize.LBFGS{})
	switch {
	case res != nil && finite(res.X):
		x = res.X
		if err != nil {
			logger.Debug().Err(err).Msg("layout stopped early")
		}
	default:
		logger.Warn().Err(err).Msg("layout optimisation failed; using MDS start")
	}

	rescale(x)
	for i, l := range s.labels {
		out[l] = Point{X: x[2*i], Y: x[2*i+1]}
	}
	return out
}

// initialPositions returns interleaved (x, y) coordinates from classical MDS,
// falling back to a circle when fewer than two dimensions are recovered.
func initialPositions(hops *mat.SymDense) []float64 {
	n := hops.SymmetricDim()
	x := make([]float64, 2*n)
	var coords mat.Dense
	k, _ := mds.TorgersonScaling(&coords, nil, hops)
	if k >= 2 {
		for i := 0; i < n; i++ {
			x[2*i], x[2*i+1] = coords.At(i, 0), coords.At(i, 1)
		}
		return x
	}
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		x[2*i], x[2*i+1] = math.Cos(a), math.Sin(a)
		if k == 1 {
			x[2*i] = coords.At(i, 0)
			x[2*i+1] = 0.1 * math.Sin(a)
		}
	}
	return x
}

// stress evaluates Σ_{i<j} (r_ij/d_ij - 1)² plus the centring penalty and,
// when grad is non-nil, writes its gradient.
func stress(x []float64, hops *mat.SymDense, grad []float64) float64 {
	n := hops.SymmetricDim()
	for i := range grad {
		grad[i] = 0
	}
	var e, sx, sy float64
	for i := 0; i < n; i++ {
		xi, yi := x[2*i], x[2*i+1]
		sx += xi
		sy += yi
		for j := i + 1; j < n; j++ {
			d := hops.At(i, j)
			if d == 0 {
				continue
			}
			dx, dy := xi-x[2*j], yi-x[2*j+1]
			r := math.Hypot(dx, dy)
			t := r/d - 1
			e += t * t
			if grad == nil || r == 0 {
				continue
			}
			c := 2 * t / (d * r)
			grad[2*i] += c * dx
			grad[2*i+1] += c * dy
			grad[2*j] -= c * dx
			grad[2*j+1] -= c * dy
		}
	}
	e += 0.5 * centringWeight * (sx*sx + sy*sy)
	if grad != nil {
		for i := 0; i < n; i++ {
			grad[2*i] += centringWeight * sx
			grad[2*i+1] += centringWeight * sy
		}
	}
	return e
}

// rescale centres each axis and scales the largest absolute coordinate to 1.
func rescale(x []float64) {
	n := len(x) / 2
	var mx, my float64
	for i := 0; i < n; i++ {
		mx += x[2*i]
		my += x[2*i+1]
	}
	mx /= float64(n)
	my /= float64(n)
	var lim float64
	for i := 0; i < n; i++ {
		x[2*i] -= mx
		x[2*i+1] -= my
		lim = math.Max(lim, math.Max(math.Abs(x[2*i]), math.Abs(x[2*i+1])))
	}
	if lim == 0 {
		return
	}
	for i := range x {
		x[i] /= lim
	}
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
