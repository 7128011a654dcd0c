package complexity

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"gonum.org/v1/gonum/stat"
)

const tol = 1e-9

func mustMatrix(t *testing.T, rows, cols []string, vals ...float64) *matrix.Matrix {
	t.Helper()
	m, err := matrix.New(rows, cols, vals)
	require.NoError(t, err)
	return m
}

// nested has RCA pattern [[1,1,1],[1,1,0],[1,0,0]] at threshold 0.5.
func nested(t *testing.T) *matrix.Matrix {
	return mustMatrix(t, []string{"c0", "c1", "c2"}, []string{"p0", "p1", "p2"},
		4, 4, 4,
		4, 4, 0,
		4, 0, 0,
	)
}

func nestedOpts() Options {
	o := DefaultOptions()
	o.Threshold = 0.5
	return o
}

func TestLocationQuotientPerfectSpecialisation(t *testing.T) {
	x := mustMatrix(t, []string{"a", "b", "c"}, []string{"x", "y", "z"},
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	)
	lq := LocationQuotient(x, 1, false)
	require.Equal(t, 3.0, lq.At(0, 0))
	require.Equal(t, 0.0, lq.At(0, 1))

	rca := RCA(x, 1)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			require.Equal(t, want, rca.At(i, j))
		}
	}

	_, _, err := ECI(rca, nil, DefaultOptions())
	require.ErrorIs(t, err, analysiserr.ErrDegenerateInput)
}

func TestLocationQuotientZeroDenominatorAndStrictThreshold(t *testing.T) {
	x := mustMatrix(t, []string{"a", "b"}, []string{"x", "y"},
		1, 1,
		0, 0,
	)
	lq := LocationQuotient(x, 1, false)
	require.Equal(t, 1.0, lq.At(0, 0))
	require.Equal(t, 0.0, lq.At(1, 0))

	// LQ == threshold is not RCA.
	rca := RCA(x, 1)
	require.Equal(t, 0.0, rca.At(0, 0))
}

func TestECINestedMatrix(t *testing.T) {
	m := RCA(nested(t), 0.5)
	eci, rep, err := ECI(m, nil, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, []string{"c0", "c1", "c2"}, eci.Keys)
	require.InDelta(t, 1, eci.Values[0], tol)
	require.InDelta(t, 0, eci.Values[1], tol)
	require.InDelta(t, -1, eci.Values[2], tol)
	require.InDelta(t, 0.25, rep.Eigenvalue, tol)
	require.Equal(t, 1.0, rep.Sign)
	require.Empty(t, rep.Warnings)
}

func TestECISignFollowsProxy(t *testing.T) {
	m := RCA(nested(t), 0.5)
	proxy := matrix.VectorFromMap(map[string]float64{"c0": 1, "c1": 2, "c2": 3})
	eci, rep, err := ECI(m, &proxy, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, -1.0, rep.Sign)
	require.InDelta(t, -1, eci.Values[0], tol)
	require.InDelta(t, 1, eci.Values[2], tol)
}

func TestECIMissingProxyKey(t *testing.T) {
	m := RCA(nested(t), 0.5)
	proxy := matrix.VectorFromMap(map[string]float64{"c0": 1})
	_, _, err := ECI(m, &proxy, DefaultOptions())
	require.ErrorIs(t, err, analysiserr.ErrAlignment)
}

func TestECIDropsZeroRowsWithWarning(t *testing.T) {
	m := mustMatrix(t, []string{"c0", "c1", "c2", "empty"}, []string{"p0", "p1", "p2", "none"},
		1, 1, 1, 0,
		1, 1, 0, 0,
		1, 0, 0, 0,
		0, 0, 0, 0,
	)
	eci, rep, err := ECI(m, nil, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 3, eci.Len())
	require.Equal(t, []string{"empty"}, rep.DroppedRows)
	require.Equal(t, []string{"none"}, rep.DroppedCols)
	require.Len(t, rep.Warnings, 2)
	require.Equal(t, analysiserr.DataQuality, rep.Warnings[0].Code)
}

func TestECITooFewRows(t *testing.T) {
	m := mustMatrix(t, []string{"a", "b"}, []string{"x"}, 1, 0)
	_, _, err := ECI(m, nil, DefaultOptions())
	require.ErrorIs(t, err, analysiserr.ErrDegenerateInput)
}

func TestProximityDensityDistance(t *testing.T) {
	m := RCA(nested(t), 0.5)
	phi := proximityFromRCA(m)
	require.InDelta(t, 2.0/3, phi.At(0, 1), tol)
	require.InDelta(t, 1.0/3, phi.At(0, 2), tol)
	require.InDelta(t, 0.5, phi.At(1, 2), tol)
	require.InDelta(t, phi.At(1, 2), phi.At(2, 1), tol)
	require.Equal(t, 1.0, phi.At(2, 2))

	density := ProximityDensity(nested(t), 0.5)
	require.InDelta(t, 0.5, density.At(2, 0), tol)
	require.InDelta(t, 4.0/13, density.At(2, 1), tol)
	require.InDelta(t, 2.0/11, density.At(2, 2), tol)

	dist := Distance(nested(t), 0.5)
	require.True(t, math.IsNaN(dist.At(2, 0)))
	require.InDelta(t, 9.0/13, dist.At(2, 1), tol)
	require.InDelta(t, 9.0/11, dist.At(2, 2), tol)
	for j := 0; j < 3; j++ {
		require.True(t, math.IsNaN(dist.At(0, j)))
	}
}

func TestProximityNaNForUnusedSectors(t *testing.T) {
	m := mustMatrix(t, []string{"a", "b"}, []string{"x", "y", "z"},
		1, 0, 0,
		1, 1, 0,
	)
	phi := proximityFromRCA(m)
	require.True(t, math.IsNaN(phi.At(2, 2)))
	require.Equal(t, 0.0, phi.At(0, 2))
	require.InDelta(t, 0.5, phi.At(0, 1), tol)

	// NaN proximity counts as zero and an empty proximity column has density 0.
	d := densityFrom(m, phi)
	require.Equal(t, 0.0, d.At(0, 2))
}

func TestComplexityOutlookIndex(t *testing.T) {
	coi, _, err := ComplexityOutlookIndex(nested(t), nestedOpts())
	require.NoError(t, err)
	require.Equal(t, []string{"c0", "c1", "c2"}, coi.Keys)
	require.InDelta(t, 0, coi.Values[0], tol)
	require.InDelta(t, -5.0/11, coi.Values[1], tol)
	require.InDelta(t, -2.0/11, coi.Values[2], tol)
}

func TestOpportunityOutlookGain(t *testing.T) {
	oog, _, err := OpportunityOutlookGain(nested(t), nestedOpts())
	require.NoError(t, err)
	require.True(t, math.IsNaN(oog.At(0, 0)))
	require.True(t, math.IsNaN(oog.At(1, 1)))
	require.InDelta(t, -1.0/11, oog.At(1, 2), tol)
	require.InDelta(t, -3.0/13, oog.At(2, 1), tol)
	require.InDelta(t, -4.0/11, oog.At(2, 2), tol)
}

func TestOutlookAlignsToPrunedSectors(t *testing.T) {
	x := mustMatrix(t, []string{"c0", "c1", "c2"}, []string{"p0", "p1", "p2", "idle"},
		4, 4, 4, 0,
		4, 4, 0, 0,
		4, 0, 0, 0,
	)
	oog, _, err := OpportunityOutlookGain(x, nestedOpts())
	require.NoError(t, err)
	require.Equal(t, []string{"p0", "p1", "p2"}, oog.ColKeys())
	require.InDelta(t, -4.0/11, oog.At(2, 2), tol)
}

func TestFitness(t *testing.T) {
	m := RCA(nested(t), 0.5)
	fit, _, err := Fitness(m, 20)
	require.NoError(t, err)
	require.Greater(t, fit.Values[0], fit.Values[1])
	require.Greater(t, fit.Values[1], fit.Values[2])

	var mean float64
	for _, v := range fit.Values {
		mean += math.Exp(v)
	}
	require.InDelta(t, 1, mean/3, 1e-9)
}

func TestFitnessPlus(t *testing.T) {
	fp, _, err := FitnessPlus(nested(t), 10, false)
	require.NoError(t, err)
	require.Greater(t, fp.Values[0], fp.Values[2])

	corrected, _, err := FitnessPlus(nested(t), 10, true)
	require.NoError(t, err)
	require.Len(t, corrected.Values, 3)
	for _, v := range corrected.Values {
		require.False(t, math.IsNaN(v))
	}

	empty := mustMatrix(t, []string{"a"}, []string{"x"}, 0)
	_, _, err = FitnessPlus(empty, 10, true)
	require.ErrorIs(t, err, analysiserr.ErrDegenerateInput)
}

func TestSimpleDiversity(t *testing.T) {
	rows := SimpleDiversity(nested(t), 0.5)
	require.Len(t, rows, 3)
	require.Equal(t, DiversityRow{Location: "c1", Name: "c1", Active: 2, RCA: 2}, rows[1])
}

func TestSummarizeAndUnitProfile(t *testing.T) {
	rows, _, err := Summarize(nested(t), SummaryOptions{Options: nestedOpts()})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, 12.0, rows[0].Size)
	require.NotNil(t, rows[0].Index)
	require.InDelta(t, 1, *rows[0].Index, tol)
	require.InDelta(t, -5.0/11, *rows[1].Outlook, tol)

	sectors, _, err := Summarize(nested(t), SummaryOptions{Options: nestedOpts(), Transpose: true})
	require.NoError(t, err)
	require.Equal(t, "p0", sectors[0].Key)
	require.InDelta(t, 1, *sectors[0].Index, tol)

	units, _, err := UnitProfile(nested(t), nestedOpts())
	require.NoError(t, err)
	require.Len(t, units, 9)
	u := units[8]
	require.Equal(t, "c2", u.Location)
	require.Equal(t, "p2", u.Sector)
	require.False(t, u.HasRCA)
	require.InDelta(t, 9.0/11, *u.Distance, tol)
	require.InDelta(t, 9.0/11, u.Omega, tol)
	require.InDelta(t, -4.0/11, *u.OOG, tol)
	require.True(t, units[0].HasRCA)
	require.Nil(t, units[0].Distance)
	require.Nil(t, units[0].OOG)
}

// isolated is the nested block plus a location that alone holds sector p3,
// so the bipartite network has two components.
func isolated(t *testing.T) *matrix.Matrix {
	return mustMatrix(t, []string{"c0", "c1", "c2", "c3"}, []string{"p0", "p1", "p2", "p3"},
		4, 4, 4, 0,
		4, 4, 0, 0,
		4, 0, 0, 0,
		0, 0, 0, 9,
	)
}

func hasCode(ws []analysiserr.Warning, code analysiserr.Code) bool {
	for _, w := range ws {
		if w.Code == code {
			return true
		}
	}
	return false
}

func TestUnitProfileIsolatedLocation(t *testing.T) {
	_, _, err := PCI(RCA(isolated(t), 0.5), nil, nestedOpts())
	require.ErrorIs(t, err, analysiserr.ErrDegenerateInput)

	units, rep, err := UnitProfile(isolated(t), nestedOpts())
	require.NoError(t, err)
	require.Len(t, units, 16)
	require.True(t, hasCode(rep.Warnings, analysiserr.DegenerateInput))

	require.InDelta(t, 11.0/12, units[0].LQ, tol)
	require.True(t, units[0].HasRCA)
	require.True(t, units[15].HasRCA)
	require.Equal(t, 9.0, units[15].Value)
	for _, u := range units {
		require.Nil(t, u.OOG)
		if !u.HasRCA {
			require.NotNil(t, u.Distance, "%s/%s", u.Location, u.Sector)
		}
	}
}

func TestSummarizeIsolatedLocation(t *testing.T) {
	for _, transpose := range []bool{false, true} {
		rows, rep, err := Summarize(isolated(t), SummaryOptions{Options: nestedOpts(), Transpose: transpose})
		require.NoError(t, err)
		require.Len(t, rows, 4)
		require.True(t, hasCode(rep.Warnings, analysiserr.DegenerateInput))
		require.Equal(t, 12.0, rows[0].Size)
		require.Equal(t, 9.0, rows[3].Size)
		for _, r := range rows {
			require.Nil(t, r.Index)
			require.Nil(t, r.Outlook)
		}
	}
}

func randomMatrix(t *testing.T, rng *rand.Rand, n, p int, sparsity float64) *matrix.Matrix {
	t.Helper()
	rows := make([]string, n)
	for i := range rows {
		rows[i] = fmt.Sprintf("c%d", i)
	}
	cols := make([]string, p)
	for j := range cols {
		cols[j] = fmt.Sprintf("p%d", j)
	}
	vals := make([]float64, n*p)
	for i := range vals {
		if rng.Float64() >= sparsity {
			vals[i] = math.Floor(rng.Float64()*100) + 1
		}
	}
	return mustMatrix(t, rows, cols, vals...)
}

func countOnes(m *matrix.Matrix) int {
	n, p := m.Dims()
	k := 0
	for i := 0; i < n; i++ {
		for j := 0; j < p; j++ {
			if m.At(i, j) == 1 {
				k++
			}
		}
	}
	return k
}

func TestRCAMonotoneInThreshold(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	thresholds := []float64{0, 0.25, 0.5, 1, 1.5, 2, 4}
	for trial := 0; trial < 20; trial++ {
		x := randomMatrix(t, rng, 3+rng.Intn(6), 3+rng.Intn(6), 0.3)
		prev := math.MaxInt
		for _, th := range thresholds {
			ones := countOnes(RCA(x, th))
			require.LessOrEqual(t, ones, prev, "trial %d threshold %v", trial, th)
			prev = ones
		}
	}
}

func TestProximitySymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for trial := 0; trial < 20; trial++ {
		x := randomMatrix(t, rng, 4+rng.Intn(6), 3+rng.Intn(6), 0.4)
		for _, th := range []float64{0.5, 1, 1.5} {
			phi := Proximity(x, th)
			n, p := phi.Dims()
			require.Equal(t, n, p)
			for i := 0; i < p; i++ {
				for j := i + 1; j < p; j++ {
					a, b := phi.At(i, j), phi.At(j, i)
					if math.IsNaN(a) {
						require.True(t, math.IsNaN(b))
						continue
					}
					require.InDelta(t, a, b, tol, "trial %d (%d,%d)", trial, i, j)
					require.GreaterOrEqual(t, a, 0.0)
					require.LessOrEqual(t, a, 1.0+tol)
				}
			}
		}
	}
}

func TestECIStandardisedAndSigned(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	computed := 0
	for trial := 0; trial < 30; trial++ {
		m := RCA(randomMatrix(t, rng, 4+rng.Intn(8), 4+rng.Intn(8), 0.2), 1)
		eci, _, err := ECI(m, nil, DefaultOptions())
		if errors.Is(err, analysiserr.ErrDegenerateInput) {
			continue
		}
		require.NoError(t, err, "trial %d", trial)
		computed++

		mean, std := stat.MeanStdDev(eci.Values, nil)
		require.InDelta(t, 0, mean, 1e-8, "trial %d", trial)
		require.InDelta(t, 1, std, 1e-8, "trial %d", trial)

		diversity := make([]float64, eci.Len())
		for i, k := range eci.Keys {
			r, ok := m.RowIndex(k)
			require.True(t, ok)
			for _, v := range m.Row(r) {
				diversity[i] += v
			}
		}
		if corr := stat.Correlation(diversity, eci.Values, nil); !math.IsNaN(corr) {
			require.GreaterOrEqual(t, corr, -1e-9, "trial %d", trial)
		}
	}
	require.Greater(t, computed, 10)
}
