package complexity

import (
	"math"

	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"gonum.org/v1/gonum/mat"
)

// outlookInputs holds the RCA, distance and proximity matrices aligned to the
// sectors that survive PCI pruning, together with the PCI values.
type outlookInputs struct {
	m, d *matrix.Matrix
	phi  *mat.Dense
	pci  []float64
	rep  Report
}

func alignOutlook(op string, x *matrix.Matrix, opts Options) (*outlookInputs, error) {
	opts = opts.withDefaults()
	m := RCA(x, opts.Threshold)
	phi := proximityFromRCA(m)
	d := distanceFrom(m, densityFrom(m, phi))

	proxy, err := matrix.NewVector(x.ColKeys(), x.ColSums())
	if err != nil {
		return nil, analysiserr.Wrap(analysiserr.Validation, op, err)
	}
	pci, rep, err := PCI(m, &proxy, opts)
	if err != nil {
		return nil, err
	}
	if pci.Len() == 0 {
		return nil, analysiserr.Newf(analysiserr.Alignment, op, "no sectors shared between PCI and the activity matrix")
	}
	for _, k := range pci.Keys {
		if _, ok := m.ColIndex(k); !ok {
			return nil, analysiserr.Newf(analysiserr.Alignment, op, "PCI sector %q missing from the activity matrix", k)
		}
	}

	if pci.Len() != len(m.ColKeys()) {
		if m, err = m.SelectCols(pci.Keys); err != nil {
			return nil, analysiserr.Wrap(analysiserr.Alignment, op, err)
		}
		if d, err = d.SelectCols(pci.Keys); err != nil {
			return nil, analysiserr.Wrap(analysiserr.Alignment, op, err)
		}
		if phi, err = phi.SelectCols(pci.Keys); err != nil {
			return nil, analysiserr.Wrap(analysiserr.Alignment, op, err)
		}
		if phi, err = phi.SelectRows(pci.Keys); err != nil {
			return nil, analysiserr.Wrap(analysiserr.Alignment, op, err)
		}
	}
	return &outlookInputs{m: m, d: d, phi: zeroNaN(phi), pci: pci.Values, rep: rep}, nil
}

// ComplexityOutlookIndex sums, for every location, (1 - distance)·PCI over the
// sectors where the location has no RCA. Sectors dropped while computing PCI
// are excluded.
func ComplexityOutlookIndex(x *matrix.Matrix, opts Options) (matrix.Vector, Report, error) {
	const op = "complexity.ComplexityOutlookIndex"
	in, err := alignOutlook(op, x, opts)
	if err != nil {
		return matrix.Vector{}, Report{}, err
	}
	n, p := in.m.Dims()
	coi := make([]float64, n)
	for c := 0; c < n; c++ {
		for j := 0; j < p; j++ {
			if in.m.At(c, j) == 1 {
				continue
			}
			coi[c] += (1 - in.d.At(c, j)) * in.pci[j]
		}
	}
	return matrix.Vector{Keys: in.m.RowKeys(), Values: coi}, in.rep, nil
}

// OpportunityOutlookGain returns, per (location, sector), the gain in outlook
// from developing the sector:
// sum_q (1-M[c,q])·PCI[q]·phi[q,p]/sum_q' phi[q',p] - (1-d[c,p])·PCI[p].
// Cells where the location already has RCA are NaN.
func OpportunityOutlookGain(x *matrix.Matrix, opts Options) (*matrix.Matrix, Report, error) {
	const op = "complexity.OpportunityOutlookGain"
	in, err := alignOutlook(op, x, opts)
	if err != nil {
		return nil, Report{}, err
	}
	n, p := in.m.Dims()

	weighted := mat.NewDense(n, p, nil)
	weighted.Apply(func(c, q int, v float64) float64 { return (1 - v) * in.pci[q] }, in.m.Dense())

	mass := colSums(in.phi)
	norm := mat.NewDense(p, p, nil)
	norm.Apply(func(q, j int, v float64) float64 {
		if mass[j] == 0 {
			return 0
		}
		return v / mass[j]
	}, in.phi)

	gain := mat.NewDense(n, p, nil)
	gain.Mul(weighted, norm)

	out := in.m.Apply(func(c, j int, v float64) float64 {
		if v == 1 {
			return math.NaN()
		}
		return gain.At(c, j) - (1-in.d.At(c, j))*in.pci[j]
	})
	return out, in.rep, nil
}
