// Package matrix holds the labelled location-by-sector matrices shared by the
// complexity, exposure and diversification engines.
package matrix

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Matrix is an immutable labelled dense matrix. Rows are locations (or sectors
// after a transpose), columns are sectors. Every operation returns a new Matrix.
type Matrix struct {
	rows     []string
	rowNames []string
	cols     []string
	data     *mat.Dense
}

// New builds a Matrix from row-major values.
func New(rows, cols []string, values []float64) (*Matrix, error) {
	if len(values) != len(rows)*len(cols) {
		return nil, fmt.Errorf("matrix: %d values for %dx%d shape", len(values), len(rows), len(cols))
	}
	if err := checkUnique("row", rows); err != nil {
		return nil, err
	}
	if err := checkUnique("column", cols); err != nil {
		return nil, err
	}
	var d *mat.Dense
	if len(rows) > 0 && len(cols) > 0 {
		d = mat.NewDense(len(rows), len(cols), append([]float64(nil), values...))
	}
	return &Matrix{
		rows:     append([]string(nil), rows...),
		rowNames: append([]string(nil), rows...),
		cols:     append([]string(nil), cols...),
		data:     d,
	}, nil
}

// Wrap labels an existing dense matrix. The matrix is not copied and must not be mutated afterwards.
func Wrap(rows, cols []string, d *mat.Dense) (*Matrix, error) {
	if d == nil {
		if len(rows) == 0 || len(cols) == 0 {
			return &Matrix{rows: rows, rowNames: rows, cols: cols}, nil
		}
		return nil, fmt.Errorf("matrix: nil data for %dx%d labels", len(rows), len(cols))
	}
	r, c := d.Dims()
	if r != len(rows) || c != len(cols) {
		return nil, fmt.Errorf("matrix: labels %dx%d do not match data %dx%d", len(rows), len(cols), r, c)
	}
	if err := checkUnique("row", rows); err != nil {
		return nil, err
	}
	if err := checkUnique("column", cols); err != nil {
		return nil, err
	}
	return &Matrix{rows: rows, rowNames: rows, cols: cols, data: d}, nil
}

func mustWrap(rows, cols []string, d *mat.Dense) *Matrix {
	m, err := Wrap(rows, cols, d)
	if err != nil {
		panic(err)
	}
	return m
}

func checkUnique(kind string, keys []string) error {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			return fmt.Errorf("matrix: duplicate %s key %q", kind, k)
		}
		seen[k] = struct{}{}
	}
	return nil
}

// WithRowNames returns a copy carrying display names for the rows.
func (m *Matrix) WithRowNames(names []string) (*Matrix, error) {
	if len(names) != len(m.rows) {
		return nil, fmt.Errorf("matrix: %d row names for %d rows", len(names), len(m.rows))
	}
	out := *m
	out.rowNames = append([]string(nil), names...)
	return &out, nil
}

// Dims returns the number of rows and columns.
func (m *Matrix) Dims() (int, int) { return len(m.rows), len(m.cols) }

// Empty reports whether the matrix has no cells.
func (m *Matrix) Empty() bool { return len(m.rows) == 0 || len(m.cols) == 0 }

// RowKeys returns a copy of the row labels.
func (m *Matrix) RowKeys() []string { return append([]string(nil), m.rows...) }

// ColKeys returns a copy of the column labels.
func (m *Matrix) ColKeys() []string { return append([]string(nil), m.cols...) }

// RowName returns the display name of row i.
func (m *Matrix) RowName(i int) string { return m.rowNames[i] }

// RowIndex finds a row by key.
func (m *Matrix) RowIndex(key string) (int, bool) { return indexOf(m.rows, key) }

// ColIndex finds a column by key.
func (m *Matrix) ColIndex(key string) (int, bool) { return indexOf(m.cols, key) }

func indexOf(keys []string, key string) (int, bool) {
	for i, k := range keys {
		if k == key {
			return i, true
		}
	}
	return -1, false
}

// At returns the value at row i, column j.
func (m *Matrix) At(i, j int) float64 { return m.data.At(i, j) }

// Get returns the value at (row, col) keys.
func (m *Matrix) Get(row, col string) (float64, bool) {
	i, ok := m.RowIndex(row)
	if !ok {
		return 0, false
	}
	j, ok := m.ColIndex(col)
	if !ok {
		return 0, false
	}
	return m.data.At(i, j), true
}

// Dense returns a copy of the values. It returns nil for an empty matrix.
func (m *Matrix) Dense() *mat.Dense {
	if m.data == nil {
		return nil
	}
	return mat.DenseCopyOf(m.data)
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) []float64 {
	return mat.Row(nil, i, m.data)
}

// Col returns a copy of column j.
func (m *Matrix) Col(j int) []float64 {
	return mat.Col(nil, j, m.data)
}

// RowSums sums each row, skipping NaN cells.
func (m *Matrix) RowSums() []float64 {
	r, c := m.Dims()
	out := make([]float64, r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.data.At(i, j); !math.IsNaN(v) {
				out[i] += v
			}
		}
	}
	return out
}

// ColSums sums each column, skipping NaN cells.
func (m *Matrix) ColSums() []float64 {
	r, c := m.Dims()
	out := make([]float64, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := m.data.At(i, j); !math.IsNaN(v) {
				out[j] += v
			}
		}
	}
	return out
}

// Total sums every non-NaN cell.
func (m *Matrix) Total() float64 {
	var s float64
	for _, v := range m.RowSums() {
		s += v
	}
	return s
}

// T returns the transpose. Row display names fall back to the new row keys.
func (m *Matrix) T() *Matrix {
	if m.data == nil {
		return &Matrix{rows: m.cols, rowNames: m.cols, cols: m.rows}
	}
	return mustWrap(m.ColKeys(), m.RowKeys(), mat.DenseCopyOf(m.data.T()))
}

// Apply maps every cell through fn.
func (m *Matrix) Apply(fn func(i, j int, v float64) float64) *Matrix {
	if m.data == nil {
		return m
	}
	r, c := m.Dims()
	d := mat.NewDense(r, c, nil)
	d.Apply(fn, m.data)
	out := mustWrap(m.RowKeys(), m.ColKeys(), d)
	out.rowNames = append([]string(nil), m.rowNames...)
	return out
}

// DropZero removes all-zero rows, then all-zero columns of what remains.
// The dropped labels are returned in their original order.
func (m *Matrix) DropZero() (*Matrix, []string, []string) {
	var keepRows, droppedRows []int
	var droppedRowKeys []string
	for i, s := range m.RowSums() {
		if s == 0 {
			droppedRows = append(droppedRows, i)
			droppedRowKeys = append(droppedRowKeys, m.rows[i])
			continue
		}
		keepRows = append(keepRows, i)
	}
	var keepCols []int
	var droppedColKeys []string
	for j := range m.cols {
		var s float64
		for _, i := range keepRows {
			if v := m.data.At(i, j); !math.IsNaN(v) {
				s += v
			}
		}
		if s == 0 {
			droppedColKeys = append(droppedColKeys, m.cols[j])
			continue
		}
		keepCols = append(keepCols, j)
	}
	return m.subset(keepRows, keepCols), droppedRowKeys, droppedColKeys
}

func (m *Matrix) subset(rowIdx, colIdx []int) *Matrix {
	rows := make([]string, len(rowIdx))
	names := make([]string, len(rowIdx))
	for k, i := range rowIdx {
		rows[k] = m.rows[i]
		names[k] = m.rowNames[i]
	}
	cols := make([]string, len(colIdx))
	for k, j := range colIdx {
		cols[k] = m.cols[j]
	}
	if len(rowIdx) == 0 || len(colIdx) == 0 {
		return &Matrix{rows: rows, rowNames: names, cols: cols}
	}
	d := mat.NewDense(len(rowIdx), len(colIdx), nil)
	for a, i := range rowIdx {
		for b, j := range colIdx {
			d.Set(a, b, m.data.At(i, j))
		}
	}
	return &Matrix{rows: rows, rowNames: names, cols: cols, data: d}
}

// SelectCols reorders and restricts columns to keys. Unknown keys are an error.
func (m *Matrix) SelectCols(keys []string) (*Matrix, error) {
	idx := make([]int, len(keys))
	for k, key := range keys {
		j, ok := m.ColIndex(key)
		if !ok {
			return nil, fmt.Errorf("matrix: unknown column %q", key)
		}
		idx[k] = j
	}
	all := make([]int, len(m.rows))
	for i := range all {
		all[i] = i
	}
	return m.subset(all, idx), nil
}

// SelectRows reorders and restricts rows to keys. Unknown keys are an error.
func (m *Matrix) SelectRows(keys []string) (*Matrix, error) {
	idx := make([]int, len(keys))
	for k, key := range keys {
		i, ok := m.RowIndex(key)
		if !ok {
			return nil, fmt.Errorf("matrix: unknown row %q", key)
		}
		idx[k] = i
	}
	all := make([]int, len(m.cols))
	for j := range all {
		all[j] = j
	}
	return m.subset(idx, all), nil
}
