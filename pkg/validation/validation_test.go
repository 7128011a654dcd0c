package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/sectorspace/pkg/pagination"
)

type sample struct {
	Path   string    `validate:"required,filepath_ext"`
	Month  string    `validate:"omitempty,month"`
	Edges  []float64 `validate:"quantile_edges"`
	Cursor string    `validate:"omitempty,cursor"`
	Extra  int       `validate:"gte=0"`
}

func TestValidateStructAcceptsGoodInput(t *testing.T) {
	tok, err := pagination.EncodeCursor(pagination.Cursor{Rid: "run", K: "exposure", Off: 10, Ps: 10})
	require.NoError(t, err)
	require.Empty(t, ValidateStruct(sample{Path: "a.csv", Month: "2020-04", Edges: []float64{0, 0.5, 1}, Cursor: tok}))
	require.Empty(t, ValidateStruct(sample{Path: "a.XLSX"}))
}

func TestValidateStructMessages(t *testing.T) {
	cases := []struct {
		in   sample
		want string
	}{
		{sample{}, "VALIDATION: path is required"},
		{sample{Path: "a.xls"}, "VALIDATION: path must be an .xlsx or .csv file"},
		{sample{Path: "a.csv", Month: "2020-13"}, "VALIDATION: month must be a YYYY-MM month"},
		{sample{Path: "a.csv", Edges: []float64{0, 0.6, 0.6, 1}}, "VALIDATION: edges must start at 0, end at 1 and increase strictly"},
		{sample{Path: "a.csv", Cursor: "!!"}, "CURSOR_INVALID: failed to decode cursor; restart pagination"},
		{sample{Path: "a.csv", Extra: -1}, "VALIDATION: extra must satisfy gte=0"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, ValidateStruct(tc.in))
	}
}
