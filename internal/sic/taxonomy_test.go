package sic

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/sectorspace/internal/matrix"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/xuri/excelize/v2"
)

var structureRows = [][]string{
	{"UK SIC 2007"},
	{"SECTION", "", "Division", "", "Group", "", "Class", "", "Sub Class", ""},
	{"A", "AGRICULTURE, FORESTRY AND FISHING"},
	{"", "", "01", "Crop and animal production"},
	{"", "", "", "", "01.1", "Growing of non-perennial crops"},
	{"", "", "", "", "", "", "01.11", "Growing of cereals"},
	{"I ", "ACCOMMODATION AND FOOD SERVICE ACTIVITIES"},
	{"", "", "55", "Accommodation"},
	{"", "", "", "", "", "", "55.10", "Hotels and similar accommodation"},
	{"", "", "56", "Food and beverage service activities"},
	{"", "", "", "", "", "", "56.10", "Restaurants"},
	{"", "", "", "", "", "", "56.30", "Beverage serving activities"},
}

func TestParseLookups(t *testing.T) {
	tx, err := Parse(structureRows)
	require.NoError(t, err)

	require.Equal(t, []string{"01", "55", "56"}, tx.Divisions())
	name, ok := tx.DivisionName("56")
	require.True(t, ok)
	require.Equal(t, "Food and beverage service activities", name)

	sec, ok := tx.SectionOf("55")
	require.True(t, ok)
	require.Equal(t, "I", sec)
	require.Equal(t, "I: ACCOMMODATION AND FOOD SERVICE ACTIVITIES", tx.SectionName(sec))
	require.Equal(t, "Z", tx.SectionName("Z"))

	cls, ok := tx.ClassName("56.30")
	require.True(t, ok)
	require.Equal(t, "Beverage serving activities", cls)

	_, err = Parse([][]string{{"nothing"}})
	require.ErrorIs(t, err, analysiserr.ErrValidation)
}

func TestAggregateClasses(t *testing.T) {
	tx, err := Parse(structureRows)
	require.NoError(t, err)

	out, unknown := tx.AggregateClasses([]matrix.Record{
		{LocationID: "S1", LocationName: "Edinburgh", Sector: "5610", Value: 10},
		{LocationID: "S1", LocationName: "Edinburgh", Sector: "56.30", Value: 5},
		{LocationID: "S1", LocationName: "Edinburgh", Sector: "0111", Value: 2},
		{LocationID: "S2", LocationName: "Glasgow", Sector: "5510", Value: 7},
		{LocationID: "S2", LocationName: "Glasgow", Sector: "9999", Value: 1},
	})
	require.Equal(t, []string{"9999"}, unknown)
	require.Equal(t, []matrix.Record{
		{LocationID: "S1", LocationName: "Edinburgh", Sector: "56", Value: 15},
		{LocationID: "S1", LocationName: "Edinburgh", Sector: "01", Value: 2},
		{LocationID: "S2", LocationName: "Glasgow", Sector: "55", Value: 7},
	}, out)

	d, err := DivisionOfClass("47.11")
	require.NoError(t, err)
	require.Equal(t, "47", d)
	_, err = DivisionOfClass("4")
	require.Error(t, err)
}

func TestLoadWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, r := range structureRows {
		cellRef, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		row := make([]interface{}, len(r))
		for j, v := range r {
			row[j] = v
		}
		require.NoError(t, f.SetSheetRow(sheet, cellRef, &row))
	}
	path := filepath.Join(t.TempDir(), "sic2007.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tx, err := Load(path)
	require.NoError(t, err)
	require.Len(t, tx.Divisions(), 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
}
