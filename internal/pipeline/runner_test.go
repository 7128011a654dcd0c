package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/sectorspace/config"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
	"github.com/xuri/excelize/v2"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

// chainFixture has six sectors whose April 2020 search interest falls with
// the sector code, linked in a chain 10-20-30-40-50-60 closed by 10-60.
func chainFixture(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()

	var act strings.Builder
	act.WriteString("location,name,sector,value\n")
	values := map[string][]int{
		"S1": {50, 30, 5, 5, 5, 5},
		"S2": {5, 5, 40, 30, 10, 10},
		"S3": {10, 10, 10, 10, 40, 30},
	}
	for _, loc := range []string{"S1", "S2", "S3"} {
		for i, v := range values[loc] {
			fmt.Fprintf(&act, "%s,%s area,%d,%d\n", loc, loc, (i+1)*10, v)
		}
	}

	var trends strings.Builder
	trends.WriteString("keyword,sector,date,volume\n")
	for s := 10; s <= 60; s += 10 {
		fmt.Fprintf(&trends, "k%d,%d,2019-04-01,100\n", s, s)
		fmt.Fprintf(&trends, "k%d,%d,2020-04-01,%d\n", s, s, s)
	}

	edges := "a,b,weight\n10,20,5\n20,30,4\n30,40,3\n40,50,2\n50,60,1\n10,60,0.5\n"

	cfg := config.Config{}
	cfg.Inputs.Activity.Path = write(t, dir, "activity.csv", act.String())
	cfg.Inputs.Activity.Columns = config.ActivityColumns{Location: "location", Name: "name", Sector: "sector", Value: "value"}
	cfg.Inputs.Trends.Path = write(t, dir, "trends.csv", trends.String())
	cfg.Inputs.Trends.Columns = config.TrendColumns{Keyword: "keyword", Sector: "sector", Date: "date", Volume: "volume"}
	cfg.Inputs.Edges.Path = write(t, dir, "edges.csv", edges)
	cfg.Inputs.Edges.Columns = config.EdgeColumns{A: "a", B: "b", Weight: "weight"}
	cfg.Exposure.Weighted = true
	cfg.SectorSpace.ExtraEdges = 100
	cfg.SectorSpace.Layout = true
	cfg.Diversification.LowDiversityLevel = 3
	cfg.Output.Workbook = filepath.Join(dir, "results.xlsx")
	cfg.Output.Manifest = filepath.Join(dir, "manifest.yaml")
	config.ApplyDefaults(&cfg)
	return cfg
}

func TestRunChain(t *testing.T) {
	cfg := chainFixture(t)
	cfg.Output.CSVDir = filepath.Dir(cfg.Output.Workbook)

	m, err := NewRunner(zerolog.Nop()).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.NotEmpty(t, m.RunID)
	require.Len(t, m.Stages, 7)
	require.Equal(t, 3, m.Counts.Locations)
	require.Equal(t, 6, m.Counts.Sectors)
	require.Equal(t, 1, m.Counts.Months)
	require.Equal(t, 5, m.Counts.TreeEdges)
	require.Equal(t, 1, m.Counts.ExtraEdges)
	require.Equal(t, 2, m.Counts.DiversifiedRows)
	require.Len(t, m.Inputs, 3)

	// Each location specialises in its own pair of sectors, so the index is
	// degenerate while the rest of the complexity output survives.
	var sawUnweighted, sawDegenerate bool
	for _, w := range m.Warnings {
		if strings.Contains(w.Message, "without a salience table") {
			sawUnweighted = true
		}
		if w.Code == analysiserr.DegenerateInput {
			sawDegenerate = true
		}
	}
	require.True(t, sawUnweighted)
	require.True(t, sawDegenerate)

	locs, err := datasets.ReadTable(cfg.Output.Workbook, "locations", 0)
	require.NoError(t, err)
	require.Equal(t, 3, locs.Len())
	fitCol, ok := locs.Column("log_fitness")
	require.True(t, ok)
	plusCol, ok := locs.Column("fitness_plus")
	require.True(t, ok)
	require.Equal(t, fitCol+1, plusCol)
	for r := range locs.Rows {
		require.NotEmpty(t, locs.Cell(r, plusCol), "row %d", r)
	}

	exp, err := datasets.ReadTable(cfg.Output.Workbook, "exposure", 0)
	require.NoError(t, err)
	ranks := map[string]string{}
	for r := range exp.Rows {
		ranks[exp.Cell(r, 0)] = exp.Cell(r, 4)
	}
	require.Equal(t, "9", ranks["10"])
	require.Equal(t, "7", ranks["20"])
	require.Equal(t, "0", ranks["60"])

	// 10 reaches the safe sectors 60, 50, 40 at 1, 2, 3 hops; 20 at 2, 3, 2.
	div, err := datasets.ReadTable(cfg.Output.Workbook, "diversification", 0)
	require.NoError(t, err)
	require.Equal(t, 2, div.Len())
	require.Equal(t, "20", div.Cell(0, 0))
	require.Equal(t, "2", div.Cell(0, 3))
	require.Equal(t, "3", div.Cell(0, 4))
	require.Equal(t, "10", div.Cell(1, 0))
	require.Equal(t, "2", div.Cell(1, 2))
	require.Equal(t, "0", div.Cell(1, 4))

	// Sector 20 is the only one at diversification rank 3: 30 of S1's 100.
	low, err := datasets.ReadTable(filepath.Join(cfg.Output.CSVDir, "low_diversification.csv"), "", 0)
	require.NoError(t, err)
	require.Equal(t, "S1", low.Cell(0, 0))
	require.Equal(t, "0.3", low.Cell(0, 3))

	nodes, err := datasets.ReadTable(cfg.Output.Workbook, "network_nodes", 0)
	require.NoError(t, err)
	require.Equal(t, 6, nodes.Len())
	require.NotEmpty(t, nodes.Cell(0, 2))

	saved, err := ReadManifest(cfg.Output.Manifest)
	require.NoError(t, err)
	require.Equal(t, m.RunID, saved.RunID)
	require.Equal(t, m.Counts, saved.Counts)
	require.Contains(t, saved.Outputs, cfg.Output.Workbook)
	require.Equal(t, cfg.SectorSpace.ExtraEdges, saved.Config.SectorSpace.ExtraEdges)
	require.NotEmpty(t, saved.Build.Version)
}

func TestRunMonthFilter(t *testing.T) {
	cfg := chainFixture(t)
	cfg.Diversification.Months = []string{"2020-05"}

	m, err := NewRunner(zerolog.Nop()).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 0, m.Counts.DiversifiedRows)
}

func TestRunMissingColumn(t *testing.T) {
	cfg := chainFixture(t)
	cfg.Inputs.Activity.Columns.Value = "employment"

	m, err := NewRunner(zerolog.Nop()).Run(context.Background(), cfg)
	require.ErrorIs(t, err, analysiserr.ErrValidation)
	require.Contains(t, err.Error(), "load")
	require.Len(t, m.Stages, 1)
	_, statErr := os.Stat(cfg.Output.Workbook)
	require.True(t, os.IsNotExist(statErr))
}

type denyOutputs struct{}

func (denyOutputs) ValidateOpenPath(p string) (string, error) { return p, nil }
func (denyOutputs) ValidateOutputPath(string) (string, error) {
	return "", fmt.Errorf("outside allow-list")
}

func TestRunOutputDenied(t *testing.T) {
	cfg := chainFixture(t)
	_, err := NewRunner(zerolog.Nop(), WithPathValidator(denyOutputs{})).Run(context.Background(), cfg)
	require.ErrorIs(t, err, analysiserr.ErrPermissionDenied)
}

func TestRunDisconnectedNetwork(t *testing.T) {
	cfg := chainFixture(t)
	cfg.Inputs.Edges.Path = write(t, t.TempDir(), "edges.csv", "a,b,weight\n10,20,1\n30,40,1\n")

	_, err := NewRunner(zerolog.Nop()).Run(context.Background(), cfg)
	require.ErrorIs(t, err, analysiserr.ErrDegenerateInput)
	require.Contains(t, err.Error(), "sector_space")
}

func writeTaxonomy(t *testing.T, dir string) string {
	t.Helper()
	rows := [][]any{
		{"SECTION", "", "Division", "", "Group", "", "Class", ""},
		{"A", "AGRICULTURE"},
		{"", "", "01", "Crop and animal production"},
		{"", "", "", "", "", "", "01.11", "Growing of cereals"},
		{"G", "WHOLESALE AND RETAIL TRADE"},
		{"", "", "47", "Retail trade"},
		{"", "", "", "", "", "", "47.11", "Retail sale in non-specialised stores"},
		{"I", "ACCOMMODATION AND FOOD SERVICE ACTIVITIES"},
		{"", "", "55", "Accommodation"},
		{"", "", "", "", "", "", "55.10", "Hotels"},
		{"", "", "56", "Food and beverage service activities"},
		{"", "", "", "", "", "", "56.10", "Restaurants"},
		{"", "", "", "", "", "", "56.30", "Beverage serving activities"},
	}
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &rows[i]))
	}
	p := filepath.Join(dir, "sic2007.xlsx")
	require.NoError(t, f.SaveAs(p))
	require.NoError(t, f.Close())
	return p
}

func TestRunPredictionsWithTaxonomy(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{}
	cfg.Inputs.Taxonomy.Path = writeTaxonomy(t, dir)
	cfg.Inputs.Activity.Path = write(t, dir, "activity.csv", "location,sector,value\n"+
		"S1,5610,10\nS1,5630,5\nS1,0111,2\nS1,4711,8\n"+
		"S2,5510,7\nS2,4711,3\nS2,0111,9\nS2,9999,1\n")
	cfg.Inputs.Activity.Columns = config.ActivityColumns{Location: "location", Sector: "sector", Value: "value"}
	cfg.Inputs.Activity.SICClasses = true

	var trends strings.Builder
	trends.WriteString("keyword,sector,date,volume\n")
	for i, s := range []string{"01", "47", "55", "56"} {
		fmt.Fprintf(&trends, "k%s,%s,2019-04-01,100\n", s, s)
		fmt.Fprintf(&trends, "k%s,%s,2020-04-01,%d\n", s, s, (i+1)*10)
	}
	cfg.Inputs.Trends.Path = write(t, dir, "trends.csv", trends.String())
	cfg.Inputs.Trends.Columns = config.TrendColumns{Keyword: "keyword", Sector: "sector", Date: "date", Volume: "volume"}
	cfg.Inputs.Predictions.Path = write(t, dir, "pred.csv", "id,01,47,55,56\n"+
		"d1,0.9,0.8,0.1,0.1\nd2,0.1,0.7,0.6,0.2\nd3,0.2,0.1,0.9,0.9\nd4,0.6,0.6,0,0\n")
	cfg.Exposure.SectorLevel = "section"
	cfg.Output.Workbook = filepath.Join(dir, "results.xlsx")
	config.ApplyDefaults(&cfg)

	m, err := NewRunner(zerolog.Nop()).Run(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, 4, m.Counts.Sectors)
	require.Equal(t, 4, m.Counts.NetworkNodes)
	require.Equal(t, 1, m.Counts.DiversifiedRows)
	require.Equal(t, "taxonomy", m.Inputs[0].Role)

	var sawUnknown bool
	for _, w := range m.Warnings {
		if strings.Contains(w.Message, "unknown SIC class") {
			sawUnknown = true
			require.Equal(t, []string{"9999"}, w.Labels)
		}
	}
	require.True(t, sawUnknown)

	sections, err := datasets.ReadTable(cfg.Output.Workbook, "exposure_sections", 0)
	require.NoError(t, err)
	require.Equal(t, 3, sections.Len())
	require.True(t, strings.HasPrefix(sections.Cell(0, 0), "A: "))
}
