package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/sectorspace/internal/security"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

// pipelineConfig writes a six-sector chain fixture and the YAML naming it.
func pipelineConfig(t *testing.T, dir string) string {
	t.Helper()
	var act strings.Builder
	act.WriteString("location,sector,value\n")
	values := map[string][]int{
		"S1": {50, 30, 5, 5, 5, 5},
		"S2": {5, 5, 40, 30, 10, 10},
		"S3": {10, 10, 10, 10, 40, 30},
	}
	for _, loc := range []string{"S1", "S2", "S3"} {
		for i, v := range values[loc] {
			fmt.Fprintf(&act, "%s,%d,%d\n", loc, (i+1)*10, v)
		}
	}
	var trends strings.Builder
	trends.WriteString("keyword,sector,date,volume\n")
	for s := 10; s <= 60; s += 10 {
		fmt.Fprintf(&trends, "k%d,%d,2019-04-01,100\n", s, s)
		fmt.Fprintf(&trends, "k%d,%d,2020-04-01,%d\n", s, s, s)
	}

	yaml := fmt.Sprintf(`inputs:
  activity:
    path: %s
  trends:
    path: %s
  edges:
    path: %s
exposure:
  weighted: false
sector_space:
  layout: false
output:
  workbook: %s
  manifest: %s
log:
  level: error
`,
		write(t, dir, "activity.csv", act.String()),
		write(t, dir, "trends.csv", trends.String()),
		write(t, dir, "edges.csv", "a,b,weight\n10,20,5\n20,30,4\n30,40,3\n40,50,2\n50,60,1\n10,60,0.5\n"),
		filepath.Join(dir, "results.xlsx"),
		filepath.Join(dir, "manifest.yaml"),
	)
	return write(t, dir, "pipeline.yaml", yaml)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { runConfigPath = "" })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsDefined(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["version"])

	flag := runCmd.Flags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "sectorspace "))
}

func TestRunCommand(t *testing.T) {
	t.Setenv(security.AllowedDirsEnv, "")
	dir := t.TempDir()
	out, err := execute(t, "run", "--config", pipelineConfig(t, dir))
	require.NoError(t, err)
	assert.Contains(t, out, "3 locations, 6 sectors, 1 months")
	assert.Contains(t, out, "6 nodes, 5 tree + 1 extra edges")
	assert.Contains(t, out, "diversification: 2 ranked rows")
	assert.Contains(t, out, "wrote "+filepath.Join(dir, "results.xlsx"))

	_, err = os.Stat(filepath.Join(dir, "manifest.yaml"))
	require.NoError(t, err)
}

func TestRunCommandOutsideAllowList(t *testing.T) {
	t.Setenv(security.AllowedDirsEnv, t.TempDir())
	_, err := execute(t, "run", "--config", pipelineConfig(t, t.TempDir()))
	require.Error(t, err)
}

func TestRunCommandMissingConfig(t *testing.T) {
	_, err := execute(t, "run", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
