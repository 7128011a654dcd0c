package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vinodismyname/sectorspace/internal/datasets"
	"github.com/vinodismyname/sectorspace/internal/insights"
	"github.com/vinodismyname/sectorspace/internal/pipeline"
	"github.com/vinodismyname/sectorspace/internal/runtime"
	"github.com/vinodismyname/sectorspace/internal/security"
	"github.com/vinodismyname/sectorspace/internal/telemetry"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func newDeps(t *testing.T) Deps {
	t.Helper()
	mgr := datasets.NewManager(0, 0, nil, nil)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	return Deps{
		Limits: runtime.NewLimits(2, 2),
		Tables: mgr,
		Hooks:  telemetry.NewHooks(zerolog.Nop()),
		Logger: zerolog.Nop(),
	}
}

func TestRegistrySortedAndFiltered(t *testing.T) {
	s := server.NewMCPServer("test", "0")
	reg := New()
	RegisterSectorTools(s, reg, newDeps(t))
	RegisterWriteTools(s, reg, pipeline.NewRunner(zerolog.Nop()), nil)

	require.Equal(t, []string{
		"complexity_profile",
		"diversification_options",
		"sector_exposure",
		"sector_space",
		"write_results",
	}, reg.Names())
	_, ok := reg.Get("sector_space")
	require.True(t, ok)

	tools, err := reg.Tools(context.Background())
	require.NoError(t, err)

	t.Setenv(EnableWritesEnv, "")
	require.Len(t, NewWriteToolFilterFromEnv().FilterTools(context.Background(), tools), 4)

	t.Setenv(EnableWritesEnv, "true")
	f := NewWriteToolFilterFromEnv()
	require.True(t, f.AllowWrites())
	require.Len(t, f.FilterTools(context.Background(), tools), 5)
}

func TestTypedHandlerValidatesInput(t *testing.T) {
	d := newDeps(t)
	p := &insights.Profiler{Limits: d.Limits, Mgr: d.Tables}
	h := typed("complexity_profile", d.Hooks, p.Profile, func(insights.ComplexityProfileOutput) string { return "" })

	res, err := h(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{
		Name:      "complexity_profile",
		Arguments: map[string]any{"path": "activity.txt"},
	}})
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res), "VALIDATION")
}

func TestTypedHandlerStructuredResult(t *testing.T) {
	d := newDeps(t)
	path := filepath.Join(t.TempDir(), "activity.csv")
	require.NoError(t, os.WriteFile(path, []byte("location,sector,value\nc0,p0,4\nc0,p1,4\nc0,p2,4\nc1,p0,4\nc1,p1,4\nc2,p0,4\n"), 0o600))

	p := &insights.Profiler{Limits: d.Limits, Mgr: d.Tables}
	h := typed("complexity_profile", d.Hooks, p.Profile, func(out insights.ComplexityProfileOutput) string {
		return fmt.Sprintf("locations=%d", out.Locations)
	})
	res, err := h(context.Background(), mcp.CallToolRequest{Params: mcp.CallToolParams{
		Name:      "complexity_profile",
		Arguments: map[string]any{"path": path, "rca_threshold": 0.5},
	}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Equal(t, "locations=3", text(t, res))
	require.NotNil(t, res.StructuredContent)
}

func TestToolErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want analysiserr.Code
	}{
		{fmt.Errorf("open: %w", security.ErrNotAllowed), analysiserr.PermissionDenied},
		{security.ErrUnsupportedExtension, analysiserr.UnsupportedFormat},
		{security.ErrNotFound, analysiserr.OpenFailed},
		{context.DeadlineExceeded, analysiserr.Timeout},
		{analysiserr.Newf(analysiserr.DegenerateInput, "complexity.ECI", "disconnected"), analysiserr.DegenerateInput},
	}
	for _, tc := range cases {
		res := toolError(tc.err)
		require.True(t, res.IsError)
		require.Contains(t, text(t, res), string(tc.want)+":")
	}
}
