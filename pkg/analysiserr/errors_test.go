package analysiserr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesSentinelByCode(t *testing.T) {
	err := Newf(DegenerateInput, "complexity.ECI", "only %d rows after pruning", 1)
	wrapped := fmt.Errorf("pipeline: complexity stage: %w", err)

	require.ErrorIs(t, wrapped, ErrDegenerateInput)
	require.NotErrorIs(t, wrapped, ErrAlignment)
	require.Equal(t, DegenerateInput, CodeOf(wrapped))
	require.Equal(t, "complexity.ECI: only 1 rows after pruning", err.Error())
}

func TestCodeOfFallbacks(t *testing.T) {
	require.Equal(t, Code(""), CodeOf(nil))
	require.Equal(t, Timeout, CodeOf(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	require.Equal(t, AnalysisFailed, CodeOf(errors.New("boom")))
}

func TestWrapUsesCatalogMessage(t *testing.T) {
	err := Wrap(ReadFailed, "datasets.Load", errors.New("sheet missing"))
	require.Equal(t, "datasets.Load: failed to read table: sheet missing", err.Error())
	require.ErrorContains(t, errors.Unwrap(err), "sheet missing")
}

func TestToolResultCarriesGuidance(t *testing.T) {
	res := ToolResult(Newf(Alignment, "complexity.COI", "sector 99 missing"))
	require.True(t, res.IsError)
	require.Len(t, res.Content, 1)

	require.Nil(t, ToolResult(nil))

	require.Equal(t, "UNKNOWN: x", normalize(Code("UNKNOWN"), "x"))
	require.Contains(t, normalize(Alignment, ""), "ALIGNMENT: labels do not align between inputs | nextSteps:")
}

func TestWarningString(t *testing.T) {
	w := NewWarning("complexity.ECI", "dropped all-zero rows", "S12000001", "S12000002")
	require.Equal(t, DataQuality, w.Code)
	require.Equal(t, "DATA_QUALITY: complexity.ECI: dropped all-zero rows [S12000001, S12000002]", w.String())
}
