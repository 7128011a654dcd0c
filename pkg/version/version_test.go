package version

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetIgnoresEmpty(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	Set("")
	require.Equal(t, old, version)
	Set("v1.2.3")
	require.Equal(t, "v1.2.3", version)
	require.NotEmpty(t, Build().Version)
}
