package registry

import (
	"context"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// EnableWritesEnv turns on tools that write result files.
const EnableWritesEnv = "SECTORSPACE_ENABLE_WRITES"

// WriteToolFilter conditionally hides tools that write files unless explicitly enabled.
type WriteToolFilter struct {
	allowWrites bool
}

// NewWriteToolFilter constructs a filter with writes allowed or not.
func NewWriteToolFilter(allow bool) *WriteToolFilter {
	return &WriteToolFilter{allowWrites: allow}
}

// NewWriteToolFilterFromEnv constructs a filter using SECTORSPACE_ENABLE_WRITES.
func NewWriteToolFilterFromEnv() *WriteToolFilter {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnableWritesEnv)))
	return NewWriteToolFilter(v == "1" || v == "true" || v == "yes")
}

// AllowWrites reports whether write tools are served.
func (f *WriteToolFilter) AllowWrites() bool { return f.allowWrites }

// IsWriteTool reports whether name follows the write tool naming convention.
func IsWriteTool(name string) bool {
	name = strings.ToLower(name)
	return strings.HasPrefix(name, "write_") || strings.HasPrefix(name, "update_") || strings.HasPrefix(name, "transform_")
}

// FilterTools implements server tool filtering semantics.
// When writes are disabled, write_, update_ and transform_ tools are excluded
// from discovery.
func (f *WriteToolFilter) FilterTools(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
	if f.allowWrites {
		return tools
	}
	out := make([]mcp.Tool, 0, len(tools))
	for _, t := range tools {
		if IsWriteTool(t.Name) {
			continue
		}
		out = append(out, t)
	}
	return out
}
