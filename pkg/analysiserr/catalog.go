package analysiserr

import (
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Code defines a canonical error code shared by the analysis engines, the CLI and MCP tools.
type Code string

const (
	// Validation & Input
	Validation        Code = "VALIDATION"
	CursorInvalid     Code = "CURSOR_INVALID"
	CursorBuildFailed Code = "CURSOR_BUILD_FAILED"

	// Analysis
	DataQuality     Code = "DATA_QUALITY"
	DegenerateInput Code = "DEGENERATE_INPUT"
	Alignment       Code = "ALIGNMENT"
	Unreachable     Code = "UNREACHABLE"
	AnalysisFailed  Code = "ANALYSIS_FAILED"

	// Resource & Limits
	BusyResource    Code = "BUSY_RESOURCE"
	Timeout         Code = "TIMEOUT"
	LimitExceeded   Code = "LIMIT_EXCEEDED"
	PayloadTooLarge Code = "PAYLOAD_TOO_LARGE"

	// IO & Formats
	OpenFailed        Code = "OPEN_FAILED"
	ReadFailed        Code = "READ_FAILED"
	WriteFailed       Code = "WRITE_FAILED"
	UnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	PermissionDenied  Code = "PERMISSION_DENIED"
)

// Entry documents a code's standard message, retry semantics, and next steps.
type Entry struct {
	Code      Code
	Message   string
	Retryable bool
	NextSteps []string
}

// catalog maps canonical codes to guidance. Messages can be overridden per error.
var catalog = map[Code]Entry{
	Validation:        {Code: Validation, Message: "invalid inputs", Retryable: true, NextSteps: []string{"Correct the inputs per schema and retry"}},
	CursorInvalid:     {Code: CursorInvalid, Message: "cursor is invalid for current context", Retryable: true, NextSteps: []string{"Restart pagination from the first page", "Reissue the query with identical inputs"}},
	CursorBuildFailed: {Code: CursorBuildFailed, Message: "failed to encode next page cursor", Retryable: true, NextSteps: []string{"Retry or use a smaller page size"}},

	DataQuality:     {Code: DataQuality, Message: "input data was corrected or coarsened", Retryable: false, NextSteps: []string{"Inspect the warning labels and upstream tables"}},
	DegenerateInput: {Code: DegenerateInput, Message: "input too degenerate for the requested computation", Retryable: false, NextSteps: []string{"Provide more locations or sectors", "Check that the activity network is connected"}},
	Alignment:       {Code: Alignment, Message: "labels do not align between inputs", Retryable: false, NextSteps: []string{"Use the same sector codes across tables", "Check SIC level of every input"}},
	Unreachable:     {Code: Unreachable, Message: "target sector unreachable in sector space", Retryable: false, NextSteps: []string{"Rebuild the sector space with more extra edges", "Check the edge list covers every sector"}},
	AnalysisFailed:  {Code: AnalysisFailed, Message: "analysis failed", Retryable: true, NextSteps: []string{"Verify the input tables and retry"}},

	BusyResource:    {Code: BusyResource, Message: "concurrent request limit reached", Retryable: true, NextSteps: []string{"Retry after a short delay"}},
	Timeout:         {Code: Timeout, Message: "operation exceeded configured time limit", Retryable: true, NextSteps: []string{"Narrow scope or increase timeout"}},
	LimitExceeded:   {Code: LimitExceeded, Message: "operation exceeded configured limits", Retryable: true, NextSteps: []string{"Reduce table size or lower page size"}},
	PayloadTooLarge: {Code: PayloadTooLarge, Message: "payload exceeds configured size", Retryable: true, NextSteps: []string{"Paginate results with a smaller page size"}},

	OpenFailed:        {Code: OpenFailed, Message: "failed to open table", Retryable: true, NextSteps: []string{"Verify path, permissions, and format"}},
	ReadFailed:        {Code: ReadFailed, Message: "failed to read table", Retryable: true, NextSteps: []string{"Verify sheet name and header columns"}},
	WriteFailed:       {Code: WriteFailed, Message: "failed to write results", Retryable: false, NextSteps: []string{"Check the output directory is allowed and writable"}},
	UnsupportedFormat: {Code: UnsupportedFormat, Message: "unsupported table format", Retryable: false, NextSteps: []string{"Convert to .xlsx or .csv and retry"}},
	PermissionDenied:  {Code: PermissionDenied, Message: "insufficient permissions to access path", Retryable: false, NextSteps: []string{"Adjust permissions or choose an allowed directory"}},
}

// Lookup returns the catalog entry for a code.
func Lookup(code Code) (Entry, bool) {
	e, ok := catalog[code]
	return e, ok
}

// normalize builds a standard error string including next steps for MCP clients that
// surface only a message string. Format: "CODE: message" followed by a guidance tail.
func normalize(code Code, msg string) string {
	base := strings.TrimSpace(msg)
	e, ok := catalog[code]
	if !ok {
		if base == "" {
			return string(code)
		}
		return fmt.Sprintf("%s: %s", string(code), base)
	}
	if base == "" {
		base = e.Message
	}
	guidance := ""
	if len(e.NextSteps) > 0 {
		guidance = " | nextSteps: " + strings.Join(e.NextSteps, "; ")
	}
	return fmt.Sprintf("%s: %s%s", e.Code, base, guidance)
}

// New returns an MCP error result for a given code and optional message override.
func New(code Code, message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, message))
}

// Wrapf formats details and returns an MCP error result for the code.
func Wrapf(code Code, format string, args ...any) *mcp.CallToolResult {
	return mcp.NewToolResultError(normalize(code, fmt.Sprintf(format, args...)))
}

// ToolResult maps any engine error onto an MCP tool error carrying its code.
func ToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return nil
	}
	return mcp.NewToolResultError(normalize(CodeOf(err), err.Error()))
}
