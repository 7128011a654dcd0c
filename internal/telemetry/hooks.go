package telemetry

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// Hooks logs MCP server lifecycle callbacks and batch pipeline stages.
// Metrics backends can be added later under this package.
type Hooks struct {
	logger zerolog.Logger
	clock  func() time.Time
}

// NewHooks constructs a Hooks instance with the provided logger.
func NewHooks(logger zerolog.Logger) *Hooks {
	return &Hooks{logger: logger, clock: time.Now}
}

// OnServerStart is called when the server begins accepting connections.
func (h *Hooks) OnServerStart() {
	h.logger.Info().Msg("MCP server starting")
}

// OnServerStop is called during server shutdown.
func (h *Hooks) OnServerStop() {
	h.logger.Info().Msg("MCP server stopping")
}

// OnToolCall logs tool invocations and their outcomes.
func (h *Hooks) OnToolCall(sessionID, toolName string, duration time.Duration, err error) {
	if err != nil {
		h.logger.Error().Str("session_id", sessionID).Str("tool", toolName).Dur("duration", duration).Err(err).Msg("tool call error")
		return
	}
	h.logger.Info().Str("session_id", sessionID).Str("tool", toolName).Dur("duration", duration).Msg("tool call completed")
}

// ServerHooks adapts Hooks to mcp-go's server hook registry.
func (h *Hooks) ServerHooks() *server.Hooks {
	hooks := &server.Hooks{}

	hooks.AddOnRegisterSession(func(ctx context.Context, session server.ClientSession) {
		h.logger.Info().Str("session_id", session.SessionID()).Msg("session registered")
	})

	hooks.AddOnUnregisterSession(func(ctx context.Context, session server.ClientSession) {
		h.logger.Info().Str("session_id", session.SessionID()).Msg("session unregistered")
	})

	hooks.AddAfterListTools(func(ctx context.Context, id any, req *mcp.ListToolsRequest, res *mcp.ListToolsResult) {
		h.logger.Info().Int("tools", len(res.Tools)).Msg("list_tools served")
	})

	hooks.AddAfterCallTool(func(ctx context.Context, id any, req *mcp.CallToolRequest, res *mcp.CallToolResult) {
		evt := h.logger.Info().Str("tool", req.Params.Name)
		if res != nil && res.IsError {
			evt = h.logger.Warn().Str("tool", req.Params.Name).Bool("is_error", true)
		}
		evt.Msg("tool call served")
	})

	hooks.AddOnError(func(ctx context.Context, id any, method mcp.MCPMethod, message any, err error) {
		h.logger.Error().Str("method", string(method)).Err(err).Msg("request error")
	})

	return hooks
}

// OnRunStart records the start of a batch run.
func (h *Hooks) OnRunStart(runID, configPath string) {
	h.logger.Info().Str("run_id", runID).Str("config", configPath).Msg("pipeline run started")
}

// OnRunEnd records the outcome of a batch run.
func (h *Hooks) OnRunEnd(runID string, duration time.Duration, err error) {
	if err != nil {
		h.logger.Error().Str("run_id", runID).Dur("duration", duration).Err(err).Msg("pipeline run failed")
		return
	}
	h.logger.Info().Str("run_id", runID).Dur("duration", duration).Msg("pipeline run completed")
}

// StageFunc closes a stage started with Stage.
type StageFunc func(warnings int, err error)

// Stage logs the start of a pipeline stage and returns a func that logs its end.
func (h *Hooks) Stage(runID, stage string) StageFunc {
	start := h.clock()
	h.logger.Debug().Str("run_id", runID).Str("stage", stage).Msg("stage started")
	return func(warnings int, err error) {
		d := h.clock().Sub(start)
		if err != nil {
			h.logger.Error().Str("run_id", runID).Str("stage", stage).Dur("duration", d).Err(err).Msg("stage failed")
			return
		}
		evt := h.logger.Info()
		if warnings > 0 {
			evt = h.logger.Warn()
		}
		evt.Str("run_id", runID).Str("stage", stage).Dur("duration", d).Int("warnings", warnings).Msg("stage completed")
	}
}
