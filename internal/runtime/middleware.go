package runtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/vinodismyname/sectorspace/pkg/analysiserr"
)

// Middleware wraps every analysis tool call with the Controller's guardrails:
// a request slot, the operation deadline and the response payload cap.
type Middleware struct {
	ctrl *Controller
}

func NewMiddleware(ctrl *Controller) *Middleware {
	return &Middleware{ctrl: ctrl}
}

// ToolMiddleware implements mcp-go's tool handler middleware.
func (m *Middleware) ToolMiddleware(next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		lim := m.ctrl.limits

		if err := m.acquire(ctx); err != nil {
			return analysiserr.Wrapf(analysiserr.BusyResource,
				"%s: %d analyses already running", req.Params.Name, lim.MaxConcurrentRequests), nil
		}
		defer m.ctrl.ReleaseRequest()

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if lim.OperationTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, lim.OperationTimeout)
		}
		defer cancel()

		res, err := next(callCtx, req)
		if errors.Is(err, context.DeadlineExceeded) || (err == nil && res == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded)) {
			return analysiserr.Wrapf(analysiserr.Timeout, "%s did not finish within %s", req.Params.Name, lim.OperationTimeout), nil
		}
		if err != nil || res == nil || res.IsError {
			return res, err
		}
		if size := payloadSize(res); lim.MaxPayloadBytes > 0 && size > lim.MaxPayloadBytes {
			return analysiserr.Wrapf(analysiserr.PayloadTooLarge,
				"%s result is %d bytes (max=%d)", req.Params.Name, size, lim.MaxPayloadBytes), nil
		}
		return res, nil
	}
}

func (m *Middleware) acquire(ctx context.Context) error {
	if m.ctrl.limits.AcquireRequestTimeout <= 0 {
		return m.ctrl.AcquireRequest(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, m.ctrl.limits.AcquireRequestTimeout)
	defer cancel()
	return m.ctrl.AcquireRequest(actx)
}

// payloadSize measures the structured rows; text summaries are negligible.
// Unmarshalable content counts as zero and is left to the transport.
func payloadSize(res *mcp.CallToolResult) int {
	if res.StructuredContent == nil {
		return 0
	}
	b, err := json.Marshal(res.StructuredContent)
	if err != nil {
		return 0
	}
	return len(b)
}
