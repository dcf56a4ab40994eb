package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/tool"
)

// ErrToolPanic wraps a panic recovered from a tool action.
var ErrToolPanic = errors.New("tool panicked")

// toolOutcome is the result of one function call. Fatal errors abort the
// turn; anything else is reported back to the model in the response event.
type toolOutcome struct {
	event core.Event
	fatal error
}

// executeCall runs one function call against the shared context variables.
// Calls run sequentially so that tool writes are never concurrent.
func (e *Engine) executeCall(ctx context.Context, req TurnRequest, a *agent.Agent, fc core.FunctionCall) toolOutcome {
	tc := core.NewToolContext(ctx, req.SessionID, a.Name(), fc.ID, req.Vars, e.opts.Logger)

	cbCtx := &CallbackContext{SessionID: req.SessionID, Agent: a.Name(), Tool: fc.Name}
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeTool, cbCtx); err != nil {
		return toolOutcome{fatal: fmt.Errorf("before tool callback: %w", err)}
	}

	start := time.Now()
	var (
		result any
		err    error
		fatal  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				fatal = fmt.Errorf("%w: %s: %v", ErrToolPanic, fc.Name, r)
				e.opts.Logger.Error("engine.tool.panic", "agent", a.Name(), "function", fc.Name, "recover", r, "stack", string(debug.Stack()))
			}
		}()
		result, err = callTool(a, tc, fc)
		if err == nil {
			result, err = tool.Resolve(tc, result)
		}
	}()
	dur := time.Since(start)

	if fatal == nil && err != nil && isFatal(err) {
		fatal = fmt.Errorf("tool %s: %w", fc.Name, err)
	}

	e.opts.Logger.Info(
		"engine.tool.executed",
		"session_id", req.SessionID,
		"agent", a.Name(),
		"function", fc.Name,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil || fatal != nil,
	)

	cbCtx.Duration = dur
	cbCtx.Err = err
	if fatal != nil {
		cbCtx.Err = fatal
	}
	if cbErr := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterTool, cbCtx); cbErr != nil && fatal == nil {
		fatal = fmt.Errorf("after tool callback: %w", cbErr)
	}
	if fatal != nil {
		return toolOutcome{fatal: fatal}
	}

	ev := core.NewFunctionResponseEvent(req.SessionID, a.Name(), fc.ID, fc.Name, result, err)
	tc.ApplyActions(&ev)
	return toolOutcome{event: ev}
}

// callTool looks up the tool and decodes its JSON arguments.
func callTool(a *agent.Agent, tc *core.ToolContext, fc core.FunctionCall) (any, error) {
	impl, ok := a.Tool(fc.Name)
	if !ok {
		return nil, tool.NewToolError(fc.Name, fmt.Sprintf("tool %s not found", fc.Name), tool.CodeValidation)
	}

	argMap := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &argMap); err != nil {
			return nil, tool.NewToolError(fc.Name, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
		}
	}

	return impl.Call(tc, argMap)
}

// isFatal reports whether a tool error must abort the session. Validation
// failures are the model's mistake and are fed back so it can retry.
func isFatal(err error) bool {
	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		return toolErr.Code != tool.CodeValidation
	}
	return true
}
