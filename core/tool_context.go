package core

import (
	"context"
	"fmt"

	"github.com/hupe1980/groupchat/logging"
)

// ToolContext provides the constrained surface tool actions operate on. Reads
// and writes go straight to the session's context variables so the router
// observes them after the turn; every write is also recorded in a local
// EventActions delta for emission.
type ToolContext struct {
	ctx            context.Context
	sessionID      string
	agentName      string
	functionCallID string
	vars           *ContextVariables
	eventActions   EventActions
	logger         logging.Logger
}

// NewToolContext constructs a tool context for one function call.
func NewToolContext(
	ctx context.Context,
	sessionID, agentName, functionCallID string,
	vars *ContextVariables,
	logger logging.Logger,
) *ToolContext {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &ToolContext{
		ctx:            ctx,
		sessionID:      sessionID,
		agentName:      agentName,
		functionCallID: functionCallID,
		vars:           vars,
		logger:         logger,
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// SessionID returns the session ID associated with the tool invocation.
func (tc *ToolContext) SessionID() string { return tc.sessionID }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.logger }

// FunctionCallID returns the function call ID associated with the tool invocation.
func (tc *ToolContext) FunctionCallID() string { return tc.functionCallID }

// AgentName returns the participant the tool runs for.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// Vars exposes the shared context variables.
func (tc *ToolContext) Vars() *ContextVariables { return tc.vars }

// GetBool reads a boolean context variable.
func (tc *ToolContext) GetBool(key string) (bool, error) { return tc.vars.GetBool(key) }

// GetString reads a string context variable.
func (tc *ToolContext) GetString(key string) (string, error) { return tc.vars.GetString(key) }

// GetMap reads a map context variable.
func (tc *ToolContext) GetMap(key string) (map[string]any, error) { return tc.vars.GetMap(key) }

// Set writes a context variable and records the stored copy in the state
// delta.
func (tc *ToolContext) Set(key string, value any) error {
	if err := tc.vars.Set(key, value); err != nil {
		return err
	}
	stored, err := tc.vars.Get(key)
	if err != nil {
		return err
	}
	tc.record(key, stored)
	return nil
}

// SetMapEntry writes one entry of a map variable and records the whole map
// in the state delta.
func (tc *ToolContext) SetMapEntry(key, entry string, value any) error {
	if err := tc.vars.SetMapEntry(key, entry, value); err != nil {
		return err
	}
	m, err := tc.vars.GetMap(key)
	if err != nil {
		return err
	}
	tc.record(key, m)
	return nil
}

func (tc *ToolContext) record(key string, value any) {
	if tc.eventActions.StateDelta == nil {
		tc.eventActions.StateDelta = map[string]any{}
	}
	tc.eventActions.StateDelta[key] = value
}

// Handoff suggests the next target. It supersedes the participant's rule
// list for the current turn. A later call replaces an earlier one.
func (tc *ToolContext) Handoff(t Target) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("handoff: %w", err)
	}
	tc.eventActions.Handoff = &t
	tc.logger.Info("tool.handoff.request", "from_agent", tc.agentName, "target", t.String(), "function_call_id", tc.functionCallID)
	return nil
}

// Actions returns the event actions accumulated in the tool context.
func (tc *ToolContext) Actions() *EventActions { return &tc.eventActions }

// ApplyActions merges the accumulated actions into ev.
func (tc *ToolContext) ApplyActions(ev *Event) {
	if len(tc.eventActions.StateDelta) > 0 {
		if ev.Actions.StateDelta == nil {
			ev.Actions.StateDelta = map[string]any{}
		}
		for k, v := range tc.eventActions.StateDelta {
			ev.Actions.StateDelta[k] = v
		}
	}
	if tc.eventActions.Handoff != nil {
		h := *tc.eventActions.Handoff
		ev.Actions.Handoff = &h
	}
}
