package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/groupchat/core"
)

// CallbackType defines the lifecycle points where callbacks run.
type CallbackType string

const (
	// CallbackBeforeModel is triggered before a model request.
	CallbackBeforeModel CallbackType = "before_model"
	// CallbackAfterModel is triggered after a model response (or failure).
	CallbackAfterModel CallbackType = "after_model"
	// CallbackBeforeTool is triggered before a tool action runs.
	CallbackBeforeTool CallbackType = "before_tool"
	// CallbackAfterTool is triggered after a tool action returns.
	CallbackAfterTool CallbackType = "after_tool"
	// CallbackOnError is triggered when a turn fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the information available at a lifecycle point.
// Fields that do not apply to a callback type are left zero.
type CallbackContext struct {
	SessionID    string
	Agent        string
	Tool         string
	Event        *core.Event
	Duration     time.Duration
	Err          error
	CallbackType CallbackType
}

// Callback is a lifecycle hook. Returning an error aborts the operation.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackAfterTool, func(ctx context.Context, c *CallbackContext) error {
//	    collector.ToolCalled(c.Agent, c.Tool, c.Err)
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks executed in registration
// order. It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs all callbacks of a type, stopping at the first error.
// A nil manager is a no-op.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}
	return nil
}
