// Package engine is the LLM backed conversation engine. It executes one
// participant turn (model call, tool actions, repeated until a final reply
// or a tool-selected hand-off), answers semantic hand-off questions and
// picks the next speaker for automatic patterns.
//
// Lifecycle hooks (before/after model and tool calls, errors) are exposed
// through a CallbackManager so that logging and metrics can observe the
// engine without modifying it.
package engine
