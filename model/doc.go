// Package model defines the provider-agnostic abstractions used to drive
// language models inside a group chat.
//
// Core goals:
//   - Unify generation behind a single channel based interface
//   - Normalize tool / function call representation (ToolDefinition, ToolCall)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate deterministic mocking for tests (MockModel)
//
// Providers (OpenAI, Azure OpenAI, Anthropic) live in sub packages so the
// engine stays decoupled from vendor SDKs.
package model
