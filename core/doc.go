// Package core provides the foundational domain types shared by the group
// chat runtime:
//
//   - Events and role based Content (messages, tool calls, tool responses)
//   - Shared context variables with a predeclared, typed schema
//   - Hand-off targets (participant, revert to user, terminate, ...)
//   - ToolContext, the scoped surface tool actions operate on
//   - Sessions and the small store interfaces used for persistence
//
// Implementation concerns (routing, model calls, transports) live in other
// packages and depend on the types declared here.
package core
