// Package handoff implements the hand-off router: the decision procedure run
// after each participant turn to pick the next participant, return control
// to the operator or end the session.
//
// Rules are declared per participant in a fixed order. Each rule pairs an
// optional availability expression with a trigger that is either a typed
// predicate over the shared context variables or a natural language
// question answered by an injected Judge. The router itself is a pure
// function of its input; all context mutation happens in tool actions.
package handoff
