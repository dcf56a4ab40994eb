// Package agent defines group chat participants: a name, a role
// description, templated instructions, an ordered tool set, the hand-off
// rules evaluated after the participant's turn and an optional model
// overriding the engine default.
package agent
