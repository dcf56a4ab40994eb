package core

import "fmt"

// TargetKind enumerates the hand-off destinations.
type TargetKind string

const (
	// TargetAgent transfers control to a named participant.
	TargetAgent TargetKind = "agent"
	// TargetRevertToUser returns control to the human operator.
	TargetRevertToUser TargetKind = "revert_to_user"
	// TargetTerminate ends the session.
	TargetTerminate TargetKind = "terminate"
	// TargetStay keeps the active participant.
	TargetStay TargetKind = "stay"
	// TargetGroupManager lets the engine pick the next speaker.
	TargetGroupManager TargetKind = "group_manager"
)

// Target is the outcome of a hand-off decision. Agent is only set for
// TargetAgent.
type Target struct {
	Kind  TargetKind `json:"kind"`
	Agent string     `json:"agent,omitempty"`
}

// AgentTarget hands control to the named participant.
func AgentTarget(name string) Target { return Target{Kind: TargetAgent, Agent: name} }

// RevertToUser hands control back to the human operator.
func RevertToUser() Target { return Target{Kind: TargetRevertToUser} }

// Terminate ends the session.
func Terminate() Target { return Target{Kind: TargetTerminate} }

// Stay keeps the current participant active.
func Stay() Target { return Target{Kind: TargetStay} }

// GroupManager delegates speaker selection to the conversation engine.
func GroupManager() Target { return Target{Kind: TargetGroupManager} }

// Validate checks structural consistency.
func (t Target) Validate() error {
	switch t.Kind {
	case TargetAgent:
		if t.Agent == "" {
			return fmt.Errorf("agent target without name")
		}
	case TargetRevertToUser, TargetTerminate, TargetStay, TargetGroupManager:
		if t.Agent != "" {
			return fmt.Errorf("target %s must not name an agent", t.Kind)
		}
	default:
		return fmt.Errorf("unknown target kind %q", t.Kind)
	}
	return nil
}

func (t Target) String() string {
	if t.Kind == TargetAgent {
		return t.Agent
	}
	return string(t.Kind)
}
