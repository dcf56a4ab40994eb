package tool

import (
	"fmt"

	"github.com/hupe1980/groupchat/core"
)

// Reply is the result of a tool action that both acknowledges the work and
// names the participant that should act next. A nil Target leaves routing
// to the hand-off rules.
type Reply struct {
	Message string
	Target  *core.Target
}

// NewReply returns a reply handing off to target.
func NewReply(message string, target core.Target) Reply {
	return Reply{Message: message, Target: &target}
}

// Message returns a reply without a suggested target.
func Message(message string) Reply { return Reply{Message: message} }

// Resolve unwraps a tool result for the model. Replies carrying a Target
// are applied to tc as the turn's suggested hand-off; the model only sees
// the acknowledgement text.
func Resolve(tc *core.ToolContext, result any) (any, error) {
	var r Reply
	switch v := result.(type) {
	case Reply:
		r = v
	case *Reply:
		if v == nil {
			return nil, nil
		}
		r = *v
	default:
		return result, nil
	}
	if r.Target != nil {
		if err := tc.Handoff(*r.Target); err != nil {
			return nil, fmt.Errorf("tool reply: %w", err)
		}
	}
	return r.Message, nil
}
