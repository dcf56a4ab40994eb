package groupchat

import (
	"github.com/hupe1980/groupchat/core"
)

// Reason tells how a session ended.
type Reason string

const (
	ReasonTerminated         Reason = "terminated"
	ReasonRevertedToUser     Reason = "reverted_to_user"
	ReasonMaxRounds          Reason = "max_rounds"
	ReasonTerminationMessage Reason = "termination_message"
	ReasonUserExit           Reason = "user_exit"
)

// CompletedKey is the context variable reporting task completion.
const CompletedKey = "task_completed"

// Result is the outcome of one session.
type Result struct {
	SessionID    string
	Workflow     string
	Context      map[string]any
	Transcript   []core.Event
	SpeakerOrder []string
	LastSpeaker  string
	Rounds       int
	Reason       Reason
}

// Completed reports the task_completed flag. Workflows without that key
// count as completed when they ended on their own rather than at the round
// ceiling or by handing back to an absent operator.
func (r Result) Completed() bool {
	if v, ok := r.Context[CompletedKey]; ok {
		b, _ := v.(bool)
		return b
	}
	switch r.Reason {
	case ReasonTerminated, ReasonTerminationMessage, ReasonUserExit:
		return true
	default:
		return false
	}
}

// Report converts the result into the persisted artifact.
func (r Result) Report() core.Report {
	return core.Report{
		SessionID:    r.SessionID,
		Workflow:     r.Workflow,
		Reason:       string(r.Reason),
		Completed:    r.Completed(),
		Rounds:       r.Rounds,
		SpeakerOrder: append([]string(nil), r.SpeakerOrder...),
		Context:      r.Context,
	}
}
