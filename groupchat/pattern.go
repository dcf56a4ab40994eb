package groupchat

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
)

// Pattern is the static definition of a workflow.
type Pattern struct {
	// Name identifies the workflow in sessions, reports and metrics.
	Name string

	// InitialAgent receives the first turn.
	InitialAgent string

	Agents []*agent.Agent

	// Schema declares every context variable the session may use.
	Schema *core.Schema

	// GroupAfterWork applies when neither a rule nor the participant's own
	// after-work target matches. Defaults to terminate.
	GroupAfterWork core.Target

	// UserAgent represents the human operator. It is offered to speaker
	// selection but never run by the engine.
	UserAgent *agent.Agent

	// UserAfterWork is where control goes after the human replies. When nil
	// control returns to the participant that handed over.
	UserAfterWork *core.Target

	// MaxRounds bounds the number of turns (participant and human). Zero
	// means unbounded.
	MaxRounds int

	// IsTermination ends the session when it matches a participant reply.
	IsTermination func(ev core.Event) bool

	// Prompt turns the operator's message into the initial message. Nil
	// uses the message unchanged.
	Prompt func(message string) string
}

// HumanInput asks the human operator for a reply.
type HumanInput func(ctx context.Context, transcript []core.Event) (string, error)

// EndsWithTermination matches replies whose trimmed text ends with marker.
func EndsWithTermination(marker string) func(ev core.Event) bool {
	return func(ev core.Event) bool {
		text := strings.TrimRight(ev.Text(), " \t\r\n")
		return text != "" && strings.HasSuffix(text, marker)
	}
}

// IsExit reports whether a human reply ends the session.
func IsExit(reply string) bool {
	r := strings.TrimSpace(reply)
	return r == "" || strings.EqualFold(r, "exit") || r == "TERMINATE"
}

func (p *Pattern) userName() string {
	if p.UserAgent != nil {
		return p.UserAgent.Name()
	}
	return core.UserAuthor
}

func (p *Pattern) validate() error {
	if p.Name == "" {
		return fmt.Errorf("pattern name must not be empty")
	}
	if len(p.Agents) == 0 {
		return fmt.Errorf("pattern %s: no agents", p.Name)
	}
	if p.MaxRounds < 0 {
		return fmt.Errorf("pattern %s: negative max rounds", p.Name)
	}
	seen := map[string]bool{}
	for _, a := range p.Agents {
		if a == nil {
			return fmt.Errorf("pattern %s: nil agent", p.Name)
		}
		if seen[a.Name()] {
			return fmt.Errorf("pattern %s: duplicate agent %s", p.Name, a.Name())
		}
		seen[a.Name()] = true
	}
	if seen[p.userName()] {
		return fmt.Errorf("pattern %s: user agent %s collides with a participant", p.Name, p.userName())
	}
	if !seen[p.InitialAgent] {
		return fmt.Errorf("pattern %s: unknown initial agent %q", p.Name, p.InitialAgent)
	}
	if p.UserAfterWork != nil {
		if err := p.UserAfterWork.Validate(); err != nil {
			return fmt.Errorf("pattern %s: user after-work: %w", p.Name, err)
		}
		if p.UserAfterWork.Kind == core.TargetAgent && !seen[p.UserAfterWork.Agent] {
			return fmt.Errorf("pattern %s: user after-work targets unknown agent %s", p.Name, p.UserAfterWork.Agent)
		}
	}
	return nil
}
