package handoff

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/logging"
)

var (
	// ErrUnknownParticipant is returned for participants without registered hand-offs.
	ErrUnknownParticipant = errors.New("unknown participant")
	// ErrNoJudge is returned when a semantic rule is reached without a judge.
	ErrNoJudge = errors.New("semantic condition requires a judge")
)

// Source records which step of the decision procedure produced a target.
type Source string

const (
	SourceTool           Source = "tool"
	SourceRule           Source = "rule"
	SourceAfterWork      Source = "after_work"
	SourceGroupAfterWork Source = "group_after_work"
)

// Input is everything a decision depends on.
type Input struct {
	Active     string
	Vars       *core.ContextVariables
	Transcript []core.Event
	// Suggested is the target chosen by a tool action during the turn, if any.
	Suggested *core.Target
}

// Decision is the router's output. Rule is the index of the firing rule or
// -1 when the target did not come from a rule.
type Decision struct {
	Target core.Target
	Source Source
	Rule   int
}

// Options configure a Router.
type Options struct {
	Logger logging.Logger
}

// Router decides which participant acts next. It holds no per-session state
// and never mutates the context variables.
type Router struct {
	groupAfterWork core.Target
	handoffs       map[string]*Handoffs
	logger         logging.Logger
}

// NewRouter creates a router falling back to groupAfterWork when neither a
// rule nor a participant after-work target applies.
func NewRouter(groupAfterWork core.Target, optFns ...func(o *Options)) *Router {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{
		groupAfterWork: groupAfterWork,
		handoffs:       map[string]*Handoffs{},
		logger:         opts.Logger,
	}
}

// Register attaches the rule list of a participant. A nil list registers
// the participant with no rules.
func (r *Router) Register(name string, h *Handoffs) {
	if h == nil {
		h = NewHandoffs()
	}
	r.handoffs[name] = h
}

// Handoffs returns the registered rule list of a participant.
func (r *Router) Handoffs(name string) (*Handoffs, bool) {
	h, ok := r.handoffs[name]
	return h, ok
}

// Validate checks that every context key referenced by any rule is declared
// in schema and that every agent target names one of participants.
func (r *Router) Validate(schema *core.Schema, participants []string) error {
	known := make(map[string]bool, len(participants))
	for _, p := range participants {
		known[p] = true
	}
	checkTarget := func(where string, t core.Target) error {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("%s: %w", where, err)
		}
		if t.Kind == core.TargetAgent && !known[t.Agent] {
			return fmt.Errorf("%s: %w: %s", where, ErrUnknownParticipant, t.Agent)
		}
		return nil
	}

	if err := checkTarget("group after-work", r.groupAfterWork); err != nil {
		return err
	}

	names := make([]string, 0, len(r.handoffs))
	for name := range r.handoffs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !known[name] {
			return fmt.Errorf("%w: %s has hand-offs but is not a participant", ErrUnknownParticipant, name)
		}
		h := r.handoffs[name]
		for i, rule := range h.rules {
			where := fmt.Sprintf("%s rule %d", name, i)
			if err := checkTarget(where, rule.Target); err != nil {
				return err
			}
			if err := Validate(rule.Available, schema); err != nil {
				return fmt.Errorf("%s availability: %w", where, err)
			}
			switch c := rule.Condition.(type) {
			case ContextCondition:
				if c.Expr == nil {
					return fmt.Errorf("%s: context condition without expression", where)
				}
				if err := Validate(c.Expr, schema); err != nil {
					return fmt.Errorf("%s condition: %w", where, err)
				}
			case SemanticCondition:
				if c.Prompt == "" {
					return fmt.Errorf("%s: semantic condition without prompt", where)
				}
			default:
				return fmt.Errorf("%s: unsupported condition %T", where, rule.Condition)
			}
		}
		if t, ok := h.AfterWork(); ok {
			if err := checkTarget(name+" after-work", t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Next selects the target following the active participant's turn:
//
//  1. a tool-suggested target wins for this turn;
//  2. rules are evaluated in declared order, skipping unavailable ones, and
//     the first firing rule wins;
//  3. otherwise the participant's after-work target, then the group
//     after-work target.
//
// Stay is resolved to the active participant.
func (r *Router) Next(ctx context.Context, in Input, judge Judge) (Decision, error) {
	h, ok := r.handoffs[in.Active]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %s", ErrUnknownParticipant, in.Active)
	}

	if in.Suggested != nil {
		return r.decide(in, Decision{Target: *in.Suggested, Source: SourceTool, Rule: -1}), nil
	}

	for i, rule := range h.rules {
		if rule.Available != nil {
			available, err := rule.Available.Eval(in.Vars)
			if err != nil {
				return Decision{}, fmt.Errorf("%s rule %d availability %s: %w", in.Active, i, rule.Available, err)
			}
			if !available {
				continue
			}
		}

		fired, err := r.trigger(ctx, in, rule, judge)
		if err != nil {
			return Decision{}, fmt.Errorf("%s rule %d: %w", in.Active, i, err)
		}
		if fired {
			return r.decide(in, Decision{Target: rule.Target, Source: SourceRule, Rule: i}), nil
		}
	}

	if t, ok := h.AfterWork(); ok {
		return r.decide(in, Decision{Target: t, Source: SourceAfterWork, Rule: -1}), nil
	}
	return r.decide(in, Decision{Target: r.groupAfterWork, Source: SourceGroupAfterWork, Rule: -1}), nil
}

func (r *Router) trigger(ctx context.Context, in Input, rule Rule, judge Judge) (bool, error) {
	switch c := rule.Condition.(type) {
	case ContextCondition:
		return c.Expr.Eval(in.Vars)
	case SemanticCondition:
		if judge == nil {
			return false, ErrNoJudge
		}
		ok, err := judge.Judge(ctx, in.Transcript, c.Prompt)
		if err != nil {
			return false, fmt.Errorf("judge %q: %w", c.Prompt, err)
		}
		return ok, nil
	default:
		return false, fmt.Errorf("unsupported condition %T", rule.Condition)
	}
}

func (r *Router) decide(in Input, d Decision) Decision {
	if d.Target.Kind == core.TargetStay {
		d.Target = core.AgentTarget(in.Active)
	}
	r.logger.Debug("handoff.decision", "from", in.Active, "target", d.Target.String(), "source", string(d.Source), "rule", d.Rule)
	return d
}
