package handoff

import (
	"context"

	"github.com/hupe1980/groupchat/core"
)

// Condition is the trigger of a hand-off rule: either a ContextCondition or
// a SemanticCondition.
type Condition interface{ isCondition() }

// ContextCondition fires when Expr evaluates true against the context variables.
type ContextCondition struct {
	Expr Expr
}

func (ContextCondition) isCondition() {}

// SemanticCondition fires when the judge answers Prompt with yes for the
// current transcript.
type SemanticCondition struct {
	Prompt string
}

func (SemanticCondition) isCondition() {}

// Rule is an ordered hand-off rule. Available gates whether the rule is
// considered at all; a nil Available means always available.
type Rule struct {
	Target    core.Target
	Condition Condition
	Available Expr
}

// OnContext builds a rule triggered by a context expression.
func OnContext(target core.Target, expr Expr) Rule {
	return Rule{Target: target, Condition: ContextCondition{Expr: expr}}
}

// OnSemantic builds a rule triggered by a natural language judgement.
func OnSemantic(target core.Target, prompt string) Rule {
	return Rule{Target: target, Condition: SemanticCondition{Prompt: prompt}}
}

// When returns a copy of the rule gated by the availability expression.
func (r Rule) When(available Expr) Rule {
	r.Available = available
	return r
}

// Handoffs is the ordered rule list and optional after-work target of one
// participant.
type Handoffs struct {
	rules     []Rule
	afterWork *core.Target
}

// NewHandoffs creates an empty rule list.
func NewHandoffs(rules ...Rule) *Handoffs {
	return &Handoffs{rules: append([]Rule(nil), rules...)}
}

// Add appends rules preserving declaration order.
func (h *Handoffs) Add(rules ...Rule) *Handoffs {
	h.rules = append(h.rules, rules...)
	return h
}

// SetAfterWork sets the default successor used when no rule fires.
func (h *Handoffs) SetAfterWork(t core.Target) *Handoffs {
	h.afterWork = &t
	return h
}

// Rules returns a copy of the rule list.
func (h *Handoffs) Rules() []Rule {
	if h == nil {
		return nil
	}
	return append([]Rule(nil), h.rules...)
}

// AfterWork returns the after-work target if one is declared.
func (h *Handoffs) AfterWork() (core.Target, bool) {
	if h == nil || h.afterWork == nil {
		return core.Target{}, false
	}
	return *h.afterWork, true
}

// Judge decides semantic hand-off conditions.
type Judge interface {
	Judge(ctx context.Context, transcript []core.Event, question string) (bool, error)
}

// JudgeFunc adapts a function to the Judge interface.
type JudgeFunc func(ctx context.Context, transcript []core.Event, question string) (bool, error)

// Judge implements Judge.
func (f JudgeFunc) Judge(ctx context.Context, transcript []core.Event, question string) (bool, error) {
	return f(ctx, transcript, question)
}
