package agent

import "github.com/hupe1980/groupchat/internal/util"

// Provider supplies dynamic instruction text from the context variable snapshot.
type Provider interface {
	Instruction(vars map[string]any) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(vars map[string]any) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(vars map[string]any) (string, error) { return f(vars) }

// Instruction represents either a static (templated) instruction string or
// a dynamic provider.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static string. The
// text may reference context variables, e.g. {{.task_started}}.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(vars map[string]any) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// Resolve returns the instruction text, rendering templates or invoking the
// provider as needed.
func (i Instruction) Resolve(vars map[string]any) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(vars)
	}
	return util.RenderTemplate(i.text, vars)
}
