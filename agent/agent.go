package agent

import (
	"fmt"

	"github.com/hupe1980/groupchat/handoff"
	"github.com/hupe1980/groupchat/model"
	"github.com/hupe1980/groupchat/tool"
)

// Options configures an Agent.
type Options struct {
	Description string
	Instruction Instruction
	Tools       []tool.Tool
	Handoffs    *handoff.Handoffs
	// Model overrides the engine's default model for this participant.
	Model model.Model
	// Temperature overrides the model's sampling temperature for this
	// participant's turns.
	Temperature *float64
}

// Agent is one participant of a group chat.
type Agent struct {
	name        string
	description string
	instruction Instruction
	tools       []tool.Tool
	toolIndex   map[string]tool.Tool
	handoffs    *handoff.Handoffs
	llm         model.Model
	temperature *float64
}

// New creates a participant. Tool names must be unique.
func New(name string, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if name == "" {
		return nil, fmt.Errorf("agent name must not be empty")
	}

	idx := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		if _, dup := idx[t.Name()]; dup {
			return nil, fmt.Errorf("agent %s: duplicate tool %q", name, t.Name())
		}
		idx[t.Name()] = t
	}

	handoffs := opts.Handoffs
	if handoffs == nil {
		handoffs = handoff.NewHandoffs()
	}

	return &Agent{
		name:        name,
		description: opts.Description,
		instruction: opts.Instruction,
		tools:       append([]tool.Tool(nil), opts.Tools...),
		toolIndex:   idx,
		handoffs:    handoffs,
		llm:         opts.Model,
		temperature: opts.Temperature,
	}, nil
}

// MustNew is like New but panics on error.
func MustNew(name string, optFns ...func(o *Options)) *Agent {
	a, err := New(name, optFns...)
	if err != nil {
		panic(err)
	}
	return a
}

// Name returns the participant name.
func (a *Agent) Name() string { return a.name }

// Description returns the role label shown to speaker selection.
func (a *Agent) Description() string { return a.description }

// Tools returns the tools in declaration order.
func (a *Agent) Tools() []tool.Tool { return append([]tool.Tool(nil), a.tools...) }

// Tool looks up a tool by name.
func (a *Agent) Tool(name string) (tool.Tool, bool) {
	t, ok := a.toolIndex[name]
	return t, ok
}

// Handoffs returns the participant's hand-off rules.
func (a *Agent) Handoffs() *handoff.Handoffs { return a.handoffs }

// Model returns the participant specific model, or nil.
func (a *Agent) Model() model.Model { return a.llm }

// Temperature returns the participant's sampling temperature, or nil to
// use the model's own.
func (a *Agent) Temperature() *float64 { return a.temperature }

// Instructions renders the system prompt against the context snapshot.
func (a *Agent) Instructions(vars map[string]any) (string, error) {
	text, err := a.instruction.Resolve(vars)
	if err != nil {
		return "", fmt.Errorf("agent %s instructions: %w", a.name, err)
	}
	return text, nil
}

// ToolDefinitions describes the tools for a model request.
func (a *Agent) ToolDefinitions() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(a.tools))
	for _, t := range a.tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
