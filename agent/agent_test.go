package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/handoff"
	"github.com/hupe1980/groupchat/model"
	"github.com/hupe1980/groupchat/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockModel is a testify mock satisfying model.Model.
type MockModel struct{ mock.Mock }

func (m *MockModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)
	return args.Get(0).(<-chan model.Response), args.Get(1).(<-chan error)
}

func (m *MockModel) Info() model.Info {
	args := m.Called()
	return args.Get(0).(model.Info)
}

func noopTool(name string) tool.Tool {
	return tool.NewFunctionTool(name, "does "+name, map[string]any{"type": "object", "properties": map[string]any{}},
		func(*core.ToolContext, map[string]any) (any, error) { return "ok", nil })
}

func TestNew_Defaults(t *testing.T) {
	a, err := New("chatbot")
	require.NoError(t, err)
	assert.Equal(t, "chatbot", a.Name())
	assert.Empty(t, a.Tools())
	assert.Nil(t, a.Model())
	assert.NotNil(t, a.Handoffs())

	text, err := a.Instructions(nil)
	require.NoError(t, err)
	assert.Equal(t, "You are chatbot, a helpful AI assistant.", text)
}

func TestNew_ToolsAndModel(t *testing.T) {
	llm := &MockModel{}
	llm.On("Info").Return(model.Info{Name: "m", Provider: "mock"})
	h := handoff.NewHandoffs().SetAfterWork(core.Terminate())

	a, err := New("executive_agent", func(o *Options) {
		o.Description = "Executive"
		o.Tools = []tool.Tool{noopTool("initiate_research"), noopTool("compile_final_report")}
		o.Handoffs = h
		o.Model = llm
	})
	require.NoError(t, err)

	_, ok := a.Tool("initiate_research")
	assert.True(t, ok)
	_, ok = a.Tool("missing")
	assert.False(t, ok)
	assert.Equal(t, "Executive", a.Description())
	assert.Same(t, h, a.Handoffs())
	assert.Equal(t, "mock", a.Model().Info().Provider)

	defs := a.ToolDefinitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "initiate_research", defs[0].Function.Name)
	assert.Equal(t, "compile_final_report", defs[1].Function.Name)
	llm.AssertExpectations(t)
}

func TestNew_Errors(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)

	_, err = New("x", func(o *Options) { o.Tools = []tool.Tool{noopTool("a"), noopTool("a")} })
	assert.Error(t, err)

	assert.Panics(t, func() { MustNew("") })
}

func TestInstructions_TemplateAndProvider(t *testing.T) {
	a := MustNew("renewable_manager", func(o *Options) {
		o.Instruction = NewInstructionFromText("Started: {{.task_started}}")
	})
	text, err := a.Instructions(map[string]any{"task_started": true})
	require.NoError(t, err)
	assert.Equal(t, "Started: true", text)

	boom := errors.New("boom")
	b := MustNew("broken", func(o *Options) {
		o.Instruction = NewInstructionFromFunc(func(map[string]any) (string, error) { return "", boom })
	})
	_, err = b.Instructions(nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, b.instruction.IsStatic())
}
