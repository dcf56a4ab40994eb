package engine

import (
	"context"
	"testing"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/handoff"
	"github.com/hupe1980/groupchat/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ handoff.Judge = (*Engine)(nil)

func TestJudge(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   bool
	}{
		{name: "yes", answer: "YES", want: true},
		{name: "yes lowercase with punctuation", answer: " yes.", want: true},
		{name: "no", answer: "No, not yet.", want: false},
		{name: "yes inside a sentence", answer: "Based on the conversation, the answer is YES.", want: true},
		{name: "no inside a sentence", answer: "The managers have not finished, so no.", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := model.NewMockModel("mock", "test")
			llm.EnqueueText(tt.answer)
			got, err := New(llm).Judge(context.Background(),
				[]core.Event{core.NewMessageEvent("s1", "manager", "All research is complete.")},
				"All research has been completed")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			req := llm.Requests()[0]
			assert.Equal(t, judgeInstructions, req.Instructions)
			assert.Contains(t, req.Contents[0].Text(), "manager: All research is complete.")
			assert.Contains(t, req.Contents[0].Text(), "Question: All research has been completed")
		})
	}
}

func TestJudge_RetriesUnclearAnswers(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.EnqueueText("maybe")
	llm.EnqueueText("Yes.")

	got, err := New(llm).Judge(context.Background(), nil, "All research has been completed")
	require.NoError(t, err)
	assert.True(t, got)

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.Len(t, reqs[1].Contents, 3)
	assert.Contains(t, reqs[1].Contents[2].Text(), "neither YES nor NO")
}

func TestJudge_UnclearAfterRetriesDoesNotHold(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.EnqueueText("maybe")
	llm.EnqueueText("yes and no")
	llm.EnqueueText("perhaps")

	got, err := New(llm).Judge(context.Background(), nil, "All research has been completed")
	require.NoError(t, err)
	assert.False(t, got)
	assert.Len(t, llm.Requests(), 3)
	assert.Zero(t, llm.Pending())
}

func TestParseJudgement(t *testing.T) {
	for answer, want := range map[string][2]bool{
		"YES":               {true, true},
		"no.":               {false, true},
		"Nothing to add":    {false, false},
		"None of them, yes": {true, true},
		"Yes, but also no":  {true, true},
		"It is yes and no":  {false, false},
		"The answer is: NO": {false, true},
		"Not sure":          {false, false},
	} {
		yes, ok := parseJudgement(answer)
		assert.Equal(t, want, [2]bool{yes, ok}, answer)
	}
}

func candidates() []*agent.Agent {
	return []*agent.Agent{
		agent.MustNew("finance_bot", func(o *agent.Options) { o.Description = "Processes transactions" }),
		agent.MustNew("summary_bot", func(o *agent.Options) { o.Description = "Writes the summary" }),
	}
}

func TestSelectSpeaker_ExactName(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.EnqueueText("summary_bot")
	name, err := New(llm).SelectSpeaker(context.Background(), nil, candidates())
	require.NoError(t, err)
	assert.Equal(t, "summary_bot", name)
	assert.Contains(t, llm.Requests()[0].Instructions, "finance_bot: Processes transactions")
}

func TestSelectSpeaker_MentionedName(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.EnqueueText("The next role should be finance_bot.")
	name, err := New(llm).SelectSpeaker(context.Background(), nil, candidates())
	require.NoError(t, err)
	assert.Equal(t, "finance_bot", name)
}

func TestSelectSpeaker_RetriesThenFails(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.EnqueueText("nobody")
	llm.EnqueueText("finance_bot or summary_bot")
	llm.EnqueueText("")
	_, err := New(llm).SelectSpeaker(context.Background(), nil, candidates())
	require.ErrorIs(t, err, ErrNoSpeaker)
	assert.Len(t, llm.Requests(), 3)
}

func TestSelectSpeaker_RetrySucceeds(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.EnqueueText("I am not sure")
	llm.EnqueueText("summary_bot")
	name, err := New(llm).SelectSpeaker(context.Background(), nil, candidates())
	require.NoError(t, err)
	assert.Equal(t, "summary_bot", name)
	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	assert.Len(t, reqs[1].Contents, 3)
}

func TestSelectSpeaker_SingleCandidateSkipsModel(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	name, err := New(llm).SelectSpeaker(context.Background(), nil, candidates()[:1])
	require.NoError(t, err)
	assert.Equal(t, "finance_bot", name)
	assert.Empty(t, llm.Requests())
}
