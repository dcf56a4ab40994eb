package workflow

import (
	"context"
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/engine"
	"github.com/hupe1980/groupchat/groupchat"
	"github.com/hupe1980/groupchat/handoff"
	"github.com/hupe1980/groupchat/model"
	"github.com/hupe1980/groupchat/tool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func build(t *testing.T, name string) groupchat.Pattern {
	t.Helper()
	d, err := Lookup(name)
	require.NoError(t, err)
	p, err := d.Pattern(func(o *Options) {
		o.Rand = rand.New(rand.NewPCG(1, 2))
		o.Now = fixedNow
	})
	require.NoError(t, err)
	return p
}

func findAgent(t *testing.T, p groupchat.Pattern, name string) *agent.Agent {
	t.Helper()
	for _, a := range p.Agents {
		if a.Name() == name {
			return a
		}
	}
	t.Fatalf("agent %s not found", name)
	return nil
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{FinanceName, ResearchName, WeatherName}, Names())
	_, err := Lookup("nope")
	assert.Error(t, err)

	for _, name := range Names() {
		p := build(t, name)
		_, err := groupchat.New(p, engine.New(model.NewMockModel("mock", "test")))
		require.NoError(t, err, name)
	}
}

func TestWeather_ToolThenTermination(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.EnqueueToolCall("c1", "weather_forecast", map[string]any{"city": "Paris"})
	llm.EnqueueText("It is sunny in Paris, here is a poem. TERMINATE")

	gc, err := groupchat.New(build(t, WeatherName), engine.New(llm))
	require.NoError(t, err)

	res, err := gc.Run(context.Background(), "Check out the weather in Paris and write a poem about it.")
	require.NoError(t, err)
	assert.Equal(t, groupchat.ReasonTerminationMessage, res.Reason)
	assert.Equal(t, []string{"chatbot"}, res.SpeakerOrder)

	var responses []core.FunctionResponse
	for _, ev := range res.Transcript {
		responses = append(responses, ev.GetFunctionResponses()...)
	}
	require.Len(t, responses, 1)
	assert.Equal(t, "The weather forecast for Paris at 2025-06-01 12:00:00 is sunny.", responses[0].Response)
}

func TestWeather_StaysUntilCeiling(t *testing.T) {
	gc, err := groupchat.New(build(t, WeatherName), engine.New(model.NewMockModel("mock", "test")))
	require.NoError(t, err)

	res, err := gc.Run(context.Background(), "2+2=?")
	require.NoError(t, err)
	assert.Equal(t, groupchat.ReasonMaxRounds, res.Reason)
	assert.Equal(t, 10, res.Rounds)
	assert.False(t, res.Completed())
}

var transactionLine = regexp.MustCompile(`^\d\. Transaction: \$(500|1500|9999|12000|23000|4000) to (Staples|Acme Corp|CyberSins Ltd|Initech|Globex|Unicorn LLC)\. Memo: (Quarterly supplies|Confidential|NDA services|Routine payment|Urgent request|Reimbursement)\.$`)

func TestFinance_Prompt(t *testing.T) {
	prompt := TransactionsPrompt(rand.New(rand.NewPCG(7, 7)), 3)
	lines := strings.Split(prompt, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Please process the following transactions one at a time:", lines[0])
	for i, l := range lines[2:] {
		assert.Regexp(t, transactionLine, l)
		assert.True(t, strings.HasPrefix(l, string(rune('1'+i))+". "))
	}

	again := TransactionsPrompt(rand.New(rand.NewPCG(7, 7)), 3)
	assert.Equal(t, prompt, again)
}

func TestFinance_ManagerHandsToHuman(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	llm.EnqueueText("Transaction 2 needs approval. You can type exit to finish")
	llm.EnqueueText("human")

	gc, err := groupchat.New(build(t, FinanceName), engine.New(llm))
	require.NoError(t, err)

	var asked int
	res, err := gc.Run(context.Background(), "ignored", func(o *groupchat.RunOptions) {
		o.Human = func(context.Context, []core.Event) (string, error) {
			asked++
			return "exit", nil
		}
	})
	require.NoError(t, err)
	assert.Equal(t, groupchat.ReasonUserExit, res.Reason)
	assert.Equal(t, []string{"finance_bot", "human"}, res.SpeakerOrder)
	assert.Equal(t, 1, asked)
	assert.True(t, strings.HasPrefix(res.Transcript[0].Text(), "Please process the following transactions"))

	reqs := llm.Requests()
	require.Len(t, reqs, 2)
	require.NotNil(t, reqs[0].Temperature)
	assert.Equal(t, FinanceTemperature, *reqs[0].Temperature)
	assert.Contains(t, reqs[1].Instructions, "human: Human operator")
}

func TestFinance_AgentTemperature(t *testing.T) {
	p := build(t, FinanceName)
	for _, name := range []string{"finance_bot", "summary_bot"} {
		temp := findAgent(t, p, name).Temperature()
		require.NotNil(t, temp, name)
		assert.Equal(t, 0.2, *temp, name)
	}
	assert.Nil(t, findAgent(t, build(t, WeatherName), "chatbot").Temperature())
}

func TestFinance_ConcurrentPrompts(t *testing.T) {
	p := build(t, FinanceName)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				lines := strings.Split(p.Prompt("x"), "\n")
				if !assert.Len(t, lines, 5) {
					return
				}
				assert.Regexp(t, transactionLine, lines[4])
			}
		}()
	}
	wg.Wait()
}

func TestFinance_ConcurrentSessions(t *testing.T) {
	gc, err := groupchat.New(build(t, FinanceName), engine.New(model.NewMockModel("mock", "test")))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := gc.Run(context.Background(), "ignored")
			if assert.NoError(t, err) {
				assert.True(t, strings.HasPrefix(res.Transcript[0].Text(), "Please process the following transactions"))
			}
		}()
	}
	wg.Wait()
}

// -------------------- Research --------------------

func researchRouter(t *testing.T, p groupchat.Pattern) *handoff.Router {
	t.Helper()
	r := handoff.NewRouter(p.GroupAfterWork)
	names := []string{p.UserAgent.Name()}
	for _, a := range p.Agents {
		r.Register(a.Name(), a.Handoffs())
		names = append(names, a.Name())
	}
	require.NoError(t, r.Validate(p.Schema, names))
	return r
}

func callTool(t *testing.T, a *agent.Agent, vars *core.ContextVariables, name string, args map[string]any) (any, *core.ToolContext) {
	t.Helper()
	tl, ok := a.Tool(name)
	require.True(t, ok, name)
	tc := core.NewToolContext(context.Background(), "s1", a.Name(), "c1", vars, nil)
	res, err := tl.Call(tc, args)
	require.NoError(t, err)
	out, err := tool.Resolve(tc, res)
	require.NoError(t, err)
	return out, tc
}

// Solar specialist submits while the wind specialist is still pending.
func TestResearch_ScenarioA(t *testing.T) {
	p := build(t, ResearchName)
	vars := core.NewContextVariables(p.Schema)
	require.NoError(t, vars.Set("task_started", true))

	solar := findAgent(t, p, SolarSpecialist)
	out, tc := callTool(t, solar, vars, "complete_solar_research", map[string]any{"research_content": "PV at 22% efficiency"})
	assert.Equal(t, "Solar research completed and stored.", out)

	a1, _ := vars.GetBool("specialist_a1_completed")
	a2, _ := vars.GetBool("specialist_a2_completed")
	managerA, _ := vars.GetBool("manager_a_completed")
	assert.True(t, a1)
	assert.False(t, a2)
	assert.False(t, managerA)

	d, err := researchRouter(t, p).Next(context.Background(), handoff.Input{
		Active: SolarSpecialist, Vars: vars, Suggested: tc.Actions().Handoff,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.AgentTarget(RenewableManager), d.Target)

	// Without the tool suggestion the after-work target agrees.
	d, err = researchRouter(t, p).Next(context.Background(), handoff.Input{Active: SolarSpecialist, Vars: vars}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.AgentTarget(RenewableManager), d.Target)
	assert.Equal(t, handoff.SourceAfterWork, d.Source)
}

// The renewable manager delegates to the wind specialist next.
func TestResearch_ScenarioB(t *testing.T) {
	p := build(t, ResearchName)
	vars := core.NewContextVariables(p.Schema)
	require.NoError(t, vars.Set("task_started", true))
	require.NoError(t, vars.Set("specialist_a1_completed", true))

	d, err := researchRouter(t, p).Next(context.Background(), handoff.Input{Active: RenewableManager, Vars: vars}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.AgentTarget(WindSpecialist), d.Target)
	assert.Equal(t, 1, d.Rule)
}

// The last compiled section flags the executive review.
func TestResearch_ScenarioC(t *testing.T) {
	p := build(t, ResearchName)
	vars := core.NewContextVariables(p.Schema)
	for _, k := range []string{"task_started", "manager_a_completed", "manager_b_completed", "manager_c_completed"} {
		require.NoError(t, vars.Set(k, true))
	}
	require.NoError(t, vars.SetMapEntry("report_sections", "renewable", "solar and wind"))
	require.NoError(t, vars.SetMapEntry("report_sections", "storage", "hydro and geothermal"))

	out, tc := callTool(t, findAgent(t, p, AlternativeManager), vars, "compile_alternative_section",
		map[string]any{"section_content": "biofuels"})
	assert.Equal(t, "Alternative energy section compiled. All sections are now ready for executive review.", out)

	ready, _ := vars.GetBool("executive_review_ready")
	assert.True(t, ready)
	require.NotNil(t, tc.Actions().Handoff)
	assert.Equal(t, core.AgentTarget(ExecutiveAgent), *tc.Actions().Handoff)

	sections, _ := vars.GetMap("report_sections")
	assert.Len(t, sections, 3)
}

func TestResearch_PartialSectionKeepsReviewPending(t *testing.T) {
	p := build(t, ResearchName)
	vars := core.NewContextVariables(p.Schema)
	out, _ := callTool(t, findAgent(t, p, RenewableManager), vars, "compile_renewable_section",
		map[string]any{"section_content": "solar and wind"})
	assert.Equal(t, "Renewable energy section compiled and stored.", out)
	ready, _ := vars.GetBool("executive_review_ready")
	assert.False(t, ready)
}

func TestResearch_ExecutiveWaitsForStart(t *testing.T) {
	p := build(t, ResearchName)
	vars := core.NewContextVariables(p.Schema)
	d, err := researchRouter(t, p).Next(context.Background(), handoff.Input{Active: ExecutiveAgent, Vars: vars}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.RevertToUser(), d.Target)
}

func TestResearch_ManagerReturnIsSemantic(t *testing.T) {
	p := build(t, ResearchName)
	vars := core.NewContextVariables(p.Schema)
	for _, k := range []string{"task_started", "specialist_a1_completed", "specialist_a2_completed", "manager_a_completed"} {
		require.NoError(t, vars.Set(k, true))
	}
	var asked []string
	judge := handoff.JudgeFunc(func(_ context.Context, _ []core.Event, q string) (bool, error) {
		asked = append(asked, q)
		return true, nil
	})
	d, err := researchRouter(t, p).Next(context.Background(), handoff.Input{Active: RenewableManager, Vars: vars}, judge)
	require.NoError(t, err)
	assert.Equal(t, core.AgentTarget(ExecutiveAgent), d.Target)
	assert.Equal(t, []string{"Return to the executive after your report has been compiled."}, asked)
}

// Round ceiling with the task never completed ends without an error.
func TestResearch_ScenarioE(t *testing.T) {
	gc, err := groupchat.New(build(t, ResearchName), engine.New(model.NewMockModel("mock", "test")))
	require.NoError(t, err)

	res, err := gc.Run(context.Background(), "Create a report on renewable energy", func(o *groupchat.RunOptions) {
		o.Human = func(context.Context, []core.Event) (string, error) { return "keep going", nil }
	})
	require.NoError(t, err)
	assert.Equal(t, groupchat.ReasonMaxRounds, res.Reason)
	assert.Equal(t, 50, res.Rounds)
	assert.False(t, res.Completed())
	assert.Equal(t, false, res.Context["task_completed"])
}

func TestResearch_FullHierarchy(t *testing.T) {
	llm := model.NewMockModel("mock", "test")
	research := func(content string) map[string]any { return map[string]any{"research_content": content} }
	section := func(content string) map[string]any { return map[string]any{"section_content": content} }

	llm.EnqueueToolCall("c1", "initiate_research", map[string]any{})
	llm.EnqueueText("Research initiated.")
	llm.EnqueueText("Solar first.")
	llm.EnqueueToolCall("c2", "complete_solar_research", research("solar findings"))
	llm.EnqueueText("Wind next.")
	llm.EnqueueToolCall("c3", "complete_wind_research", research("wind findings"))
	llm.EnqueueToolCall("c4", "compile_renewable_section", section("solar and wind"))
	llm.EnqueueText("Storage next.")
	llm.EnqueueText("Hydro first.")
	llm.EnqueueToolCall("c5", "complete_hydro_research", research("hydro findings"))
	llm.EnqueueText("Geothermal next.")
	llm.EnqueueToolCall("c6", "complete_geothermal_research", research("geothermal findings"))
	llm.EnqueueToolCall("c7", "compile_storage_section", section("hydro and geothermal"))
	llm.EnqueueText("Alternative next.")
	llm.EnqueueText("Biofuel please.")
	llm.EnqueueToolCall("c8", "complete_biofuel_research", research("biofuel findings"))
	llm.EnqueueToolCall("c9", "compile_alternative_section", section("biofuels"))
	llm.EnqueueToolCall("c10", "compile_final_report", map[string]any{"report_content": "Executive Summary ..."})

	gc, err := groupchat.New(build(t, ResearchName), engine.New(llm))
	require.NoError(t, err)

	res, err := gc.Run(context.Background(), "Create a comprehensive report on renewable energy technologies")
	require.NoError(t, err)
	assert.Equal(t, 0, llm.Pending())

	assert.Equal(t, groupchat.ReasonRevertedToUser, res.Reason)
	assert.True(t, res.Completed())
	assert.Equal(t, []string{
		ExecutiveAgent, RenewableManager, SolarSpecialist, RenewableManager, WindSpecialist, RenewableManager,
		ExecutiveAgent, StorageManager, HydroSpecialist, StorageManager, GeothermalSpecialist, StorageManager,
		ExecutiveAgent, AlternativeManager, BiofuelSpecialist, AlternativeManager, ExecutiveAgent,
	}, res.SpeakerOrder)
	assert.Equal(t, "Executive Summary ...", res.Context["final_report"])
	assert.Equal(t, true, res.Context["executive_review_ready"])
	assert.Equal(t, map[string]any{
		"renewable":   "solar and wind",
		"storage":     "hydro and geothermal",
		"alternative": "biofuels",
	}, res.Context["report_sections"])
	for _, k := range ResearchSchema().Keys() {
		assert.Contains(t, res.Context, k)
	}
}
