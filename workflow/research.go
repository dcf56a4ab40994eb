package workflow

import (
	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/groupchat"
	"github.com/hupe1980/groupchat/handoff"
	"github.com/hupe1980/groupchat/tool"
)

// ResearchName is the registry name of the research workflow.
const ResearchName = "research"

// Participant names of the research hierarchy.
const (
	ExecutiveAgent       = "executive_agent"
	RenewableManager     = "renewable_manager"
	StorageManager       = "storage_manager"
	AlternativeManager   = "alternative_manager"
	SolarSpecialist      = "solar_specialist"
	WindSpecialist       = "wind_specialist"
	HydroSpecialist      = "hydro_specialist"
	GeothermalSpecialist = "geothermal_specialist"
	BiofuelSpecialist    = "biofuel_specialist"
)

// reportSectionKeys must all be present in report_sections before the
// executive review starts.
var reportSectionKeys = []string{"renewable", "storage", "alternative"}

// ResearchSchema declares the shared context of the research workflow.
func ResearchSchema() *core.Schema {
	return core.MustSchema(
		core.Bool("task_started", false),
		core.Bool("task_completed", false),

		core.Bool("executive_review_ready", false),
		core.Bool("manager_a_completed", false),
		core.Bool("manager_b_completed", false),
		core.Bool("manager_c_completed", false),

		core.Bool("specialist_a1_completed", false),
		core.Bool("specialist_a2_completed", false),
		core.Bool("specialist_b1_completed", false),
		core.Bool("specialist_b2_completed", false),
		core.Bool("specialist_c1_completed", false),

		core.String("solar_research", ""),
		core.String("wind_research", ""),
		core.String("hydro_research", ""),
		core.String("geothermal_research", ""),
		core.String("biofuel_research", ""),
		core.Map("report_sections"),
		core.String("final_report", ""),
	)
}

type researchArgs struct {
	ResearchContent string `json:"research_content" description:"The research findings"`
}

type sectionArgs struct {
	SectionContent string `json:"section_content" description:"The compiled report section"`
}

type reportArgs struct {
	ReportContent string `json:"report_content" description:"The final comprehensive report"`
}

type noArgs struct{}

// specialistResearch describes one specialist's submission tool. The
// manager flag is set once every flag in group is true.
type specialistResearch struct {
	tool        string
	description string
	contentKey  string
	flag        string
	group       []string
	managerFlag string
	manager     string
	message     string
}

func (s specialistResearch) build() tool.Tool {
	return tool.NewFunctionToolFromStruct(s.tool, s.description, researchArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			content, _ := args["research_content"].(string)
			if err := tc.Set(s.contentKey, content); err != nil {
				return nil, err
			}
			if err := tc.Set(s.flag, true); err != nil {
				return nil, err
			}
			done := true
			for _, f := range s.group {
				ok, err := tc.GetBool(f)
				if err != nil {
					return nil, err
				}
				done = done && ok
			}
			if done {
				if err := tc.Set(s.managerFlag, true); err != nil {
					return nil, err
				}
			}
			return tool.NewReply(s.message, core.AgentTarget(s.manager)), nil
		})
}

// compileSection builds a manager's section tool. Once every section is
// present the executive review is flagged ready.
func compileSection(name, description, section, label string) tool.Tool {
	return tool.NewFunctionToolFromStruct(name, description, sectionArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			content, _ := args["section_content"].(string)
			if err := tc.SetMapEntry("report_sections", section, content); err != nil {
				return nil, err
			}
			sections, err := tc.GetMap("report_sections")
			if err != nil {
				return nil, err
			}
			for _, k := range reportSectionKeys {
				if _, ok := sections[k]; !ok {
					return tool.NewReply(label+" section compiled and stored.", core.AgentTarget(ExecutiveAgent)), nil
				}
			}
			if err := tc.Set("executive_review_ready", true); err != nil {
				return nil, err
			}
			return tool.NewReply(label+" section compiled. All sections are now ready for executive review.",
				core.AgentTarget(ExecutiveAgent)), nil
		})
}

func specialist(name, topic, research string, t tool.Tool, manager string) (*agent.Agent, error) {
	return agent.New(name, func(o *agent.Options) {
		o.Description = "Specialist researching " + topic
		o.Instruction = agent.NewInstructionFromText("You are a specialist in " + topic + ".\n" +
			"Your task is to research and provide concise information about:\n" + research + "\n\n" +
			"Be thorough but concise. Your research will be used as part of a larger report.\n\n" +
			"Use your tools only one at a time.")
		o.Tools = []tool.Tool{t}
		o.Handoffs = handoff.NewHandoffs().SetAfterWork(core.AgentTarget(manager))
	})
}

func manager(name, description, instruction string, t tool.Tool, h *handoff.Handoffs) (*agent.Agent, error) {
	return agent.New(name, func(o *agent.Options) {
		o.Description = description
		o.Instruction = agent.NewInstructionFromText(instruction)
		o.Tools = []tool.Tool{t}
		o.Handoffs = h.SetAfterWork(core.AgentTarget(ExecutiveAgent))
	})
}

// delegate hands off to target while its completion flag is unset, once
// the task has started.
func delegate(target, flag string) handoff.Rule {
	return handoff.OnContext(core.AgentTarget(target), handoff.Not(handoff.KeyTrue(flag))).
		When(handoff.KeyTrue("task_started"))
}

// Research builds the executive / manager / specialist hierarchy producing
// a renewable energy report.
func Research(Options) (groupchat.Pattern, error) {
	specs := []struct {
		name, topic, research string
		submit                specialistResearch
	}{
		{SolarSpecialist, "solar energy technologies",
			"1. Current state of solar technology\n2. Efficiency rates of different types of solar panels\n3. Cost comparison with fossil fuels\n4. Major companies and countries leading in solar energy",
			specialistResearch{"complete_solar_research", "Submit solar energy research findings", "solar_research", "specialist_a1_completed",
				[]string{"specialist_a1_completed", "specialist_a2_completed"}, "manager_a_completed", RenewableManager, "Solar research completed and stored."}},
		{WindSpecialist, "wind energy technologies",
			"1. Current state of wind technology (onshore/offshore)\n2. Efficiency rates of modern wind turbines\n3. Cost comparison with fossil fuels\n4. Major companies and countries leading in wind energy",
			specialistResearch{"complete_wind_research", "Submit wind energy research findings", "wind_research", "specialist_a2_completed",
				[]string{"specialist_a1_completed", "specialist_a2_completed"}, "manager_a_completed", RenewableManager, "Wind research completed and stored."}},
		{HydroSpecialist, "hydroelectric energy technologies",
			"1. Current state of hydroelectric technology\n2. Types of hydroelectric generation (dams, run-of-river, pumped storage)\n3. Cost comparison with fossil fuels\n4. Major companies and countries leading in hydroelectric energy",
			specialistResearch{"complete_hydro_research", "Submit hydroelectric energy research findings", "hydro_research", "specialist_b1_completed",
				[]string{"specialist_b1_completed", "specialist_b2_completed"}, "manager_b_completed", StorageManager, "Hydroelectric research completed and stored."}},
		{GeothermalSpecialist, "geothermal energy technologies",
			"1. Current state of geothermal technology\n2. Types of geothermal systems and efficiency rates\n3. Cost comparison with fossil fuels\n4. Major companies and countries leading in geothermal energy",
			specialistResearch{"complete_geothermal_research", "Submit geothermal energy research findings", "geothermal_research", "specialist_b2_completed",
				[]string{"specialist_b1_completed", "specialist_b2_completed"}, "manager_b_completed", StorageManager, "Geothermal research completed and stored."}},
		{BiofuelSpecialist, "biofuel technologies",
			"1. Current state of biofuel technology\n2. Types of biofuels and their applications\n3. Cost comparison with fossil fuels\n4. Major companies and countries leading in biofuel production",
			specialistResearch{"complete_biofuel_research", "Submit biofuel research findings", "biofuel_research", "specialist_c1_completed",
				[]string{"specialist_c1_completed"}, "manager_c_completed", AlternativeManager, "Biofuel research completed and stored."}},
	}

	var specialists []*agent.Agent
	for _, s := range specs {
		a, err := specialist(s.name, s.topic, s.research, s.submit.build(), s.submit.manager)
		if err != nil {
			return groupchat.Pattern{}, err
		}
		specialists = append(specialists, a)
	}

	renewable, err := manager(RenewableManager,
		"Manager for solar and wind energy research",
		managerInstruction("renewable energy research, specifically overseeing solar and wind energy specialists", "renewable energy", true),
		compileSection("compile_renewable_section", "Compile the renewable energy section (solar and wind) for the final report", "renewable", "Renewable energy"),
		handoff.NewHandoffs(
			delegate(SolarSpecialist, "specialist_a1_completed"),
			delegate(WindSpecialist, "specialist_a2_completed"),
			handoff.OnSemantic(core.AgentTarget(ExecutiveAgent), "Return to the executive after your report has been compiled.").
				When(handoff.KeyTrue("manager_a_completed")),
		))
	if err != nil {
		return groupchat.Pattern{}, err
	}

	storage, err := manager(StorageManager,
		"Manager for hydroelectric and geothermal energy research",
		managerInstruction("energy storage and hydroelectric technologies, overseeing hydroelectric and geothermal energy specialists", "energy storage and hydroelectric solutions", true),
		compileSection("compile_storage_section", "Compile the energy storage section (hydro and geothermal) for the final report", "storage", "Energy storage"),
		handoff.NewHandoffs(
			delegate(HydroSpecialist, "specialist_b1_completed"),
			delegate(GeothermalSpecialist, "specialist_b2_completed"),
			handoff.OnSemantic(core.AgentTarget(ExecutiveAgent), "Return to the executive after your report has been compiled.").
				When(handoff.KeyTrue("manager_b_completed")),
		))
	if err != nil {
		return groupchat.Pattern{}, err
	}

	alternative, err := manager(AlternativeManager,
		"Manager for biofuel research",
		managerInstruction("alternative energy solutions, overseeing biofuel research", "alternative energy solutions", false),
		compileSection("compile_alternative_section", "Compile the alternative energy section (biofuels) for the final report", "alternative", "Alternative energy"),
		handoff.NewHandoffs(
			delegate(BiofuelSpecialist, "specialist_c1_completed"),
			handoff.OnSemantic(core.AgentTarget(ExecutiveAgent), "Return to the executive with the compiled alternative energy section").
				When(handoff.KeyTrue("manager_c_completed")),
		))
	if err != nil {
		return groupchat.Pattern{}, err
	}

	user, err := agent.New(core.UserAuthor, func(o *agent.Options) {
		o.Description = "The human who requested the report"
	})
	if err != nil {
		return groupchat.Pattern{}, err
	}

	executive, err := agent.New(ExecutiveAgent, func(o *agent.Options) {
		o.Description = "Executive overseeing the renewable energy report"
		o.Instruction = agent.NewInstructionFromText(executiveInstruction)
		o.Tools = []tool.Tool{initiateResearch(), compileFinalReport(user.Name())}
		o.Handoffs = handoff.NewHandoffs(
			delegate(RenewableManager, "manager_a_completed"),
			delegate(StorageManager, "manager_b_completed"),
			delegate(AlternativeManager, "manager_c_completed"),
		).SetAfterWork(core.RevertToUser())
	})
	if err != nil {
		return groupchat.Pattern{}, err
	}

	agents := append([]*agent.Agent{executive, renewable, storage, alternative}, specialists...)
	return groupchat.Pattern{
		Name:           ResearchName,
		InitialAgent:   ExecutiveAgent,
		Agents:         agents,
		Schema:         ResearchSchema(),
		GroupAfterWork: core.Terminate(),
		UserAgent:      user,
		MaxRounds:      50,
	}, nil
}

func initiateResearch() tool.Tool {
	return tool.NewFunctionToolFromStruct("initiate_research", "Initiate the research process by delegating to managers", noArgs{},
		func(tc *core.ToolContext, _ map[string]any) (any, error) {
			if err := tc.Set("task_started", true); err != nil {
				return nil, err
			}
			return tool.Message("Research initiated. Tasks have been delegated to the renewable energy manager, storage manager, and alternative energy manager."), nil
		})
}

func compileFinalReport(user string) tool.Tool {
	return tool.NewFunctionToolFromStruct("compile_final_report", "Compile the final comprehensive report from all sections", reportArgs{},
		func(tc *core.ToolContext, args map[string]any) (any, error) {
			content, _ := args["report_content"].(string)
			if err := tc.Set("final_report", content); err != nil {
				return nil, err
			}
			if err := tc.Set("task_completed", true); err != nil {
				return nil, err
			}
			return tool.NewReply("Final report compiled successfully. The comprehensive renewable energy report is now complete.",
				core.AgentTarget(user)), nil
		})
}

func managerInstruction(scope, section string, waitForBoth bool) string {
	s := "You are the manager for " + scope + ".\n" +
		"Your responsibilities include:\n" +
		"1. Reviewing the research from your specialists\n" +
		"2. Ensuring the information is accurate and comprehensive\n" +
		"3. Synthesizing the information into a cohesive section on " + section + "\n" +
		"4. Submitting the compiled research to the executive for final report creation\n\n"
	if waitForBoth {
		s += "You should wait until both specialists have completed their research before compiling your section.\n\n"
	}
	return s + "Use your tools only one at a time."
}

const executiveInstruction = `You are the executive overseeing the creation of a comprehensive report on renewable energy technologies.

You have exactly three manager agents reporting to you, each responsible for specific technology domains:
1. Renewable Manager - Oversees solar and wind energy research
2. Storage Manager - Oversees hydroelectric and geothermal energy research
3. Alternative Manager - Oversees biofuel research

Your responsibilities include:
1. Delegating research tasks to these three specific manager agents
2. Providing overall direction and ensuring alignment with the project goals
3. Reviewing the compiled sections from each manager
4. Synthesizing all sections into a cohesive final report with executive summary
5. Ensuring the report is comprehensive, balanced, and meets high-quality standards

Do not create or attempt to delegate to managers that don't exist in this structure.

The final report should include:
- Executive Summary
- Introduction to Renewable Energy
- Three main sections:
  * Solar and Wind Energy (from Renewable Manager)
  * Hydroelectric and Geothermal Energy (from Storage Manager)
  * Biofuel Technologies (from Alternative Manager)
- Comparison of technologies
- Future outlook and recommendations`
