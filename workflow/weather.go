package workflow

import (
	"fmt"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/groupchat"
	"github.com/hupe1980/groupchat/handoff"
	"github.com/hupe1980/groupchat/tool"
)

// WeatherName is the registry name of the weather workflow.
const WeatherName = "weather"

const chatbotInstruction = "Complete a task given to you and reply TERMINATE when the task is done. " +
	"If asked about the weather, use tool 'weather_forecast(city)' to get the weather forecast for a city."

type forecastArgs struct {
	City string `json:"city" description:"City to get the forecast for"`
}

// Weather builds a single chatbot that keeps the floor until it replies
// with TERMINATE.
func Weather(opts Options) (groupchat.Pattern, error) {
	forecast := tool.NewFunctionToolFromStruct("weather_forecast", "Weather forecast for a city", forecastArgs{},
		func(_ *core.ToolContext, args map[string]any) (any, error) {
			city, _ := args["city"].(string)
			return fmt.Sprintf("The weather forecast for %s at %s is sunny.", city, opts.Now().Format("2006-01-02 15:04:05")), nil
		})

	chatbot, err := agent.New("chatbot", func(o *agent.Options) {
		o.Description = "General assistant with a weather forecast tool"
		o.Instruction = agent.NewInstructionFromText(chatbotInstruction)
		o.Tools = []tool.Tool{forecast}
		o.Handoffs = handoff.NewHandoffs().SetAfterWork(core.Stay())
	})
	if err != nil {
		return groupchat.Pattern{}, err
	}

	return groupchat.Pattern{
		Name:          WeatherName,
		InitialAgent:  chatbot.Name(),
		Agents:        []*agent.Agent{chatbot},
		MaxRounds:     10,
		IsTermination: groupchat.EndsWithTermination("TERMINATE"),
	}, nil
}
