package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/logging"
	"github.com/hupe1980/groupchat/model"
)

// DefaultMaxModelCalls bounds the model/tool loop of a single turn.
const DefaultMaxModelCalls = 10

// ErrNoModel is returned when neither the participant nor the engine has a model.
var ErrNoModel = errors.New("no model configured")

// Options configures an Engine.
type Options struct {
	// MaxModelCalls limits model calls per turn. Zero means unlimited.
	MaxModelCalls int

	// SelectRetries is the number of extra attempts SelectSpeaker makes
	// when the model names no valid candidate.
	SelectRetries int

	// JudgeRetries is the number of extra attempts Judge makes when the
	// model answers neither yes nor no.
	JudgeRetries int

	// Callbacks observe model and tool lifecycle points. May be nil.
	Callbacks *CallbackManager

	Logger logging.Logger
}

// Engine drives participants through their model and tool actions.
// It is stateless between calls and safe for concurrent sessions.
type Engine struct {
	llm  model.Model
	opts Options
}

// New creates an engine using llm for participants without their own model
// and for judge and speaker selection calls.
func New(llm model.Model, optFns ...func(o *Options)) *Engine {
	opts := Options{
		MaxModelCalls: DefaultMaxModelCalls,
		SelectRetries: 2,
		JudgeRetries:  2,
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Engine{llm: llm, opts: opts}
}

// TurnRequest is the input of one participant turn.
type TurnRequest struct {
	SessionID  string
	Agent      *agent.Agent
	Transcript []core.Event
	Vars       *core.ContextVariables
	// Emit receives every event as it is produced. May be nil.
	Emit func(core.Event) error
}

// TurnResult summarizes a completed turn.
type TurnResult struct {
	// Events produced during the turn in emission order.
	Events []core.Event
	// Reply is the text of the final message, if the turn ended with one.
	Reply string
	// Suggested is the target set by a tool action, if any. The last
	// action setting a target wins.
	Suggested *core.Target
}

// RunTurn lets the participant act: the model is called with the rendered
// instructions, the visible transcript and the participant's tools; tool
// calls are executed and fed back until the model replies without tool
// calls or a tool action suggests the next target.
func (e *Engine) RunTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	a := req.Agent
	llm := a.Model()
	if llm == nil {
		llm = e.llm
	}
	if llm == nil {
		return TurnResult{}, fmt.Errorf("agent %s: %w", a.Name(), ErrNoModel)
	}

	limiter := core.NewTurnLimiter(e.opts.MaxModelCalls)
	history := append([]core.Event(nil), req.Transcript...)
	var result TurnResult

	emit := func(ev core.Event) error {
		history = append(history, ev)
		result.Events = append(result.Events, ev)
		if req.Emit != nil {
			return req.Emit(ev)
		}
		return nil
	}

	for {
		if err := limiter.Increment(); err != nil {
			return result, e.fail(ctx, req, fmt.Errorf("agent %s: %w", a.Name(), err))
		}

		instructions, err := a.Instructions(req.Vars.Snapshot())
		if err != nil {
			return result, e.fail(ctx, req, err)
		}
		mreq := model.Request{
			Instructions: instructions,
			Contents:     Contents(a.Name(), history),
			Tools:        a.ToolDefinitions(),
			Temperature:  a.Temperature(),
		}

		resp, err := e.generate(ctx, req.SessionID, a.Name(), llm, mreq)
		if err != nil {
			return result, e.fail(ctx, req, fmt.Errorf("agent %s: %w", a.Name(), err))
		}

		ev := core.NewEvent(req.SessionID, a.Name())
		content := resp.Content
		content.Role = "assistant"
		ev.Content = &content
		if err := emit(ev); err != nil {
			return result, e.fail(ctx, req, fmt.Errorf("emit: %w", err))
		}

		calls := ev.GetFunctionCalls()
		if len(calls) == 0 {
			result.Reply = ev.Text()
			e.opts.Logger.Debug("engine.turn.reply", "session_id", req.SessionID, "agent", a.Name(), "model_calls", limiter.Count())
			return result, nil
		}

		for _, fc := range calls {
			out := e.executeCall(ctx, req, a, fc)
			if out.fatal != nil {
				return result, e.fail(ctx, req, out.fatal)
			}
			if h := out.event.Actions.Handoff; h != nil {
				t := *h
				result.Suggested = &t
			}
			if err := emit(out.event); err != nil {
				return result, e.fail(ctx, req, fmt.Errorf("emit: %w", err))
			}
		}

		if result.Suggested != nil {
			e.opts.Logger.Debug("engine.turn.handoff", "session_id", req.SessionID, "agent", a.Name(), "target", result.Suggested.String())
			return result, nil
		}
	}
}

func (e *Engine) generate(ctx context.Context, sessionID, agentName string, llm model.Model, req model.Request) (model.Response, error) {
	cbCtx := &CallbackContext{SessionID: sessionID, Agent: agentName}
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeModel, cbCtx); err != nil {
		return model.Response{}, fmt.Errorf("before model callback: %w", err)
	}

	start := time.Now()
	respCh, errCh := llm.Generate(ctx, req)
	resp, err := model.Collect(ctx, respCh, errCh)
	dur := time.Since(start)

	e.opts.Logger.Debug(
		"engine.model.call",
		"session_id", sessionID,
		"agent", agentName,
		"model", llm.Info().Name,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	cbCtx.Duration = dur
	cbCtx.Err = err
	if cbErr := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterModel, cbCtx); cbErr != nil && err == nil {
		err = fmt.Errorf("after model callback: %w", cbErr)
	}
	return resp, err
}

func (e *Engine) fail(ctx context.Context, req TurnRequest, err error) error {
	e.opts.Logger.Error("engine.turn.error", "session_id", req.SessionID, "agent", req.Agent.Name(), "error", err.Error())
	_ = e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnError, &CallbackContext{
		SessionID: req.SessionID,
		Agent:     req.Agent.Name(),
		Err:       err,
	})
	return err
}
