package groupchat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/groupchat/agent"
	"github.com/hupe1980/groupchat/artifact"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/engine"
	"github.com/hupe1980/groupchat/handoff"
	"github.com/hupe1980/groupchat/logging"
	"github.com/hupe1980/groupchat/session"
)

// Engine runs participant turns and answers the two model-backed routing
// questions. *engine.Engine implements it.
type Engine interface {
	RunTurn(ctx context.Context, req engine.TurnRequest) (engine.TurnResult, error)
	Judge(ctx context.Context, transcript []core.Event, question string) (bool, error)
	SelectSpeaker(ctx context.Context, transcript []core.Event, candidates []*agent.Agent) (string, error)
}

// Options configures a GroupChat.
type Options struct {
	// SessionStore holds sessions while they run.
	SessionStore core.SessionStore
	// RetainSessions keeps finished sessions in the SessionStore. By
	// default a session is removed once its run ends; the report keeps the
	// outcome.
	RetainSessions bool
	ReportStore    core.ReportStore
	Observer       Observer
	Logger         logging.Logger
}

// GroupChat executes sessions of one pattern. It is safe for concurrent
// sessions; each session owns its context variables and transcript.
type GroupChat struct {
	pattern Pattern
	engine  Engine
	router  *handoff.Router
	agents  map[string]*agent.Agent

	sessions core.SessionStore
	retain   bool
	reports  core.ReportStore
	observer Observer
	logger   logging.Logger
}

// New validates the pattern and its hand-off rules.
func New(pattern Pattern, eng Engine, optFns ...func(o *Options)) (*GroupChat, error) {
	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		ReportStore:  artifact.NewInMemoryStore(),
		Observer:     nopObserver{},
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if eng == nil {
		return nil, fmt.Errorf("groupchat: engine must not be nil")
	}
	if pattern.Schema == nil {
		pattern.Schema = core.MustSchema()
	}
	if pattern.GroupAfterWork.Kind == "" {
		pattern.GroupAfterWork = core.Terminate()
	}
	if err := pattern.validate(); err != nil {
		return nil, err
	}

	router := handoff.NewRouter(pattern.GroupAfterWork, func(o *handoff.Options) { o.Logger = opts.Logger })
	agents := make(map[string]*agent.Agent, len(pattern.Agents))
	participants := make([]string, 0, len(pattern.Agents)+1)
	for _, a := range pattern.Agents {
		agents[a.Name()] = a
		participants = append(participants, a.Name())
		router.Register(a.Name(), a.Handoffs())
	}
	participants = append(participants, pattern.userName())
	if err := router.Validate(pattern.Schema, participants); err != nil {
		return nil, fmt.Errorf("pattern %s: %w", pattern.Name, err)
	}

	return &GroupChat{
		pattern:  pattern,
		engine:   eng,
		router:   router,
		agents:   agents,
		sessions: opts.SessionStore,
		retain:   opts.RetainSessions,
		reports:  opts.ReportStore,
		observer: opts.Observer,
		logger:   opts.Logger,
	}, nil
}

// Pattern returns the validated pattern.
func (g *GroupChat) Pattern() Pattern { return g.pattern }

// RunOptions configures a single session.
type RunOptions struct {
	// SessionID overrides the generated session id.
	SessionID string
	// OnEvent receives every transcript event as it is appended. A returned
	// error aborts the session.
	OnEvent func(core.Event) error
	// Human answers when control reverts to the operator. Without it the
	// session ends with ReasonRevertedToUser.
	Human HumanInput
	// OnHandoff is called whenever control passes to the next speaker and
	// once when the session ends. A returned error aborts the session.
	OnHandoff func(Handoff) error
}

// Handoff describes control passing between speakers. To is empty when the
// session ends; Target then holds the target that was not followed.
type Handoff struct {
	From   string
	To     string
	Target core.Target
}

// Run executes one session starting from the operator's message. Reaching
// the round ceiling is not an error. A failing turn aborts the session and
// its error is returned together with the partial result.
func (g *GroupChat) Run(ctx context.Context, message string, optFns ...func(o *RunOptions)) (Result, error) {
	opts := RunOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SessionID == "" {
		opts.SessionID = core.NewID()
	}

	s := &run{
		g:    g,
		opts: opts,
		vars: core.NewContextVariables(g.pattern.Schema),
		res:  Result{SessionID: opts.SessionID, Workflow: g.pattern.Name},
	}
	if err := s.vars.Validate(); err != nil {
		return s.res, fmt.Errorf("session %s: %w", opts.SessionID, err)
	}
	if _, err := g.sessions.Create(opts.SessionID, g.pattern.Name); err != nil {
		return s.res, fmt.Errorf("create session: %w", err)
	}
	if !g.retain {
		defer g.sessions.Delete(opts.SessionID)
	}

	g.observer.SessionStarted(g.pattern.Name)
	g.logger.Info("groupchat.session.start", "session_id", opts.SessionID, "workflow", g.pattern.Name)

	err := s.loop(ctx, message)

	s.res.Context = s.vars.Snapshot()
	if err != nil {
		g.logger.Error("groupchat.session.error", "session_id", opts.SessionID, "workflow", g.pattern.Name, "rounds", s.res.Rounds, "error", err.Error())
		g.observer.SessionEnded(g.pattern.Name, "error", err)
		return s.res, err
	}

	report := s.res.Report()
	report.Created = time.Now().UTC()
	if err := g.reports.Save(report); err != nil {
		return s.res, fmt.Errorf("save report: %w", err)
	}

	g.logger.Info("groupchat.session.end", "session_id", opts.SessionID, "workflow", g.pattern.Name,
		"reason", string(s.res.Reason), "rounds", s.res.Rounds, "completed", s.res.Completed())
	g.observer.SessionEnded(g.pattern.Name, string(s.res.Reason), nil)
	return s.res, nil
}

// run is the mutable state of one session.
type run struct {
	g    *GroupChat
	opts RunOptions
	vars *core.ContextVariables
	res  Result
	// lastAgent is the most recent participant (not the human) that acted.
	lastAgent string
}

func (s *run) loop(ctx context.Context, message string) error {
	p := &s.g.pattern

	prompt := message
	if p.Prompt != nil {
		prompt = p.Prompt(message)
	}
	if err := s.append(core.NewUserMessageEvent(s.res.SessionID, prompt)); err != nil {
		return err
	}

	next := core.AgentTarget(p.InitialAgent)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if next.Kind == core.TargetTerminate {
			s.res.Reason = ReasonTerminated
			return s.handoff("", next)
		}
		if s.isUser(next) && s.opts.Human == nil {
			s.res.Reason = ReasonRevertedToUser
			return s.handoff("", next)
		}
		if p.MaxRounds > 0 && s.res.Rounds >= p.MaxRounds {
			s.res.Reason = ReasonMaxRounds
			return s.handoff("", next)
		}

		if next.Kind == core.TargetGroupManager {
			name, err := s.selectSpeaker(ctx)
			if err != nil {
				return err
			}
			next = core.AgentTarget(name)
			continue
		}
		if next.Kind == core.TargetStay {
			next = core.AgentTarget(s.lastAgent)
		}

		if s.isUser(next) {
			if err := s.handoff(p.userName(), next); err != nil {
				return err
			}
			done, err := s.humanTurn(ctx)
			if err != nil {
				return err
			}
			if done {
				return s.handoff("", core.Terminate())
			}
			if p.UserAfterWork != nil {
				next = *p.UserAfterWork
			} else {
				next = core.AgentTarget(s.lastAgent)
			}
			continue
		}

		if err := s.handoff(next.Agent, next); err != nil {
			return err
		}
		target, done, err := s.agentTurn(ctx, next.Agent)
		if err != nil {
			return err
		}
		if done {
			return s.handoff("", core.Terminate())
		}
		next = target
	}
}

// handoff reports control passing from the last speaker, or from the
// operator's initial message, to the next speaker.
func (s *run) handoff(to string, target core.Target) error {
	if s.opts.OnHandoff == nil {
		return nil
	}
	from := s.res.LastSpeaker
	if from == "" {
		from = core.UserAuthor
	}
	if err := s.opts.OnHandoff(Handoff{From: from, To: to, Target: target}); err != nil {
		return fmt.Errorf("stream hand-off: %w", err)
	}
	return nil
}

func (s *run) isUser(t core.Target) bool {
	return t.Kind == core.TargetRevertToUser ||
		(t.Kind == core.TargetAgent && t.Agent == s.g.pattern.userName())
}

func (s *run) agentTurn(ctx context.Context, name string) (core.Target, bool, error) {
	g := s.g
	a, ok := g.agents[name]
	if !ok {
		return core.Target{}, false, fmt.Errorf("%w: %s", handoff.ErrUnknownParticipant, name)
	}

	s.res.Rounds++
	s.res.SpeakerOrder = append(s.res.SpeakerOrder, name)
	s.res.LastSpeaker = name
	s.lastAgent = name
	g.logger.Debug("groupchat.turn.start", "session_id", s.res.SessionID, "agent", name, "round", s.res.Rounds)

	start := time.Now()
	turn, err := g.engine.RunTurn(ctx, engine.TurnRequest{
		SessionID:  s.res.SessionID,
		Agent:      a,
		Transcript: append([]core.Event(nil), s.res.Transcript...),
		Vars:       s.vars,
		Emit:       s.append,
	})
	g.observer.TurnCompleted(g.pattern.Name, name, time.Since(start), err)
	if err != nil {
		return core.Target{}, false, fmt.Errorf("round %d (%s): %w", s.res.Rounds, name, err)
	}

	if is := g.pattern.IsTermination; is != nil && turn.Suggested == nil && len(turn.Events) > 0 {
		if last := turn.Events[len(turn.Events)-1]; last.IsFinalResponse() && is(last) {
			s.res.Reason = ReasonTerminationMessage
			return core.Target{}, true, nil
		}
	}

	d, err := g.router.Next(ctx, handoff.Input{
		Active:     name,
		Vars:       s.vars,
		Transcript: s.res.Transcript,
		Suggested:  turn.Suggested,
	}, g.engine)
	if err != nil {
		return core.Target{}, false, fmt.Errorf("round %d (%s) hand-off: %w", s.res.Rounds, name, err)
	}
	g.observer.HandoffDecided(g.pattern.Name, name, string(d.Source), string(d.Target.Kind))
	g.logger.Info("groupchat.turn.end", "session_id", s.res.SessionID, "agent", name, "round", s.res.Rounds,
		"next", d.Target.String(), "source", string(d.Source))
	return d.Target, false, nil
}

func (s *run) humanTurn(ctx context.Context) (bool, error) {
	name := s.g.pattern.userName()
	s.res.Rounds++
	s.res.SpeakerOrder = append(s.res.SpeakerOrder, name)
	s.res.LastSpeaker = name

	reply, err := s.opts.Human(ctx, append([]core.Event(nil), s.res.Transcript...))
	if err != nil {
		return false, fmt.Errorf("round %d (%s): %w", s.res.Rounds, name, err)
	}

	ev := core.NewUserMessageEvent(s.res.SessionID, reply)
	ev.Author = name
	if err := s.append(ev); err != nil {
		return false, err
	}
	if IsExit(reply) {
		s.res.Reason = ReasonUserExit
		return true, nil
	}
	return false, nil
}

// selectSpeaker resolves a group manager target. When the engine names no
// candidate the participant after the last speaker is chosen.
func (s *run) selectSpeaker(ctx context.Context) (string, error) {
	p := &s.g.pattern
	candidates := append([]*agent.Agent(nil), p.Agents...)
	if p.UserAgent != nil {
		candidates = append(candidates, p.UserAgent)
	}

	name, err := s.g.engine.SelectSpeaker(ctx, s.res.Transcript, candidates)
	if errors.Is(err, engine.ErrNoSpeaker) {
		name = s.roundRobin()
		s.g.logger.Warn("groupchat.select.fallback", "session_id", s.res.SessionID, "next", name)
		return name, nil
	}
	if err != nil {
		return "", fmt.Errorf("select speaker: %w", err)
	}
	for _, c := range candidates {
		if c.Name() == name {
			s.g.observer.HandoffDecided(p.Name, s.res.LastSpeaker, "group_manager", string(core.TargetAgent))
			return name, nil
		}
	}
	return "", fmt.Errorf("select speaker: %w: %s", handoff.ErrUnknownParticipant, name)
}

func (s *run) roundRobin() string {
	agents := s.g.pattern.Agents
	for i, a := range agents {
		if a.Name() == s.lastAgent {
			return agents[(i+1)%len(agents)].Name()
		}
	}
	return agents[0].Name()
}

// append records an event in the transcript, persists it and streams it.
func (s *run) append(ev core.Event) error {
	s.res.Transcript = append(s.res.Transcript, ev)
	if err := s.g.sessions.AppendEvent(s.res.SessionID, ev); err != nil {
		return fmt.Errorf("persist event: %w", err)
	}
	if len(ev.Actions.StateDelta) > 0 {
		if err := s.g.sessions.ApplyDelta(s.res.SessionID, ev.Actions.StateDelta); err != nil {
			return fmt.Errorf("persist state delta: %w", err)
		}
	}
	if s.opts.OnEvent != nil {
		if err := s.opts.OnEvent(ev); err != nil {
			return fmt.Errorf("stream event: %w", err)
		}
	}
	return nil
}
