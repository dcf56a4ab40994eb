package main

import (
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/groupchat/artifact"
	"github.com/hupe1980/groupchat/artifact/sqlite"
	"github.com/hupe1980/groupchat/config"
	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/engine"
	"github.com/hupe1980/groupchat/groupchat"
	"github.com/hupe1980/groupchat/logging"
	"github.com/hupe1980/groupchat/metrics"
	"github.com/hupe1980/groupchat/model"
	"github.com/hupe1980/groupchat/model/anthropic"
	"github.com/hupe1980/groupchat/model/openai"
	"github.com/hupe1980/groupchat/session"
	"github.com/hupe1980/groupchat/workflow"
)

// app wires the configured model, stores and workflows together.
type app struct {
	cfg     config.Config
	logger  logging.Logger
	metrics *metrics.Collector
	reports core.ReportStore
	closers []func() error

	// sessions holds the sessions of every workflow while they run.
	sessions *session.InMemoryStore
	chats    map[string]*groupchat.GroupChat
}

func loadConfig(cli *CLI, overrides ...func(c *config.Config)) (config.Config, error) {
	return config.Load(cli.Config, append([]func(c *config.Config){func(c *config.Config) {
		if cli.Provider != "" {
			c.Model.Provider = cli.Provider
		}
		if cli.LogLevel != "" {
			c.Log.Level = cli.LogLevel
		}
	}}, overrides...)...)
}

func newApp(cfg config.Config) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  cfg.Logger(),
		metrics:  metrics.NewCollector(metrics.DefaultNamespace),
		sessions: session.NewInMemoryStore(),
		chats:    map[string]*groupchat.GroupChat{},
	}

	switch cfg.Reports.Driver {
	case config.ReportsSQLite:
		store, err := sqlite.Open(cfg.Reports.Path)
		if err != nil {
			return nil, err
		}
		a.reports = store
		a.closers = append(a.closers, store.Close)
	default:
		a.reports = artifact.NewInMemoryStore()
	}

	llm, err := newModel(cfg.Model)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	callbacks := engine.NewCallbackManager()
	for _, cb := range a.metrics.Callbacks() {
		callbacks.RegisterCallback(cb)
	}
	eng := engine.New(llm, func(o *engine.Options) {
		o.MaxModelCalls = cfg.MaxModelCalls
		o.Callbacks = callbacks
		o.Logger = logging.With(a.logger, "component", "engine")
	})

	for _, name := range workflow.Names() {
		def, err := workflow.Lookup(name)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		pattern, err := def.Pattern()
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("workflow %s: %w", name, err)
		}
		chat, err := groupchat.New(pattern, eng, func(o *groupchat.Options) {
			o.SessionStore = a.sessions
			o.ReportStore = a.reports
			o.Observer = a.metrics
			o.Logger = logging.With(a.logger, "workflow", name)
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.chats[name] = chat
	}
	if _, ok := a.chats[cfg.Workflow]; !ok {
		_ = a.Close()
		return nil, fmt.Errorf("unknown workflow %q (available: %s)", cfg.Workflow, strings.Join(workflow.Names(), ", "))
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func newModel(cfg config.ModelConfig) (model.Model, error) {
	openaiOpts := func(o *openai.Options) {
		o.Model = cfg.Name
		o.Temperature = cfg.Temperature
		o.APIKey = cfg.APIKey
		o.BaseURL = cfg.BaseURL
		if cfg.MaxTokens > 0 {
			o.MaxCompletionTokens = cfg.MaxTokens
		}
	}
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openai.NewModel(openaiOpts), nil
	case config.ProviderAzure:
		return openai.NewAzureModel(cfg.AzureEndpoint, cfg.AzureAPIVersion, cfg.APIKey, openaiOpts), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			// The default name targets OpenAI; keep the adapter's default then.
			if cfg.Name != "" && !strings.HasPrefix(cfg.Name, "gpt-") {
				o.Model = anthropicsdk.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.APIKey = cfg.APIKey
			if cfg.MaxTokens > 0 {
				o.MaxTokens = cfg.MaxTokens
			}
		}), nil
	case config.ProviderMock:
		return model.NewMockModel("mock", "mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
