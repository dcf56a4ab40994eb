package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/hupe1980/groupchat/config"
	"github.com/hupe1980/groupchat/server"
)

// ServeCmd starts the HTTP API and the WebSocket bridge.
type ServeCmd struct {
	HTTPAddr      string `name:"http-addr" help:"Override the HTTP listen address."`
	WebSocketAddr string `name:"ws-addr" help:"Override the WebSocket listen address."`
	Workflow      string `help:"Override the default workflow."`
	AllowOrigins  bool   `name:"allow-any-origin" help:"Skip the WebSocket origin check."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cli, c.override)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	chats := make(map[string]server.Chat, len(a.chats))
	for name, chat := range a.chats {
		chats[name] = chat
	}
	srv, err := server.New(func(o *server.Options) {
		o.Workflows = chats
		o.DefaultWorkflow = cfg.Workflow
		o.Reports = a.reports
		o.Sessions = a.sessions
		o.Metrics = a.metrics
		o.Logger = a.logger
		o.InsecureSkipVerify = c.AllowOrigins
	})
	if err != nil {
		return err
	}

	a.logger.Info("groupchat.serve", "http_addr", cfg.Server.HTTPAddr, "ws_addr", cfg.Server.WebSocketAddr,
		"workflow", cfg.Workflow, "provider", cfg.Model.Provider, "model", cfg.Model.Name, "version", version())
	return srv.Run(ctx, cfg.Server.HTTPAddr, cfg.Server.WebSocketAddr)
}

func (c *ServeCmd) override(cfg *config.Config) {
	if c.HTTPAddr != "" {
		cfg.Server.HTTPAddr = c.HTTPAddr
	}
	if c.WebSocketAddr != "" {
		cfg.Server.WebSocketAddr = c.WebSocketAddr
	}
	if c.Workflow != "" {
		cfg.Workflow = c.Workflow
	}
}
