// Package server exposes group chat sessions over HTTP and a line based
// WebSocket bridge.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/groupchat/core"
	"github.com/hupe1980/groupchat/groupchat"
	"github.com/hupe1980/groupchat/logging"
	"github.com/hupe1980/groupchat/metrics"
)

// Chat runs sessions of one workflow. *groupchat.GroupChat implements it.
type Chat interface {
	Run(ctx context.Context, message string, optFns ...func(o *groupchat.RunOptions)) (groupchat.Result, error)
}

// Options configures a Server.
type Options struct {
	// Workflows maps workflow names to their chats.
	Workflows map[string]Chat
	// DefaultWorkflow is used when a request names none.
	DefaultWorkflow string
	Reports         core.ReportStore
	// Sessions exposes running sessions when set.
	Sessions core.SessionStore
	// Metrics is optional.
	Metrics *metrics.Collector
	Logger  logging.Logger
	// ShutdownTimeout bounds graceful shutdown of both listeners.
	ShutdownTimeout time.Duration
	// InsecureSkipVerify disables the WebSocket origin check.
	InsecureSkipVerify bool
}

// Server serves the HTTP API and the WebSocket bridge.
type Server struct {
	opts Options
}

// New validates opts and creates a server.
func New(optFns ...func(o *Options)) (*Server, error) {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		ShutdownTimeout: 10 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(opts.Workflows) == 0 {
		return nil, errors.New("server: no workflows configured")
	}
	if _, ok := opts.Workflows[opts.DefaultWorkflow]; !ok {
		return nil, fmt.Errorf("server: default workflow %q is not configured", opts.DefaultWorkflow)
	}
	if opts.Reports == nil {
		return nil, errors.New("server: report store must not be nil")
	}
	return &Server{opts: opts}, nil
}

// Handler returns the HTTP API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if s.opts.Metrics != nil {
		r.Use(s.opts.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", s.opts.Metrics.Handler())
	}

	r.Get("/healthz", s.handleHealth)
	r.Get("/workflows", s.handleWorkflows)
	r.Post("/chat", s.handleChat)
	r.Route("/reports", func(r chi.Router) {
		r.Get("/", s.handleListReports)
		r.Get("/{id}", s.handleGetReport)
	})
	if s.opts.Sessions != nil {
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Get("/{id}", s.handleGetSession)
		})
	}
	return r
}

// WebSocketHandler returns the handler of the WebSocket bridge.
func (s *Server) WebSocketHandler() http.Handler {
	return http.HandlerFunc(s.serveWebSocket)
}

// Run serves the HTTP API on httpAddr and the WebSocket bridge on wsAddr
// until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context, httpAddr, wsAddr string) error {
	httpLn, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return fmt.Errorf("listen http: %w", err)
	}
	wsLn, err := net.Listen("tcp", wsAddr)
	if err != nil {
		_ = httpLn.Close()
		return fmt.Errorf("listen websocket: %w", err)
	}
	return s.Serve(ctx, httpLn, wsLn)
}

// Serve is Run on existing listeners.
func (s *Server) Serve(ctx context.Context, httpLn, wsLn net.Listener) error {
	baseCtx := func(net.Listener) context.Context { return ctx }
	servers := []*http.Server{
		{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second, BaseContext: baseCtx},
		{Handler: s.WebSocketHandler(), ReadHeaderTimeout: 10 * time.Second, BaseContext: baseCtx},
	}
	listeners := []net.Listener{httpLn, wsLn}

	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range servers {
		srv, ln := srv, listeners[i]
		g.Go(func() error {
			s.opts.Logger.Info("server.listen", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		s.opts.Logger.Info("server.shutdown")
		return errors.Join(errs...)
	})
	return g.Wait()
}

func (s *Server) chat(workflow string) (string, Chat, bool) {
	if workflow == "" {
		workflow = s.opts.DefaultWorkflow
	}
	c, ok := s.opts.Workflows[workflow]
	return workflow, c, ok
}

func (s *Server) workflowNames() []string {
	names := make([]string, 0, len(s.opts.Workflows))
	for n := range s.opts.Workflows {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
