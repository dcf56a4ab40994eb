// Package metrics exposes Prometheus metrics for group chat sessions, turns,
// hand-offs, tool calls and the HTTP and WebSocket surfaces.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/groupchat/engine"
	"github.com/hupe1980/groupchat/groupchat"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "groupchat"

// Collector records metrics on its own registry. It implements
// groupchat.Observer.
type Collector struct {
	registry *prometheus.Registry

	sessionsStarted *prometheus.CounterVec
	sessionsEnded   *prometheus.CounterVec
	turnsTotal      *prometheus.CounterVec
	turnDuration    *prometheus.HistogramVec
	handoffsTotal   *prometheus.CounterVec
	toolCalls       *prometheus.CounterVec
	modelDuration   *prometheus.HistogramVec
	wsConnections   prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var _ groupchat.Observer = (*Collector)(nil)

// NewCollector creates a collector registered on a fresh registry. Go
// runtime and process collectors are included.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		registry: reg,

		sessionsStarted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Total number of started sessions",
		}, []string{"workflow"}),

		sessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Total number of ended sessions by end reason",
		}, []string{"workflow", "reason"}),

		turnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of participant turns",
		}, []string{"workflow", "agent", "status"}),

		turnDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Participant turn duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"workflow"}),

		handoffsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handoffs_total",
			Help:      "Total number of hand-off decisions by source",
		}, []string{"workflow", "source", "target_kind"}),

		toolCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls",
		}, []string{"agent", "tool", "status"}),

		modelDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"agent", "status"}),

		wsConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Number of open WebSocket connections",
		}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry metrics are recorded on.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// SessionStarted implements groupchat.Observer.
func (c *Collector) SessionStarted(workflow string) {
	c.sessionsStarted.WithLabelValues(workflow).Inc()
}

// SessionEnded implements groupchat.Observer.
func (c *Collector) SessionEnded(workflow, reason string, _ error) {
	c.sessionsEnded.WithLabelValues(workflow, reason).Inc()
}

// TurnCompleted implements groupchat.Observer.
func (c *Collector) TurnCompleted(workflow, agent string, d time.Duration, err error) {
	c.turnsTotal.WithLabelValues(workflow, agent, status(err)).Inc()
	c.turnDuration.WithLabelValues(workflow).Observe(d.Seconds())
}

// HandoffDecided implements groupchat.Observer.
func (c *Collector) HandoffDecided(workflow, _ string, source, targetKind string) {
	c.handoffsTotal.WithLabelValues(workflow, source, targetKind).Inc()
}

// ToolCalled records one tool invocation.
func (c *Collector) ToolCalled(agent, tool string, err error) {
	c.toolCalls.WithLabelValues(agent, tool, status(err)).Inc()
}

// ModelCalled records one model call.
func (c *Collector) ModelCalled(agent string, d time.Duration, err error) {
	c.modelDuration.WithLabelValues(agent, status(err)).Observe(d.Seconds())
}

// ConnectionOpened increments the open WebSocket connection gauge.
func (c *Collector) ConnectionOpened() { c.wsConnections.Inc() }

// ConnectionClosed decrements the open WebSocket connection gauge.
func (c *Collector) ConnectionClosed() { c.wsConnections.Dec() }

// Callbacks returns engine callbacks feeding tool and model metrics.
func (c *Collector) Callbacks() []engine.Callback {
	return []engine.Callback{
		engine.NewFunctionCallback(engine.CallbackAfterTool, func(_ context.Context, cb *engine.CallbackContext) error {
			c.ToolCalled(cb.Agent, cb.Tool, cb.Err)
			return nil
		}),
		engine.NewFunctionCallback(engine.CallbackAfterModel, func(_ context.Context, cb *engine.CallbackContext) error {
			c.ModelCalled(cb.Agent, cb.Duration, cb.Err)
			return nil
		}),
	}
}

// Middleware records request counts and latency labelled by the chi route
// pattern.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := routePattern(r)
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

// UnmatchedRoute labels requests no chi route matched.
const UnmatchedRoute = "unmatched"

// routePattern returns the matched chi pattern, e.g. /reports/{id}. Raw
// paths are never used as labels.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return UnmatchedRoute
}
