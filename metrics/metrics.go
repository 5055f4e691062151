// Package metrics exposes fabflow's prometheus metrics: node executions of
// the graph engine, review verdicts, HTTP requests and chatbot queries.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smallnest/fabflow/graph"
)

// Metrics holds the collectors on their own registry.
type Metrics struct {
	registry *prometheus.Registry

	nodeExecutions *prometheus.CounterVec
	nodeDuration   *prometheus.HistogramVec
	interrupts     *prometheus.CounterVec
	verdicts       *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	ragQueries     *prometheus.CounterVec
}

var _ graph.NodeListener = (*Metrics)(nil)

// New registers every collector, plus the Go and process collectors, on a
// fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		nodeExecutions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabflow_node_executions_total",
				Help: "Node executions by outcome (complete, error, interrupt)",
			},
			[]string{"graph", "node", "status"},
		),
		nodeDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fabflow_node_duration_seconds",
				Help:    "Duration of node executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"graph", "node"},
		),
		interrupts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabflow_interrupts_total",
				Help: "Runs suspended for human review",
			},
			[]string{"graph", "node"},
		),
		verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabflow_review_verdicts_total",
				Help: "Review verdicts by type",
			},
			[]string{"verdict"},
		),
		httpRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabflow_http_requests_total",
				Help: "HTTP requests by route pattern and status code",
			},
			[]string{"route", "code"},
		),
		ragQueries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabflow_rag_queries_total",
				Help: "Chatbot queries, split by whether a category filter was set",
			},
			[]string{"filtered"},
		),
	}
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// OnNodeEvent records node outcomes. Start events are ignored.
func (m *Metrics) OnNodeEvent(_ context.Context, graphName string, event graph.NodeEvent, node string, d time.Duration, _ error) {
	if event == graph.NodeEventStart {
		return
	}
	m.nodeExecutions.WithLabelValues(graphName, node, string(event)).Inc()
	m.nodeDuration.WithLabelValues(graphName, node).Observe(d.Seconds())
	if event == graph.NodeEventInterrupt {
		m.interrupts.WithLabelValues(graphName, node).Inc()
	}
}

// ObserveVerdict counts a review verdict.
func (m *Metrics) ObserveVerdict(verdict string) {
	m.verdicts.WithLabelValues(verdict).Inc()
}

// ObserveQuery counts a chatbot query.
func (m *Metrics) ObserveQuery(filtered bool) {
	m.ragQueries.WithLabelValues(strconv.FormatBool(filtered)).Inc()
}

// Middleware counts requests by chi route pattern, so path parameters do not
// explode the label space.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
