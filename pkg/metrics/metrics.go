// Package metrics provides Prometheus instrumentation for the assistant.
//
// Metrics live on a private registry so tests can construct the process
// without colliding with the global default registerer. Mount Handler on
// GET /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "foodbot"

var (
	// TurnsTotal counts conversation turns by outcome
	// ("reply" | "tool_reply" | "tool_failed" | "protocol_error" | "provider_error").
	TurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "turns_total",
			Help:      "Total conversation turns processed.",
		},
		[]string{"outcome"},
	)

	// TurnDuration tracks end-to-end turn latency, including tool round-trips.
	TurnDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "agent",
		Name:      "turn_duration_seconds",
		Help:      "Duration of a conversation turn in seconds.",
		Buckets:   []float64{.25, .5, 1, 2, 4, 8, 16, 32},
	})

	// ToolCallsTotal counts tool invocations by tool name and outcome ("ok" | "failed" | "rejected").
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Total tool calls dispatched through the registry.",
		},
		[]string{"tool", "outcome"},
	)

	// LLMCostUSD accumulates computed model cost.
	LLMCostUSD = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Accumulated LLM usage cost in USD.",
		},
		[]string{"model"},
	)

	// LLMTokens accumulates prompt and completion tokens.
	LLMTokens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Accumulated LLM tokens by kind.",
		},
		[]string{"model", "kind"}, // "prompt" | "completion"
	)

	// LLMLatency tracks a single chat completion round-trip.
	LLMLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "request_duration_seconds",
			Help:      "Duration of chat model calls in seconds.",
			Buckets:   []float64{.25, .5, 1, 2, 4, 8, 16},
		},
		[]string{"model", "outcome"},
	)

	// DraftsOpen tracks draft orders created minus drafts confirmed or discarded in this process.
	DraftsOpen = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "drafts_open",
		Help:      "Draft orders currently open in this process.",
	})

	// OrdersConfirmed counts drafts converted into persisted orders.
	OrdersConfirmed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orders",
		Name:      "confirmed_total",
		Help:      "Total orders confirmed from drafts.",
	})

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being served.",
	})
)

// DefaultRegistry is the registry every collector above is registered against.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(collectors.NewGoCollector())
	DefaultRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	DefaultRegistry.MustRegister(
		TurnsTotal,
		TurnDuration,
		ToolCallsTotal,
		LLMCostUSD,
		LLMTokens,
		LLMLatency,
		DraftsOpen,
		OrdersConfirmed,
		RequestDuration,
		RequestInFlight,
	)
}

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records duration and in-flight metrics for every request.
// routePattern resolves the low-cardinality route label; nil falls back to the raw path.
func Middleware(routePattern func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			RequestInFlight.Inc()
			defer RequestInFlight.Dec()

			rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rr, r)

			path := r.URL.Path
			if routePattern != nil {
				if p := routePattern(r); p != "" {
					path = p
				}
			}
			RequestDuration.WithLabelValues(r.Method, path, strconv.Itoa(rr.status)).Observe(time.Since(start).Seconds())
		})
	}
}

// Handler exposes the registry in the Prometheus text and OpenMetrics formats.
func Handler() http.Handler {
	return promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
