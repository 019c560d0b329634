package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	obserrors "github.com/target/portal-access/internal/observability/errors"
	"github.com/target/portal-access/internal/observability/statsd"
)

// Outcome constants for metric tagging.
const (
	OutcomeAllow    = "allow"
	OutcomeRedirect = "redirect"

	ResultSuccess = "success"
	ResultError   = "error"
)

// DecisionMetric captures one access gate decision.
type DecisionMetric struct {
	RouteKind string
	Outcome   string
	Reason    string
	Role      string
	Duration  time.Duration
}

// LoginMetric captures the result of one login, logout or profile-completion step.
type LoginMetric struct {
	Step   string // login, callback, logout, profile_completion
	Result string
	Err    error
}

// AccessRecorder emits access metrics to Prometheus and, when configured, StatsD.
// A nil *AccessRecorder is a no-op.
type AccessRecorder struct {
	sink     statsd.Sink
	registry *prometheus.Registry

	decisions *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	logins    *prometheus.CounterVec
}

// NewAccessRecorder registers the collectors on a fresh registry. sink may be nil.
func NewAccessRecorder(namespace string, sink statsd.Sink) *AccessRecorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &AccessRecorder{
		sink:     sink,
		registry: reg,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Access gate decisions by route kind, outcome and reason.",
		}, []string{"route_kind", "outcome", "reason"}),
		latency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "access",
			Name:      "decision_duration_seconds",
			Help:      "Time spent deciding, including the session lookup.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}, []string{"route_kind"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "steps_total",
			Help:      "Auth flow steps by step and result.",
		}, []string{"step", "result"}),
	}
}

// Registry exposes the registry for tests and for extra collectors.
func (r *AccessRecorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the Prometheus exposition for this recorder.
func (r *AccessRecorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Decision records one gate decision.
func (r *AccessRecorder) Decision(in DecisionMetric) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(in.RouteKind, in.Outcome, in.Reason).Inc()
	if in.Duration > 0 {
		r.latency.WithLabelValues(in.RouteKind).Observe(in.Duration.Seconds())
	}

	if r.sink == nil {
		return
	}
	tags := map[string]string{
		"route_kind": in.RouteKind,
		"outcome":    in.Outcome,
	}
	if in.Reason != "" {
		tags["reason"] = in.Reason
	}
	if in.Role != "" {
		tags["role"] = in.Role
	}
	r.sink.Count("access.decision", 1, tags)
	if in.Duration > 0 {
		r.sink.Timing("access.decision.duration", in.Duration, CloneTags(tags))
	}
}

// Login records one auth flow step.
func (r *AccessRecorder) Login(in LoginMetric) {
	if r == nil {
		return
	}
	r.logins.WithLabelValues(in.Step, in.Result).Inc()

	if r.sink == nil {
		return
	}
	tags := map[string]string{
		"step":   in.Step,
		"result": in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	r.sink.Count("auth.step", 1, tags)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
