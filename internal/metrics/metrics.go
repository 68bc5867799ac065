// Package metrics exposes Prometheus metrics for the coordinator and the
// trust evaluator. A nil *Metrics is valid and records nothing, as does a
// recorder whose collectors were not registered.
package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every certtrust collector.
type Metrics struct {
	// Coordinator requests by outcome: trusted, rejected, pending, presented,
	// malformed, no_presenter
	Requests *prometheus.CounterVec

	// User decisions by verdict: trusted, rejected
	Decisions *prometheus.CounterVec

	Aborts            prometheus.Counter
	PendingDecisions  prometheus.Gauge
	PresenterFailures prometheus.Counter
	ReplyFailures     prometheus.Counter

	// Evaluator results by outcome: system, user, rejected, timeout,
	// unavailable, transport_error, cancelled
	Evaluations *prometheus.CounterVec
	WaitLatency prometheus.Histogram
}

// New registers the coordinator and evaluator collectors on reg, for a
// process that runs both. Passing a fresh registry keeps tests and
// multiple instances independent.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	f := promauto.With(reg)
	m.registerCoordinator(f)
	m.registerEvaluator(f)
	return m
}

// NewCoordinator registers only the coordinator collectors on reg. Evaluator
// recorders on the result are no-ops.
func NewCoordinator(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.registerCoordinator(promauto.With(reg))
	return m
}

// NewEvaluator registers only the evaluator collectors on reg. Coordinator
// recorders on the result are no-ops.
func NewEvaluator(reg prometheus.Registerer) *Metrics {
	m := &Metrics{}
	m.registerEvaluator(promauto.With(reg))
	return m
}

func (m *Metrics) registerCoordinator(f promauto.Factory) {
	m.Requests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "certtrust_coordinator_requests_total",
		Help: "Trust checks received by the coordinator by outcome",
	}, []string{"outcome"})

	m.Decisions = f.NewCounterVec(prometheus.CounterOpts{
		Name: "certtrust_coordinator_decisions_total",
		Help: "User decisions applied by verdict",
	}, []string{"verdict"})

	m.Aborts = f.NewCounter(prometheus.CounterOpts{
		Name: "certtrust_coordinator_aborts_total",
		Help: "Trust checks withdrawn by evaluators",
	})

	m.PendingDecisions = f.NewGauge(prometheus.GaugeOpts{
		Name: "certtrust_coordinator_pending_decisions",
		Help: "Certificates currently awaiting a user decision",
	})

	m.PresenterFailures = f.NewCounter(prometheus.CounterOpts{
		Name: "certtrust_coordinator_presenter_failures_total",
		Help: "Certificates that could not be presented for a decision",
	})

	m.ReplyFailures = f.NewCounter(prometheus.CounterOpts{
		Name: "certtrust_coordinator_reply_failures_total",
		Help: "Decisions that could not be sent back to an evaluator",
	})
}

func (m *Metrics) registerEvaluator(f promauto.Factory) {
	m.Evaluations = f.NewCounterVec(prometheus.CounterOpts{
		Name: "certtrust_evaluator_checks_total",
		Help: "Certificate checks performed by the evaluator by outcome",
	}, []string{"outcome"})

	m.WaitLatency = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "certtrust_evaluator_wait_duration_seconds",
		Help:    "Time spent waiting for a coordinator decision",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})
}

// IncRequest records a coordinator request outcome.
func (m *Metrics) IncRequest(outcome string) {
	if m != nil && m.Requests != nil {
		m.Requests.WithLabelValues(outcome).Inc()
	}
}

// IncDecision records an applied user decision.
func (m *Metrics) IncDecision(trusted bool) {
	if m != nil && m.Decisions != nil {
		verdict := "rejected"
		if trusted {
			verdict = "trusted"
		}
		m.Decisions.WithLabelValues(verdict).Inc()
	}
}

// IncAbort records a withdrawn check.
func (m *Metrics) IncAbort() {
	if m != nil && m.Aborts != nil {
		m.Aborts.Inc()
	}
}

// SetPending sets the number of pending decisions.
func (m *Metrics) SetPending(n int) {
	if m != nil && m.PendingDecisions != nil {
		m.PendingDecisions.Set(float64(n))
	}
}

// IncPresenterFailure records a certificate that could not be presented.
func (m *Metrics) IncPresenterFailure() {
	if m != nil && m.PresenterFailures != nil {
		m.PresenterFailures.Inc()
	}
}

// IncReplyFailure records a decision that could not be delivered.
func (m *Metrics) IncReplyFailure() {
	if m != nil && m.ReplyFailures != nil {
		m.ReplyFailures.Inc()
	}
}

// IncEvaluation records an evaluator outcome.
func (m *Metrics) IncEvaluation(outcome string) {
	if m != nil && m.Evaluations != nil {
		m.Evaluations.WithLabelValues(outcome).Inc()
	}
}

// ObserveWait records how long an evaluator waited for a decision.
func (m *Metrics) ObserveWait(d time.Duration) {
	if m != nil && m.WaitLatency != nil {
		m.WaitLatency.Observe(d.Seconds())
	}
}

// LogSummary logs every sample gathered from g at debug level, one record
// per series. It suits short-lived commands that have no /metrics endpoint.
func LogSummary(g prometheus.Gatherer, logger *slog.Logger) {
	families, err := g.Gather()
	if err != nil {
		logger.Debug("gathering metrics", "error", err)
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			attrs := []any{"metric", mf.GetName()}
			for _, label := range metric.GetLabel() {
				attrs = append(attrs, label.GetName(), label.GetValue())
			}
			switch {
			case metric.GetCounter() != nil:
				attrs = append(attrs, "value", metric.GetCounter().GetValue())
			case metric.GetGauge() != nil:
				attrs = append(attrs, "value", metric.GetGauge().GetValue())
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				attrs = append(attrs, "count", h.GetSampleCount(), "sum", h.GetSampleSum())
			}
			logger.Debug("metric", attrs...)
		}
	}
}
