// Package telemetry provides Prometheus metrics and OpenTelemetry tracing
// for the routing engine.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "expertroute"

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	QuestionsSubmitted     prometheus.Counter
	Classifications        *prometheus.CounterVec
	ClassificationDuration prometheus.Histogram

	MatchDuration    prometheus.Histogram
	CandidatesScored prometheus.Histogram
	MatchesStored    prometheus.Counter

	Notifications *prometheus.CounterVec
	Forwards      prometheus.Counter
	Responses     *prometheus.CounterVec
	Votes         *prometheus.CounterVec

	SweepRuns      *prometheus.CounterVec
	SweepQuestions prometheus.Histogram
}

// Provider wraps the tracer and metrics. A nil *Provider is valid and
// records nothing.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider registers all metrics on a fresh registry, together with the
// Go runtime and process collectors.
func NewProvider() *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(reg)),
		registry: reg,
	}
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

func initMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		QuestionsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "expertroute_questions_submitted_total",
			Help: "Total questions accepted for routing",
		}),
		Classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "expertroute_classifications_total",
			Help: "Classification attempts by outcome (ok, degraded)",
		}, []string{"outcome"}),
		ClassificationDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "expertroute_classification_duration_seconds",
			Help:    "Time spent waiting on the classification service",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}),
		MatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "expertroute_match_duration_seconds",
			Help:    "Time to build, score and store matches for one question",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		CandidatesScored: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "expertroute_candidates_scored",
			Help:    "Number of candidates scored per matching run",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		MatchesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "expertroute_matches_stored_total",
			Help: "Total question matches written",
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "expertroute_notifications_total",
			Help: "Notifications created by type",
		}, []string{"type"}),
		Forwards: f.NewCounter(prometheus.CounterOpts{
			Name: "expertroute_forwards_total",
			Help: "Total recorded forwards",
		}),
		Responses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "expertroute_responses_total",
			Help: "Responses created by source type",
		}, []string{"source"}),
		Votes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "expertroute_votes_total",
			Help: "Response votes by direction",
		}, []string{"direction"}),
		SweepRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "expertroute_sweep_runs_total",
			Help: "Background sweep runs by outcome",
		}, []string{"outcome"}),
		SweepQuestions: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "expertroute_sweep_questions",
			Help:    "Questions re-matched per sweep run",
			Buckets: []float64{0, 1, 10, 50, 100, 250, 500, 1000},
		}),
	}
}

// RecordSubmission counts a submitted question.
func (p *Provider) RecordSubmission() {
	if p == nil {
		return
	}
	p.Metrics.QuestionsSubmitted.Inc()
}

// RecordClassification records one classification call.
func (p *Provider) RecordClassification(degraded bool, duration time.Duration) {
	if p == nil {
		return
	}
	outcome := "ok"
	if degraded {
		outcome = "degraded"
	}
	p.Metrics.Classifications.WithLabelValues(outcome).Inc()
	p.Metrics.ClassificationDuration.Observe(duration.Seconds())
}

// RecordMatch records one matching run.
func (p *Provider) RecordMatch(candidates, stored int, duration time.Duration) {
	if p == nil {
		return
	}
	p.Metrics.CandidatesScored.Observe(float64(candidates))
	p.Metrics.MatchesStored.Add(float64(stored))
	p.Metrics.MatchDuration.Observe(duration.Seconds())
}

// RecordNotification counts a notification of the given type.
func (p *Provider) RecordNotification(kind string) {
	if p == nil {
		return
	}
	p.Metrics.Notifications.WithLabelValues(kind).Inc()
}

// RecordForward counts a forward.
func (p *Provider) RecordForward() {
	if p == nil {
		return
	}
	p.Metrics.Forwards.Inc()
}

// RecordResponse counts a response by source type.
func (p *Provider) RecordResponse(source string) {
	if p == nil {
		return
	}
	p.Metrics.Responses.WithLabelValues(source).Inc()
}

// RecordVote counts a vote.
func (p *Provider) RecordVote(helpful bool) {
	if p == nil {
		return
	}
	direction := "unhelpful"
	if helpful {
		direction = "helpful"
	}
	p.Metrics.Votes.WithLabelValues(direction).Inc()
}

// RecordSweep records one sweep run.
func (p *Provider) RecordSweep(questions int, err error) {
	if p == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	p.Metrics.SweepRuns.WithLabelValues(outcome).Inc()
	p.Metrics.SweepQuestions.Observe(float64(questions))
}

// StartSpan starts a new trace span. It falls back to the global tracer
// when p is nil.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(serviceName)
	if p != nil && p.Tracer != nil {
		tracer = p.Tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
