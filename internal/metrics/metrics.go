// Package metrics exports session activity to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/abhisek/examdrill/internal/session"
)

// Observer records session events. It implements session.Observer.
type Observer struct {
	reg prometheus.Gatherer

	events          *prometheus.CounterVec
	answers         *prometheus.CounterVec
	answerDuration  *prometheus.HistogramVec
	sessionAccuracy *prometheus.HistogramVec
	active          *prometheus.GaugeVec
	syncFailures    *prometheus.CounterVec
}

var _ session.Observer = (*Observer)(nil)

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Observer {
	f := promauto.With(reg)
	return &Observer{
		reg: reg,
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "examdrill_session_events_total",
			Help: "Session lifecycle events by variant and type",
		}, []string{"variant", "event"}),
		answers: f.NewCounterVec(prometheus.CounterOpts{
			Name: "examdrill_answers_total",
			Help: "Recorded answers by variant and correctness",
		}, []string{"variant", "correct"}),
		answerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "examdrill_answer_duration_seconds",
			Help:    "Time taken to answer a question",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"variant"}),
		sessionAccuracy: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "examdrill_session_accuracy_percent",
			Help:    "Accuracy of finished sessions",
			Buckets: prometheus.LinearBuckets(10, 10, 10),
		}, []string{"variant"}),
		active: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "examdrill_sessions_active",
			Help: "Sessions currently in progress",
		}, []string{"variant"}),
		syncFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "examdrill_sync_failures_total",
			Help: "Server calls that exhausted their retries",
		}, []string{"variant"}),
	}
}

func (o *Observer) OnEvent(_ context.Context, ev session.Event) {
	v := string(ev.Variant)
	o.events.WithLabelValues(v, string(ev.Type)).Inc()

	switch ev.Type {
	case session.EventStarted, session.EventRecovered:
		o.active.WithLabelValues(v).Inc()
	case session.EventAnswered:
		correct := "false"
		if ev.Correct {
			correct = "true"
		}
		o.answers.WithLabelValues(v, correct).Inc()
		o.answerDuration.WithLabelValues(v).Observe(ev.Elapsed)
	case session.EventCompleted, session.EventExpired:
		o.active.WithLabelValues(v).Dec()
		if ev.Stats.QuestionsAnswered > 0 {
			o.sessionAccuracy.WithLabelValues(v).Observe(ev.Stats.Accuracy)
		}
	case session.EventAbandoned:
		o.active.WithLabelValues(v).Dec()
	case session.EventSyncFailed:
		o.syncFailures.WithLabelValues(v).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Observer) Handler() http.Handler {
	return promhttp.HandlerFor(o.reg, promhttp.HandlerOpts{})
}
