package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SagaMetrics records the traffic flowing through the saga services.
type SagaMetrics struct {
	duration  *prometheus.HistogramVec
	handled   *prometheus.CounterVec
	steps     *prometheus.CounterVec
	finished  *prometheus.CounterVec
	malformed *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

// NewSagaMetrics registers the saga metrics on the provided registerer.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		return &SagaMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_message_duration_seconds",
		Help:    "Time spent handling one saga message.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
	handled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_messages_handled_total",
		Help: "Saga messages handled, by topic and outcome.",
	}, []string{"topic", "outcome"})
	steps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_participant_steps_total",
		Help: "Participant step results, by source, operation and resulting status.",
	}, []string{"source", "operation", "status"})
	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_finished_total",
		Help: "Sagas that reached a terminal topic.",
	}, []string{"outcome"})
	malformed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_malformed_messages_total",
		Help: "Messages that could not be decoded into a saga event.",
	}, []string{"topic"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_duplicate_messages_total",
		Help: "Redelivered messages skipped by the orchestrator.",
	}, []string{"topic"})
	reg.MustRegister(duration, handled, steps, finished, malformed, skipped)
	return &SagaMetrics{
		duration:  duration,
		handled:   handled,
		steps:     steps,
		finished:  finished,
		malformed: malformed,
		skipped:   skipped,
	}
}

// ObserveMessage records the handling of one message on topic.
func (m *SagaMetrics) ObserveMessage(topic string, took time.Duration, err error) {
	if m == nil || m.duration == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.duration.WithLabelValues(normalizeLabel(topic)).Observe(took.Seconds())
	m.handled.WithLabelValues(normalizeLabel(topic), outcome).Inc()
}

// IncStep counts a participant forward or rollback result.
func (m *SagaMetrics) IncStep(source, operation, status string) {
	if m == nil || m.steps == nil {
		return
	}
	m.steps.WithLabelValues(normalizeLabel(source), normalizeLabel(operation), normalizeLabel(status)).Inc()
}

// IncFinished counts a saga reaching finish-success or finish-fail.
func (m *SagaMetrics) IncFinished(outcome string) {
	if m == nil || m.finished == nil {
		return
	}
	m.finished.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncMalformed counts an undecodable message.
func (m *SagaMetrics) IncMalformed(topic string) {
	if m == nil || m.malformed == nil {
		return
	}
	m.malformed.WithLabelValues(normalizeLabel(topic)).Inc()
}

// IncDuplicate counts a redelivery skipped by deduplication.
func (m *SagaMetrics) IncDuplicate(topic string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(topic)).Inc()
}

// Handler exposes the gatherer in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
