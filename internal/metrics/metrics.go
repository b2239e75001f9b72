// Package metrics holds the Prometheus collectors shared by the workflow,
// agents, and section drafting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TurnsTotal counts handled conversation turns by resolved phase and the
	// rule that dispatched them.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_turns_total",
		Help: "Conversation turns handled, by phase and intent",
	}, []string{"phase", "intent"})

	// TurnFailures counts turns that ended in a processing error.
	TurnFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_turn_failures_total",
		Help: "Conversation turns that failed, by phase and intent",
	}, []string{"phase", "intent"})

	// GenerationDuration observes generation-service latency per agent operation.
	GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "counsel_generation_duration_seconds",
		Help:    "Generation service call latency, by operation",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
	}, []string{"operation"})

	// GenerationFailures counts failed generation-service calls per operation.
	GenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_generation_failures_total",
		Help: "Generation service call failures, by operation",
	}, []string{"operation"})

	// ParseFailures counts structured outputs that could not be decoded.
	ParseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_structured_output_parse_failures_total",
		Help: "Structured generation outputs that failed to decode, by operation",
	}, []string{"operation"})

	// SectionQuestions counts questions asked in section drafting threads.
	SectionQuestions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "counsel_section_questions_total",
		Help: "Questions asked while drafting sections, by section type",
	}, []string{"section_type"})
)
