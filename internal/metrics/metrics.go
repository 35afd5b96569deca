// Package metrics provides Prometheus metrics collection for the fraud
// scoring service. It defines and manages all prediction, storage, and
// system metrics that are exposed via the Prometheus metrics endpoint for
// monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the scoring service.
type Metrics struct {
	// Prediction metrics
	Predictions         prometheus.Counter   // Total number of transactions scored
	Flagged             prometheus.Counter   // Total number of transactions flagged as fraud
	ValidationRejects   prometheus.Counter   // Total number of requests rejected by validation
	ScoringLatency      prometheus.Histogram // End-to-end scoring latency in seconds
	ExplanationLatency  prometheus.Histogram // Explanation computation latency in seconds
	ExplanationFailures prometheus.Counter   // Total number of explanations replaced by placeholders
	PredictionScores    prometheus.Histogram // Distribution of fraud probabilities
	DegradedMode        prometheus.Gauge     // 1 when serving without a real model
	ModelAge            prometheus.Gauge     // Age of the loaded model artifacts in seconds

	// Storage and alerting metrics
	StorageErrors        prometheus.Counter // Total number of background storage failures
	NotificationFailures prometheus.Counter // Total number of alert deliveries that failed
	AlertsSent           prometheus.Counter // Total number of alert deliveries that succeeded

	// Transport metrics
	WSClients prometheus.Gauge // Number of connected alert stream clients

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of transactions scored",
		}),
		Flagged: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraud_flagged_total",
			Help: "Total number of transactions flagged as fraud",
		}),
		ValidationRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "validation_rejects_total",
			Help: "Total number of requests rejected by validation",
		}),
		ScoringLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "scoring_latency_seconds",
			Help:    "End-to-end scoring latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ExplanationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "explanation_latency_seconds",
			Help:    "Explanation computation latency in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		ExplanationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "explanation_failures_total",
			Help: "Total number of explanations replaced by placeholders",
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of fraud probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		DegradedMode: factory.NewGauge(prometheus.GaugeOpts{
			Name: "degraded_mode",
			Help: "1 when serving without a real model, 0 otherwise",
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the loaded model artifacts in seconds",
		}),
		StorageErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "storage_errors_total",
			Help: "Total number of background storage failures",
		}),
		NotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Total number of alert deliveries that failed",
		}),
		AlertsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "alerts_sent_total",
			Help: "Total number of alert deliveries that succeeded",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ws_clients",
			Help: "Number of connected alert stream clients",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}
