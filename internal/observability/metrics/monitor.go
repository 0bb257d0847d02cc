package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MonitorMetrics covers the accuracy monitor and the worker's intake loop.
type MonitorMetrics struct {
	registry *prometheus.Registry

	passDuration    *prometheus.HistogramVec
	rulesEvaluated  *prometheus.CounterVec
	rollbacksTotal  *prometheus.CounterVec
	ruleAccuracy    *prometheus.GaugeVec
	intakeTotal     *prometheus.CounterVec
	intakeDuration  *prometheus.HistogramVec
	intakeInFlight  prometheus.Gauge
	extractionLag   *prometheus.HistogramVec
}

func NewMonitorMetrics(service string) *MonitorMetrics {
	registry := prometheus.NewRegistry()

	passDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqc",
			Subsystem: "monitor",
			Name:      "pass_duration_seconds",
			Help:      "Accuracy monitoring pass duration in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"service"},
	)
	rulesEvaluated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "monitor",
			Name:      "rules_evaluated_total",
			Help:      "Total rule evaluations by outcome.",
		},
		[]string{"service", "outcome"},
	)
	rollbacksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "monitor",
			Name:      "rollbacks_total",
			Help:      "Total rule rollbacks by trigger.",
		},
		[]string{"service", "trigger"},
	)
	ruleAccuracy := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docqc",
			Subsystem: "monitor",
			Name:      "rule_accuracy",
			Help:      "Last measured accuracy of a rule's current version.",
		},
		[]string{"service", "rule_id"},
	)
	intakeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docqc",
			Subsystem: "worker",
			Name:      "document_intake_total",
			Help:      "Total processed extraction events by status.",
		},
		[]string{"service", "status"},
	)
	intakeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqc",
			Subsystem: "worker",
			Name:      "document_intake_duration_seconds",
			Help:      "Intake processing duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	intakeInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "docqc",
			Subsystem: "worker",
			Name:      "document_intake_in_flight",
			Help:      "Number of in-flight intake tasks.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	extractionLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docqc",
			Subsystem: "worker",
			Name:      "extraction_lag_seconds",
			Help:      "Delay between extraction finish and intake start.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)

	registry.MustRegister(
		passDuration,
		rulesEvaluated,
		rollbacksTotal,
		ruleAccuracy,
		intakeTotal,
		intakeDuration,
		intakeInFlight,
		extractionLag,
	)

	return &MonitorMetrics{
		registry:       registry,
		passDuration:   passDuration,
		rulesEvaluated: rulesEvaluated,
		rollbacksTotal: rollbacksTotal,
		ruleAccuracy:   ruleAccuracy,
		intakeTotal:    intakeTotal,
		intakeDuration: intakeDuration,
		intakeInFlight: intakeInFlight,
		extractionLag:  extractionLag,
	}
}

func (m *MonitorMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MonitorMetrics) ObservePass(service string, duration time.Duration, processed, skipped, rolledBack, failed int) {
	m.passDuration.WithLabelValues(service).Observe(duration.Seconds())
	m.rulesEvaluated.WithLabelValues(service, "processed").Add(float64(processed))
	m.rulesEvaluated.WithLabelValues(service, "skipped").Add(float64(skipped))
	m.rulesEvaluated.WithLabelValues(service, "rolled_back").Add(float64(rolledBack))
	m.rulesEvaluated.WithLabelValues(service, "failed").Add(float64(failed))
}

func (m *MonitorMetrics) RecordRollback(service, trigger string) {
	m.rollbacksTotal.WithLabelValues(service, trigger).Inc()
}

func (m *MonitorMetrics) SetRuleAccuracy(service, ruleID string, accuracy float64) {
	m.ruleAccuracy.WithLabelValues(service, ruleID).Set(accuracy)
}

func (m *MonitorMetrics) StartIntake() {
	m.intakeInFlight.Inc()
}

func (m *MonitorMetrics) FinishIntake(service string, duration time.Duration, err error) {
	m.intakeInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.intakeTotal.WithLabelValues(service, status).Inc()
	m.intakeDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

func (m *MonitorMetrics) ObserveExtractionLag(service string, lag time.Duration) {
	if lag < 0 {
		return
	}
	m.extractionLag.WithLabelValues(service).Observe(lag.Seconds())
}
