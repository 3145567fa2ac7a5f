package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"queue-wait-monitor/internal/estimator"
)

const metricPrefix = "queuewatch_"

// Metrics holds the prometheus collectors for the monitoring pipeline.
type Metrics struct {
	EventsIngested *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	ServiceRate    *prometheus.GaugeVec
	WaitMinutes    *prometheus.GaugeVec
	AnomalyActive  *prometheus.GaugeVec
	Refreshes      prometheus.Counter
}

// New registers the pipeline collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "events_ingested_total",
			Help: "Completion events accepted into the pipeline",
		}, []string{"counter"}),
		EventsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricPrefix + "events_rejected_total",
			Help: "Completion events rejected at ingestion",
		}, []string{"counter", "reason"}),
		ServiceRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "service_rate_per_minute",
			Help: "Current smoothed service rate (completions per minute)",
		}, []string{"counter"}),
		WaitMinutes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "wait_estimate_minutes",
			Help: "Current wait estimate in minutes; absent while unknown",
		}, []string{"counter"}),
		AnomalyActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: metricPrefix + "anomaly_active",
			Help: "Whether an anomaly flag of the given kind is active (0/1)",
		}, []string{"counter", "kind"}),
		Refreshes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "refresh_ticks_total",
			Help: "Scheduled re-evaluations of the pipeline",
		}),
	}

	reg.MustRegister(
		m.EventsIngested,
		m.EventsRejected,
		m.ServiceRate,
		m.WaitMinutes,
		m.AnomalyActive,
		m.Refreshes,
	)
	return m
}

// ObserveSnapshot updates the gauges from a freshly published snapshot.
func (m *Metrics) ObserveSnapshot(snap estimator.StatusSnapshot) {
	counter := snap.CounterID
	if snap.Known {
		m.ServiceRate.WithLabelValues(counter).Set(snap.Rate.Rate)
		m.WaitMinutes.WithLabelValues(counter).Set(snap.Estimate.Minutes)
	} else {
		m.ServiceRate.DeleteLabelValues(counter)
		m.WaitMinutes.DeleteLabelValues(counter)
	}

	kinds := []estimator.AnomalyKind{
		estimator.AnomalySlowdown,
		estimator.AnomalyStall,
		estimator.AnomalyInstability,
	}
	for _, kind := range kinds {
		v := 0.0
		if estimator.HasFlag(snap.Flags, kind) {
			v = 1.0
		}
		m.AnomalyActive.WithLabelValues(counter, string(kind)).Set(v)
	}
}
