package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facturemanager_requests_total",
			Help: "Total number of HTTP requests per route",
		},
		[]string{"route"},
	)

	RequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facturemanager_request_duration_seconds",
			Help:    "Request duration in seconds per route and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facturemanager_request_errors_total",
			Help: "Total number of error responses per route and status code",
		},
		[]string{"route", "code"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facturemanager_rate_limited_total",
			Help: "Requests rejected by the rate limiter per route",
		},
		[]string{"route"},
	)
)

var (
	CalculationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facturemanager_calculations_total",
			Help: "Bills priced per tariff regime",
		},
		[]string{"regime"},
	)

	CalculationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facturemanager_calculation_errors_total",
			Help: "Failed bill calculations per tariff regime",
		},
		[]string{"regime"},
	)

	RolloversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facturemanager_meter_rollovers_total",
			Help: "Bills priced across a meter counter rollover per regime",
		},
		[]string{"regime"},
	)

	AmountDue = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "facturemanager_amount_due_dinars",
			Help:    "Distribution of computed amounts due per regime",
			Buckets: prometheus.ExponentialBuckets(10, 4, 8),
		},
		[]string{"regime"},
	)
)

// ObserveCalculation records one engine run.
func ObserveCalculation(regime string, amount float64, rollover bool, err error) {
	if err != nil {
		CalculationErrorsTotal.WithLabelValues(regime).Inc()
		return
	}
	CalculationsTotal.WithLabelValues(regime).Inc()
	AmountDue.WithLabelValues(regime).Observe(amount)
	if rollover {
		RolloversTotal.WithLabelValues(regime).Inc()
	}
}

var (
	ScheduledJobLastRun = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "facturemanager_job_last_run_timestamp",
			Help: "Unix timestamp of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobLastDurationSeconds = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "facturemanager_job_last_duration_seconds",
			Help: "Duration of the last completed run for a job",
		},
		[]string{"job"},
	)

	ScheduledJobFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "facturemanager_job_failures_total",
			Help: "Total number of failed executions per job",
		},
		[]string{"job"},
	)

	AuditDriftedBills = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facturemanager_audit_drifted_bills",
			Help: "Bills whose stored amount disagreed with a recomputation in the last audit",
		},
	)

	AuditCheckedBills = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "facturemanager_audit_checked_bills",
			Help: "Bills recomputed in the last audit",
		},
	)
)

func UpdateJobMetrics(job string, startedAt time.Time, err error) {
	dur := time.Since(startedAt).Seconds()
	ScheduledJobLastDurationSeconds.WithLabelValues(job).Set(dur)
	ScheduledJobLastRun.WithLabelValues(job).Set(float64(time.Now().Unix()))
	if err != nil {
		ScheduledJobFailuresTotal.WithLabelValues(job).Inc()
	}
}
