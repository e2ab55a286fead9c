// Package metrics exposes Prometheus collectors for the penalty engine.
// Every helper is a no-op until Init has been called.
package metrics

import (
	"database/sql"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"rentdesk-backend/internal/logger"
)

const (
	metricPrefix = "rentdesk_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	sweepTotal   *prometheus.CounterVec
	sweepLatency *prometheus.HistogramVec

	penaltiesApplied   *prometheus.CounterVec
	penaltyAmountTotal *prometheus.CounterVec

	penaltyAdjustments      *prometheus.CounterVec
	penaltyAdjustmentAmount *prometheus.CounterVec

	baseFallbacks      *prometheus.CounterVec
	sideEffectFailures *prometheus.CounterVec
	versionConflicts   prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers the collectors with the default registry. db, when not
// nil, backs the overdue bill gauge.
func Init(db *sql.DB) {
	registerOnce.Do(func() {
		sweepTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "penalty_sweeps_total",
				Help: "Total penalty sweeps by kind and result",
			},
			[]string{"kind", "result"},
		)
		sweepLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "penalty_sweep_duration_seconds",
				Help:    "Penalty sweep duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)
		penaltiesApplied = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "penalties_applied_total",
				Help: "Total penalties written to bills by operation",
			},
			[]string{"operation"},
		)
		penaltyAmountTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "penalty_amount_total",
				Help: "Sum of penalty amounts written to bills by operation",
			},
			[]string{"operation"},
		)
		penaltyAdjustments = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "penalty_adjustments_total",
				Help: "Manual adjustments and recalculation corrections by operation",
			},
			[]string{"operation"},
		)
		penaltyAdjustmentAmount = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "penalty_adjustment_amount_total",
				Help: "Absolute penalty change from adjustments and corrections by operation and direction",
			},
			[]string{"operation", "direction"},
		)
		baseFallbacks = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "penalty_base_fallbacks_total",
				Help: "Bills whose base amount could not be taken from items",
			},
			[]string{"source"},
		)
		sideEffectFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "penalty_side_effect_failures_total",
				Help: "Failed notification, email or broadcast attempts",
			},
			[]string{"effect"},
		)
		versionConflicts = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "bill_version_conflicts_total",
				Help: "Concurrent bill writes detected by the version check",
			},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		)

		prometheus.MustRegister(
			sweepTotal,
			sweepLatency,
			penaltiesApplied,
			penaltyAmountTotal,
			penaltyAdjustments,
			penaltyAdjustmentAmount,
			baseFallbacks,
			sideEffectFailures,
			versionConflicts,
			httpRequests,
			httpLatency,
		)

		if db != nil {
			registerDBMetrics(db)
		}
	})
}

func registerDBMetrics(db *sql.DB) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "overdue_bills",
			Help: "Bills currently in overdue status",
		},
		func() float64 {
			return queryCount(db, "SELECT COUNT(*) FROM bills WHERE status = 'overdue'")
		},
	))
}

func queryCount(db *sql.DB, query string) float64 {
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		logger.Warn("metrics query failed", "error", err)
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}

// ObserveSweep records a finished sweep of kind
func ObserveSweep(kind, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if sweepTotal != nil {
		sweepTotal.WithLabelValues(kind, result).Inc()
	}
	if sweepLatency != nil {
		sweepLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// AddPenaltyApplied counts one penalty write of amount by operation
func AddPenaltyApplied(operation string, amount float64) {
	if penaltiesApplied != nil {
		penaltiesApplied.WithLabelValues(operation).Inc()
	}
	if penaltyAmountTotal != nil && amount > 0 {
		penaltyAmountTotal.WithLabelValues(operation).Add(amount)
	}
}

// AddPenaltyAdjustment counts one change of an existing penalty by delta.
// The amount is split by direction since counters only grow.
func AddPenaltyAdjustment(operation string, delta float64) {
	if penaltyAdjustments != nil {
		penaltyAdjustments.WithLabelValues(operation).Inc()
	}
	if penaltyAdjustmentAmount == nil || delta == 0 {
		return
	}
	if delta > 0 {
		penaltyAdjustmentAmount.WithLabelValues(operation, "increase").Add(delta)
	} else {
		penaltyAdjustmentAmount.WithLabelValues(operation, "decrease").Add(-delta)
	}
}

func IncBaseFallback(source string) {
	if baseFallbacks != nil {
		baseFallbacks.WithLabelValues(source).Inc()
	}
}

func IncSideEffectFailure(effect string) {
	if effect == "" {
		effect = "unknown"
	}
	if sideEffectFailures != nil {
		sideEffectFailures.WithLabelValues(effect).Inc()
	}
}

func IncVersionConflict() {
	if versionConflicts != nil {
		versionConflicts.Inc()
	}
}

// ObserveHTTPRequest records one served request
func ObserveHTTPRequest(route string, code int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequests != nil {
		httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	}
	if httpLatency != nil {
		httpLatency.WithLabelValues(route).Observe(duration.Seconds())
	}
}
