package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dubspace/dubspace-core/internal/entitlement"
	"github.com/dubspace/dubspace-core/internal/errors"
	"github.com/dubspace/dubspace-core/internal/ledger"
	"github.com/dubspace/dubspace-core/internal/profilecache"
	"github.com/dubspace/dubspace-core/internal/sync"
)

var (
	entitlementChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_changes_total",
			Help: "Total number of entitlement changes labeled by event and level",
		},
		[]string{"event", "level"},
	)
	tcoinTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcoin_transactions_total",
			Help: "Total number of TCoin transactions labeled by type",
		},
		[]string{"type"},
	)
	tcoinAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tcoin_amount_total",
			Help: "Total TCoin volume moved labeled by direction",
		},
		[]string{"direction"},
	)
	syncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_operations_total",
			Help: "Total number of backend sync operations labeled by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)
	profileCacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "profile_cache_requests_total",
			Help: "Total number of profile cache lookups labeled by kind and result",
		},
		[]string{"kind", "result"},
	)
	syncDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of backend sync operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
)

func init() {
	entitlement.RegisterChangeRecorder(RecordEntitlementChange)
	ledger.RegisterTransactionRecorder(RecordTransaction)
	sync.RegisterSyncRecorder(RecordSync)
	profilecache.RegisterHitRecorder(RecordCacheLookup)
	errors.RegisterErrorRecorder(RecordError)
}

// RecordEntitlementChange counts subscription lifecycle events.
func RecordEntitlementChange(event, level string) {
	if event == "" {
		event = "unknown"
	}
	if level == "" {
		level = "unknown"
	}

	entitlementChangesTotal.WithLabelValues(event, level).Inc()
}

// RecordTransaction counts ledger transactions and their volume.
func RecordTransaction(txType string, amount int64) {
	if txType == "" {
		txType = "unknown"
	}

	tcoinTransactionsTotal.WithLabelValues(txType).Inc()

	direction := "credit"
	if amount < 0 {
		direction = "debit"
		amount = -amount
	}
	tcoinAmountTotal.WithLabelValues(direction).Add(float64(amount))
}

// RecordSync counts backend sync operations by outcome.
func RecordSync(operation, outcome string) {
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	syncOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordSyncDuration records how long a sync operation took.
func RecordSyncDuration(operation string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}

	syncDurationSeconds.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheLookup counts profile cache hits and misses.
func RecordCacheLookup(kind string, hit bool) {
	if kind == "" {
		kind = "unknown"
	}

	result := "miss"
	if hit {
		result = "hit"
	}

	profileCacheRequestsTotal.WithLabelValues(kind, result).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}
