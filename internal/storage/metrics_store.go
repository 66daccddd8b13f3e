package storage

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	kvRequestsTotal   *prometheus.CounterVec
	kvErrorsTotal     *prometheus.CounterVec
	kvRequestDuration *prometheus.HistogramVec
)

func init() {
	kvRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_requests_total",
			Help: "Total number of key-value store requests by method.",
		},
		[]string{"method"},
	)
	kvErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_errors_total",
			Help: "Total number of key-value store errors by method.",
		},
		[]string{"method"},
	)
	kvRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kv_request_duration_seconds",
			Help:    "Key-value store request latency distributions.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	prometheus.MustRegister(kvRequestsTotal, kvErrorsTotal, kvRequestDuration)
}

// MetricsStore decorates a Store with Prometheus metrics. A missing key
// counts as a request, not an error.
type MetricsStore struct {
	next Store
}

// NewMetricsStore creates an instrumented Store.
func NewMetricsStore(next Store) *MetricsStore {
	return &MetricsStore{next: next}
}

func (m *MetricsStore) Get(ctx context.Context, key string) (string, error) {
	timer := prometheus.NewTimer(kvRequestDuration.WithLabelValues("get"))
	value, err := m.next.Get(ctx, key)
	timer.ObserveDuration()
	kvRequestsTotal.WithLabelValues("get").Inc()
	if err != nil && err != ErrKeyNotFound {
		kvErrorsTotal.WithLabelValues("get").Inc()
	}
	return value, err
}

func (m *MetricsStore) Set(ctx context.Context, key, value string) error {
	timer := prometheus.NewTimer(kvRequestDuration.WithLabelValues("set"))
	err := m.next.Set(ctx, key, value)
	timer.ObserveDuration()
	kvRequestsTotal.WithLabelValues("set").Inc()
	if err != nil {
		kvErrorsTotal.WithLabelValues("set").Inc()
	}
	return err
}

func (m *MetricsStore) Remove(ctx context.Context, key string) error {
	timer := prometheus.NewTimer(kvRequestDuration.WithLabelValues("remove"))
	err := m.next.Remove(ctx, key)
	timer.ObserveDuration()
	kvRequestsTotal.WithLabelValues("remove").Inc()
	if err != nil {
		kvErrorsTotal.WithLabelValues("remove").Inc()
	}
	return err
}
