package obs

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrderMutationTotal counts order line mutations by operation and outcome.
	OrderMutationTotal *prometheus.CounterVec
	// PersistAttemptTotal counts order persistence attempts against the backend.
	PersistAttemptTotal *prometheus.CounterVec
	// PersistRetryEnqueued counts failed persists handed to the retry queue.
	PersistRetryEnqueued prometheus.Counter
	// MarginCacheTotal counts special-margin cache lookups by result.
	MarginCacheTotal *prometheus.CounterVec
	// PricingComputeDuration records totals recomputation latency in milliseconds.
	PricingComputeDuration prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrderMutationTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_mutation_total",
			Help:      "Count of order line mutations by operation and result.",
		}, []string{"op", "result"})
		PersistAttemptTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_persist_total",
			Help:      "Count of order persistence attempts by result.",
		}, []string{"result"})
		PersistRetryEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_persist_retry_enqueued_total",
			Help:      "Number of failed order persists enqueued for background retry.",
		})
		MarginCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "margin_cache_total",
			Help:      "Special-margin cache lookups by result.",
		}, []string{"result"})
		PricingComputeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pricing_compute_duration_ms",
			Help:      "Latency of order totals recomputation in milliseconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		})

		mustRegisterCollector(reg, OrderMutationTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrderMutationTotal = v
			}
		})
		mustRegisterCollector(reg, PersistAttemptTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PersistAttemptTotal = v
			}
		})
		mustRegisterCollector(reg, PersistRetryEnqueued, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				PersistRetryEnqueued = v
			}
		})
		mustRegisterCollector(reg, MarginCacheTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				MarginCacheTotal = v
			}
		})
		mustRegisterCollector(reg, PricingComputeDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				PricingComputeDuration = v
			}
		})
	})
}

// ObserveMutation records one line mutation outcome. Safe before registration.
func ObserveMutation(op, result string) {
	if OrderMutationTotal != nil {
		OrderMutationTotal.WithLabelValues(op, result).Inc()
	}
}

// ObservePersist records one persistence attempt outcome.
func ObservePersist(result string) {
	if PersistAttemptTotal != nil {
		PersistAttemptTotal.WithLabelValues(result).Inc()
	}
}

// ObservePricingDuration records one totals recomputation.
func ObservePricingDuration(d time.Duration) {
	if PricingComputeDuration != nil {
		PricingComputeDuration.Observe(DurationMillis(d))
	}
}

// ObserveMarginCache records a margin cache hit or miss.
func ObserveMarginCache(result string) {
	if MarginCacheTotal != nil {
		MarginCacheTotal.WithLabelValues(result).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
