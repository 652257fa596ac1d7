// Package metrics exposes Prometheus instrumentation for the indexer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dump_indexer"

var (
	rpcRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "requests_total",
		Help:      "Count of logical RPC calls by outcome.",
	}, []string{"method", "status"})
	rpcRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "request_duration_seconds",
		Help:      "Duration of logical RPC calls including retries.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})
	rpcRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "retries_total",
		Help:      "Count of transient failures that were retried.",
	}, []string{"method"})
	rpcThrottledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rpc",
		Name:      "throttled_total",
		Help:      "Count of throttled responses that rotated the credential.",
	}, []string{"method"})

	ingestItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "items_total",
		Help:      "Count of ingested signatures by outcome.",
	}, []string{"outcome"})
	ingestSwapsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "swaps_total",
		Help:      "Count of extracted swap events.",
	})

	poolLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pools",
		Name:      "lookups_total",
		Help:      "Count of pool registry lookups by cache result.",
	}, []string{"result"})

	dumpsDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pricing",
		Name:      "dumps_detected_total",
		Help:      "Count of newly persisted first dumps.",
	})
)

// ObserveRPC records one logical RPC call.
func ObserveRPC(method string, err error, started time.Time) {
	status := "success"
	if err != nil {
		status = "error"
	}

	rpcRequestsTotal.WithLabelValues(method, status).Inc()
	rpcRequestDuration.WithLabelValues(method, status).Observe(time.Since(started).Seconds())
}

func RPCRetry(method string) { rpcRetriesTotal.WithLabelValues(method).Inc() }

func RPCThrottled(method string) { rpcThrottledTotal.WithLabelValues(method).Inc() }

// IngestOutcome counts one pipeline item as processed, skipped or dead_lettered.
func IngestOutcome(outcome string) { ingestItemsTotal.WithLabelValues(outcome).Inc() }

func SwapsExtracted(n int) { ingestSwapsTotal.Add(float64(n)) }

// PoolLookup counts a registry lookup as hit or miss.
func PoolLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	poolLookupsTotal.WithLabelValues(result).Inc()
}

func DumpDetected() { dumpsDetectedTotal.Inc() }

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
