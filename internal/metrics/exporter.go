// Package metrics exports Prometheus gauges and counters for C10's
// operational surface. GaugeVec construction and registration is grounded
// on the teacher's internal/metrics/exporter.go; the metric set itself is
// new, covering request/error volume, chain freshness, and epoch
// generation health instead of validator-signing uptime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Exporter struct {
	requests       *prometheus.CounterVec
	errorsByKind   *prometheus.CounterVec
	rateLimitHits  *prometheus.CounterVec
	chainStaleness prometheus.Gauge
	chainHotkeys   prometheus.Gauge
	epochGenSecs   prometheus.Histogram
	epochGenFail   prometheus.Counter
	activeEpoch    prometheus.Gauge
}

func NewExporter(prefix string) *Exporter {
	if prefix == "" {
		prefix = "broker"
	}

	e := &Exporter{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_requests_total",
			Help: "Total HTTP requests handled, by route and status.",
		}, []string{"route", "status"}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_errors_total",
			Help: "Total typed errors returned, by kind.",
		}, []string{"kind"}),
		rateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_rate_limit_rejections_total",
			Help: "Total requests rejected by the rate limiter, by scope.",
		}, []string{"scope"}),
		chainStaleness: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_chain_snapshot_staleness_seconds",
			Help: "Seconds since the last successful chain snapshot sync.",
		}),
		chainHotkeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_chain_snapshot_hotkeys",
			Help: "Number of hotkeys in the current chain snapshot.",
		}),
		epochGenSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    prefix + "_epoch_generation_seconds",
			Help:    "Wall-clock duration of epoch pre-generation.",
			Buckets: prometheus.DefBuckets,
		}),
		epochGenFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_epoch_generation_failures_total",
			Help: "Total epoch pre-generation attempts that failed.",
		}),
		activeEpoch: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "_active_epoch",
			Help: "1 if an active epoch currently exists, 0 otherwise.",
		}),
	}

	prometheus.MustRegister(
		e.requests, e.errorsByKind, e.rateLimitHits,
		e.chainStaleness, e.chainHotkeys,
		e.epochGenSecs, e.epochGenFail, e.activeEpoch,
	)
	return e
}

func (e *Exporter) ObserveRequest(route, status string) {
	e.requests.With(prometheus.Labels{"route": route, "status": status}).Inc()
}

func (e *Exporter) ObserveError(kind string) {
	e.errorsByKind.With(prometheus.Labels{"kind": kind}).Inc()
}

func (e *Exporter) ObserveRateLimitHit(scope string) {
	e.rateLimitHits.With(prometheus.Labels{"scope": scope}).Inc()
}

func (e *Exporter) SetChainStaleness(seconds float64) {
	e.chainStaleness.Set(seconds)
}

func (e *Exporter) SetChainHotkeys(n int) {
	e.chainHotkeys.Set(float64(n))
}

func (e *Exporter) ObserveEpochGeneration(seconds float64, failed bool) {
	e.epochGenSecs.Observe(seconds)
	if failed {
		e.epochGenFail.Inc()
	}
}

func (e *Exporter) SetActiveEpoch(active bool) {
	if active {
		e.activeEpoch.Set(1)
	} else {
		e.activeEpoch.Set(0)
	}
}
