// Package metrics exposes Prometheus counters for the write path, the
// offline queue and the HTTP API. A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "faturas"

// Mutation outcomes.
const (
	OutcomeDirect   = "direct"
	OutcomeQueued   = "queued"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	registry *prometheus.Registry

	mutations    *prometheus.CounterVec
	pending      prometheus.Gauge
	online       prometheus.Gauge
	replayed     prometheus.Counter
	replayFailed *prometheus.CounterVec
	syncPasses   *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	changeEvents *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		mutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Invoice writes by kind and outcome",
		}, []string{"kind", "outcome"}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending",
			Help:      "Mutations waiting in the offline queue",
		}),
		online: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_online",
			Help:      "1 when the remote store is reachable",
		}),
		replayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replayed_total",
			Help:      "Queued mutations replayed successfully",
		}),
		replayFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replay_failures_total",
			Help:      "Replay passes halted by a failing entry, by kind",
		}, []string{"kind"}),
		syncPasses: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Replay passes by trigger",
		}, []string{"trigger"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
		changeEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_events_total",
			Help:      "Change events by direction and result",
		}, []string{"direction", "result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Mutation(kind, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) SetOnline(online bool) {
	if m == nil {
		return
	}
	v := 0.0
	if online {
		v = 1
	}
	m.online.Set(v)
}

func (m *Metrics) SyncPass(trigger string, replayed int, failedKind string) {
	if m == nil {
		return
	}
	m.syncPasses.WithLabelValues(trigger).Inc()
	m.replayed.Add(float64(replayed))
	if failedKind != "" {
		m.replayFailed.WithLabelValues(failedKind).Inc()
	}
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, strconv.Itoa(code)).Observe(d.Seconds())
}

func (m *Metrics) ChangeEvent(direction string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.changeEvents.WithLabelValues(direction, result).Inc()
}
