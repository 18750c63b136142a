// Package metrics implements Prometheus instrumentation: a typed metrics
// struct wrapping plain prometheus.Counter/Gauge values on a private
// registry, served via promhttp.HandlerFor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is the capability every core component depends on. A nil
// *Recorder is never passed around; NoOp() satisfies the interface as the
// zero-cost default so components function identically whether or not
// metrics are enabled.
type Recorder interface {
	QoS1Retry()
	QoS2Retry()
	DuplicateRejected()
	SetWorkerQueueDepth(depth int64)
	SetSessionsActive(n int)
	SetOfflineQueueDepth(n int64)
}

// noopRecorder discards every observation.
type noopRecorder struct{}

func (noopRecorder) QoS1Retry()                       {}
func (noopRecorder) QoS2Retry()                       {}
func (noopRecorder) DuplicateRejected()                {}
func (noopRecorder) SetWorkerQueueDepth(int64)         {}
func (noopRecorder) SetSessionsActive(int)             {}
func (noopRecorder) SetOfflineQueueDepth(int64)        {}

// NoOp returns the always-available zero-cost Recorder.
func NoOp() Recorder { return noopRecorder{} }

// PromRecorder is the Prometheus-backed Recorder.
type PromRecorder struct {
	registry *prometheus.Registry

	qos1RetriesTotal        prometheus.Counter
	qos2RetriesTotal        prometheus.Counter
	duplicateRejectedTotal  prometheus.Counter
	workerPoolQueueDepth    prometheus.Gauge
	sessionsActive          prometheus.Gauge
	offlineQueueDepth       prometheus.Gauge
}

// NewPromRecorder builds a PromRecorder registered on a fresh
// prometheus.Registry (so multiple App instances in the same process, e.g.
// in tests, never collide on the default global registry).
func NewPromRecorder() *PromRecorder {
	reg := prometheus.NewRegistry()

	r := &PromRecorder{
		registry: reg,
		qos1RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binaryrpc",
			Name:      "qos1_retries_total",
			Help:      "Total number of QoS-1 outbound retries sent.",
		}),
		qos2RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binaryrpc",
			Name:      "qos2_retries_total",
			Help:      "Total number of QoS-2 outbound retries sent.",
		}),
		duplicateRejectedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "binaryrpc",
			Name:      "duplicate_rejected_total",
			Help:      "Total number of inbound RPCs rejected as duplicates.",
		}),
		workerPoolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "binaryrpc",
			Name:      "worker_pool_queue_depth",
			Help:      "Number of tasks queued or running in the worker pool.",
		}),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "binaryrpc",
			Name:      "sessions_active",
			Help:      "Number of sessions currently registered in the session manager.",
		}),
		offlineQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "binaryrpc",
			Name:      "offline_queue_depth",
			Help:      "Total number of messages queued across all offline sessions.",
		}),
	}

	reg.MustRegister(
		r.qos1RetriesTotal,
		r.qos2RetriesTotal,
		r.duplicateRejectedTotal,
		r.workerPoolQueueDepth,
		r.sessionsActive,
		r.offlineQueueDepth,
	)
	return r
}

func (r *PromRecorder) QoS1Retry()                       { r.qos1RetriesTotal.Inc() }
func (r *PromRecorder) QoS2Retry()                       { r.qos2RetriesTotal.Inc() }
func (r *PromRecorder) DuplicateRejected()               { r.duplicateRejectedTotal.Inc() }
func (r *PromRecorder) SetWorkerQueueDepth(depth int64)  { r.workerPoolQueueDepth.Set(float64(depth)) }
func (r *PromRecorder) SetSessionsActive(n int)          { r.sessionsActive.Set(float64(n)) }
func (r *PromRecorder) SetOfflineQueueDepth(n int64)     { r.offlineQueueDepth.Set(float64(n)) }

// Handler returns the http.Handler embedding applications mount to expose
// this recorder's metrics, via App.MetricsHandler.
func (r *PromRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
