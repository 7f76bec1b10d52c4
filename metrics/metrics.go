// Package metrics wraps a Prometheus registry around the worker
// runtime's in-process counters (spec EXPANSION B: "C1 pool gauges...,
// C3 watermark-lag gauge..., C5 queue-depth/worker-busy gauges"). It is
// purely observational: the spec explicitly scopes distributed metrics
// aggregation out, but in-process gauges are ambient stack, carried
// regardless (see DESIGN.md).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nebulastream/streamcore/buffer"
	"github.com/nebulastream/streamcore/window"
)

// Collector owns a private Prometheus registry and the gauges/counters
// the worker runtime feeds. It implements scheduler.Metrics
// (SetQueueDepth, SetWorkersBusy) so it can be installed directly via
// Scheduler.SetMetrics.
type Collector struct {
	registry *prometheus.Registry

	poolAvailable *prometheus.GaugeVec
	poolTotal     *prometheus.GaugeVec

	watermarkLag   *prometheus.GaugeVec
	sliceStoreSize *prometheus.GaugeVec

	queueDepth  *prometheus.GaugeVec
	workersBusy prometheus.Gauge
}

// New builds a Collector under the given namespace (e.g. "streamcore")
// and registers the standard Go/process collectors alongside it.
func New(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	c := &Collector{
		registry: registry,
		poolAvailable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_pool_available",
			Help:      "Number of free buffers in a pool.",
		}, []string{"pool"}),
		poolTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffer_pool_total",
			Help:      "Total number of segments a pool manages.",
		}, []string{"pool"}),
		watermarkLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark_lag",
			Help:      "Wallclock minus the committed global watermark, in the caller's time unit.",
		}, []string{"stage"}),
		sliceStoreSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_slices",
			Help:      "Live slices currently held by a keyed SliceStore.",
		}, []string{"stage"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_queue_depth",
			Help:      "Scheduler task queue size as reported by the scheduler, which sends each queue's capacity, not its live depth.",
		}, []string{"queue"}),
		workersBusy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_workers_busy",
			Help:      "Number of scheduler workers currently executing a task.",
		}),
	}

	registry.MustRegister(
		c.poolAvailable,
		c.poolTotal,
		c.watermarkLag,
		c.sliceStoreSize,
		c.queueDepth,
		c.workersBusy,
	)
	return c
}

// SamplePool refreshes the available/total buffer gauges for name from
// pool's current counters. Call periodically (e.g. on the watermark
// advance ticker) rather than on every buffer acquire/release, since
// Pool's own atomics are the source of truth and the gauge only needs
// scrape-interval freshness.
func (c *Collector) SamplePool(name string, pool *buffer.Pool) {
	c.poolAvailable.WithLabelValues(name).Set(float64(pool.AvailableBuffers()))
	c.poolTotal.WithLabelValues(name).Set(float64(pool.NumOfPooledBuffers()))
}

// SampleWatermark records the lag between now and wp's committed
// watermark under stage's label.
func (c *Collector) SampleWatermark(stage string, wp *window.WatermarkProcessor, now uint64) {
	lag := float64(0)
	if wm := wp.Watermark(); now > wm {
		lag = float64(now - wm)
	}
	c.watermarkLag.WithLabelValues(stage).Set(lag)
}

// SampleSliceStore records store's live slice count under stage's
// label.
func (c *Collector) SampleSliceStore(stage string, store *window.SliceStore) {
	c.sliceStoreSize.WithLabelValues(stage).Set(float64(store.NumberOfSlices()))
}

// SetQueueDepth implements scheduler.Metrics.
func (c *Collector) SetQueueDepth(dataDepth, reconfigDepth int) {
	c.queueDepth.WithLabelValues("data").Set(float64(dataDepth))
	c.queueDepth.WithLabelValues("reconfig").Set(float64(reconfigDepth))
}

// SetWorkersBusy implements scheduler.Metrics.
func (c *Collector) SetWorkersBusy(n int) {
	c.workersBusy.Set(float64(n))
}

// Handler returns an http.Handler serving this collector's registry in
// the Prometheus exposition format, for mounting under e.g. /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests or callers that
// want to register additional collectors alongside this one.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
