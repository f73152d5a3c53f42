package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "xq"

var durationBuckets = []float64{.005, .01, .05, .1, .5, 1, 5, 10, 30, 60, 120}

// PrometheusHooks records every hook event as a Prometheus metric. It
// implements all hook interfaces.
type PrometheusHooks struct {
	conversions     *prometheus.CounterVec
	convertDuration prometheus.Histogram
	features        prometheus.Counter
	polygons        *prometheus.CounterVec
	skipped         *prometheus.CounterVec
	writes          *prometheus.CounterVec
	writeBytes      *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheBytes  *prometheus.CounterVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestErrors   *prometheus.CounterVec

	publishes       *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
}

// NewPrometheusHooks creates the metrics and registers them with reg.
func NewPrometheusHooks(reg prometheus.Registerer) *PrometheusHooks {
	h := &PrometheusHooks{
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "conversions_total",
			Help: "Store conversions by result",
		}, []string{"result"}),
		convertDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "convert_duration_seconds",
			Help: "Duration of store conversions", Buckets: durationBuckets,
		}),
		features: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "features_total",
			Help: "Cell features produced",
		}),
		polygons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "polygons_total",
			Help: "Rings assembled by polygon set",
		}, []string{"role"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "padding_rows_total",
			Help: "Zero-length rows skipped by polygon set",
		}, []string{"role"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "writes_total",
			Help: "Encoded output documents by format and result",
		}, []string{"format", "result"}),
		writeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "write_bytes_total",
			Help: "Bytes of encoded output by format",
		}, []string{"format"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total",
			Help: "Cache hits by key type",
		}, []string{"key_type"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total",
			Help: "Cache misses by key type",
		}, []string{"key_type"}),
		cacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_set_bytes_total",
			Help: "Bytes written to the cache by key type",
		}, []string{"key_type"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP responses by route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help: "HTTP request duration by route", Buckets: durationBuckets,
		}, []string{"method", "route"}),
		requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_errors_total",
			Help: "HTTP handler failures by route",
		}, []string{"method", "route"}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "sink_publishes_total",
			Help: "Collection publishes by sink and result",
		}, []string{"sink", "result"}),
		publishDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "sink_publish_duration_seconds",
			Help: "Publish duration by sink", Buckets: durationBuckets,
		}, []string{"sink"}),
	}
	reg.MustRegister(
		h.conversions, h.convertDuration, h.features, h.polygons, h.skipped,
		h.writes, h.writeBytes,
		h.cacheHits, h.cacheMisses, h.cacheBytes,
		h.requests, h.requestDuration, h.requestErrors,
		h.publishes, h.publishDuration,
	)
	return h
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (h *PrometheusHooks) OnConvertStart(context.Context, string) {}

func (h *PrometheusHooks) OnConvertComplete(_ context.Context, _ string, features int, d time.Duration, err error) {
	h.conversions.WithLabelValues(result(err)).Inc()
	if err == nil {
		h.convertDuration.Observe(d.Seconds())
		h.features.Add(float64(features))
	}
}

func (h *PrometheusHooks) OnSetAssembled(_ context.Context, role string, polygons, skipped int) {
	h.polygons.WithLabelValues(role).Add(float64(polygons))
	h.skipped.WithLabelValues(role).Add(float64(skipped))
}

func (h *PrometheusHooks) OnWriteComplete(_ context.Context, format string, size int, _ time.Duration, err error) {
	h.writes.WithLabelValues(format, result(err)).Inc()
	h.writeBytes.WithLabelValues(format).Add(float64(size))
}

func (h *PrometheusHooks) OnCacheHit(_ context.Context, keyType string) {
	h.cacheHits.WithLabelValues(keyType).Inc()
}

func (h *PrometheusHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.cacheMisses.WithLabelValues(keyType).Inc()
}

func (h *PrometheusHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.cacheBytes.WithLabelValues(keyType).Add(float64(size))
}

func (h *PrometheusHooks) OnRequest(context.Context, string, string) {}

func (h *PrometheusHooks) OnResponse(_ context.Context, method, route string, status int, d time.Duration) {
	h.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	h.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (h *PrometheusHooks) OnError(_ context.Context, method, route string, _ error) {
	h.requestErrors.WithLabelValues(method, route).Inc()
}

func (h *PrometheusHooks) OnPublish(_ context.Context, sink string, _ int, d time.Duration, err error) {
	h.publishes.WithLabelValues(sink, result(err)).Inc()
	h.publishDuration.WithLabelValues(sink).Observe(d.Seconds())
}

var (
	_ PipelineHooks = (*PrometheusHooks)(nil)
	_ CacheHooks    = (*PrometheusHooks)(nil)
	_ HTTPHooks     = (*PrometheusHooks)(nil)
	_ SinkHooks     = (*PrometheusHooks)(nil)
)
