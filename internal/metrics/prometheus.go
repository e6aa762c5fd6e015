package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder exports metrics through a Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	trackingTotal    *prometheus.CounterVec
	trackingLatency  prometheus.Histogram
	promotionCache   *prometheus.CounterVec
	conversions      prometheus.Counter
	rateLimitRejects *prometheus.CounterVec
	fraudSignals     *prometheus.CounterVec
	accessDenied     *prometheus.CounterVec
	eventsPublished  *prometheus.CounterVec
}

// NewPrometheus creates a recorder with its own registry, including the
// Go runtime and process collectors.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		trackingTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promotrack_tracking_requests_total",
			Help: "Tracking requests by final stage and status",
		}, []string{"stage", "status"}),
		trackingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "promotrack_tracking_duration_seconds",
			Help:    "Tracking pipeline latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		promotionCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promotrack_promotion_cache_total",
			Help: "Promotion lookups by cache result",
		}, []string{"result"}),
		conversions: factory.NewCounter(prometheus.CounterOpts{
			Name: "promotrack_conversions_total",
			Help: "Clicks marked as converted",
		}),
		rateLimitRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promotrack_rate_limit_rejects_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"class"}),
		fraudSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promotrack_fraud_signals_total",
			Help: "Fraud heuristics that fired",
		}, []string{"signal"}),
		accessDenied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promotrack_access_denied_total",
			Help: "Access control denials",
		}, []string{"reason"}),
		eventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "promotrack_events_published_total",
			Help: "Promotion events written to the stream",
		}, []string{"status"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

func (p *PrometheusRecorder) IncTrackingOutcome(stage, status string) {
	p.trackingTotal.WithLabelValues(stage, status).Inc()
}

func (p *PrometheusRecorder) ObserveTrackingDuration(duration time.Duration) {
	p.trackingLatency.Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncPromotionCacheHit() {
	p.promotionCache.WithLabelValues("hit").Inc()
}

func (p *PrometheusRecorder) IncPromotionCacheMiss() {
	p.promotionCache.WithLabelValues("miss").Inc()
}

func (p *PrometheusRecorder) IncConversion() {
	p.conversions.Inc()
}

func (p *PrometheusRecorder) IncRateLimitRejected(class string) {
	p.rateLimitRejects.WithLabelValues(class).Inc()
}

func (p *PrometheusRecorder) IncFraudSignal(signal string) {
	p.fraudSignals.WithLabelValues(signal).Inc()
}

func (p *PrometheusRecorder) IncAccessDenied(reason string) {
	p.accessDenied.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) IncEventPublished(status string) {
	p.eventsPublished.WithLabelValues(status).Inc()
}
