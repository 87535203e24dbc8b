// Package metrics records request and limit outcomes. The backend is chosen
// once at startup: Prometheus (scraped from /metrics), CloudWatch, or none.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by every metrics backend. Methods never fail; a
// backend that cannot deliver a datum drops it.
type Recorder interface {
	ObserveRequest(ctx context.Context, route, method string, status int, d time.Duration)
	RateLimitDenied(ctx context.Context, limiter string)
	QuotaDenied(ctx context.Context, feature, reason string)
	UsageRecordFailed(ctx context.Context, feature string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) ObserveRequest(context.Context, string, string, int, time.Duration) {}
func (Nop) RateLimitDenied(context.Context, string)                            {}
func (Nop) QuotaDenied(context.Context, string, string)                        {}
func (Nop) UsageRecordFailed(context.Context, string)                          {}

// Prometheus keeps its collectors on a private registry so that several
// instances can coexist in one process.
type Prometheus struct {
	registry       *prometheus.Registry
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	rateLimitDeny  *prometheus.CounterVec
	quotaDeny      *prometheus.CounterVec
	recordFailures *prometheus.CounterVec
}

// NewPrometheus creates a Prometheus recorder with metric names prefixed by
// namespace.
func NewPrometheus(namespace string) *Prometheus {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Prometheus{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		rateLimitDeny: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_denied_total",
			Help:      "Requests rejected by a named rate limiter.",
		}, []string{"limiter"}),
		quotaDeny: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quota_denied_total",
			Help:      "Requests rejected by plan quota or feature gate.",
		}, []string{"feature", "reason"}),
		recordFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_record_failures_total",
			Help:      "Usage increments that failed after successful work.",
		}, []string{"feature"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

func (p *Prometheus) ObserveRequest(_ context.Context, route, method string, status int, d time.Duration) {
	p.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	p.duration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (p *Prometheus) RateLimitDenied(_ context.Context, limiter string) {
	p.rateLimitDeny.WithLabelValues(limiter).Inc()
}

func (p *Prometheus) QuotaDenied(_ context.Context, feature, reason string) {
	p.quotaDeny.WithLabelValues(feature, reason).Inc()
}

func (p *Prometheus) UsageRecordFailed(_ context.Context, feature string) {
	p.recordFailures.WithLabelValues(feature).Inc()
}

var (
	_ Recorder = Nop{}
	_ Recorder = (*Prometheus)(nil)
)
