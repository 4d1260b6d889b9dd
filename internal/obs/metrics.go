package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	RequestsTotal       prometheus.Counter
	CacheHitsTotal      prometheus.Counter
	RateLimitDropsTotal prometheus.Counter

	ChannelErrors       *prometheus.CounterVec
	ChannelLatency      *prometheus.HistogramVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	Registry            *prometheus.Registry
}

// Create Prometheus collectors and register them
func NewMetrics(p *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_requests_total",
			Help: "Total number of incoming rate comparison requests",
		}),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_cache_hits_total",
			Help: "Number of cache hits for aggregation results",
		}),
		RateLimitDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rate_ratelimit_drops_total",
			Help: "Requests dropped due to rate limiting",
		}),
		ChannelErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_errors_total",
			Help: "Failed settlements per booking channel",
		}, []string{"channel"},
		),
		ChannelLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channel_fetch_duration_seconds",
				Help:    "Latency of channel adapter fetches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		Registry: p,
	}

	// Register metrics with Prometheus
	p.MustRegister(
		m.RequestsTotal,
		m.CacheHitsTotal,
		m.RateLimitDropsTotal,
		m.ChannelErrors,
		m.ChannelLatency,
		m.HTTPRequestDuration,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) IncRequests()  { m.RequestsTotal.Inc() }
func (m *Metrics) IncCacheHits() { m.CacheHitsTotal.Inc() }

func (m *Metrics) IncRateLimitDrops() { m.RateLimitDropsTotal.Inc() }

func (m *Metrics) ObserveChannelLatency(channel string, seconds float64) {
	m.ChannelLatency.WithLabelValues(channel).Observe(seconds)
}

func (m *Metrics) IncChannelFailure(channel string) {
	m.ChannelErrors.WithLabelValues(channel).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
