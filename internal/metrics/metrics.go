package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns the service's Prometheus collectors on a dedicated registry.
type Collector struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	deliveryTransitions *prometheus.CounterVec
	ocrRequests         *prometheus.CounterVec
	eventsPublished     *prometheus.CounterVec
}

// New creates a Collector and registers its metrics together with the Go
// runtime and process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		deliveryTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_transitions_total",
				Help: "Deliveries entering each status",
			},
			[]string{"status"},
		),
		ocrRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocr_requests_total",
				Help: "Handwriting recognition calls by outcome",
			},
			[]string{"outcome"},
		),
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delivery_events_published_total",
				Help: "Delivery events handed to publishers",
			},
			[]string{"publisher", "result"},
		),
	}
	c.registry.MustRegister(
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.deliveryTransitions,
		c.ocrRequests,
		c.eventsPublished,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry exposes the underlying registry, mostly for tests.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordDeliveryStatus counts a delivery entering status.
func (c *Collector) RecordDeliveryStatus(status string) {
	if c == nil {
		return
	}
	c.deliveryTransitions.WithLabelValues(status).Inc()
}

// RecordOCR counts a recognition attempt; outcome is "ok" or an error kind.
func (c *Collector) RecordOCR(outcome string) {
	if c == nil {
		return
	}
	c.ocrRequests.WithLabelValues(outcome).Inc()
}

// RecordEvent counts a publish attempt.
func (c *Collector) RecordEvent(publisher string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.eventsPublished.WithLabelValues(publisher, result).Inc()
}

// Handler returns the Prometheus metrics HTTP handler for this registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
