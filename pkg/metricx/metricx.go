// Package metricx holds the Prometheus collectors of the service and the
// fiber glue that records and exposes them.
package metricx

import (
	"errors"
	"strconv"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
	"github.com/Abraxas-365/mailroom/pkg/mailq"
	"github.com/Abraxas-365/mailroom/pkg/tracking"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mailroom"

// Metrics implements mailqsrv.Metrics and trackingsrv.Recorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	batches        prometheus.Counter
	batchMessages  *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	sendAttempts   *prometheus.CounterVec
	sendDuration   *prometheus.HistogramVec
	trackingEvents *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests to keep them isolated.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Processing cycles run",
		}),
		batchMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_messages_total",
				Help:      "Messages attempted by processing cycles",
			},
			[]string{"outcome"},
		),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Duration of a processing cycle",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		sendAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "send_attempts_total",
				Help:      "Delivery attempts by provider and result",
			},
			[]string{"provider", "result"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_duration_seconds",
				Help:      "Provider send latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		trackingEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tracking_events_total",
				Help:      "Tracking hits by event and write result",
			},
			[]string{"event", "result"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	reg.MustRegister(
		m.batches, m.batchMessages, m.batchDuration,
		m.sendAttempts, m.sendDuration,
		m.trackingEvents,
		m.httpRequests, m.httpDuration,
	)
	return m
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) BatchProcessed(res mailq.BatchResult, d time.Duration) {
	m.batches.Inc()
	m.batchMessages.WithLabelValues("successful").Add(float64(res.Successful))
	m.batchMessages.WithLabelValues("failed").Add(float64(res.Failed))
	m.batchDuration.Observe(d.Seconds())
}

func (m *Metrics) SendAttempt(provider string, success bool, d time.Duration) {
	if provider == "" {
		provider = "unknown"
	}
	m.sendAttempts.WithLabelValues(provider, result(success)).Inc()
	m.sendDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func (m *Metrics) TrackingHit(event tracking.EventType, ok bool) {
	m.trackingEvents.WithLabelValues(string(event), result(ok)).Inc()
}

// Middleware records every request under its route pattern. Errors are
// not rendered yet at this point, so their status comes from the error.
func (m *Metrics) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status, _ = errx.Response(err, "", false)
			}
		}

		labels := prometheus.Labels{
			"method": c.Method(),
			"path":   c.Route().Path,
			"status": strconv.Itoa(status),
		}
		m.httpRequests.With(labels).Inc()
		m.httpDuration.With(labels).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the exposition format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}
