// Package telemetry exposes Prometheus metrics for the A&E server: HTTP
// request counts and latency, patient status transitions, the live status
// census, and collaborator (triage, planning, advice) calls.
package telemetry

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonghunlee05/Greater-Uni-Hackathon-2025/internal/domain/patientflow"
)

const namespace = "ae"

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// TelemetryConfig holds the labels stamped on the build info gauge.
type TelemetryConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// GoCollectors adds the Go runtime and process collectors.
	GoCollectors bool
}

func (c *TelemetryConfig) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "ae-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// PatientSource returns the current patient records.
type PatientSource func() []patientflow.Patient

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// TelemetryProvider owns a private registry and every collector on it.
type TelemetryProvider struct {
	cfg      TelemetryConfig
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	httpActive   prometheus.Gauge

	transitions *prometheus.CounterVec

	agentCalls    *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec
}

// NewTelemetryProvider registers all collectors. patients may be nil, in
// which case the status census is not exported.
func NewTelemetryProvider(cfg TelemetryConfig, patients PatientSource) *TelemetryProvider {
	cfg.applyDefaults()
	reg := prometheus.NewRegistry()

	tp := &TelemetryProvider{
		cfg:      cfg,
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "HTTP requests currently in flight.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patientflow",
			Name:      "transitions_total",
			Help:      "Applied patient transitions by source status, target status and rule.",
		}, []string{"from", "to", "rule"}),
		agentCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "calls_total",
			Help:      "Collaborator calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "call_duration_seconds",
			Help:      "Collaborator call latency by operation.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
	}

	buildInfo := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Service build information.",
		ConstLabels: prometheus.Labels{
			"service":     cfg.ServiceName,
			"version":     cfg.ServiceVersion,
			"environment": cfg.Environment,
		},
	})
	buildInfo.Set(1)

	reg.MustRegister(
		tp.httpRequests, tp.httpDuration, tp.httpActive,
		tp.transitions,
		tp.agentCalls, tp.agentDuration,
		buildInfo,
	)
	if patients != nil {
		reg.MustRegister(newCensusCollector(patients))
	}
	if cfg.GoCollectors {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return tp
}

// Registry exposes the provider's registry so other packages can register
// their own collectors.
func (tp *TelemetryProvider) Registry() *prometheus.Registry {
	return tp.registry
}

// ---------------------------------------------------------------------------
// Transition publisher
// ---------------------------------------------------------------------------

// Publish counts an applied transition. It satisfies patientflow.Publisher.
func (tp *TelemetryProvider) Publish(_ context.Context, n patientflow.Notification) error {
	tp.transitions.WithLabelValues(string(n.Event.From), string(n.Event.To), string(n.Event.Rule)).Inc()
	return nil
}

// ---------------------------------------------------------------------------
// Status census
// ---------------------------------------------------------------------------

// censusCollector counts patients per status at scrape time.
type censusCollector struct {
	source PatientSource
	desc   *prometheus.Desc
}

func newCensusCollector(source PatientSource) *censusCollector {
	return &censusCollector{
		source: source,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "patientflow", "patients"),
			"Patients currently in each status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *censusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

func (c *censusCollector) Collect(ch chan<- prometheus.Metric) {
	counts := make(map[patientflow.Status]int, len(patientflow.AllStatuses))
	for _, p := range c.source() {
		counts[p.Status]++
	}
	for _, s := range patientflow.AllStatuses {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}

// ---------------------------------------------------------------------------
// MetricsMiddleware
// ---------------------------------------------------------------------------

// MetricsMiddleware returns an Echo middleware that records HTTP server metrics.
func (tp *TelemetryProvider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tp.httpActive.Inc()
			defer tp.httpActive.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method

			tp.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			tp.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// PrometheusHandler
// ---------------------------------------------------------------------------

// PrometheusHandler serves the registry in the Prometheus exposition format.
func (tp *TelemetryProvider) PrometheusHandler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(tp.registry, promhttp.HandlerOpts{}))
}

func (tp *TelemetryProvider) observeCall(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	tp.agentCalls.WithLabelValues(op, outcome).Inc()
	tp.agentDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
