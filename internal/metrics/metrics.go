// Package metrics holds the prometheus collectors exposed at /metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Auth failure reasons.
const (
	ReasonMissing      = "missing"
	ReasonExpired      = "expired"
	ReasonInvalid      = "invalid"
	ReasonUserNotFound = "user_not_found"
)

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	authFailures  *prometheus.CounterVec
	signupsTotal  *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weakapi_http_requests_total",
				Help: "HTTP requests served, by route template and status",
			},
			[]string{"method", "route", "status"},
		),
		authFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weakapi_auth_failures_total",
				Help: "Rejected bearer tokens by reason",
			},
			[]string{"reason"},
		),
		signupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weakapi_signups_total",
				Help: "Accounts created, split by admin flag",
			},
			[]string{"admin"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.authFailures,
		m.signupsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// AuthFailure counts a rejected request on a secured route.
func (m *Metrics) AuthFailure(reason string) {
	if m == nil {
		return
	}
	m.authFailures.WithLabelValues(reason).Inc()
}

// Signup counts a created account.
func (m *Metrics) Signup(admin bool) {
	if m == nil {
		return
	}
	m.signupsTotal.WithLabelValues(strconv.FormatBool(admin)).Inc()
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts every request once its final status is known. Route is
// the matched template, not the raw path, to keep label cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := next(c); err != nil {
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.requestsTotal.WithLabelValues(
				c.Request().Method,
				route,
				strconv.Itoa(c.Response().Status),
			).Inc()
			return nil
		}
	}
}
