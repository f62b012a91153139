// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LoginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecode_login_attempts_total",
		Help: "Login attempts by surface and outcome.",
	}, []string{"surface", "outcome"})

	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecode_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter, by policy.",
	}, []string{"policy"})

	PinResetFlow = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablecode_pin_reset_flow_total",
		Help: "Forgot-PIN flow transitions by stage and outcome.",
	}, []string{"stage", "outcome"})

	TenantsPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tablecode_tenants_purged_total",
		Help: "Tenants removed by the retention sweep or manual purge.",
	})

	MenuViews = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tablecode_menu_views_total",
		Help: "Public menu fetches served.",
	})
)

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
