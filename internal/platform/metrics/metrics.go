package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CodesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_auth_codes_issued_total",
		Help: "Verification codes issued, by flow and delivery mode",
	}, []string{"flow", "mode"})

	CodeVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_auth_code_verifications_total",
		Help: "Code verification attempts by result",
	}, []string{"result"})

	TokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_auth_token_verifications_total",
		Help: "Magic-link verification attempts by result",
	}, []string{"result"})

	NameVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "campus_auth_name_verifications_total",
		Help: "Name verification outcomes by method and result",
	}, []string{"method", "result"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "campus_auth_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "campus_auth_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// Middleware records RequestDuration for every request.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		RequestDuration.
			WithLabelValues(c.Method(), c.Route().Path, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
