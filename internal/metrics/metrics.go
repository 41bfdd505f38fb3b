package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for OpenCall
type Metrics struct {
	// Command execution metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// API request metrics
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestRetries  *prometheus.CounterVec
	RequestErrors   *prometheus.CounterVec

	// Session metrics
	SessionInvalidations *prometheus.CounterVec

	// Booking watch metrics
	BookingPolls *prometheus.CounterVec
	Bookings     *prometheus.GaugeVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencall_command_executions_total",
				Help: "Total number of command executions",
			},
			[]string{"command", "success"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opencall_command_duration_seconds",
				Help:    "Command execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencall_api_requests_total",
				Help: "Total number of API calls by definitive status",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "opencall_api_request_duration_seconds",
				Help:    "API call duration in seconds, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"method", "route"},
		),
		RequestRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencall_api_request_retries_total",
				Help: "Total number of API calls retried after a token refresh",
			},
			[]string{"route"},
		),
		RequestErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencall_api_request_errors_total",
				Help: "Total number of failed API calls by error kind",
			},
			[]string{"route", "kind"},
		),

		SessionInvalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencall_session_invalidations_total",
				Help: "Total number of session-invalidated events",
			},
			[]string{"reason"},
		),

		BookingPolls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencall_booking_polls_total",
				Help: "Total number of booking list polls",
			},
			[]string{"success"},
		),
		Bookings: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "opencall_bookings",
				Help: "Bookings seen on the last poll by status",
			},
			[]string{"status"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "opencall_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}
