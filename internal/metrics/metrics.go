package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/felixgeelhaar/lostfound/internal/errors"
)

// OutcomeSuccess is the outcome label of a call that returned no error.
const OutcomeSuccess = "success"

// Metrics holds all Prometheus metrics for lostfound
type Metrics struct {
	// Command execution metrics
	CommandExecutions *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// Request gateway metrics
	GatewayRequests *prometheus.CounterVec
	GatewayLatency  *prometheus.HistogramVec
	GuardRejections *prometheus.CounterVec
	ImageRejections *prometheus.CounterVec

	// Session metrics
	SessionTransitions *prometheus.CounterVec

	// Identity provider metrics
	IdentityCalls   *prometheus.CounterVec
	IdentityLatency *prometheus.HistogramVec

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		// Command metrics
		CommandExecutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lostfound_command_executions_total",
				Help: "Total number of CLI command executions",
			},
			[]string{"command", "outcome"},
		),
		CommandDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lostfound_command_duration_seconds",
				Help:    "CLI command duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"command"},
		),

		// Gateway metrics
		GatewayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lostfound_gateway_requests_total",
				Help: "Total number of backend requests by outcome kind",
			},
			[]string{"operation", "outcome"},
		),
		GatewayLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lostfound_gateway_latency_seconds",
				Help:    "Backend request latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"operation"},
		),
		GuardRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lostfound_gateway_guard_rejections_total",
				Help: "Total number of calls refused locally before any request was sent",
			},
			[]string{"operation", "kind"},
		),
		ImageRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lostfound_image_rejections_total",
				Help: "Total number of image attachments rejected before upload",
			},
			[]string{"reason"},
		),

		// Session metrics
		SessionTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lostfound_session_transitions_total",
				Help: "Total number of session state transitions",
			},
			[]string{"transition"},
		),

		// Identity metrics
		IdentityCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lostfound_identity_calls_total",
				Help: "Total number of identity provider calls by outcome kind",
			},
			[]string{"operation", "outcome"},
		),
		IdentityLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lostfound_identity_latency_seconds",
				Help:    "Identity provider call latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),

		// Error metrics (by structured error code)
		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lostfound_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code", "component"},
		),
	}
}

// Outcome returns the outcome label for err
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return errors.KindOf(err).String()
}

// ObserveRequest records one finished backend request. Safe on a nil receiver.
func (m *Metrics) ObserveRequest(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(operation, Outcome(err)).Inc()
	m.GatewayLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
	m.recordError("gateway", err)
}

// ObserveGuard records a call refused before dispatch. Safe on a nil receiver.
func (m *Metrics) ObserveGuard(operation string, kind errors.Kind) {
	if m == nil {
		return
	}
	m.GuardRejections.WithLabelValues(operation, kind.String()).Inc()
}

// ObserveImageRejection records a rejected attachment. Safe on a nil receiver.
func (m *Metrics) ObserveImageRejection(reason string) {
	if m == nil {
		return
	}
	m.ImageRejections.WithLabelValues(reason).Inc()
}

// ObserveTransition records a session transition. Safe on a nil receiver.
func (m *Metrics) ObserveTransition(transition string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(transition).Inc()
}

// ObserveIdentity records one identity provider call. Safe on a nil receiver.
func (m *Metrics) ObserveIdentity(operation string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.IdentityCalls.WithLabelValues(operation, Outcome(err)).Inc()
	m.IdentityLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
	m.recordError("identity", err)
}

// ObserveCommand records one CLI command. Safe on a nil receiver.
func (m *Metrics) ObserveCommand(command string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandExecutions.WithLabelValues(command, Outcome(err)).Inc()
	m.CommandDuration.WithLabelValues(command).Observe(elapsed.Seconds())
}

func (m *Metrics) recordError(component string, err error) {
	if f, ok := errors.As(err); ok && f.Code != "" {
		m.Errors.WithLabelValues(string(f.Code), component).Inc()
	}
}
