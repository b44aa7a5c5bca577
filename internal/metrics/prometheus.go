package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all the Prometheus metrics for our service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Request counters
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Engine call metrics
	EngineCalls        *prometheus.CounterVec
	EngineCallDuration *prometheus.HistogramVec

	// Business logic metrics
	AdSelections         *prometheus.CounterVec
	AdsServed            *prometheus.CounterVec
	EventsRecorded       *prometheus.CounterVec
	EventFailures        *prometheus.CounterVec
	SpendDebited         *prometheus.CounterVec
	BudgetExhaustions    prometheus.Counter
	LifecycleTransitions *prometheus.CounterVec
	SuspectedClickFraud  *prometheus.CounterVec
	Notifications        *prometheus.CounterVec
	CacheLookups         *prometheus.CounterVec
	DatabaseQueries      *prometheus.CounterVec
	DatabaseErrors       *prometheus.CounterVec

	// Health check metrics
	HealthCheckStatus *prometheus.GaugeVec
}

// NewPrometheusMetrics creates all metrics and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default /metrics handler.
func NewPrometheusMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adserve_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adserve_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
			[]string{"method", "endpoint"},
		),

		EngineCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_engine_calls_total",
				Help: "Total number of engine operations, by outcome",
			},
			[]string{"method", "outcome"},
		),

		EngineCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adserve_engine_call_duration_seconds",
				Help:    "Engine operation duration in seconds",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method"},
		),

		AdSelections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_ad_selections_total",
				Help: "Total number of ad selection requests, by whether any ad was returned",
			},
			[]string{"placement", "filled"},
		),

		AdsServed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_ads_served_total",
				Help: "Total number of creatives returned by ad selection",
			},
			[]string{"placement"},
		),

		EventsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_events_recorded_total",
				Help: "Total number of impression, click and conversion events recorded",
			},
			[]string{"type", "billable"},
		),

		EventFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_event_failures_total",
				Help: "Total number of rejected or failed event recordings",
			},
			[]string{"type", "reason"},
		),

		SpendDebited: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_spend_debited_total",
				Help: "Total amount debited from campaign budgets",
			},
			[]string{"currency"},
		),

		BudgetExhaustions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adserve_budget_exhaustions_total",
				Help: "Total number of campaigns whose budget reached zero",
			},
		),

		LifecycleTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_lifecycle_transitions_total",
				Help: "Total number of campaign status transitions",
			},
			[]string{"to", "trigger"},
		),

		SuspectedClickFraud: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_suspected_click_fraud_total",
				Help: "Total number of clicks flagged by the click-frequency heuristic",
			},
			[]string{"campaign_id"},
		),

		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_notifications_total",
				Help: "Total number of client notifications dispatched",
			},
			[]string{"kind", "outcome"},
		),

		CacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_result_cache_lookups_total",
				Help: "Total number of ad result cache lookups",
			},
			[]string{"outcome"},
		),

		DatabaseQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_database_queries_total",
				Help: "Total number of database queries",
			},
			[]string{"operation", "table"},
		),

		DatabaseErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adserve_database_errors_total",
				Help: "Total number of database errors",
			},
			[]string{"operation", "error_type"},
		),

		HealthCheckStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "adserve_health_check_status",
				Help: "Health check status (1 = healthy, 0 = unhealthy)",
			},
			[]string{"check_type"},
		),
	}
}

// RecordHTTPRequest records an HTTP request with its duration and status
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// IncRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncRequestsInFlight(method, endpoint string) {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// DecRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecRequestsInFlight(method, endpoint string) {
	if m == nil {
		return
	}
	m.HTTPRequestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordEngineCall records one engine operation and how it ended.
func (m *Metrics) RecordEngineCall(method, outcome string, duration float64) {
	if m == nil {
		return
	}
	m.EngineCalls.WithLabelValues(method, outcome).Inc()
	m.EngineCallDuration.WithLabelValues(method).Observe(duration)
}

// RecordAdSelection records one selection and the number of creatives it returned.
func (m *Metrics) RecordAdSelection(placement string, served int) {
	if m == nil {
		return
	}
	filled := "true"
	if served == 0 {
		filled = "false"
	}
	m.AdSelections.WithLabelValues(placement, filled).Inc()
	m.AdsServed.WithLabelValues(placement).Add(float64(served))
}

// RecordEvent records a successfully stored event.
func (m *Metrics) RecordEvent(eventType string, billable bool) {
	if m == nil {
		return
	}
	b := "false"
	if billable {
		b = "true"
	}
	m.EventsRecorded.WithLabelValues(eventType, b).Inc()
}

// RecordEventFailure records an event that was rejected or could not be stored.
func (m *Metrics) RecordEventFailure(eventType, reason string) {
	if m == nil {
		return
	}
	m.EventFailures.WithLabelValues(eventType, reason).Inc()
}

// RecordSpend records money debited from a budget.
func (m *Metrics) RecordSpend(currency string, amount float64) {
	if m == nil || amount <= 0 {
		return
	}
	m.SpendDebited.WithLabelValues(currency).Add(amount)
}

// RecordBudgetExhausted records a campaign running out of budget.
func (m *Metrics) RecordBudgetExhausted() {
	if m == nil {
		return
	}
	m.BudgetExhaustions.Inc()
}

// RecordTransition records a lifecycle transition and what triggered it.
func (m *Metrics) RecordTransition(to, trigger string) {
	if m == nil {
		return
	}
	m.LifecycleTransitions.WithLabelValues(to, trigger).Inc()
}

// RecordSuspectedClickFraud records a click flagged for review.
func (m *Metrics) RecordSuspectedClickFraud(campaignID string) {
	if m == nil {
		return
	}
	m.SuspectedClickFraud.WithLabelValues(campaignID).Inc()
}

// RecordNotification records a notification dispatch outcome.
func (m *Metrics) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.Notifications.WithLabelValues(kind, outcome).Inc()
}

// RecordCacheLookup records a result cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheLookups.WithLabelValues(outcome).Inc()
}

// RecordDatabaseQuery records a database query
func (m *Metrics) RecordDatabaseQuery(operation, table string) {
	if m == nil {
		return
	}
	m.DatabaseQueries.WithLabelValues(operation, table).Inc()
}

// RecordDatabaseError records a database error
func (m *Metrics) RecordDatabaseError(operation, errorType string) {
	if m == nil {
		return
	}
	m.DatabaseErrors.WithLabelValues(operation, errorType).Inc()
}

// SetHealthCheckStatus sets the health check status
func (m *Metrics) SetHealthCheckStatus(checkType string, healthy bool) {
	if m == nil {
		return
	}
	status := 0.0
	if healthy {
		status = 1.0
	}
	m.HealthCheckStatus.WithLabelValues(checkType).Set(status)
}
