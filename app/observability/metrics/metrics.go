package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	UserDeletionsTotal          metric.Int64Counter
	UserDeletionDurationSeconds metric.Float64Histogram
	RemoteCallsTotal            metric.Int64Counter
	AccessTokensIssuedTotal     metric.Int64Counter
	RefreshTokensIssuedTotal    metric.Int64Counter
	RefreshTokensRevokedTotal   metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// InitAppMetrics initializes the global metrics instruments only once, using
// the meter of the globally configured MeterProvider.
func InitAppMetrics() {
	once.Do(func() {
		m, err := New(otel.GetMeterProvider().Meter("identity-service"))
		if err != nil {
			log.Fatalf("Metrics: %v", err)
		}
		log.Println("Application metrics instruments initialized.")
		appMetrics = m
	})
}

// Get returns the global AppMetrics, initializing it against the current
// global MeterProvider when InitAppMetrics has not been called yet.
func Get() *AppMetrics {
	InitAppMetrics()
	return appMetrics
}

// New builds the instruments on the given meter.
func New(meter metric.Meter) (*AppMetrics, error) {
	var err error
	m := &AppMetrics{}

	m.UserDeletionsTotal, err = meter.Int64Counter(
		"user_deletions_total",
		metric.WithDescription("User deletion sagas by outcome and failing step"),
		metric.WithUnit("{saga}"),
	)
	if err != nil {
		return nil, err
	}

	m.UserDeletionDurationSeconds, err = meter.Float64Histogram(
		"user_deletion_duration_seconds",
		metric.WithDescription("Duration of user deletion sagas in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.RemoteCallsTotal, err = meter.Int64Counter(
		"remote_service_calls_total",
		metric.WithDescription("Calls to organization, project and task services by operation and result"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	m.AccessTokensIssuedTotal, err = meter.Int64Counter(
		"access_tokens_issued_total",
		metric.WithDescription("Signed access tokens issued"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	m.RefreshTokensIssuedTotal, err = meter.Int64Counter(
		"refresh_tokens_issued_total",
		metric.WithDescription("Refresh tokens minted"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	m.RefreshTokensRevokedTotal, err = meter.Int64Counter(
		"refresh_tokens_revoked_total",
		metric.WithDescription("Refresh tokens revoked"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
