package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SecurityMetrics counts authentication and rate-limit outcomes on the report
// endpoints. A nil *SecurityMetrics records nothing.
type SecurityMetrics struct {
	authAttempts          metric.Int64Counter
	authFailures          metric.Int64Counter
	authSuccesses         metric.Int64Counter
	unauthorizedAttempts  metric.Int64Counter
	tokenValidationErrors metric.Int64Counter
	rateLimited           metric.Int64Counter
}

func InitSecurityMetrics() (*SecurityMetrics, error) {
	return newSecurityMetrics(otel.Meter(meterName + "/security"))
}

func newSecurityMetrics(meter metric.Meter) (*SecurityMetrics, error) {
	set := &instrumentSet{meter: meter}
	m := &SecurityMetrics{
		authAttempts:          set.counter("security.auth.attempts.total", "Bearer token checks started"),
		authFailures:          set.counter("security.auth.failures.total", "Bearer token checks that failed"),
		authSuccesses:         set.counter("security.auth.successes.total", "Bearer token checks that passed"),
		unauthorizedAttempts:  set.counter("security.unauthorized.attempts.total", "Requests answered with 401"),
		tokenValidationErrors: set.counter("security.token.validation_errors.total", "Tokens rejected by signature, claims or time checks"),
		rateLimited:           set.counter("security.rate_limit.rejections.total", "Requests answered with 429"),
	}
	if set.err != nil {
		return nil, set.err
	}
	return m, nil
}

func (m *SecurityMetrics) add(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAuthAttempt counts one bearer token check on endpoint.
func (m *SecurityMetrics) RecordAuthAttempt(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.add(ctx, m.authAttempts, attribute.String("endpoint", endpoint))
}

func (m *SecurityMetrics) RecordAuthFailure(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, m.authFailures, attribute.String("endpoint", endpoint), attribute.String("reason", reason))
}

func (m *SecurityMetrics) RecordAuthSuccess(ctx context.Context, endpoint, issuer string) {
	if m == nil {
		return
	}
	m.add(ctx, m.authSuccesses, attribute.String("endpoint", endpoint), attribute.String("issuer", issuer))
}

func (m *SecurityMetrics) RecordUnauthorizedAttempt(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.add(ctx, m.unauthorizedAttempts, attribute.String("endpoint", endpoint), attribute.String("reason", reason))
}

// RecordTokenValidationError counts a token that reached the verifier and
// was rejected. errorType is a short reason code such as "invalid_token".
func (m *SecurityMetrics) RecordTokenValidationError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.add(ctx, m.tokenValidationErrors, attribute.String("error_type", errorType))
}

// RecordRateLimited counts a request rejected with 429.
func (m *SecurityMetrics) RecordRateLimited(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.add(ctx, m.rateLimited, attribute.String("endpoint", endpoint))
}
