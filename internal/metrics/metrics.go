// Package metrics wires authcore counters to an OpenTelemetry meter.
// A nil *Metrics is a no-op so callers never branch on whether metrics
// were configured.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instrument set. All methods are safe on a nil receiver.
type Metrics struct {
	loginSuccess     metric.Int64Counter
	loginFailure     metric.Int64Counter
	refreshSuccess   metric.Int64Counter
	refreshFailure   metric.Int64Counter
	logout           metric.Int64Counter
	rateLimited      metric.Int64Counter
	sessionHealed    metric.Int64Counter
	purgedTokens     metric.Int64Counter
	purgeFailures    metric.Int64Counter
}

// New registers the authcore instrument set on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	for _, inst := range []struct {
		target *metric.Int64Counter
		name   string
		help   string
	}{
		{&m.loginSuccess, "authcore_login_success_total", "Successful logins."},
		{&m.loginFailure, "authcore_login_failure_total", "Rejected login attempts."},
		{&m.refreshSuccess, "authcore_refresh_success_total", "Successful access token refreshes."},
		{&m.refreshFailure, "authcore_refresh_failure_total", "Rejected refresh attempts."},
		{&m.logout, "authcore_logout_total", "Completed logouts."},
		{&m.rateLimited, "authcore_rate_limited_total", "Requests rejected by the rate limiter."},
		{&m.sessionHealed, "authcore_session_healed_total", "Session cache entries rebuilt from valid tokens."},
		{&m.purgedTokens, "authcore_purged_tokens_total", "Token rows removed by the purge loop."},
		{&m.purgeFailures, "authcore_purge_failure_total", "Purge cycles that returned an error."},
	} {
		counter, err := meter.Int64Counter(inst.name, metric.WithDescription(inst.help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", inst.name, err)
		}
		*inst.target = counter
	}
	return m, nil
}

func add(ctx context.Context, c metric.Int64Counter, n int64) {
	if c != nil {
		c.Add(ctx, n)
	}
}

func (m *Metrics) LoginSuccess(ctx context.Context) {
	if m != nil {
		add(ctx, m.loginSuccess, 1)
	}
}

func (m *Metrics) LoginFailure(ctx context.Context) {
	if m != nil {
		add(ctx, m.loginFailure, 1)
	}
}

func (m *Metrics) RefreshSuccess(ctx context.Context) {
	if m != nil {
		add(ctx, m.refreshSuccess, 1)
	}
}

func (m *Metrics) RefreshFailure(ctx context.Context) {
	if m != nil {
		add(ctx, m.refreshFailure, 1)
	}
}

func (m *Metrics) Logout(ctx context.Context) {
	if m != nil {
		add(ctx, m.logout, 1)
	}
}

func (m *Metrics) RateLimited(ctx context.Context) {
	if m != nil {
		add(ctx, m.rateLimited, 1)
	}
}

func (m *Metrics) SessionHealed(ctx context.Context) {
	if m != nil {
		add(ctx, m.sessionHealed, 1)
	}
}

func (m *Metrics) PurgedTokens(ctx context.Context, n int64) {
	if m != nil {
		add(ctx, m.purgedTokens, n)
	}
}

func (m *Metrics) PurgeFailure(ctx context.Context) {
	if m != nil {
		add(ctx, m.purgeFailures, 1)
	}
}
