// Package audit records security-relevant events (logins, logouts,
// refreshes, revocations) without blocking the request path. Events flow
// through a buffered dispatcher into a pluggable [Sink].
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actions emitted by the engine.
const (
	ActionLogin        = "login"
	ActionLoginFailed  = "login_failed"
	ActionRefresh      = "refresh"
	ActionLogout       = "logout"
	ActionRevokeAll    = "revoke_all"
	ActionRateLimited  = "rate_limited"
	ActionTokenPurge   = "token_purge"
)

// Event is one audit record.
type Event struct {
	ID       uuid.UUID         `json:"id"`
	Action   string            `json:"action"`
	UserID   int64             `json:"user_id,omitempty"`
	TenantID int64             `json:"tenant_id,omitempty"`
	IP       string            `json:"ip,omitempty"`
	Success  bool              `json:"success"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	At       time.Time         `json:"at"`
}

// Sink receives dispatched events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ZapSink writes one structured log line per event.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapSink{logger: logger}
}

func (s *ZapSink) Emit(_ context.Context, event Event) {
	fields := []zap.Field{
		zap.String("audit_id", event.ID.String()),
		zap.String("action", event.Action),
		zap.Bool("success", event.Success),
		zap.Time("at", event.At),
	}
	if event.UserID != 0 {
		fields = append(fields, zap.Int64("user_id", event.UserID))
	}
	if event.TenantID != 0 {
		fields = append(fields, zap.Int64("tenant_id", event.TenantID))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.Error != "" {
		fields = append(fields, zap.String("error", event.Error))
	}
	for k, v := range event.Metadata {
		fields = append(fields, zap.String("meta_"+k, v))
	}
	s.logger.Info("audit", fields...)
}

// ChannelSink buffers events for test assertions.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}
