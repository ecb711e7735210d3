// Package service implements ticket issuance and the verify-and-check-in flow.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"eventpass/internal/checkin/metrics"
	"eventpass/internal/checkin/models"
	"eventpass/internal/checkin/ports"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/audit"
	"eventpass/pkg/platform/privacy"
	"eventpass/pkg/requestcontext"
)

const (
	DefaultTTL               = 30 * time.Second
	DefaultClockSkew         = 5 * time.Second
	DefaultDependencyTimeout = 3 * time.Second
)

const tracerName = "eventpass/internal/checkin"

// Config holds the tunables shared by the issuer and verifier.
type Config struct {
	TTL               time.Duration
	ClockSkew         time.Duration
	DependencyTimeout time.Duration
	// LegacyFormat makes the issuer mint 5-segment tickets. Verification
	// always accepts both formats.
	LegacyFormat bool
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.ClockSkew < 0 {
		c.ClockSkew = 0
	}
	if c.DependencyTimeout <= 0 {
		c.DependencyTimeout = DefaultDependencyTimeout
	}
	return c
}

type deps struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	auditor ports.AuditPublisher
	tracer  trace.Tracer
}

// Option configures optional collaborators of Issuer and Verifier.
type Option func(*deps)

func WithLogger(logger *slog.Logger) Option {
	return func(d *deps) { d.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *deps) { d.metrics = m }
}

// WithAuditor sets the sink for check-in audit events. Emission failures are
// logged and never change the outcome.
func WithAuditor(a ports.AuditPublisher) Option {
	return func(d *deps) { d.auditor = a }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *deps) { d.tracer = t }
}

func newDeps(opts []Option) deps {
	d := deps{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d deps) emit(ctx context.Context, now time.Time, action audit.AuditEvent, actor id.UserID, ev auditFields) {
	if d.auditor == nil {
		return
	}
	event := audit.Event{
		Timestamp: now,
		Action:    string(action),
		ActorID:   actor,
		Subject:   ev.subject,
		EventID:   ev.eventID,
		Decision:  ev.decision,
		Reason:    string(ev.reason),
		RequestID: requestcontext.RequestID(ctx),
		Device:    requestcontext.DeviceLabel(ctx),
	}
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		event.IPPrefix = privacy.AnonymizeIP(ip)
	}
	if err := d.auditor.Emit(ctx, event); err != nil {
		d.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(action),
			"request_id", event.RequestID,
			"error", err,
		)
	}
}

type auditFields struct {
	subject  string
	eventID  string
	decision string
	reason   models.Reason
}
