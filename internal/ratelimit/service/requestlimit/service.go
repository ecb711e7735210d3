package requestlimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"eventpass/internal/ratelimit/config"
	"eventpass/internal/ratelimit/metrics"
	"eventpass/internal/ratelimit/models"
	"eventpass/internal/ratelimit/ports"
	id "eventpass/pkg/domain"
	dErrors "eventpass/pkg/domain-errors"
	"eventpass/pkg/platform/audit"
	"eventpass/pkg/platform/privacy"
	"eventpass/pkg/requestcontext"
)

// Service enforces fixed-window limits per network origin and per identity.
// Windows are aligned to the unix epoch so every replica agrees on the
// boundaries without coordination.
type Service struct {
	counter        ports.Counter
	auditPublisher ports.AuditPublisher
	logger         *slog.Logger
	config         *config.Config
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.config = cfg
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(counter ports.Counter, opts ...Option) (*Service, error) {
	if counter == nil {
		return nil, errors.New("counter is required")
	}

	svc := &Service{
		counter: counter,
		config:  config.DefaultConfig(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

func (s *Service) CheckIP(ctx context.Context, ip string, class models.EndpointClass) (*models.RateLimitResult, error) {
	limit, window, ok := s.config.GetIPLimit(class)
	if !ok {
		return s.denyUnconfigured(ctx, class, models.KeyPrefixIP), nil
	}
	return s.check(ctx, models.KeyPrefixIP, ip, class, limit, window)
}

func (s *Service) CheckUser(ctx context.Context, userID id.UserID, class models.EndpointClass) (*models.RateLimitResult, error) {
	limit, window, ok := s.config.GetUserLimit(class)
	if !ok {
		return s.denyUnconfigured(ctx, class, models.KeyPrefixUser), nil
	}
	return s.check(ctx, models.KeyPrefixUser, userID.String(), class, limit, window)
}

// CheckBoth checks the network origin first, then the identity, and returns the
// more restrictive of the two results. A denied origin short-circuits without
// consuming the identity's allowance.
func (s *Service) CheckBoth(ctx context.Context, ip string, userID id.UserID, class models.EndpointClass) (*models.RateLimitResult, error) {
	ipRes, err := s.CheckIP(ctx, ip, class)
	if err != nil || !ipRes.Allowed {
		return ipRes, err
	}
	if userID.IsNil() {
		return ipRes, nil
	}
	userRes, err := s.CheckUser(ctx, userID, class)
	if err != nil || !userRes.Allowed {
		return userRes, err
	}
	return moreRestrictiveResult(ipRes, userRes), nil
}

func (s *Service) check(
	ctx context.Context,
	prefix models.KeyPrefix,
	identifier string,
	class models.EndpointClass,
	limit int,
	window time.Duration,
) (*models.RateLimitResult, error) {
	now := requestcontext.Now(ctx)
	windowSecs := int64(window / time.Second)
	start := now.Unix() / windowSecs * windowSecs
	resetAt := time.Unix(start+windowSecs, 0).UTC()

	key := models.NewRateLimitKey(prefix, identifier, class, start)
	count, err := s.counter.Increment(ctx, key.String(), window)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to check rate limit")
	}

	remaining := max(limit-count, 0)
	if count <= limit {
		return &models.RateLimitResult{
			Allowed:   true,
			Limit:     limit,
			Remaining: remaining,
			ResetAt:   resetAt,
		}, nil
	}

	result := &models.RateLimitResult{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter(now, resetAt),
	}
	s.recordDenied(ctx, prefix, identifier, class, limit, window)
	return result, nil
}

func (s *Service) recordDenied(ctx context.Context, prefix models.KeyPrefix, identifier string, class models.EndpointClass, limit int, window time.Duration) {
	if s.metrics != nil {
		s.metrics.IncrementDenied(string(class), string(prefix))
	}

	logIdentifier := identifier
	if prefix == models.KeyPrefixIP {
		logIdentifier = privacy.AnonymizeIP(identifier)
	}
	s.logger.WarnContext(ctx, "rate limit exceeded",
		"request_id", requestcontext.RequestID(ctx),
		"limit_type", string(prefix),
		"identifier", logIdentifier,
		"endpoint_class", string(class),
		"limit", limit,
		"window_seconds", int(window.Seconds()),
	)

	if s.auditPublisher == nil {
		return
	}
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		Action:    string(audit.EventRateLimitExceeded),
		Subject:   string(prefix) + ":" + logIdentifier,
		Decision:  "denied",
		Reason:    string(class),
		RequestID: requestcontext.RequestID(ctx),
	}
	if prefix == models.KeyPrefixUser {
		if uid, err := id.ParseUserID(identifier); err == nil {
			event.ActorID = uid
		}
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit rate limit audit event", "error", err)
	}
}

// denyUnconfigured rejects classes with no configured limit.
func (s *Service) denyUnconfigured(ctx context.Context, class models.EndpointClass, prefix models.KeyPrefix) *models.RateLimitResult {
	s.logger.ErrorContext(ctx, "rate limit not configured",
		"endpoint_class", string(class),
		"limit_type", string(prefix),
	)
	now := requestcontext.Now(ctx)
	return &models.RateLimitResult{
		Allowed:    false,
		ResetAt:    now.Add(time.Minute),
		RetryAfter: 60,
	}
}

// retryAfter is the whole seconds until resetAt, at least one.
func retryAfter(now, resetAt time.Time) int {
	d := resetAt.Sub(now)
	secs := int((d + time.Second - 1) / time.Second)
	return max(secs, 1)
}

// moreRestrictiveResult returns the result with fewer remaining requests,
// or the earlier reset time if remaining counts are equal.
func moreRestrictiveResult(a, b *models.RateLimitResult) *models.RateLimitResult {
	if a.Remaining < b.Remaining {
		return a
	}
	if b.Remaining < a.Remaining {
		return b
	}
	if a.ResetAt.Before(b.ResetAt) {
		return a
	}
	return b
}
