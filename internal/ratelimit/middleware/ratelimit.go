package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"eventpass/internal/ratelimit/metrics"
	"eventpass/internal/ratelimit/models"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/circuit"
	"eventpass/pkg/platform/httputil"
	"eventpass/pkg/platform/privacy"
	"eventpass/pkg/requestcontext"
)

// HeaderStatus is set to "degraded" while limits come from the in-memory
// fallback instead of the shared counter.
const HeaderStatus = "X-RateLimit-Status"

// RateLimiter checks network-origin and identity limits for one request.
type RateLimiter interface {
	CheckIP(ctx context.Context, ip string, class models.EndpointClass) (*models.RateLimitResult, error)
	CheckUser(ctx context.Context, userID id.UserID, class models.EndpointClass) (*models.RateLimitResult, error)
	CheckBoth(ctx context.Context, ip string, userID id.UserID, class models.EndpointClass) (*models.RateLimitResult, error)
}

// scope selects which keys a middleware instance counts.
type scope int

const (
	scopeBoth scope = iota
	scopeOrigin
	scopeUser
)

type Middleware struct {
	limiter  RateLimiter
	fallback RateLimiter
	breaker  *circuit.Breaker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

// WithFallback sets the limiter used while the circuit to the primary is open.
func WithFallback(fallback RateLimiter) Option {
	return func(m *Middleware) {
		m.fallback = fallback
	}
}

func WithCircuitBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.breaker == nil {
		m.breaker = circuit.New("ratelimit")
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit limits requests of class by client IP and, when present, by the
// authenticated user. It must run after client metadata and auth middleware.
// Counter failures fail open.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return m.limit(class, scopeBoth)
}

// RateLimitOrigin limits requests of class by client IP only. It runs ahead of
// authentication so requests rejected with 401 still count against the origin.
func (m *Middleware) RateLimitOrigin(class models.EndpointClass) func(http.Handler) http.Handler {
	return m.limit(class, scopeOrigin)
}

// RateLimitUser limits requests of class by the authenticated user only and
// lets requests without a user through. Pair it with RateLimitOrigin.
func (m *Middleware) RateLimitUser(class models.EndpointClass) func(http.Handler) http.Handler {
	return m.limit(class, scopeUser)
}

func (m *Middleware) limit(class models.EndpointClass, sc scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)
			userID := requestcontext.UserID(ctx)
			if sc == scopeUser && userID.IsNil() {
				next.ServeHTTP(w, r)
				return
			}

			result, degraded := m.check(ctx, sc, ip, userID, class)
			if degraded {
				w.Header().Set(HeaderStatus, "degraded")
			}
			if result == nil {
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)

			if !result.Allowed {
				writeRateLimitExceeded(w, result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func checkScope(ctx context.Context, l RateLimiter, sc scope, ip string, userID id.UserID, class models.EndpointClass) (*models.RateLimitResult, error) {
	switch sc {
	case scopeOrigin:
		return l.CheckIP(ctx, ip, class)
	case scopeUser:
		return l.CheckUser(ctx, userID, class)
	default:
		return l.CheckBoth(ctx, ip, userID, class)
	}
}

// check consults the primary limiter and routes around it while the breaker is
// open. A nil result means the request is let through unchecked.
func (m *Middleware) check(ctx context.Context, sc scope, ip string, userID id.UserID, class models.EndpointClass) (*models.RateLimitResult, bool) {
	result, err := checkScope(ctx, m.limiter, sc, ip, userID, class)
	if err != nil {
		if m.metrics != nil {
			m.metrics.IncrementStoreErrors()
		}
		useFallback, change := m.breaker.RecordFailure()
		m.logChange(ctx, change)
		m.logger.ErrorContext(ctx, "failed to check rate limit",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
			"ip_prefix", privacy.AnonymizeIP(ip),
		)
		if useFallback {
			return m.checkFallback(ctx, sc, ip, userID, class)
		}
		return nil, false
	}

	usePrimary, change := m.breaker.RecordSuccess()
	m.logChange(ctx, change)
	if usePrimary {
		return result, false
	}
	return m.checkFallback(ctx, sc, ip, userID, class)
}

func (m *Middleware) checkFallback(ctx context.Context, sc scope, ip string, userID id.UserID, class models.EndpointClass) (*models.RateLimitResult, bool) {
	if m.fallback == nil {
		return nil, true
	}
	result, err := checkScope(ctx, m.fallback, sc, ip, userID, class)
	if err != nil {
		m.logger.ErrorContext(ctx, "fallback rate limit check failed", "error", err)
		return nil, true
	}
	return result, true
}

func (m *Middleware) logChange(ctx context.Context, change circuit.Change) {
	switch {
	case change.Opened:
		m.logger.WarnContext(ctx, "rate limit store unavailable, using in-memory fallback", "breaker", m.breaker.Name())
		if m.metrics != nil {
			m.metrics.SetDegraded(true)
		}
	case change.Closed:
		m.logger.InfoContext(ctx, "rate limit store recovered", "breaker", m.breaker.Name())
		if m.metrics != nil {
			m.metrics.SetDegraded(false)
		}
	}
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limited",
		RetryAfter: result.RetryAfter,
	})
}
