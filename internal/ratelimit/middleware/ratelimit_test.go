package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpass/internal/ratelimit/config"
	"eventpass/internal/ratelimit/models"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/circuit"
	"eventpass/pkg/requestcontext"
	"eventpass/pkg/testutil"
)

type stubLimiter struct {
	calls  int
	scopes []string
	err    error
	result *models.RateLimitResult
}

func (s *stubLimiter) answer(scope string) (*models.RateLimitResult, error) {
	s.calls++
	s.scopes = append(s.scopes, scope)
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubLimiter) CheckIP(context.Context, string, models.EndpointClass) (*models.RateLimitResult, error) {
	return s.answer("ip")
}

func (s *stubLimiter) CheckUser(context.Context, id.UserID, models.EndpointClass) (*models.RateLimitResult, error) {
	return s.answer("user")
}

func (s *stubLimiter) CheckBoth(context.Context, string, id.UserID, models.EndpointClass) (*models.RateLimitResult, error) {
	return s.answer("both")
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func request(user id.UserID) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/checkin/verify", nil)
	ctx := requestcontext.WithClientMetadata(req.Context(), "203.0.113.5", "scanner")
	ctx = requestcontext.WithUserID(ctx, user)
	ctx = requestcontext.WithTime(ctx, time.Date(2026, 9, 1, 18, 0, 10, 0, time.UTC))
	return req.WithContext(ctx)
}

func TestRateLimitAllowsAndSetsHeaders(t *testing.T) {
	reset := time.Date(2026, 9, 1, 18, 1, 0, 0, time.UTC)
	limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: true, Limit: 10, Remaining: 7, ResetAt: reset}}
	h := New(limiter, discard()).RateLimit(models.ClassCheckinVerify)(okHandler())

	rr := testutil.DoRequest(h, request(id.UserID(uuid.New())))

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "10", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "7", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Empty(t, rr.Header().Get(HeaderStatus))
}

func TestRateLimitRejects(t *testing.T) {
	limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: false, Limit: 10, RetryAfter: 42, ResetAt: time.Now()}}
	h := New(limiter, discard()).RateLimit(models.ClassCheckinVerify)(okHandler())

	rr := testutil.DoRequest(h, request(id.UserID(uuid.New())))

	testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
	assert.Equal(t, "42", rr.Header().Get("Retry-After"))
	body := testutil.UnmarshalErrorResponse(t, rr)
	assert.Equal(t, float64(42), body["retryAfter"])
}

func TestRateLimitDisabled(t *testing.T) {
	limiter := &stubLimiter{}
	h := New(limiter, discard(), WithDisabled(true)).RateLimit(models.ClassTicketIssue)(okHandler())

	rr := testutil.DoRequest(h, request(id.UserID(uuid.New())))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Zero(t, limiter.calls)
}

func TestRateLimitFailsOpenThenDegrades(t *testing.T) {
	primary := &stubLimiter{err: errors.New("redis down")}
	fallback := NewFallbackLimiter(&config.Config{
		IPLimits:   map[models.EndpointClass]config.Limit{models.ClassCheckinVerify: {RequestsPerWindow: 1, Window: time.Minute}},
		UserLimits: map[models.EndpointClass]config.Limit{models.ClassCheckinVerify: {RequestsPerWindow: 1, Window: time.Minute}},
	}, discard())
	require.NotNil(t, fallback)

	breaker := circuit.New("test", circuit.WithFailureThreshold(2), circuit.WithSuccessThreshold(1))
	h := New(primary, discard(), WithFallback(fallback), WithCircuitBreaker(breaker)).
		RateLimit(models.ClassCheckinVerify)(okHandler())
	user := id.UserID(uuid.New())

	rr := testutil.DoRequest(h, request(user))
	assert.Equal(t, http.StatusNoContent, rr.Code, "first failure fails open")
	assert.Empty(t, rr.Header().Get(HeaderStatus))

	rr = testutil.DoRequest(h, request(user))
	assert.Equal(t, http.StatusNoContent, rr.Code, "breaker opens and fallback allows the first request")
	assert.Equal(t, "degraded", rr.Header().Get(HeaderStatus))
	assert.True(t, breaker.IsOpen())

	rr = testutil.DoRequest(h, request(user))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code, "fallback enforces its own limit")
	assert.Equal(t, "degraded", rr.Header().Get(HeaderStatus))

	primary.err = nil
	primary.result = &models.RateLimitResult{Allowed: true, Limit: 10, Remaining: 9, ResetAt: time.Now()}
	rr = testutil.DoRequest(h, request(user))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Header().Get(HeaderStatus), "recovered primary closes the breaker")
	assert.False(t, breaker.IsOpen())
}

func TestRateLimitScopes(t *testing.T) {
	allow := &models.RateLimitResult{Allowed: true, Limit: 10, Remaining: 9, ResetAt: time.Now()}

	t.Run("origin counts unauthenticated requests by ip", func(t *testing.T) {
		limiter := &stubLimiter{result: allow}
		h := New(limiter, discard()).RateLimitOrigin(models.ClassTicketIssue)(okHandler())

		rr := testutil.DoRequest(h, request(id.UserID{}))
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, []string{"ip"}, limiter.scopes)
	})

	t.Run("user skips requests without a user", func(t *testing.T) {
		limiter := &stubLimiter{result: allow}
		h := New(limiter, discard()).RateLimitUser(models.ClassTicketIssue)(okHandler())

		rr := testutil.DoRequest(h, request(id.UserID{}))
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Empty(t, limiter.scopes)

		rr = testutil.DoRequest(h, request(id.UserID(uuid.New())))
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, []string{"user"}, limiter.scopes)
	})

	t.Run("origin denial stops the request", func(t *testing.T) {
		limiter := &stubLimiter{result: &models.RateLimitResult{Allowed: false, Limit: 1, RetryAfter: 5, ResetAt: time.Now()}}
		h := New(limiter, discard()).RateLimitOrigin(models.ClassCheckinVerify)(okHandler())

		rr := testutil.DoRequest(h, request(id.UserID{}))
		testutil.AssertStatusAndError(t, rr, http.StatusTooManyRequests, "rate_limited")
	})
}

func TestRateLimitOriginFallbackCountsIP(t *testing.T) {
	primary := &stubLimiter{err: errors.New("redis down")}
	fallback := NewFallbackLimiter(&config.Config{
		IPLimits:   map[models.EndpointClass]config.Limit{models.ClassTicketIssue: {RequestsPerWindow: 1, Window: time.Minute}},
		UserLimits: map[models.EndpointClass]config.Limit{models.ClassTicketIssue: {RequestsPerWindow: 100, Window: time.Minute}},
	}, discard())
	breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithSuccessThreshold(1))
	h := New(primary, discard(), WithFallback(fallback), WithCircuitBreaker(breaker)).
		RateLimitOrigin(models.ClassTicketIssue)(okHandler())

	rr := testutil.DoRequest(h, request(id.UserID{}))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "degraded", rr.Header().Get(HeaderStatus))

	rr = testutil.DoRequest(h, request(id.UserID{}))
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}
