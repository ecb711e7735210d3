package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"

	checkinhandler "eventpass/internal/checkin/handler"
	checkinmetrics "eventpass/internal/checkin/metrics"
	"eventpass/internal/checkin/ports"
	checkinservice "eventpass/internal/checkin/service"
	checkinmemory "eventpass/internal/checkin/store/memory"
	checkinpostgres "eventpass/internal/checkin/store/postgres"
	"eventpass/internal/checkin/token"
	"eventpass/internal/platform/config"
	platformkafka "eventpass/internal/platform/kafka"
	platformmetrics "eventpass/internal/platform/metrics"
	"eventpass/internal/platform/postgres"
	platformredis "eventpass/internal/platform/redis"
	rlconfig "eventpass/internal/ratelimit/config"
	rlmetrics "eventpass/internal/ratelimit/metrics"
	rlmiddleware "eventpass/internal/ratelimit/middleware"
	rlmodels "eventpass/internal/ratelimit/models"
	rlports "eventpass/internal/ratelimit/ports"
	"eventpass/internal/ratelimit/service/requestlimit"
	"eventpass/internal/ratelimit/store/counter"
	"eventpass/internal/session"
	"eventpass/pkg/platform/audit"
	"eventpass/pkg/platform/audit/publisher"
	auditkafka "eventpass/pkg/platform/audit/store/kafka"
	auditmemory "eventpass/pkg/platform/audit/store/memory"
	auditpostgres "eventpass/pkg/platform/audit/store/postgres"
	"eventpass/pkg/platform/httputil"
	"eventpass/pkg/platform/middleware/auth"
	"eventpass/pkg/platform/middleware/device"
	"eventpass/pkg/platform/middleware/metadata"
	"eventpass/pkg/platform/middleware/request"
	"eventpass/pkg/platform/middleware/requesttime"
)

type checkinStore interface {
	ports.AttendanceStore
	ports.ScopeStore
}

type app struct {
	Router  http.Handler
	closers []func()
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}
	reg := platformmetrics.NewRegistry()

	var (
		pool  *pgxpool.Pool
		store checkinStore
	)
	if cfg.Database.URL != "" {
		p, err := postgres.Open(ctx, postgres.Config{URL: cfg.Database.URL, MaxConns: cfg.Database.MaxConns})
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, p.Close)
		if err := postgres.Migrate(ctx, p); err != nil {
			return fail(err)
		}
		pool = p
		store = checkinpostgres.New(p)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory check-in store")
		store = checkinmemory.New()
	}

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return fail(err)
	}
	var rateCounter rlports.Counter = counter.NewInMemory()
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		rateCounter = counter.NewRedis(redisClient.Client)
	} else {
		log.Warn("REDIS_URL not set, rate limits are per replica")
	}

	var kafkaClient *kgo.Client
	var auditStore audit.Store
	switch {
	case len(cfg.Audit.KafkaBrokers) > 0:
		kafkaClient, err = platformkafka.NewClient(platformkafka.Config{Brokers: cfg.Audit.KafkaBrokers})
		if err != nil {
			return fail(err)
		}
		a.closers = append(a.closers, kafkaClient.Close)
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = platformkafka.EnsureTopic(topicCtx, kafkaClient, cfg.Audit.KafkaTopic, 3, 1)
		cancel()
		if err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Audit.KafkaTopic, "error", err)
		}
		auditStore = auditkafka.New(kafkaClient, cfg.Audit.KafkaTopic)
	case pool != nil:
		auditStore = auditpostgres.New(pool)
	default:
		auditStore = auditmemory.NewInMemoryStore()
	}
	auditor := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics(reg)),
		publisher.WithSampler(publisher.NewSampler(cfg.Audit.OpsSampleRate)),
	)
	a.closers = append(a.closers, func() { _ = auditor.Close() })

	var codec *token.Codec
	if cfg.Ticket.SigningSecret == "" {
		log.Error("TICKET_SIGNING_SECRET is not set: every ticket request will fail with server_not_configured")
	} else {
		codec, err = token.NewCodec([]byte(cfg.Ticket.SigningSecret))
		if err != nil {
			return fail(err)
		}
	}
	if cfg.Session.JWTSecret == "" {
		log.Error("SESSION_JWT_SECRET is not set: every request will be unauthorized")
	}
	sessions := session.NewJWTService(cfg.Session.JWTSecret, cfg.Session.Issuer, cfg.Session.Audience)

	svcCfg := checkinservice.Config{
		TTL:               cfg.Ticket.TTL,
		ClockSkew:         cfg.Ticket.ClockSkew,
		DependencyTimeout: cfg.Ticket.DependencyTimeout,
		LegacyFormat:      cfg.Ticket.LegacyFormat,
	}
	svcOpts := []checkinservice.Option{
		checkinservice.WithLogger(log),
		checkinservice.WithMetrics(checkinmetrics.New(reg)),
		checkinservice.WithAuditor(auditor),
	}
	issuer := checkinservice.NewIssuer(codec, store, svcCfg, svcOpts...)
	verifier := checkinservice.NewVerifier(codec, store, store, svcCfg, svcOpts...)

	limitMetrics := rlmetrics.New(reg)
	limits := rlconfig.DefaultConfig()
	requests, err := requestlimit.New(rateCounter,
		requestlimit.WithConfig(limits),
		requestlimit.WithLogger(log),
		requestlimit.WithMetrics(limitMetrics),
		requestlimit.WithAuditPublisher(auditor),
	)
	if err != nil {
		return fail(err)
	}
	limiter := rlmiddleware.New(requests, log,
		rlmiddleware.WithDisabled(cfg.RateLimit.Disabled),
		rlmiddleware.WithFallback(rlmiddleware.NewFallbackLimiter(limits, log)),
		rlmiddleware.WithMetrics(limitMetrics),
	)

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(device.Middleware)

	r.Get("/healthz", healthHandler(pool, redisClient, kafkaClient))
	r.Handle("/metrics", platformmetrics.Handler(reg))

	checkinhandler.New(issuer, verifier, log).Register(r, checkinhandler.Routes{
		Auth:              auth.RequireAuth(sessions, log),
		IssueOriginLimit:  limiter.RateLimitOrigin(rlmodels.ClassTicketIssue),
		IssueLimit:        limiter.RateLimitUser(rlmodels.ClassTicketIssue),
		VerifyOriginLimit: limiter.RateLimitOrigin(rlmodels.ClassCheckinVerify),
		VerifyLimit:       limiter.RateLimitUser(rlmodels.ClassCheckinVerify),
	})

	a.Router = r
	return a, nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func healthHandler(pool *pgxpool.Pool, redisClient *platformredis.Client, kafkaClient *kgo.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: map[string]string{}}
		check := func(name string, err error) {
			if err != nil {
				resp.Status = "degraded"
				resp.Checks[name] = fmt.Sprintf("error: %v", err)
				return
			}
			resp.Checks[name] = "ok"
		}
		if pool != nil {
			check("postgres", pool.Ping(ctx))
		}
		if redisClient != nil {
			check("redis", redisClient.Health(ctx))
		}
		if kafkaClient != nil {
			check("kafka", platformkafka.Health(ctx, kafkaClient))
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, resp)
	}
}
