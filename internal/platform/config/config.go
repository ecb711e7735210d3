// Package config reads service configuration from the environment once at
// startup so main stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	platformstrings "eventpass/pkg/platform/strings"
)

const (
	DefaultTicketTTL         = 30 * time.Second
	DefaultClockSkew         = 5 * time.Second
	DefaultDependencyTimeout = 3 * time.Second
)

// Config is the full service configuration.
type Config struct {
	Server    Server
	Ticket    Ticket
	Session   Session
	Database  Database
	Redis     RedisConfig
	Audit     Audit
	RateLimit RateLimit
	Log       Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Ticket configures minting and verification of check-in tickets.
type Ticket struct {
	// SigningSecret may be empty; the service then refuses every issue and
	// verify call with server_not_configured instead of signing with a blank key.
	SigningSecret     string
	TTL               time.Duration
	ClockSkew         time.Duration
	DependencyTimeout time.Duration
	// LegacyFormat makes the issuer mint the five-segment layout. Verification
	// always accepts both.
	LegacyFormat bool
}

// Session configures validation of identity-provider session tokens.
type Session struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// Database is the Postgres connection. An empty URL selects in-memory stores.
type Database struct {
	URL      string
	MaxConns int32
}

// RedisConfig is the shared counter store. An empty URL selects in-memory counters.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Audit selects and tunes the audit sink.
type Audit struct {
	KafkaBrokers  []string
	KafkaTopic    string
	AsyncBuffer   int
	OpsSampleRate float64
}

type RateLimit struct {
	Disabled bool
}

type Log struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	return fromLookup(os.Getenv)
}

func fromLookup(get func(string) string) (Config, error) {
	p := parser{get: get}

	cfg := Config{
		Server: Server{
			Addr:            p.str("EVENTPASS_ADDR", ":8080"),
			ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Ticket: Ticket{
			SigningSecret:     get("TICKET_SIGNING_SECRET"),
			TTL:               p.duration("TICKET_TTL", DefaultTicketTTL),
			ClockSkew:         p.duration("TICKET_CLOCK_SKEW", DefaultClockSkew),
			DependencyTimeout: p.duration("DEPENDENCY_TIMEOUT", DefaultDependencyTimeout),
			LegacyFormat:      strings.EqualFold(get("TICKET_FORMAT"), "legacy"),
		},
		Session: Session{
			JWTSecret: get("SESSION_JWT_SECRET"),
			Issuer:    p.str("SESSION_JWT_ISSUER", "eventpass-identity"),
			Audience:  p.str("SESSION_JWT_AUDIENCE", "eventpass"),
		},
		Database: Database{
			URL:      get("DATABASE_URL"),
			MaxConns: int32(p.integer("DATABASE_MAX_CONNS", 10)),
		},
		Redis: RedisConfig{
			URL:          get("REDIS_URL"),
			PoolSize:     p.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: p.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  p.duration("REDIS_DIAL_TIMEOUT", 2*time.Second),
			ReadTimeout:  p.duration("REDIS_READ_TIMEOUT", 500*time.Millisecond),
			WriteTimeout: p.duration("REDIS_WRITE_TIMEOUT", 500*time.Millisecond),
		},
		Audit: Audit{
			KafkaBrokers:  p.list("AUDIT_KAFKA_BROKERS"),
			KafkaTopic:    p.str("AUDIT_KAFKA_TOPIC", "eventpass.checkin.audit"),
			AsyncBuffer:   p.integer("AUDIT_ASYNC_BUFFER", 1024),
			OpsSampleRate: p.float("AUDIT_OPS_SAMPLE_RATE", 1),
		},
		RateLimit: RateLimit{
			Disabled: p.boolean("RATE_LIMIT_DISABLED", false),
		},
		Log: Log{
			Level:  p.str("LOG_LEVEL", "info"),
			Format: p.str("LOG_FORMAT", "json"),
		},
	}

	if p.err != nil {
		return Config{}, p.err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	if c.Ticket.TTL < 2*time.Second {
		return fmt.Errorf("TICKET_TTL must be at least 2s, got %s", c.Ticket.TTL)
	}
	if c.Ticket.ClockSkew < 0 || c.Ticket.ClockSkew > time.Minute {
		return fmt.Errorf("TICKET_CLOCK_SKEW must be between 0 and 1m, got %s", c.Ticket.ClockSkew)
	}
	if c.Ticket.DependencyTimeout <= 0 {
		return fmt.Errorf("DEPENDENCY_TIMEOUT must be positive, got %s", c.Ticket.DependencyTimeout)
	}
	if c.Audit.OpsSampleRate < 0 || c.Audit.OpsSampleRate > 1 {
		return fmt.Errorf("AUDIT_OPS_SAMPLE_RATE must be within [0,1], got %v", c.Audit.OpsSampleRate)
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.KafkaTopic == "" {
		return fmt.Errorf("AUDIT_KAFKA_TOPIC is required when AUDIT_KAFKA_BROKERS is set")
	}
	return nil
}

// parser records the first malformed variable so FromEnv reports one error.
type parser struct {
	get func(string) string
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) str(key, def string) string {
	if v := p.get(key); v != "" {
		return v
	}
	return def
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := p.get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return d
}

func (p *parser) integer(key string, def int) int {
	v := p.get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *parser) float(key string, def float64) float64 {
	v := p.get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := p.get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *parser) list(key string) []string {
	return platformstrings.SplitList(p.get(key), ",")
}
