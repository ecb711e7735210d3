// Package config holds per-class rate limits.
package config

import (
	"time"

	"eventpass/internal/ratelimit/models"
)

// Limit is a fixed-window allowance.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// Config maps endpoint classes to their IP and user limits. A class without a
// configured limit is denied.
type Config struct {
	IPLimits   map[models.EndpointClass]Limit
	UserLimits map[models.EndpointClass]Limit
}

// DefaultConfig returns limits sized for a door with several scanners behind
// one NAT and attendee devices refreshing tickets before expiry.
func DefaultConfig() *Config {
	return &Config{
		IPLimits: map[models.EndpointClass]Limit{
			models.ClassTicketIssue:   {RequestsPerWindow: 120, Window: time.Minute},
			models.ClassCheckinVerify: {RequestsPerWindow: 600, Window: time.Minute},
		},
		UserLimits: map[models.EndpointClass]Limit{
			models.ClassTicketIssue:   {RequestsPerWindow: 30, Window: time.Minute},
			models.ClassCheckinVerify: {RequestsPerWindow: 120, Window: time.Minute},
		},
	}
}

// GetIPLimit returns the per-network-origin limit for class.
func (c *Config) GetIPLimit(class models.EndpointClass) (int, time.Duration, bool) {
	return lookup(c.IPLimits, class)
}

// GetUserLimit returns the per-identity limit for class.
func (c *Config) GetUserLimit(class models.EndpointClass) (int, time.Duration, bool) {
	return lookup(c.UserLimits, class)
}

func lookup(limits map[models.EndpointClass]Limit, class models.EndpointClass) (int, time.Duration, bool) {
	l, ok := limits[class]
	if !ok || l.RequestsPerWindow <= 0 || l.Window < time.Second {
		return 0, 0, false
	}
	return l.RequestsPerWindow, l.Window, true
}
