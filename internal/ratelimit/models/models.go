package models

import (
	"fmt"
	"time"
)

// EndpointClass groups endpoints that share a rate limit.
type EndpointClass string

const (
	// ClassTicketIssue covers GET /checkin/ticket. Attendee devices refresh their
	// ticket every few seconds while the QR code is on screen.
	ClassTicketIssue EndpointClass = "ticket_issue"
	// ClassCheckinVerify covers POST /checkin/verify. A door often has several
	// scanners behind one network, so the IP limit is generous.
	ClassCheckinVerify EndpointClass = "checkin_verify"
)

// IsValid checks if the endpoint class is one of the supported enum values.
func (c EndpointClass) IsValid() bool {
	switch c {
	case ClassTicketIssue, ClassCheckinVerify:
		return true
	}
	return false
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed    bool      `json:"allowed"`
	Limit      int       `json:"limit"`
	Remaining  int       `json:"remaining"`
	ResetAt    time.Time `json:"reset_at"`
	RetryAfter int       `json:"retry_after,omitempty"` // seconds, only set when not allowed
}

// KeyPrefix names the dimension a counter is keyed on.
type KeyPrefix string

const (
	KeyPrefixIP   KeyPrefix = "ip"
	KeyPrefixUser KeyPrefix = "user"
)

// RateLimitKey identifies one fixed-window counter.
type RateLimitKey struct {
	Prefix      KeyPrefix
	Identifier  string
	Class       EndpointClass
	WindowStart int64
}

// NewRateLimitKey builds a key for the window starting at windowStart (unix
// seconds). The identifier is sanitized so it cannot forge adjacent segments.
func NewRateLimitKey(prefix KeyPrefix, identifier string, class EndpointClass, windowStart int64) RateLimitKey {
	return RateLimitKey{
		Prefix:      prefix,
		Identifier:  SanitizeKeySegment(identifier),
		Class:       class,
		WindowStart: windowStart,
	}
}

func (k RateLimitKey) String() string {
	return fmt.Sprintf("rl:%s:%s:%s:%d", k.Prefix, k.Identifier, k.Class, k.WindowStart)
}
