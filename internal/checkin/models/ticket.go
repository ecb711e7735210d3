package models

import (
	"time"

	id "eventpass/pkg/domain"
)

// TicketFormat distinguishes the two coexisting wire layouts.
type TicketFormat int

const (
	// FormatLegacy is version.attendeeId.eventId.expiresAt.sig
	FormatLegacy TicketFormat = iota + 1
	// FormatExtended is version.attendeeId.eventId.issuedAt.expiresAt.nonce.sig
	FormatExtended
)

func (f TicketFormat) String() string {
	switch f {
	case FormatLegacy:
		return "legacy"
	case FormatExtended:
		return "extended"
	default:
		return "unknown"
	}
}

// Version tags. Each tag is bound to exactly one format.
const (
	VersionLegacy   = "v1"
	VersionExtended = "v2"
)

// Ticket is the decoded content of a check-in ticket. IssuedAt and Nonce are
// only meaningful for FormatExtended. Timestamps are unix seconds, kept as
// integers because they are part of the signed payload.
type Ticket struct {
	Format     TicketFormat
	AttendeeID id.AttendeeID
	EventID    id.EventID
	IssuedAt   int64
	ExpiresAt  int64
	Nonce      string
}

// Version returns the wire version tag for the ticket's format.
func (t Ticket) Version() string {
	if t.Format == FormatExtended {
		return VersionExtended
	}
	return VersionLegacy
}

// ExpiresTime returns ExpiresAt as a time.Time.
func (t Ticket) ExpiresTime() time.Time { return time.Unix(t.ExpiresAt, 0).UTC() }

// Expired reports whether the ticket is past its expiry at now, allowing skew
// of clock drift between issuer and verifier: a ticket whose expiresAt equals
// now-skew is still accepted, one second earlier is not.
func (t Ticket) Expired(now time.Time, skew time.Duration) bool {
	return now.Unix() > t.ExpiresAt+int64(skew/time.Second)
}
