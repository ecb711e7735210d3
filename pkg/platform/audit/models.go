package audit

import (
	"context"
	"time"

	id "eventpass/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies and sampling.
type EventCategory string

const (
	// CategoryCompliance covers state changes that must be retained: a completed
	// check-in.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers suspicious or refused activity: forged, expired or
	// out-of-scope scans and rate-limit hits.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity that may be sampled: ticket
	// minting and benign duplicate scans.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	Action    string
	// ActorID is the authenticated caller: the attendee for ticket issuance, the
	// operator for scans.
	ActorID id.UserID
	// Subject is the attendance binding the action concerns, when known.
	Subject  string
	EventID  string
	Decision string
	Reason   string

	RequestID string
	Device    string
	// IPPrefix is the anonymised client network, never the full address.
	IPPrefix string
}

type AuditEvent string

const (
	EventTicketIssued      AuditEvent = "ticket_issued"
	EventCheckInRecorded   AuditEvent = "checkin_recorded"
	EventCheckInDuplicate  AuditEvent = "checkin_duplicate"
	EventCheckInRejected   AuditEvent = "checkin_rejected"
	EventRateLimitExceeded AuditEvent = "rate_limit_exceeded"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventCheckInRecorded: CategoryCompliance,

	EventCheckInRejected:   CategorySecurity,
	EventRateLimitExceeded: CategorySecurity,

	EventTicketIssued:     CategoryOperations,
	EventCheckInDuplicate: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}
