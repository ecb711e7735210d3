package models

import (
	"errors"

	dErrors "eventpass/pkg/domain-errors"
)

// Reason is the closed set of wire tags a check-in request can be rejected with.
// It implements error so it can ride inside a dErrors.Error chain and be
// recovered with ReasonOf.
type Reason string

const (
	ReasonUnauthorized        Reason = "unauthorized"
	ReasonForbidden           Reason = "forbidden"
	ReasonMissingToken        Reason = "missing_token"
	ReasonInvalidJSON         Reason = "invalid_json"
	ReasonInvalidToken        Reason = "invalid_token"
	ReasonInvalidSignature    Reason = "invalid_signature"
	ReasonTokenExpired        Reason = "token_expired"
	ReasonMissingEventID      Reason = "missing_eventId"
	ReasonInvalidEventID      Reason = "invalid_eventId"
	ReasonEventNotFound       Reason = "event_not_found"
	ReasonAttendeeNotFound    Reason = "attendee_not_found"
	ReasonNotAttending        Reason = "not_attending"
	ReasonProfileLookupFailed Reason = "profile_lookup_failed"
	ReasonEventLookupFailed   Reason = "event_lookup_failed"
	ReasonAttendeeLookup      Reason = "attendee_lookup_failed"
	ReasonCheckinFailed       Reason = "checkin_failed"
	ReasonIssueFailed         Reason = "issue_failed"
	ReasonServerNotConfigured Reason = "server_not_configured"
	ReasonDBError             Reason = "db_error"
)

func (r Reason) Error() string { return string(r) }

// Code maps the reason onto the shared error taxonomy, which fixes its HTTP status.
func (r Reason) Code() dErrors.Code {
	switch r {
	case ReasonUnauthorized:
		return dErrors.CodeUnauthorized
	case ReasonForbidden:
		return dErrors.CodeForbidden
	case ReasonMissingToken, ReasonInvalidJSON, ReasonInvalidToken, ReasonInvalidSignature,
		ReasonTokenExpired, ReasonMissingEventID, ReasonInvalidEventID:
		return dErrors.CodeBadRequest
	case ReasonEventNotFound, ReasonAttendeeNotFound, ReasonNotAttending:
		return dErrors.CodeNotFound
	default:
		return dErrors.CodeInternal
	}
}

// Reject builds a domain error carrying r.
func (r Reason) Reject(msg string) error {
	return dErrors.Wrap(r, r.Code(), msg)
}

// RejectCause builds a domain error carrying r, keeping cause for logging.
func (r Reason) RejectCause(cause error, msg string) error {
	return dErrors.Wrap(errors.Join(r, cause), r.Code(), msg)
}

// ReasonOf extracts the rejection reason from err.
func ReasonOf(err error) (Reason, bool) {
	var r Reason
	if errors.As(err, &r) {
		return r, true
	}
	return "", false
}
