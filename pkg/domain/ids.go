package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "eventpass/pkg/domain-errors"
)

// UserID identifies an authenticated account (attendee or operator). It is
// always a non-nil UUID issued by the identity provider.
type UserID uuid.UUID

// ParseUserID validates a user id at a trust boundary.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user ID", s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

func (id UserID) String() string { return uuid.UUID(id).String() }

// IsNil reports whether the id is the zero value.
func (id UserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return u, nil
}

// EventID, AttendeeID and ClubID are opaque datastore references. A reference is
// either a positive decimal number or a canonical 36-character UUID; the text is
// preserved exactly as given because it is part of signed ticket payloads.
type (
	EventID    string
	AttendeeID string
	ClubID     string
)

func (id EventID) String() string    { return string(id) }
func (id AttendeeID) String() string { return string(id) }
func (id ClubID) String() string     { return string(id) }

// ParseEventID validates an event reference.
func ParseEventID(s string) (EventID, error) {
	ref, err := parseRef("event ID", s)
	return EventID(ref), err
}

// ParseAttendeeID validates a reservation (attendance binding) reference.
func ParseAttendeeID(s string) (AttendeeID, error) {
	ref, err := parseRef("attendee ID", s)
	return AttendeeID(ref), err
}

// ParseClubID validates a club reference.
func ParseClubID(s string) (ClubID, error) {
	ref, err := parseRef("club ID", s)
	return ClubID(ref), err
}

// maxNumericRefLen keeps numeric references inside int64.
const maxNumericRefLen = 18

func parseRef(kind, s string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if IsNumericRef(s) || IsUUIDRef(s) {
		return s, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
}

// IsNumericRef reports whether s is a positive decimal without sign or leading
// zeros.
func IsNumericRef(s string) bool {
	if len(s) == 0 || len(s) > maxNumericRefLen || s[0] == '0' {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// IsUUIDRef reports whether s is a non-nil UUID in the hyphenated 36-character
// form. Braced, URN and compact forms are rejected.
func IsUUIDRef(s string) bool {
	if len(s) != 36 || strings.Count(s, "-") != 4 {
		return false
	}
	u, err := uuid.Parse(s)
	return err == nil && u != uuid.Nil
}
