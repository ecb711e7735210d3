package models

import (
	"time"

	id "eventpass/pkg/domain"
)

// Role is the operator's role as stored on their profile. Unknown values are
// preserved so the authorizer can reject them explicitly.
type Role string

const (
	RoleAdmin         Role = "admin"
	RoleClubAdmin     Role = "club_admin"
	RoleClubVolunteer Role = "club_volunteer"
	RoleViewer        Role = "viewer"
)

// IsClubScoped reports whether the role may check in attendees for its own club.
func (r Role) IsClubScoped() bool {
	return r == RoleClubAdmin || r == RoleClubVolunteer
}

func (r Role) String() string { return string(r) }

// OperatorScope is the role and optional club of the operator scanning tickets.
// It is read fresh for every verification.
type OperatorScope struct {
	Role   Role
	ClubID id.ClubID // empty when the operator belongs to no club
}

// Event is the slice of an event the check-in flow needs: its owning club.
type Event struct {
	ID     id.EventID
	ClubID id.ClubID // empty for events without a club
}

// Attendance is a reservation binding a user to an event. The only mutation the
// check-in flow performs is the conditional false->true transition of CheckedIn.
type Attendance struct {
	ID          id.AttendeeID
	EventID     id.EventID
	UserID      id.UserID
	DisplayName string
	CheckedIn   bool
	CheckedInAt *time.Time
	CheckedInBy *id.UserID
}

// IssuedTicket is what the issuer hands back to the attendee's device.
type IssuedTicket struct {
	Token     string
	ExpiresAt time.Time
}

// Outcome is the successful end state of a verification.
type Outcome string

const (
	OutcomeCheckedIn        Outcome = "checked_in"
	OutcomeAlreadyCheckedIn Outcome = "already_checked_in"
)

// CheckInResult describes a completed verification. DetectedAtWrite is set when
// an AlreadyCheckedIn outcome was discovered by losing the conditional update
// rather than by the pre-write read.
type CheckInResult struct {
	Outcome         Outcome
	AttendeeID      id.AttendeeID
	AttendeeName    string
	CheckedInAt     time.Time
	DetectedAtWrite bool
}
