// Package ports declares the collaborators the check-in services depend on.
package ports

//go:generate mockgen -source=ports.go -destination=../mocks/ports-mocks.go -package=mocks

import (
	"context"
	"time"

	"eventpass/internal/checkin/models"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/audit"
)

// AttendanceStore reads and conditionally updates reservation bindings.
// Missing rows are reported as sentinel.ErrNotFound; losing the conditional
// update is reported as sentinel.ErrAlreadyUsed.
type AttendanceStore interface {
	FindByUserAndEvent(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Attendance, error)
	FindByIDAndEvent(ctx context.Context, attendeeID id.AttendeeID, eventID id.EventID) (*models.Attendance, error)
	// MarkCheckedIn flips checked_in from false to true for the binding matching
	// both ids, stamping at and by. It never overwrites an existing check-in.
	MarkCheckedIn(ctx context.Context, attendeeID id.AttendeeID, eventID id.EventID, at time.Time, by id.UserID) (*models.Attendance, error)
}

// ScopeStore resolves operator scope and event ownership.
type ScopeStore interface {
	// OperatorScope returns sentinel.ErrNotFound when the user has no profile.
	OperatorScope(ctx context.Context, userID id.UserID) (models.OperatorScope, error)
	// Event returns sentinel.ErrNotFound when the event does not exist.
	Event(ctx context.Context, eventID id.EventID) (models.Event, error)
}

// AuditPublisher receives check-in audit events.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
