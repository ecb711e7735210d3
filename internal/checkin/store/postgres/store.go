// Package postgres persists attendance bindings, profiles and events in
// PostgreSQL via pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventpass/internal/checkin/models"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/sentinel"
	txcontext "eventpass/pkg/platform/tx"
)

// Store implements ports.AttendanceStore and ports.ScopeStore.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx, ok := txcontext.From(ctx); ok {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

const attendanceColumns = `
	a.id, a.event_id, a.user_id, COALESCE(p.display_name, ''),
	a.checked_in, a.checked_in_at, a.checked_in_by`

func (s *Store) FindByUserAndEvent(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Attendance, error) {
	row := s.queryRow(ctx, `
		SELECT`+attendanceColumns+`
		FROM event_attendees a
		LEFT JOIN profiles p ON p.id = a.user_id
		WHERE a.user_id = $1 AND a.event_id = $2`,
		userID.String(), eventID.String())
	a, err := scanAttendance(row)
	if err != nil {
		return nil, fmt.Errorf("find attendance by user: %w", err)
	}
	return a, nil
}

func (s *Store) FindByIDAndEvent(ctx context.Context, attendeeID id.AttendeeID, eventID id.EventID) (*models.Attendance, error) {
	row := s.queryRow(ctx, `
		SELECT`+attendanceColumns+`
		FROM event_attendees a
		LEFT JOIN profiles p ON p.id = a.user_id
		WHERE a.id = $1 AND a.event_id = $2`,
		attendeeID.String(), eventID.String())
	a, err := scanAttendance(row)
	if err != nil {
		return nil, fmt.Errorf("find attendance by id: %w", err)
	}
	return a, nil
}

// MarkCheckedIn performs the single conditional update that admits an
// attendee. Zero affected rows means another scan won.
func (s *Store) MarkCheckedIn(ctx context.Context, attendeeID id.AttendeeID, eventID id.EventID, at time.Time, by id.UserID) (*models.Attendance, error) {
	row := s.queryRow(ctx, `
		WITH updated AS (
			UPDATE event_attendees
			SET checked_in = TRUE, checked_in_at = $3, checked_in_by = $4
			WHERE id = $1 AND event_id = $2 AND checked_in = FALSE
			RETURNING id, event_id, user_id, checked_in, checked_in_at, checked_in_by
		)
		SELECT`+attendanceColumns+`
		FROM updated a
		LEFT JOIN profiles p ON p.id = a.user_id`,
		attendeeID.String(), eventID.String(), at.UTC(), by.String())
	a, err := scanAttendance(row)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, sentinel.ErrAlreadyUsed
	}
	if err != nil {
		return nil, fmt.Errorf("mark checked in: %w", err)
	}
	return a, nil
}

func (s *Store) OperatorScope(ctx context.Context, userID id.UserID) (models.OperatorScope, error) {
	var (
		role string
		club *string
	)
	err := s.queryRow(ctx, `SELECT role, club_id FROM profiles WHERE id = $1`, userID.String()).Scan(&role, &club)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.OperatorScope{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.OperatorScope{}, fmt.Errorf("load operator scope: %w", err)
	}
	return models.OperatorScope{Role: models.Role(role), ClubID: id.ClubID(deref(club))}, nil
}

func (s *Store) Event(ctx context.Context, eventID id.EventID) (models.Event, error) {
	var club *string
	err := s.queryRow(ctx, `SELECT club_id FROM events WHERE id = $1`, eventID.String()).Scan(&club)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Event{}, sentinel.ErrNotFound
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("load event: %w", err)
	}
	return models.Event{ID: eventID, ClubID: id.ClubID(deref(club))}, nil
}

func scanAttendance(row pgx.Row) (*models.Attendance, error) {
	var (
		a         models.Attendance
		attendee  string
		event     string
		user      string
		checkedAt *time.Time
		checkedBy *string
	)
	err := row.Scan(&attendee, &event, &user, &a.DisplayName, &a.CheckedIn, &checkedAt, &checkedBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.ID = id.AttendeeID(attendee)
	a.EventID = id.EventID(event)
	userID, err := id.ParseUserID(user)
	if err != nil {
		return nil, fmt.Errorf("stored user id %q: %w", user, err)
	}
	a.UserID = userID
	if checkedAt != nil {
		t := checkedAt.UTC()
		a.CheckedInAt = &t
	}
	if checkedBy != nil {
		by, err := id.ParseUserID(*checkedBy)
		if err != nil {
			return nil, fmt.Errorf("stored operator id %q: %w", *checkedBy, err)
		}
		a.CheckedInBy = &by
	}
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
