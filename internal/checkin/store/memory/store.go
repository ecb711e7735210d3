// Package memory is an in-process implementation of the check-in stores for
// tests and demo deployments without Postgres.
package memory

import (
	"context"
	"sync"
	"time"

	"eventpass/internal/checkin/models"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/sentinel"
)

type profile struct {
	displayName string
	scope       models.OperatorScope
}

type bindingKey struct {
	attendee id.AttendeeID
	event    id.EventID
}

// Store holds profiles, events and attendance bindings. Its mutex plays the
// role of the database's row lock for the conditional check-in update.
type Store struct {
	mu          sync.RWMutex
	profiles    map[id.UserID]profile
	events      map[id.EventID]models.Event
	attendances map[bindingKey]*models.Attendance
}

func New() *Store {
	return &Store{
		profiles:    make(map[id.UserID]profile),
		events:      make(map[id.EventID]models.Event),
		attendances: make(map[bindingKey]*models.Attendance),
	}
}

// PutProfile creates or replaces a user profile.
func (s *Store) PutProfile(userID id.UserID, displayName string, role models.Role, club id.ClubID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID] = profile{displayName: displayName, scope: models.OperatorScope{Role: role, ClubID: club}}
}

// PutEvent creates or replaces an event.
func (s *Store) PutEvent(event models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = event
}

// PutAttendance creates or replaces a reservation binding.
func (s *Store) PutAttendance(a models.Attendance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.attendances[bindingKey{a.ID, a.EventID}] = &cp
}

func (s *Store) FindByUserAndEvent(ctx context.Context, userID id.UserID, eventID id.EventID) (*models.Attendance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, a := range s.attendances {
		if k.event == eventID && a.UserID == userID {
			return s.view(a), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *Store) FindByIDAndEvent(ctx context.Context, attendeeID id.AttendeeID, eventID id.EventID) (*models.Attendance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attendances[bindingKey{attendeeID, eventID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.view(a), nil
}

func (s *Store) MarkCheckedIn(ctx context.Context, attendeeID id.AttendeeID, eventID id.EventID, at time.Time, by id.UserID) (*models.Attendance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attendances[bindingKey{attendeeID, eventID}]
	if !ok || a.CheckedIn {
		return nil, sentinel.ErrAlreadyUsed
	}
	stamp := at.UTC()
	operator := by
	a.CheckedIn = true
	a.CheckedInAt = &stamp
	a.CheckedInBy = &operator
	return s.view(a), nil
}

func (s *Store) OperatorScope(ctx context.Context, userID id.UserID) (models.OperatorScope, error) {
	if err := ctx.Err(); err != nil {
		return models.OperatorScope{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return models.OperatorScope{}, sentinel.ErrNotFound
	}
	return p.scope, nil
}

func (s *Store) Event(ctx context.Context, eventID id.EventID) (models.Event, error) {
	if err := ctx.Err(); err != nil {
		return models.Event{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[eventID]
	if !ok {
		return models.Event{}, sentinel.ErrNotFound
	}
	return e, nil
}

// view returns a copy with the attendee's display name filled in.
// Callers must hold s.mu.
func (s *Store) view(a *models.Attendance) *models.Attendance {
	cp := *a
	if a.CheckedInAt != nil {
		t := *a.CheckedInAt
		cp.CheckedInAt = &t
	}
	if a.CheckedInBy != nil {
		u := *a.CheckedInBy
		cp.CheckedInBy = &u
	}
	if p, ok := s.profiles[a.UserID]; ok && cp.DisplayName == "" {
		cp.DisplayName = p.displayName
	}
	return &cp
}
