//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"eventpass/internal/checkin/models"
	"eventpass/internal/checkin/store/postgres"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/sentinel"
	"eventpass/pkg/platform/tx"
	"eventpass/pkg/testutil/containers"
)

type StoreSuite struct {
	suite.Suite
	pg       *containers.PostgresContainer
	store    *postgres.Store
	attendee id.UserID
	operator id.UserID
}

func TestStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = postgres.New(s.pg.Pool)
}

func (s *StoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.pg.Truncate(ctx))

	s.attendee = id.UserID(uuid.New())
	s.operator = id.UserID(uuid.New())

	_, err := s.pg.Pool.Exec(ctx, `INSERT INTO clubs (id, name) VALUES ('10', 'Chess Club')`)
	s.Require().NoError(err)
	_, err = s.pg.Pool.Exec(ctx, `INSERT INTO profiles (id, display_name, role, club_id) VALUES
		($1, 'Ada Lovelace', 'member', NULL),
		($2, 'Door Volunteer', 'club_volunteer', '10')`,
		s.attendee.String(), s.operator.String())
	s.Require().NoError(err)
	_, err = s.pg.Pool.Exec(ctx, `INSERT INTO events (id, title, club_id) VALUES ('77', 'Opening Night', '10'), ('78', 'Open Day', NULL)`)
	s.Require().NoError(err)
	_, err = s.pg.Pool.Exec(ctx, `INSERT INTO event_attendees (id, event_id, user_id) VALUES ('4812', '77', $1)`, s.attendee.String())
	s.Require().NoError(err)
}

func (s *StoreSuite) TestLookups() {
	ctx := context.Background()

	a, err := s.store.FindByUserAndEvent(ctx, s.attendee, "77")
	s.Require().NoError(err)
	s.Equal(id.AttendeeID("4812"), a.ID)
	s.Equal("Ada Lovelace", a.DisplayName)
	s.False(a.CheckedIn)
	s.Nil(a.CheckedInAt)

	_, err = s.store.FindByIDAndEvent(ctx, "4812", "78")
	s.ErrorIs(err, sentinel.ErrNotFound)

	scope, err := s.store.OperatorScope(ctx, s.operator)
	s.Require().NoError(err)
	s.Equal(models.RoleClubVolunteer, scope.Role)
	s.Equal(id.ClubID("10"), scope.ClubID)

	_, err = s.store.OperatorScope(ctx, id.UserID(uuid.New()))
	s.ErrorIs(err, sentinel.ErrNotFound)

	ev, err := s.store.Event(ctx, "78")
	s.Require().NoError(err)
	s.Empty(ev.ClubID)

	_, err = s.store.Event(ctx, "999")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestMarkCheckedInOnce() {
	ctx := context.Background()
	at := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)

	a, err := s.store.MarkCheckedIn(ctx, "4812", "77", at, s.operator)
	s.Require().NoError(err)
	s.True(a.CheckedIn)
	s.Equal("Ada Lovelace", a.DisplayName)
	s.True(at.Equal(*a.CheckedInAt))
	s.Equal(s.operator, *a.CheckedInBy)

	_, err = s.store.MarkCheckedIn(ctx, "4812", "77", at.Add(time.Hour), s.operator)
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	stored, err := s.store.FindByIDAndEvent(ctx, "4812", "77")
	s.Require().NoError(err)
	s.True(at.Equal(*stored.CheckedInAt))
}

func (s *StoreSuite) TestMarkCheckedInJoinsCallerTransaction() {
	ctx := context.Background()
	at := time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)

	pgTx, err := s.pg.Pool.Begin(ctx)
	s.Require().NoError(err)
	txCtx := tx.WithTx(ctx, pgTx)

	a, err := s.store.MarkCheckedIn(txCtx, "4812", "77", at, s.operator)
	s.Require().NoError(err)
	s.True(a.CheckedIn)

	inside, err := s.store.FindByIDAndEvent(txCtx, "4812", "77")
	s.Require().NoError(err)
	s.True(inside.CheckedIn)

	s.Require().NoError(pgTx.Rollback(ctx))

	after, err := s.store.FindByIDAndEvent(ctx, "4812", "77")
	s.Require().NoError(err)
	s.False(after.CheckedIn)
}

// TestConcurrentMarkCheckedIn verifies the conditional update admits exactly
// one of many simultaneous scans.
func (s *StoreSuite) TestConcurrentMarkCheckedIn() {
	ctx := context.Background()
	const goroutines = 25

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		losers  atomic.Int32
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.MarkCheckedIn(ctx, "4812", "77", time.Now(), s.operator)
			switch {
			case err == nil:
				winners.Add(1)
			case err == sentinel.ErrAlreadyUsed:
				losers.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), winners.Load())
	s.Equal(int32(goroutines-1), losers.Load())
}
