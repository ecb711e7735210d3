package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"eventpass/internal/checkin/mocks"
	"eventpass/internal/checkin/models"
	"eventpass/internal/checkin/token"
	id "eventpass/pkg/domain"
	dErrors "eventpass/pkg/domain-errors"
	"eventpass/pkg/platform/audit"
	"eventpass/pkg/platform/sentinel"
	"eventpass/pkg/requestcontext"
)

var testSecret = []byte("door-scanner-test-secret-0123456789")

type IssuerSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	attendance *mocks.MockAttendanceStore
	auditor    *mocks.MockAuditPublisher
	codec      *token.Codec
	issuer     *Issuer
	caller     id.UserID
	now        time.Time
	ctx        context.Context
}

func TestIssuerSuite(t *testing.T) {
	suite.Run(t, new(IssuerSuite))
}

func (s *IssuerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.attendance = mocks.NewMockAttendanceStore(s.ctrl)
	s.auditor = mocks.NewMockAuditPublisher(s.ctrl)

	codec, err := token.NewCodec(testSecret)
	s.Require().NoError(err)
	s.codec = codec

	s.issuer = NewIssuer(s.codec, s.attendance, Config{}, WithAuditor(s.auditor))
	s.caller = id.UserID(uuid.New())
	s.now = time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *IssuerSuite) requireReason(err error, want models.Reason) {
	s.T().Helper()
	s.Require().Error(err)
	got, ok := models.ReasonOf(err)
	s.Require().True(ok, "error carries no reason: %v", err)
	s.Equal(want, got)
	s.Equal(want.Code(), dErrors.CodeOf(err))
}

func (s *IssuerSuite) TestIssueTicket() {
	s.attendance.EXPECT().
		FindByUserAndEvent(gomock.Any(), s.caller, id.EventID("77")).
		Return(&models.Attendance{ID: "4812", EventID: "77", UserID: s.caller}, nil)

	var emitted audit.Event
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, e audit.Event) error {
			emitted = e
			return nil
		})

	issued, err := s.issuer.IssueTicket(s.ctx, s.caller, "77")
	s.Require().NoError(err)
	s.Equal(s.now.Add(DefaultTTL), issued.ExpiresAt)

	ticket, err := s.codec.Verify(issued.Token)
	s.Require().NoError(err)
	s.Equal(models.FormatExtended, ticket.Format)
	s.Equal(id.AttendeeID("4812"), ticket.AttendeeID)
	s.Equal(id.EventID("77"), ticket.EventID)
	s.Equal(s.now.Unix(), ticket.IssuedAt)
	s.Len(strings.Split(issued.Token, "."), 7)

	s.Equal(string(audit.EventTicketIssued), emitted.Action)
	s.Equal(s.caller, emitted.ActorID)
	s.Equal("4812", emitted.Subject)
}

func (s *IssuerSuite) TestReissueYieldsDistinctTickets() {
	s.attendance.EXPECT().
		FindByUserAndEvent(gomock.Any(), s.caller, id.EventID("77")).
		Return(&models.Attendance{ID: "4812", EventID: "77", UserID: s.caller}, nil).
		Times(2)
	s.auditor.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	first, err := s.issuer.IssueTicket(s.ctx, s.caller, "77")
	s.Require().NoError(err)
	second, err := s.issuer.IssueTicket(s.ctx, s.caller, "77")
	s.Require().NoError(err)
	s.NotEqual(first.Token, second.Token, "nonce must differ")
}

func (s *IssuerSuite) TestLegacyFormat() {
	issuer := NewIssuer(s.codec, s.attendance, Config{LegacyFormat: true, TTL: 20 * time.Second})
	s.attendance.EXPECT().
		FindByUserAndEvent(gomock.Any(), s.caller, id.EventID("77")).
		Return(&models.Attendance{ID: "4812", EventID: "77", UserID: s.caller}, nil)

	issued, err := issuer.IssueTicket(s.ctx, s.caller, "77")
	s.Require().NoError(err)
	s.Len(strings.Split(issued.Token, "."), 5)
	s.True(strings.HasPrefix(issued.Token, "v1.4812.77."))
	s.Equal(s.now.Add(20*time.Second), issued.ExpiresAt)
}

func (s *IssuerSuite) TestRejections() {
	s.Run("unauthenticated caller", func() {
		_, err := s.issuer.IssueTicket(s.ctx, id.UserID{}, "77")
		s.requireReason(err, models.ReasonUnauthorized)
	})

	s.Run("missing secret", func() {
		issuer := NewIssuer(nil, s.attendance, Config{})
		_, err := issuer.IssueTicket(s.ctx, s.caller, "77")
		s.requireReason(err, models.ReasonServerNotConfigured)
	})

	s.Run("missing event id", func() {
		_, err := s.issuer.IssueTicket(s.ctx, s.caller, "")
		s.requireReason(err, models.ReasonMissingEventID)
	})

	s.Run("invalid event id", func() {
		for _, raw := range []string{"abc", "07", "-1", "77.1", "not-a-uuid-at-all"} {
			_, err := s.issuer.IssueTicket(s.ctx, s.caller, raw)
			s.requireReason(err, models.ReasonInvalidEventID)
		}
	})

	s.Run("no reservation", func() {
		s.attendance.EXPECT().
			FindByUserAndEvent(gomock.Any(), s.caller, id.EventID("77")).
			Return(nil, sentinel.ErrNotFound)
		_, err := s.issuer.IssueTicket(s.ctx, s.caller, "77")
		s.requireReason(err, models.ReasonNotAttending)
	})

	s.Run("datastore failure", func() {
		cause := errors.New("connection refused")
		s.attendance.EXPECT().
			FindByUserAndEvent(gomock.Any(), s.caller, id.EventID("77")).
			Return(nil, cause)
		_, err := s.issuer.IssueTicket(s.ctx, s.caller, "77")
		s.requireReason(err, models.ReasonDBError)
		s.ErrorIs(err, cause)
	})
}

func (s *IssuerSuite) TestLookupIsBoundedByTimeout() {
	issuer := NewIssuer(s.codec, s.attendance, Config{DependencyTimeout: 20 * time.Millisecond})
	s.attendance.EXPECT().
		FindByUserAndEvent(gomock.Any(), s.caller, id.EventID("77")).
		DoAndReturn(func(ctx context.Context, _ id.UserID, _ id.EventID) (*models.Attendance, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	_, err := issuer.IssueTicket(s.ctx, s.caller, "77")
	s.requireReason(err, models.ReasonDBError)
	s.ErrorIs(err, context.DeadlineExceeded)
}
