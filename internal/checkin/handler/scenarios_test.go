package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventpass/internal/checkin/handler"
	"eventpass/internal/checkin/models"
	"eventpass/internal/checkin/service"
	"eventpass/internal/checkin/store/memory"
	"eventpass/internal/checkin/token"
	"eventpass/internal/session"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/middleware/auth"
	"eventpass/pkg/testutil"
)

const (
	ticketSecret  = "scenario-ticket-secret-0123456789"
	sessionSecret = "scenario-session-secret-0123456789"
)

type world struct {
	store    *memory.Store
	sessions *session.JWTService
	router   http.Handler
	attendee id.UserID
	operator id.UserID
	outsider id.UserID
}

func newWorld(t *testing.T) *world {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := &world{
		store:    memory.New(),
		sessions: session.NewJWTService(sessionSecret, "eventpass-identity", "eventpass"),
		attendee: id.UserID(uuid.New()),
		operator: id.UserID(uuid.New()),
		outsider: id.UserID(uuid.New()),
	}
	w.store.PutProfile(w.attendee, "Ada Lovelace", models.Role("member"), "")
	w.store.PutProfile(w.operator, "Chess Door", models.RoleClubVolunteer, "10")
	w.store.PutProfile(w.outsider, "Go Club Door", models.RoleClubAdmin, "11")
	w.store.PutEvent(models.Event{ID: "77", ClubID: "10"})
	w.store.PutAttendance(models.Attendance{ID: "4812", EventID: "77", UserID: w.attendee})

	codec, err := token.NewCodec([]byte(ticketSecret))
	require.NoError(t, err)
	issuer := service.NewIssuer(codec, w.store, service.Config{}, service.WithLogger(logger))
	verifier := service.NewVerifier(codec, w.store, w.store, service.Config{}, service.WithLogger(logger))

	r := chi.NewRouter()
	handler.New(issuer, verifier, logger).Register(r, handler.Routes{
		Auth: auth.RequireAuth(w.sessions, logger),
	})
	w.router = r
	return w
}

func (w *world) bearer(t *testing.T, user id.UserID) string {
	t.Helper()
	tok, err := w.sessions.GenerateSessionToken(user, false, time.Hour)
	require.NoError(t, err)
	return "Bearer " + tok
}

func (w *world) mint(t *testing.T) string {
	t.Helper()
	req := testutil.NewRequest(t, http.MethodGet, "/checkin/ticket?eventId=77")
	req.Header.Set("Authorization", w.bearer(t, w.attendee))
	rr := testutil.DoRequest(w.router, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := testutil.UnmarshalResponse[struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}](t, rr)
	ticket, _, err := token.Decode(body.Token)
	require.NoError(t, err)
	require.Equal(t, ticket.ExpiresAt, body.ExpiresAt, "expiresAt must be the signed unix seconds")
	return body.Token
}

func (w *world) scan(t *testing.T, operator id.UserID, ticket string) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewJSONRequest(t, http.MethodPost, "/checkin/verify", map[string]string{"token": ticket})
	req.Header.Set("Authorization", w.bearer(t, operator))
	return testutil.DoRequest(w.router, req)
}

func (w *world) binding(t *testing.T) *models.Attendance {
	t.Helper()
	a, err := w.store.FindByIDAndEvent(context.Background(), "4812", "77")
	require.NoError(t, err)
	return a
}

func TestCheckInScenarios(t *testing.T) {
	testutil.Given(t, "an attendee with a reservation and an in-scope operator", func(t *testing.T) {
		w := newWorld(t)
		ticket := w.mint(t)

		testutil.When(t, "the operator scans a fresh ticket", func(t *testing.T) {
			rr := w.scan(t, w.operator, ticket)

			testutil.Then(t, "the attendee is checked in", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "ok", true)
				testutil.AssertJSONContains(t, rr, "attendeeId", "4812")
				testutil.AssertJSONContains(t, rr, "attendeeName", "Ada Lovelace")
				testutil.AssertJSONHasKey(t, rr, "checkedInAt")

				a := w.binding(t)
				assert.True(t, a.CheckedIn)
				require.NotNil(t, a.CheckedInBy)
				assert.Equal(t, w.operator, *a.CheckedInBy)
			})
		})

		testutil.When(t, "the same ticket is scanned again", func(t *testing.T) {
			first := *w.binding(t).CheckedInAt
			rr := w.scan(t, w.operator, ticket)

			testutil.Then(t, "it is reported as a duplicate and nothing changes", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
				testutil.AssertJSONContains(t, rr, "ok", false)
				testutil.AssertJSONContains(t, rr, "error", "already_checked_in")
				testutil.AssertJSONContains(t, rr, "attendeeName", "Ada Lovelace")
				assert.Equal(t, first, *w.binding(t).CheckedInAt)
			})
		})
	})

	testutil.Given(t, "a ticket signed with a different secret", func(t *testing.T) {
		w := newWorld(t)
		other, err := token.NewCodec([]byte("not-the-server-secret"))
		require.NoError(t, err)
		forged, err := other.Encode(models.Ticket{
			Format:     models.FormatLegacy,
			AttendeeID: "4812",
			EventID:    "77",
			ExpiresAt:  time.Now().Add(time.Minute).Unix(),
		})
		require.NoError(t, err)

		testutil.When(t, "the operator scans it", func(t *testing.T) {
			rr := w.scan(t, w.operator, forged)

			testutil.Then(t, "it is rejected as an invalid signature", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, "invalid_signature")
				assert.False(t, w.binding(t).CheckedIn)
			})
		})
	})

	testutil.Given(t, "an operator from another club", func(t *testing.T) {
		w := newWorld(t)
		ticket := w.mint(t)

		testutil.When(t, "they scan a valid ticket", func(t *testing.T) {
			rr := w.scan(t, w.outsider, ticket)

			testutil.Then(t, "the scan is forbidden and the attendee stays unchecked", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
				assert.False(t, w.binding(t).CheckedIn)
			})
		})
	})

	testutil.Given(t, "no session", func(t *testing.T) {
		w := newWorld(t)

		testutil.When(t, "a ticket is requested", func(t *testing.T) {
			rr := testutil.DoRequest(w.router, testutil.NewRequest(t, http.MethodGet, "/checkin/ticket?eventId=77"))

			testutil.Then(t, "the request is unauthorized", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})
		})
	})

	testutil.Given(t, "a user without a reservation", func(t *testing.T) {
		w := newWorld(t)

		testutil.When(t, "they request a ticket", func(t *testing.T) {
			req := testutil.NewRequest(t, http.MethodGet, "/checkin/ticket?eventId=77")
			req.Header.Set("Authorization", w.bearer(t, w.operator))
			rr := testutil.DoRequest(w.router, req)

			testutil.Then(t, "they are told they are not attending", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusNotFound, "not_attending")
			})
		})
	})
}
