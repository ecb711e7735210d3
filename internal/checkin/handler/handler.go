package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"eventpass/internal/checkin/models"
	"eventpass/internal/checkin/token"
	id "eventpass/pkg/domain"
	dErrors "eventpass/pkg/domain-errors"
	"eventpass/pkg/platform/httputil"
	"eventpass/pkg/requestcontext"
)

// Issuer mints tickets for the authenticated attendee.
type Issuer interface {
	IssueTicket(ctx context.Context, caller id.UserID, eventIDRaw string) (models.IssuedTicket, error)
}

// Verifier validates a scanned ticket and records the check-in.
type Verifier interface {
	VerifyAndCheckIn(ctx context.Context, operator id.UserID, raw string) (models.CheckInResult, error)
}

// verifyBodyLimit bounds the verify request body; a ticket is at most
// token.MaxLength bytes so anything larger is not a ticket.
const verifyBodyLimit = httputil.DefaultMaxBodyBytes

// Middleware is applied to one route group.
type Middleware = func(http.Handler) http.Handler

// Routes carries the per-route middleware the server wires in. Nil entries
// are skipped. Each route runs its origin limit, then Auth, then its identity
// limit, so requests without a session are still counted by network origin.
type Routes struct {
	Auth              Middleware
	IssueOriginLimit  Middleware
	IssueLimit        Middleware
	VerifyOriginLimit Middleware
	VerifyLimit       Middleware
}

// Handler serves the ticket issue and verify endpoints.
type Handler struct {
	issuer   Issuer
	verifier Verifier
	logger   *slog.Logger
}

func New(issuer Issuer, verifier Verifier, logger *slog.Logger) *Handler {
	return &Handler{issuer: issuer, verifier: verifier, logger: logger}
}

// Register mounts the check-in routes on r.
func (h *Handler) Register(r chi.Router, routes Routes) {
	r.Route("/checkin", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			use(r, routes.IssueOriginLimit)
			use(r, routes.Auth)
			use(r, routes.IssueLimit)
			r.Get("/ticket", h.HandleIssueTicket)
		})
		r.Group(func(r chi.Router) {
			use(r, routes.VerifyOriginLimit)
			use(r, routes.Auth)
			use(r, routes.VerifyLimit)
			r.Post("/verify", h.HandleVerify)
		})
	})
}

func use(r chi.Router, mw Middleware) {
	if mw != nil {
		r.Use(mw)
	}
}

// issueResponse carries expiresAt as unix seconds, the same value signed
// into the ticket.
type issueResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// HandleIssueTicket serves GET /checkin/ticket?eventId=...
func (h *Handler) HandleIssueTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller := requestcontext.UserID(ctx)

	issued, err := h.issuer.IssueTicket(ctx, caller, r.URL.Query().Get("eventId"))
	if err != nil {
		h.writeReason(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	httputil.WriteJSON(w, http.StatusOK, issueResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt.Unix()})
}

type verifyRequest struct {
	Token *string `json:"token"`
}

type verifyResponse struct {
	OK           bool       `json:"ok"`
	Error        string     `json:"error,omitempty"`
	AttendeeID   string     `json:"attendeeId"`
	CheckedInAt  *time.Time `json:"checkedInAt,omitempty"`
	AttendeeName string     `json:"attendeeName"`
}

// HandleVerify serves POST /checkin/verify with body {"token": "..."}.
func (h *Handler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	operator := requestcontext.UserID(ctx)
	if operator.IsNil() {
		httputil.WriteErrorTag(w, http.StatusUnauthorized, string(models.ReasonUnauthorized))
		return
	}

	var req verifyRequest
	if err := httputil.DecodeJSON(w, r, &req, verifyBodyLimit); err != nil {
		h.logger.InfoContext(ctx, "invalid verify request",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteErrorTag(w, http.StatusBadRequest, string(models.ReasonInvalidJSON))
		return
	}
	if req.Token == nil || strings.TrimSpace(*req.Token) == "" {
		httputil.WriteErrorTag(w, http.StatusBadRequest, string(models.ReasonMissingToken))
		return
	}
	raw := strings.TrimSpace(*req.Token)
	if len(raw) > token.MaxLength {
		httputil.WriteErrorTag(w, http.StatusBadRequest, string(models.ReasonInvalidToken))
		return
	}

	result, err := h.verifier.VerifyAndCheckIn(ctx, operator, raw)
	if err != nil {
		h.writeReason(w, r, err)
		return
	}

	switch result.Outcome {
	case models.OutcomeCheckedIn:
		at := result.CheckedInAt.UTC()
		httputil.WriteJSON(w, http.StatusOK, verifyResponse{
			OK:           true,
			AttendeeID:   result.AttendeeID.String(),
			CheckedInAt:  &at,
			AttendeeName: result.AttendeeName,
		})
	default:
		status := http.StatusOK
		if result.DetectedAtWrite {
			status = http.StatusConflict
		}
		httputil.WriteJSON(w, status, verifyResponse{
			OK:           false,
			Error:        string(models.OutcomeAlreadyCheckedIn),
			AttendeeID:   result.AttendeeID.String(),
			AttendeeName: result.AttendeeName,
		})
	}
}

// writeReason renders a service error as {"error": reason}. Errors without a
// reason are unexpected and reported as internal.
func (h *Handler) writeReason(w http.ResponseWriter, r *http.Request, err error) {
	reason, ok := models.ReasonOf(err)
	if !ok {
		h.logger.ErrorContext(r.Context(), "check-in error without reason",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "internal error"))
		return
	}
	status := dErrors.ToHTTPStatus(reason.Code())
	if status >= http.StatusInternalServerError && !errors.Is(err, models.ReasonServerNotConfigured) {
		h.logger.ErrorContext(r.Context(), "check-in dependency failure",
			"request_id", requestcontext.RequestID(r.Context()),
			"reason", string(reason),
			"error", err,
		)
	}
	httputil.WriteErrorTag(w, status, string(reason))
}
