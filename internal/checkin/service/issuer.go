package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"eventpass/internal/checkin/models"
	"eventpass/internal/checkin/ports"
	"eventpass/internal/checkin/token"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/audit"
	"eventpass/pkg/platform/sentinel"
	"eventpass/pkg/requestcontext"
)

// Issuer mints short-lived tickets for attendees holding a reservation. It
// keeps no state; a ticket can be re-minted any number of times.
type Issuer struct {
	codec      *token.Codec
	attendance ports.AttendanceStore
	cfg        Config
	deps
}

// NewIssuer builds an issuer. A nil codec means no signing secret is
// configured and every call fails with server_not_configured.
func NewIssuer(codec *token.Codec, attendance ports.AttendanceStore, cfg Config, opts ...Option) *Issuer {
	return &Issuer{
		codec:      codec,
		attendance: attendance,
		cfg:        cfg.withDefaults(),
		deps:       newDeps(opts),
	}
}

// IssueTicket mints a ticket for caller's reservation on eventIDRaw. The caller
// must come from a verified session, never from request data.
func (s *Issuer) IssueTicket(ctx context.Context, caller id.UserID, eventIDRaw string) (models.IssuedTicket, error) {
	ctx, span := s.tracer.Start(ctx, "checkin.IssueTicket")
	defer span.End()

	ticket, err := s.issue(ctx, caller, eventIDRaw)
	if err != nil {
		if reason, ok := models.ReasonOf(err); ok {
			span.SetAttributes(attribute.String("checkin.reason", string(reason)))
		}
		span.SetStatus(codes.Error, err.Error())
		return models.IssuedTicket{}, err
	}
	return ticket, nil
}

func (s *Issuer) issue(ctx context.Context, caller id.UserID, eventIDRaw string) (models.IssuedTicket, error) {
	requestID := requestcontext.RequestID(ctx)

	if caller.IsNil() {
		return models.IssuedTicket{}, models.ReasonUnauthorized.Reject("authentication required")
	}
	if s.codec == nil {
		s.logger.ErrorContext(ctx, "ticket signing secret is not configured", "request_id", requestID)
		return models.IssuedTicket{}, models.ReasonServerNotConfigured.Reject("ticket signing is not configured")
	}
	if eventIDRaw == "" {
		return models.IssuedTicket{}, models.ReasonMissingEventID.Reject("eventId is required")
	}
	eventID, err := id.ParseEventID(eventIDRaw)
	if err != nil {
		return models.IssuedTicket{}, models.ReasonInvalidEventID.Reject("eventId is not a valid reference")
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.DependencyTimeout)
	binding, err := s.attendance.FindByUserAndEvent(lookupCtx, caller, eventID)
	cancel()
	if errors.Is(err, sentinel.ErrNotFound) {
		return models.IssuedTicket{}, models.ReasonNotAttending.Reject("no reservation for this event")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "attendance lookup failed",
			"request_id", requestID,
			"event_id", eventID.String(),
			"error", err,
		)
		return models.IssuedTicket{}, models.ReasonDBError.RejectCause(err, "attendance lookup failed")
	}

	now := requestcontext.Now(ctx)
	ticket, err := s.mint(binding.ID, eventID, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to mint ticket", "request_id", requestID, "error", err)
		return models.IssuedTicket{}, models.ReasonIssueFailed.RejectCause(err, "failed to mint ticket")
	}
	raw, err := s.codec.Encode(ticket)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to sign ticket", "request_id", requestID, "error", err)
		return models.IssuedTicket{}, models.ReasonIssueFailed.RejectCause(err, "failed to sign ticket")
	}

	if s.metrics != nil {
		s.metrics.IncrementIssued(ticket.Format.String())
	}
	s.emit(ctx, now, audit.EventTicketIssued, caller, auditFields{
		subject:  binding.ID.String(),
		eventID:  eventID.String(),
		decision: "issued",
	})

	return models.IssuedTicket{Token: raw, ExpiresAt: ticket.ExpiresTime()}, nil
}

func (s *Issuer) mint(attendee id.AttendeeID, event id.EventID, now time.Time) (models.Ticket, error) {
	if s.cfg.LegacyFormat {
		return token.NewLegacy(attendee, event, now, s.cfg.TTL), nil
	}
	return token.NewExtended(attendee, event, now, s.cfg.TTL)
}
