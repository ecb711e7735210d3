package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"eventpass/internal/checkin/models"
	"eventpass/internal/checkin/ports"
	"eventpass/internal/checkin/scope"
	"eventpass/internal/checkin/token"
	id "eventpass/pkg/domain"
	"eventpass/pkg/platform/audit"
	"eventpass/pkg/platform/sentinel"
	"eventpass/pkg/requestcontext"
)

// Verifier validates scanned tickets and records the check-in. Checks run in a
// fixed order and stop at the first failure:
//
//	auth -> secret -> decode -> signature -> expiry -> scope -> attendee -> write
//
// No ticket field is trusted for authorization before its signature verifies.
type Verifier struct {
	codec      *token.Codec
	attendance ports.AttendanceStore
	scopes     ports.ScopeStore
	cfg        Config
	deps
}

// NewVerifier builds a verifier. A nil codec means no signing secret is
// configured and every scan fails with server_not_configured.
func NewVerifier(codec *token.Codec, attendance ports.AttendanceStore, scopes ports.ScopeStore, cfg Config, opts ...Option) *Verifier {
	return &Verifier{
		codec:      codec,
		attendance: attendance,
		scopes:     scopes,
		cfg:        cfg.withDefaults(),
		deps:       newDeps(opts),
	}
}

// VerifyAndCheckIn validates raw on behalf of operator and admits the
// attendee at most once. Concurrent scans of the same ticket produce exactly
// one OutcomeCheckedIn; the rest report OutcomeAlreadyCheckedIn.
func (s *Verifier) VerifyAndCheckIn(ctx context.Context, operator id.UserID, raw string) (models.CheckInResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkin.VerifyAndCheckIn")
	defer span.End()
	start := time.Now()

	result, err := s.verify(ctx, operator, raw)

	label := string(result.Outcome)
	if err != nil {
		reason, _ := models.ReasonOf(err)
		label = string(reason)
		span.SetAttributes(attribute.String("checkin.reason", label))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.String("checkin.outcome", label),
			attribute.Bool("checkin.detected_at_write", result.DetectedAtWrite),
		)
	}
	if s.metrics != nil {
		s.metrics.RecordVerification(label, start)
	}
	return result, err
}

func (s *Verifier) verify(ctx context.Context, operator id.UserID, raw string) (models.CheckInResult, error) {
	requestID := requestcontext.RequestID(ctx)
	now := requestcontext.Now(ctx)

	if operator.IsNil() {
		return models.CheckInResult{}, models.ReasonUnauthorized.Reject("authentication required")
	}
	if s.codec == nil {
		s.logger.ErrorContext(ctx, "ticket signing secret is not configured", "request_id", requestID)
		return models.CheckInResult{}, models.ReasonServerNotConfigured.Reject("ticket signing is not configured")
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return models.CheckInResult{}, models.ReasonMissingToken.Reject("token is required")
	}

	reject := func(reason models.Reason, fields auditFields, msg string) error {
		s.recordRejection(ctx, now, operator, reason, fields)
		return reason.Reject(msg)
	}

	ticket, err := s.codec.Verify(raw)
	switch {
	case errors.Is(err, token.ErrMalformed):
		return models.CheckInResult{}, reject(models.ReasonInvalidToken, auditFields{}, "ticket is malformed")
	case errors.Is(err, token.ErrBadSignature):
		return models.CheckInResult{}, reject(models.ReasonInvalidSignature, auditFields{}, "ticket signature is invalid")
	case err != nil:
		return models.CheckInResult{}, reject(models.ReasonInvalidToken, auditFields{}, "ticket could not be verified")
	}

	fields := auditFields{subject: ticket.AttendeeID.String(), eventID: ticket.EventID.String()}

	if ticket.Expired(now, s.cfg.ClockSkew) {
		return models.CheckInResult{}, reject(models.ReasonTokenExpired, fields, "ticket has expired")
	}

	if err := s.authorize(ctx, operator, ticket.EventID); err != nil {
		if reason, _ := models.ReasonOf(err); reason == models.ReasonForbidden || reason == models.ReasonEventNotFound {
			s.recordRejection(ctx, now, operator, reason, fields)
		}
		return models.CheckInResult{}, err
	}

	return s.checkIn(ctx, operator, ticket, now, fields)
}

// authorize loads the operator's scope and the event's club concurrently. Both
// are read fresh on every scan.
func (s *Verifier) authorize(ctx context.Context, operator id.UserID, eventID id.EventID) error {
	lookupCtx, cancel := context.WithTimeout(ctx, s.cfg.DependencyTimeout)
	defer cancel()

	var (
		g        errgroup.Group
		opScope  models.OperatorScope
		event    models.Event
		scopeErr error
		eventErr error
	)
	g.Go(func() error {
		opScope, scopeErr = s.scopes.OperatorScope(lookupCtx, operator)
		return scopeErr
	})
	g.Go(func() error {
		event, eventErr = s.scopes.Event(lookupCtx, eventID)
		return eventErr
	})
	_ = g.Wait()

	requestID := requestcontext.RequestID(ctx)
	switch {
	case errors.Is(scopeErr, sentinel.ErrNotFound):
		return models.ReasonForbidden.Reject("operator has no profile")
	case scopeErr != nil:
		s.logger.ErrorContext(ctx, "operator scope lookup failed", "request_id", requestID, "error", scopeErr)
		return models.ReasonProfileLookupFailed.RejectCause(scopeErr, "operator scope lookup failed")
	case errors.Is(eventErr, sentinel.ErrNotFound):
		return models.ReasonEventNotFound.Reject("event not found")
	case eventErr != nil:
		s.logger.ErrorContext(ctx, "event lookup failed",
			"request_id", requestID,
			"event_id", eventID.String(),
			"error", eventErr,
		)
		return models.ReasonEventLookupFailed.RejectCause(eventErr, "event lookup failed")
	}

	if !scope.IsAuthorized(opScope.Role, opScope.ClubID, event.ClubID) {
		return models.ReasonForbidden.Reject("operator may not check in attendees for this event")
	}
	return nil
}

func (s *Verifier) checkIn(ctx context.Context, operator id.UserID, ticket models.Ticket, now time.Time, fields auditFields) (models.CheckInResult, error) {
	requestID := requestcontext.RequestID(ctx)

	readCtx, cancelRead := context.WithTimeout(ctx, s.cfg.DependencyTimeout)
	binding, err := s.attendance.FindByIDAndEvent(readCtx, ticket.AttendeeID, ticket.EventID)
	cancelRead()
	if errors.Is(err, sentinel.ErrNotFound) {
		s.recordRejection(ctx, now, operator, models.ReasonAttendeeNotFound, fields)
		return models.CheckInResult{}, models.ReasonAttendeeNotFound.Reject("attendee not found for this event")
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "attendee lookup failed", "request_id", requestID, "error", err)
		return models.CheckInResult{}, models.ReasonAttendeeLookup.RejectCause(err, "attendee lookup failed")
	}

	if binding.CheckedIn {
		result := models.CheckInResult{
			Outcome:      models.OutcomeAlreadyCheckedIn,
			AttendeeID:   binding.ID,
			AttendeeName: binding.DisplayName,
		}
		if binding.CheckedInAt != nil {
			result.CheckedInAt = *binding.CheckedInAt
		}
		s.recordDuplicate(ctx, now, operator, fields, result)
		return result, nil
	}

	writeCtx, cancelWrite := context.WithTimeout(ctx, s.cfg.DependencyTimeout)
	updated, err := s.attendance.MarkCheckedIn(writeCtx, ticket.AttendeeID, ticket.EventID, now, operator)
	cancelWrite()
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		if s.metrics != nil {
			s.metrics.IncrementWriteConflict()
		}
		result := models.CheckInResult{
			Outcome:         models.OutcomeAlreadyCheckedIn,
			AttendeeID:      binding.ID,
			AttendeeName:    binding.DisplayName,
			DetectedAtWrite: true,
		}
		s.recordDuplicate(ctx, now, operator, fields, result)
		return result, nil
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "check-in update failed", "request_id", requestID, "error", err)
		return models.CheckInResult{}, models.ReasonCheckinFailed.RejectCause(err, "check-in update failed")
	}

	result := models.CheckInResult{
		Outcome:      models.OutcomeCheckedIn,
		AttendeeID:   updated.ID,
		AttendeeName: updated.DisplayName,
		CheckedInAt:  now.UTC(),
	}
	if updated.CheckedInAt != nil {
		result.CheckedInAt = *updated.CheckedInAt
	}
	if result.AttendeeName == "" {
		result.AttendeeName = binding.DisplayName
	}

	fields.decision = string(models.OutcomeCheckedIn)
	s.emit(ctx, now, audit.EventCheckInRecorded, operator, fields)
	s.logger.InfoContext(ctx, "attendee checked in",
		"request_id", requestID,
		"attendee_id", result.AttendeeID.String(),
		"event_id", ticket.EventID.String(),
	)
	return result, nil
}

func (s *Verifier) recordDuplicate(ctx context.Context, now time.Time, operator id.UserID, fields auditFields, result models.CheckInResult) {
	fields.decision = string(models.OutcomeAlreadyCheckedIn)
	s.emit(ctx, now, audit.EventCheckInDuplicate, operator, fields)
	s.logger.InfoContext(ctx, "duplicate scan",
		"request_id", requestcontext.RequestID(ctx),
		"attendee_id", result.AttendeeID.String(),
		"detected_at_write", result.DetectedAtWrite,
	)
}

func (s *Verifier) recordRejection(ctx context.Context, now time.Time, operator id.UserID, reason models.Reason, fields auditFields) {
	fields.decision = "rejected"
	fields.reason = reason
	s.emit(ctx, now, audit.EventCheckInRejected, operator, fields)
	s.logger.InfoContext(ctx, "ticket rejected",
		"request_id", requestcontext.RequestID(ctx),
		"reason", string(reason),
		"event_id", fields.eventID,
	)
}
