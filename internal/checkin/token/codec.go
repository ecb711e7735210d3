// Package token encodes, decodes and signs check-in tickets.
//
// A ticket is a dot-delimited string whose last segment is an HMAC-SHA256 over
// the preceding segments (base64url, no padding). Two layouts coexist:
//
//	v1.<attendeeId>.<eventId>.<expiresAt>.<sig>
//	v2.<attendeeId>.<eventId>.<issuedAt>.<expiresAt>.<nonce>.<sig>
//
// The decoder dispatches on segment count, and each version tag is valid for
// exactly one count. The signed payload is always rebuilt from the parsed
// fields, never taken from the raw input.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventpass/internal/checkin/models"
	id "eventpass/pkg/domain"
)

const (
	separator = "."

	legacySegments   = 5
	extendedSegments = 7

	// MaxLength bounds accepted ticket strings.
	MaxLength = 512

	// Nonce bounds, in base64url characters.
	MinNonceLength = 16
	MaxNonceLength = 64

	nonceBytes = 16

	// maxTimestampDigits keeps unix seconds inside int64 without overflow checks.
	maxTimestampDigits = 12
)

var (
	// ErrMalformed means the string is not a structurally valid ticket.
	ErrMalformed = errors.New("malformed ticket")
	// ErrBadSignature means the ticket parsed but its MAC does not match.
	ErrBadSignature = errors.New("ticket signature mismatch")
	// ErrNoSecret is returned when a codec is built without a signing secret.
	ErrNoSecret = errors.New("ticket signing secret not configured")
)

var signatureEncoding = base64.RawURLEncoding.Strict()

// signer is the HMAC-SHA256 primitive; Verify compares in constant time after
// a length check.
var signer = jwt.SigningMethodHS256

// Codec signs and verifies tickets with a single server-held secret.
type Codec struct {
	secret []byte
}

// NewCodec returns a codec for secret. An empty secret is refused so tickets are
// never signed with a blank key.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Codec{secret: key}, nil
}

// Encode validates t and returns its signed wire form.
func (c *Codec) Encode(t models.Ticket) (string, error) {
	if err := validate(t); err != nil {
		return "", err
	}
	payload := canonicalPayload(t)
	sig, err := signer.Sign(payload, c.secret)
	if err != nil {
		return "", fmt.Errorf("sign ticket: %w", err)
	}
	return payload + separator + signatureEncoding.EncodeToString(sig), nil
}

// Verify decodes raw and checks its signature. It returns ErrMalformed for
// anything that does not parse and ErrBadSignature when the MAC differs. No
// field of the returned ticket is trustworthy unless err is nil.
func (c *Codec) Verify(raw string) (models.Ticket, error) {
	t, sig, err := Decode(raw)
	if err != nil {
		return models.Ticket{}, err
	}
	if err := c.checkSignature(t, sig); err != nil {
		return t, err
	}
	return t, nil
}

func (c *Codec) checkSignature(t models.Ticket, sig []byte) error {
	if len(sig) == 0 {
		return ErrBadSignature
	}
	if err := signer.Verify(canonicalPayload(t), sig, c.secret); err != nil {
		return ErrBadSignature
	}
	return nil
}

// Decode parses raw without checking the signature and returns the ticket with
// its decoded MAC bytes. Every failure is ErrMalformed. A non-empty signature
// segment that does not decode yields a nil MAC, which never verifies.
func Decode(raw string) (models.Ticket, []byte, error) {
	if raw == "" || len(raw) > MaxLength {
		return models.Ticket{}, nil, ErrMalformed
	}
	parts := strings.Split(raw, separator)

	var (
		t   models.Ticket
		err error
	)
	switch len(parts) {
	case legacySegments:
		t, err = decodeLegacy(parts)
	case extendedSegments:
		t, err = decodeExtended(parts)
	default:
		return models.Ticket{}, nil, ErrMalformed
	}
	if err != nil {
		return models.Ticket{}, nil, ErrMalformed
	}

	rawSig := parts[len(parts)-1]
	if rawSig == "" {
		return models.Ticket{}, nil, ErrMalformed
	}
	// A signature segment that is not canonical base64url cannot be a MAC this
	// codec produced; it is returned as nil so verification reports a mismatch.
	sig, err := signatureEncoding.DecodeString(rawSig)
	if err != nil {
		return t, nil, nil
	}
	return t, sig, nil
}

func decodeLegacy(parts []string) (models.Ticket, error) {
	if parts[0] != models.VersionLegacy {
		return models.Ticket{}, ErrMalformed
	}
	attendee, event, err := parseRefs(parts[1], parts[2])
	if err != nil {
		return models.Ticket{}, err
	}
	expiresAt, err := parseTimestamp(parts[3])
	if err != nil {
		return models.Ticket{}, err
	}
	return models.Ticket{
		Format:     models.FormatLegacy,
		AttendeeID: attendee,
		EventID:    event,
		ExpiresAt:  expiresAt,
	}, nil
}

func decodeExtended(parts []string) (models.Ticket, error) {
	if parts[0] != models.VersionExtended {
		return models.Ticket{}, ErrMalformed
	}
	attendee, event, err := parseRefs(parts[1], parts[2])
	if err != nil {
		return models.Ticket{}, err
	}
	issuedAt, err := parseTimestamp(parts[3])
	if err != nil {
		return models.Ticket{}, err
	}
	expiresAt, err := parseTimestamp(parts[4])
	if err != nil {
		return models.Ticket{}, err
	}
	t := models.Ticket{
		Format:     models.FormatExtended,
		AttendeeID: attendee,
		EventID:    event,
		IssuedAt:   issuedAt,
		ExpiresAt:  expiresAt,
		Nonce:      parts[5],
	}
	if err := validate(t); err != nil {
		return models.Ticket{}, err
	}
	return t, nil
}

func parseRefs(attendeeRaw, eventRaw string) (id.AttendeeID, id.EventID, error) {
	attendee, err := id.ParseAttendeeID(attendeeRaw)
	if err != nil {
		return "", "", ErrMalformed
	}
	event, err := id.ParseEventID(eventRaw)
	if err != nil {
		return "", "", ErrMalformed
	}
	return attendee, event, nil
}

// parseTimestamp accepts only the canonical decimal rendering of a positive
// integer, so the rebuilt payload matches what was signed byte for byte.
func parseTimestamp(s string) (int64, error) {
	if s == "" || len(s) > maxTimestampDigits || s[0] == '0' {
		return 0, ErrMalformed
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, ErrMalformed
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return 0, ErrMalformed
	}
	return v, nil
}

func validate(t models.Ticket) error {
	if !id.IsNumericRef(string(t.AttendeeID)) && !id.IsUUIDRef(string(t.AttendeeID)) {
		return ErrMalformed
	}
	if !id.IsNumericRef(string(t.EventID)) && !id.IsUUIDRef(string(t.EventID)) {
		return ErrMalformed
	}
	if t.ExpiresAt <= 0 {
		return ErrMalformed
	}
	switch t.Format {
	case models.FormatLegacy:
		if t.IssuedAt != 0 || t.Nonce != "" {
			return ErrMalformed
		}
	case models.FormatExtended:
		if t.IssuedAt <= 0 || t.IssuedAt >= t.ExpiresAt {
			return ErrMalformed
		}
		if !validNonce(t.Nonce) {
			return ErrMalformed
		}
	default:
		return ErrMalformed
	}
	return nil
}

func validNonce(n string) bool {
	if len(n) < MinNonceLength || len(n) > MaxNonceLength {
		return false
	}
	for i := 0; i < len(n); i++ {
		c := n[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

func canonicalPayload(t models.Ticket) string {
	fields := []string{t.Version(), string(t.AttendeeID), string(t.EventID)}
	if t.Format == models.FormatExtended {
		fields = append(fields, strconv.FormatInt(t.IssuedAt, 10))
	}
	fields = append(fields, strconv.FormatInt(t.ExpiresAt, 10))
	if t.Format == models.FormatExtended {
		fields = append(fields, t.Nonce)
	}
	return strings.Join(fields, separator)
}

// NewNonce returns a fresh random nonce suitable for extended tickets.
func NewNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewExtended builds an extended-format ticket valid for ttl from now.
func NewExtended(attendee id.AttendeeID, event id.EventID, now time.Time, ttl time.Duration) (models.Ticket, error) {
	nonce, err := NewNonce()
	if err != nil {
		return models.Ticket{}, err
	}
	return models.Ticket{
		Format:     models.FormatExtended,
		AttendeeID: attendee,
		EventID:    event,
		IssuedAt:   now.Unix(),
		ExpiresAt:  now.Add(ttl).Unix(),
		Nonce:      nonce,
	}, nil
}

// NewLegacy builds a legacy-format ticket valid for ttl from now.
func NewLegacy(attendee id.AttendeeID, event id.EventID, now time.Time, ttl time.Duration) models.Ticket {
	return models.Ticket{
		Format:     models.FormatLegacy,
		AttendeeID: attendee,
		EventID:    event,
		ExpiresAt:  now.Add(ttl).Unix(),
	}
}
