// Package session validates the session tokens issued by the identity provider
// and turns them into a verified caller identity.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "eventpass/pkg/domain"
	dErrors "eventpass/pkg/domain-errors"
)

// Claims represents the JWT claims carried by session tokens.
type Claims struct {
	IsAnonymous bool `json:"is_anonymous,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles session token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

type Option func(*JWTService)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *JWTService) { s.now = now }
}

func NewJWTService(signingKey, issuer, audience string, opts ...Option) *JWTService {
	s := &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GenerateSessionToken mints a session token. Production sessions come from the
// identity provider; this is used by tests and local tooling.
func (s *JWTService) GenerateSessionToken(userID id.UserID, anonymous bool, expiresIn time.Duration) (string, error) {
	now := s.now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		IsAnonymous: anonymous,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return newToken.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if len(s.signingKey) == 0 {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session validation not configured")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Authenticate validates the token and returns the caller. Anonymous sessions
// and tokens without a usable subject are rejected.
func (s *JWTService) Authenticate(tokenString string) (id.UserID, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return id.UserID{}, err
	}
	if claims.IsAnonymous {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "anonymous session")
	}
	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return id.UserID{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token subject")
	}
	return userID, nil
}
