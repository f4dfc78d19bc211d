// Package token issues and validates the HS256 JWTs used for admin and dealer
// sessions and for the short-lived TOTP login challenge.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "unionregistry/pkg/domain-errors"
)

// Purpose separates session tokens from TOTP challenge tokens so a challenge
// can never be replayed as a session.
type Purpose string

const (
	PurposeSession   Purpose = "session"
	PurposeChallenge Purpose = "totp_challenge"
)

const challengeTTL = 5 * time.Minute

// Claims represents the JWT claims for session and challenge tokens.
type Claims struct {
	Role     string  `json:"role"`
	DealerID string  `json:"dealer_id,omitempty"`
	Purpose  Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	sessionTTL time.Duration
}

func NewJWTService(signingKey string, issuer string, sessionTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		sessionTTL: sessionTTL,
	}
}

// IssueSession signs a session token for username.
func (s *JWTService) IssueSession(username, role, dealerID string, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.sessionTTL)
	signed, err := s.sign(Claims{Role: role, DealerID: dealerID, Purpose: PurposeSession}, username, now, expiresAt)
	return signed, expiresAt, err
}

// IssueChallenge signs a token proving the password step succeeded for username.
func (s *JWTService) IssueChallenge(username, role string, now time.Time) (string, error) {
	return s.sign(Claims{Role: role, Purpose: PurposeChallenge}, username, now, now.Add(challengeTTL))
}

func (s *JWTService) sign(claims Claims, subject string, now, expiresAt time.Time) (string, error) {
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    s.issuer,
		ID:        uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Parse validates signature, issuer, expiry and purpose.
func (s *JWTService) Parse(tokenString string, purpose Purpose) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
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
	if claims.Purpose != purpose || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	return claims, nil
}
