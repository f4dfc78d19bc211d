package token

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "unionregistry/pkg/domain-errors"
	authmw "unionregistry/pkg/platform/middleware/auth"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer", time.Hour)

func Test_IssueSession(t *testing.T) {
	dealerID := uuid.NewString()
	now := time.Now()
	token, expiresAt, err := jwtService.IssueSession("pump7", authmw.RoleDealer, dealerID, now)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.WithinDuration(t, now.Add(time.Hour), expiresAt, time.Second)

	claims, err := jwtService.Parse(token, PurposeSession)
	require.NoError(t, err)
	assert.Equal(t, "pump7", claims.Subject)
	assert.Equal(t, authmw.RoleDealer, claims.Role)
	assert.Equal(t, dealerID, claims.DealerID)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.Parse("invalid-token-string", PurposeSession)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, _, err := jwtService.IssueSession("admin", authmw.RoleAdmin, "", time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	_, err = jwtService.Parse(token, PurposeSession)
	require.Error(t, err)
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func Test_ValidateToken_WrongKeyOrIssuer(t *testing.T) {
	token, _, err := jwtService.IssueSession("admin", authmw.RoleAdmin, "", time.Now())
	require.NoError(t, err)

	_, err = NewJWTService("other-key", "test-issuer", time.Hour).Parse(token, PurposeSession)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	_, err = NewJWTService("test-signing-key", "other-issuer", time.Hour).Parse(token, PurposeSession)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ChallengeIsNotASession(t *testing.T) {
	challenge, err := jwtService.IssueChallenge("admin", authmw.RoleAdmin, time.Now())
	require.NoError(t, err)

	_, err = NewJWTServiceAdapter(jwtService).ValidateToken(challenge)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	claims, err := jwtService.Parse(challenge, PurposeChallenge)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
}

func Test_AdapterMapsClaims(t *testing.T) {
	token, _, err := jwtService.IssueSession("admin", authmw.RoleAdmin, "", time.Now())
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, &authmw.Claims{Username: "admin", Role: authmw.RoleAdmin}, claims)
}
