package jwttoken

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
)

var jwtService = NewJWTService("test-signing-key", "test-issuer")
var userID = domain.UserID(uuid.New())
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	now := time.Now()
	issued, err := jwtService.GenerateAccessToken(userID, domain.RoleInvestigator, now, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, issued.Token)
	require.NotEmpty(t, issued.JTI)

	claims, err := jwtService.ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "investigator", claims.Role)
	assert.Equal(t, issued.JTI, claims.ID)
	assert.WithinDuration(t, now.Add(expiresIn), claims.ExpiresAt.Time, time.Second)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	issued, err := jwtService.GenerateAccessToken(userID, domain.RoleCitizen, time.Now(), -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(issued.Token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Contains(t, err.Error(), "expired")
}

func Test_ValidateToken_WrongKeyOrIssuer(t *testing.T) {
	issued, err := NewJWTService("other-key", "test-issuer").GenerateAccessToken(userID, domain.RoleAdmin, time.Now(), expiresIn)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(issued.Token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	issued, err = NewJWTService("test-signing-key", "someone-else").GenerateAccessToken(userID, domain.RoleAdmin, time.Now(), expiresIn)
	require.NoError(t, err)
	_, err = jwtService.ValidateToken(issued.Token)
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_AdapterCarriesRoleAndJTI(t *testing.T) {
	issued, err := jwtService.GenerateAccessToken(userID, domain.RoleSupervisor, time.Now(), expiresIn)
	require.NoError(t, err)

	claims, err := NewJWTServiceAdapter(jwtService).ValidateToken(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "supervisor", claims.Role)
	assert.Equal(t, issued.JTI, claims.JTI)
	assert.WithinDuration(t, issued.ExpiresAt, claims.ExpiresAt, time.Second)
}
