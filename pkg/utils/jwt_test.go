package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recognition-review-backend/pkg/models"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("secret", time.Hour)
	actor := &models.Actor{ID: "adviser-1", Name: "Ms. Reyes", Role: models.RoleAdviser, Owner: models.Organization("org-1")}

	token, exp, err := svc.GenerateAccessToken(actor)
	require.NoError(t, err)
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), exp, 5)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, actor, claims.Actor())
}

func TestJWTService_Rejects(t *testing.T) {
	svc := NewJWTService("secret", time.Hour)

	_, _, err := svc.GenerateAccessToken(&models.Actor{Role: models.RoleCompliance})
	assert.Error(t, err, "actor id required")

	token, _, err := NewJWTService("other", time.Hour).GenerateAccessToken(&models.Actor{ID: "x", Role: models.RoleCompliance})
	require.NoError(t, err)
	_, err = svc.ValidateToken(token)
	assert.Error(t, err, "wrong signing key")

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.TokenClaims{
		ActorID: "x", Role: models.RoleCompliance, Type: "refresh",
		Exp: time.Now().Add(time.Hour).Unix(), Iat: time.Now().Unix(),
	})
	signed, err := refresh.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err, "refresh tokens are not access tokens")

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.TokenClaims{
		ActorID: "x", Role: models.RoleCompliance, Type: "access",
		Exp: time.Now().Add(-time.Hour).Unix(), Iat: time.Now().Add(-2 * time.Hour).Unix(),
	})
	signed, err = expired.SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)
}
