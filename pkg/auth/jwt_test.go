package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/travel-notifications/internal/model"
)

func TestTokenRoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret-0123456789", "travel", time.Hour)
	viewer := &model.Viewer{ID: uuid.New(), Email: "traveller@example.com", Role: model.RoleUser}

	token, err := svc.GenerateAccessToken(viewer)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	got, err := claims.Viewer()
	require.NoError(t, err)
	assert.Equal(t, viewer, got)
}

func TestValidateTokenRejects(t *testing.T) {
	viewer := &model.Viewer{ID: uuid.New()}
	svc := NewJWTService("test-secret-0123456789", "travel", time.Hour)

	other := NewJWTService("another-secret-0123456789", "travel", time.Hour)
	foreign, err := other.GenerateAccessToken(viewer)
	require.NoError(t, err)
	_, err = svc.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer, err := NewJWTService("test-secret-0123456789", "elsewhere", time.Hour).GenerateAccessToken(viewer)
	require.NoError(t, err)
	_, err = svc.ValidateToken(wrongIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expiring := &jwtService{secret: []byte("test-secret-0123456789"), issuer: "travel", expiry: time.Minute, now: time.Now}
	token, err := expiring.GenerateAccessToken(viewer)
	require.NoError(t, err)
	expiring.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = expiring.ValidateToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
