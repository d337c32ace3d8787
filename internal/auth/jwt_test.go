package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenManager_UsesConfiguredTTL(t *testing.T) {
	ttl := 2 * time.Hour
	tm := NewTokenManager("test-secret", ttl, "backoffice")

	start := time.Now()

	token, err := tm.GenerateToken("alice", RoleStaff)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	require.NotNil(t, claims.ExpiresAt)

	assert.Equal(t, "alice", claims.Username)
	assert.WithinDuration(t, start.Add(ttl), claims.ExpiresAt.Time, 2*time.Second)
	assert.True(t, claims.HasAnyRole(RoleAdmin, RoleStaff))
	assert.False(t, claims.HasAnyRole(RoleAdmin))
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("test-secret", time.Hour, "backoffice")

	t.Run("other secret", func(t *testing.T) {
		token, err := NewTokenManager("other", time.Hour, "backoffice").GenerateToken("alice")
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.Error(t, err)
	})

	t.Run("other issuer", func(t *testing.T) {
		token, err := NewTokenManager("test-secret", time.Hour, "elsewhere").GenerateToken("alice")
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("expired", func(t *testing.T) {
		claims := &Claims{
			Username: "alice",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
				Issuer:    "backoffice",
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = tm.ValidateToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("missing username", func(t *testing.T) {
		_, err := tm.GenerateToken("")
		assert.Error(t, err)
	})
}
