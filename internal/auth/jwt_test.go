package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/pkg/crypto"
)

func newManager(t *testing.T, ttl time.Duration) *JWTManager {
	t.Helper()
	hash, err := crypto.HashPassword("secret")
	require.NoError(t, err)
	return NewJWTManager(&config.JWTConfig{Secret: "test-secret", AccessTokenTTL: ttl}, []config.UserConfig{
		{Username: "admin", PasswordHash: hash, IsAdmin: true},
	})
}

func TestAuthenticateAndToken(t *testing.T) {
	m := newManager(t, time.Hour)
	require.True(t, m.Enabled())

	user, err := m.Authenticate("admin", "secret")
	require.NoError(t, err)

	token, expiresAt, err := m.GenerateToken(user)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "admin", claims.Subject)
	assert.True(t, claims.IsAdmin)
	assert.NotEmpty(t, claims.ID)
}

func TestAuthenticateRejects(t *testing.T) {
	m := newManager(t, time.Hour)

	_, err := m.Authenticate("admin", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = m.Authenticate("nobody", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejects(t *testing.T) {
	m := newManager(t, time.Hour)
	user, err := m.Authenticate("admin", "secret")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		expired := newManager(t, -time.Minute)
		token, _, err := expired.GenerateToken(user)
		require.NoError(t, err)
		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("other secret", func(t *testing.T) {
		other := NewJWTManager(&config.JWTConfig{Secret: "other", AccessTokenTTL: time.Hour}, nil)
		token, _, err := other.GenerateToken(user)
		require.NoError(t, err)
		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Username: "admin"})
		s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = m.ValidateToken(s)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not.a.token")
		assert.Error(t, err)
	})
}

func TestDisabled(t *testing.T) {
	m := NewJWTManager(&config.JWTConfig{}, nil)
	assert.False(t, m.Enabled())
}
