package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lorawan-server/lrwphy/internal/config"
	"github.com/lorawan-server/lrwphy/internal/models"
	"github.com/lorawan-server/lrwphy/pkg/crypto"
)

// ErrInvalidCredentials is returned by Authenticate for unknown users or wrong passwords
var ErrInvalidCredentials = errors.New("invalid credentials")

// JWTManager manages JWT tokens
type JWTManager struct {
	config *config.JWTConfig
	users  map[string]*models.User
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.JWTConfig, users []config.UserConfig) *JWTManager {
	m := &JWTManager{
		config: cfg,
		users:  make(map[string]*models.User, len(users)),
	}
	for _, u := range users {
		m.users[u.Username] = &models.User{
			Username:     u.Username,
			PasswordHash: u.PasswordHash,
			IsAdmin:      u.IsAdmin,
		}
	}
	return m
}

// Enabled reports whether tokens are required
func (m *JWTManager) Enabled() bool {
	return m.config.Secret != ""
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// Authenticate checks a username and password against the configured users
func (m *JWTManager) Authenticate(username, password string) (*models.User, error) {
	user, ok := m.users[username]
	if !ok || !crypto.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GenerateToken generates an access token
func (m *JWTManager) GenerateToken(user *models.User) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.AccessTokenTTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "lrwphy",
			ID:        uuid.New().String(),
		},
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
