package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/openwrt-tools/ubus-monitor/internal/config"
	"github.com/openwrt-tools/ubus-monitor/pkg/crypto"
)

const issuer = "ubus-monitor"

// ErrInvalidCredentials is returned for a wrong operator username or password
var ErrInvalidCredentials = errors.New("invalid credentials")

// JWTManager manages JWT tokens
type JWTManager struct {
	config   *config.JWTConfig
	operator *config.OperatorConfig
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(cfg *config.JWTConfig, operator *config.OperatorConfig) *JWTManager {
	return &JWTManager{
		config:   cfg,
		operator: operator,
	}
}

// Claims represents JWT claims
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Enabled reports whether API requests must carry a token.
func (m *JWTManager) Enabled() bool {
	return m.config.Secret != "" || m.operator.Username != ""
}

// Login checks operator credentials and issues an access token.
func (m *JWTManager) Login(username, password string) (string, time.Time, error) {
	if m.operator.Username == "" || username != m.operator.Username {
		return "", time.Time{}, ErrInvalidCredentials
	}
	if !crypto.VerifyPassword(password, m.operator.PasswordHash) {
		return "", time.Time{}, ErrInvalidCredentials
	}
	return m.GenerateToken(username)
}

// GenerateToken issues an access token for username
func (m *JWTManager) GenerateToken(username string) (string, time.Time, error) {
	if m.config.Secret == "" {
		return "", time.Time{}, fmt.Errorf("sign access token: jwt secret not configured")
	}

	now := time.Now()
	expires := now.Add(m.config.AccessTokenTTL)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			ID:        uuid.New().String(),
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(m.config.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expires, nil
}

// ValidateToken validates a token
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.config.Secret), nil
	}, jwt.WithIssuer(issuer))

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
