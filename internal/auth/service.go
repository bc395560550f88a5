// File: internal/auth/service.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"live_learning_backend/internal/access"
	"live_learning_backend/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const tokenIssuer = "live_learning_backend"

// Claims are carried by session tokens.
type Claims struct {
	UID       string `json:"uid"`
	SessionID string `json:"sid"`
	Role      string `json:"role,omitempty"`
	// AuthTime is when the session signed in, in Unix milliseconds.
	AuthTime int64 `json:"auth_ms,omitempty"`
	jwt.RegisteredClaims
}

// AuthenticatedAt returns when the session behind the token signed in,
// falling back to the issue time for tokens without auth_ms.
func (c *Claims) AuthenticatedAt() time.Time {
	if c.AuthTime > 0 {
		return time.UnixMilli(c.AuthTime)
	}
	if c.IssuedAt != nil {
		return c.IssuedAt.Time
	}
	return time.Time{}
}

// TokenService issues and validates session tokens.
type TokenService interface {
	GenerateAccessToken(uid, sessionID string, role access.Role) (*TokenResponse, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// JWTService signs HS256 tokens with the configured secret.
type JWTService struct {
	secret []byte
	expiry time.Duration
	logger *zap.Logger
}

// NewJWTService creates a new JWT service.
func NewJWTService(cfg *config.Config, logger *zap.Logger) *JWTService {
	expiry := cfg.JWTAccessTokenExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &JWTService{
		secret: []byte(cfg.JWTSecretKey),
		expiry: expiry,
		logger: logger.Named("auth.jwt"),
	}
}

func (s *JWTService) GenerateAccessToken(uid, sessionID string, role access.Role) (*TokenResponse, error) {
	now := time.Now()
	expirationTime := now.Add(s.expiry)

	claims := &Claims{
		UID:       uid,
		SessionID: sessionID,
		Role:      string(role),
		AuthTime:  now.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   uid,
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		s.logger.Error("Failed to sign access token", zap.Error(err))
		return nil, fmt.Errorf("could not sign access token: %w", err)
	}
	return &TokenResponse{
		AccessToken: tokenString,
		TokenType:   "Bearer",
		ExpiresAt:   expirationTime,
	}, nil
}

// ValidateToken validates a JWT token and returns its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		s.logger.Debug("Failed to validate token", zap.Error(err))
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.UID == "" || claims.SessionID == "" || claims.ID == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
