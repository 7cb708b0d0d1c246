package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/config"
	"github.com/fieldbeam/fieldbeam/backend/middleware"
	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/golang-jwt/jwt/v5"
)

// TokenService issues and validates HMAC-signed session tokens. The
// company claim pins the tenant for the whole session; nothing in a
// request can override it.
type TokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewTokenService creates a token service from the auth configuration
func NewTokenService(cfg config.AuthConfig) (*TokenService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret is required")
	}
	expiry := cfg.TokenExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &TokenService{
		secret: []byte(cfg.JWTSecret),
		expiry: expiry,
		issuer: "fieldbeam",
	}, nil
}

type sessionClaims struct {
	Email     string `json:"email,omitempty"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken issues a signed session token for a user acting within one
// tenant
func (s *TokenService) IssueToken(userID, companyID, role string) (string, error) {
	if userID == "" || companyID == "" {
		return "", services.ErrInvalidInput
	}

	now := time.Now()
	claims := sessionClaims{
		CompanyID: companyID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", services.WrapInternal("failed to sign session token", err)
	}
	return signed, nil
}

// ValidateToken validates a session token and returns its claims.
// Implements middleware.TokenValidator.
func (s *TokenService) ValidateToken(ctx context.Context, tokenString string) (*middleware.Claims, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, services.ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, services.ErrInvalidToken
	}

	out := &middleware.Claims{
		Sub:       claims.Subject,
		Email:     claims.Email,
		CompanyID: claims.CompanyID,
		Role:      claims.Role,
		Iss:       claims.Issuer,
	}
	if claims.ExpiresAt != nil {
		out.Exp = claims.ExpiresAt.Unix()
	}
	if claims.IssuedAt != nil {
		out.Iat = claims.IssuedAt.Unix()
	}
	return out, nil
}
