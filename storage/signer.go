package storage

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/golang-jwt/jwt/v5"
)

// URLSigner issues and verifies signed download URLs for the local file
// store. The token is an HMAC-signed claim over the storage key and an
// expiry; the file server verifies it before serving the file.
type URLSigner struct {
	secret  []byte
	baseURL string
}

// NewURLSigner creates a signer. baseURL is the public endpoint serving
// signed downloads, without a trailing slash.
func NewURLSigner(secret, baseURL string) (*URLSigner, error) {
	if secret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	return &URLSigner{
		secret:  []byte(secret),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

type downloadClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

// Sign issues a token granting read access to one storage key until expiry
func (s *URLSigner) Sign(key string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := downloadClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", services.WrapError(services.ErrorTypeInternal, "failed to sign download token", err)
	}
	return signed, nil
}

// Verify checks a token and returns the storage key it grants access to.
// Expired or tampered tokens are rejected.
func (s *URLSigner) Verify(tokenString string) (string, error) {
	claims := &downloadClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", services.ErrInvalidToken
	}
	if claims.Key == "" {
		return "", services.ErrInvalidToken
	}
	return claims.Key, nil
}

// SignedURL returns the full download URL carrying the signed token
func (s *URLSigner) SignedURL(key string, expiry time.Duration) (string, error) {
	token, err := s.Sign(key, expiry)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s?token=%s", s.baseURL, key, url.QueryEscape(token)), nil
}
