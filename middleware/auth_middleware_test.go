package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// stubValidator accepts a single known token
type stubValidator struct {
	token  string
	claims *Claims
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (*Claims, error) {
	if token == s.token {
		return s.claims, nil
	}
	return nil, services.ErrInvalidToken
}

func newTestMiddleware(t *testing.T, claims *Claims) *AuthMiddleware {
	t.Helper()
	return NewAuthMiddleware(&stubValidator{token: "valid-token", claims: claims}, zaptest.NewLogger(t))
}

func claimsCapturingHandler(captured **Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*captured = GetClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuth(t *testing.T) {
	sessionClaims := &Claims{Sub: "user-1", CompanyID: "tenant-1", Role: "member"}

	t.Run("missing token rejected", func(t *testing.T) {
		m := newTestMiddleware(t, sessionClaims)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)

		m.RequireAuth(claimsCapturingHandler(new(*Claims))).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token rejected", func(t *testing.T) {
		m := newTestMiddleware(t, sessionClaims)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.Header.Set("Authorization", "Bearer forged-token")

		m.RequireAuth(claimsCapturingHandler(new(*Claims))).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bearer token accepted", func(t *testing.T) {
		m := newTestMiddleware(t, sessionClaims)
		var got *Claims
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.Header.Set("Authorization", "Bearer valid-token")

		m.RequireAuth(claimsCapturingHandler(&got)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
		assert.Equal(t, "user-1", got.Sub)
	})

	t.Run("cookie token accepted", func(t *testing.T) {
		m := newTestMiddleware(t, sessionClaims)
		var got *Claims
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.AddCookie(&http.Cookie{Name: authTokenCookieName, Value: "valid-token"})

		m.RequireAuth(claimsCapturingHandler(&got)).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, got)
	})

	t.Run("header takes precedence over cookie", func(t *testing.T) {
		m := newTestMiddleware(t, sessionClaims)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req.Header.Set("Authorization", "Bearer forged-token")
		req.AddCookie(&http.Cookie{Name: authTokenCookieName, Value: "valid-token"})

		m.RequireAuth(claimsCapturingHandler(new(*Claims))).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed authorization header rejected", func(t *testing.T) {
		m := newTestMiddleware(t, sessionClaims)
		for _, header := range []string{"valid-token", "Basic dXNlcjpwYXNz", "Bearer"} {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
			req.Header.Set("Authorization", header)

			m.RequireAuth(claimsCapturingHandler(new(*Claims))).ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
		}
	})
}

func TestExtractTenant(t *testing.T) {
	t.Run("tenant and user land in context", func(t *testing.T) {
		m := newTestMiddleware(t, nil)
		var companyID, userID string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			companyID = GetCompanyIDFromContext(r.Context())
			userID = GetUserIDFromContext(r.Context())
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req = req.WithContext(WithClaims(req.Context(), &Claims{Sub: "user-1", CompanyID: "tenant-1"}))
		m.ExtractTenant(next).ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "tenant-1", companyID)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("no claims means unauthorized", func(t *testing.T) {
		m := newTestMiddleware(t, nil)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)

		m.ExtractTenant(claimsCapturingHandler(new(*Claims))).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token without tenant is forbidden", func(t *testing.T) {
		m := newTestMiddleware(t, nil)
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/projects", nil)
		req = req.WithContext(WithClaims(req.Context(), &Claims{Sub: "user-1"}))

		m.ExtractTenant(claimsCapturingHandler(new(*Claims))).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "No tenant in session")
	})
}

func TestRequireRole(t *testing.T) {
	m := newTestMiddleware(t, nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("matching role passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/members", nil)
		req = req.WithContext(WithClaims(req.Context(), &Claims{Sub: "user-1", Role: "admin"}))

		m.RequireRole("admin")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("any of several roles passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil)
		req = req.WithContext(WithClaims(req.Context(), &Claims{Sub: "user-1", Role: "owner"}))

		m.RequireRole("owner", "admin")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("role outside the set forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit-logs", nil)
		req = req.WithContext(WithClaims(req.Context(), &Claims{Sub: "user-1", Role: "member"}))

		m.RequireRole("owner", "admin")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("other role forbidden", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/members", nil)
		req = req.WithContext(WithClaims(req.Context(), &Claims{Sub: "user-1", Role: "member"}))

		m.RequireRole("admin")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("no claims unauthorized", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/members", nil)

		m.RequireRole("admin")(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestIDFromContext(ctx))
	assert.Empty(t, GetCompanyIDFromContext(ctx))
	assert.Empty(t, GetUserIDFromContext(ctx))
	assert.Nil(t, GetClaimsFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithCompanyID(ctx, "tenant-1")
	ctx = WithUserID(ctx, "user-1")

	assert.Equal(t, "req-1", GetRequestIDFromContext(ctx))
	assert.Equal(t, "tenant-1", GetCompanyIDFromContext(ctx))
	assert.Equal(t, "user-1", GetUserIDFromContext(ctx))
}
