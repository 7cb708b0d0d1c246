package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewURLSigner(t *testing.T) {
	t.Run("requires secret", func(t *testing.T) {
		_, err := NewURLSigner("", "http://localhost/files")
		assert.Error(t, err)
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		signer, err := NewURLSigner("secret", "http://localhost/files/")
		require.NoError(t, err)

		u, err := signer.SignedURL("tenants/t-1/report.pdf", time.Minute)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(u, "http://localhost/files/tenants/t-1/report.pdf?token="))
	})
}

func TestURLSigner_SignVerify(t *testing.T) {
	signer, err := NewURLSigner("test-secret", "http://localhost/files")
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		token, err := signer.Sign("tenants/t-1/report.pdf", time.Minute)
		require.NoError(t, err)

		key, err := signer.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "tenants/t-1/report.pdf", key)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token, err := signer.Sign("tenants/t-1/report.pdf", -time.Minute)
		require.NoError(t, err)

		_, err = signer.Verify(token)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("tampered token rejected", func(t *testing.T) {
		token, err := signer.Sign("tenants/t-1/report.pdf", time.Minute)
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		require.Len(t, parts, 3)
		tampered := parts[0] + "." + parts[1] + "." + "AAAA" + parts[2][4:]

		_, err = signer.Verify(tampered)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("token from another secret rejected", func(t *testing.T) {
		other, err := NewURLSigner("other-secret", "http://localhost/files")
		require.NoError(t, err)

		token, err := other.Sign("tenants/t-1/report.pdf", time.Minute)
		require.NoError(t, err)

		_, err = signer.Verify(token)
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})

	t.Run("garbage rejected", func(t *testing.T) {
		_, err := signer.Verify("not-a-token")
		assert.ErrorIs(t, err, services.ErrInvalidToken)
	})
}
