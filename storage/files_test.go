package storage

import (
	"testing"

	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{"plain name", "report.pdf", "report.pdf", false},
		{"allowed characters kept", "site_photo-01.JPG", "site_photo-01.JPG", false},
		{"spaces replaced", "daily log.txt", "daily_log.txt", false},
		{"unicode replaced", "plano-sótano.pdf", "plano-s_tano.pdf", false},
		{"path traversal stripped", "../../etc/passwd", "passwd", false},
		{"windows path stripped", `..\..\secrets\keys.txt`, "keys.txt", false},
		{"absolute path stripped", "/var/data/file.bin", "file.bin", false},
		{"null byte replaced", "file\x00.txt", "file_.txt", false},
		{"empty name rejected", "", "", true},
		{"dots only rejected", "..", "", true},
		{"dot rejected", ".", "", true},
		{"trailing separator rejected", "uploads/", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SanitizeFilename(tc.input)
			if tc.wantErr {
				assert.ErrorIs(t, err, services.ErrInvalidFilename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestObjectKey(t *testing.T) {
	t.Run("tenant only", func(t *testing.T) {
		key, err := objectKey("tenant-1", FileOptions{}, "report.pdf")
		require.NoError(t, err)
		assert.Equal(t, "tenants/tenant-1/report.pdf", key)
	})

	t.Run("project and category", func(t *testing.T) {
		key, err := objectKey("tenant-1", FileOptions{ProjectID: "p-9", Category: "photos"}, "crane.jpg")
		require.NoError(t, err)
		assert.Equal(t, "tenants/tenant-1/projects/p-9/photos/crane.jpg", key)
	})

	t.Run("segments sanitized", func(t *testing.T) {
		key, err := objectKey("tenant-1", FileOptions{Category: "../photos"}, "../../x.txt")
		require.NoError(t, err)
		assert.Equal(t, "tenants/tenant-1/photos/x.txt", key)
	})

	t.Run("missing tenant rejected", func(t *testing.T) {
		_, err := objectKey("", FileOptions{}, "report.pdf")
		assert.ErrorIs(t, err, services.ErrMissingTenantID)
	})

	t.Run("invalid filename rejected", func(t *testing.T) {
		_, err := objectKey("tenant-1", FileOptions{}, "..")
		assert.ErrorIs(t, err, services.ErrInvalidFilename)
	})
}

func TestKeyPrefix(t *testing.T) {
	prefix, err := keyPrefix("tenant-1", FileOptions{ProjectID: "p-9"})
	require.NoError(t, err)
	assert.Equal(t, "tenants/tenant-1/projects/p-9/", prefix)

	prefix, err = keyPrefix("tenant-1", FileOptions{})
	require.NoError(t, err)
	assert.Equal(t, "tenants/tenant-1/", prefix)
}
