package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAuditLog(t *testing.T) {
	entry := NewAuditLog("tenant-1", AuditActionCreate, "projects")

	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "tenant-1", entry.CompanyID)
	assert.Equal(t, AuditActionCreate, entry.Action)
	assert.Equal(t, "projects", entry.ResourceType)
	assert.Nil(t, entry.ActorID)
	assert.Nil(t, entry.ResourceID)
	assert.False(t, entry.Timestamp.IsZero())
}

func TestAuditLog_Builders(t *testing.T) {
	entry := NewAuditLog("tenant-1", AuditActionUpdate, "tasks").
		WithActor("user-1").
		WithResource("t-1").
		WithRequest("req-1", "10.0.0.1")

	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "user-1", *entry.ActorID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "t-1", *entry.ResourceID)
	assert.Equal(t, "req-1", entry.RequestID)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
}

func TestAuditLog_EmptyBuilderArgsIgnored(t *testing.T) {
	entry := NewAuditLog("tenant-1", AuditActionDelete, "rfis").
		WithActor("").
		WithResource("")

	assert.Nil(t, entry.ActorID)
	assert.Nil(t, entry.ResourceID)
}

func TestAuditLog_WithDetails(t *testing.T) {
	t.Run("marshals a snapshot", func(t *testing.T) {
		entry := NewAuditLog("tenant-1", AuditActionDelete, "projects").
			WithDetails(map[string]interface{}{"name": "Harbor Tower"})

		var details map[string]interface{}
		require.NoError(t, json.Unmarshal(entry.Details, &details))
		assert.Equal(t, "Harbor Tower", details["name"])
	})

	t.Run("unmarshalable details leave the entry intact", func(t *testing.T) {
		entry := NewAuditLog("tenant-1", AuditActionDelete, "projects").
			WithDetails(map[string]interface{}{"bad": func() {}})

		assert.Empty(t, entry.Details)
	})
}
