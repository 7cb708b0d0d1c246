package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRole(t *testing.T) {
	assert.True(t, ValidRole(MembershipRoleOwner))
	assert.True(t, ValidRole(MembershipRoleAdmin))
	assert.True(t, ValidRole(MembershipRoleMember))
	assert.False(t, ValidRole(MembershipRole("superuser")))
	assert.False(t, ValidRole(MembershipRole("")))
}

func TestNewMembership(t *testing.T) {
	m := NewMembership("user-1", "tenant-1", MembershipRoleMember)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "user-1", m.UserID)
	assert.Equal(t, "tenant-1", m.CompanyID)
	assert.Equal(t, MembershipRoleMember, m.Role)
	assert.Equal(t, MembershipStatusInvited, m.Status)
	assert.False(t, m.CreatedAt.IsZero())
}

func TestMembership_IsActive(t *testing.T) {
	m := NewMembership("user-1", "tenant-1", MembershipRoleMember)
	assert.False(t, m.IsActive(), "invited memberships grant no access")

	m.Status = MembershipStatusActive
	assert.True(t, m.IsActive())

	m.Status = MembershipStatusSuspended
	assert.False(t, m.IsActive())
}

func TestMembership_HasPermission(t *testing.T) {
	t.Run("owner and admin have everything", func(t *testing.T) {
		owner := NewMembership("user-1", "tenant-1", MembershipRoleOwner)
		admin := NewMembership("user-2", "tenant-1", MembershipRoleAdmin)

		assert.True(t, owner.HasPermission("reports:read"))
		assert.True(t, admin.HasPermission("anything:at:all"))
	})

	t.Run("member needs an explicit grant", func(t *testing.T) {
		m := NewMembership("user-3", "tenant-1", MembershipRoleMember)
		assert.False(t, m.HasPermission("reports:read"))

		m.Permissions = []string{"reports:read"}
		assert.True(t, m.HasPermission("reports:read"))
		assert.False(t, m.HasPermission("reports:write"))
	})
}
