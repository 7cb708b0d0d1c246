package models

import (
	"time"

	"github.com/google/uuid"
)

// MembershipStatus represents the lifecycle state of a membership
type MembershipStatus string

const (
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusSuspended MembershipStatus = "suspended"
	MembershipStatusInvited   MembershipStatus = "invited"
)

// MembershipRole represents the role a user holds within a tenant
type MembershipRole string

const (
	MembershipRoleOwner  MembershipRole = "owner"
	MembershipRoleAdmin  MembershipRole = "admin"
	MembershipRoleMember MembershipRole = "member"
)

// ValidRole reports whether role is one of the known membership roles
func ValidRole(role MembershipRole) bool {
	switch role {
	case MembershipRoleOwner, MembershipRoleAdmin, MembershipRoleMember:
		return true
	}
	return false
}

// Membership grants a user a role within a tenant. Memberships are never
// hard-deleted on suspension; they transition status instead. Only an
// explicit removal deletes the row.
type Membership struct {
	ID          string           `json:"id" db:"id"`
	UserID      string           `json:"user_id" db:"user_id"`
	CompanyID   string           `json:"company_id" db:"company_id"`
	Role        MembershipRole   `json:"role" db:"role"`
	Permissions []string         `json:"permissions" db:"permissions"`
	Status      MembershipStatus `json:"status" db:"status"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Membership model
func (Membership) TableName() string {
	return "memberships"
}

// NewMembership creates a membership in the invited state
func NewMembership(userID, companyID string, role MembershipRole) *Membership {
	now := time.Now()
	return &Membership{
		ID:        uuid.NewString(),
		UserID:    userID,
		CompanyID: companyID,
		Role:      role,
		Status:    MembershipStatusInvited,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsActive reports whether the membership currently grants tenant access
func (m *Membership) IsActive() bool {
	return m.Status == MembershipStatusActive
}

// HasPermission reports whether the membership grants the named permission,
// either through the role or through an explicit grant
func (m *Membership) HasPermission(permission string) bool {
	if m.Role == MembershipRoleOwner || m.Role == MembershipRoleAdmin {
		return true
	}
	for _, p := range m.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}
