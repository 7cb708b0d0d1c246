package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited
type AuditAction string

const (
	AuditActionCreate AuditAction = "create"
	AuditActionUpdate AuditAction = "update"
	AuditActionDelete AuditAction = "delete"

	AuditActionFileUpload AuditAction = "file_upload"
	AuditActionFileDelete AuditAction = "file_delete"

	AuditActionMemberInvited     AuditAction = "member_invited"
	AuditActionMemberAccepted    AuditAction = "member_accepted"
	AuditActionMemberRoleChanged AuditAction = "member_role_changed"
	AuditActionMemberSuspended   AuditAction = "member_suspended"
	AuditActionMemberRemoved     AuditAction = "member_removed"
)

// AuditLog represents one append-only audit trail entry. Entries are written
// by every mutating operation in the isolation layer and are never updated;
// the retention cleanup in the audit service is the only erasure path.
type AuditLog struct {
	ID           string          `json:"id" db:"id"`
	CompanyID    string          `json:"company_id" db:"company_id"`
	ActorID      *string         `json:"actor_id,omitempty" db:"actor_id"`
	Action       AuditAction     `json:"action" db:"action"`
	ResourceType string          `json:"resource_type" db:"resource_type"`
	ResourceID   *string         `json:"resource_id,omitempty" db:"resource_id"`
	Details      json.RawMessage `json:"details,omitempty" db:"details"` // JSONB snapshot
	IPAddress    string          `json:"ip_address,omitempty" db:"ip_address"`
	RequestID    string          `json:"request_id,omitempty" db:"request_id"`
	Timestamp    time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLog creates a new AuditLog instance
func NewAuditLog(companyID string, action AuditAction, resourceType string) *AuditLog {
	return &AuditLog{
		ID:           uuid.NewString(),
		CompanyID:    companyID,
		Action:       action,
		ResourceType: resourceType,
		Timestamp:    time.Now(),
	}
}

// WithActor sets the acting user ID
func (a *AuditLog) WithActor(userID string) *AuditLog {
	if userID != "" {
		a.ActorID = &userID
	}
	return a
}

// WithResource sets the resource ID
func (a *AuditLog) WithResource(resourceID string) *AuditLog {
	if resourceID != "" {
		a.ResourceID = &resourceID
	}
	return a
}

// WithDetails attaches a metadata snapshot. Marshal failures leave Details
// empty rather than failing the audit write.
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	return a
}
