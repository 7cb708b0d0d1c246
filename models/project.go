package models

import (
	"time"
)

// ProjectStatus represents the lifecycle state of a construction project
type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
)

// Project represents a construction project scoped to one tenant
type Project struct {
	ID          string        `json:"id" db:"id"`
	CompanyID   string        `json:"company_id" db:"company_id"`
	Name        string        `json:"name" db:"name"`
	Description string        `json:"description,omitempty" db:"description"`
	Address     string        `json:"address,omitempty" db:"address"`
	Status      ProjectStatus `json:"status" db:"status"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Project model
func (Project) TableName() string {
	return "projects"
}

// ProjectFromRecord builds a Project from a generic store record
func ProjectFromRecord(rec map[string]interface{}) *Project {
	return &Project{
		ID:          stringField(rec, "id"),
		CompanyID:   stringField(rec, "company_id"),
		Name:        stringField(rec, "name"),
		Description: stringField(rec, "description"),
		Address:     stringField(rec, "address"),
		Status:      ProjectStatus(stringField(rec, "status")),
		CreatedAt:   timeField(rec, "created_at"),
		UpdatedAt:   timeField(rec, "updated_at"),
	}
}

// stringField extracts a string column from a record, tolerating nil
func stringField(rec map[string]interface{}, key string) string {
	if v, ok := rec[key].(string); ok {
		return v
	}
	return ""
}

// timeField extracts a time column from a record, tolerating nil
func timeField(rec map[string]interface{}, key string) time.Time {
	if v, ok := rec[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}
