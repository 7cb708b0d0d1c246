package models

import (
	"time"
)

// TaskStatus represents the workflow state of a task
type TaskStatus string

const (
	TaskStatusOpen       TaskStatus = "open"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusDone       TaskStatus = "done"
)

// Task represents a unit of work inside a project. Tasks inherit their
// tenant from the request context, never from the payload.
type Task struct {
	ID          string     `json:"id" db:"id"`
	CompanyID   string     `json:"company_id" db:"company_id"`
	ProjectID   string     `json:"project_id" db:"project_id"`
	Title       string     `json:"title" db:"title"`
	Description string     `json:"description,omitempty" db:"description"`
	Status      TaskStatus `json:"status" db:"status"`
	AssigneeID  string     `json:"assignee_id,omitempty" db:"assignee_id"`
	DueDate     *time.Time `json:"due_date,omitempty" db:"due_date"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Task model
func (Task) TableName() string {
	return "tasks"
}

// TaskFromRecord builds a Task from a generic store record
func TaskFromRecord(rec map[string]interface{}) *Task {
	t := &Task{
		ID:          stringField(rec, "id"),
		CompanyID:   stringField(rec, "company_id"),
		ProjectID:   stringField(rec, "project_id"),
		Title:       stringField(rec, "title"),
		Description: stringField(rec, "description"),
		Status:      TaskStatus(stringField(rec, "status")),
		AssigneeID:  stringField(rec, "assignee_id"),
		CreatedAt:   timeField(rec, "created_at"),
		UpdatedAt:   timeField(rec, "updated_at"),
	}
	if due, ok := rec["due_date"].(time.Time); ok {
		t.DueDate = &due
	}
	return t
}
