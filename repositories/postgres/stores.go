package postgres

import (
	"github.com/fieldbeam/fieldbeam/backend/repositories"
	"go.uber.org/zap"
)

// TableSpecs declares every table the record store layer is allowed to
// touch. A table absent from this list has no store and cannot be reached
// through the generic CRUD path.
var TableSpecs = []TableSpec{
	{
		Name: "projects",
		Columns: []string{
			"id", "company_id", "name", "description", "address", "status",
			"created_at", "updated_at",
		},
	},
	{
		Name: "tasks",
		Columns: []string{
			"id", "company_id", "project_id", "title", "description", "status",
			"assignee_id", "due_date", "created_at", "updated_at",
		},
		Parents: map[string]ParentSpec{"project_id": {Table: "projects"}},
	},
	{
		Name: "rfis",
		Columns: []string{
			"id", "company_id", "project_id", "subject", "question", "answer",
			"status", "created_at", "updated_at",
		},
		Parents: map[string]ParentSpec{"project_id": {Table: "projects"}},
	},
	{
		Name: "daily_logs",
		Columns: []string{
			"id", "company_id", "project_id", "log_date", "weather", "notes",
			"crew", "created_at", "updated_at",
		},
		JSONColumns: []string{"crew"},
		Parents:     map[string]ParentSpec{"project_id": {Table: "projects"}},
	},
	{
		Name: "safety_incidents",
		Columns: []string{
			"id", "company_id", "project_id", "severity", "description",
			"occurred_at", "created_at", "updated_at",
		},
		Parents: map[string]ParentSpec{"project_id": {Table: "projects"}},
	},
	{
		Name: "invoices",
		Columns: []string{
			"id", "company_id", "project_id", "number", "amount_cents",
			"status", "line_items", "created_at", "updated_at",
		},
		JSONColumns: []string{"line_items"},
		Parents:     map[string]ParentSpec{"project_id": {Table: "projects"}},
	},
	{
		Name: "comments",
		Columns: []string{
			"id", "company_id", "resource_type", "resource_id", "author_id",
			"body", "created_at", "updated_at",
		},
	},
}

// NewStoreSet builds the full set of record stores over the declared table
// specs. The set is assembled once at startup and handed to services as a
// dependency.
func NewStoreSet(db *DB, audit AuditSink, logger *zap.Logger) repositories.StoreSet {
	set := make(repositories.StoreSet, len(TableSpecs))
	for _, spec := range TableSpecs {
		set[spec.Name] = NewTenantStore(db, spec, audit, logger)
	}
	return set
}
