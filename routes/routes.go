package routes

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/app"
	"github.com/fieldbeam/fieldbeam/backend/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	var sqlDB *sql.DB
	if deps.DB != nil {
		sqlDB = deps.DB.DB
	}
	health := handlers.NewHealthHandler(sqlDB, deps.AuditService, deps.Logger)
	projects := handlers.NewProjectHandler(deps.ProjectService, deps.Logger)
	tasks := handlers.NewTaskHandler(deps.TaskService, deps.Logger)
	records := handlers.NewRecordHandler(deps.ScopedBase, deps.Logger)
	files := handlers.NewFileHandler(deps.FileStore, deps.ScopedBase, deps.Config.Storage.PresignExpiry, deps.Logger)
	members := handlers.NewMembershipHandler(deps.MembershipService, deps.Logger)
	audits := handlers.NewAuditHandler(deps.AuditService, deps.ScopedBase, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	// Presigned downloads carry their own credential in the token, so they
	// bypass session auth. Local driver only; S3 presigns point at AWS.
	if deps.URLSigner != nil && deps.LocalStore != nil {
		signed := handlers.NewSignedDownloadHandler(deps.URLSigner, deps.LocalStore, deps.Logger)
		r.Get("/files/*", signed.HandleDownload)
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)
		r.Use(deps.AuthMiddleware.ExtractTenant)

		// Project management
		r.Route("/projects", func(r chi.Router) {
			r.Get("/", projects.HandleListProjects)
			r.Post("/", projects.HandleCreateProject)
			r.Get("/{projectID}", projects.HandleGetProject)
			r.Put("/{projectID}", projects.HandleUpdateProject)
			r.Delete("/{projectID}", projects.HandleDeleteProject)
			r.Get("/{projectID}/tasks/{taskID}", tasks.HandleGetProjectTask)
		})

		// Task management
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", tasks.HandleListTasks)
			r.Post("/", tasks.HandleCreateTask)
			r.Get("/{taskID}", tasks.HandleGetTask)
			r.Put("/{taskID}", tasks.HandleUpdateTask)
			r.Delete("/{taskID}", tasks.HandleDeleteTask)
		})

		// Generic scoped records (RFIs, daily logs, safety incidents, ...)
		r.Route("/records/{resource}", func(r chi.Router) {
			r.Get("/", records.HandleList)
			r.Post("/", records.HandleCreate)
			r.Get("/count", records.HandleCount)
			r.Get("/{recordID}", records.HandleGet)
			r.Put("/{recordID}", records.HandleUpdate)
			r.Delete("/{recordID}", records.HandleDelete)
		})

		// Tenant files
		r.Route("/files", func(r chi.Router) {
			r.Get("/", files.HandleList)
			r.Post("/", files.HandleUpload)
			r.Get("/{filename}", files.HandleDownload)
			r.Post("/{filename}/presign", files.HandlePresign)
			r.Delete("/{filename}", files.HandleDelete)
		})

		// Membership lifecycle
		r.Route("/members", func(r chi.Router) {
			r.Get("/", members.HandleListMembers)
			r.Post("/", members.HandleInvite)
			r.Post("/accept", members.HandleAcceptInvite)
			r.Patch("/{membershipID}/role", members.HandleChangeRole)
			r.Post("/{membershipID}/suspend", members.HandleSuspend)
			r.Delete("/{membershipID}", members.HandleRemove)
		})

		// Audit trail. The token claim gates the route; the handler
		// re-checks the role against the membership record, which may be
		// fresher than the claim.
		r.Route("/audit-logs", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireRole("owner", "admin"))
			r.Get("/", audits.HandleListAuditLogs)
			r.Get("/count", audits.HandleCountAuditLogs)
			r.Get("/export", audits.HandleExportAuditLogs)
			r.Post("/retention", audits.HandleApplyRetention)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
