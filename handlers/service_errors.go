package handlers

import (
	"net/http"

	"github.com/fieldbeam/fieldbeam/backend/services"
	"github.com/fieldbeam/fieldbeam/backend/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses.
// Cross-tenant access gets special treatment: a resource that exists under
// another tenant is reported as 404, identical to a missing one, so the
// API cannot be used to probe for foreign resource IDs. Only membership
// denial itself surfaces as 403.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	details := services.GetErrorDetails(err)

	switch {
	case err == services.ErrWrongTenant:
		// Internal wrong-tenant signal; public answer is not found.
		logger.Warn("cross-tenant access collapsed to not found", zap.Error(err))
		if err := utils.WriteNotFound(w, services.ErrRecordNotFound.Error()); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsNotFoundError(err):
		if err := utils.WriteNotFound(w, err.Error()); err != nil {
			logger.Error("failed to write not found response", zap.Error(err))
		}

	case services.IsValidationError(err):
		// Struct validation failures carry per-field messages; surface
		// them alongside any domain error details.
		if fields := utils.GetValidationFields(err); len(fields) > 0 {
			if details == nil {
				details = make(map[string]interface{}, len(fields))
			}
			for field, msg := range fields {
				details[field] = msg
			}
		}
		if err := utils.WriteBadRequest(w, err.Error(), details); err != nil {
			logger.Error("failed to write bad request response", zap.Error(err))
		}

	case services.IsUnauthorizedError(err):
		if err := utils.WriteUnauthorized(w, err.Error()); err != nil {
			logger.Error("failed to write unauthorized response", zap.Error(err))
		}

	case services.IsForbiddenError(err):
		if err := utils.WriteForbidden(w, err.Error()); err != nil {
			logger.Error("failed to write forbidden response", zap.Error(err))
		}

	case services.IsConflictError(err):
		if err := utils.WriteConflict(w, err.Error(), details); err != nil {
			logger.Error("failed to write conflict response", zap.Error(err))
		}

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		logger.Error("internal server error", zap.Error(err))
		if err := utils.WriteInternalServerError(w, "An internal error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}

	default:
		// Unknown error type - log and return internal error
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		if err := utils.WriteInternalServerError(w, "An unexpected error occurred"); err != nil {
			logger.Error("failed to write internal error response", zap.Error(err))
		}
	}
}
