package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/fieldbeam/fieldbeam/backend/services/scoped"
	"github.com/fieldbeam/fieldbeam/backend/storage"
	"github.com/fieldbeam/fieldbeam/backend/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxUploadBytes caps multipart uploads at 100 MiB
const maxUploadBytes = 100 << 20

// FileHandler handles tenant file HTTP requests. The membership check runs
// before any storage access; the store itself enforces the tenant prefix.
type FileHandler struct {
	store         storage.FileStore
	base          *scoped.Service
	presignExpiry time.Duration
	logger        *zap.Logger
}

// NewFileHandler creates a new FileHandler
func NewFileHandler(store storage.FileStore, base *scoped.Service, presignExpiry time.Duration, logger *zap.Logger) *FileHandler {
	if presignExpiry <= 0 {
		presignExpiry = 15 * time.Minute
	}
	return &FileHandler{
		store:         store,
		base:          base,
		presignExpiry: presignExpiry,
		logger:        logger,
	}
}

// fileOptions builds the storage scope from query parameters
func fileOptions(r *http.Request) storage.FileOptions {
	return storage.FileOptions{
		ProjectID: r.URL.Query().Get("project_id"),
		Category:  r.URL.Query().Get("category"),
	}
}

// HandleUpload handles POST /api/v1/files
func (h *FileHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	if _, err := h.base.RequireMember(r.Context(), userID, companyID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		_ = utils.WriteBadRequest(w, "Missing file in request", nil)
		return
	}
	defer file.Close()

	info, err := h.store.Upload(r.Context(), companyID, fileOptions(r), header.Filename, file, userID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("file uploaded",
		zap.String("company_id", companyID),
		zap.String("key", info.Key),
		zap.Int64("size", info.Size))

	_ = utils.WriteCreated(w, info)
}

// HandleList handles GET /api/v1/files
func (h *FileHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	if _, err := h.base.RequireMember(r.Context(), userID, companyID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	files, err := h.store.List(r.Context(), companyID, fileOptions(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, files)
}

// HandleDownload handles GET /api/v1/files/{filename}
func (h *FileHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	if _, err := h.base.RequireMember(r.Context(), userID, companyID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	body, err := h.store.Download(r.Context(), companyID, fileOptions(r), chi.URLParam(r, "filename"))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("file download interrupted", zap.Error(err))
	}
}

// HandlePresign handles POST /api/v1/files/{filename}/presign
func (h *FileHandler) HandlePresign(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	if _, err := h.base.RequireMember(r.Context(), userID, companyID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	url, err := h.store.PresignURL(r.Context(), companyID, fileOptions(r), chi.URLParam(r, "filename"), h.presignExpiry)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, map[string]interface{}{
		"url":        url,
		"expires_in": int(h.presignExpiry.Seconds()),
	})
}

// HandleDelete handles DELETE /api/v1/files/{filename}
func (h *FileHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}
	if _, err := h.base.RequireMember(r.Context(), userID, companyID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	if err := h.store.Delete(r.Context(), companyID, fileOptions(r), chi.URLParam(r, "filename"), userID); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// SignedDownloadHandler serves presigned local downloads. The token in the
// query string is the only credential; it names exactly one storage key
// and carries its own expiry.
type SignedDownloadHandler struct {
	signer *storage.URLSigner
	store  *storage.LocalStore
	logger *zap.Logger
}

// NewSignedDownloadHandler creates a handler serving signed local downloads
func NewSignedDownloadHandler(signer *storage.URLSigner, store *storage.LocalStore, logger *zap.Logger) *SignedDownloadHandler {
	return &SignedDownloadHandler{
		signer: signer,
		store:  store,
		logger: logger,
	}
}

// HandleDownload handles GET /files/* with a token query parameter
func (h *SignedDownloadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		_ = utils.WriteUnauthorized(w, "Missing download token")
		return
	}

	key, err := h.signer.Verify(token)
	if err != nil {
		_ = utils.WriteUnauthorized(w, "Invalid or expired download token")
		return
	}

	body, err := h.store.Open(key)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("signed download interrupted", zap.Error(err))
	}
}
