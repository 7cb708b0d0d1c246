package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/fieldbeam/fieldbeam/backend/models"
	"github.com/fieldbeam/fieldbeam/backend/services/membership"
	"github.com/fieldbeam/fieldbeam/backend/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// MembershipHandler handles membership lifecycle HTTP requests
type MembershipHandler struct {
	svc    *membership.Service
	logger *zap.Logger
}

// NewMembershipHandler creates a new MembershipHandler
func NewMembershipHandler(svc *membership.Service, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{
		svc:    svc,
		logger: logger,
	}
}

// InviteRequest is the body for inviting a member
type InviteRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// ChangeRoleRequest is the body for changing a member's role
type ChangeRoleRequest struct {
	Role string `json:"role"`
}

// HandleListMembers handles GET /api/v1/members
func (h *MembershipHandler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	members, err := h.svc.ListMembers(r.Context(), userID, companyID, limit, offset)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, members)
}

// HandleInvite handles POST /api/v1/members
func (h *MembershipHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req InviteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	m, err := h.svc.Invite(r.Context(), userID, companyID, req.UserID, models.MembershipRole(req.Role))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	h.logger.Info("member invited",
		zap.String("company_id", companyID),
		zap.String("membership_id", m.ID))

	_ = utils.WriteCreated(w, m)
}

// HandleAcceptInvite handles POST /api/v1/members/accept
func (h *MembershipHandler) HandleAcceptInvite(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	m, err := h.svc.AcceptInvite(r.Context(), userID, companyID)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, m)
}

// HandleChangeRole handles PATCH /api/v1/members/{membershipID}/role
func (h *MembershipHandler) HandleChangeRole(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	var req ChangeRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = utils.WriteBadRequest(w, "Invalid request body", nil)
		return
	}

	m, err := h.svc.ChangeRole(r.Context(), userID, companyID, chi.URLParam(r, "membershipID"), models.MembershipRole(req.Role))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, m)
}

// HandleSuspend handles POST /api/v1/members/{membershipID}/suspend
func (h *MembershipHandler) HandleSuspend(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	if err := h.svc.Suspend(r.Context(), userID, companyID, chi.URLParam(r, "membershipID")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleRemove handles DELETE /api/v1/members/{membershipID}
func (h *MembershipHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID, companyID, ok := requestScope(w, r)
	if !ok {
		return
	}

	if err := h.svc.Remove(r.Context(), userID, companyID, chi.URLParam(r, "membershipID")); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}
