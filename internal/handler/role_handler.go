package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/subtodo/internal/model"
)

// RoleServiceInterface はロールハンドラーが必要とするサービスインターフェース。
type RoleServiceInterface interface {
	SetRole(ctx context.Context, caller *model.Caller, targetUserID, role string) error
	RemoveRole(ctx context.Context, caller *model.Caller, targetUserID string) error
}

// RoleHandler は管理者によるロール変更のHTTPハンドラー。
type RoleHandler struct {
	service RoleServiceInterface
}

// NewRoleHandler はRoleHandlerを生成する。
func NewRoleHandler(service RoleServiceInterface) *RoleHandler {
	return &RoleHandler{
		service: service,
	}
}

// setRoleRequest はロール設定リクエストのボディ。
type setRoleRequest struct {
	Role string `json:"role"`
}

// SetRole は対象ユーザーのロールを設定する。
// POST /api/admin/users/{id}/role
func (h *RoleHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	var req setRoleRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := h.service.SetRole(r.Context(), caller, chi.URLParam(r, "id"), req.Role); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Role updated"})
}

// RemoveRole は対象ユーザーのロールを解除する。
// DELETE /api/admin/users/{id}/role
func (h *RoleHandler) RemoveRole(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerFromRequest(w, r)
	if !ok {
		return
	}

	if err := h.service.RemoveRole(r.Context(), caller, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Role removed"})
}
