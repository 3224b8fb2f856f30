package http

import (
	"net/http"

	"github.com/aussiebroadwan/proptrust/internal/auth/service"
	"github.com/aussiebroadwan/proptrust/pkg/authsdk"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
)

// AdminHandler exposes account administration to admin tokens.
type AdminHandler struct {
	Admin *service.AdminService
}

// HandleSuspend handles POST /v1/admin/accounts/{id}/suspend
//
//	@Summary		Suspend an account
//	@Description	Blocks sign-in and revokes every session of the account.
//	@Tags			Admin
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string					true	"Account ID"
//	@Param			request	body	authsdk.SuspendRequest	true	"Reason"
//	@Success		204
//	@Failure		403	{object}	authsdk.ErrorResponse	"Not an admin, or own account"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Unknown account"
//	@Router			/v1/admin/accounts/{id}/suspend [post].
func (h *AdminHandler) HandleSuspend(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	var req authsdk.SuspendRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Admin.Suspend(r.Context(), auth, r.PathValue("id"), req.Reason); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReactivate handles POST /v1/admin/accounts/{id}/reactivate
//
//	@Summary	Reactivate a suspended account
//	@Tags		Admin
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Account ID"
//	@Success	204
//	@Failure	404	{object}	authsdk.ErrorResponse	"Unknown account"
//	@Router		/v1/admin/accounts/{id}/reactivate [post].
func (h *AdminHandler) HandleReactivate(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	if err := h.Admin.Reactivate(r.Context(), auth, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlock handles POST /v1/admin/accounts/{id}/unlock
//
//	@Summary	Clear a lockout
//	@Tags		Admin
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Account ID"
//	@Success	204
//	@Failure	404	{object}	authsdk.ErrorResponse	"Unknown account"
//	@Router		/v1/admin/accounts/{id}/unlock [post].
func (h *AdminHandler) HandleUnlock(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	if err := h.Admin.Unlock(r.Context(), auth, r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResetPassword handles POST /v1/admin/accounts/{id}/password
//
//	@Summary	Set a new password for an account
//	@Tags		Admin
//	@Security	BearerAuth
//	@Accept		json
//	@Param		id		path	string								true	"Account ID"
//	@Param		request	body	authsdk.AdminResetPasswordRequest	true	"New password"
//	@Success	204
//	@Failure	400	{object}	authsdk.ErrorResponse	"Password weak or reused"
//	@Failure	404	{object}	authsdk.ErrorResponse	"Unknown account"
//	@Router		/v1/admin/accounts/{id}/password [post].
func (h *AdminHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	var req authsdk.AdminResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Admin.ResetPassword(r.Context(), auth, r.PathValue("id"), req.NewPassword); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAudit handles GET /v1/admin/accounts/{id}/audit
//
//	@Summary	Audit trail of an account
//	@Tags		Admin
//	@Security	BearerAuth
//	@Produce	json
//	@Param		id		path		string	true	"Account ID"
//	@Param		since	query		string	false	"RFC 3339 lower bound"
//	@Param		limit	query		int		false	"Maximum events (default 50, max 500)"
//	@Success	200		{object}	authsdk.AuditEventsResponse
//	@Router		/v1/admin/accounts/{id}/audit [get].
func (h *AdminHandler) HandleAudit(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	since, limit, ok := auditParams(w, r)
	if !ok {
		return
	}
	events, err := h.Admin.AuditLog(r.Context(), r.PathValue("id"), since, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, auditEventsResponse(events))
}
