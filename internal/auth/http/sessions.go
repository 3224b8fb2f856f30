package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/service"
	"github.com/aussiebroadwan/proptrust/pkg/authsdk"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// SessionsHandler lists and revokes the caller's sessions and serves their
// own audit trail.
type SessionsHandler struct {
	Auth     *service.AuthService
	Sessions *service.Sessions
	Audit    *service.AuditTrail
}

// HandleList handles GET /v1/sessions
//
//	@Summary	List active sessions
//	@Tags		Sessions
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	authsdk.SessionsResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Router		/v1/sessions [get].
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	sessions, err := h.Sessions.List(r.Context(), auth.AccountID, auth.SessionID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, sessionsResponse(sessions))
}

// HandleRevoke handles DELETE /v1/sessions/{sid}
//
//	@Summary	Revoke one session
//	@Tags		Sessions
//	@Security	BearerAuth
//	@Param		sid	path	string	true	"Session ID"
//	@Success	204
//	@Failure	404	{object}	authsdk.ErrorResponse	"No such session"
//	@Router		/v1/sessions/{sid} [delete].
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	if err := h.Auth.RevokeSession(r.Context(), auth, r.PathValue("sid"), clientInfo(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAudit handles GET /v1/audit
//
//	@Summary	Own security events
//	@Tags		Sessions
//	@Security	BearerAuth
//	@Produce	json
//	@Param		since	query		string	false	"RFC 3339 lower bound"
//	@Param		limit	query		int		false	"Maximum events (default 50, max 500)"
//	@Success	200		{object}	authsdk.AuditEventsResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Router		/v1/audit [get].
func (h *SessionsHandler) HandleAudit(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	since, limit, ok := auditParams(w, r)
	if !ok {
		return
	}
	events, err := h.Audit.List(r.Context(), auth.AccountID, since, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, auditEventsResponse(events))
}

// auditParams parses since and limit, answering 400 itself on failure.
func auditParams(w http.ResponseWriter, r *http.Request) (time.Time, int, bool) {
	q := r.URL.Query()

	var since time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "since must be RFC 3339").WriteError(w)
			return time.Time{}, 0, false
		}
		since = t
	}

	limit := defaultAuditLimit
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "limit must be a positive integer").WriteError(w)
			return time.Time{}, 0, false
		}
		limit = min(n, maxAuditLimit)
	}
	return since, limit, true
}
