package http

import (
	"net/http"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/service"
	"github.com/aussiebroadwan/proptrust/pkg/authsdk"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
)

// TwoFactorHandler handles all two-factor endpoints.
type TwoFactorHandler struct {
	Auth      *service.AuthService
	TwoFactor *service.TwoFactor
}

// HandleSetup handles POST /v1/2fa/setup
//
//	@Summary		Begin two-factor enrolment
//	@Description	Email and SMS enrolment sends a code; authenticator enrolment returns the secret and provisioning URL.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TwoFactorSetupRequest	true	"Method"
//	@Success		200		{object}	authsdk.TwoFactorSetupResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Unknown method or missing phone"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Two-factor already enabled"
//	@Router			/v1/2fa/setup [post].
func (h *TwoFactorHandler) HandleSetup(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	var req authsdk.TwoFactorSetupRequest
	if !decode(w, r, &req) {
		return
	}
	method, ok := domain.ParseTwoFactorMethod(req.Method)
	if !ok {
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "method must be email, sms or authenticator").WriteError(w)
		return
	}
	setup, err := h.Auth.BeginTwoFactorSetup(r.Context(), auth, method, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorSetupResponse{
		Method:          string(setup.Method),
		Secret:          setup.Secret,
		ProvisioningURL: setup.ProvisioningURL,
		Destination:     setup.Destination,
	})
}

// HandleEnable handles POST /v1/2fa/enable
//
//	@Summary		Confirm two-factor enrolment
//	@Description	Enables two-factor, returns backup codes (shown once) and signs out every other session.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.TwoFactorCodeRequest	true	"Code"
//	@Success		200		{object}	authsdk.BackupCodesResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code"
//	@Router			/v1/2fa/enable [post].
func (h *TwoFactorHandler) HandleEnable(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	var req authsdk.TwoFactorCodeRequest
	if !decode(w, r, &req) {
		return
	}
	codes, err := h.Auth.EnableTwoFactor(r.Context(), auth, req.Code, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{Codes: codes})
}

// HandleSendCode handles POST /v1/2fa/code
//
//	@Summary		Send a two-factor code
//	@Description	Delivers a fresh code to an email or SMS factor so it can authorise disabling two-factor or regenerating backup codes.
//	@Tags			Two-Factor
//	@Security		BearerAuth
//	@Produce		json
//	@Success		202	{object}	authsdk.TwoFactorCodeSentResponse
//	@Failure		400	{object}	authsdk.ErrorResponse	"Two-factor not enabled or uses an authenticator app"
//	@Failure		423	{object}	authsdk.ErrorResponse	"Two-factor locked"
//	@Router			/v1/2fa/code [post].
func (h *TwoFactorHandler) HandleSendCode(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	sent, err := h.Auth.SendTwoFactorCode(r.Context(), auth)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusAccepted, authsdk.TwoFactorCodeSentResponse{
		Method:      string(sent.Method),
		Destination: sent.Destination,
	})
}

// HandleDisable handles POST /v1/2fa/disable
//
//	@Summary	Disable two-factor
//	@Tags		Two-Factor
//	@Security	BearerAuth
//	@Accept		json
//	@Param		request	body	authsdk.TwoFactorDisableRequest	true	"Password and code"
//	@Success	204
//	@Failure	400	{object}	authsdk.ErrorResponse	"Invalid code or two-factor not enabled"
//	@Failure	401	{object}	authsdk.ErrorResponse	"Wrong password"
//	@Router		/v1/2fa/disable [post].
func (h *TwoFactorHandler) HandleDisable(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	var req authsdk.TwoFactorDisableRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Auth.DisableTwoFactor(r.Context(), auth, req.Password, req.Code, clientInfo(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRegenerateBackupCodes handles POST /v1/2fa/backup-codes
//
//	@Summary	Regenerate backup codes
//	@Tags		Two-Factor
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.TwoFactorCodeRequest	true	"Current code"
//	@Success	200		{object}	authsdk.BackupCodesResponse
//	@Failure	400		{object}	authsdk.ErrorResponse
//	@Router		/v1/2fa/backup-codes [post].
func (h *TwoFactorHandler) HandleRegenerateBackupCodes(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	var req authsdk.TwoFactorCodeRequest
	if !decode(w, r, &req) {
		return
	}
	codes, err := h.Auth.RegenerateBackupCodes(r.Context(), auth, req.Code, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesResponse{Codes: codes})
}

// HandleBackupCodesRemaining handles GET /v1/2fa/backup-codes
//
//	@Summary	Count unused backup codes
//	@Tags		Two-Factor
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	authsdk.BackupCodesRemainingResponse
//	@Router		/v1/2fa/backup-codes [get].
func (h *TwoFactorHandler) HandleBackupCodesRemaining(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	n, err := h.TwoFactor.BackupCodesRemaining(r.Context(), auth.AccountID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BackupCodesRemainingResponse{Remaining: n})
}
