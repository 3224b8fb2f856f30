package http

import (
	"net/http"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/service"
	"github.com/aussiebroadwan/proptrust/pkg/authsdk"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
)

// AuthHandler serves registration, login, token and password endpoints.
type AuthHandler struct {
	Auth *service.AuthService
}

// HandleRegister handles POST /v1/auth/register
//
//	@Summary		Register an account
//	@Description	Creates a pending account and emails a verification token. Admin accounts cannot be self-registered.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest		true	"Account details"
//	@Success		201		{object}	authsdk.AccountResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid request or weak password"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Role cannot be self-registered"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email already registered"
//	@Router			/v1/auth/register [post].
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.Auth.Register(r.Context(), service.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Role:     domain.Role(req.Role),
	}, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, accountResponse(a))
}

// HandleVerifyEmail handles POST /v1/auth/email/verify
//
//	@Summary	Verify email address
//	@Tags		Auth
//	@Accept		json
//	@Param		request	body	authsdk.VerifyEmailRequest	true	"Verification token"
//	@Success	204
//	@Failure	400	{object}	authsdk.ErrorResponse	"Token invalid, used or expired"
//	@Router		/v1/auth/email/verify [post].
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyEmailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Auth.VerifyEmail(r.Context(), req.Token, clientInfo(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleResendVerification handles POST /v1/auth/email/resend
//
//	@Summary		Resend verification email
//	@Description	Always answers 202 so the response does not reveal whether the email is registered.
//	@Tags			Auth
//	@Accept			json
//	@Param			request	body	authsdk.EmailRequest	true	"Email"
//	@Success		202
//	@Router			/v1/auth/email/resend [post].
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req authsdk.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Auth.ResendVerification(r.Context(), req.Email, clientInfo(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Sign in
//	@Description	Returns tokens, or a two-factor challenge when the account has a second factor.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid email or password"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Account suspended, deleted or not activated"
//	@Failure		423		{object}	authsdk.ErrorResponse	"Account locked; see Retry-After"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Auth.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleLoginTwoFactor handles POST /v1/auth/login/2fa
//
//	@Summary		Complete a two-factor login
//	@Description	Accepts the current code or an unused backup code.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginTwoFactorRequest	true	"Challenge and code"
//	@Success		200		{object}	authsdk.LoginResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code or challenge"
//	@Failure		423		{object}	authsdk.ErrorResponse	"Two-factor verification locked"
//	@Router			/v1/auth/login/2fa [post].
func (h *AuthHandler) HandleLoginTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginTwoFactorRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.Auth.VerifyLoginCode(r.Context(), req.ChallengeToken, req.Code, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, loginResponse(res))
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Rotate tokens
//	@Description	Consumes the refresh token and returns a new access and refresh token for the same session.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.ErrorResponse	"Refresh token invalid, used or expired"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Account suspended or deleted"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := h.Auth.Refresh(r.Context(), req.RefreshToken, clientInfo(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary	Sign out of this session
//	@Tags		Auth
//	@Security	BearerAuth
//	@Success	204
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Router		/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	if err := h.Auth.Logout(r.Context(), auth, clientInfo(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutAll handles POST /v1/auth/logout-all
//
//	@Summary	Sign out everywhere
//	@Tags		Auth
//	@Security	BearerAuth
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.LogoutAllRequest	false	"Keep the current session"
//	@Success	200		{object}	authsdk.RevokedResponse
//	@Failure	401		{object}	authsdk.ErrorResponse
//	@Router		/v1/auth/logout-all [post].
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	var req authsdk.LogoutAllRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	n, err := h.Auth.LogoutAll(r.Context(), auth, req.KeepCurrent)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.RevokedResponse{Revoked: n})
}

// HandleForgotPassword handles POST /v1/auth/password/forgot
//
//	@Summary		Request a password reset
//	@Description	Always answers 202 so the response does not reveal whether the email is registered.
//	@Tags			Password
//	@Accept			json
//	@Param			request	body	authsdk.EmailRequest	true	"Email"
//	@Success		202
//	@Router			/v1/auth/password/forgot [post].
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.EmailRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Auth.ForgotPassword(r.Context(), req.Email, clientInfo(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleResetPassword handles POST /v1/auth/password/reset
//
//	@Summary		Reset password with a token
//	@Description	Signs out every session and clears any lockout.
//	@Tags			Password
//	@Accept			json
//	@Param			request	body	authsdk.ResetPasswordRequest	true	"Token and new password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"Token invalid, or password weak or reused"
//	@Router			/v1/auth/password/reset [post].
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Auth.ResetPassword(r.Context(), req.Token, req.NewPassword, clientInfo(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangePassword handles POST /v1/auth/password/change
//
//	@Summary		Change password
//	@Description	Keeps the current session and signs out every other one.
//	@Tags			Password
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.ChangePasswordRequest	true	"Current and new password"
//	@Success		204
//	@Failure		400	{object}	authsdk.ErrorResponse	"Password weak or reused"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Current password wrong"
//	@Router			/v1/auth/password/change [post].
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	var req authsdk.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Auth.ChangePassword(r.Context(), auth, req.CurrentPassword, req.NewPassword, clientInfo(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe handles GET /v1/me
//
//	@Summary	Current account and profile
//	@Tags		Account
//	@Security	BearerAuth
//	@Produce	json
//	@Success	200	{object}	authsdk.MeResponse
//	@Failure	401	{object}	authsdk.ErrorResponse
//	@Router		/v1/me [get].
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request, auth httpx.AuthContext) {
	a, p, err := h.Auth.Me(r.Context(), auth)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MeResponse{
		Account: accountResponse(a),
		Profile: profileResponse(p),
	})
}
