package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/proptrust/internal/auth/domain"
	"github.com/aussiebroadwan/proptrust/internal/auth/service"
	"github.com/aussiebroadwan/proptrust/pkg/authsdk"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"
)

// Geo headers set by the edge proxy, checked in order.
var countryHeaders = []string{"CF-IPCountry", "X-Country-Code"}

// clientInfo captures the request origin for audit and session metadata.
func clientInfo(r *http.Request) domain.ClientInfo {
	ci := domain.ClientInfo{
		IP:        httpx.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	for _, h := range countryHeaders {
		if v := r.Header.Get(h); v != "" && v != "XX" {
			ci.Country = v
			break
		}
	}
	return ci
}

func statusFor(kind service.ErrorKind) int {
	switch kind {
	case service.KindInvalidCredentials, service.KindInvalidToken, service.KindTokenExpired:
		return http.StatusUnauthorized
	case service.KindAccountLocked, service.KindTwoFactorLocked:
		return http.StatusLocked
	case service.KindAccountSuspended, service.KindAccountDeleted, service.KindAccountNotActivated, service.KindForbidden:
		return http.StatusForbidden
	case service.KindEmailTaken, service.KindTwoFactorAlreadyEnabled:
		return http.StatusConflict
	case service.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

// writeError maps service errors to API errors. Anything else is logged and
// reported as a server error without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	var se *service.Error
	if !errors.As(err, &se) {
		log.Error("request failed", "err", err)
		authsdk.ErrServerError.WriteError(w)
		return
	}

	apiErr := authsdk.NewAPIError(statusFor(se.Kind), string(se.Kind), se.Message)
	apiErr.RetryAfter = se.RetryAfter
	if se.Kind == service.KindInvalidToken || se.Kind == service.KindTokenExpired {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+se.Message+`"`)
	}
	log.Info("request rejected", "error", se.Kind)
	apiErr.WriteError(w)
}

// decode reads a JSON body, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to parse request", "err", err)
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "Invalid JSON body").WriteError(w)
		return false
	}
	return true
}
