package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/authsdk"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
)

// ReadyzHandler godoc
//
//	@Summary		Readiness probe
//	@Description	Checks the database, the token signer and the blacklist backend.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status, uptime, version, checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"at least one dependency is unavailable"
//	@Router			/readyz [get].
func ReadyzHandler(
	startTime time.Time,
	version string,
	st store.Store,
	bl store.Blacklist,
	keys *jwtx.KeySet,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := &authsdk.HealthChecks{
			Database:  "ok",
			Signer:    "ok",
			Blacklist: "ok",
		}
		status := "ok"
		code := http.StatusOK
		degrade := func() {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}

		if err := st.Ping(r.Context()); err != nil {
			checks.Database = "error: " + err.Error()
			degrade()
		}
		if !keys.IsReady() {
			checks.Signer = "error: no keys loaded"
			degrade()
		}
		if err := bl.Ping(r.Context()); err != nil {
			checks.Blacklist = "error: " + err.Error()
			degrade()
		}

		httpx.NoCache(w)
		httpx.WriteJSON(w, code, authsdk.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  checks,
		})
	}
}
