package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/service"
	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/httpx"
	"github.com/aussiebroadwan/proptrust/pkg/jwtx"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
	"github.com/aussiebroadwan/proptrust/pkg/slogx"

	_ "github.com/aussiebroadwan/proptrust/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	keys         *jwtx.KeySet
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store     store.Store
	blacklist store.Blacklist
	metrics   *metricsx.Metrics
	svc       *service.Services
}

func NewRouter(
	svc *service.Services,
	keys *jwtx.KeySet,
	st store.Store,
	bl store.Blacklist,
	m *metricsx.Metrics,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		keys:         keys,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		store:        st,
		blacklist:    bl,
		metrics:      m,
		svc:          svc,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerPassword()
	r.registerTwoFactor()
	r.registerSessions()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			PropTrust Authentication Service API
//	@version		0.1.0
//	@description	Account authentication and session security for the PropTrust marketplace.
//	@description
//	@description				Access tokens are EdDSA-signed JWTs verifiable through the JWKS endpoint. Refresh tokens are opaque and rotate on every use.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/proptrust
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// handle registers h under pattern with per-route metrics.
func (r *Router) handle(pattern string, h http.Handler) {
	r.Mux.Handle(pattern, r.metrics.Instrument(pattern, h))
}

// secured wraps fn with bearer authentication and the given middleware.
func (r *Router) secured(fn httpx.AuthenticatedFunc, mws ...httpx.Middleware) http.Handler {
	chain := append([]httpx.Middleware{httpx.AuthnMiddleware(r.svc.Auth)}, mws...)
	return httpx.Chain(httpx.Authenticated(fn), chain...)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.svc.Auth}

	// Public credential endpoints - strict limit by IP
	r.handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.handle("POST /v1/auth/email/verify",
		httpx.Chain(http.HandlerFunc(h.HandleVerifyEmail),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.handle("POST /v1/auth/email/resend",
		httpx.Chain(http.HandlerFunc(h.HandleResendVerification),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)

	// Login is limited per IP and email so one client cannot spray many accounts
	r.handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.handle("POST /v1/auth/login/2fa",
		httpx.Chain(http.HandlerFunc(h.HandleLoginTwoFactor),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	r.handle("POST /v1/auth/logout", r.secured(h.HandleLogout, httpx.RateLimitByAccount(httpx.ModerateLimit)))
	r.handle("POST /v1/auth/logout-all", r.secured(h.HandleLogoutAll, httpx.RateLimitByAccount(httpx.ModerateLimit)))
	r.handle("GET /v1/me", r.secured(h.HandleMe, httpx.RateLimitByAccount(httpx.LenientLimit)))
}

func (r *Router) registerPassword() {
	h := &AuthHandler{Auth: r.svc.Auth}

	r.handle("POST /v1/auth/password/forgot",
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.handle("POST /v1/auth/password/reset",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.handle("POST /v1/auth/password/change", r.secured(h.HandleChangePassword, httpx.RateLimitByAccount(httpx.StrictLimit)))
}

func (r *Router) registerTwoFactor() {
	h := &TwoFactorHandler{Auth: r.svc.Auth, TwoFactor: r.svc.TwoFactor}

	// Code-checking endpoints are strict to slow brute force
	r.handle("POST /v1/2fa/setup", r.secured(h.HandleSetup, httpx.RateLimitByAccount(httpx.ModerateLimit)))
	r.handle("POST /v1/2fa/enable", r.secured(h.HandleEnable, httpx.RateLimitByAccount(httpx.StrictLimit)))
	r.handle("POST /v1/2fa/code", r.secured(h.HandleSendCode, httpx.RateLimitByAccount(httpx.StrictLimit)))
	r.handle("POST /v1/2fa/disable", r.secured(h.HandleDisable, httpx.RateLimitByAccount(httpx.StrictLimit)))
	r.handle("POST /v1/2fa/backup-codes", r.secured(h.HandleRegenerateBackupCodes, httpx.RateLimitByAccount(httpx.StrictLimit)))
	r.handle("GET /v1/2fa/backup-codes", r.secured(h.HandleBackupCodesRemaining, httpx.RateLimitByAccount(httpx.LenientLimit)))
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Auth: r.svc.Auth, Sessions: r.svc.Sessions, Audit: r.svc.Audit}

	r.handle("GET /v1/sessions", r.secured(h.HandleList, httpx.RateLimitByAccount(httpx.LenientLimit)))
	r.handle("DELETE /v1/sessions/{sid}", r.secured(h.HandleRevoke, httpx.RateLimitByAccount(httpx.ModerateLimit)))
	r.handle("GET /v1/audit", r.secured(h.HandleAudit, httpx.RateLimitByAccount(httpx.LenientLimit)))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{Admin: r.svc.Admin}
	admin := func(fn httpx.AuthenticatedFunc) http.Handler {
		return r.secured(fn,
			httpx.RequireRole("admin"),
			httpx.RateLimitByAccount(httpx.ModerateLimit),
		)
	}

	r.handle("POST /v1/admin/accounts/{id}/suspend", admin(h.HandleSuspend))
	r.handle("POST /v1/admin/accounts/{id}/reactivate", admin(h.HandleReactivate))
	r.handle("POST /v1/admin/accounts/{id}/unlock", admin(h.HandleUnlock))
	r.handle("POST /v1/admin/accounts/{id}/password", admin(h.HandleResetPassword))
	r.handle("GET /v1/admin/accounts/{id}/audit", admin(h.HandleAudit))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.blacklist, r.keys),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	if r.metrics != nil {
		r.Mux.Handle("GET /metrics", r.metrics.Handler())
	}

	r.handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.keys),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
