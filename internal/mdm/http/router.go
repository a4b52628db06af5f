package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/mdm/internal/mdm/service"
	"github.com/aussiebroadwan/mdm/internal/mdm/store"
	"github.com/aussiebroadwan/mdm/pkg/httpx"
	"github.com/aussiebroadwan/mdm/pkg/slogx"
)

// APIVersion is the version reported by GET /api/v1. Clients gate their
// connection on it.
const APIVersion = "1.5.0"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store          store.Store
	TokenService   *service.TokenService
	AccountService *service.AccountService
	DeviceService  *service.DeviceService
}

func NewRouter(buildVersion string, st store.Store, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerDevices()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	// POST /api/v1/auth/tokens - strict rate limit (credential exchange)
	issueHandler := &TokenIssueHandler{TokenService: r.TokenService}
	r.Mux.Handle("POST /api/v1/auth/tokens",
		httpx.Chain(issueHandler,
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	sessionHandler := &SessionHandler{
		TokenService:   r.TokenService,
		AccountService: r.AccountService,
	}

	// GET /api/v1/auth - authenticated session probe
	r.Mux.Handle("GET /api/v1/auth",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleInfo),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /api/v1/auth/keepAlive - token rotation
	r.Mux.Handle("POST /api/v1/auth/keepAlive",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleKeepAlive),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// POST /api/v1/auth/invalidateToken - revocation
	r.Mux.Handle("POST /api/v1/auth/invalidateToken",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleInvalidate),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// GET /api/v1 - API version gate
	r.Mux.Handle("GET /api/v1",
		httpx.Chain(VersionHandler(r.buildVersion),
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerDevices() {
	h := &DevicesHandler{DeviceService: r.DeviceService}

	secured := func(fn http.HandlerFunc) http.Handler {
		return httpx.Chain(fn,
			httpx.AuthnMiddleware(r.TokenService),
			httpx.RateLimitByIP(httpx.LenientLimit),
		)
	}

	r.Mux.Handle("GET /api/v1/devices", secured(h.HandleList))
	r.Mux.Handle("POST /api/v1/devices", secured(h.HandleCreate))
	r.Mux.Handle("GET /api/v1/devices/export", secured(h.HandleExport))
	r.Mux.Handle("GET /api/v1/devices/{id}", secured(h.HandleGet))
	r.Mux.Handle("PUT /api/v1/devices/{id}", secured(h.HandleUpdate))
	r.Mux.Handle("DELETE /api/v1/devices/{id}", secured(h.HandleDelete))
}

func (r *Router) registerSystem() {
	// Health check endpoint - lenient rate limit (monitoring systems poll it)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
