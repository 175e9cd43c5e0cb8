package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	apiContext "openfeedback/internal/api/context"
	"openfeedback/internal/api/handlers"
	"openfeedback/internal/api/middleware"
	"openfeedback/internal/platform/config"
)

type Dependencies struct {
	TenantHandler        *handlers.TenantHandler
	GitHubHandler        *handlers.GitHubHandler
	GitHubWebhookHandler *handlers.GitHubWebhookHandler
	HealthHandler        *handlers.HealthHandler
	MetricsHandler       *handlers.MetricsHandler
	AuthMiddleware       *middleware.AuthMiddleware
	TenantMiddleware     *middleware.TenantMiddleware
	RateLimiter          *middleware.RateLimiter
	CORS                 config.CORSConfig
}

func NewRouter(deps *Dependencies) http.Handler {
	router := httprouter.New()

	authMid := deps.AuthMiddleware
	tenantMid := deps.TenantMiddleware
	limit := deps.RateLimiter.Limit

	// Operations
	router.GET("/healthz", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Tenant resolution
	router.GET("/api/v1/tenant",
		chain(deps.TenantHandler.Get, limit("tenant_lookup"), tenantMid.Handle, limit("tenant")))

	// GitHub App installation
	router.GET("/api/v1/github/install-url",
		chain(deps.GitHubHandler.InstallURL, authMid.Handle, limit("api_read")))
	router.GET("/api/v1/github/callback",
		chain(deps.GitHubHandler.Callback, limit("github_callback")))
	router.GET("/api/v1/github/installations",
		chain(deps.GitHubHandler.List, authMid.Handle, limit("api_read")))
	router.POST("/api/v1/github/installations/:installation_id/unlink",
		chain(deps.GitHubHandler.Unlink, authMid.Handle, middleware.RequireRole("admin", "owner"), limit("api_write")))
	router.POST("/api/v1/github/webhooks",
		chain(deps.GitHubWebhookHandler.Handle, limit("github_webhook")))

	return withCORS(deps.CORS, router)
}

func withCORS(cfg config.CORSConfig, h http.Handler) http.Handler {
	middleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		MaxAge:           cfg.MaxAge,
		AllowCredentials: true,
	})
	return middleware.Handler(h)
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
