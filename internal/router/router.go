package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/certichain/internal/handler"    // handlers that implement the endpoints
	"github.com/iliyamo/certichain/internal/middleware" // JWT authentication and role enforcement
	"github.com/iliyamo/certichain/internal/model"
)

// RegisterRoutes registers the operational endpoints that never require
// authentication: liveness, readiness and the Prometheus exposition.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, reg prometheus.Gatherer) {
	// Load balancers poll /healthz; it never touches a dependency.
	e.GET("/healthz", handler.Health)
	// /readyz fails while MySQL is unreachable so traffic is held back.
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

// RegisterAuth registers all authentication-related routes.  Register,
// login, refresh and logout live under /v1/auth and need no session;
// /v1/me requires a valid access token of any role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Accepts a refresh token in the body, or a Bearer token to revoke every
	// session of the account.
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.Roles...),
	)
}
