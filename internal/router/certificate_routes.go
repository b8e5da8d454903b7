package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/certichain/internal/handler"
	"github.com/iliyamo/certichain/internal/middleware"
	"github.com/iliyamo/certichain/internal/model"
)

// PublicMiddleware is applied to the unauthenticated certificate routes.
// Cache wraps only the credential-ID lookup; RateLimit wraps every public
// lookup.  Either may be nil.
type PublicMiddleware struct {
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

func chain(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}

// RegisterCertificates registers the certificate endpoints.  Issuance,
// listing and manual verification require a University token; lookups and
// downloads are public.
func RegisterCertificates(e *echo.Echo, h *handler.CertificateHandler, jwtSecret string, pub PublicMiddleware) {
	// Public routes are registered on e directly so the University group's
	// middleware never runs for them.
	e.GET("/v1/certificates/verify/:credential_id", h.LookupByCredentialID, chain(pub.RateLimit, pub.Cache)...)
	e.POST("/v1/certificates/fetch", h.LookupByIdentity, chain(pub.RateLimit)...)
	e.GET("/v1/certificates/:credential_id/download", h.Download, chain(pub.RateLimit)...)

	g := e.Group(
		"/v1/certificates",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUniversity),
	)
	g.POST("", h.Issue)
	g.GET("", h.List)
	g.PUT("/:credential_id/verify", h.Verify)
}
