package middleware

import "github.com/labstack/echo/v4"

// userID returns the authenticated account ID as set by JWTAuth, or "guest"
// on public routes.  It only feeds cache and rate limit keys.
func userID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "guest"
}
