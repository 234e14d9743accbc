package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/election-voting-portal/internal/access"
	"github.com/iliyamo/election-voting-portal/internal/model"
)

// RequireCapability aborts with 403 unless the authenticated role holds at
// least one of caps.  JWTAuth must run first.
func RequireCapability(policy *access.Policy, caps ...access.Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get(CtxRole).(model.Role)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			for _, cp := range caps {
				if policy.Can(role, cp) {
					return next(c)
				}
			}
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
}
