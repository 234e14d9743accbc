package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/election-voting-portal/internal/access"
	"github.com/iliyamo/election-voting-portal/internal/handler"
	"github.com/iliyamo/election-voting-portal/internal/middleware"
)

// RegisterAdmin registers election, user and audit administration under
// /v1/admin.  Each route requires its capability.
func RegisterAdmin(e *echo.Echo, eh *handler.ElectionHandler, uh *handler.UserHandler, policy *access.Policy, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret))
	manageElections := middleware.RequireCapability(policy, access.ManageElections)
	manageUsers := middleware.RequireCapability(policy, access.ManageUsers)

	// ---- Elections ----
	el := g.Group("", manageElections)
	el.POST("/elections", eh.CreateElection)
	el.GET("/elections", eh.ListElections)
	el.GET("/elections/:id", eh.GetElection)
	el.PUT("/elections/:id", eh.UpdateElection)
	el.PATCH("/elections/:id", eh.UpdateElection)
	el.DELETE("/elections/:id", eh.DeleteElection)
	el.POST("/elections/:id/transition", eh.TransitionElection)

	// ---- Candidates ----
	el.POST("/elections/:id/candidates", eh.AddCandidate)
	el.PUT("/candidates/:id", eh.UpdateCandidate)
	el.PATCH("/candidates/:id", eh.UpdateCandidate)
	el.DELETE("/candidates/:id", eh.DeleteCandidate)

	// ---- Users ----
	g.GET("/users", uh.ListUsers, manageUsers)
	g.PUT("/users/:id", uh.UpdateUser, manageUsers)
	g.DELETE("/users/:id", uh.DeleteUser, manageUsers)
	g.GET("/dashboard", uh.Dashboard, manageUsers)

	g.GET("/audit-logs", uh.AuditLogs, middleware.RequireCapability(policy, access.ViewAudit))
}
