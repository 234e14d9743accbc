package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/election-voting-portal/internal/access"
	"github.com/iliyamo/election-voting-portal/internal/handler"
	"github.com/iliyamo/election-voting-portal/internal/middleware"
)

// RegisterReports registers live reporting for administrators, officers and
// observers under /v1/reports.
func RegisterReports(e *echo.Echo, r *handler.ReportHandler, policy *access.Policy, jwtSecret string) {
	g := e.Group("/v1/reports",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireCapability(policy, access.ViewReports),
	)
	g.GET("/dashboard", r.Dashboard)
	g.GET("/elections/:id/results", r.Results)
	g.GET("/elections/:id/turnout", r.Turnout)
	g.GET("/elections/:id/trend", r.Trend)
	g.GET("/elections/:id/export.csv", r.ExportCSV, middleware.RequireCapability(policy, access.ExportResults))
}
