package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/election-voting-portal/internal/access"
	"github.com/iliyamo/election-voting-portal/internal/handler"
	"github.com/iliyamo/election-voting-portal/internal/middleware"
)

// RegisterVoter registers ballot routes under /v1/voter.  Final results are
// served through the response cache.
func RegisterVoter(e *echo.Echo, v *handler.VoterHandler, policy *access.Policy, jwtSecret string, cache echo.MiddlewareFunc) {
	g := e.Group("/v1/voter",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireCapability(policy, access.Vote),
	)
	g.GET("/elections", v.ListElections)
	g.GET("/elections/:id", v.GetElection)
	g.GET("/elections/:id/results", v.Results, cache)
	g.POST("/vote/otp", v.RequestVoteOTP)
	g.POST("/vote", v.CastVote)
	g.GET("/votes", v.History)
}
