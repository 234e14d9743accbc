package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/service"
)

// UserHandler serves account administration, the audit trail and the
// portal dashboard.
type UserHandler struct {
	Users   *service.UserService
	Reports *service.ReportService
}

func NewUserHandler(users *service.UserService, reports *service.ReportService) *UserHandler {
	return &UserHandler{Users: users, Reports: reports}
}

type updateUserReq struct {
	Role       *string `json:"role"`
	IsVerified *bool   `json:"is_verified"`
	Unlock     bool    `json:"unlock"`
}

// ListUsers lists accounts filtered by ?role=&verified=&q=&page=&page_size=.
func (h *UserHandler) ListUsers(c echo.Context) error {
	f := repository.UserFilter{Query: strings.TrimSpace(c.QueryParam("q"))}
	if r := c.QueryParam("role"); r != "" {
		role, err := model.ParseRole(r)
		if err != nil {
			return badRequest(c, "invalid role")
		}
		f.Role = role
	}
	if v := c.QueryParam("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "verified must be true or false")
		}
		f.Verified = &b
	}
	f.Limit, f.Offset = page(c)
	ctx, cancel := dbCtx(c)
	defer cancel()

	users, err := h.Users.List(ctx, f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// UpdateUser changes an account's role, verification or lock.
func (h *UserHandler) UpdateUser(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req updateUserReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	p := repository.UserPatch{IsVerified: req.IsVerified, Unlock: req.Unlock}
	if req.Role != nil {
		role, err := model.ParseRole(*req.Role)
		if err != nil {
			return badRequest(c, "invalid role")
		}
		p.Role = &role
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	u, err := h.Users.Update(ctx, actor(c), id, p)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

// DeleteUser removes an account with its votes and sessions.
func (h *UserHandler) DeleteUser(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Users.Delete(ctx, actor(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// AuditLogs lists audit entries filtered by
// ?actor_id=&action=&entity_type=&entity_id=&page=&page_size=.
func (h *UserHandler) AuditLogs(c echo.Context) error {
	actorID, ok1 := queryID(c, "actor_id")
	entityID, ok2 := queryID(c, "entity_id")
	if !ok1 || !ok2 {
		return badRequest(c, "actor_id and entity_id must be numeric")
	}
	f := repository.AuditFilter{
		ActorID:    actorID,
		Action:     strings.TrimSpace(c.QueryParam("action")),
		EntityType: strings.TrimSpace(c.QueryParam("entity_type")),
		EntityID:   entityID,
	}
	f.Limit, f.Offset = page(c)
	ctx, cancel := dbCtx(c)
	defer cancel()

	logs, err := h.Users.AuditLogs(ctx, f)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"audit_logs": logs})
}

// Dashboard returns portal-wide counts.
func (h *UserHandler) Dashboard(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	d, err := h.Reports.Dashboard(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}
