package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/service"
)

// ElectionHandler serves election and candidate administration.
type ElectionHandler struct {
	Elections *service.ElectionService
}

func NewElectionHandler(elections *service.ElectionService) *ElectionHandler {
	return &ElectionHandler{Elections: elections}
}

type electionReq struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
	IsPublic    *bool      `json:"is_public"`
	Status      *string    `json:"status"`
}

type transitionReq struct {
	Status string `json:"status"`
}

type candidateReq struct {
	Name      *string `json:"name"`
	Party     *string `json:"party"`
	Manifesto *string `json:"manifesto"`
	PhotoURL  *string `json:"photo_url"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CreateElection stores a new draft election.
func (h *ElectionHandler) CreateElection(c echo.Context) error {
	var req electionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Status != nil {
		return badRequest(c, "new elections start as draft; use the transition endpoint to change status")
	}
	if req.StartDate == nil || req.EndDate == nil {
		return badRequest(c, "start_date/end_date required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	e, err := h.Elections.Create(ctx, actor(c), service.ElectionInput{
		Title:       deref(req.Title),
		Description: deref(req.Description),
		StartDate:   *req.StartDate,
		EndDate:     *req.EndDate,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, e)
}

// ListElections lists elections filtered by ?status=&q=&page=&page_size=.
func (h *ElectionHandler) ListElections(c echo.Context) error {
	f := repository.ElectionFilter{Query: strings.TrimSpace(c.QueryParam("q"))}
	if s := c.QueryParam("status"); s != "" {
		st, err := model.ParseElectionStatus(s)
		if err != nil {
			return badRequest(c, "invalid status")
		}
		f.Status = st
	}
	f.Limit, f.Offset = page(c)
	ctx, cancel := dbCtx(c)
	defer cancel()

	list, err := h.Elections.List(ctx, f)
	if err != nil {
		return fail(c, err)
	}
	if list == nil {
		list = []model.Election{}
	}
	return c.JSON(http.StatusOK, echo.Map{"elections": list})
}

// GetElection returns an election with its candidates.
func (h *ElectionHandler) GetElection(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	e, err := h.Elections.Get(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// UpdateElection edits an election.  Status is not accepted here.
func (h *ElectionHandler) UpdateElection(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req electionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.Status != nil {
		return badRequest(c, "status cannot be updated directly; use the transition endpoint")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	e, err := h.Elections.Update(ctx, actor(c), id, repository.ElectionPatch{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// DeleteElection removes a draft election.
func (h *ElectionHandler) DeleteElection(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Elections.Delete(ctx, actor(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// TransitionElection moves an election one step forward.
func (h *ElectionHandler) TransitionElection(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req transitionReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	target, err := model.ParseElectionStatus(req.Status)
	if err != nil {
		return badRequest(c, "status must be draft, active or completed")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	e, err := h.Elections.Transition(ctx, actor(c), id, target)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// AddCandidate adds a candidate to a draft election.
func (h *ElectionHandler) AddCandidate(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req candidateReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	cand, err := h.Elections.AddCandidate(ctx, actor(c), id, service.CandidateInput{
		Name:      deref(req.Name),
		Party:     deref(req.Party),
		Manifesto: deref(req.Manifesto),
		PhotoURL:  deref(req.PhotoURL),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, cand)
}

// UpdateCandidate edits a candidate of a draft election.
func (h *ElectionHandler) UpdateCandidate(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req candidateReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	cand, err := h.Elections.UpdateCandidate(ctx, actor(c), id, repository.CandidatePatch{
		Name:      req.Name,
		Party:     req.Party,
		Manifesto: req.Manifesto,
		PhotoURL:  req.PhotoURL,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, cand)
}

// DeleteCandidate removes a candidate from a draft election.
func (h *ElectionHandler) DeleteCandidate(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	if err := h.Elections.DeleteCandidate(ctx, actor(c), id); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
