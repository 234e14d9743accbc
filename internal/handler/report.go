package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/election-voting-portal/internal/service"
)

// ReportHandler serves live tallies, turnout, trends and exports to
// administrators, officers and observers.
type ReportHandler struct {
	Reports *service.ReportService
}

func NewReportHandler(reports *service.ReportService) *ReportHandler {
	return &ReportHandler{Reports: reports}
}

// Results returns the current tally; completed elections are served from
// the results cache.
func (h *ReportHandler) Results(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	res, err := h.Reports.LiveResults(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Turnout returns votes cast against eligible voters.
func (h *ReportHandler) Turnout(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	t, err := h.Reports.ElectionTurnout(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Trend returns the hour-of-day distribution of votes.
func (h *ReportHandler) Trend(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	t, err := h.Reports.Trend(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

// Dashboard returns portal-wide counts.
func (h *ReportHandler) Dashboard(c echo.Context) error {
	ctx, cancel := dbCtx(c)
	defer cancel()

	d, err := h.Reports.Dashboard(ctx)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

// ExportCSV streams the results of an election as CSV.
func (h *ReportHandler) ExportCSV(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	res, err := h.Reports.LiveResults(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="election-%d-results.csv"`, id))
	resp.WriteHeader(http.StatusOK)
	return writeResultsCSV(resp, res)
}
