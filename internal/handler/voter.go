package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/service"
)

// VoterHandler serves the ballot and voting endpoints.
type VoterHandler struct {
	Votes   *service.VoteService
	Reports *service.ReportService
}

func NewVoterHandler(votes *service.VoteService, reports *service.ReportService) *VoterHandler {
	return &VoterHandler{Votes: votes, Reports: reports}
}

type castVoteReq struct {
	ElectionID  uint64 `json:"election_id"`
	CandidateID uint64 `json:"candidate_id"`
	OTP         string `json:"otp"`
}

type voteOTPReq struct {
	ElectionID uint64 `json:"election_id"`
}

// ListElections lists public elections (active by default) with the
// caller's has_voted flag.
func (h *VoterHandler) ListElections(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var status model.ElectionStatus
	if s := c.QueryParam("status"); s != "" {
		if status, err = model.ParseElectionStatus(s); err != nil {
			return badRequest(c, "invalid status")
		}
	}
	limit, offset := page(c)
	ctx, cancel := dbCtx(c)
	defer cancel()

	list, err := h.Votes.ListElections(ctx, uid, status, limit, offset)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"elections": list})
}

// GetElection returns one election with its ballot.
func (h *VoterHandler) GetElection(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	e, err := h.Votes.GetElection(ctx, uid, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, e)
}

// RequestVoteOTP sends the code that confirms a ballot.
func (h *VoterHandler) RequestVoteOTP(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req voteOTPReq
	if err := c.Bind(&req); err != nil || req.ElectionID == 0 {
		return badRequest(c, "election_id required")
	}
	if !h.Votes.RequiresOTP() {
		return c.JSON(http.StatusOK, echo.Map{"otp_required": false})
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	code, err := h.Votes.IssueVoteOTP(ctx, uid, req.ElectionID)
	if err != nil {
		return fail(c, err)
	}
	body := echo.Map{"otp_required": true, "message": "a verification code was sent to your email"}
	if code != "" {
		body["otp"] = code
	}
	return c.JSON(http.StatusOK, body)
}

// CastVote records the caller's ballot.
func (h *VoterHandler) CastVote(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req castVoteReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.ElectionID == 0 || req.CandidateID == 0 {
		return badRequest(c, "election_id/candidate_id required")
	}
	if h.Votes.RequiresOTP() && strings.TrimSpace(req.OTP) == "" {
		return badRequest(c, "otp required")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	id, err := h.Votes.Cast(ctx, service.CastVoteInput{
		VoterID:     uid,
		ElectionID:  req.ElectionID,
		CandidateID: req.CandidateID,
		OTP:         strings.TrimSpace(req.OTP),
		IP:          c.RealIP(),
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"vote_id": id, "message": "vote recorded"})
}

// History lists the caller's ballots.
func (h *VoterHandler) History(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	votes, err := h.Votes.History(ctx, uid)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"votes": votes})
}

// Results returns the final results of a completed public election.
func (h *VoterHandler) Results(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := dbCtx(c)
	defer cancel()

	// private elections are invisible to voters
	if _, err := h.Votes.GetElection(ctx, uid, id); err != nil {
		return fail(c, err)
	}
	res, err := h.Reports.FinalResults(ctx, id)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
