package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/otp"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
)

// VoteService casts ballots and serves the voter's view of elections.
type VoteService struct {
	users      *repository.UserRepo
	elections  *repository.ElectionRepo
	candidates *repository.CandidateRepo
	votes      *repository.VoteRepo
	otps       *OTPManager
	requireOTP bool
	events     queue.Recorder

	Now func() time.Time
}

func NewVoteService(users *repository.UserRepo, elections *repository.ElectionRepo, candidates *repository.CandidateRepo, votes *repository.VoteRepo, otps *OTPManager, requireOTP bool, events queue.Recorder) *VoteService {
	return &VoteService{
		users:      users,
		elections:  elections,
		candidates: candidates,
		votes:      votes,
		otps:       otps,
		requireOTP: requireOTP,
		events:     events,
		Now:        time.Now,
	}
}

// RequiresOTP reports whether ballots must carry a vote OTP.
func (s *VoteService) RequiresOTP() bool { return s.requireOTP }

// CastVoteInput is one ballot.
type CastVoteInput struct {
	VoterID     uint64
	ElectionID  uint64
	CandidateID uint64
	OTP         string
	IP          string
}

// Cast records a ballot.  Preconditions are checked in order, each with its
// own error: the voter is verified, the election is active and inside its
// window, the candidate stands in it, the voter has not voted, and the vote
// OTP (when required) is valid for this election.  The vote row, the
// candidate's counter and the OTP consumption share one transaction.  The
// vote is inserted first, so a concurrent second ballot fails on the unique
// (election, voter) index with ErrAlreadyVoted before it can touch the code.
func (s *VoteService) Cast(ctx context.Context, in CastVoteInput) (uint64, error) {
	now := s.Now().UTC()

	voter, err := s.users.GetByID(ctx, in.VoterID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return 0, ErrVoterNotFound
		}
		return 0, err
	}
	if !voter.IsVerified {
		return 0, ErrVoterNotVerified
	}

	election, err := s.elections.GetByID(ctx, in.ElectionID)
	if err != nil {
		return 0, err
	}
	if election.Status != model.StatusActive {
		return 0, ErrElectionNotActive
	}
	if !election.AcceptsVotesAt(now) {
		return 0, ErrOutsideVotingWindow
	}

	candidate, err := s.candidates.GetByID(ctx, in.CandidateID)
	if err != nil {
		if errors.Is(err, repository.ErrCandidateNotFound) {
			return 0, ErrCandidateNotInElection
		}
		return 0, err
	}
	if candidate.ElectionID != election.ID {
		return 0, ErrCandidateNotInElection
	}

	voted, err := s.votes.HasVoted(ctx, election.ID, voter.ID)
	if err != nil {
		return 0, err
	}
	if voted {
		return 0, ErrAlreadyVoted
	}

	voteID, err := s.insert(ctx, model.Vote{
		ElectionID:  election.ID,
		VoterID:     voter.ID,
		CandidateID: candidate.ID,
		CastAt:      now,
		IPAddress:   in.IP,
	}, voter.Email, in.OTP)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateVote) {
			return 0, ErrAlreadyVoted
		}
		return 0, err
	}

	if s.events != nil {
		s.events.Record(ctx, queue.NewAuditEvent(queue.ActionVoteCast, queue.EntityVote, voteID, voter.ID).
			With(map[string]any{"election_id": election.ID}, in.IP))
	}
	return voteID, nil
}

func (s *VoteService) insert(ctx context.Context, v model.Vote, email, code string) (uint64, error) {
	if s.requireOTP && !otp.WellFormed(code) {
		return 0, ErrInvalidOTP
	}
	tx, err := s.votes.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	id, err := s.votes.InsertTx(ctx, tx, v)
	if err != nil {
		return 0, err
	}
	if err := s.candidates.IncrementVoteCountTx(ctx, tx, v.CandidateID); err != nil {
		return 0, err
	}
	if s.requireOTP {
		if err := s.otps.ConsumeTx(ctx, tx, email, code, model.PurposeVote, voteScope(v.ElectionID)); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	committed = true
	return id, nil
}

// IssueVoteOTP sends the voter a code to confirm a ballot in electionID.
// The election must currently accept the voter's ballot.
func (s *VoteService) IssueVoteOTP(ctx context.Context, voterID, electionID uint64) (string, error) {
	voter, err := s.users.GetByID(ctx, voterID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrVoterNotFound
		}
		return "", err
	}
	if !voter.IsVerified {
		return "", ErrVoterNotVerified
	}
	election, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return "", err
	}
	if election.Status != model.StatusActive {
		return "", ErrElectionNotActive
	}
	if !election.AcceptsVotesAt(s.Now()) {
		return "", ErrOutsideVotingWindow
	}
	voted, err := s.votes.HasVoted(ctx, electionID, voterID)
	if err != nil {
		return "", err
	}
	if voted {
		return "", ErrAlreadyVoted
	}
	return s.otps.IssueScoped(ctx, voter, model.PurposeVote, voteScope(electionID))
}

func voteScope(electionID uint64) string {
	return "election:" + strconv.FormatUint(electionID, 10)
}

// VoterElection is an election as listed to a voter.
type VoterElection struct {
	model.Election
	HasVoted bool `json:"has_voted"`
}

// VoterElectionDetail adds the candidates on the ballot.
type VoterElectionDetail struct {
	VoterElection
	Candidates []model.Candidate `json:"candidates"`
}

// ListElections returns public elections in status (active by default)
// flagged with whether voterID has voted in each.
func (s *VoteService) ListElections(ctx context.Context, voterID uint64, status model.ElectionStatus, limit, offset uint64) ([]VoterElection, error) {
	if status == "" {
		status = model.StatusActive
	}
	if status == model.StatusDraft {
		return []VoterElection{}, nil
	}
	list, err := s.elections.List(ctx, repository.ElectionFilter{
		Status:     status,
		PublicOnly: true,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}
	voted, err := s.votes.VotedElectionIDs(ctx, voterID)
	if err != nil {
		return nil, err
	}
	out := make([]VoterElection, 0, len(list))
	for _, e := range list {
		out = append(out, VoterElection{Election: e, HasVoted: voted[e.ID]})
	}
	return out, nil
}

// GetElection returns a public, non-draft election with its ballot.
// Drafts and private elections are reported as not found.
func (s *VoteService) GetElection(ctx context.Context, voterID, electionID uint64) (VoterElectionDetail, error) {
	e, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return VoterElectionDetail{}, err
	}
	if e.Status == model.StatusDraft || !e.IsPublic {
		return VoterElectionDetail{}, repository.ErrElectionNotFound
	}
	cands, err := s.candidates.ListByElection(ctx, electionID)
	if err != nil {
		return VoterElectionDetail{}, err
	}
	if cands == nil {
		cands = []model.Candidate{}
	}
	// counters are only meaningful once the election is over
	if e.Status != model.StatusCompleted {
		for i := range cands {
			cands[i].VoteCount = 0
		}
	}
	voted, err := s.votes.HasVoted(ctx, electionID, voterID)
	if err != nil {
		return VoterElectionDetail{}, err
	}
	return VoterElectionDetail{
		VoterElection: VoterElection{Election: e, HasVoted: voted},
		Candidates:    cands,
	}, nil
}

// History returns the voter's ballots, newest first.
func (s *VoteService) History(ctx context.Context, voterID uint64) ([]model.VoteReceipt, error) {
	out, err := s.votes.ListByVoter(ctx, voterID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.VoteReceipt{}
	}
	return out, nil
}
