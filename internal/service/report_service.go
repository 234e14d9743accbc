package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/repository"
)

// Percentage returns votes as a share of total, in percent rounded to two
// decimals.  It is 0 when no votes were cast.
func Percentage(votes, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(votes)*10000/float64(total)) / 100
}

// Turnout returns total votes as a share of eligible voters, in percent
// rounded to two decimals.  It is 0 when nobody is eligible.
func Turnout(total, eligible int64) float64 {
	return Percentage(total, eligible)
}

// Rank orders tallies by votes, highest first.  Candidates with equal votes
// keep their original order and every line gets its 1-based position.
func Rank(rows []repository.TallyRow) []model.CandidateTally {
	var total int64
	for _, r := range rows {
		total += r.Votes
	}
	out := make([]model.CandidateTally, len(rows))
	for i, r := range rows {
		out[i] = model.CandidateTally{
			CandidateID: r.CandidateID,
			Name:        r.Name,
			Party:       r.Party,
			Votes:       r.Votes,
			Percentage:  Percentage(r.Votes, total),
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Votes > out[j].Votes })
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// HourlyTrend counts vote timestamps per hour of day in loc.  All 24 hours
// are present.
func HourlyTrend(times []time.Time, loc *time.Location) []model.HourlyBucket {
	if loc == nil {
		loc = time.UTC
	}
	out := make([]model.HourlyBucket, 24)
	for h := range out {
		out[h].Hour = h
	}
	for _, t := range times {
		out[t.In(loc).Hour()].Votes++
	}
	return out
}

// ReportService computes tallies, turnout and trends, and maintains the
// results cache of completed elections.
type ReportService struct {
	elections *repository.ElectionRepo
	votes     *repository.VoteRepo
	users     *repository.UserRepo
	results   *repository.ResultsRepo
	loc       *time.Location

	Now func() time.Time
}

func NewReportService(elections *repository.ElectionRepo, votes *repository.VoteRepo, users *repository.UserRepo, results *repository.ResultsRepo, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{elections: elections, votes: votes, users: users, results: results, loc: loc, Now: time.Now}
}

// Compute builds the live results aggregate of e.
func (s *ReportService) Compute(ctx context.Context, e model.Election) (model.ElectionResults, error) {
	rows, err := s.votes.TallyByElection(ctx, e.ID)
	if err != nil {
		return model.ElectionResults{}, fmt.Errorf("tally: %w", err)
	}
	eligible, err := s.users.CountEligibleVoters(ctx)
	if err != nil {
		return model.ElectionResults{}, fmt.Errorf("eligible voters: %w", err)
	}
	var total int64
	for _, r := range rows {
		total += r.Votes
	}
	return model.ElectionResults{
		ElectionID:     e.ID,
		Title:          e.Title,
		Status:         e.Status,
		TotalVotes:     total,
		EligibleVoters: eligible,
		Turnout:        Turnout(total, eligible),
		Candidates:     Rank(rows),
		ComputedAt:     s.Now().UTC().Truncate(time.Second),
	}, nil
}

// Snapshot computes the results of e and writes them to the cache.
func (s *ReportService) Snapshot(ctx context.Context, e model.Election) (model.ElectionResults, error) {
	res, err := s.Compute(ctx, e)
	if err != nil {
		return model.ElectionResults{}, err
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return model.ElectionResults{}, err
	}
	if err := s.results.Upsert(ctx, model.ResultsCacheEntry{
		ElectionID:     e.ID,
		Payload:        payload,
		TotalVotes:     res.TotalVotes,
		EligibleVoters: res.EligibleVoters,
		ComputedAt:     res.ComputedAt,
	}); err != nil {
		return model.ElectionResults{}, fmt.Errorf("results cache: %w", err)
	}
	return res, nil
}

// LiveResults returns the current tally of any election.
func (s *ReportService) LiveResults(ctx context.Context, electionID uint64) (model.ElectionResults, error) {
	e, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return model.ElectionResults{}, err
	}
	if e.Status == model.StatusCompleted {
		return s.FinalResults(ctx, electionID)
	}
	return s.Compute(ctx, e)
}

// FinalResults returns the results of a completed election from the cache,
// computing and caching them on a miss.  Elections that are not completed
// yield ErrResultsNotAvailable.
func (s *ReportService) FinalResults(ctx context.Context, electionID uint64) (model.ElectionResults, error) {
	e, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return model.ElectionResults{}, err
	}
	if e.Status != model.StatusCompleted {
		return model.ElectionResults{}, ErrResultsNotAvailable
	}
	entry, err := s.results.Get(ctx, electionID)
	switch {
	case err == nil:
		var res model.ElectionResults
		if err := json.Unmarshal(entry.Payload, &res); err == nil {
			res.Status = e.Status
			res.Cached = true
			return res, nil
		}
		log.WithField("election_id", electionID).Warn("results cache payload unreadable; recomputing")
	case !errors.Is(err, repository.ErrResultsMissing):
		return model.ElectionResults{}, err
	}
	return s.Snapshot(ctx, e)
}

// TurnoutReport is the turnout of one election.
type TurnoutReport struct {
	ElectionID     uint64               `json:"election_id"`
	Status         model.ElectionStatus `json:"status"`
	TotalVotes     int64                `json:"total_votes"`
	EligibleVoters int64                `json:"eligible_voters"`
	Turnout        float64              `json:"turnout"`
}

// ElectionTurnout reports votes cast against eligible voters.
func (s *ReportService) ElectionTurnout(ctx context.Context, electionID uint64) (TurnoutReport, error) {
	e, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return TurnoutReport{}, err
	}
	total, err := s.votes.CountByElection(ctx, electionID)
	if err != nil {
		return TurnoutReport{}, err
	}
	eligible, err := s.users.CountEligibleVoters(ctx)
	if err != nil {
		return TurnoutReport{}, err
	}
	return TurnoutReport{
		ElectionID:     e.ID,
		Status:         e.Status,
		TotalVotes:     total,
		EligibleVoters: eligible,
		Turnout:        Turnout(total, eligible),
	}, nil
}

// TrendReport is the hour-of-day distribution of one election's votes.
type TrendReport struct {
	ElectionID uint64               `json:"election_id"`
	Timezone   string               `json:"timezone"`
	Buckets    []model.HourlyBucket `json:"buckets"`
}

// Trend buckets the election's votes by hour of day in the report timezone.
func (s *ReportService) Trend(ctx context.Context, electionID uint64) (TrendReport, error) {
	if _, err := s.elections.GetByID(ctx, electionID); err != nil {
		return TrendReport{}, err
	}
	times, err := s.votes.CastTimes(ctx, electionID)
	if err != nil {
		return TrendReport{}, err
	}
	return TrendReport{
		ElectionID: electionID,
		Timezone:   s.loc.String(),
		Buckets:    HourlyTrend(times, s.loc),
	}, nil
}

// Dashboard is the portal-wide summary shown to administrators and officers.
type Dashboard struct {
	ElectionsByStatus map[model.ElectionStatus]int64 `json:"elections_by_status"`
	UsersByRole       map[model.Role]int64           `json:"users_by_role"`
	EligibleVoters    int64                          `json:"eligible_voters"`
	TotalVotes        int64                          `json:"total_votes"`
	GeneratedAt       time.Time                      `json:"generated_at"`
}

// Dashboard gathers portal-wide counts.
func (s *ReportService) Dashboard(ctx context.Context) (Dashboard, error) {
	byStatus, err := s.elections.CountByStatus(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	byRole, err := s.users.CountByRole(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	eligible, err := s.users.CountEligibleVoters(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	votes, err := s.votes.CountAll(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{
		ElectionsByStatus: byStatus,
		UsersByRole:       byRole,
		EligibleVoters:    eligible,
		TotalVotes:        votes,
		GeneratedAt:       s.Now().UTC().Truncate(time.Second),
	}, nil
}
