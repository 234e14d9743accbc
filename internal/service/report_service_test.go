package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/testutil"
)

func TestPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Percentage(0, 0))
	assert.Equal(t, 0.0, Percentage(5, 0))
	assert.Equal(t, 33.33, Percentage(1, 3))
	assert.Equal(t, 66.67, Percentage(2, 3))
	assert.Equal(t, 100.0, Percentage(7, 7))
	assert.Equal(t, 0.0, Turnout(3, 0))
	assert.Equal(t, 75.0, Turnout(3, 4))
}

func TestRankStableOnTies(t *testing.T) {
	rows := []repository.TallyRow{
		{CandidateID: 1, Name: "A", Votes: 10},
		{CandidateID: 2, Name: "B", Votes: 30},
		{CandidateID: 3, Name: "C", Votes: 30},
		{CandidateID: 4, Name: "D", Votes: 5},
	}
	got := Rank(rows)

	ids := make([]uint64, len(got))
	ranks := make([]int, len(got))
	for i, c := range got {
		ids[i] = c.CandidateID
		ranks[i] = c.Rank
	}
	assert.Equal(t, []uint64{2, 3, 1, 4}, ids)
	assert.Equal(t, []int{1, 2, 3, 4}, ranks)
	assert.Equal(t, 40.0, got[0].Percentage)
	assert.Equal(t, 6.67, got[3].Percentage)

	// ranking twice gives the same order
	again := Rank(rows)
	assert.Equal(t, got, again)
}

func TestRankZeroVotes(t *testing.T) {
	got := Rank([]repository.TallyRow{{CandidateID: 1}, {CandidateID: 2}, {CandidateID: 3}})
	for i, c := range got {
		assert.Equal(t, 0.0, c.Percentage)
		assert.Equal(t, uint64(i+1), c.CandidateID)
	}
}

func TestHourlyTrendUsesLocation(t *testing.T) {
	times := []time.Time{
		time.Date(2025, 3, 10, 8, 15, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 8, 45, 0, 0, time.UTC),
		time.Date(2025, 3, 10, 23, 5, 0, 0, time.UTC),
	}
	utc := HourlyTrend(times, time.UTC)
	require.Len(t, utc, 24)
	assert.EqualValues(t, 2, utc[8].Votes)
	assert.EqualValues(t, 1, utc[23].Votes)

	plus2 := HourlyTrend(times, time.FixedZone("UTC+2", 2*3600))
	assert.EqualValues(t, 2, plus2[10].Votes)
	assert.EqualValues(t, 1, plus2[1].Votes)
	assert.Zero(t, plus2[8].Votes)
}

func TestFinalResultsOnlyWhenCompleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	el, _ := env.activeElection(t, "Alice")

	_, err := env.reports.FinalResults(ctx, el.ID)
	assert.ErrorIs(t, err, ErrResultsNotAvailable)

	live, err := env.reports.LiveResults(ctx, el.ID)
	require.NoError(t, err)
	assert.False(t, live.Cached)
	assert.Zero(t, live.TotalVotes)
	assert.Equal(t, 0.0, live.Candidates[0].Percentage)
}

func TestFinalResultsCachesOnMiss(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	el := testutil.CreateElection(t, env.db, now.Add(-2*time.Hour), now.Add(-time.Hour), model.StatusCompleted)
	cands := testutil.CreateCandidates(t, env.db, el.ID, "Alice", "Bob")
	v1, v2 := testutil.CreateVoter(t, env.db), testutil.CreateVoter(t, env.db)
	testutil.CastVote(t, env.db, el.ID, v1.ID, cands[0].ID, now.Add(-90*time.Minute))
	testutil.CastVote(t, env.db, el.ID, v2.ID, cands[1].ID, now.Add(-80*time.Minute))

	first, err := env.reports.FinalResults(ctx, el.ID)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.EqualValues(t, 2, first.TotalVotes)
	assert.Equal(t, 100.0, first.Turnout)

	second, err := env.reports.FinalResults(ctx, el.ID)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Candidates, second.Candidates)
}

func TestDashboardCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.CreateVoter(t, env.db)
	testutil.CreateUser(t, env.db, model.User{Role: model.RoleObserver, AssignmentArea: "North"})
	env.activeElection(t, "Alice")

	d, err := env.reports.Dashboard(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, d.ElectionsByStatus[model.StatusActive])
	assert.EqualValues(t, 0, d.ElectionsByStatus[model.StatusDraft])
	assert.EqualValues(t, 1, d.UsersByRole[model.RoleVoter])
	assert.EqualValues(t, 1, d.UsersByRole[model.RoleObserver])
	assert.EqualValues(t, 1, d.EligibleVoters)
}
