package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/testutil"
)

func TestSweepCompletesPastElection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	el := testutil.CreateElection(t, env.db, now.Add(-time.Hour), now.Add(-30*time.Minute), model.StatusDraft)
	cands := testutil.CreateCandidates(t, env.db, el.ID, "Alice", "Bob")
	voter := testutil.CreateVoter(t, env.db)
	testutil.CastVote(t, env.db, el.ID, voter.ID, cands[1].ID, now.Add(-45*time.Minute))

	rep := env.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Activated)
	assert.Equal(t, 1, rep.Completed)
	assert.Equal(t, 1, rep.Cached)
	assert.Zero(t, rep.Failed)

	got, err := env.electionsR.GetByID(ctx, el.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	entry, err := env.results.Get(ctx, el.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, entry.TotalVotes)
	assert.EqualValues(t, 1, entry.EligibleVoters)

	var res model.ElectionResults
	require.NoError(t, json.Unmarshal(entry.Payload, &res))
	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "Bob", res.Candidates[0].Name)
	assert.Equal(t, 1, res.Candidates[0].Rank)
	assert.Equal(t, 100.0, res.Candidates[0].Percentage)

	assert.Equal(t, []string{queue.ActionElectionActivated, queue.ActionElectionCompleted}, env.events.Actions())
}

func TestSweepActivatesOpenElection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	open := testutil.CreateElection(t, env.db, now.Add(-time.Minute), now.Add(time.Hour), model.StatusDraft)
	future := testutil.CreateElection(t, env.db, now.Add(time.Hour), now.Add(2*time.Hour), model.StatusDraft)

	rep := env.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Activated)
	assert.Zero(t, rep.Completed)

	got, err := env.electionsR.GetByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, got.Status)

	got, err = env.electionsR.GetByID(ctx, future.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusDraft, got.Status)

	// a second pass at the same instant changes nothing
	rep = env.sweeper.Sweep(ctx)
	assert.Zero(t, rep.Activated)
	assert.Zero(t, rep.Completed)

	env.clock.Advance(61 * time.Minute)
	rep = env.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Activated)
	assert.Equal(t, 1, rep.Completed)
}

func TestSweepRetriesMissingCache(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	el := testutil.CreateElection(t, env.db, now.Add(-2*time.Hour), now.Add(-time.Hour), model.StatusCompleted)

	rep := env.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Cached)

	_, err := env.results.Get(ctx, el.ID)
	require.NoError(t, err)
}

func TestSweepPurgesExpiredOTPs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)

	_, err := env.otps.Issue(ctx, voter, model.PurposeLogin)
	require.NoError(t, err)

	env.clock.Advance(10 * time.Minute)
	rep := env.sweeper.Sweep(ctx)
	assert.EqualValues(t, 1, rep.OTPsPurged)
}

func TestSweeperStartStopsWithContext(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()
	el := testutil.CreateElection(t, env.db, now.Add(-time.Minute), now.Add(time.Hour), model.StatusDraft)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.sweeper.Start(ctx)

	require.Eventually(t, func() bool {
		got, err := env.electionsR.GetByID(context.Background(), el.ID)
		return err == nil && got.Status == model.StatusActive
	}, 5*time.Second, 20*time.Millisecond)
}

func TestSweepFailedSnapshotCountedOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()
	el := testutil.CreateElection(t, env.db, now.Add(-2*time.Hour), now.Add(-time.Hour), model.StatusActive)

	_, err := env.db.Exec(`CREATE TRIGGER results_down BEFORE INSERT ON election_results_cache
		BEGIN SELECT RAISE(ABORT, 'results store down'); END`)
	require.NoError(t, err)

	rep := env.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Completed)
	assert.Zero(t, rep.Cached)
	assert.Equal(t, 1, rep.Failed)

	_, err = env.db.Exec("DROP TRIGGER results_down")
	require.NoError(t, err)

	rep = env.sweeper.Sweep(ctx)
	assert.Equal(t, 1, rep.Cached)
	_, err = env.results.Get(ctx, el.ID)
	require.NoError(t, err)
}
