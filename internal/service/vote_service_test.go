package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/election-voting-portal/internal/config"
	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/testutil"
)

func TestCastRecordsVoteAndCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)
	el, cands := env.activeElection(t, "Alice", "Bob")

	id, err := env.votes.Cast(ctx, CastVoteInput{VoterID: voter.ID, ElectionID: el.ID, CandidateID: cands[1].ID, IP: "10.0.0.1"})
	require.NoError(t, err)
	assert.NotZero(t, id)

	c, err := env.candidates.GetByID(ctx, cands[1].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.VoteCount)

	voted, err := env.votesR.HasVoted(ctx, el.ID, voter.ID)
	require.NoError(t, err)
	assert.True(t, voted)
	assert.Contains(t, env.events.Actions(), queue.ActionVoteCast)
}

func TestCastConcurrentSingleSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)
	el, cands := env.activeElection(t, "Alice", "Bob")

	const n = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		dupes     int
		others    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.votes.Cast(ctx, CastVoteInput{VoterID: voter.ID, ElectionID: el.ID, CandidateID: cands[0].ID})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrAlreadyVoted):
				dupes++
			default:
				others = append(others, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, others)
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, dupes)

	total, err := env.votesR.CountByElection(ctx, el.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	c, err := env.candidates.GetByID(ctx, cands[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, c.VoteCount)
}

func TestCastPreconditions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := env.clock.Now()

	voter := testutil.CreateVoter(t, env.db)
	unverified := testutil.CreateUser(t, env.db, model.User{Role: model.RoleVoter})
	active, cands := env.activeElection(t, "Alice")
	_, otherCands := env.activeElection(t, "Zed")
	draft := testutil.CreateElection(t, env.db, now.Add(-time.Hour), now.Add(time.Hour), model.StatusDraft)
	draftCands := testutil.CreateCandidates(t, env.db, draft.ID, "Carol")
	expired := testutil.CreateElection(t, env.db, now.Add(-2*time.Hour), now.Add(-time.Hour), model.StatusActive)
	expiredCands := testutil.CreateCandidates(t, env.db, expired.ID, "Dan")

	voted := testutil.CreateVoter(t, env.db)
	testutil.CastVote(t, env.db, active.ID, voted.ID, cands[0].ID, now)

	tests := []struct {
		name string
		in   CastVoteInput
		want error
	}{
		{"unknown voter", CastVoteInput{VoterID: 9999, ElectionID: active.ID, CandidateID: cands[0].ID}, ErrVoterNotFound},
		{"unverified voter", CastVoteInput{VoterID: unverified.ID, ElectionID: active.ID, CandidateID: cands[0].ID}, ErrVoterNotVerified},
		{"unknown election", CastVoteInput{VoterID: voter.ID, ElectionID: 9999, CandidateID: cands[0].ID}, repository.ErrElectionNotFound},
		{"draft election", CastVoteInput{VoterID: voter.ID, ElectionID: draft.ID, CandidateID: draftCands[0].ID}, ErrElectionNotActive},
		{"window closed", CastVoteInput{VoterID: voter.ID, ElectionID: expired.ID, CandidateID: expiredCands[0].ID}, ErrOutsideVotingWindow},
		{"unknown candidate", CastVoteInput{VoterID: voter.ID, ElectionID: active.ID, CandidateID: 9999}, ErrCandidateNotInElection},
		{"foreign candidate", CastVoteInput{VoterID: voter.ID, ElectionID: active.ID, CandidateID: otherCands[0].ID}, ErrCandidateNotInElection},
		{"second ballot", CastVoteInput{VoterID: voted.ID, ElectionID: active.ID, CandidateID: cands[0].ID}, ErrAlreadyVoted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.votes.Cast(ctx, tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCastRequiresVoteOTP(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.VoteRequireOTP = true })
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)
	el, cands := env.activeElection(t, "Alice")

	_, err := env.votes.Cast(ctx, CastVoteInput{VoterID: voter.ID, ElectionID: el.ID, CandidateID: cands[0].ID, OTP: "123456"})
	require.ErrorIs(t, err, ErrInvalidOTP)

	_, err = env.votes.IssueVoteOTP(ctx, voter.ID, el.ID)
	require.NoError(t, err)
	code := env.notifier.Code(voter.Email, model.PurposeVote)
	require.Len(t, code, 6)

	_, err = env.votes.Cast(ctx, CastVoteInput{VoterID: voter.ID, ElectionID: el.ID, CandidateID: cands[0].ID, OTP: code})
	require.NoError(t, err)

	_, err = env.votes.IssueVoteOTP(ctx, voter.ID, el.ID)
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestListElectionsFlagsVoted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)
	a, aCands := env.activeElection(t, "Alice")
	b, _ := env.activeElection(t, "Bob")
	testutil.CastVote(t, env.db, a.ID, voter.ID, aCands[0].ID, env.clock.Now())

	list, err := env.votes.ListElections(ctx, voter.ID, "", 0, 0)
	require.NoError(t, err)
	flags := map[uint64]bool{}
	for _, e := range list {
		flags[e.ID] = e.HasVoted
	}
	assert.Equal(t, map[uint64]bool{a.ID: true, b.ID: false}, flags)

	history, err := env.votes.History(ctx, voter.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Alice", history[0].CandidateName)
}

func TestCastConcurrentWithVoteOTP(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.VoteRequireOTP = true })
	ctx := context.Background()
	el, cands := env.activeElection(t, "Alice", "Bob")

	const trials, n = 5, 10
	for trial := 0; trial < trials; trial++ {
		voter := testutil.CreateVoter(t, env.db)
		_, err := env.votes.IssueVoteOTP(ctx, voter.ID, el.ID)
		require.NoError(t, err)
		code := env.notifier.Code(voter.Email, model.PurposeVote)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			results = map[string]int{}
		)
		start := make(chan struct{})
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				_, err := env.votes.Cast(ctx, CastVoteInput{VoterID: voter.ID, ElectionID: el.ID, CandidateID: cands[0].ID, OTP: code})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					results["ok"]++
				case errors.Is(err, ErrAlreadyVoted):
					results["already_voted"]++
				default:
					results[err.Error()]++
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, map[string]int{"ok": 1, "already_voted": n - 1}, results, "trial %d", trial)
	}

	c, err := env.candidates.GetByID(ctx, cands[0].ID)
	require.NoError(t, err)
	assert.EqualValues(t, trials, c.VoteCount)
}

func TestVoteOTPBoundToElection(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.VoteRequireOTP = true })
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)
	a, aCands := env.activeElection(t, "Alice")
	b, bCands := env.activeElection(t, "Bob")

	_, err := env.votes.IssueVoteOTP(ctx, voter.ID, a.ID)
	require.NoError(t, err)
	code := env.notifier.Code(voter.Email, model.PurposeVote)

	_, err = env.votes.Cast(ctx, CastVoteInput{VoterID: voter.ID, ElectionID: b.ID, CandidateID: bCands[0].ID, OTP: code})
	require.ErrorIs(t, err, ErrInvalidOTP)

	// the rejected ballot left nothing behind
	voted, err := env.votesR.HasVoted(ctx, b.ID, voter.ID)
	require.NoError(t, err)
	assert.False(t, voted)
	c, err := env.candidates.GetByID(ctx, bCands[0].ID)
	require.NoError(t, err)
	assert.Zero(t, c.VoteCount)

	_, err = env.votes.Cast(ctx, CastVoteInput{VoterID: voter.ID, ElectionID: a.ID, CandidateID: aCands[0].ID, OTP: code})
	require.NoError(t, err)
}
