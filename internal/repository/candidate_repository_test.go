package repository_test

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

func TestCandidateWritesRequireDraft(t *testing.T) {
	db := testutil.NewDB(t)
	repo := repository.NewCandidateRepo(db)
	ctx := context.Background()
	now := time.Now()

	draft := testutil.CreateElection(t, db, now.Add(time.Hour), now.Add(2*time.Hour), model.StatusDraft)
	c := model.Candidate{ElectionID: draft.ID, Name: "Alice"}
	require.NoError(t, repo.Create(ctx, &c))
	assert.NotZero(t, c.ID)

	dup := model.Candidate{ElectionID: draft.ID, Name: "Alice"}
	assert.ErrorIs(t, repo.Create(ctx, &dup), repository.ErrDuplicateCandidate)

	same := "Alice"
	assert.NoError(t, repo.Update(ctx, c.ID, repository.CandidatePatch{Name: &same}), "unchanged row is not a miss")

	// the election opens between the service check and the write
	_, err := db.Exec("UPDATE elections SET status='active' WHERE id=?", draft.ID)
	require.NoError(t, err)

	late := model.Candidate{ElectionID: draft.ID, Name: "Bob"}
	assert.ErrorIs(t, repo.Create(ctx, &late), repository.ErrStaleStatus)
	party := "Green"
	assert.ErrorIs(t, repo.Update(ctx, c.ID, repository.CandidatePatch{Party: &party}), repository.ErrStaleStatus)
	assert.ErrorIs(t, repo.Delete(ctx, c.ID), repository.ErrStaleStatus)

	list, err := repo.ListByElection(ctx, draft.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Empty(t, list[0].Party)

	assert.ErrorIs(t, repo.Delete(ctx, 9999), repository.ErrCandidateNotFound)
	assert.ErrorIs(t, repo.Update(ctx, 9999, repository.CandidatePatch{Party: &party}), repository.ErrCandidateNotFound)

	missing := model.Candidate{ElectionID: 9999, Name: "Ghost"}
	assert.ErrorIs(t, repo.Create(ctx, &missing), repository.ErrStaleStatus)
}
