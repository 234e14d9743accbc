package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/testutil"
)

func TestInlineRecorderWritesAuditRows(t *testing.T) {
	db := testutil.NewDB(t)
	admin := testutil.CreateUser(t, db, model.User{Role: model.RoleAdmin, IsVerified: true})
	audit := repository.NewAuditRepo(db)
	rec := queue.NewInlineRecorder(audit)
	ctx := context.Background()

	rec.Record(ctx, queue.NewAuditEvent(queue.ActionElectionCreated, queue.EntityElection, 7, admin.ID).
		With(map[string]any{"title": "Board"}, "127.0.0.1"))
	rec.Record(ctx, queue.NewAuditEvent(queue.ActionUserLogin, queue.EntityUser, admin.ID, admin.ID))

	rows, err := audit.List(ctx, repository.AuditFilter{EntityType: queue.EntityElection})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, queue.ActionElectionCreated, rows[0].Action)
	assert.JSONEq(t, `{"title":"Board"}`, string(rows[0].Changes))
	assert.Equal(t, "127.0.0.1", rows[0].IPAddress)

	all, err := audit.List(ctx, repository.AuditFilter{ActorID: admin.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, queue.ActionUserLogin, all[0].Action, "newest first")
}

