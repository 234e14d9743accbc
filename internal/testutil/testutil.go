// Package testutil provides a migrated SQLite database and fixtures for
// package tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
)

// Password is the password of every fixture user.
const Password = "s3cretpass"

// NewDB opens a fresh SQLite file under t.TempDir() and applies every
// migration.
func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db, database.DialectSQLite))
	return db
}

// Clock is a settable time source for services under test.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{now: t.UTC().Truncate(time.Second)} }

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var seq atomic.Uint64

// CreateUser inserts a user with Password.  Email and name are generated
// when empty.
func CreateUser(t testing.TB, db *sql.DB, u model.User) model.User {
	t.Helper()
	n := seq.Add(1)
	if u.Email == "" {
		u.Email = fmt.Sprintf("user%d@example.com", n)
	}
	if u.Name == "" {
		u.Name = fmt.Sprintf("User %d", n)
	}
	if u.Role == "" {
		u.Role = model.RoleVoter
	}
	id, err := repository.NewUserRepo(db).Create(context.Background(), u, Password, bcrypt.MinCost)
	require.NoError(t, err)
	out, err := repository.NewUserRepo(db).GetByID(context.Background(), id)
	require.NoError(t, err)
	return out
}

// CreateVoter inserts a verified voter.
func CreateVoter(t testing.TB, db *sql.DB) model.User {
	t.Helper()
	return CreateUser(t, db, model.User{Role: model.RoleVoter, IsVerified: true})
}

// CreateElection inserts a draft election with the given window and then
// forces it into status.
func CreateElection(t testing.TB, db *sql.DB, start, end time.Time, status model.ElectionStatus) model.Election {
	t.Helper()
	repo := repository.NewElectionRepo(db)
	e := model.Election{
		Title:     fmt.Sprintf("Election %d", seq.Add(1)),
		StartDate: start,
		EndDate:   end,
		IsPublic:  true,
	}
	require.NoError(t, repo.Create(context.Background(), &e))
	if status != model.StatusDraft {
		_, err := db.Exec("UPDATE elections SET status=? WHERE id=?", string(status), e.ID)
		require.NoError(t, err)
		e.Status = status
	}
	return e
}

// CreateCandidates inserts one candidate per name, in order.  Rows are
// written directly so fixtures can stock elections in any status.
func CreateCandidates(t testing.TB, db *sql.DB, electionID uint64, names ...string) []model.Candidate {
	t.Helper()
	repo := repository.NewCandidateRepo(db)
	out := make([]model.Candidate, 0, len(names))
	for _, name := range names {
		res, err := db.Exec(
			"INSERT INTO candidates (election_id, name, party, manifesto, photo_url, vote_count, created_at) VALUES (?,?,'','','',0,?)",
			electionID, name, database.Time(time.Now()))
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		c, err := repo.GetByID(context.Background(), uint64(id))
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

// CastVote writes a vote row directly, bypassing the service checks.
func CastVote(t testing.TB, db *sql.DB, electionID, voterID, candidateID uint64, at time.Time) {
	t.Helper()
	_, err := db.Exec(
		"INSERT INTO votes (election_id, voter_id, candidate_id, cast_at, ip_address) VALUES (?,?,?,?,?)",
		electionID, voterID, candidateID, database.Time(at), "")
	require.NoError(t, err)
	_, err = db.Exec("UPDATE candidates SET vote_count = vote_count + 1 WHERE id=?", candidateID)
	require.NoError(t, err)
}

// MemRecorder collects audit events in memory.
type MemRecorder struct {
	mu     sync.Mutex
	events []queue.AuditEvent
}

func (r *MemRecorder) Record(_ context.Context, ev queue.AuditEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Actions returns the recorded actions in order.
func (r *MemRecorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Action)
	}
	return out
}

// MemNotifier keeps the last code sent to each email and purpose.
type MemNotifier struct {
	mu    sync.Mutex
	codes map[string]string
}

func (n *MemNotifier) SendOTP(_ context.Context, o queue.OTPNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.codes == nil {
		n.codes = map[string]string{}
	}
	n.codes[o.Email+"|"+string(o.Purpose)] = o.Code
	return nil
}

// Code returns the last code sent to email for purpose.
func (n *MemNotifier) Code(email string, purpose model.OTPPurpose) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.codes[email+"|"+string(purpose)]
}
