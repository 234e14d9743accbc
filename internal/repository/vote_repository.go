package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/model"
)

// VoteRepo encapsulates queries on the votes table.  Votes are insert-only.
type VoteRepo struct {
	db *sql.DB
}

func NewVoteRepo(db *sql.DB) *VoteRepo {
	return &VoteRepo{db: db}
}

// BeginTx starts a transaction for the vote write path.
func (r *VoteRepo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

// HasVoted reports whether voterID already has a vote in electionID.
func (r *VoteRepo) HasVoted(ctx context.Context, electionID, voterID uint64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM votes WHERE election_id=? AND voter_id=?", electionID, voterID).Scan(&n)
	return n > 0, err
}

// InsertTx writes v inside tx and returns the new vote id.  The unique index
// on (election_id, voter_id) turns a concurrent second ballot into
// ErrDuplicateVote.
func (r *VoteRepo) InsertTx(ctx context.Context, tx *sql.Tx, v model.Vote) (uint64, error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO votes (election_id, voter_id, candidate_id, cast_at, ip_address) VALUES (?,?,?,?,?)",
		v.ElectionID, v.VoterID, v.CandidateID, database.Time(v.CastAt), v.IPAddress)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrDuplicateVote
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// TallyRow is one candidate's raw vote count.
type TallyRow struct {
	CandidateID uint64
	Name        string
	Party       string
	Votes       int64
}

// TallyByElection counts votes per candidate with COUNT(*), including
// candidates that received none, in candidate insertion order.
func (r *VoteRepo) TallyByElection(ctx context.Context, electionID uint64) ([]TallyRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.name, c.party, COUNT(v.id)
		   FROM candidates c
		   LEFT JOIN votes v ON v.candidate_id = c.id
		  WHERE c.election_id = ?
		  GROUP BY c.id, c.name, c.party
		  ORDER BY c.id`, electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TallyRow
	for rows.Next() {
		var t TallyRow
		if err := rows.Scan(&t.CandidateID, &t.Name, &t.Party, &t.Votes); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountByElection returns the number of votes cast in electionID.
func (r *VoteRepo) CountByElection(ctx context.Context, electionID uint64) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM votes WHERE election_id=?", electionID).Scan(&n)
	return n, err
}

// CountAll returns the number of votes across all elections.
func (r *VoteRepo) CountAll(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM votes").Scan(&n)
	return n, err
}

// CastTimes returns the cast timestamps of every vote in electionID.
func (r *VoteRepo) CastTimes(ctx context.Context, electionID uint64) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT cast_at FROM votes WHERE election_id=? ORDER BY cast_at", electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t.UTC())
	}
	return out, rows.Err()
}

// ListByVoter returns the voter's ballots, newest first.
func (r *VoteRepo) ListByVoter(ctx context.Context, voterID uint64) ([]model.VoteReceipt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT v.id, v.election_id, e.title, v.candidate_id, c.name, v.cast_at
		   FROM votes v
		   JOIN elections e ON e.id = v.election_id
		   JOIN candidates c ON c.id = v.candidate_id
		  WHERE v.voter_id = ?
		  ORDER BY v.cast_at DESC, v.id DESC`, voterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.VoteReceipt
	for rows.Next() {
		var rc model.VoteReceipt
		if err := rows.Scan(&rc.VoteID, &rc.ElectionID, &rc.ElectionTitle, &rc.CandidateID, &rc.CandidateName, &rc.CastAt); err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

// VotedElectionIDs returns the set of elections voterID has voted in.
func (r *VoteRepo) VotedElectionIDs(ctx context.Context, voterID uint64) (map[uint64]bool, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT election_id FROM votes WHERE voter_id=?", voterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[uint64]bool{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
