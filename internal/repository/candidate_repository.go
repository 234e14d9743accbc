package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/model"
)

const candidateColumns = "id,election_id,name,party,manifesto,photo_url,vote_count,created_at"

// inDraftElection restricts candidate writes to ballots that have not opened.
const inDraftElection = "election_id IN (SELECT id FROM elections WHERE status = 'draft')"

// CandidateRepo encapsulates queries on the candidates table.
type CandidateRepo struct {
	db *sql.DB
}

func NewCandidateRepo(db *sql.DB) *CandidateRepo {
	return &CandidateRepo{db: db}
}

// Create inserts c into its election, which must still be draft, and fills
// in its ID.  ErrStaleStatus means the election was not draft at insert
// time; a second candidate with the same name yields ErrDuplicateCandidate.
func (r *CandidateRepo) Create(ctx context.Context, c *model.Candidate) error {
	now := database.Time(time.Now())
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO candidates (election_id, name, party, manifesto, photo_url, vote_count, created_at)
		 SELECT id, ?, ?, ?, ?, 0, ? FROM elections WHERE id=? AND status='draft'`,
		c.Name, c.Party, c.Manifesto, c.PhotoURL, now, c.ElectionID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateCandidate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStaleStatus
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	c.VoteCount = 0
	c.CreatedAt = now
	return nil
}

// GetByID loads one candidate.
func (r *CandidateRepo) GetByID(ctx context.Context, id uint64) (model.Candidate, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+candidateColumns+" FROM candidates WHERE id=?", id)
	return scanCandidate(row)
}

// ListByElection returns an election's candidates in insertion order.
func (r *CandidateRepo) ListByElection(ctx context.Context, electionID uint64) ([]model.Candidate, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+candidateColumns+" FROM candidates WHERE election_id=? ORDER BY id", electionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CandidatePatch lists the editable candidate fields.
type CandidatePatch struct {
	Name      *string
	Party     *string
	Manifesto *string
	PhotoURL  *string
}

// Update applies p to candidate id while its election is draft.
func (r *CandidateRepo) Update(ctx context.Context, id uint64, p CandidatePatch) error {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Question).Update("candidates")
	changed := false
	if p.Name != nil {
		q = q.Set("name", *p.Name)
		changed = true
	}
	if p.Party != nil {
		q = q.Set("party", *p.Party)
		changed = true
	}
	if p.Manifesto != nil {
		q = q.Set("manifesto", *p.Manifesto)
		changed = true
	}
	if p.PhotoURL != nil {
		q = q.Set("photo_url", *p.PhotoURL)
		changed = true
	}
	if !changed {
		return ErrNoChange
	}
	sqlStr, args, err := q.Where(sq.Eq{"id": id}).Where(inDraftElection).ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicateCandidate
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// MySQL reports unchanged rows as unaffected
		return r.explainMiss(ctx, id)
	}
	return nil
}

// Delete removes candidate id while its election is draft.
func (r *CandidateRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM candidates WHERE id=? AND "+inDraftElection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if err := r.explainMiss(ctx, id); err != nil {
			return err
		}
		return ErrCandidateNotFound
	}
	return nil
}

// explainMiss tells why a draft-only write to candidate id matched nothing:
// ErrCandidateNotFound, ErrStaleStatus, or nil when the row was simply
// left unchanged.
func (r *CandidateRepo) explainMiss(ctx context.Context, id uint64) error {
	var status string
	err := r.db.QueryRowContext(ctx,
		"SELECT e.status FROM candidates c JOIN elections e ON e.id = c.election_id WHERE c.id=?", id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrCandidateNotFound
		}
		return err
	}
	if status != string(model.StatusDraft) {
		return ErrStaleStatus
	}
	return nil
}

// IncrementVoteCountTx bumps the denormalised counter inside the vote
// transaction.
func (r *CandidateRepo) IncrementVoteCountTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	res, err := tx.ExecContext(ctx, "UPDATE candidates SET vote_count = vote_count + 1 WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrCandidateNotFound
	}
	return nil
}

func scanCandidate(s rowScanner) (model.Candidate, error) {
	var c model.Candidate
	err := s.Scan(&c.ID, &c.ElectionID, &c.Name, &c.Party, &c.Manifesto, &c.PhotoURL, &c.VoteCount, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Candidate{}, ErrCandidateNotFound
		}
		return model.Candidate{}, err
	}
	return c, nil
}
