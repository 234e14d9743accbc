package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/model"
)

const electionColumns = "id,title,description,start_date,end_date,status,is_public,created_by,created_at,updated_at"

// ElectionRepo encapsulates queries on the elections table.
type ElectionRepo struct {
	db *sql.DB
}

func NewElectionRepo(db *sql.DB) *ElectionRepo {
	return &ElectionRepo{db: db}
}

// Create inserts e as a draft and fills in its ID and timestamps.
func (r *ElectionRepo) Create(ctx context.Context, e *model.Election) error {
	now := database.Time(time.Now())
	e.Status = model.StatusDraft
	e.StartDate = database.Time(e.StartDate)
	e.EndDate = database.Time(e.EndDate)
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO elections (title, description, start_date, end_date, status, is_public, created_by, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?)`,
		e.Title, e.Description, e.StartDate, e.EndDate, string(e.Status), e.IsPublic, e.CreatedBy, now, now)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = uint64(id)
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

// GetByID loads one election.
func (r *ElectionRepo) GetByID(ctx context.Context, id uint64) (model.Election, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+electionColumns+" FROM elections WHERE id=?", id)
	return scanElection(row)
}

// ElectionFilter narrows List.  Zero values are ignored.
type ElectionFilter struct {
	Status     model.ElectionStatus
	PublicOnly bool
	Query      string
	Limit      uint64
	Offset     uint64
}

// List returns elections, newest start first.
func (r *ElectionRepo) List(ctx context.Context, f ElectionFilter) ([]model.Election, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Question).
		Select(strings.Split(electionColumns, ",")...).
		From("elections").
		OrderBy("start_date DESC", "id DESC")
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.PublicOnly {
		q = q.Where(sq.Eq{"is_public": true})
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		q = q.Where(sq.Expr("LOWER(title) LIKE ?", "%"+strings.ToLower(s)+"%"))
	}
	q = q.Limit(clampLimit(f.Limit)).Offset(f.Offset)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, sqlStr, args...)
}

// ElectionPatch lists the editable fields.  Status is deliberately absent;
// it only changes through TransitionStatus.
type ElectionPatch struct {
	Title       *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	IsPublic    *bool
}

// Empty reports whether p changes nothing.
func (p ElectionPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.StartDate == nil && p.EndDate == nil && p.IsPublic == nil
}

// TouchesSchedule reports whether p changes the voting window.
func (p ElectionPatch) TouchesSchedule() bool { return p.StartDate != nil || p.EndDate != nil }

// Update applies p.  Schedule edits only match while the election is still
// a draft; ErrConflict is returned otherwise.
func (r *ElectionRepo) Update(ctx context.Context, id uint64, p ElectionPatch) error {
	if p.Empty() {
		return ErrNoChange
	}
	q := sq.StatementBuilder.PlaceholderFormat(sq.Question).Update("elections")
	if p.Title != nil {
		q = q.Set("title", *p.Title)
	}
	if p.Description != nil {
		q = q.Set("description", *p.Description)
	}
	if p.StartDate != nil {
		q = q.Set("start_date", database.Time(*p.StartDate))
	}
	if p.EndDate != nil {
		q = q.Set("end_date", database.Time(*p.EndDate))
	}
	if p.IsPublic != nil {
		q = q.Set("is_public", *p.IsPublic)
	}
	q = q.Set("updated_at", database.Time(time.Now())).Where(sq.Eq{"id": id})
	if p.TouchesSchedule() {
		q = q.Where(sq.Eq{"status": string(model.StatusDraft)})
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// DeleteDraft removes an election that has not started.  Candidates cascade.
// Elections in any other status yield ErrConflict.
func (r *ElectionRepo) DeleteDraft(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM elections WHERE id=? AND status=?", id, string(model.StatusDraft))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return ErrConflict
	}
	return nil
}

// TransitionStatus moves election id from one status to the next.  The
// update is conditional on the current status so concurrent sweeps and
// admin calls cannot apply the same transition twice.
func (r *ElectionRepo) TransitionStatus(ctx context.Context, id uint64, from, to model.ElectionStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE elections SET status=?, updated_at=? WHERE id=? AND status=?",
		string(to), database.Time(time.Now()), id, string(from))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleStatus
	}
	return nil
}

// ListDueForActivation returns drafts whose start_date has been reached.
func (r *ElectionRepo) ListDueForActivation(ctx context.Context, now time.Time) ([]model.Election, error) {
	return r.query(ctx,
		"SELECT "+electionColumns+" FROM elections WHERE status=? AND start_date <= ? ORDER BY id",
		string(model.StatusDraft), database.Time(now))
}

// ListDueForCompletion returns active elections whose end_date has been reached.
func (r *ElectionRepo) ListDueForCompletion(ctx context.Context, now time.Time) ([]model.Election, error) {
	return r.query(ctx,
		"SELECT "+electionColumns+" FROM elections WHERE status=? AND end_date <= ? ORDER BY id",
		string(model.StatusActive), database.Time(now))
}

// ListCompletedWithoutCache returns completed elections missing a results
// snapshot, e.g. because the cache write failed during an earlier sweep.
func (r *ElectionRepo) ListCompletedWithoutCache(ctx context.Context) ([]model.Election, error) {
	cols := "e." + strings.ReplaceAll(electionColumns, ",", ",e.")
	return r.query(ctx,
		"SELECT "+cols+` FROM elections e
		  LEFT JOIN election_results_cache c ON c.election_id = e.id
		 WHERE e.status=? AND c.election_id IS NULL ORDER BY e.id`,
		string(model.StatusCompleted))
}

// CountByStatus returns the number of elections per status.
func (r *ElectionRepo) CountByStatus(ctx context.Context) (map[model.ElectionStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM elections GROUP BY status")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[model.ElectionStatus]int64{
		model.StatusDraft:     0,
		model.StatusActive:    0,
		model.StatusCompleted: 0,
	}
	for rows.Next() {
		var st string
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[model.ElectionStatus(st)] = n
	}
	return out, rows.Err()
}

func (r *ElectionRepo) query(ctx context.Context, query string, args ...any) ([]model.Election, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Election
	for rows.Next() {
		e, err := scanElection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanElection(s rowScanner) (model.Election, error) {
	var (
		e         model.Election
		status    string
		createdBy sql.NullInt64
	)
	err := s.Scan(&e.ID, &e.Title, &e.Description, &e.StartDate, &e.EndDate, &status,
		&e.IsPublic, &createdBy, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Election{}, ErrElectionNotFound
		}
		return model.Election{}, err
	}
	e.Status = model.ElectionStatus(status)
	e.StartDate = e.StartDate.UTC()
	e.EndDate = e.EndDate.UTC()
	if createdBy.Valid {
		id := uint64(createdBy.Int64)
		e.CreatedBy = &id
	}
	return e, nil
}
