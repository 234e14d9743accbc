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
	"github.com/iliyamo/election-voting-portal/internal/utils"
)

const userColumns = "id,name,email,password_hash,phone,role,department,designation,assignment_area," +
	"is_verified,failed_login_attempts,locked_until,last_login_at,created_at,updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create hashes password, inserts the user and returns its ID.
func (r *UserRepo) Create(ctx context.Context, u model.User, password string, cost int) (uint64, error) {
	u.Email = normalizeEmail(u.Email)
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	now := database.Time(time.Now())
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (name,email,password_hash,phone,role,department,designation,assignment_area,
		                    is_verified,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.Name, u.Email, hash, u.Phone, string(u.Role), u.Department, u.Designation, u.AssignmentArea,
		u.IsVerified, now, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// MarkVerified flips is_verified.  It returns ErrNoChange when the user was
// already verified.
func (r *UserRepo) MarkVerified(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET is_verified=1, updated_at=? WHERE id=? AND is_verified=0",
		database.Time(time.Now()), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoChange
	}
	return nil
}

// RegisterLoginFailure counts a failed password check.  An expired lock
// restarts the count.  When the count reaches threshold the account is
// locked until now+lockFor.  It returns the new count and lock expiry.
func (r *UserRepo) RegisterLoginFailure(ctx context.Context, id uint64, now time.Time, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	now = database.Time(now)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET
		   failed_login_attempts = CASE WHEN locked_until IS NOT NULL AND locked_until <= ? THEN 1
		                                ELSE failed_login_attempts + 1 END,
		   locked_until = CASE WHEN locked_until IS NOT NULL AND locked_until <= ? THEN NULL
		                       ELSE locked_until END,
		   updated_at = ?
		 WHERE id = ?`, now, now, now, id); err != nil {
		return 0, nil, err
	}

	var attempts int
	if err := tx.QueryRowContext(ctx,
		"SELECT failed_login_attempts FROM users WHERE id=?", id).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, ErrUserNotFound
		}
		return 0, nil, err
	}

	var lockedUntil *time.Time
	if attempts >= threshold {
		until := now.Add(lockFor)
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET locked_until=? WHERE id=?", until, id); err != nil {
			return 0, nil, err
		}
		lockedUntil = &until
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, err
	}
	committed = true
	return attempts, lockedUntil, nil
}

// RegisterLoginSuccess resets the failure counter and lock.
func (r *UserRepo) RegisterLoginSuccess(ctx context.Context, id uint64, now time.Time) error {
	now = database.Time(now)
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET failed_login_attempts=0, locked_until=NULL, last_login_at=?, updated_at=? WHERE id=?",
		now, now, id)
	return err
}

// UpdatePassword stores a new bcrypt hash and clears any lockout.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, password string, cost int) error {
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx,
		"UPDATE users SET password_hash=?, failed_login_attempts=0, locked_until=NULL, updated_at=? WHERE id=?",
		hash, database.Time(time.Now()), id)
	return err
}

// UserFilter narrows List.  Zero values are ignored.
type UserFilter struct {
	Role     model.Role
	Verified *bool
	Query    string
	Limit    uint64
	Offset   uint64
}

// List returns users ordered by id.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]model.User, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Question).
		Select(strings.Split(userColumns, ",")...).
		From("users").
		OrderBy("id ASC")
	if f.Role != "" {
		q = q.Where(sq.Eq{"role": string(f.Role)})
	}
	if f.Verified != nil {
		q = q.Where(sq.Eq{"is_verified": *f.Verified})
	}
	if s := strings.TrimSpace(f.Query); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where(sq.Or{sq.Expr("LOWER(name) LIKE ?", like), sq.Expr("LOWER(email) LIKE ?", like)})
	}
	q = q.Limit(clampLimit(f.Limit)).Offset(f.Offset)

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// UserPatch carries the fields an administrator may change.  Nil fields are
// left untouched.
type UserPatch struct {
	Role       *model.Role
	IsVerified *bool
	Unlock     bool
}

// AdminUpdate applies p to user id.
func (r *UserRepo) AdminUpdate(ctx context.Context, id uint64, p UserPatch) error {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Question).Update("users")
	changed := false
	if p.Role != nil {
		q = q.Set("role", string(*p.Role))
		changed = true
	}
	if p.IsVerified != nil {
		q = q.Set("is_verified", *p.IsVerified)
		changed = true
	}
	if p.Unlock {
		q = q.Set("failed_login_attempts", 0).Set("locked_until", nil)
		changed = true
	}
	if !changed {
		return ErrNoChange
	}
	sqlStr, args, err := q.Set("updated_at", database.Time(time.Now())).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user.  Votes and refresh tokens cascade.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CountEligibleVoters counts verified accounts with the voter role.
func (r *UserRepo) CountEligibleVoters(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM users WHERE role=? AND is_verified=1", string(model.RoleVoter)).Scan(&n)
	return n, err
}

// CountByRole returns the number of users per role.
func (r *UserRepo) CountByRole(ctx context.Context) (map[model.Role]int64, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT role, COUNT(*) FROM users GROUP BY role")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[model.Role]int64, len(model.AllRoles))
	for _, role := range model.AllRoles {
		out[role] = 0
	}
	for rows.Next() {
		var role string
		var n int64
		if err := rows.Scan(&role, &n); err != nil {
			return nil, err
		}
		out[model.Role(role)] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var (
		u           model.User
		role        string
		lockedUntil sql.NullTime
		lastLogin   sql.NullTime
	)
	err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Phone, &role, &u.Department,
		&u.Designation, &u.AssignmentArea, &u.IsVerified, &u.FailedLoginAttempts,
		&lockedUntil, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}
		return model.User{}, err
	}
	u.Role = model.Role(role)
	u.LockedUntil = nullTimePtr(lockedUntil)
	u.LastLoginAt = nullTimePtr(lastLogin)
	return u, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func clampLimit(n uint64) uint64 {
	switch {
	case n == 0:
		return 50
	case n > 200:
		return 200
	}
	return n
}
