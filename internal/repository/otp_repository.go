package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/model"
)

// OTPRepo stores hashed one-time codes.
type OTPRepo struct{ db *sql.DB }

func NewOTPRepo(db *sql.DB) *OTPRepo { return &OTPRepo{db: db} }

// Create persists a new code hash for email and purpose.
func (r *OTPRepo) Create(ctx context.Context, email, codeHash string, purpose model.OTPPurpose, now, expiresAt time.Time) (uint64, error) {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO otps (email, code_hash, purpose, expires_at, consumed, created_at) VALUES (?,?,?,?,0,?)",
		normalizeEmail(email), codeHash, string(purpose), database.Time(expiresAt), database.Time(now))
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// Consume finds the most recent unconsumed, unexpired code for email whose
// hash equals codeHash (restricted to purpose when non-empty) and marks it
// consumed.  Exactly one caller can consume a given code.
func (r *OTPRepo) Consume(ctx context.Context, email, codeHash string, purpose model.OTPPurpose, now time.Time) (model.OTP, error) {
	return consumeOTP(ctx, r.db, email, codeHash, purpose, now)
}

// ConsumeTx is Consume inside tx; the code stays live if tx rolls back.
func (r *OTPRepo) ConsumeTx(ctx context.Context, tx *sql.Tx, email, codeHash string, purpose model.OTPPurpose, now time.Time) (model.OTP, error) {
	return consumeOTP(ctx, tx, email, codeHash, purpose, now)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func consumeOTP(ctx context.Context, q execQuerier, email, codeHash string, purpose model.OTPPurpose, now time.Time) (model.OTP, error) {
	now = database.Time(now)
	query := `SELECT id, email, code_hash, purpose, expires_at, consumed, created_at
	            FROM otps
	           WHERE email=? AND code_hash=? AND consumed=0 AND expires_at > ?`
	args := []any{normalizeEmail(email), codeHash, now}
	if purpose != "" {
		query += " AND purpose=?"
		args = append(args, string(purpose))
	}
	query += " ORDER BY id DESC LIMIT 1"

	var (
		o model.OTP
		p string
	)
	err := q.QueryRowContext(ctx, query, args...).
		Scan(&o.ID, &o.Email, &o.CodeHash, &p, &o.ExpiresAt, &o.Consumed, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.OTP{}, ErrOTPNotFound
		}
		return model.OTP{}, err
	}
	o.Purpose = model.OTPPurpose(p)

	res, err := q.ExecContext(ctx,
		"UPDATE otps SET consumed=1, consumed_at=? WHERE id=? AND consumed=0", now, o.ID)
	if err != nil {
		return model.OTP{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.OTP{}, ErrOTPNotFound
	}
	o.Consumed = true
	o.ConsumedAt = &now
	return o, nil
}

// DeleteExpired purges codes that expired before cutoff.
func (r *OTPRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM otps WHERE expires_at < ?", database.Time(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
