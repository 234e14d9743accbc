package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/election-voting-portal/internal/database"
)

// ErrRefreshTokenInvalid covers unknown, expired, revoked and already
// rotated refresh tokens alike.
var ErrRefreshTokenInvalid = errors.New("refresh token invalid")

// TokenRepo keeps refresh-token sessions.  Only SHA-256 hashes of the raw
// tokens are stored.
type TokenRepo struct{ db *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// StoreRefresh opens a session for userID.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)",
		userID, tokenHash, database.Time(exp), database.Time(now))
	return err
}

// Consume revokes a live token and returns its owner.  The revoke is a
// conditional update, so of two concurrent rotations of the same token only
// one gets a user id back.
func (r *TokenRepo) Consume(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	now = database.Time(now)
	res, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL AND expires_at > ?",
		now, tokenHash, now)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, ErrRefreshTokenInvalid
	}
	var userID uint64
	err = r.db.QueryRowContext(ctx,
		"SELECT user_id FROM refresh_tokens WHERE token_hash=? LIMIT 1", tokenHash).Scan(&userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrRefreshTokenInvalid
		}
		return 0, err
	}
	return userID, nil
}

// RevokeForUser ends one session of userID.  Tokens of other users are left
// alone.
func (r *TokenRepo) RevokeForUser(ctx context.Context, userID uint64, tokenHash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND token_hash=? AND revoked_at IS NULL",
		database.Time(now), userID, tokenHash)
	return err
}

// RevokeAllForUser ends every session of userID.  Used on logout
// everywhere and after a password reset.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		database.Time(now), userID)
	return err
}
