package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/otp"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
)

// OTPManager issues and verifies purpose-scoped one-time codes.  Codes are
// persisted as hashes and delivered through a Notifier.
type OTPManager struct {
	otps     *repository.OTPRepo
	notifier queue.Notifier
	ttl      time.Duration
	echo     bool

	Now func() time.Time
}

// NewOTPManager returns a manager issuing codes valid for ttl.  When echo is
// set, Issue also returns the plain code so callers can include it in API
// responses during development.
func NewOTPManager(otps *repository.OTPRepo, notifier queue.Notifier, ttl time.Duration, echo bool) *OTPManager {
	return &OTPManager{otps: otps, notifier: notifier, ttl: ttl, echo: echo, Now: time.Now}
}

// Issue stores a new code for u and purpose and hands it to the notifier.
// Delivery failures are logged, not returned.  The plain code is returned
// only when echo is enabled.
func (m *OTPManager) Issue(ctx context.Context, u model.User, purpose model.OTPPurpose) (string, error) {
	return m.IssueScoped(ctx, u, purpose, "")
}

// IssueScoped is Issue for a code that only verifies within scope.
func (m *OTPManager) IssueScoped(ctx context.Context, u model.User, purpose model.OTPPurpose, scope string) (string, error) {
	code, err := otp.Generate()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	now := m.Now().UTC()
	expiresAt := now.Add(m.ttl)
	if _, err := m.otps.Create(ctx, u.Email, otp.ScopedHash(u.Email, scope, code), purpose, now, expiresAt); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	if m.notifier != nil {
		n := queue.OTPNotification{
			ID:        uuid.NewString(),
			Email:     u.Email,
			Name:      u.Name,
			Purpose:   purpose,
			Code:      code,
			ExpiresAt: expiresAt,
		}
		if err := m.notifier.SendOTP(ctx, n); err != nil {
			log.WithError(err).WithFields(log.Fields{"email": u.Email, "purpose": purpose}).
				Warn("otp delivery failed")
		}
	}
	if m.echo {
		return code, nil
	}
	return "", nil
}

// Verify consumes the most recent live code for email and purpose matching
// code.  Any mismatch yields ErrInvalidOTP.
func (m *OTPManager) Verify(ctx context.Context, email, code string, purpose model.OTPPurpose) (model.OTP, error) {
	if !otp.WellFormed(code) {
		return model.OTP{}, ErrInvalidOTP
	}
	o, err := m.otps.Consume(ctx, email, otp.Hash(email, code), purpose, m.Now())
	if err != nil {
		if errors.Is(err, repository.ErrOTPNotFound) {
			return model.OTP{}, ErrInvalidOTP
		}
		return model.OTP{}, err
	}
	return o, nil
}

// ConsumeTx verifies and consumes a scoped code inside tx.
func (m *OTPManager) ConsumeTx(ctx context.Context, tx *sql.Tx, email, code string, purpose model.OTPPurpose, scope string) error {
	if !otp.WellFormed(code) {
		return ErrInvalidOTP
	}
	_, err := m.otps.ConsumeTx(ctx, tx, email, otp.ScopedHash(email, scope, code), purpose, m.Now())
	if errors.Is(err, repository.ErrOTPNotFound) {
		return ErrInvalidOTP
	}
	return err
}

// Purge deletes codes that expired before now.
func (m *OTPManager) Purge(ctx context.Context) (int64, error) {
	return m.otps.DeleteExpired(ctx, m.Now())
}
