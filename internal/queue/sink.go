package queue

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// Recorder accepts audit events after the operation they describe has
// committed.  Record never fails the caller.
type Recorder interface {
	Record(ctx context.Context, ev AuditEvent)
}

// Notifier delivers one-time codes to users.
type Notifier interface {
	SendOTP(ctx context.Context, n OTPNotification) error
}

// InlineRecorder writes audit events straight to the store.  It is used
// when no broker is configured.
type InlineRecorder struct {
	store AuditStore
}

func NewInlineRecorder(store AuditStore) *InlineRecorder {
	return &InlineRecorder{store: store}
}

func (r *InlineRecorder) Record(ctx context.Context, ev AuditEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := r.store.Insert(ctx, ev.Log()); err != nil {
		log.WithError(err).WithField("action", ev.Action).Warn("audit: write failed")
	}
}

// LogNotifier stands in for the mailer by logging that a code was issued.
// The code itself is logged only when IncludeCode is set.
type LogNotifier struct {
	IncludeCode bool
}

func (n LogNotifier) SendOTP(_ context.Context, o OTPNotification) error {
	entry := log.WithFields(log.Fields{
		"email":      o.Email,
		"purpose":    o.Purpose,
		"expires_at": o.ExpiresAt.Format(time.RFC3339),
	})
	if n.IncludeCode {
		entry = entry.WithField("code", o.Code)
	}
	entry.Info("otp issued")
	return nil
}
