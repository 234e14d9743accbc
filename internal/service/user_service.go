package service

import (
	"context"
	"errors"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
)

// ErrSelfModification is returned when an administrator tries to demote or
// delete their own account.
var ErrSelfModification = errors.New("administrators cannot change or delete their own account here")

// UserService is the administrative view of accounts and the audit trail.
type UserService struct {
	users  *repository.UserRepo
	audit  *repository.AuditRepo
	events queue.Recorder
}

func NewUserService(users *repository.UserRepo, audit *repository.AuditRepo, events queue.Recorder) *UserService {
	return &UserService{users: users, audit: audit, events: events}
}

// List returns accounts matching f.
func (s *UserService) List(ctx context.Context, f repository.UserFilter) ([]model.User, error) {
	out, err := s.users.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.User{}
	}
	return out, nil
}

// Update changes role, verification or lock state of user id.
func (s *UserService) Update(ctx context.Context, actor Actor, id uint64, p repository.UserPatch) (model.User, error) {
	if id == actor.UserID && (p.Role != nil || (p.IsVerified != nil && !*p.IsVerified)) {
		return model.User{}, ErrSelfModification
	}
	if err := s.users.AdminUpdate(ctx, id, p); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return model.User{}, invalid("", "no fields to update")
		}
		return model.User{}, err
	}
	changes := map[string]any{}
	if p.Role != nil {
		changes["role"] = *p.Role
	}
	if p.IsVerified != nil {
		changes["is_verified"] = *p.IsVerified
	}
	if p.Unlock {
		changes["unlock"] = true
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionUserUpdated, queue.EntityUser, id, actor.UserID).With(changes, actor.IP))
	return s.users.GetByID(ctx, id)
}

// Delete removes user id together with their votes and sessions.
func (s *UserService) Delete(ctx context.Context, actor Actor, id uint64) error {
	if id == actor.UserID {
		return ErrSelfModification
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionUserDeleted, queue.EntityUser, id, actor.UserID).With(nil, actor.IP))
	return nil
}

// AuditLogs lists audit entries matching f.
func (s *UserService) AuditLogs(ctx context.Context, f repository.AuditFilter) ([]model.AuditLog, error) {
	out, err := s.audit.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.AuditLog{}
	}
	return out, nil
}

func (s *UserService) record(ctx context.Context, ev queue.AuditEvent) {
	if s.events != nil {
		s.events.Record(ctx, ev)
	}
}
