package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/model"
)

// AuditRepo appends to and reads the audit_logs table.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Insert appends one audit entry.
func (r *AuditRepo) Insert(ctx context.Context, a model.AuditLog) error {
	var changes any
	if len(a.Changes) > 0 {
		changes = string(a.Changes)
	}
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, changes, ip_address, created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		a.ActorID, a.Action, a.EntityType, a.EntityID, changes, a.IPAddress, database.Time(createdAt))
	return err
}

// AuditFilter narrows List.  Zero values are ignored.
type AuditFilter struct {
	ActorID    uint64
	Action     string
	EntityType string
	EntityID   uint64
	Limit      uint64
	Offset     uint64
}

// List returns audit entries, newest first.
func (r *AuditRepo) List(ctx context.Context, f AuditFilter) ([]model.AuditLog, error) {
	q := sq.StatementBuilder.PlaceholderFormat(sq.Question).
		Select("id", "actor_id", "action", "entity_type", "entity_id", "changes", "ip_address", "created_at").
		From("audit_logs").
		OrderBy("id DESC")
	if f.ActorID != 0 {
		q = q.Where(sq.Eq{"actor_id": f.ActorID})
	}
	if f.Action != "" {
		q = q.Where(sq.Eq{"action": f.Action})
	}
	if f.EntityType != "" {
		q = q.Where(sq.Eq{"entity_type": f.EntityType})
	}
	if f.EntityID != 0 {
		q = q.Where(sq.Eq{"entity_id": f.EntityID})
	}
	sqlStr, args, err := q.Limit(clampLimit(f.Limit)).Offset(f.Offset).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var (
			a        model.AuditLog
			actorID  sql.NullInt64
			entityID sql.NullInt64
			changes  sql.NullString
		)
		if err := rows.Scan(&a.ID, &actorID, &a.Action, &a.EntityType, &entityID, &changes, &a.IPAddress, &a.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			v := uint64(actorID.Int64)
			a.ActorID = &v
		}
		if entityID.Valid {
			v := uint64(entityID.Int64)
			a.EntityID = &v
		}
		if changes.Valid && changes.String != "" {
			a.Changes = []byte(changes.String)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
