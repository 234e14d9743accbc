package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/model"
)

// ResultsRepo stores the per-election results snapshot.
type ResultsRepo struct {
	db      *sql.DB
	dialect database.Dialect
}

func NewResultsRepo(db *sql.DB, d database.Dialect) *ResultsRepo {
	return &ResultsRepo{db: db, dialect: d}
}

// Upsert writes the snapshot for e.ElectionID, replacing any earlier one.
func (r *ResultsRepo) Upsert(ctx context.Context, e model.ResultsCacheEntry) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO election_results_cache (election_id, payload, total_votes, eligible_voters, computed_at)
		 VALUES (?,?,?,?,?) `+r.dialect.UpsertSuffix("election_id", "payload", "total_votes", "eligible_voters", "computed_at"),
		e.ElectionID, string(e.Payload), e.TotalVotes, e.EligibleVoters, database.Time(e.ComputedAt))
	return err
}

// Get returns the snapshot for electionID or ErrResultsMissing.
func (r *ResultsRepo) Get(ctx context.Context, electionID uint64) (model.ResultsCacheEntry, error) {
	var (
		e       model.ResultsCacheEntry
		payload string
	)
	err := r.db.QueryRowContext(ctx,
		"SELECT election_id, payload, total_votes, eligible_voters, computed_at FROM election_results_cache WHERE election_id=?",
		electionID).Scan(&e.ElectionID, &payload, &e.TotalVotes, &e.EligibleVoters, &e.ComputedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ResultsCacheEntry{}, ErrResultsMissing
		}
		return model.ResultsCacheEntry{}, err
	}
	e.Payload = []byte(payload)
	return e, nil
}
