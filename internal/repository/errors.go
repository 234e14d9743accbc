// Package repository defines the data access layer and the sentinel errors
// shared between repositories.  Handlers and services compare against these
// values with errors.Is to choose a response.
package repository

import "errors"

// ErrConflict is returned when a delete or update cannot be performed
// because of the row's current state, such as deleting an election that
// has already started.  Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrNoChange is returned by partial updates when no field was supplied.
var ErrNoChange = errors.New("no fields to update")

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrEmailExists       = errors.New("email already exists")
	ErrElectionNotFound  = errors.New("election not found")
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrDuplicateCandidate signals a second candidate with the same name in one election.
	ErrDuplicateCandidate = errors.New("candidate name already exists in this election")
	// ErrDuplicateVote is raised by the unique index on votes(election_id, voter_id).
	ErrDuplicateVote  = errors.New("voter already voted in this election")
	ErrOTPNotFound    = errors.New("no matching one-time code")
	ErrResultsMissing = errors.New("results cache entry not found")
	// ErrStaleStatus means a conditional status update matched no row because
	// the election was no longer in the expected status.
	ErrStaleStatus = errors.New("election status changed concurrently")
)
