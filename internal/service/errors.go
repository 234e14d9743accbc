// Package service holds the portal's business rules.  Services sit between
// the echo handlers and the repositories: they validate input, enforce the
// election and voting invariants, and emit audit events after a change has
// committed.
package service

import (
	"errors"
	"fmt"
)

// Authentication errors.  Messages are deliberately generic.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountLocked       = errors.New("account temporarily locked, try again later")
	ErrEmailNotVerified    = errors.New("email address not verified")
	ErrInvalidOTP          = errors.New("invalid or expired otp")
	ErrAlreadyVerified     = errors.New("account already verified")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
)

// Voting errors, one per precondition of VoteService.Cast.
var (
	ErrVoterNotFound          = errors.New("voter not found")
	ErrVoterNotVerified       = errors.New("voter is not verified")
	ErrElectionNotActive      = errors.New("election is not active")
	ErrOutsideVotingWindow    = errors.New("election is outside its voting window")
	ErrCandidateNotInElection = errors.New("candidate does not belong to this election")
	ErrAlreadyVoted           = errors.New("you have already voted in this election")
)

// Election administration and reporting errors.
var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrElectionNotDraft    = errors.New("election can only be changed while in draft")
	ErrResultsNotAvailable = errors.New("results are available once the election is completed")
)

// ValidationError reports a bad request field.  Handlers answer 400 with
// Message.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
