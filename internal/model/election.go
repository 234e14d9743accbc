package model

import (
    "fmt"
    "strings"
    "time"
)

// ElectionStatus is the lifecycle state of an election.  Transitions are
// monotonic: draft -> active -> completed.
type ElectionStatus string

const (
    StatusDraft     ElectionStatus = "draft"
    StatusActive    ElectionStatus = "active"
    StatusCompleted ElectionStatus = "completed"
)

// ParseElectionStatus normalises s and returns the matching status.
func ParseElectionStatus(s string) (ElectionStatus, error) {
    st := ElectionStatus(strings.ToLower(strings.TrimSpace(s)))
    switch st {
    case StatusDraft, StatusActive, StatusCompleted:
        return st, nil
    }
    return "", fmt.Errorf("unknown election status %q", s)
}

// Next returns the single status that may follow s, or "" for completed.
func (s ElectionStatus) Next() ElectionStatus {
    switch s {
    case StatusDraft:
        return StatusActive
    case StatusActive:
        return StatusCompleted
    }
    return ""
}

// CanTransitionTo reports whether moving from s to target is one forward step.
func (s ElectionStatus) CanTransitionTo(target ElectionStatus) bool {
    return target != "" && s.Next() == target
}

// Election represents a row in the `elections` table.  StartDate must be
// before EndDate; this is validated by the service layer, not the schema.
type Election struct {
    ID          uint64         `json:"id"`
    Title       string         `json:"title"`
    Description string         `json:"description"`
    StartDate   time.Time      `json:"start_date"`
    EndDate     time.Time      `json:"end_date"`
    Status      ElectionStatus `json:"status"`
    IsPublic    bool           `json:"is_public"`
    CreatedBy   *uint64        `json:"created_by,omitempty"`
    CreatedAt   time.Time      `json:"created_at"`
    UpdatedAt   time.Time      `json:"updated_at"`
}

// AcceptsVotesAt reports whether the election is active and now falls inside
// [StartDate, EndDate].
func (e Election) AcceptsVotesAt(now time.Time) bool {
    return e.Status == StatusActive && !now.Before(e.StartDate) && !now.After(e.EndDate)
}

// Candidate represents a row in the `candidates` table.  VoteCount is kept
// equal to the number of votes referencing the candidate by updating it in
// the same transaction as each vote insert.
type Candidate struct {
    ID         uint64    `json:"id"`
    ElectionID uint64    `json:"election_id"`
    Name       string    `json:"name"`
    Party      string    `json:"party,omitempty"`
    Manifesto  string    `json:"manifesto,omitempty"`
    PhotoURL   string    `json:"photo_url,omitempty"`
    VoteCount  int64     `json:"vote_count"`
    CreatedAt  time.Time `json:"created_at"`
}
