package model

import "time"

// Vote represents a row in the `votes` table.  There is at most one vote per
// (ElectionID, VoterID); rows are never updated or deleted by the API.
type Vote struct {
    ID          uint64    `json:"id"`
    ElectionID  uint64    `json:"election_id"`
    VoterID     uint64    `json:"voter_id"`
    CandidateID uint64    `json:"candidate_id"`
    CastAt      time.Time `json:"cast_at"`
    IPAddress   string    `json:"-"`
}

// VoteReceipt is a voter's view of one of their own ballots.
type VoteReceipt struct {
    VoteID        uint64    `json:"vote_id"`
    ElectionID    uint64    `json:"election_id"`
    ElectionTitle string    `json:"election_title"`
    CandidateID   uint64    `json:"candidate_id"`
    CandidateName string    `json:"candidate_name"`
    CastAt        time.Time `json:"cast_at"`
}

// CandidateTally is one candidate's line in a results aggregate.
type CandidateTally struct {
    CandidateID uint64  `json:"candidate_id"`
    Name        string  `json:"name"`
    Party       string  `json:"party,omitempty"`
    Votes       int64   `json:"votes"`
    Percentage  float64 `json:"percentage"`
    Rank        int     `json:"rank"`
}

// ElectionResults is the aggregate served by the reporting endpoints and
// stored as the JSON payload of the results cache.
type ElectionResults struct {
    ElectionID     uint64           `json:"election_id"`
    Title          string           `json:"title"`
    Status         ElectionStatus   `json:"status"`
    TotalVotes     int64            `json:"total_votes"`
    EligibleVoters int64            `json:"eligible_voters"`
    Turnout        float64          `json:"turnout"`
    Candidates     []CandidateTally `json:"candidates"`
    ComputedAt     time.Time        `json:"computed_at"`
    Cached         bool             `json:"cached"`
}

// ResultsCacheEntry represents a row in `election_results_cache`.
type ResultsCacheEntry struct {
    ElectionID     uint64
    Payload        []byte
    TotalVotes     int64
    EligibleVoters int64
    ComputedAt     time.Time
}

// HourlyBucket counts the votes cast during one hour of the day.
type HourlyBucket struct {
    Hour  int   `json:"hour"`
    Votes int64 `json:"votes"`
}
