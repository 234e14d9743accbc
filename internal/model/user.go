package model

import (
    "fmt"
    "strings"
    "time"
)

// Role is the closed set of account roles.  Capabilities attached to each
// role live in the access package; code outside it should not branch on
// role names.
type Role string

const (
    RoleAdmin           Role = "admin"
    RoleVoter           Role = "voter"
    RoleElectionOfficer Role = "election_officer"
    RoleObserver        Role = "observer"
)

// AllRoles lists every role in a stable order.
var AllRoles = []Role{RoleAdmin, RoleVoter, RoleElectionOfficer, RoleObserver}

// ParseRole normalises s and returns the matching Role.
func ParseRole(s string) (Role, error) {
    r := Role(strings.ToLower(strings.TrimSpace(s)))
    if !r.Valid() {
        return "", fmt.Errorf("unknown role %q", s)
    }
    return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
    switch r {
    case RoleAdmin, RoleVoter, RoleElectionOfficer, RoleObserver:
        return true
    }
    return false
}

func (r Role) String() string { return string(r) }

// User represents a row in the `users` table.
//
// Fields:
//  Department, Designation – required for election officers.
//  AssignmentArea          – required for observers.
//  FailedLoginAttempts     – consecutive failed password checks; reset on success.
//  LockedUntil             – login is refused while this is in the future.
type User struct {
    ID                  uint64     `json:"id"`
    Name                string     `json:"name"`
    Email               string     `json:"email"`
    PasswordHash        string     `json:"-"`
    Phone               string     `json:"phone,omitempty"`
    Role                Role       `json:"role"`
    Department          string     `json:"department,omitempty"`
    Designation         string     `json:"designation,omitempty"`
    AssignmentArea      string     `json:"assignment_area,omitempty"`
    IsVerified          bool       `json:"is_verified"`
    FailedLoginAttempts int        `json:"failed_login_attempts"`
    LockedUntil         *time.Time `json:"locked_until,omitempty"`
    LastLoginAt         *time.Time `json:"last_login_at,omitempty"`
    CreatedAt           time.Time  `json:"created_at"`
    UpdatedAt           time.Time  `json:"updated_at"`
}

// IsLocked reports whether the account is locked at instant now.
func (u User) IsLocked(now time.Time) bool {
    return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token handed to the client is stored.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
