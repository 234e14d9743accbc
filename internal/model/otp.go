package model

import (
    "fmt"
    "strings"
    "time"
)

// OTPPurpose scopes a one-time code to the flow that issued it.
type OTPPurpose string

const (
    PurposeRegistration  OTPPurpose = "registration"
    PurposeLogin         OTPPurpose = "login"
    PurposePasswordReset OTPPurpose = "password_reset"
    PurposeVote          OTPPurpose = "vote"
)

// ParseOTPPurpose normalises s and returns the matching purpose.
func ParseOTPPurpose(s string) (OTPPurpose, error) {
    p := OTPPurpose(strings.ToLower(strings.TrimSpace(s)))
    switch p {
    case PurposeRegistration, PurposeLogin, PurposePasswordReset, PurposeVote:
        return p, nil
    }
    return "", fmt.Errorf("unknown otp purpose %q", s)
}

// OTP represents a row in the `otps` table.  Only a hash of the code is kept.
// A code is usable once; Consumed flips on the first successful match.
type OTP struct {
    ID         uint64
    Email      string
    CodeHash   string
    Purpose    OTPPurpose
    ExpiresAt  time.Time
    Consumed   bool
    ConsumedAt *time.Time
    CreatedAt  time.Time
}

// IsExpired reports whether the code has expired at instant now.
func (o OTP) IsExpired(now time.Time) bool { return !now.Before(o.ExpiresAt) }
