// Package otp generates the numeric one-time codes mailed to users and the
// hashes under which they are stored.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// Digits is the length of every issued code.
const Digits = 6

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Generate returns a fresh six-digit code.  Each code is an HOTP value over
// a random secret and counter, so codes are uniformly distributed and
// independent of each other.
func Generate() (string, error) {
	buf := make([]byte, 28)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	secret := secretEncoding.EncodeToString(buf[:20])
	counter := binary.BigEndian.Uint64(buf[20:])
	return hotp.GenerateCodeCustom(secret, counter, hotp.ValidateOpts{
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

// Hash returns the storage form of code for email.
func Hash(email, code string) string {
	return ScopedHash(email, "", code)
}

// ScopedHash binds code to email and scope, so a code issued for one scope
// never matches in another.  An empty scope hashes like Hash.
func ScopedHash(email, scope, code string) string {
	in := strings.ToLower(strings.TrimSpace(email)) + "|"
	if scope != "" {
		in += scope + "|"
	}
	sum := sha256.Sum256([]byte(in + strings.TrimSpace(code)))
	return hex.EncodeToString(sum[:])
}

// WellFormed reports whether code has the expected shape.
func WellFormed(code string) bool {
	code = strings.TrimSpace(code)
	if len(code) != Digits {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
