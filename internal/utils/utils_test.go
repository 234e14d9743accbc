package utils

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	at, err := NewAccessToken("s3cret", 42, "voter", 15)
	require.NoError(t, err)

	claims, err := ParseAccessToken("s3cret", at.Token)
	require.NoError(t, err)
	assert.Equal(t, "voter", claims.Role)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)

	_, err = ParseAccessToken("other", at.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = ParseAccessToken("s3cret", "not.a.jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAccessTokenExpired(t *testing.T) {
	at, err := NewAccessToken("s3cret", 1, "admin", -1)
	require.NoError(t, err)
	_, err = ParseAccessToken("s3cret", at.Token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAccessTokenRejectsNone(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, AccessClaims{Role: "admin"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken("s3cret", raw)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestClaimsUserID(t *testing.T) {
	for _, sub := range []string{"", "0", "-3", "abc"} {
		_, err := AccessClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}.UserID()
		assert.ErrorIs(t, err, ErrInvalidToken, sub)
	}
}

func TestRefreshToken(t *testing.T) {
	a, err := NewRefreshToken(7)
	require.NoError(t, err)
	b, err := NewRefreshToken(7)
	require.NoError(t, err)
	assert.Len(t, a.Raw, 96)
	assert.NotEqual(t, a.Raw, b.Raw)

	assert.Equal(t, HashRefreshRaw(a.Raw), HashRefreshRaw(a.Raw))
	assert.NotEqual(t, HashRefreshRaw(a.Raw), HashRefreshRaw(b.Raw))
	assert.Len(t, HashRefreshRaw(a.Raw), 64)
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("passw0rdX", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "passw0rdX"))
	assert.False(t, VerifyPassword(h, "passw0rdY"))
	assert.False(t, VerifyPassword("garbage", "passw0rdX"))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		in string
		ok bool
	}{
		{"passw0rd", true},
		{"short1", false},
		{"lettersonly", false},
		{"12345678", false},
		{string(make([]byte, 73)), false},
	}
	for _, tc := range tests {
		err := ValidatePassword(tc.in)
		if tc.ok {
			assert.NoError(t, err, tc.in)
		} else {
			assert.ErrorIs(t, err, ErrWeakPassword, tc.in)
		}
	}
}
