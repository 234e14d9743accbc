package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/testutil"
	"github.com/iliyamo/election-voting-portal/internal/utils"
)

func TestRegisterAndVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	res, err := env.auth.Register(ctx, RegisterInput{
		Name:     "Vera Voter",
		Email:    "Vera@Example.com",
		Password: "passw0rdX",
		Role:     "voter",
	})
	require.NoError(t, err)
	assert.Equal(t, "vera@example.com", res.User.Email)
	assert.False(t, res.User.IsVerified)
	assert.Empty(t, res.OTP, "codes are not echoed unless enabled")

	_, err = env.auth.Login(ctx, "vera@example.com", "passw0rdX", "")
	assert.ErrorIs(t, err, ErrEmailNotVerified)

	code := env.notifier.Code("vera@example.com", model.PurposeRegistration)
	require.Len(t, code, 6)

	out, err := env.auth.VerifyOTP(ctx, "vera@example.com", code, "", "")
	require.NoError(t, err)
	assert.Equal(t, model.PurposeRegistration, out.Purpose)
	assert.True(t, out.User.IsVerified)
	assert.Nil(t, out.Tokens)

	_, err = env.auth.VerifyOTP(ctx, "vera@example.com", code, model.PurposeRegistration, "")
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	_, err = env.auth.Register(ctx, RegisterInput{Name: "Again", Email: "vera@example.com", Password: "passw0rdX"})
	assert.ErrorIs(t, err, repository.ErrEmailExists)

	assert.Equal(t, []string{queue.ActionUserRegistered, queue.ActionUserVerified}, env.events.Actions())
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	base := RegisterInput{Name: "N", Email: "n@example.com", Password: "passw0rdX"}

	tests := []struct {
		name  string
		edit  func(*RegisterInput)
		field string
	}{
		{"missing name", func(in *RegisterInput) { in.Name = " " }, "name"},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, "email"},
		{"weak password", func(in *RegisterInput) { in.Password = "short" }, "password"},
		{"admin role", func(in *RegisterInput) { in.Role = "admin" }, "role"},
		{"unknown role", func(in *RegisterInput) { in.Role = "king" }, "role"},
		{"officer without department", func(in *RegisterInput) { in.Role = "election_officer" }, "department"},
		{"officer without designation", func(in *RegisterInput) { in.Role = "election_officer"; in.Department = "Ops" }, "designation"},
		{"observer without area", func(in *RegisterInput) { in.Role = "observer" }, "assignment_area"},
		{"display-name email", func(in *RegisterInput) { in.Email = "Vera <vera@example.com>" }, "email"},
		{"overlong name", func(in *RegisterInput) { in.Name = strings.Repeat("n", 121) }, "name"},
		{"overlong phone", func(in *RegisterInput) { in.Phone = strings.Repeat("1", 33) }, "phone"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.edit(&in)
			_, err := env.auth.Register(ctx, in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestLoginSecondFactorOTPIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)

	res, err := env.auth.Login(ctx, voter.Email, testutil.Password, "")
	require.NoError(t, err)
	assert.True(t, res.OTPRequired)
	assert.Nil(t, res.Tokens)

	code := env.notifier.Code(voter.Email, model.PurposeLogin)
	out, err := env.auth.VerifyOTP(ctx, voter.Email, code, model.PurposeLogin, "")
	require.NoError(t, err)
	require.NotNil(t, out.Tokens)

	claims, err := utils.ParseAccessToken(env.cfg.JWTSecret, out.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, string(model.RoleVoter), claims.Role)

	_, err = env.auth.VerifyOTP(ctx, voter.Email, code, model.PurposeLogin, "")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestOTPExpires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)

	_, err := env.auth.Login(ctx, voter.Email, testutil.Password, "")
	require.NoError(t, err)
	code := env.notifier.Code(voter.Email, model.PurposeLogin)

	env.clock.Advance(5*time.Minute + time.Second)
	_, err = env.auth.VerifyOTP(ctx, voter.Email, code, model.PurposeLogin, "")
	assert.ErrorIs(t, err, ErrInvalidOTP)
}

func TestOTPPurposeScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)

	_, err := env.auth.ForgotPassword(ctx, voter.Email)
	require.NoError(t, err)
	code := env.notifier.Code(voter.Email, model.PurposePasswordReset)

	_, err = env.auth.VerifyOTP(ctx, voter.Email, code, model.PurposeLogin, "")
	assert.ErrorIs(t, err, ErrInvalidOTP)

	require.NoError(t, env.auth.ResetPassword(ctx, voter.Email, code, "newpassw0rd", ""))
	res, err := env.auth.Login(ctx, voter.Email, "newpassw0rd", "")
	require.NoError(t, err)
	assert.True(t, res.OTPRequired)

	_, err = env.auth.Login(ctx, voter.Email, testutil.Password, "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.db, model.User{Role: model.RoleAdmin, IsVerified: true})

	for i := 0; i < 4; i++ {
		_, err := env.auth.Login(ctx, admin.Email, "wrong-pass1", "")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
	}
	_, err := env.auth.Login(ctx, admin.Email, "wrong-pass1", "")
	require.ErrorIs(t, err, ErrAccountLocked)

	// the correct password does not help while locked
	_, err = env.auth.Login(ctx, admin.Email, testutil.Password, "")
	require.ErrorIs(t, err, ErrAccountLocked)

	env.clock.Advance(15*time.Minute + time.Second)
	res, err := env.auth.Login(ctx, admin.Email, testutil.Password, "")
	require.NoError(t, err)
	require.NotNil(t, res.Tokens, "admins are not asked for a second factor")

	u, err := env.users.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Zero(t, u.FailedLoginAttempts)
	assert.Nil(t, u.LockedUntil)
	assert.Contains(t, env.events.Actions(), queue.ActionUserLocked)
}

func TestExpiredLockRestartsCounter(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	voter := testutil.CreateVoter(t, env.db)

	for i := 0; i < 5; i++ {
		_, _ = env.auth.Login(ctx, voter.Email, "wrong-pass1", "")
	}
	env.clock.Advance(16 * time.Minute)

	_, err := env.auth.Login(ctx, voter.Email, "wrong-pass1", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	u, err := env.users.GetByID(ctx, voter.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, u.FailedLoginAttempts)
	assert.Nil(t, u.LockedUntil)
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.db, model.User{Role: model.RoleAdmin, IsVerified: true})

	res, err := env.auth.Login(ctx, admin.Email, testutil.Password, "")
	require.NoError(t, err)
	first := res.Tokens.RefreshToken

	_, pair, err := env.auth.Refresh(ctx, first)
	require.NoError(t, err)
	assert.NotEqual(t, first, pair.RefreshToken)

	_, _, err = env.auth.Refresh(ctx, first)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	require.NoError(t, env.auth.Logout(ctx, admin.ID, ""))
	_, _, err = env.auth.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestUnknownEmailIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.Login(ctx, "nobody@example.com", "whatever1", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	code, err := env.auth.ForgotPassword(ctx, "nobody@example.com")
	assert.NoError(t, err)
	assert.Empty(t, code)
}

func TestSeedAdminValidates(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.auth.SeedAdmin(ctx, "Root", "root@", "passw0rdX")
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)

	_, err = env.auth.SeedAdmin(ctx, " ", "root@example.com", "passw0rdX")
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	u, err := env.auth.SeedAdmin(ctx, "Root", "Root@Example.com", "passw0rdX")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, u.Role)
	assert.Equal(t, "root@example.com", u.Email)
	assert.True(t, u.IsVerified)
}

func TestRefreshExpiresWithClock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, env.db, model.User{Role: model.RoleAdmin, IsVerified: true})

	res, err := env.auth.Login(ctx, admin.Email, testutil.Password, "")
	require.NoError(t, err)
	assert.True(t, res.Tokens.RefreshExpiresAt.Equal(env.clock.Now().Add(7*24*time.Hour)))

	env.clock.Advance(7*24*time.Hour + time.Second)
	_, _, err = env.auth.Refresh(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestLogoutOnlyRevokesOwnToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := testutil.CreateUser(t, env.db, model.User{Role: model.RoleAdmin, IsVerified: true})
	b := testutil.CreateUser(t, env.db, model.User{Role: model.RoleAdmin, IsVerified: true})

	res, err := env.auth.Login(ctx, b.Email, testutil.Password, "")
	require.NoError(t, err)

	require.NoError(t, env.auth.Logout(ctx, a.ID, res.Tokens.RefreshToken))
	_, _, err = env.auth.Refresh(ctx, res.Tokens.RefreshToken)
	assert.NoError(t, err, "another user's logout leaves the session alive")
}
