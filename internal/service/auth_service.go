package service

import (
	"context"
	"errors"
	"strings"
	"time"

	valid "github.com/asaskevich/govalidator"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/election-voting-portal/internal/config"
	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/utils"
)

// AuthService implements registration, login with lockout, OTP
// confirmation, password reset and refresh-token sessions.
type AuthService struct {
	cfg    config.Config
	users  *repository.UserRepo
	tokens *repository.TokenRepo
	otps   *OTPManager
	events queue.Recorder

	Now func() time.Time
}

func NewAuthService(cfg config.Config, users *repository.UserRepo, tokens *repository.TokenRepo, otps *OTPManager, events queue.Recorder) *AuthService {
	return &AuthService{cfg: cfg, users: users, tokens: tokens, otps: otps, events: events, Now: time.Now}
}

// TokenPair is an access token plus the raw refresh token handed to the client.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// RegisterInput is a self-service sign-up request.
type RegisterInput struct {
	Name           string
	Email          string
	Password       string
	Phone          string
	Role           string
	Department     string
	Designation    string
	AssignmentArea string
	IP             string
}

// RegisterResult carries the new account and, in development, the issued code.
type RegisterResult struct {
	User model.User
	OTP  string
}

// Register creates an unverified account and sends a registration OTP.
// Administrators cannot self-register.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (RegisterResult, error) {
	u, err := in.validate()
	if err != nil {
		return RegisterResult{}, err
	}
	id, err := s.users.Create(ctx, u, in.Password, s.cfg.BcryptCost)
	if err != nil {
		return RegisterResult{}, err
	}
	u, err = s.users.GetByID(ctx, id)
	if err != nil {
		return RegisterResult{}, err
	}
	code, err := s.otps.Issue(ctx, u, model.PurposeRegistration)
	if err != nil {
		return RegisterResult{}, err
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionUserRegistered, queue.EntityUser, u.ID, u.ID).
		With(map[string]any{"role": u.Role}, in.IP))
	return RegisterResult{User: u, OTP: code}, nil
}

func (in RegisterInput) validate() (model.User, error) {
	u := model.User{
		Name:           strings.TrimSpace(in.Name),
		Email:          strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:          strings.TrimSpace(in.Phone),
		Department:     strings.TrimSpace(in.Department),
		Designation:    strings.TrimSpace(in.Designation),
		AssignmentArea: strings.TrimSpace(in.AssignmentArea),
	}
	if err := validateIdentity(u.Name, u.Email, in.Password); err != nil {
		return u, err
	}
	if !valid.IsNull(u.Phone) && !valid.StringLength(u.Phone, "3", "32") {
		return u, invalid("phone", "must be between 3 and 32 characters")
	}
	role := model.RoleVoter
	if !valid.IsNull(strings.TrimSpace(in.Role)) {
		r, err := model.ParseRole(in.Role)
		if err != nil || !valid.IsIn(string(r), selfServiceRoles...) {
			return u, invalid("role", "must be voter, election_officer or observer")
		}
		role = r
	}
	switch role {
	case model.RoleElectionOfficer:
		if valid.IsNull(u.Department) {
			return u, invalid("department", "is required for election officers")
		}
		if valid.IsNull(u.Designation) {
			return u, invalid("designation", "is required for election officers")
		}
	case model.RoleObserver:
		if valid.IsNull(u.AssignmentArea) {
			return u, invalid("assignment_area", "is required for observers")
		}
	}
	u.Role = role
	return u, nil
}

var selfServiceRoles = []string{
	string(model.RoleVoter),
	string(model.RoleElectionOfficer),
	string(model.RoleObserver),
}

// validateIdentity checks the fields every account carries.  email must
// already be normalized.
func validateIdentity(name, email, password string) error {
	switch {
	case valid.IsNull(name):
		return invalid("name", "is required")
	case !valid.StringLength(name, "1", "120"):
		return invalid("name", "must be at most 120 characters")
	case valid.IsNull(email):
		return invalid("email", "is required")
	case !valid.IsEmail(email) || !valid.StringLength(email, "3", "255"):
		return invalid("email", "is not a valid address")
	}
	if err := utils.ValidatePassword(password); err != nil {
		return invalid("password", err.Error())
	}
	return nil
}

// LoginResult is either a session or a request for the login OTP.
type LoginResult struct {
	User        model.User
	OTPRequired bool
	OTP         string
	Tokens      *TokenPair
}

// Login checks credentials.  A locked account is refused before the
// password is looked at.  Roles configured for a second factor receive a
// login OTP instead of tokens.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	now := s.Now().UTC()
	if u.IsLocked(now) {
		return LoginResult{}, ErrAccountLocked
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		attempts, lockedUntil, err := s.users.RegisterLoginFailure(ctx, u.ID, now, s.cfg.LockoutThreshold, s.cfg.LockoutDuration)
		if err != nil {
			return LoginResult{}, err
		}
		if lockedUntil != nil {
			log.WithFields(log.Fields{"user_id": u.ID, "attempts": attempts}).Warn("account locked after failed logins")
			s.record(ctx, queue.NewAuditEvent(queue.ActionUserLocked, queue.EntityUser, u.ID, 0).
				With(map[string]any{"locked_until": lockedUntil.Format(time.RFC3339)}, ip))
			return LoginResult{}, ErrAccountLocked
		}
		return LoginResult{}, ErrInvalidCredentials
	}
	if !u.IsVerified {
		return LoginResult{}, ErrEmailNotVerified
	}
	if err := s.users.RegisterLoginSuccess(ctx, u.ID, now); err != nil {
		return LoginResult{}, err
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil

	if s.cfg.RequiresSecondFactor(u.Role) {
		code, err := s.otps.Issue(ctx, u, model.PurposeLogin)
		if err != nil {
			return LoginResult{}, err
		}
		return LoginResult{User: u, OTPRequired: true, OTP: code}, nil
	}

	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return LoginResult{}, err
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionUserLogin, queue.EntityUser, u.ID, u.ID).With(nil, ip))
	return LoginResult{User: u, Tokens: &pair}, nil
}

// VerifyResult reports what a consumed OTP achieved.
type VerifyResult struct {
	Purpose model.OTPPurpose
	User    model.User
	Tokens  *TokenPair
}

// VerifyOTP confirms a registration or login code.  Without an explicit
// purpose an unverified account is assumed to confirm its registration and
// a verified one its login.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string, purpose model.OTPPurpose, ip string) (VerifyResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return VerifyResult{}, ErrInvalidOTP
		}
		return VerifyResult{}, err
	}
	if purpose == "" {
		purpose = model.PurposeLogin
		if !u.IsVerified {
			purpose = model.PurposeRegistration
		}
	}

	switch purpose {
	case model.PurposeRegistration:
		if u.IsVerified {
			return VerifyResult{}, ErrAlreadyVerified
		}
		if _, err := s.otps.Verify(ctx, u.Email, code, purpose); err != nil {
			return VerifyResult{}, err
		}
		if err := s.users.MarkVerified(ctx, u.ID); err != nil {
			if errors.Is(err, repository.ErrNoChange) {
				return VerifyResult{}, ErrAlreadyVerified
			}
			return VerifyResult{}, err
		}
		u.IsVerified = true
		s.record(ctx, queue.NewAuditEvent(queue.ActionUserVerified, queue.EntityUser, u.ID, u.ID).With(nil, ip))
		return VerifyResult{Purpose: purpose, User: u}, nil

	case model.PurposeLogin:
		if !u.IsVerified {
			return VerifyResult{}, ErrEmailNotVerified
		}
		if u.IsLocked(s.Now()) {
			return VerifyResult{}, ErrAccountLocked
		}
		if _, err := s.otps.Verify(ctx, u.Email, code, purpose); err != nil {
			return VerifyResult{}, err
		}
		pair, err := s.issueTokens(ctx, u)
		if err != nil {
			return VerifyResult{}, err
		}
		s.record(ctx, queue.NewAuditEvent(queue.ActionUserLogin, queue.EntityUser, u.ID, u.ID).
			With(map[string]any{"second_factor": true}, ip))
		return VerifyResult{Purpose: purpose, User: u, Tokens: &pair}, nil
	}
	return VerifyResult{}, invalid("purpose", "must be registration or login")
}

// ResendOTP issues a fresh registration or login code.  Unknown addresses
// succeed silently so the endpoint cannot be used to probe for accounts.
func (s *AuthService) ResendOTP(ctx context.Context, email string, purpose model.OTPPurpose) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}
	switch purpose {
	case model.PurposeRegistration:
		if u.IsVerified {
			return "", ErrAlreadyVerified
		}
	case model.PurposeLogin:
		if !u.IsVerified {
			return "", ErrEmailNotVerified
		}
		if !s.cfg.RequiresSecondFactor(u.Role) {
			return "", invalid("purpose", "login codes are not used for this account")
		}
	default:
		return "", invalid("purpose", "must be registration or login")
	}
	return s.otps.Issue(ctx, u, purpose)
}

// ForgotPassword sends a password_reset code.  Unknown addresses succeed
// silently.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) (string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil
		}
		return "", err
	}
	return s.otps.Issue(ctx, u, model.PurposePasswordReset)
}

// ResetPassword replaces the password after a password_reset code is
// confirmed.  Every open session is revoked and any lockout cleared.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword, ip string) error {
	if err := utils.ValidatePassword(newPassword); err != nil {
		return invalid("new_password", err.Error())
	}
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrInvalidOTP
		}
		return err
	}
	if _, err := s.otps.Verify(ctx, u.Email, code, model.PurposePasswordReset); err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, u.ID, newPassword, s.cfg.BcryptCost); err != nil {
		return err
	}
	if err := s.tokens.RevokeAllForUser(ctx, u.ID, s.Now()); err != nil {
		return err
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionUserPasswordReset, queue.EntityUser, u.ID, u.ID).With(nil, ip))
	return nil
}

// Refresh rotates a refresh token: the presented token is revoked and a new
// pair issued.
func (s *AuthService) Refresh(ctx context.Context, raw string) (model.User, TokenPair, error) {
	hash := utils.HashRefreshRaw(strings.TrimSpace(raw))
	userID, err := s.tokens.Consume(ctx, hash, s.Now())
	if err != nil {
		if errors.Is(err, repository.ErrRefreshTokenInvalid) {
			return model.User{}, TokenPair{}, ErrInvalidRefreshToken
		}
		return model.User{}, TokenPair{}, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.User{}, TokenPair{}, ErrInvalidRefreshToken
		}
		return model.User{}, TokenPair{}, err
	}
	if u.IsLocked(s.Now()) {
		return model.User{}, TokenPair{}, ErrAccountLocked
	}
	pair, err := s.issueTokens(ctx, u)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// Logout revokes one of userID's refresh tokens, or all of them when raw
// is empty.
func (s *AuthService) Logout(ctx context.Context, userID uint64, raw string) error {
	if userID == 0 {
		return ErrInvalidRefreshToken
	}
	raw = strings.TrimSpace(raw)
	if raw != "" {
		return s.tokens.RevokeForUser(ctx, userID, utils.HashRefreshRaw(raw), s.Now())
	}
	return s.tokens.RevokeAllForUser(ctx, userID, s.Now())
}

// Me returns the account behind an access token.
func (s *AuthService) Me(ctx context.Context, userID uint64) (model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// SeedAdmin creates a verified administrator.  It is the only way to create
// admin accounts.
func (s *AuthService) SeedAdmin(ctx context.Context, name, email, password string) (model.User, error) {
	u := model.User{
		Name:       strings.TrimSpace(name),
		Email:      strings.ToLower(strings.TrimSpace(email)),
		Role:       model.RoleAdmin,
		IsVerified: true,
	}
	if err := validateIdentity(u.Name, u.Email, password); err != nil {
		return model.User{}, err
	}
	id, err := s.users.Create(ctx, u, password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, err
	}
	return s.users.GetByID(ctx, id)
}

func (s *AuthService) issueTokens(ctx context.Context, u model.User) (TokenPair, error) {
	access, err := utils.NewAccessToken(s.cfg.JWTSecret, u.ID, string(u.Role), s.cfg.AccessTTLMin)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := utils.NewRefreshToken(s.cfg.RefreshTTLDays)
	if err != nil {
		return TokenPair{}, err
	}
	now := s.Now().UTC()
	refreshExp := now.Add(time.Duration(s.cfg.RefreshTTLDays) * 24 * time.Hour)
	if err := s.tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refreshExp, now); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access.Token,
		AccessExpiresAt:  access.Exp,
		RefreshToken:     refresh.Raw,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) record(ctx context.Context, ev queue.AuditEvent) {
	if s.events != nil {
		s.events.Record(ctx, ev)
	}
}
