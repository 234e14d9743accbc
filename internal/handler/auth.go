package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/election-voting-portal/internal/access"
    "github.com/iliyamo/election-voting-portal/internal/model"
    "github.com/iliyamo/election-voting-portal/internal/service"
)

// AuthHandler serves registration, login, OTP and session endpoints.
type AuthHandler struct {
    Auth   *service.AuthService
    Policy *access.Policy
}

func NewAuthHandler(auth *service.AuthService, policy *access.Policy) *AuthHandler {
    return &AuthHandler{Auth: auth, Policy: policy}
}

// ----- DTOs -----

type registerReq struct {
    Name           string `json:"name"`
    Email          string `json:"email"`
    Password       string `json:"password"`
    Phone          string `json:"phone"`
    Role           string `json:"role"` // voter | election_officer | observer
    Department     string `json:"department"`
    Designation    string `json:"designation"`
    AssignmentArea string `json:"assignment_area"`
}
type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}
type verifyOTPReq struct {
    Email   string `json:"email"`
    OTP     string `json:"otp"`
    Purpose string `json:"purpose"`
}
type emailReq struct {
    Email   string `json:"email"`
    Purpose string `json:"purpose"`
}
type resetPasswordReq struct {
    Email       string `json:"email"`
    OTP         string `json:"otp"`
    NewPassword string `json:"new_password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type sessionResp struct {
    User   model.User         `json:"user"`
    Tokens *service.TokenPair `json:"tokens"`
}

type otpSentResp struct {
    Message string `json:"message"`
    OTP     string `json:"otp,omitempty"` // development only
}

func normEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Register creates an unverified account and sends the registration code.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    res, err := h.Auth.Register(ctx, service.RegisterInput{
        Name:           req.Name,
        Email:          req.Email,
        Password:       req.Password,
        Phone:          req.Phone,
        Role:           req.Role,
        Department:     req.Department,
        Designation:    req.Designation,
        AssignmentArea: req.AssignmentArea,
        IP:             c.RealIP(),
    })
    if err != nil {
        return fail(c, err)
    }
    body := echo.Map{
        "user":    res.User,
        "message": "registration successful, check your email for the verification code",
    }
    if res.OTP != "" {
        body["otp"] = res.OTP
    }
    return c.JSON(http.StatusCreated, body)
}

// Login checks credentials and either returns a session or asks for the
// login code.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Email = normEmail(req.Email)
    if req.Email == "" || req.Password == "" {
        return badRequest(c, "email/password required")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    res, err := h.Auth.Login(ctx, req.Email, req.Password, c.RealIP())
    if err != nil {
        return fail(c, err)
    }
    if res.OTPRequired {
        body := echo.Map{
            "otp_required": true,
            "message":      "a verification code was sent to your email",
        }
        if res.OTP != "" {
            body["otp"] = res.OTP
        }
        return c.JSON(http.StatusOK, body)
    }
    return c.JSON(http.StatusOK, sessionResp{User: res.User, Tokens: res.Tokens})
}

// VerifyOTP confirms a registration or login code.
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
    var req verifyOTPReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Email = normEmail(req.Email)
    if req.Email == "" || strings.TrimSpace(req.OTP) == "" {
        return badRequest(c, "email/otp required")
    }
    var purpose model.OTPPurpose
    if req.Purpose != "" {
        p, err := model.ParseOTPPurpose(req.Purpose)
        if err != nil || (p != model.PurposeRegistration && p != model.PurposeLogin) {
            return badRequest(c, "purpose must be registration or login")
        }
        purpose = p
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    res, err := h.Auth.VerifyOTP(ctx, req.Email, strings.TrimSpace(req.OTP), purpose, c.RealIP())
    if err != nil {
        return fail(c, err)
    }
    if res.Tokens == nil {
        return c.JSON(http.StatusOK, echo.Map{"message": "email verified", "user": res.User})
    }
    return c.JSON(http.StatusOK, sessionResp{User: res.User, Tokens: res.Tokens})
}

// ResendOTP issues a fresh registration or login code.
func (h *AuthHandler) ResendOTP(c echo.Context) error {
    var req emailReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Email = normEmail(req.Email)
    if req.Email == "" {
        return badRequest(c, "email required")
    }
    purpose, err := model.ParseOTPPurpose(req.Purpose)
    if err != nil {
        return badRequest(c, "purpose must be registration or login")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    code, err := h.Auth.ResendOTP(ctx, req.Email, purpose)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, otpSentResp{Message: "if the account exists a code was sent", OTP: code})
}

// ForgotPassword sends a password reset code.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
    var req emailReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Email = normEmail(req.Email)
    if req.Email == "" {
        return badRequest(c, "email required")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    code, err := h.Auth.ForgotPassword(ctx, req.Email)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, otpSentResp{Message: "if the account exists a code was sent", OTP: code})
}

// ResetPassword sets a new password using a password reset code and ends
// every session of the account.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
    var req resetPasswordReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Email = normEmail(req.Email)
    if req.Email == "" || req.OTP == "" || req.NewPassword == "" {
        return badRequest(c, "email/otp/new_password required")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    if err := h.Auth.ResetPassword(ctx, req.Email, strings.TrimSpace(req.OTP), req.NewPassword, c.RealIP()); err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"message": "password updated"})
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(c echo.Context) error {
    var req refreshReq
    if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
        return badRequest(c, "refresh_token required")
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    u, pair, err := h.Auth.Refresh(ctx, req.RefreshToken)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, sessionResp{User: u, Tokens: &pair})
}

// Logout revokes the given refresh token, or every session of the caller
// when the body names none.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req)
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    if err := h.Auth.Logout(ctx, uid, req.RefreshToken); err != nil {
        return fail(c, err)
    }
    return c.NoContent(http.StatusNoContent)
}

// Me returns the caller's account and capabilities.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, err := getUserID(c)
    if err != nil {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    ctx, cancel := dbCtx(c)
    defer cancel()

    u, err := h.Auth.Me(ctx, uid)
    if err != nil {
        return fail(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "user":         u,
        "capabilities": h.Policy.Capabilities(u.Role),
    })
}
