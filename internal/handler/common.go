package handler // handler defines http handlers

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    log "github.com/sirupsen/logrus"

    "github.com/iliyamo/election-voting-portal/internal/repository"
    "github.com/iliyamo/election-voting-portal/internal/service"
)

const (
    dbTimeout       = 5 * time.Second
    defaultPageSize = 20
    maxPageSize     = 100
)

// dbCtx bounds the database work of one request.
func dbCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// getUserID extracts the user_id set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
    switch t := c.Get("user_id").(type) {
    case uint64:
        return t, nil
    case int64:
        return uint64(t), nil
    case string:
        if n, err := strconv.ParseUint(t, 10, 64); err == nil {
            return n, nil
        }
    }
    return 0, errors.New("invalid user_id in context")
}

// actor describes the caller for audit purposes.
func actor(c echo.Context) service.Actor {
    uid, _ := getUserID(c)
    return service.Actor{UserID: uid, IP: c.RealIP()}
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param(name), 10, 64)
    return id, err == nil && id > 0
}

// queryID parses an optional numeric query parameter; absent means 0.
func queryID(c echo.Context, name string) (uint64, bool) {
    raw := c.QueryParam(name)
    if raw == "" {
        return 0, true
    }
    id, err := strconv.ParseUint(raw, 10, 64)
    return id, err == nil
}

// page reads ?page=&page_size= and returns limit and offset.
func page(c echo.Context) (limit, offset uint64) {
    p, err := strconv.ParseUint(c.QueryParam("page"), 10, 64)
    if err != nil || p == 0 {
        p = 1
    }
    size, err := strconv.ParseUint(c.QueryParam("page_size"), 10, 64)
    if err != nil || size == 0 {
        size = defaultPageSize
    }
    if size > maxPageSize {
        size = maxPageSize
    }
    return size, (p - 1) * size
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// statusFor maps domain and persistence errors to HTTP status codes.
func statusFor(err error) int {
    switch {
    case service.IsValidation(err),
        errors.Is(err, service.ErrInvalidOTP),
        errors.Is(err, service.ErrCandidateNotInElection),
        errors.Is(err, repository.ErrNoChange):
        return http.StatusBadRequest
    case errors.Is(err, service.ErrInvalidCredentials),
        errors.Is(err, service.ErrInvalidRefreshToken):
        return http.StatusUnauthorized
    case errors.Is(err, service.ErrEmailNotVerified),
        errors.Is(err, service.ErrVoterNotVerified):
        return http.StatusForbidden
    case errors.Is(err, service.ErrAccountLocked):
        return http.StatusTooManyRequests
    case errors.Is(err, repository.ErrUserNotFound),
        errors.Is(err, repository.ErrElectionNotFound),
        errors.Is(err, repository.ErrCandidateNotFound),
        errors.Is(err, service.ErrVoterNotFound):
        return http.StatusNotFound
    case errors.Is(err, repository.ErrEmailExists),
        errors.Is(err, repository.ErrDuplicateCandidate),
        errors.Is(err, repository.ErrDuplicateVote),
        errors.Is(err, repository.ErrConflict),
        errors.Is(err, service.ErrAlreadyVoted),
        errors.Is(err, service.ErrAlreadyVerified):
        return http.StatusConflict
    case errors.Is(err, service.ErrElectionNotActive),
        errors.Is(err, service.ErrOutsideVotingWindow),
        errors.Is(err, service.ErrInvalidTransition),
        errors.Is(err, service.ErrElectionNotDraft),
        errors.Is(err, service.ErrResultsNotAvailable),
        errors.Is(err, service.ErrSelfModification):
        return http.StatusUnprocessableEntity
    }
    return http.StatusInternalServerError
}

// fail writes err as a JSON error.  Unexpected errors are logged and
// answered with a generic message; the detail is only exposed when the echo
// instance runs in debug mode.
func fail(c echo.Context, err error) error {
    status := statusFor(err)
    if status != http.StatusInternalServerError {
        body := echo.Map{"error": err.Error()}
        var ve *service.ValidationError
        if errors.As(err, &ve) {
            body["field"] = ve.Field
        }
        return c.JSON(status, body)
    }

    log.WithError(err).WithFields(log.Fields{
        "request_id": c.Get("request_id"),
        "path":       c.Request().URL.Path,
    }).Error("request failed")
    if errors.Is(err, context.DeadlineExceeded) {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "request timed out"})
    }
    body := echo.Map{"error": "internal error"}
    if c.Echo().Debug {
        body["detail"] = err.Error()
    }
    return c.JSON(status, body)
}
