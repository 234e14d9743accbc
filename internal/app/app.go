// Package app assembles repositories, services, handlers and routes into a
// ready-to-serve echo instance.
package app

import (
	"database/sql"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/election-voting-portal/internal/access"
	"github.com/iliyamo/election-voting-portal/internal/config"
	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/handler"
	"github.com/iliyamo/election-voting-portal/internal/middleware"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/router"
	"github.com/iliyamo/election-voting-portal/internal/service"
)

// Options are the external dependencies of the portal.
type Options struct {
	Config  config.Config
	DB      *sql.DB
	Dialect database.Dialect

	Events   queue.Recorder
	Notifier queue.Notifier

	Redis     *redis.Client // nil disables rate limiting and response caching
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig

	Now func() time.Time // clock for every service; time.Now when nil
}

// App is the assembled portal.
type App struct {
	Echo      *echo.Echo
	Policy    *access.Policy
	Auth      *service.AuthService
	Elections *service.ElectionService
	Votes     *service.VoteService
	Reports   *service.ReportService
	Users     *service.UserService
	OTPs      *service.OTPManager
	Sweeper   *service.LifecycleSweeper
}

// New wires every layer over opts.
func New(opts Options) *App {
	cfg := opts.Config
	db := opts.DB

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	elections := repository.NewElectionRepo(db)
	candidates := repository.NewCandidateRepo(db)
	votes := repository.NewVoteRepo(db)
	results := repository.NewResultsRepo(db, opts.Dialect)
	audit := repository.NewAuditRepo(db)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = defaultNotifier(cfg)
	}
	events := opts.Events
	if events == nil {
		events = queue.NewInlineRecorder(audit)
	}

	a := &App{Policy: access.NewPolicy()}
	a.OTPs = service.NewOTPManager(repository.NewOTPRepo(db), notifier, cfg.OTPTTL, cfg.OTPEchoInResponse)
	a.Auth = service.NewAuthService(cfg, users, tokens, a.OTPs, events)
	a.Reports = service.NewReportService(elections, votes, users, results, cfg.ReportLocation)
	a.Elections = service.NewElectionService(elections, candidates, a.Reports, events)
	a.Votes = service.NewVoteService(users, elections, candidates, votes, a.OTPs, cfg.VoteRequireOTP, events)
	a.Users = service.NewUserService(users, audit, events)
	a.Sweeper = service.NewLifecycleSweeper(elections, a.Reports, a.OTPs, events, cfg.SweepInterval)

	if opts.Now != nil {
		a.OTPs.Now = opts.Now
		a.Auth.Now = opts.Now
		a.Reports.Now = opts.Now
		a.Elections.Now = opts.Now
		a.Votes.Now = opts.Now
		a.Sweeper.Now = opts.Now
	}

	e := echo.New()
	router.Setup(e, cfg.RequestTimeout, cfg.IsDev())
	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(a.Auth, a.Policy), cfg.JWTSecret,
		middleware.NewTokenBucket(opts.RateLimit, opts.Redis))
	router.RegisterAdmin(e, handler.NewElectionHandler(a.Elections), handler.NewUserHandler(a.Users, a.Reports), a.Policy, cfg.JWTSecret)
	router.RegisterVoter(e, handler.NewVoterHandler(a.Votes, a.Reports), a.Policy, cfg.JWTSecret,
		middleware.NewRedisCache(opts.Cache, opts.Redis))
	router.RegisterReports(e, handler.NewReportHandler(a.Reports), a.Policy, cfg.JWTSecret)
	a.Echo = e
	return a
}

// defaultNotifier logs OTP deliveries when no broker is configured.  Codes
// appear in the log only when OTP echo is explicitly enabled.
func defaultNotifier(cfg config.Config) queue.Notifier {
	return queue.LogNotifier{IncludeCode: cfg.OTPEchoInResponse}
}
