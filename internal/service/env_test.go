package service

import (
	"database/sql"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/election-voting-portal/internal/config"
	"github.com/iliyamo/election-voting-portal/internal/database"
	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/repository"
	"github.com/iliyamo/election-voting-portal/internal/testutil"
)

var epoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *sql.DB
	clock    *testutil.Clock
	cfg      config.Config
	events   *testutil.MemRecorder
	notifier *testutil.MemNotifier

	users      *repository.UserRepo
	electionsR *repository.ElectionRepo
	candidates *repository.CandidateRepo
	votesR     *repository.VoteRepo
	results    *repository.ResultsRepo

	otps      *OTPManager
	auth      *AuthService
	elections *ElectionService
	votes     *VoteService
	reports   *ReportService
	sweeper   *LifecycleSweeper
}

func testConfig() config.Config {
	return config.Config{
		Env:               "test",
		JWTSecret:         "test-secret",
		AccessTTLMin:      15,
		RefreshTTLDays:    7,
		BcryptCost:        bcrypt.MinCost,
		OTPTTL:            5 * time.Minute,
		LockoutThreshold:  5,
		LockoutDuration:   15 * time.Minute,
		SecondFactorRoles: []model.Role{model.RoleVoter, model.RoleElectionOfficer, model.RoleObserver},
		VoteRequireOTP:    false,
		SweepInterval:     time.Minute,
		ReportLocation:    time.UTC,
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	db := testutil.NewDB(t)
	env := &testEnv{
		db:         db,
		clock:      testutil.NewClock(epoch),
		cfg:        cfg,
		events:     &testutil.MemRecorder{},
		notifier:   &testutil.MemNotifier{},
		users:      repository.NewUserRepo(db),
		electionsR: repository.NewElectionRepo(db),
		candidates: repository.NewCandidateRepo(db),
		votesR:     repository.NewVoteRepo(db),
		results:    repository.NewResultsRepo(db, database.DialectSQLite),
	}
	env.otps = NewOTPManager(repository.NewOTPRepo(db), env.notifier, cfg.OTPTTL, false)
	env.otps.Now = env.clock.Now
	env.auth = NewAuthService(cfg, env.users, repository.NewTokenRepo(db), env.otps, env.events)
	env.auth.Now = env.clock.Now
	env.reports = NewReportService(env.electionsR, env.votesR, env.users, env.results, cfg.ReportLocation)
	env.reports.Now = env.clock.Now
	env.elections = NewElectionService(env.electionsR, env.candidates, env.reports, env.events)
	env.elections.Now = env.clock.Now
	env.votes = NewVoteService(env.users, env.electionsR, env.candidates, env.votesR, env.otps, cfg.VoteRequireOTP, env.events)
	env.votes.Now = env.clock.Now
	env.sweeper = NewLifecycleSweeper(env.electionsR, env.reports, env.otps, env.events, cfg.SweepInterval)
	env.sweeper.Now = env.clock.Now
	return env
}

// activeElection creates an election open around the fake clock with the
// given candidates.
func (e *testEnv) activeElection(t *testing.T, names ...string) (model.Election, []model.Candidate) {
	t.Helper()
	now := e.clock.Now()
	el := testutil.CreateElection(t, e.db, now.Add(-time.Hour), now.Add(time.Hour), model.StatusActive)
	return el, testutil.CreateCandidates(t, e.db, el.ID, names...)
}
