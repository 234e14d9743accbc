package service

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
)

// SweepReport summarises one lifecycle pass.
type SweepReport struct {
	Activated  int
	Completed  int
	Cached     int
	Failed     int
	OTPsPurged int64
}

// LifecycleSweeper advances elections through draft -> active -> completed
// as their dates pass and snapshots results on completion.
type LifecycleSweeper struct {
	elections *repository.ElectionRepo
	reports   *ReportService
	otps      *OTPManager
	events    queue.Recorder
	interval  time.Duration

	Now func() time.Time
}

func NewLifecycleSweeper(elections *repository.ElectionRepo, reports *ReportService, otps *OTPManager, events queue.Recorder, interval time.Duration) *LifecycleSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LifecycleSweeper{elections: elections, reports: reports, otps: otps, events: events, interval: interval, Now: time.Now}
}

// Start runs a sweep immediately and then once per interval until ctx is
// cancelled.
func (s *LifecycleSweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *LifecycleSweeper) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			rep := s.Sweep(ctx)
			if rep.Activated+rep.Completed+rep.Cached+rep.Failed > 0 {
				log.WithFields(log.Fields{
					"activated": rep.Activated,
					"completed": rep.Completed,
					"cached":    rep.Cached,
					"failed":    rep.Failed,
				}).Info("lifecycle sweep")
			}
			timer.Reset(s.interval)
		}
	}
}

// Sweep performs one pass.  Activation runs before completion so an
// election whose whole window has passed ends the pass completed.  Each
// election is handled on its own; failures are logged and counted.
func (s *LifecycleSweeper) Sweep(ctx context.Context) SweepReport {
	var rep SweepReport
	now := s.Now().UTC()

	due, err := s.elections.ListDueForActivation(ctx, now)
	if err != nil {
		log.WithError(err).Error("lifecycle: list elections due for activation")
		rep.Failed++
	}
	for _, e := range due {
		if err := s.elections.TransitionStatus(ctx, e.ID, model.StatusDraft, model.StatusActive); err != nil {
			if !errors.Is(err, repository.ErrStaleStatus) {
				log.WithError(err).WithField("election_id", e.ID).Error("lifecycle: activate election")
				rep.Failed++
			}
			continue
		}
		rep.Activated++
		s.record(ctx, queue.ActionElectionActivated, e.ID)
	}

	due, err = s.elections.ListDueForCompletion(ctx, now)
	if err != nil {
		log.WithError(err).Error("lifecycle: list elections due for completion")
		rep.Failed++
	}
	snapshotted := make(map[uint64]bool, len(due))
	for _, e := range due {
		if err := s.elections.TransitionStatus(ctx, e.ID, model.StatusActive, model.StatusCompleted); err != nil {
			if !errors.Is(err, repository.ErrStaleStatus) {
				log.WithError(err).WithField("election_id", e.ID).Error("lifecycle: complete election")
				rep.Failed++
			}
			continue
		}
		rep.Completed++
		s.record(ctx, queue.ActionElectionCompleted, e.ID)
		e.Status = model.StatusCompleted
		snapshotted[e.ID] = true
		if _, err := s.reports.Snapshot(ctx, e); err != nil {
			log.WithError(err).WithField("election_id", e.ID).Error("lifecycle: cache results")
			rep.Failed++
			continue
		}
		rep.Cached++
	}

	missing, err := s.elections.ListCompletedWithoutCache(ctx)
	if err != nil {
		log.WithError(err).Error("lifecycle: list completed elections without results")
		rep.Failed++
	}
	for _, e := range missing {
		if snapshotted[e.ID] {
			continue
		}
		if _, err := s.reports.Snapshot(ctx, e); err != nil {
			log.WithError(err).WithField("election_id", e.ID).Error("lifecycle: cache results")
			rep.Failed++
			continue
		}
		rep.Cached++
	}

	if s.otps != nil {
		n, err := s.otps.Purge(ctx)
		if err != nil {
			log.WithError(err).Warn("lifecycle: purge expired otps")
		}
		rep.OTPsPurged = n
	}
	return rep
}

func (s *LifecycleSweeper) record(ctx context.Context, action string, electionID uint64) {
	if s.events != nil {
		s.events.Record(ctx, queue.NewAuditEvent(action, queue.EntityElection, electionID, 0).
			With(map[string]any{"trigger": "schedule"}, ""))
	}
}
