package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	valid "github.com/asaskevich/govalidator"
	log "github.com/sirupsen/logrus"

	"github.com/iliyamo/election-voting-portal/internal/model"
	"github.com/iliyamo/election-voting-portal/internal/queue"
	"github.com/iliyamo/election-voting-portal/internal/repository"
)

// Actor identifies who performs an administrative change, for auditing.
type Actor struct {
	UserID uint64
	IP     string
}

// ElectionService manages elections and their candidates.
type ElectionService struct {
	elections  *repository.ElectionRepo
	candidates *repository.CandidateRepo
	reports    *ReportService
	events     queue.Recorder

	Now func() time.Time
}

func NewElectionService(elections *repository.ElectionRepo, candidates *repository.CandidateRepo, reports *ReportService, events queue.Recorder) *ElectionService {
	return &ElectionService{elections: elections, candidates: candidates, reports: reports, events: events, Now: time.Now}
}

// ElectionInput carries the fields of a new election.
type ElectionInput struct {
	Title       string
	Description string
	StartDate   time.Time
	EndDate     time.Time
	IsPublic    *bool
}

// ElectionDetail is an election together with its candidates.
type ElectionDetail struct {
	model.Election
	Candidates []model.Candidate `json:"candidates"`
}

// Create validates in and stores a draft election.
func (s *ElectionService) Create(ctx context.Context, actor Actor, in ElectionInput) (model.Election, error) {
	e := model.Election{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		IsPublic:    true,
	}
	if in.IsPublic != nil {
		e.IsPublic = *in.IsPublic
	}
	if valid.IsNull(e.Title) {
		return model.Election{}, invalid("title", "is required")
	}
	if !valid.StringLength(e.Title, "1", "200") {
		return model.Election{}, invalid("title", "must be at most 200 characters")
	}
	if err := validateSchedule(e.StartDate, e.EndDate); err != nil {
		return model.Election{}, err
	}
	if actor.UserID != 0 {
		id := actor.UserID
		e.CreatedBy = &id
	}
	if err := s.elections.Create(ctx, &e); err != nil {
		return model.Election{}, err
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionElectionCreated, queue.EntityElection, e.ID, actor.UserID).
		With(map[string]any{
			"title":      e.Title,
			"start_date": e.StartDate,
			"end_date":   e.EndDate,
		}, actor.IP))
	return e, nil
}

func validateSchedule(start, end time.Time) error {
	if start.IsZero() {
		return invalid("start_date", "is required")
	}
	if end.IsZero() {
		return invalid("end_date", "is required")
	}
	if !start.Before(end) {
		return invalid("end_date", "must be after start_date")
	}
	return nil
}

// Get returns an election with its candidates.
func (s *ElectionService) Get(ctx context.Context, id uint64) (ElectionDetail, error) {
	e, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return ElectionDetail{}, err
	}
	cands, err := s.candidates.ListByElection(ctx, id)
	if err != nil {
		return ElectionDetail{}, err
	}
	if cands == nil {
		cands = []model.Candidate{}
	}
	return ElectionDetail{Election: e, Candidates: cands}, nil
}

// List returns elections matching f.
func (s *ElectionService) List(ctx context.Context, f repository.ElectionFilter) ([]model.Election, error) {
	return s.elections.List(ctx, f)
}

// Update applies p.  The voting window can only move while the election is
// a draft, and the resulting window must still be valid.
func (s *ElectionService) Update(ctx context.Context, actor Actor, id uint64, p repository.ElectionPatch) (model.Election, error) {
	if p.Empty() {
		return model.Election{}, invalid("", "no fields to update")
	}
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		if valid.IsNull(t) {
			return model.Election{}, invalid("title", "must not be empty")
		}
		if !valid.StringLength(t, "1", "200") {
			return model.Election{}, invalid("title", "must be at most 200 characters")
		}
		p.Title = &t
	}
	cur, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return model.Election{}, err
	}
	if p.TouchesSchedule() {
		if cur.Status != model.StatusDraft {
			return model.Election{}, ErrElectionNotDraft
		}
		start, end := cur.StartDate, cur.EndDate
		if p.StartDate != nil {
			start = *p.StartDate
		}
		if p.EndDate != nil {
			end = *p.EndDate
		}
		if err := validateSchedule(start, end); err != nil {
			return model.Election{}, err
		}
	}
	if err := s.elections.Update(ctx, id, p); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return model.Election{}, ErrElectionNotDraft
		}
		return model.Election{}, err
	}
	updated, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return model.Election{}, err
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionElectionUpdated, queue.EntityElection, id, actor.UserID).
		With(patchChanges(p), actor.IP))
	return updated, nil
}

func patchChanges(p repository.ElectionPatch) map[string]any {
	ch := map[string]any{}
	if p.Title != nil {
		ch["title"] = *p.Title
	}
	if p.Description != nil {
		ch["description"] = *p.Description
	}
	if p.StartDate != nil {
		ch["start_date"] = *p.StartDate
	}
	if p.EndDate != nil {
		ch["end_date"] = *p.EndDate
	}
	if p.IsPublic != nil {
		ch["is_public"] = *p.IsPublic
	}
	return ch
}

// Delete removes a draft election and its candidates.  Elections that have
// started yield repository.ErrConflict.
func (s *ElectionService) Delete(ctx context.Context, actor Actor, id uint64) error {
	if err := s.elections.DeleteDraft(ctx, id); err != nil {
		return err
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionElectionDeleted, queue.EntityElection, id, actor.UserID).With(nil, actor.IP))
	return nil
}

// Transition moves an election one step forward.  The same preconditions as
// the lifecycle sweep apply: activation needs the start date to have been
// reached and completion the end date.  Completing an election writes its
// results cache.
func (s *ElectionService) Transition(ctx context.Context, actor Actor, id uint64, target model.ElectionStatus) (model.Election, error) {
	e, err := s.elections.GetByID(ctx, id)
	if err != nil {
		return model.Election{}, err
	}
	if !e.Status.CanTransitionTo(target) {
		return model.Election{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, target)
	}
	now := s.Now()
	switch target {
	case model.StatusActive:
		if now.Before(e.StartDate) {
			return model.Election{}, fmt.Errorf("%w: voting window opens at %s", ErrInvalidTransition, e.StartDate.Format(time.RFC3339))
		}
	case model.StatusCompleted:
		if now.Before(e.EndDate) {
			return model.Election{}, fmt.Errorf("%w: voting window closes at %s", ErrInvalidTransition, e.EndDate.Format(time.RFC3339))
		}
	}
	if err := s.elections.TransitionStatus(ctx, id, e.Status, target); err != nil {
		if errors.Is(err, repository.ErrStaleStatus) {
			return model.Election{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}
		return model.Election{}, err
	}
	e.Status = target

	action := queue.ActionElectionActivated
	if target == model.StatusCompleted {
		action = queue.ActionElectionCompleted
		if _, err := s.reports.Snapshot(ctx, e); err != nil {
			log.WithError(err).WithField("election_id", id).Warn("results cache write failed; the sweeper will retry")
		}
	}
	s.record(ctx, queue.NewAuditEvent(action, queue.EntityElection, id, actor.UserID).
		With(map[string]any{"trigger": "manual"}, actor.IP))
	return s.elections.GetByID(ctx, id)
}

// CandidateInput carries the fields of a new candidate.
type CandidateInput struct {
	Name      string
	Party     string
	Manifesto string
	PhotoURL  string
}

// AddCandidate adds a candidate to a draft election.
func (s *ElectionService) AddCandidate(ctx context.Context, actor Actor, electionID uint64, in CandidateInput) (model.Candidate, error) {
	c := model.Candidate{
		ElectionID: electionID,
		Name:       strings.TrimSpace(in.Name),
		Party:      strings.TrimSpace(in.Party),
		Manifesto:  strings.TrimSpace(in.Manifesto),
		PhotoURL:   strings.TrimSpace(in.PhotoURL),
	}
	if valid.IsNull(c.Name) {
		return model.Candidate{}, invalid("name", "is required")
	}
	if err := validateCandidate(c.Name, c.PhotoURL); err != nil {
		return model.Candidate{}, err
	}
	if err := s.requireDraft(ctx, electionID); err != nil {
		return model.Candidate{}, err
	}
	if err := s.candidates.Create(ctx, &c); err != nil {
		return model.Candidate{}, draftWriteErr(err)
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionCandidateCreated, queue.EntityCandidate, c.ID, actor.UserID).
		With(map[string]any{"election_id": electionID, "name": c.Name}, actor.IP))
	return c, nil
}

// UpdateCandidate edits a candidate of a draft election.
func (s *ElectionService) UpdateCandidate(ctx context.Context, actor Actor, id uint64, p repository.CandidatePatch) (model.Candidate, error) {
	if p.Name != nil {
		n := strings.TrimSpace(*p.Name)
		if valid.IsNull(n) {
			return model.Candidate{}, invalid("name", "must not be empty")
		}
		p.Name = &n
	}
	if p.PhotoURL != nil {
		u := strings.TrimSpace(*p.PhotoURL)
		p.PhotoURL = &u
	}
	if err := validateCandidate(deref(p.Name), deref(p.PhotoURL)); err != nil {
		return model.Candidate{}, err
	}
	c, err := s.candidates.GetByID(ctx, id)
	if err != nil {
		return model.Candidate{}, err
	}
	if err := s.requireDraft(ctx, c.ElectionID); err != nil {
		return model.Candidate{}, err
	}
	if err := s.candidates.Update(ctx, id, p); err != nil {
		if errors.Is(err, repository.ErrNoChange) {
			return model.Candidate{}, invalid("", "no fields to update")
		}
		return model.Candidate{}, draftWriteErr(err)
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionCandidateUpdated, queue.EntityCandidate, id, actor.UserID).
		With(map[string]any{"election_id": c.ElectionID}, actor.IP))
	return s.candidates.GetByID(ctx, id)
}

// DeleteCandidate removes a candidate from a draft election.
func (s *ElectionService) DeleteCandidate(ctx context.Context, actor Actor, id uint64) error {
	c, err := s.candidates.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.requireDraft(ctx, c.ElectionID); err != nil {
		return err
	}
	if err := s.candidates.Delete(ctx, id); err != nil {
		return draftWriteErr(err)
	}
	s.record(ctx, queue.NewAuditEvent(queue.ActionCandidateDeleted, queue.EntityCandidate, id, actor.UserID).
		With(map[string]any{"election_id": c.ElectionID, "name": c.Name}, actor.IP))
	return nil
}

func (s *ElectionService) requireDraft(ctx context.Context, electionID uint64) error {
	e, err := s.elections.GetByID(ctx, electionID)
	if err != nil {
		return err
	}
	if e.Status != model.StatusDraft {
		return ErrElectionNotDraft
	}
	return nil
}

// validateCandidate checks optional candidate fields; empty values pass.
func validateCandidate(name, photoURL string) error {
	if !valid.IsNull(name) && !valid.StringLength(name, "1", "160") {
		return invalid("name", "must be at most 160 characters")
	}
	if !valid.IsNull(photoURL) && (!valid.IsURL(photoURL) || !valid.StringLength(photoURL, "1", "512")) {
		return invalid("photo_url", "must be a valid URL")
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// draftWriteErr maps a candidate write that lost a race with activation.
func draftWriteErr(err error) error {
	if errors.Is(err, repository.ErrStaleStatus) {
		return ErrElectionNotDraft
	}
	return err
}

func (s *ElectionService) record(ctx context.Context, ev queue.AuditEvent) {
	if s.events != nil {
		s.events.Record(ctx, ev)
	}
}
