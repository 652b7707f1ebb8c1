// Package service contains the business logic layer of the application.
//
// THE LAYERS:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, orchestrates
//	Repository (Data layer)  → reads/writes to SQLite or MongoDB
//
// Services take a repository.Store (interface), never a concrete backend, so
// the same rules run against SQLite in tests and MongoDB in production.
//
// MUTATIONS THAT MOVE POINTS:
// Any change that can alter a user's points total (setting or correcting a
// result, reopening a match, deleting a match, submitting a prediction while a
// match is being scored) goes through the ScoringEngine, which holds the
// per-match lock and runs the change as one unit of work.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
)

// MatchInput is the payload for creating a match.
type MatchInput struct {
	HomeTeam  string
	AwayTeam  string
	MatchDate time.Time
	Status    model.MatchStatus
}

// MatchUpdate is a partial update. Nil fields are left unchanged.
// ClearResult removes an existing result; it cannot be combined with Result.
type MatchUpdate struct {
	HomeTeam    *string
	AwayTeam    *string
	MatchDate   *time.Time
	Status      *model.MatchStatus
	Result      *model.Score
	ClearResult bool
}

type MatchService struct {
	store  repository.Store
	engine *ScoringEngine
	logger *slog.Logger
}

func NewMatchService(store repository.Store, engine *ScoringEngine, logger *slog.Logger) *MatchService {
	return &MatchService{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// List returns matches in kickoff order, soonest first.
func (s *MatchService) List(ctx context.Context, limit int) ([]model.Match, error) {
	matches, err := s.store.Repos().Matches.List(ctx, repository.MatchListOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("service/match: listing matches: %w", err)
	}
	return matches, nil
}

// ListAdmin returns matches latest first, the order the admin screens use.
func (s *MatchService) ListAdmin(ctx context.Context, limit int) ([]model.Match, error) {
	matches, err := s.store.Repos().Matches.List(ctx, repository.MatchListOptions{Limit: limit, Descending: true})
	if err != nil {
		return nil, fmt.Errorf("service/match: listing matches: %w", err)
	}
	return matches, nil
}

func (s *MatchService) GetByID(ctx context.Context, id string) (*model.Match, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	match, err := s.store.Repos().Matches.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/match: fetching match %s: %w", id, err)
	}
	return match, nil
}

// Create adds a fixture. New matches cannot start out finished because a
// finished match needs a result, which is only set through Update.
func (s *MatchService) Create(ctx context.Context, in MatchInput) (*model.Match, error) {
	home, err := validateTeam("homeTeam", in.HomeTeam)
	if err != nil {
		return nil, err
	}
	away, err := validateTeam("awayTeam", in.AwayTeam)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(home, away) {
		return nil, apperror.ValidationFailed("awayTeam", "home and away teams must differ")
	}
	if in.MatchDate.IsZero() {
		return nil, apperror.ValidationFailed("matchDate", "matchDate is required")
	}

	status := in.Status
	if status == "" {
		status = model.StatusUpcoming
	}
	if !status.Valid() {
		return nil, apperror.ValidationFailed("status", "status must be upcoming, live or finished")
	}
	if status == model.StatusFinished {
		return nil, apperror.ValidationFailed("status", "a new match cannot be finished; set the result with an update")
	}

	match := &model.Match{
		HomeTeam:  home,
		AwayTeam:  away,
		MatchDate: in.MatchDate,
		Status:    status,
	}
	if err := s.store.Repos().Matches.Create(ctx, match); err != nil {
		return nil, fmt.Errorf("service/match: creating match: %w", err)
	}

	s.logger.Info("match created",
		slog.String("matchID", match.ID),
		slog.String("homeTeam", match.HomeTeam),
		slog.String("awayTeam", match.AwayTeam),
	)
	return match, nil
}

// Update applies a partial update and keeps points consistent with it.
//
// A result may only be present on a finished match, so finishing a match
// requires a result (new or already stored) and moving a match out of
// finished drops its result. After the write:
//   - a match that became finished, or whose result changed, is scored
//   - a match that left finished has its awarded points taken back
//
// The write and the scoring happen in the same unit of work under the
// match's lock.
func (s *MatchService) Update(ctx context.Context, id string, upd MatchUpdate) (*model.Match, error) {
	if err := validateID("id", id); err != nil {
		return nil, err
	}
	if err := validateMatchUpdate(upd); err != nil {
		return nil, err
	}

	var (
		updated *model.Match
		p       progress
	)
	err := s.engine.withMatch(ctx, id, func(ctx context.Context, r repository.Repositories) error {
		p.at(stepLoadMatch)
		current, err := r.Matches.GetByID(ctx, id)
		if err != nil {
			return err
		}

		next, err := applyMatchUpdate(*current, upd)
		if err != nil {
			return err
		}

		p.at(stepSaveMatch)
		if err := r.Matches.Update(ctx, &next); err != nil {
			return err
		}
		p.wrote()

		switch {
		case needsScoring(current, &next):
			if _, err := s.engine.scoreMatch(ctx, r, &p, &next); err != nil {
				return err
			}
		case current.Status == model.StatusFinished && next.Status != model.StatusFinished:
			if _, err := s.engine.unscoreMatch(ctx, r, &p, next.ID); err != nil {
				return err
			}
		}

		updated = &next
		return nil
	})
	if err != nil {
		return nil, s.engine.fail("updating match "+id, &p, err)
	}

	s.logger.Info("match updated",
		slog.String("matchID", updated.ID),
		slog.String("status", string(updated.Status)),
	)
	return updated, nil
}

// Delete removes a match, reversing the points its predictions earned.
func (s *MatchService) Delete(ctx context.Context, id string) (*DeleteResult, error) {
	return s.engine.DeleteMatch(ctx, id)
}

func validateTeam(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperror.ValidationFailed(field, field+" is required")
	}
	if len(name) > MaxTeamNameLength {
		return "", apperror.ValidationFailed(field, fmt.Sprintf("%s must be at most %d characters", field, MaxTeamNameLength))
	}
	return name, nil
}

func validateMatchUpdate(upd MatchUpdate) error {
	if upd.Result != nil && upd.ClearResult {
		return apperror.ValidationFailed("result", "result and clearResult cannot be combined")
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return apperror.ValidationFailed("status", "status must be upcoming, live or finished")
	}
	if upd.Result != nil {
		if err := validateGoals("result.homeScore", upd.Result.Home); err != nil {
			return err
		}
		if err := validateGoals("result.awayScore", upd.Result.Away); err != nil {
			return err
		}
	}
	if upd.MatchDate != nil && upd.MatchDate.IsZero() {
		return apperror.ValidationFailed("matchDate", "matchDate must not be empty")
	}
	return nil
}

// applyMatchUpdate returns m with upd applied, enforcing that a result is
// present exactly when the match is finished.
func applyMatchUpdate(m model.Match, upd MatchUpdate) (model.Match, error) {
	if upd.HomeTeam != nil {
		home, err := validateTeam("homeTeam", *upd.HomeTeam)
		if err != nil {
			return m, err
		}
		m.HomeTeam = home
	}
	if upd.AwayTeam != nil {
		away, err := validateTeam("awayTeam", *upd.AwayTeam)
		if err != nil {
			return m, err
		}
		m.AwayTeam = away
	}
	if strings.EqualFold(m.HomeTeam, m.AwayTeam) {
		return m, apperror.ValidationFailed("awayTeam", "home and away teams must differ")
	}
	if upd.MatchDate != nil {
		m.MatchDate = *upd.MatchDate
	}

	if upd.Result != nil {
		result := *upd.Result
		m.Result = &result
		if upd.Status == nil {
			m.Status = model.StatusFinished
		}
	}
	if upd.ClearResult {
		m.Result = nil
	}

	if upd.Status != nil {
		m.Status = *upd.Status
		if m.Status != model.StatusFinished && upd.Result == nil {
			m.Result = nil
		}
	}

	switch {
	case m.Status == model.StatusFinished && m.Result == nil:
		return m, apperror.ValidationFailed("result", "a finished match needs a result")
	case m.Status != model.StatusFinished && m.Result != nil:
		return m, apperror.ValidationFailed("status", "only a finished match can have a result")
	}
	return m, nil
}

// needsScoring reports whether moving from prev to next changes what the
// match's predictions are worth.
func needsScoring(prev, next *model.Match) bool {
	if !next.Scored() {
		return false
	}
	if !prev.Scored() {
		return true
	}
	return *prev.Result != *next.Result
}
