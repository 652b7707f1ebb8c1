package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
)

type LeaderboardService struct {
	store  repository.Store
	engine *ScoringEngine
	logger *slog.Logger
}

func NewLeaderboardService(store repository.Store, engine *ScoringEngine, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// Standings lists every user ranked by points.
func (s *LeaderboardService) Standings(ctx context.Context) ([]model.Standing, error) {
	standings, err := s.store.Repos().Users.Standings(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: loading standings: %w", err)
	}
	return standings, nil
}

// SetPoints overrides a user's total. The new total no longer matches the
// user's predictions until the next recompute.
func (s *LeaderboardService) SetPoints(ctx context.Context, userID string, points int) (*model.User, error) {
	if err := validateID("userId", userID); err != nil {
		return nil, err
	}
	if points < 0 {
		return nil, apperror.ValidationFailed("points", "points must not be negative")
	}

	unlock := s.engine.locks.shared()
	defer unlock()

	users := s.store.Repos().Users
	if err := users.SetPoints(ctx, userID, points); err != nil {
		return nil, fmt.Errorf("service/leaderboard: setting points for %s: %w", userID, err)
	}
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/leaderboard: fetching user %s: %w", userID, err)
	}

	s.logger.Warn("points overridden by admin",
		slog.String("userID", userID),
		slog.Int("points", points),
	)
	return user, nil
}

// Recompute rebuilds every total from the finished matches.
func (s *LeaderboardService) Recompute(ctx context.Context) (*model.RecomputeSummary, error) {
	return s.engine.Recompute(ctx)
}
