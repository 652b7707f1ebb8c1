package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
)

const stepSavePrediction = "save prediction"

type PredictionService struct {
	store  repository.Store
	engine *ScoringEngine
	logger *slog.Logger
}

func NewPredictionService(store repository.Store, engine *ScoringEngine, logger *slog.Logger) *PredictionService {
	return &PredictionService{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// Submit records the user's prediction for a match, or overwrites the one
// they already made. created is false when an existing prediction was
// overwritten.
//
// Predictions are only accepted while the match is upcoming. The check and
// the write run under the match's lock so a prediction cannot slip in while
// the match is being finished and scored.
func (s *PredictionService) Submit(ctx context.Context, userID, matchID string, predicted model.Score) (_ *model.Prediction, created bool, _ error) {
	if err := validateID("matchId", matchID); err != nil {
		return nil, false, err
	}
	if userID == "" {
		return nil, false, apperror.Unauthorized("authentication required")
	}
	if err := validateGoals("homeScore", predicted.Home); err != nil {
		return nil, false, err
	}
	if err := validateGoals("awayScore", predicted.Away); err != nil {
		return nil, false, err
	}

	var (
		pred *model.Prediction
		p    progress
	)
	err := s.engine.withMatch(ctx, matchID, func(ctx context.Context, r repository.Repositories) error {
		created = false

		p.at(stepLoadMatch)
		match, err := r.Matches.GetByID(ctx, matchID)
		if err != nil {
			return err
		}
		if match.Status != model.StatusUpcoming {
			return apperror.ValidationFailed("matchId", "predictions are closed for this match")
		}

		if _, err := r.Users.GetByID(ctx, userID); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return apperror.Unauthorized("user no longer exists")
			}
			return err
		}

		existing, err := r.Predictions.GetByUserAndMatch(ctx, userID, matchID)
		switch {
		case err == nil:
			p.at(stepSavePrediction)
			if err := r.Predictions.UpdatePredicted(ctx, existing.ID, predicted); err != nil {
				return err
			}
			p.wrote()
			existing.Predicted = predicted
			pred = existing
			return nil
		case !errors.Is(err, apperror.ErrNotFound):
			return err
		}

		pred = &model.Prediction{
			UserID:    userID,
			MatchID:   matchID,
			Predicted: predicted,
			Status:    model.PredictionPending,
		}
		p.at(stepSavePrediction)
		if err := r.Predictions.Create(ctx, pred); err != nil {
			return err
		}
		p.wrote()

		p.at(stepSaveMatch)
		if err := r.Matches.AppendPrediction(ctx, matchID, pred.ID); err != nil {
			return err
		}
		p.wrote()

		created = true
		return nil
	})
	if err != nil {
		return nil, false, s.engine.fail("submitting prediction", &p, err)
	}

	s.logger.Info("prediction submitted",
		slog.String("predictionID", pred.ID),
		slog.String("matchID", matchID),
		slog.String("userID", userID),
		slog.Int("home", predicted.Home),
		slog.Int("away", predicted.Away),
		slog.Bool("created", created),
	)
	return pred, created, nil
}

// GetForMatch returns the user's prediction for a match, or nil when they
// have not made one.
func (s *PredictionService) GetForMatch(ctx context.Context, userID, matchID string) (*model.Prediction, error) {
	if err := validateID("matchId", matchID); err != nil {
		return nil, err
	}

	pred, err := s.store.Repos().Predictions.GetByUserAndMatch(ctx, userID, matchID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("service/prediction: fetching prediction: %w", err)
	}
	return pred, nil
}

// ListForUser returns the user's predictions, newest first, each joined with
// its match. Predictions whose match is gone are left out.
func (s *PredictionService) ListForUser(ctx context.Context, userID string) ([]model.PredictionWithMatch, error) {
	repos := s.store.Repos()

	predictions, err := repos.Predictions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/prediction: listing predictions: %w", err)
	}

	matches := make(map[string]*model.Match)
	out := make([]model.PredictionWithMatch, 0, len(predictions))
	for _, pred := range predictions {
		match, seen := matches[pred.MatchID]
		if !seen {
			match, err = repos.Matches.GetByID(ctx, pred.MatchID)
			if err != nil && !errors.Is(err, apperror.ErrNotFound) {
				return nil, fmt.Errorf("service/prediction: fetching match %s: %w", pred.MatchID, err)
			}
			matches[pred.MatchID] = match
		}
		if match == nil {
			s.logger.Warn("prediction refers to missing match",
				slog.String("predictionID", pred.ID),
				slog.String("matchID", pred.MatchID),
			)
			continue
		}
		out = append(out, model.PredictionWithMatch{Prediction: pred, Match: match})
	}
	return out, nil
}
