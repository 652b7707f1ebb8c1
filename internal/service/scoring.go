package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
	"github.com/sakif/matchday/internal/scoring"
)

// Step names reported in logs and partial-failure errors.
const (
	stepLoadMatch         = "load match"
	stepSaveMatch         = "save match"
	stepLoadPredictions   = "load predictions"
	stepScorePrediction   = "score prediction"
	stepResetPrediction   = "reset prediction"
	stepAdjustPoints      = "adjust user points"
	stepDeletePredictions = "delete predictions"
	stepDeleteMatch       = "delete match"
	stepResetUsers        = "reset user points"
	stepResetPredictions  = "reset predictions"
	stepLoadScored        = "load finished matches"
	stepLoadStandings     = "load standings"
)

// ScoringEngine keeps every user's points equal to the sum of the points
// over their calculated predictions.
//
// It owns the three procedures that move points: scoring a match when its
// result is set or changed, reversing a match's contribution when it is
// deleted or reopened, and a full reset-and-recompute that repairs any drift.
// Points always move through atomic increments, each procedure runs as one
// unit of work, and the lock set in locks.go keeps procedures on the same
// match from interleaving.
type ScoringEngine struct {
	store  repository.Store
	locks  *matchLocks
	logger *slog.Logger
}

func NewScoringEngine(store repository.Store, logger *slog.Logger) *ScoringEngine {
	return &ScoringEngine{
		store:  store,
		locks:  newMatchLocks(),
		logger: logger,
	}
}

// DeleteResult describes a match deletion.
type DeleteResult struct {
	AffectedPredictions int `json:"affectedPredictions"`
	ReversedPredictions int `json:"reversedPredictions"`
	ReversedPoints      int `json:"reversedPoints"`
}

// progress records how far a unit of work got, for partial-failure reports.
type progress struct {
	step   string
	writes int
}

func (p *progress) at(step string) { p.step = step }
func (p *progress) wrote() { p.writes++ }

// withMatch runs fn as one unit of work while holding the lock for matchID.
func (e *ScoringEngine) withMatch(ctx context.Context, matchID string, fn func(ctx context.Context, r repository.Repositories) error) error {
	unlock := e.locks.lock(matchID)
	defer unlock()
	return e.store.WithTx(ctx, fn)
}

// fail turns an error from a unit of work into what the caller sees. When the
// store could not roll back and something was already written, the error
// becomes a partial failure naming the step.
func (e *ScoringEngine) fail(op string, p *progress, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && !errors.Is(err, apperror.ErrPartial) && p.writes == 0 {
		return err
	}
	if e.store.Transactional() || p.writes == 0 {
		return fmt.Errorf("%s: %w", op, err)
	}

	e.logger.Error("unit of work stopped after partial writes",
		slog.String("op", op),
		slog.String("step", p.step),
		slog.Int("writes", p.writes),
		slog.String("error", err.Error()),
	)
	return apperror.PartialFailure(p.step, p.writes, err)
}

// addPoints applies delta to the user. A prediction whose owner no longer
// exists is logged and skipped so one orphan cannot block a whole match.
func (e *ScoringEngine) addPoints(ctx context.Context, r repository.Repositories, p *progress, userID string, delta int) error {
	p.at(stepAdjustPoints)
	if err := r.Users.AddPoints(ctx, userID, delta); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			e.logger.Warn("prediction owner missing, points not applied",
				slog.String("userID", userID),
				slog.Int("delta", delta),
			)
			return nil
		}
		return err
	}
	p.wrote()
	return nil
}

// scoreMatch scores every prediction on a finished match. For each
// prediction the owner's total moves by new minus old points, so scoring the
// same result twice changes nothing and a corrected result moves only the
// difference. It returns how many predictions changed.
func (e *ScoringEngine) scoreMatch(ctx context.Context, r repository.Repositories, p *progress, m *model.Match) (int, error) {
	if !m.Scored() {
		return 0, nil
	}

	p.at(stepLoadPredictions)
	predictions, err := r.Predictions.ListByMatch(ctx, m.ID)
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, pred := range predictions {
		points := scoring.Points(pred.Predicted, *m.Result)
		if pred.Status == model.PredictionCalculated && pred.Points == points {
			continue
		}

		p.at(stepScorePrediction)
		if err := r.Predictions.SetResult(ctx, pred.ID, points, model.PredictionCalculated); err != nil {
			return changed, err
		}
		p.wrote()

		if delta := points - pred.Points; delta != 0 {
			if err := e.addPoints(ctx, r, p, pred.UserID, delta); err != nil {
				return changed, err
			}
		}
		changed++

		e.logger.Debug("prediction scored",
			slog.String("matchID", m.ID),
			slog.String("predictionID", pred.ID),
			slog.String("userID", pred.UserID),
			slog.Int("points", points),
			slog.Int("delta", points-pred.Points),
		)
	}

	e.logger.Info("match scored",
		slog.String("matchID", m.ID),
		slog.Int("home", m.Result.Home),
		slog.Int("away", m.Result.Away),
		slog.Int("predictions", len(predictions)),
		slog.Int("changed", changed),
	)
	return changed, nil
}

// unscoreMatch takes back every point the match awarded and returns its
// predictions to pending. It is used when a finished match is reopened.
func (e *ScoringEngine) unscoreMatch(ctx context.Context, r repository.Repositories, p *progress, matchID string) (int, error) {
	p.at(stepLoadPredictions)
	predictions, err := r.Predictions.ListByMatch(ctx, matchID)
	if err != nil {
		return 0, err
	}

	reset := 0
	for _, pred := range predictions {
		if pred.Status == model.PredictionPending && pred.Points == 0 {
			continue
		}

		p.at(stepResetPrediction)
		if err := r.Predictions.SetResult(ctx, pred.ID, 0, model.PredictionPending); err != nil {
			return reset, err
		}
		p.wrote()

		if pred.Points != 0 {
			if err := e.addPoints(ctx, r, p, pred.UserID, -pred.Points); err != nil {
				return reset, err
			}
		}
		reset++
	}

	e.logger.Info("match unscored",
		slog.String("matchID", matchID),
		slog.Int("predictions", reset),
	)
	return reset, nil
}

// DeleteMatch removes a match and its predictions after taking back the
// points those predictions had earned.
func (e *ScoringEngine) DeleteMatch(ctx context.Context, matchID string) (*DeleteResult, error) {
	if err := validateID("id", matchID); err != nil {
		return nil, err
	}

	var (
		res DeleteResult
		p   progress
	)
	err := e.withMatch(ctx, matchID, func(ctx context.Context, r repository.Repositories) error {
		res = DeleteResult{}

		p.at(stepLoadMatch)
		if _, err := r.Matches.GetByID(ctx, matchID); err != nil {
			return err
		}

		p.at(stepLoadPredictions)
		predictions, err := r.Predictions.ListByMatch(ctx, matchID)
		if err != nil {
			return err
		}
		res.AffectedPredictions = len(predictions)

		for _, pred := range predictions {
			if pred.Points == 0 {
				continue
			}
			if err := e.addPoints(ctx, r, &p, pred.UserID, -pred.Points); err != nil {
				return err
			}
			res.ReversedPredictions++
			res.ReversedPoints += pred.Points

			e.logger.Info("points reversed",
				slog.String("matchID", matchID),
				slog.String("userID", pred.UserID),
				slog.Int("points", pred.Points),
			)
		}

		p.at(stepDeletePredictions)
		deleted, err := r.Predictions.DeleteByMatch(ctx, matchID)
		if err != nil {
			return err
		}
		p.wrote()
		if deleted != len(predictions) {
			e.logger.Warn("prediction count changed during deletion",
				slog.String("matchID", matchID),
				slog.Int("listed", len(predictions)),
				slog.Int("deleted", deleted),
			)
		}

		p.at(stepDeleteMatch)
		if err := r.Matches.Delete(ctx, matchID); err != nil {
			return err
		}
		p.wrote()
		return nil
	})
	if err != nil {
		return nil, e.fail("deleting match "+matchID, &p, err)
	}

	e.logger.Info("match deleted",
		slog.String("matchID", matchID),
		slog.Int("affectedPredictions", res.AffectedPredictions),
		slog.Int("reversedPoints", res.ReversedPoints),
	)
	return &res, nil
}

// Recompute zeroes every total, resets every prediction to pending and then
// scores every finished match from scratch. Running it twice in a row gives
// the same result as running it once.
func (e *ScoringEngine) Recompute(ctx context.Context) (*model.RecomputeSummary, error) {
	unlock := e.locks.exclusive()
	defer unlock()

	var (
		summary *model.RecomputeSummary
		p       progress
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, r repository.Repositories) error {
		summary = &model.RecomputeSummary{}

		p.at(stepResetUsers)
		users, err := r.Users.ResetPoints(ctx)
		if err != nil {
			return err
		}
		p.wrote()
		summary.ResetUsers = users

		p.at(stepResetPredictions)
		previouslyAwarded, err := r.Predictions.ResetAll(ctx)
		if err != nil {
			return err
		}
		p.wrote()

		p.at(stepLoadScored)
		matches, err := r.Matches.ListScored(ctx)
		if err != nil {
			return err
		}

		totals := make(map[string]int)
		for _, m := range matches {
			p.at(stepLoadPredictions)
			predictions, err := r.Predictions.ListByMatch(ctx, m.ID)
			if err != nil {
				return err
			}

			for _, pred := range predictions {
				points := scoring.Points(pred.Predicted, *m.Result)

				p.at(stepScorePrediction)
				if err := r.Predictions.SetResult(ctx, pred.ID, points, model.PredictionCalculated); err != nil {
					return err
				}
				p.wrote()

				summary.ScoredPredictions++
				if points > 0 {
					summary.UpdatedPredictions++
					totals[pred.UserID] += points
				}
			}
			summary.UpdatedMatches++
		}

		userIDs := make([]string, 0, len(totals))
		for id := range totals {
			userIDs = append(userIDs, id)
		}
		sort.Strings(userIDs)

		for _, id := range userIDs {
			before := p.writes
			if err := e.addPoints(ctx, r, &p, id, totals[id]); err != nil {
				return err
			}
			if p.writes > before {
				summary.UpdatedUsers++
			}
		}

		p.at(stepLoadStandings)
		standings, err := r.Users.Standings(ctx)
		if err != nil {
			return err
		}
		summary.UserPoints = standings

		e.logger.Debug("predictions reset before recompute", slog.Int("previouslyAwarded", previouslyAwarded))
		return nil
	})
	if err != nil {
		return nil, e.fail("recomputing points", &p, err)
	}

	e.logger.Info("points recomputed",
		slog.Int("resetUsers", summary.ResetUsers),
		slog.Int("updatedMatches", summary.UpdatedMatches),
		slog.Int("scoredPredictions", summary.ScoredPredictions),
		slog.Int("updatedPredictions", summary.UpdatedPredictions),
		slog.Int("updatedUsers", summary.UpdatedUsers),
	)
	return summary, nil
}
