package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
)

var _ repository.PredictionRepository = (*predictionRepo)(nil)

type predictionRepo struct {
	q querier
}

const predictionColumns = `id, user_id, match_id, predicted_home, predicted_away, points, status, created_at, updated_at`

func scanPrediction(row rowScanner) (*model.Prediction, error) {
	var p model.Prediction
	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.MatchID,
		&p.Predicted.Home,
		&p.Predicted.Away,
		&p.Points,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a prediction. A second prediction for the same user and
// match yields apperror.ErrConflict.
func (r *predictionRepo) Create(ctx context.Context, p *model.Prediction) error {
	p.ID = xid.New().String()
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = model.PredictionPending
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO predictions (`+predictionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.UserID,
		p.MatchID,
		p.Predicted.Home,
		p.Predicted.Away,
		p.Points,
		string(p.Status),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("prediction", p.UserID+"/"+p.MatchID)
		}
		return fmt.Errorf("sqlite: creating prediction: %w", err)
	}
	return nil
}

func (r *predictionRepo) GetByUserAndMatch(ctx context.Context, userID, matchID string) (*model.Prediction, error) {
	p, err := scanPrediction(r.q.QueryRowContext(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE user_id = ? AND match_id = ?`,
		userID, matchID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("prediction", userID+"/"+matchID)
		}
		return nil, fmt.Errorf("sqlite: getting prediction: %w", err)
	}
	return p, nil
}

// UpdatePredicted overwrites the predicted score and leaves points and
// status as they are.
func (r *predictionRepo) UpdatePredicted(ctx context.Context, id string, predicted model.Score) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE predictions SET predicted_home = ?, predicted_away = ?, updated_at = ? WHERE id = ?`,
		predicted.Home, predicted.Away, now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating prediction %s: %w", id, err)
	}
	return requireAffected(result, "prediction", id)
}

func (r *predictionRepo) SetResult(ctx context.Context, id string, points int, status model.PredictionStatus) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE predictions SET points = ?, status = ?, updated_at = ? WHERE id = ?`,
		points, string(status), now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting result on prediction %s: %w", id, err)
	}
	return requireAffected(result, "prediction", id)
}

func (r *predictionRepo) ListByMatch(ctx context.Context, matchID string) ([]model.Prediction, error) {
	return r.query(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE match_id = ? ORDER BY created_at ASC, id ASC`,
		matchID)
}

// ListByUser returns the user's predictions, newest first.
func (r *predictionRepo) ListByUser(ctx context.Context, userID string) ([]model.Prediction, error) {
	return r.query(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE user_id = ? ORDER BY created_at DESC, id DESC`,
		userID)
}

func (r *predictionRepo) query(ctx context.Context, query string, args ...any) ([]model.Prediction, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing predictions: %w", err)
	}
	defer rows.Close()

	predictions := []model.Prediction{}
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning prediction row: %w", err)
		}
		predictions = append(predictions, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating predictions: %w", err)
	}
	return predictions, nil
}

// ResetAll puts every prediction back to pending with zero points and returns
// how many predictions had points before the reset.
func (r *predictionRepo) ResetAll(ctx context.Context) (int, error) {
	var awarded int
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM predictions WHERE points > 0`).Scan(&awarded); err != nil {
		return 0, fmt.Errorf("sqlite: counting awarded predictions: %w", err)
	}

	if _, err := r.q.ExecContext(ctx,
		`UPDATE predictions SET points = 0, status = ?, updated_at = ?`,
		string(model.PredictionPending), now(),
	); err != nil {
		return 0, fmt.Errorf("sqlite: resetting predictions: %w", err)
	}
	return awarded, nil
}

func (r *predictionRepo) DeleteByMatch(ctx context.Context, matchID string) (int, error) {
	result, err := r.q.ExecContext(ctx, `DELETE FROM predictions WHERE match_id = ?`, matchID)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting predictions for match %s: %w", matchID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return int(n), nil
}
