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

var _ repository.MatchRepository = (*matchRepo)(nil)

const (
	defaultMatchLimit = 100
	maxMatchLimit     = 500
)

// matchRepo stores matches. The prediction id list on a match is not stored;
// it is read back from predictions.match_id, which is authoritative.
type matchRepo struct {
	q querier
}

const matchColumns = `id, home_team, away_team, match_date, status, result_home, result_away, created_at, updated_at`

func scanMatch(row rowScanner) (*model.Match, error) {
	var (
		m          model.Match
		resultHome sql.NullInt64
		resultAway sql.NullInt64
	)
	if err := row.Scan(
		&m.ID,
		&m.HomeTeam,
		&m.AwayTeam,
		&m.MatchDate,
		&m.Status,
		&resultHome,
		&resultAway,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if resultHome.Valid && resultAway.Valid {
		m.Result = &model.Score{Home: int(resultHome.Int64), Away: int(resultAway.Int64)}
	}
	m.Predictions = []string{}
	return &m, nil
}

func resultArgs(result *model.Score) (sql.NullInt64, sql.NullInt64) {
	if result == nil {
		return sql.NullInt64{}, sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(result.Home), Valid: true},
		sql.NullInt64{Int64: int64(result.Away), Valid: true}
}

func (r *matchRepo) Create(ctx context.Context, match *model.Match) error {
	match.ID = xid.New().String()
	match.CreatedAt = now()
	match.UpdatedAt = match.CreatedAt
	match.MatchDate = match.MatchDate.UTC()
	if match.Predictions == nil {
		match.Predictions = []string{}
	}

	home, away := resultArgs(match.Result)
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO matches (`+matchColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		match.ID,
		match.HomeTeam,
		match.AwayTeam,
		match.MatchDate,
		string(match.Status),
		home,
		away,
		match.CreatedAt,
		match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating match: %w", err)
	}
	return nil
}

func (r *matchRepo) GetByID(ctx context.Context, id string) (*model.Match, error) {
	m, err := scanMatch(r.q.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("match", id)
		}
		return nil, fmt.Errorf("sqlite: getting match %s: %w", id, err)
	}

	matches := []model.Match{*m}
	if err := r.loadPredictionIDs(ctx, matches); err != nil {
		return nil, err
	}
	return &matches[0], nil
}

// List returns matches ordered by kick-off, ascending unless opts.Descending.
func (r *matchRepo) List(ctx context.Context, opts repository.MatchListOptions) ([]model.Match, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	if limit > maxMatchLimit {
		limit = maxMatchLimit
	}

	order := "ASC"
	if opts.Descending {
		order = "DESC"
	}

	return r.query(ctx,
		`SELECT `+matchColumns+` FROM matches
		 ORDER BY match_date `+order+`, id `+order+`
		 LIMIT ?`,
		limit,
	)
}

// ListScored returns every finished match that has a result.
func (r *matchRepo) ListScored(ctx context.Context) ([]model.Match, error) {
	return r.query(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE status = ? AND result_home IS NOT NULL AND result_away IS NOT NULL
		 ORDER BY match_date ASC, id ASC`,
		string(model.StatusFinished),
	)
}

func (r *matchRepo) query(ctx context.Context, query string, args ...any) ([]model.Match, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing matches: %w", err)
	}

	matches := []model.Match{}
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning match row: %w", err)
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating matches: %w", err)
	}
	// Close before the next query: the pool has a single connection.
	rows.Close()

	if err := r.loadPredictionIDs(ctx, matches); err != nil {
		return nil, err
	}
	return matches, nil
}

// loadPredictionIDs fills Predictions for every match in one query, in the
// order the predictions were made.
func (r *matchRepo) loadPredictionIDs(ctx context.Context, matches []model.Match) error {
	if len(matches) == 0 {
		return nil
	}

	index := make(map[string]int, len(matches))
	args := make([]any, 0, len(matches))
	for i, m := range matches {
		index[m.ID] = i
		args = append(args, m.ID)
	}

	rows, err := r.q.QueryContext(ctx,
		`SELECT match_id, id FROM predictions
		 WHERE match_id IN (`+placeholders(len(args))+`)
		 ORDER BY created_at ASC, id ASC`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: loading prediction ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var matchID, predictionID string
		if err := rows.Scan(&matchID, &predictionID); err != nil {
			return fmt.Errorf("sqlite: scanning prediction id: %w", err)
		}
		i := index[matchID]
		matches[i].Predictions = append(matches[i].Predictions, predictionID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterating prediction ids: %w", err)
	}
	return nil
}

// Update writes every field except the prediction list.
func (r *matchRepo) Update(ctx context.Context, match *model.Match) error {
	match.UpdatedAt = now()
	match.MatchDate = match.MatchDate.UTC()

	home, away := resultArgs(match.Result)
	result, err := r.q.ExecContext(ctx,
		`UPDATE matches
		 SET home_team = ?, away_team = ?, match_date = ?, status = ?,
		     result_home = ?, result_away = ?, updated_at = ?
		 WHERE id = ?`,
		match.HomeTeam,
		match.AwayTeam,
		match.MatchDate,
		string(match.Status),
		home,
		away,
		match.UpdatedAt,
		match.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating match %s: %w", match.ID, err)
	}
	return requireAffected(result, "match", match.ID)
}

// AppendPrediction only checks that the match exists. The list itself is
// derived from predictions.match_id.
func (r *matchRepo) AppendPrediction(ctx context.Context, matchID, predictionID string) error {
	var exists int
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches WHERE id = ?`, matchID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("sqlite: checking match %s: %w", matchID, err)
	}
	if exists == 0 {
		return apperror.NotFound("match", matchID)
	}
	return nil
}

func (r *matchRepo) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `DELETE FROM matches WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting match %s: %w", id, err)
	}
	return requireAffected(result, "match", id)
}
