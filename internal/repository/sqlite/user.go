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

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	q querier
}

const userColumns = `id, name, email, password_hash, github_id, is_admin, points, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u        model.User
		githubID sql.NullInt64
	)
	if err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&githubID,
		&u.IsAdmin,
		&u.Points,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if githubID.Valid {
		id := githubID.Int64
		u.GitHubID = &id
	}
	return &u, nil
}

// Create inserts a new user. The caller's struct gets the generated ID and
// timestamps. A taken email or GitHub account yields apperror.ErrConflict.
func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	_, err := r.q.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		githubID,
		user.IsAdmin,
		user.Points,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

func (r *userRepo) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	u, err := scanUser(r.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE github_id = ?`, githubID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", fmt.Sprintf("github:%d", githubID))
		}
		return nil, fmt.Errorf("sqlite: getting user by github id %d: %w", githubID, err)
	}
	return u, nil
}

// Update writes the profile fields. Points are left alone; they only move
// through SetPoints, AddPoints and ResetPoints.
func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()

	var githubID sql.NullInt64
	if user.GitHubID != nil {
		githubID = sql.NullInt64{Int64: *user.GitHubID, Valid: true}
	}

	result, err := r.q.ExecContext(ctx,
		`UPDATE users
		 SET name = ?, email = ?, password_hash = ?, github_id = ?, is_admin = ?, updated_at = ?
		 WHERE id = ?`,
		user.Name,
		user.Email,
		user.PasswordHash,
		githubID,
		user.IsAdmin,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	return requireAffected(result, "user", user.ID)
}

func (r *userRepo) SetPoints(ctx context.Context, id string, points int) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE users SET points = ?, updated_at = ? WHERE id = ?`,
		points, now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting points for user %s: %w", id, err)
	}
	return requireAffected(result, "user", id)
}

// AddPoints applies delta in a single statement so concurrent increments
// never overwrite each other.
func (r *userRepo) AddPoints(ctx context.Context, id string, delta int) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE users SET points = points + ?, updated_at = ? WHERE id = ?`,
		delta, now(), id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: adding points for user %s: %w", id, err)
	}
	return requireAffected(result, "user", id)
}

// ResetPoints zeroes every user's total and returns how many users exist.
func (r *userRepo) ResetPoints(ctx context.Context) (int, error) {
	result, err := r.q.ExecContext(ctx,
		`UPDATE users SET points = 0, updated_at = ?`, now())
	if err != nil {
		return 0, fmt.Errorf("sqlite: resetting points: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	return int(n), nil
}

// Standings lists every user by points, highest first. Ties are broken by
// name so the order is stable.
func (r *userRepo) Standings(ctx context.Context) ([]model.Standing, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, name, email, points FROM users ORDER BY points DESC, name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing standings: %w", err)
	}
	defer rows.Close()

	standings := []model.Standing{}
	for rows.Next() {
		var s model.Standing
		if err := rows.Scan(&s.UserID, &s.Name, &s.Email, &s.Points); err != nil {
			return nil, fmt.Errorf("sqlite: scanning standing row: %w", err)
		}
		standings = append(standings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating standings: %w", err)
	}
	return standings, nil
}

func requireAffected(result sql.Result, resource, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
