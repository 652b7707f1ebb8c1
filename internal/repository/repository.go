package repository

import (
	"context"

	"github.com/sakif/matchday/internal/model"
)

type MatchListOptions struct {
	Limit      int
	Descending bool
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	SetPoints(ctx context.Context, id string, points int) error
	AddPoints(ctx context.Context, id string, delta int) error
	ResetPoints(ctx context.Context) (int, error)
	Standings(ctx context.Context) ([]model.Standing, error)
}

type MatchRepository interface {
	Create(ctx context.Context, match *model.Match) error
	GetByID(ctx context.Context, id string) (*model.Match, error)
	List(ctx context.Context, opts MatchListOptions) ([]model.Match, error)
	ListScored(ctx context.Context) ([]model.Match, error)
	Update(ctx context.Context, match *model.Match) error
	AppendPrediction(ctx context.Context, matchID, predictionID string) error
	Delete(ctx context.Context, id string) error
}

type PredictionRepository interface {
	Create(ctx context.Context, prediction *model.Prediction) error
	GetByUserAndMatch(ctx context.Context, userID, matchID string) (*model.Prediction, error)
	UpdatePredicted(ctx context.Context, id string, predicted model.Score) error
	SetResult(ctx context.Context, id string, points int, status model.PredictionStatus) error
	ListByMatch(ctx context.Context, matchID string) ([]model.Prediction, error)
	ListByUser(ctx context.Context, userID string) ([]model.Prediction, error)
	ResetAll(ctx context.Context) (int, error)
	DeleteByMatch(ctx context.Context, matchID string) (int, error)
}

// Repositories groups the repositories that share one connection or session.
type Repositories struct {
	Users       UserRepository
	Matches     MatchRepository
	Predictions PredictionRepository
}

// Store is a storage backend.
//
// WithTx runs fn as one unit of work. Repositories passed to fn must be used
// instead of Repos() for the duration of fn. Transactional reports whether
// the unit of work is atomic; when it is not, a failure inside fn may leave
// earlier writes in place.
type Store interface {
	Repos() Repositories
	WithTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error
	Transactional() bool
	Ping(ctx context.Context) error
	Close() error
}
