package mongodb

import (
	"context"
	"fmt"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
)

var _ repository.MatchRepository = (*matchRepo)(nil)

const (
	defaultMatchLimit = 100
	maxMatchLimit     = 500
)

type matchRepo struct {
	coll *mongo.Collection
}

func newMatchRepo(coll *mongo.Collection) *matchRepo {
	return &matchRepo{coll: coll}
}

func (r *matchRepo) Create(ctx context.Context, match *model.Match) error {
	match.ID = xid.New().String()
	match.CreatedAt = now()
	match.UpdatedAt = match.CreatedAt
	if match.Predictions == nil {
		match.Predictions = []string{}
	}

	if _, err := r.coll.InsertOne(ctx, match); err != nil {
		return fmt.Errorf("mongodb: inserting match: %w", err)
	}
	return nil
}

func (r *matchRepo) GetByID(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: id}}).Decode(&m); err != nil {
		return nil, notFound(err, "match", id)
	}
	normalizeMatch(&m)
	return &m, nil
}

func (r *matchRepo) List(ctx context.Context, opts repository.MatchListOptions) ([]model.Match, error) {
	return r.find(ctx, bson.D{}, listOptions(opts))
}

// listOptions turns MatchListOptions into a sorted, bounded find.
func listOptions(opts repository.MatchListOptions) *options.FindOptions {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultMatchLimit
	}
	if limit > maxMatchLimit {
		limit = maxMatchLimit
	}

	dir := 1
	if opts.Descending {
		dir = -1
	}

	return options.Find().
		SetSort(bson.D{{Key: "matchDate", Value: dir}, {Key: "_id", Value: dir}}).
		SetLimit(int64(limit))
}

// scoredFilter selects finished matches that carry a result.
func scoredFilter() bson.D {
	return bson.D{
		{Key: "status", Value: string(model.StatusFinished)},
		{Key: "result", Value: bson.D{{Key: "$ne", Value: nil}}},
	}
}

func (r *matchRepo) ListScored(ctx context.Context) ([]model.Match, error) {
	return r.find(ctx, scoredFilter(), options.Find().SetSort(bson.D{{Key: "matchDate", Value: 1}, {Key: "_id", Value: 1}}))
}

func (r *matchRepo) find(ctx context.Context, filter bson.D, opts *options.FindOptions) ([]model.Match, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing matches: %w", err)
	}

	matches := []model.Match{}
	if err := cur.All(ctx, &matches); err != nil {
		return nil, fmt.Errorf("mongodb: decoding matches: %w", err)
	}
	for i := range matches {
		normalizeMatch(&matches[i])
	}
	return matches, nil
}

func normalizeMatch(m *model.Match) {
	if m.Predictions == nil {
		m.Predictions = []string{}
	}
}

// Update writes every field except the prediction list, which only grows
// through AppendPrediction.
func (r *matchRepo) Update(ctx context.Context, match *model.Match) error {
	match.UpdatedAt = now()

	res, err := r.coll.UpdateByID(ctx, match.ID, bson.D{{Key: "$set", Value: bson.D{
		{Key: "homeTeam", Value: match.HomeTeam},
		{Key: "awayTeam", Value: match.AwayTeam},
		{Key: "matchDate", Value: match.MatchDate},
		{Key: "status", Value: string(match.Status)},
		{Key: "result", Value: match.Result},
		{Key: "updatedAt", Value: match.UpdatedAt},
	}}})
	if err != nil {
		return fmt.Errorf("mongodb: updating match %s: %w", match.ID, err)
	}
	return requireMatched(res, "match", match.ID)
}

func (r *matchRepo) AppendPrediction(ctx context.Context, matchID, predictionID string) error {
	res, err := r.coll.UpdateByID(ctx, matchID, bson.D{
		{Key: "$push", Value: bson.D{{Key: "predictions", Value: predictionID}}},
	})
	if err != nil {
		return fmt.Errorf("mongodb: appending prediction to match %s: %w", matchID, err)
	}
	return requireMatched(res, "match", matchID)
}

func (r *matchRepo) Delete(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: id}})
	if err != nil {
		return fmt.Errorf("mongodb: deleting match %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("match", id)
	}
	return nil
}
