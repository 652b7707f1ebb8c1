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

var _ repository.PredictionRepository = (*predictionRepo)(nil)

type predictionRepo struct {
	coll *mongo.Collection
}

func newPredictionRepo(coll *mongo.Collection) *predictionRepo {
	return &predictionRepo{coll: coll}
}

func (r *predictionRepo) Create(ctx context.Context, p *model.Prediction) error {
	p.ID = xid.New().String()
	p.CreatedAt = now()
	p.UpdatedAt = p.CreatedAt
	if p.Status == "" {
		p.Status = model.PredictionPending
	}

	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("prediction", p.UserID+"/"+p.MatchID)
		}
		return fmt.Errorf("mongodb: inserting prediction: %w", err)
	}
	return nil
}

func (r *predictionRepo) GetByUserAndMatch(ctx context.Context, userID, matchID string) (*model.Prediction, error) {
	var p model.Prediction
	err := r.coll.FindOne(ctx, bson.D{
		{Key: "user", Value: userID},
		{Key: "match", Value: matchID},
	}).Decode(&p)
	if err != nil {
		return nil, notFound(err, "prediction", userID+"/"+matchID)
	}
	return &p, nil
}

func (r *predictionRepo) UpdatePredicted(ctx context.Context, id string, predicted model.Score) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "prediction", Value: predicted},
		{Key: "updatedAt", Value: now()},
	}}})
	if err != nil {
		return fmt.Errorf("mongodb: updating prediction %s: %w", id, err)
	}
	return requireMatched(res, "prediction", id)
}

func (r *predictionRepo) SetResult(ctx context.Context, id string, points int, status model.PredictionStatus) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "points", Value: points},
		{Key: "status", Value: string(status)},
		{Key: "updatedAt", Value: now()},
	}}})
	if err != nil {
		return fmt.Errorf("mongodb: setting result on prediction %s: %w", id, err)
	}
	return requireMatched(res, "prediction", id)
}

func (r *predictionRepo) ListByMatch(ctx context.Context, matchID string) ([]model.Prediction, error) {
	return r.find(ctx, bson.D{{Key: "match", Value: matchID}}, 1)
}

func (r *predictionRepo) ListByUser(ctx context.Context, userID string) ([]model.Prediction, error) {
	return r.find(ctx, bson.D{{Key: "user", Value: userID}}, -1)
}

func (r *predictionRepo) find(ctx context.Context, filter bson.D, dir int) ([]model.Prediction, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: dir}, {Key: "_id", Value: dir}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing predictions: %w", err)
	}

	predictions := []model.Prediction{}
	if err := cur.All(ctx, &predictions); err != nil {
		return nil, fmt.Errorf("mongodb: decoding predictions: %w", err)
	}
	return predictions, nil
}

// ResetAll returns the number of predictions that held points before the
// reset.
func (r *predictionRepo) ResetAll(ctx context.Context) (int, error) {
	awarded, err := r.coll.CountDocuments(ctx, bson.D{{Key: "points", Value: bson.D{{Key: "$gt", Value: 0}}}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: counting awarded predictions: %w", err)
	}

	if _, err := r.coll.UpdateMany(ctx, bson.D{}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "points", Value: 0},
		{Key: "status", Value: string(model.PredictionPending)},
		{Key: "updatedAt", Value: now()},
	}}}); err != nil {
		return 0, fmt.Errorf("mongodb: resetting predictions: %w", err)
	}
	return int(awarded), nil
}

func (r *predictionRepo) DeleteByMatch(ctx context.Context, matchID string) (int, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "match", Value: matchID}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: deleting predictions for match %s: %w", matchID, err)
	}
	return int(res.DeletedCount), nil
}
