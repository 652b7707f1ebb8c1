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

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct {
	coll *mongo.Collection
}

func newUserRepo(coll *mongo.Collection) *userRepo {
	return &userRepo{coll: coll}
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	user.ID = xid.New().String()
	user.CreatedAt = now()
	user.UpdatedAt = user.CreatedAt

	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("mongodb: inserting user: %w", err)
	}
	return nil
}

func (r *userRepo) findOne(ctx context.Context, filter bson.D, id string) (*model.User, error) {
	var u model.User
	if err := r.coll.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "_id", Value: id}}, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "email", Value: email}}, email)
}

func (r *userRepo) GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error) {
	return r.findOne(ctx, bson.D{{Key: "githubId", Value: githubID}}, fmt.Sprintf("github:%d", githubID))
}

// Update writes the profile fields; points are not touched.
func (r *userRepo) Update(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()

	set := bson.D{
		{Key: "name", Value: user.Name},
		{Key: "email", Value: user.Email},
		{Key: "password", Value: user.PasswordHash},
		{Key: "isAdmin", Value: user.IsAdmin},
		{Key: "updatedAt", Value: user.UpdatedAt},
	}
	if user.GitHubID != nil {
		set = append(set, bson.E{Key: "githubId", Value: *user.GitHubID})
	}

	res, err := r.coll.UpdateByID(ctx, user.ID, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("mongodb: updating user %s: %w", user.ID, err)
	}
	return requireMatched(res, "user", user.ID)
}

func (r *userRepo) SetPoints(ctx context.Context, id string, points int) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "points", Value: points},
		{Key: "updatedAt", Value: now()},
	}}})
	if err != nil {
		return fmt.Errorf("mongodb: setting points for user %s: %w", id, err)
	}
	return requireMatched(res, "user", id)
}

// AddPoints uses $inc so concurrent increments compose.
func (r *userRepo) AddPoints(ctx context.Context, id string, delta int) error {
	res, err := r.coll.UpdateByID(ctx, id, bson.D{
		{Key: "$inc", Value: bson.D{{Key: "points", Value: delta}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: now()}}},
	})
	if err != nil {
		return fmt.Errorf("mongodb: adding points for user %s: %w", id, err)
	}
	return requireMatched(res, "user", id)
}

func (r *userRepo) ResetPoints(ctx context.Context) (int, error) {
	res, err := r.coll.UpdateMany(ctx, bson.D{}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "points", Value: 0},
		{Key: "updatedAt", Value: now()},
	}}})
	if err != nil {
		return 0, fmt.Errorf("mongodb: resetting points: %w", err)
	}
	return int(res.MatchedCount), nil
}

func (r *userRepo) Standings(ctx context.Context) ([]model.Standing, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "points", Value: -1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "name", Value: 1}, {Key: "email", Value: 1}, {Key: "points", Value: 1}})

	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongodb: listing standings: %w", err)
	}

	var users []model.User
	if err := cur.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("mongodb: decoding standings: %w", err)
	}

	standings := make([]model.Standing, 0, len(users))
	for _, u := range users {
		standings = append(standings, model.Standing{UserID: u.ID, Name: u.Name, Email: u.Email, Points: u.Points})
	}
	return standings, nil
}
