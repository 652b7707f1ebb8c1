// Package mongodb implements the repository interfaces on MongoDB.
//
// Documents are the model structs themselves; their bson tags define the
// collection layout. Ids are xid strings stored in _id, so records keep the
// same ids if they are ever moved between backends.
//
// Multi-document transactions need a replica set. When the store is opened
// without transactions, WithTx runs its function directly and a failure may
// leave earlier writes behind; callers check Transactional to report that.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/repository"
)

const (
	defaultDatabase = "matchday"

	usersCollection       = "users"
	matchesCollection     = "matches"
	predictionsCollection = "predictions"
)

var _ repository.Store = (*Store)(nil)

type Store struct {
	client        *mongo.Client
	db            *mongo.Database
	transactional bool
}

// Connect dials uri, verifies the connection and creates the indexes the
// repositories rely on. The database name is taken from the URI path.
func Connect(ctx context.Context, uri string, transactional bool) (*Store, error) {
	name, err := databaseName(uri)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb: connecting: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongodb: pinging: %w", err)
	}

	s := &Store{client: client, db: client.Database(name), transactional: transactional}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// databaseName extracts the database from a mongodb:// URI, falling back to
// defaultDatabase when the path is empty.
func databaseName(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("mongodb: parsing uri: %w", err)
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return "", fmt.Errorf("mongodb: unsupported uri scheme %q", u.Scheme)
	}
	name := strings.TrimPrefix(u.Path, "/")
	if name == "" {
		name = defaultDatabase
	}
	return name, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "githubId", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "points", Value: -1}}},
		},
		matchesCollection: {
			{Keys: bson.D{{Key: "matchDate", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		predictionsCollection: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "match", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "match", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongodb: creating %s indexes: %w", coll, err)
		}
	}
	return nil
}

func (s *Store) Repos() repository.Repositories {
	return repository.Repositories{
		Users:       newUserRepo(s.db.Collection(usersCollection)),
		Matches:     newMatchRepo(s.db.Collection(matchesCollection)),
		Predictions: newPredictionRepo(s.db.Collection(predictionsCollection)),
	}
}

func (s *Store) Transactional() bool {
	return s.transactional
}

// WithTx runs fn in a multi-document transaction when the store was opened
// with transactions, and directly otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, r repository.Repositories) error) error {
	if !s.transactional {
		return fn(ctx, s.Repos())
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongodb: starting session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s.Repos())
	})
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// notFound maps mongo.ErrNoDocuments to an apperror and wraps anything else.
func notFound(err error, resource, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return apperror.NotFound(resource, id)
	}
	return fmt.Errorf("mongodb: getting %s %s: %w", resource, id, err)
}

func requireMatched(res *mongo.UpdateResult, resource, id string) error {
	if res.MatchedCount == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
