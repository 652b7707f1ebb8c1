package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/repository"
)

// Repository tests run against mtest's mock deployment: each call consumes
// the next queued server reply, so no MongoDB server is needed.

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{name: "path names the database", uri: "mongodb://localhost:27017/iddia", want: "iddia"},
		{name: "empty path uses default", uri: "mongodb://localhost:27017", want: defaultDatabase},
		{name: "srv uri", uri: "mongodb+srv://user:pw@cluster.example.net/prod?retryWrites=true", want: "prod"},
		{name: "wrong scheme", uri: "postgres://localhost/db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := databaseName(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestListOptions(t *testing.T) {
	opts := listOptions(repository.MatchListOptions{})
	require.NotNil(t, opts.Limit)
	assert.Equal(t, int64(defaultMatchLimit), *opts.Limit)
	assert.Equal(t, bson.D{{Key: "matchDate", Value: 1}, {Key: "_id", Value: 1}}, opts.Sort)

	opts = listOptions(repository.MatchListOptions{Limit: 10000, Descending: true})
	assert.Equal(t, int64(maxMatchLimit), *opts.Limit)
	assert.Equal(t, bson.D{{Key: "matchDate", Value: -1}, {Key: "_id", Value: -1}}, opts.Sort)
}

func TestScoredFilter(t *testing.T) {
	want := bson.D{
		{Key: "status", Value: "finished"},
		{Key: "result", Value: bson.D{{Key: "$ne", Value: nil}}},
	}
	assert.Equal(t, want, scoredFilter())
}

func TestUserRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get by id decodes document", func(mt *mtest.T) {
		ghID := int64(99)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "matchday.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "u1"},
			{Key: "name", Value: "Ayşe"},
			{Key: "email", Value: "ayse@example.com"},
			{Key: "githubId", Value: ghID},
			{Key: "points", Value: 15},
		}))

		u, err := newUserRepo(mt.Coll).GetByID(context.Background(), "u1")
		require.NoError(mt, err)
		assert.Equal(mt, "Ayşe", u.Name)
		assert.Equal(mt, 15, u.Points)
		require.NotNil(mt, u.GitHubID)
		assert.Equal(mt, ghID, *u.GitHubID)
	})

	mt.Run("get by id not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "matchday.users", mtest.FirstBatch))

		_, err := newUserRepo(mt.Coll).GetByID(context.Background(), "missing")
		assert.ErrorIs(mt, err, apperror.ErrNotFound)
	})

	mt.Run("create duplicate email is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: matchday.users index: email_1",
		}))

		err := newUserRepo(mt.Coll).Create(context.Background(), &model.User{Name: "x", Email: "x@example.com"})
		assert.ErrorIs(mt, err, apperror.ErrConflict)
	})

	mt.Run("add points to unknown user", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 0},
			bson.E{Key: "nModified", Value: 0},
		))

		err := newUserRepo(mt.Coll).AddPoints(context.Background(), "missing", 5)
		assert.ErrorIs(mt, err, apperror.ErrNotFound)
	})

	mt.Run("add points", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := newUserRepo(mt.Coll).AddPoints(context.Background(), "u1", 5)
		assert.NoError(mt, err)
	})
}

func TestMatchRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	kickoff := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

	mt.Run("get by id with result", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "matchday.matches", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "m1"},
			{Key: "homeTeam", Value: "Besiktas"},
			{Key: "awayTeam", Value: "Trabzonspor"},
			{Key: "matchDate", Value: kickoff},
			{Key: "status", Value: "finished"},
			{Key: "result", Value: bson.D{{Key: "homeScore", Value: 2}, {Key: "awayScore", Value: 1}}},
			{Key: "predictions", Value: bson.A{"p1", "p2"}},
		}))

		m, err := newMatchRepo(mt.Coll).GetByID(context.Background(), "m1")
		require.NoError(mt, err)
		assert.Equal(mt, model.StatusFinished, m.Status)
		require.NotNil(mt, m.Result)
		assert.Equal(mt, model.Score{Home: 2, Away: 1}, *m.Result)
		assert.Equal(mt, []string{"p1", "p2"}, m.Predictions)
		assert.True(mt, m.MatchDate.Equal(kickoff))
	})

	mt.Run("missing prediction list decodes as empty", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "matchday.matches", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "m2"},
			{Key: "status", Value: "upcoming"},
			{Key: "result", Value: nil},
		}))

		m, err := newMatchRepo(mt.Coll).GetByID(context.Background(), "m2")
		require.NoError(mt, err)
		assert.Nil(mt, m.Result)
		assert.NotNil(mt, m.Predictions)
		assert.Empty(mt, m.Predictions)
	})

	mt.Run("delete unknown match", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		err := newMatchRepo(mt.Coll).Delete(context.Background(), "missing")
		assert.ErrorIs(mt, err, apperror.ErrNotFound)
	})
}

func TestPredictionRepo(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("delete by match reports count", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 3}))

		n, err := newPredictionRepo(mt.Coll).DeleteByMatch(context.Background(), "m1")
		require.NoError(mt, err)
		assert.Equal(mt, 3, n)
	})

	mt.Run("duplicate prediction is a conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: matchday.predictions index: user_1_match_1",
		}))

		err := newPredictionRepo(mt.Coll).Create(context.Background(), &model.Prediction{UserID: "u1", MatchID: "m1"})
		assert.ErrorIs(mt, err, apperror.ErrConflict)
	})

	mt.Run("list by user decodes documents", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "matchday.predictions", mtest.FirstBatch,
			bson.D{
				{Key: "_id", Value: "p2"},
				{Key: "user", Value: "u1"},
				{Key: "match", Value: "m2"},
				{Key: "prediction", Value: bson.D{{Key: "homeScore", Value: 0}, {Key: "awayScore", Value: 0}}},
				{Key: "status", Value: "pending"},
			},
			bson.D{
				{Key: "_id", Value: "p1"},
				{Key: "user", Value: "u1"},
				{Key: "match", Value: "m1"},
				{Key: "prediction", Value: bson.D{{Key: "homeScore", Value: 3}, {Key: "awayScore", Value: 1}}},
				{Key: "points", Value: 5},
				{Key: "status", Value: "calculated"},
			},
		))

		list, err := newPredictionRepo(mt.Coll).ListByUser(context.Background(), "u1")
		require.NoError(mt, err)
		require.Len(mt, list, 2)
		assert.Equal(mt, "p2", list[0].ID)
		assert.Equal(mt, model.Score{Home: 3, Away: 1}, list[1].Predicted)
		assert.Equal(mt, model.PredictionCalculated, list[1].Status)
		assert.Equal(mt, 5, list[1].Points)
	})
}
