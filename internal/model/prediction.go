package model

import "time"

type PredictionStatus string

const (
	PredictionPending    PredictionStatus = "pending"
	PredictionCalculated PredictionStatus = "calculated"
)

// Prediction is one user's guess at one match's final score. There is at most
// one prediction per (UserID, MatchID).
type Prediction struct {
	ID        string           `json:"id"         bson:"_id"`
	UserID    string           `json:"userId"     bson:"user"`
	MatchID   string           `json:"matchId"    bson:"match"`
	Predicted Score            `json:"prediction" bson:"prediction"`
	Points    int              `json:"points"     bson:"points"`
	Status    PredictionStatus `json:"status"     bson:"status"`
	CreatedAt time.Time        `json:"createdAt"  bson:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"  bson:"updatedAt"`
}

// PredictionWithMatch is a prediction joined with the match it was made for.
type PredictionWithMatch struct {
	Prediction
	Match *Match `json:"match"`
}

// RecomputeSummary describes the outcome of a full points reconciliation.
type RecomputeSummary struct {
	ResetUsers         int        `json:"resetUsers"`
	UpdatedMatches     int        `json:"updatedMatches"`
	ScoredPredictions  int        `json:"scoredPredictions"`
	UpdatedPredictions int        `json:"updatedPredictions"`
	UpdatedUsers       int        `json:"updatedUsers"`
	UserPoints         []Standing `json:"userPoints"`
}
