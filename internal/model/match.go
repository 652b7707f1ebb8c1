package model

import "time"

// MatchStatus is the lifecycle state of a fixture.
type MatchStatus string

const (
	StatusUpcoming MatchStatus = "upcoming"
	StatusLive     MatchStatus = "live"
	StatusFinished MatchStatus = "finished"
)

// Valid reports whether s is one of the known statuses.
func (s MatchStatus) Valid() bool {
	switch s {
	case StatusUpcoming, StatusLive, StatusFinished:
		return true
	}
	return false
}

// Score is a pair of goal counts. It is used both for a match's final result
// and for a user's predicted result.
type Score struct {
	Home int `json:"homeScore" bson:"homeScore"`
	Away int `json:"awayScore" bson:"awayScore"`
}

// Match is a fixture between two teams.
//
// Result is nil until the match is finished. Predictions lists the ids of the
// predictions made for this match; the prediction's MatchID is authoritative
// and this list only mirrors it.
type Match struct {
	ID          string      `json:"id"          bson:"_id"`
	HomeTeam    string      `json:"homeTeam"    bson:"homeTeam"`
	AwayTeam    string      `json:"awayTeam"    bson:"awayTeam"`
	MatchDate   time.Time   `json:"matchDate"   bson:"matchDate"`
	Status      MatchStatus `json:"status"      bson:"status"`
	Result      *Score      `json:"result"      bson:"result"`
	Predictions []string    `json:"predictions" bson:"predictions"`
	CreatedAt   time.Time   `json:"createdAt"   bson:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"   bson:"updatedAt"`
}

// Scored reports whether the match is finished and carries a result.
func (m *Match) Scored() bool {
	return m.Status == StatusFinished && m.Result != nil
}
