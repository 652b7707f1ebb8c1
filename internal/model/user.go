// Package model defines the data structures used throughout the application.
package model

import "time"

// User represents a registered account.
//
// Points is a derived aggregate: it equals the sum of Points over the user's
// calculated predictions. Only the reconciliation engine and the admin
// override change it.
//
// PasswordHash is empty for accounts created through GitHub sign-in, and
// GitHubID is nil for accounts created with email and password.
type User struct {
	ID           string    `json:"id"                 bson:"_id"`
	Name         string    `json:"name"               bson:"name"`
	Email        string    `json:"email"              bson:"email"`
	PasswordHash string    `json:"-"                  bson:"password"`
	GitHubID     *int64    `json:"githubId,omitempty" bson:"githubId,omitempty"`
	IsAdmin      bool      `json:"isAdmin"            bson:"isAdmin"`
	Points       int       `json:"points"             bson:"points"`
	CreatedAt    time.Time `json:"createdAt"          bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"          bson:"updatedAt"`
}

// Standing is one leaderboard row.
type Standing struct {
	UserID string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Points int    `json:"points"`
}
