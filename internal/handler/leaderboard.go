package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/service"
)

// LeaderboardHandler serves the public standings and the admin point tools.
type LeaderboardHandler struct {
	leaderboard *service.LeaderboardService
	logger      *slog.Logger
}

func NewLeaderboardHandler(leaderboard *service.LeaderboardService, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{leaderboard: leaderboard, logger: logger}
}

// LeaderboardEntry is one public leaderboard row. Emails are not exposed.
type LeaderboardEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Points int    `json:"points"`
}

type setPointsRequest struct {
	UserID string `json:"userId"`
	Points *int   `json:"points"`
}

// HandleStandings returns every user ranked by points.
//
// HTTP: GET /api/leaderboard
func (h *LeaderboardHandler) HandleStandings(w http.ResponseWriter, r *http.Request) {
	standings, err := h.leaderboard.Standings(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entries := make([]LeaderboardEntry, len(standings))
	for i, s := range standings {
		entries[i] = LeaderboardEntry{ID: s.UserID, Name: s.Name, Points: s.Points}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleSetPoints overrides one user's total.
//
// HTTP: PATCH /api/admin/leaderboard
// REQUEST BODY: {"userId": "...", "points": 42}
func (h *LeaderboardHandler) HandleSetPoints(w http.ResponseWriter, r *http.Request) {
	var req setPointsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.Points == nil {
		writeError(w, r, h.logger, apperror.ValidationFailed("points", "points is required"))
		return
	}

	user, err := h.leaderboard.SetPoints(r.Context(), req.UserID, *req.Points)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleRecompute rebuilds every total from the finished matches.
//
// HTTP: POST /api/admin/reset-points
func (h *LeaderboardHandler) HandleRecompute(w http.ResponseWriter, r *http.Request) {
	summary, err := h.leaderboard.Recompute(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
