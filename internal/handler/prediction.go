package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/auth"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/service"
)

type PredictionHandler struct {
	predictions *service.PredictionService
	logger      *slog.Logger
}

func NewPredictionHandler(predictions *service.PredictionService, logger *slog.Logger) *PredictionHandler {
	return &PredictionHandler{predictions: predictions, logger: logger}
}

// submitPredictionRequest uses pointers so a missing score is an error
// rather than a silent zero.
type submitPredictionRequest struct {
	MatchID   string `json:"matchId"`
	HomeScore *int   `json:"homeScore"`
	AwayScore *int   `json:"awayScore"`
}

// HandleSubmit creates or overwrites the caller's prediction.
//
// HTTP: POST /api/predictions
// REQUEST BODY: {"matchId": "...", "homeScore": 2, "awayScore": 1}
// RESPONSE: 201 for a new prediction, 200 when an existing one was overwritten.
func (h *PredictionHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req submitPredictionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if req.HomeScore == nil || req.AwayScore == nil {
		writeError(w, r, h.logger, apperror.ValidationFailed("homeScore", "homeScore and awayScore are required"))
		return
	}

	pred, created, err := h.predictions.Submit(r.Context(), userID, req.MatchID, model.Score{
		Home: *req.HomeScore,
		Away: *req.AwayScore,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, pred)
}

// HandleGetForMatch returns the caller's prediction for a match, or null.
//
// HTTP: GET /api/predictions/{matchId}
func (h *PredictionHandler) HandleGetForMatch(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	pred, err := h.predictions.GetForMatch(r.Context(), userID, chi.URLParam(r, "matchId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// HandleListMine returns the caller's predictions with their matches.
//
// HTTP: GET /api/me/predictions
func (h *PredictionHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	list, err := h.predictions.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
