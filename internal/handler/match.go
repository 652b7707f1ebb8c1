package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/matchday/internal/apperror"
	"github.com/sakif/matchday/internal/model"
	"github.com/sakif/matchday/internal/service"
)

// MatchHandler serves the public fixture list and the admin match screens.
type MatchHandler struct {
	matches *service.MatchService
	logger  *slog.Logger
}

func NewMatchHandler(matches *service.MatchService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{matches: matches, logger: logger}
}

type createMatchRequest struct {
	HomeTeam  string            `json:"homeTeam"`
	AwayTeam  string            `json:"awayTeam"`
	MatchDate time.Time         `json:"matchDate"`
	Status    model.MatchStatus `json:"status"`
}

// updateMatchRequest keeps Result as raw JSON so that an explicit
// "result": null can be told apart from a missing field.
type updateMatchRequest struct {
	HomeTeam    *string            `json:"homeTeam"`
	AwayTeam    *string            `json:"awayTeam"`
	MatchDate   *time.Time         `json:"matchDate"`
	Status      *model.MatchStatus `json:"status"`
	Result      json.RawMessage    `json:"result"`
	ClearResult bool               `json:"clearResult"`
}

// DeleteMatchResponse is returned by the admin delete endpoint.
type DeleteMatchResponse struct {
	Message             string `json:"message"`
	AffectedPredictions int    `json:"affectedPredictions"`
	ReversedPoints      int    `json:"reversedPoints"`
}

// HandleList returns matches soonest first.
//
// HTTP: GET /api/matches?limit=N
func (h *MatchHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	matches, err := h.matches.List(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleGet returns one match.
//
// HTTP: GET /api/matches/{id}
func (h *MatchHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	match, err := h.matches.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleAdminList returns matches latest first.
//
// HTTP: GET /api/admin/matches?limit=N
func (h *MatchHandler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	matches, err := h.matches.ListAdmin(r.Context(), limit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

// HandleCreate adds a fixture.
//
// HTTP: POST /api/admin/matches
// REQUEST BODY: {"homeTeam": "...", "awayTeam": "...", "matchDate": "2026-08-15T15:00:00Z", "status"?: "upcoming"}
func (h *MatchHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	match, err := h.matches.Create(r.Context(), service.MatchInput{
		HomeTeam:  req.HomeTeam,
		AwayTeam:  req.AwayTeam,
		MatchDate: req.MatchDate,
		Status:    req.Status,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, match)
}

// HandleUpdate applies a partial update. Setting or changing the result
// scores the match; "result": null or "clearResult": true removes it.
//
// HTTP: PATCH /api/admin/matches/{id}
func (h *MatchHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateMatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	upd := service.MatchUpdate{
		HomeTeam:    req.HomeTeam,
		AwayTeam:    req.AwayTeam,
		MatchDate:   req.MatchDate,
		Status:      req.Status,
		ClearResult: req.ClearResult,
	}
	if len(req.Result) > 0 {
		if string(req.Result) == "null" {
			upd.ClearResult = true
		} else {
			var result model.Score
			if err := json.Unmarshal(req.Result, &result); err != nil {
				writeError(w, r, h.logger, apperror.ValidationFailed("result", "result must be {homeScore, awayScore}"))
				return
			}
			upd.Result = &result
		}
	}

	match, err := h.matches.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, match)
}

// HandleDelete removes a match and takes back the points it awarded.
//
// HTTP: DELETE /api/admin/matches/{id}
func (h *MatchHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	res, err := h.matches.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteMatchResponse{
		Message:             "match deleted",
		AffectedPredictions: res.AffectedPredictions,
		ReversedPoints:      res.ReversedPoints,
	})
}
