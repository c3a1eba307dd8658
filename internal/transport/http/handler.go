package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"reading-fluency-service/internal/app"
	"reading-fluency-service/internal/domain"
)

// ReadHandler exposes the read-model endpoints: leaderboards and per-student
// results. Both are recomputed projections, safe to serve to anyone.
type ReadHandler struct {
	sessions    *app.SessionService
	leaderboard app.Aggregator
}

func NewReadHandler(sessions *app.SessionService, leaderboard app.Aggregator) *ReadHandler {
	return &ReadHandler{sessions: sessions, leaderboard: leaderboard}
}

// ServeLeaderboard handles GET /leaderboard?competitionId=...&group=...
func (h *ReadHandler) ServeLeaderboard(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competitionId")
	group := domain.LeaderboardGroup(r.URL.Query().Get("group"))
	if competitionID == "" {
		http.Error(w, "missing competitionId", http.StatusBadRequest)
		return
	}
	if !domain.KnownGroup(group) {
		http.Error(w, "unknown leaderboard group", http.StatusBadRequest)
		return
	}

	lb, err := h.leaderboard.Leaderboard(r.Context(), competitionID, group)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, lb)
}

// ServeResults handles GET /results?studentId=...&competitionId=...
func (h *ReadHandler) ServeResults(w http.ResponseWriter, r *http.Request) {
	studentID := r.URL.Query().Get("studentId")
	competitionID := r.URL.Query().Get("competitionId")
	if studentID == "" || competitionID == "" {
		http.Error(w, "missing studentId or competitionId", http.StatusBadRequest)
		return
	}

	results, err := h.sessions.GetMyResults(r.Context(), studentID, competitionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, results)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrTaskNotFound), errors.Is(err, domain.ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyCompleted), errors.Is(err, domain.ErrInvalidState):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrTaskNotActive), errors.Is(err, domain.ErrAnswerCount), errors.Is(err, domain.ErrDegenerateTask):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
