package main

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// GET /api/stats/{user}
func (s *service) handleGetStats(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	rec, ok := s.stats.Get(user)
	if !ok {
		rec.Rating = startRating
	}
	writeJSON(w, rec)
}

// GET /api/leaderboard?n=20
func (s *service) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = parsed
	}
	writeJSON(w, s.stats.Leaderboard(n))
}

// GET /api/leaderboard/today
func (s *service) handleQuickestToday(w http.ResponseWriter, _ *http.Request) {
	q, ok := s.stats.QuickestWinToday()
	if !ok {
		writeJSON(w, map[string]any{})
		return
	}
	writeJSON(w, q)
}
