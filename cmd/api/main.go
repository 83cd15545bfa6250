// Command api is the profile service the game server talks to through
// DATA_API_BASE. It issues player tokens, resolves them to identities and
// receives finished matches, which drive ratings and the match archive.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pefman/seabattle/internal/api"
	"github.com/pefman/seabattle/internal/match"
	"github.com/pefman/seabattle/internal/matchlog"
	"github.com/pefman/seabattle/internal/stats"
)

const startRating = 1000

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error":   http.StatusText(code),
		"message": msg,
		"status":  code,
	})
}

// simple CORS for GET/POST/OPTIONS
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ================= Profiles (in-memory) =================

type profiles struct {
	mu      sync.Mutex
	byToken map[string]string        // token -> user id
	byName  map[string]*api.Identity // key: lowercased name
	byID    map[string]*api.Identity
}

func newProfiles() *profiles {
	return &profiles{
		byToken: map[string]string{},
		byName:  map[string]*api.Identity{},
		byID:    map[string]*api.Identity{},
	}
}

// issue hands out a fresh token for name, creating the player on first use.
func (p *profiles) issue(name string) (string, api.Identity) {
	key := strings.ToLower(strings.TrimSpace(name))
	p.mu.Lock()
	defer p.mu.Unlock()
	id, ok := p.byName[key]
	if !ok {
		id = &api.Identity{ID: "p-" + uuid.NewString()[:8], Name: strings.TrimSpace(name), Rating: startRating}
		p.byName[key] = id
		p.byID[id.ID] = id
	}
	token := uuid.NewString()
	p.byToken[token] = id.ID
	return token, *id
}

func (p *profiles) resolve(token string) (api.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	uid, ok := p.byToken[token]
	if !ok {
		return api.Identity{}, false
	}
	return *p.byID[uid], true
}

type service struct {
	log      zerolog.Logger
	profiles *profiles
	stats    *stats.Store
	matches  *matchlog.Log
}

func bearer(r *http.Request) string {
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

// POST /api/tokens {"name": "..."}
func (s *service) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	token, id := s.profiles.issue(req.Name)
	id.Rating = s.stats.Rating(id.ID, id.Rating)
	s.log.Info().Str("user", id.ID).Str("name", id.Name).Msg("api: token issued")
	writeJSON(w, map[string]any{"token": token, "identity": id})
}

// GET /api/me
func (s *service) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := s.profiles.resolve(bearer(r))
	if !ok {
		writeError(w, http.StatusUnauthorized, "unknown token")
		return
	}
	id.Rating = s.stats.Rating(id.ID, id.Rating)
	writeJSON(w, id)
}

// POST /api/matches
func (s *service) handleReportMatch(w http.ResponseWriter, r *http.Request) {
	var o match.Outcome
	if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
		writeError(w, http.StatusBadRequest, "invalid outcome")
		return
	}
	if strings.TrimSpace(o.MatchID) == "" {
		writeError(w, http.StatusBadRequest, "missing matchId")
		return
	}
	if err := s.stats.Record(r.Context(), o); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.matches.Record(r.Context(), o); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info().Str("match", o.MatchID).Str("winner", o.Winner).Str("reason", string(o.Reason)).Msg("api: match recorded")
	w.WriteHeader(http.StatusCreated)
}

// GET /api/matches/{id}
func (s *service) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	rec, err := s.matches.Get(mux.Vars(r)["id"])
	switch {
	case errors.Is(err, matchlog.ErrNotFound):
		writeError(w, http.StatusNotFound, "match not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, rec)
	}
}

func (s *service) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/tokens", s.handleIssueToken).Methods(http.MethodPost)
	r.HandleFunc("/api/me", s.handleMe).Methods(http.MethodGet)
	r.HandleFunc("/api/matches", s.handleReportMatch).Methods(http.MethodPost)
	r.HandleFunc("/api/matches/{id}", s.handleGetMatch).Methods(http.MethodGet)
	r.HandleFunc("/api/stats/{user}", s.handleGetStats).Methods(http.MethodGet)
	r.HandleFunc("/api/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/api/leaderboard/today", s.handleQuickestToday).Methods(http.MethodGet)
	return withCORS(r)
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "api").Logger()

	// Optional local persistence dir for dev/debug
	ml, err := matchlog.New(os.Getenv("MATCH_LOG_DIR"), log)
	if err != nil {
		log.Fatal().Err(err).Msg("match log")
	}
	s := &service{log: log, profiles: newProfiles(), stats: stats.NewStore(nil), matches: ml}

	// Prefer Cloud Run's PORT env var when present
	port := os.Getenv("PORT")
	if port == "" {
		port = getenv("API_PORT", "8080")
	}
	addr := ":" + port
	log.Info().Str("addr", addr).Str("matchLogDir", ml.Dir()).Msg("profile API listening")
	if err := http.ListenAndServe(addr, s.router()); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}
