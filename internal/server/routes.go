package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pefman/seabattle/internal/matchlog"
	"github.com/pefman/seabattle/internal/transport"
)

// BuildInfo is injected via -ldflags at build time.
type BuildInfo struct {
	Version string `json:"version"`
	Time    string `json:"time"`
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

// simple CORS for GET/OPTIONS
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Router builds the HTTP surface of the game server.
func (h *Hub) Router(build BuildInfo) *mux.Router {
	r := mux.NewRouter()
	r.Use(withCORS)
	r.HandleFunc("/ws", h.handleWS).Methods(http.MethodGet)
	r.HandleFunc("/lobby", h.handleLobby).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/debug/matches", h.handleDebugMatches).Methods(http.MethodGet)
	r.HandleFunc("/api/stats/{user}", h.handleStats).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/leaderboard", h.handleLeaderboard).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/matches/{id}", h.handleMatch).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"ok": true, "matches": h.matches.Len(), "waiting": h.queue.Len()})
	})
	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, build)
	})
	return r
}

// identify resolves the connecting user: a bearer token through the profile
// service when one is configured, else ?user=, else a fresh anonymous id.
func (h *Hub) identify(r *http.Request) (string, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if h.deps.Profiles != nil && token != "" {
		id, err := h.deps.Profiles.ResolveIdentity(r.Context(), token)
		if err != nil {
			return "", err
		}
		return id.ID, nil
	}
	if u := strings.TrimSpace(r.URL.Query().Get("user")); u != "" {
		return u, nil
	}
	return "anon-" + uuid.NewString(), nil
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	codec, err := transport.CodecFor(r.URL.Query().Get("codec"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	user, err := h.identify(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	c, err := transport.Upgrade(w, r, user, codec, h.log)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws: upgrade failed")
		return
	}
	h.log.Info().Str("user", user).Str("codec", codec.Name()).Str("from", r.RemoteAddr).Msg("ws: connect")

	go c.WritePump()
	defer func() {
		h.Detach(user, c)
		h.log.Info().Str("user", user).Msg("ws: closed")
	}()
	h.Attach(user, c)
	if err := c.ReadPump(func(in transport.Inbound) { h.Handle(user, in) }); err != nil {
		h.log.Debug().Err(err).Str("user", user).Msg("ws: read error")
	}
}

func (h *Hub) handleLobby(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.queue.Snapshot())
}

func (h *Hub) handleDebugMatches(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.matches.Snapshot())
}

func (h *Hub) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stats == nil {
		writeError(w, http.StatusNotFound, "stats disabled")
		return
	}
	rec, _ := h.deps.Stats.Get(mux.Vars(r)["user"])
	writeJSON(w, rec)
}

func (h *Hub) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stats == nil {
		writeError(w, http.StatusNotFound, "stats disabled")
		return
	}
	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			n = parsed
		}
	}
	out := map[string]any{"top": h.deps.Stats.Leaderboard(n)}
	if q, ok := h.deps.Stats.QuickestWinToday(); ok {
		out["quickestWinToday"] = q
	}
	writeJSON(w, out)
}

func (h *Hub) handleMatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if m, ok := h.matches.Get(id); ok {
		writeJSON(w, m.View())
		return
	}
	if h.deps.MatchLog == nil {
		writeError(w, http.StatusNotFound, "match not found")
		return
	}
	rec, err := h.deps.MatchLog.Get(id)
	switch {
	case errors.Is(err, matchlog.ErrNotFound):
		writeError(w, http.StatusNotFound, "match not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, rec)
	}
}
