// Package matchmaking pairs waiting players whose declared ratings are close.
package matchmaking

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/pefman/seabattle/internal/metrics"
	"github.com/pefman/seabattle/internal/models"
)

const (
	DefaultTolerance = 200
	DefaultTimeout   = 30 * time.Second
)

type Config struct {
	Tolerance int           // max |rating difference| for a pairing
	Timeout   time.Duration // how long an entry waits before giving up
}

// Entry is a player waiting for an opponent.
type Entry struct {
	UserID string
	Rating int
	Since  time.Time
}

type waiting struct {
	Entry
	timer *clock.Timer
}

// Queue is the wait-list. Pairing scans entries in insertion order and takes
// the first one inside the rating window.
type Queue struct {
	mu        sync.Mutex
	cfg       Config
	clock     clock.Clock
	log       zerolog.Logger
	entries   map[string]*waiting
	order     []string
	onTimeout func(Entry)
}

// New builds a queue. onTimeout runs outside the lock when an entry expires.
func New(cfg Config, clk clock.Clock, onTimeout func(Entry), log zerolog.Logger) *Queue {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if onTimeout == nil {
		onTimeout = func(Entry) {}
	}
	return &Queue{
		cfg:       cfg,
		clock:     clk,
		log:       log.With().Str("component", "matchmaking").Logger(),
		entries:   make(map[string]*waiting),
		onTimeout: onTimeout,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Search pairs e with the first compatible waiting entry, which is removed and
// returned with paired=true. Otherwise e is (re)queued and its timeout armed.
func (q *Queue) Search(e Entry) (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(e.UserID)
	for _, id := range q.order {
		w := q.entries[id]
		if abs(w.Rating-e.Rating) <= q.cfg.Tolerance {
			q.removeLocked(id)
			q.log.Info().Str("user", e.UserID).Str("opponent", w.UserID).
				Int("rating", e.Rating).Int("opponentRating", w.Rating).Msg("matchmaking: paired")
			metrics.SearchOutcomes.WithLabelValues("paired").Inc()
			return w.Entry, true
		}
	}

	if e.Since.IsZero() {
		e.Since = q.clock.Now()
	}
	q.insertLocked(e, q.cfg.Timeout, false)
	metrics.SearchOutcomes.WithLabelValues("queued").Inc()
	q.log.Debug().Str("user", e.UserID).Int("rating", e.Rating).Int("waiting", len(q.entries)).Msg("matchmaking: queued")
	return Entry{}, false
}

// Requeue puts back an entry Search handed out that could not be used. It
// never pairs: the entry goes to the head of the line with whatever was left
// of its original timeout.
func (q *Queue) Requeue(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(e.UserID)
	now := q.clock.Now()
	if e.Since.IsZero() {
		e.Since = now
	}
	left := q.cfg.Timeout - now.Sub(e.Since)
	if left < 0 {
		left = 0
	}
	q.insertLocked(e, left, true)
	q.log.Debug().Str("user", e.UserID).Dur("left", left).Msg("matchmaking: requeued")
}

func (q *Queue) insertLocked(e Entry, d time.Duration, front bool) {
	w := &waiting{Entry: e}
	w.timer = q.clock.AfterFunc(d, func() { q.expire(w) })
	q.entries[e.UserID] = w
	if front {
		q.order = append([]string{e.UserID}, q.order...)
	} else {
		q.order = append(q.order, e.UserID)
	}
	metrics.WaitingPlayers.Set(float64(len(q.entries)))
}

func (q *Queue) expire(w *waiting) {
	q.mu.Lock()
	// a newer search for the same user replaced this entry
	if cur, ok := q.entries[w.UserID]; !ok || cur != w {
		q.mu.Unlock()
		return
	}
	q.removeLocked(w.UserID)
	q.mu.Unlock()

	metrics.SearchOutcomes.WithLabelValues("timed_out").Inc()
	q.log.Info().Str("user", w.UserID).Msg("matchmaking: search timed out")
	q.onTimeout(w.Entry)
}

// Cancel drops userID from the wait-list. It reports whether an entry existed.
func (q *Queue) Cancel(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	ok := q.removeLocked(userID)
	if ok {
		metrics.SearchOutcomes.WithLabelValues("cancelled").Inc()
	}
	return ok
}

// Remove is the disconnect path: same as Cancel without counting a cancellation.
func (q *Queue) Remove(userID string) {
	q.mu.Lock()
	q.removeLocked(userID)
	q.mu.Unlock()
}

func (q *Queue) removeLocked(userID string) bool {
	w, ok := q.entries[userID]
	if !ok {
		return false
	}
	w.timer.Stop()
	delete(q.entries, userID)
	for i, id := range q.order {
		if id == userID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	metrics.WaitingPlayers.Set(float64(len(q.entries)))
	return true
}

func (q *Queue) Contains(userID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[userID]
	return ok
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Snapshot lists waiting players in queue order.
func (q *Queue) Snapshot() []models.LobbyEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.LobbyEntry, 0, len(q.order))
	for _, id := range q.order {
		w := q.entries[id]
		out = append(out, models.LobbyEntry{ID: w.UserID, Rating: w.Rating, Since: w.Since.Unix()})
	}
	return out
}
