package match

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pefman/seabattle/internal/engine"
	"github.com/pefman/seabattle/internal/game"
	"github.com/pefman/seabattle/internal/metrics"
	"github.com/pefman/seabattle/internal/models"
)

const recordTimeout = 10 * time.Second

// Registry is the live-match table plus the participant index.
type Registry struct {
	mu      sync.RWMutex
	matches map[string]*Match
	byUser  map[string]*Match

	clock     clock.Clock
	log       zerolog.Logger
	timeouts  Timeouts
	recorders []Recorder
	newRNG    func() *rand.Rand
	validate  func(*game.Board) error

	inflight sync.WaitGroup
}

type Option func(*Registry)

func WithTimeouts(t Timeouts) Option { return func(r *Registry) { r.timeouts = t } }

func WithClock(c clock.Clock) Option { return func(r *Registry) { r.clock = c } }

func WithRecorders(rs ...Recorder) Option {
	return func(r *Registry) { r.recorders = append(r.recorders, rs...) }
}

// WithRNG overrides the per-match random source used for automatic shots.
func WithRNG(fn func() *rand.Rand) Option { return func(r *Registry) { r.newRNG = fn } }

// WithPlacementCheck replaces the full-fleet validation applied to submitted
// boards. Scripted scenarios use it to play with partial fleets.
func WithPlacementCheck(fn func(*game.Board) error) Option {
	return func(r *Registry) { r.validate = fn }
}

func NewRegistry(log zerolog.Logger, opts ...Option) *Registry {
	r := &Registry{
		matches:  make(map[string]*Match),
		byUser:   make(map[string]*Match),
		clock:    clock.New(),
		log:      log.With().Str("component", "match").Logger(),
		timeouts: DefaultTimeouts(),
		newRNG:   engine.NewRNG,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Create registers a match between p1 (seat 0, fires first) and p2, sends
// opponent-found to both and starts the placement timer.
func (r *Registry) Create(p1, p2 Participant) *Match {
	m := newMatch(uuid.NewString(), p1, p2, r.timeouts, r.clock, r.newRNG(), r.log, r.finished)
	if r.validate != nil {
		m.validate = r.validate
	}

	r.mu.Lock()
	r.matches[m.ID] = m
	r.byUser[p1.UserID] = m
	r.byUser[p2.UserID] = m
	n := len(r.matches)
	r.mu.Unlock()
	metrics.LiveMatches.Set(float64(n))

	m.start()
	return m
}

// finished is the match finish hook. It runs outside the match lock.
func (r *Registry) finished(m *Match, o Outcome) {
	r.mu.Lock()
	delete(r.matches, m.ID)
	for _, id := range o.Players {
		if r.byUser[id] == m {
			delete(r.byUser, id)
		}
	}
	n := len(r.matches)
	r.mu.Unlock()
	metrics.LiveMatches.Set(float64(n))

	for _, rec := range r.recorders {
		r.inflight.Add(1)
		go func(rec Recorder) {
			defer r.inflight.Done()
			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()
			if err := rec.Record(ctx, o); err != nil {
				r.log.Warn().Err(err).Str("match", o.MatchID).Msg("outcome recorder failed")
			}
		}(rec)
	}
}

func (r *Registry) Get(id string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.matches[id]
	return m, ok
}

func (r *Registry) ByUser(user string) (*Match, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byUser[user]
	return m, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.matches)
}

func (r *Registry) list() []*Match {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Match, 0, len(r.matches))
	for _, m := range r.matches {
		out = append(out, m)
	}
	return out
}

// Snapshot lists live matches, oldest first.
func (r *Registry) Snapshot() []models.MatchView {
	ms := r.list()
	out := make([]models.MatchView, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.View())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created != out[j].Created {
			return out[i].Created < out[j].Created
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Close aborts every live match and waits for the recorders to drain.
func (r *Registry) Close() {
	for _, m := range r.list() {
		m.Abort()
	}
	r.Wait()
}

// Wait blocks until every dispatched recorder call has returned.
func (r *Registry) Wait() { r.inflight.Wait() }
