package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pefman/seabattle/internal/match"
)

// Record is what we keep per user (in-memory).
type Record struct {
	User       string    `json:"user"`
	Rating     int       `json:"rating"`
	Wins       int       `json:"wins"`
	Losses     int       `json:"losses"`
	Games      int       `json:"games"`
	LastPlayed time.Time `json:"lastPlayed"`
}

// Store tracks per-user results and ratings plus the quickest win of each
// UTC day. It implements match.Recorder.
type Store struct {
	mu      sync.Mutex
	clock   clock.Clock
	records map[string]*Record
	// quickest win per date (YYYY-MM-DD UTC)
	daily map[string]QuickestWin
}

func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		clock:   clk,
		records: make(map[string]*Record),
		daily:   make(map[string]QuickestWin),
	}
}

func (s *Store) Get(user string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[user]
	if !ok {
		return Record{User: user}, false
	}
	return *r, true
}

// Rating returns the stored rating, or declared for users we have not seen.
func (s *Store) Rating(user string, declared int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[user]; ok {
		return r.Rating
	}
	return declared
}

func (s *Store) recordLocked(user string, declared int) *Record {
	r, ok := s.records[user]
	if !ok {
		r = &Record{User: user, Rating: declared}
		s.records[user] = r
	}
	return r
}

// Record applies a finished match. Matches without a winner leave ratings
// untouched.
func (s *Store) Record(_ context.Context, o match.Outcome) error {
	if o.Winner == "" {
		return nil
	}
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	p1 := s.recordLocked(o.Players[0], o.Ratings[0])
	p2 := s.recordLocked(o.Players[1], o.Ratings[1])
	winner := 1
	if o.Winner == p2.User {
		winner = 2
	}
	p1.Rating, p2.Rating = NewRatings(p1.Rating, p2.Rating, winner)
	for i, r := range []*Record{p1, p2} {
		r.Games++
		r.LastPlayed = now
		if winner == i+1 {
			r.Wins++
		} else {
			r.Losses++
		}
	}
	if o.Reason == match.ReasonFleetDestroyed {
		s.maybeQuickestLocked(o, now)
	}
	return nil
}

// Leaderboard returns the top n users by rating, then by wins.
func (s *Store) Leaderboard(n int) []Record {
	s.mu.Lock()
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, *r)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		return out[i].User < out[j].User
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
