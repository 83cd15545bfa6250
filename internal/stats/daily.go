package stats

import (
	"time"

	"github.com/pefman/seabattle/internal/match"
)

// QuickestWin is the fleet-destroying win that needed the fewest shots.
type QuickestWin struct {
	MatchID string    `json:"matchId"`
	Winner  string    `json:"winner"`
	Loser   string    `json:"loser"`
	Shots   int       `json:"shots"`
	Time    time.Time `json:"time"`
}

func dateKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (s *Store) maybeQuickestLocked(o match.Outcome, now time.Time) {
	shots := 0
	for _, m := range o.Moves {
		if m.Mover == o.Winner {
			shots++
		}
	}
	key := dateKey(now)
	if cur, ok := s.daily[key]; ok && cur.Shots <= shots {
		return
	}
	s.daily[key] = QuickestWin{MatchID: o.MatchID, Winner: o.Winner, Loser: o.Loser, Shots: shots, Time: now}
}

// QuickestWinToday returns today's record, if any.
func (s *Store) QuickestWinToday() (QuickestWin, bool) {
	key := dateKey(s.clock.Now())
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.daily[key]
	return q, ok
}

// ResetDaily clears the per-day records.
func (s *Store) ResetDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.daily {
		delete(s.daily, k)
	}
}
