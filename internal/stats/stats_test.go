package stats

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pefman/seabattle/internal/match"
)

func TestRatingChange(t *testing.T) {
	tests := []struct {
		name     string
		r, opp   int
		result   float64
		expected int
	}{
		{"equal win", 1000, 1000, 1, 16},
		{"equal loss", 1000, 1000, 0, -16},
		{"equal draw", 1200, 1200, 0.5, 0},
		{"underdog win", 1000, 1400, 1, 29},
		{"favourite win", 1400, 1000, 1, 3},
		{"favourite loss", 1400, 1000, 0, -29},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RatingChange(tt.r, tt.opp, tt.result))
		})
	}
}

func TestNewRatingsFloor(t *testing.T) {
	n1, n2 := NewRatings(10, 10, 2)
	assert.Equal(t, 0, n1)
	assert.Equal(t, 26, n2)

	n1, n2 = NewRatings(1500, 1500, 0)
	assert.Equal(t, 1500, n1)
	assert.Equal(t, 1500, n2)
}

func outcome(id, winner string, shots int) match.Outcome {
	o := match.Outcome{
		MatchID: id,
		Players: [2]string{"alice", "bob"},
		Ratings: [2]int{1000, 1000},
		Winner:  winner,
		Reason:  match.ReasonFleetDestroyed,
	}
	if winner == "alice" {
		o.Loser = "bob"
	} else if winner == "bob" {
		o.Loser = "alice"
	}
	for i := 0; i < shots; i++ {
		o.Moves = append(o.Moves, match.Move{Mover: winner, Hit: true}, match.Move{Mover: o.Loser})
	}
	return o
}

func TestStoreRecordsResults(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := NewStore(mock)
	ctx := context.Background()

	assert.Equal(t, 1234, s.Rating("alice", 1234))

	require.NoError(t, s.Record(ctx, outcome("m1", "alice", 30)))
	a, ok := s.Get("alice")
	require.True(t, ok)
	assert.Equal(t, Record{User: "alice", Rating: 1016, Wins: 1, Games: 1, LastPlayed: mock.Now()}, a)
	b, _ := s.Get("bob")
	assert.Equal(t, 984, b.Rating)
	assert.Equal(t, 1, b.Losses)

	// stored ratings win over declared ones from now on
	assert.Equal(t, 1016, s.Rating("alice", 1234))
	require.NoError(t, s.Record(ctx, outcome("m2", "bob", 25)))
	a, _ = s.Get("alice")
	assert.Equal(t, 2, a.Games)
	assert.Equal(t, 1, a.Losses)

	lb := s.Leaderboard(1)
	require.Len(t, lb, 1)
	assert.Equal(t, "bob", lb[0].User)
}

func TestStoreIgnoresNoWinner(t *testing.T) {
	s := NewStore(clock.NewMock())
	require.NoError(t, s.Record(context.Background(), outcome("m1", "", 0)))
	_, ok := s.Get("alice")
	assert.False(t, ok)
	assert.Empty(t, s.Leaderboard(0))
}

func TestQuickestWinToday(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	s := NewStore(mock)
	ctx := context.Background()

	_, ok := s.QuickestWinToday()
	assert.False(t, ok)

	require.NoError(t, s.Record(ctx, outcome("slow", "alice", 40)))
	require.NoError(t, s.Record(ctx, outcome("fast", "bob", 22)))
	require.NoError(t, s.Record(ctx, outcome("slower", "alice", 35)))

	left := outcome("left", "bob", 1)
	left.Reason = match.ReasonLeft
	require.NoError(t, s.Record(ctx, left))

	q, ok := s.QuickestWinToday()
	require.True(t, ok)
	assert.Equal(t, "fast", q.MatchID)
	assert.Equal(t, 22, q.Shots)

	mock.Add(2 * time.Hour)
	_, ok = s.QuickestWinToday()
	assert.False(t, ok, "a new UTC day starts empty")

	mock.Set(time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC))
	s.ResetDaily()
	_, ok = s.QuickestWinToday()
	assert.False(t, ok)
}
