package ai

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pefman/seabattle/internal/engine"
	"github.com/pefman/seabattle/internal/game"
)

var allDifficulties = []Difficulty{Easy, Medium, Hard}

// play runs s against b until the fleet is gone and returns the shot count.
func play(t *testing.T, s Strategy, b *game.Board) int {
	t.Helper()
	var fired [game.Size][game.Size]bool
	shots := 0
	for !b.IsGameOver() {
		require.Less(t, shots, game.Size*game.Size, "%s did not finish", s.Difficulty())
		masked := b.Masked()
		x := s.NextMove(&masked)
		require.True(t, game.InBounds(x.Row, x.Col))
		require.False(t, fired[x.Row][x.Col], "%s fired twice at %v", s.Difficulty(), x)
		fired[x.Row][x.Col] = true
		res := b.MakeShot(x.Row, x.Col)
		s.ProcessShotResult(x.Row, x.Col, res.Hit, res.Sunk)
		shots++
	}
	return shots
}

func TestEveryStrategyFinishesAFleet(t *testing.T) {
	for _, d := range allDifficulties {
		t.Run(string(d), func(t *testing.T) {
			for seed := int64(1); seed <= 25; seed++ {
				s, err := New(d, engine.NewSeededRNG(seed))
				require.NoError(t, err)
				b := game.GenerateRandomBoard(engine.NewSeededRNG(seed * 31))
				shots := play(t, s, &b)
				assert.GreaterOrEqual(t, shots, 20)
			}
		})
	}
}

func TestHuntersTrackRemainingFleet(t *testing.T) {
	for _, d := range []Difficulty{Medium, Hard} {
		t.Run(string(d), func(t *testing.T) {
			for seed := int64(1); seed <= 10; seed++ {
				s, err := New(d, engine.NewSeededRNG(seed))
				require.NoError(t, err)
				b := game.GenerateRandomBoard(engine.NewSeededRNG(seed + 100))
				play(t, s, &b)
				var st *huntState
				switch v := s.(type) {
				case *HuntStrategy:
					st = &v.huntState
				case *DensityStrategy:
					st = &v.huntState
				}
				assert.Empty(t, st.remaining, "seed %d", seed)
				assert.Empty(t, st.hits, "seed %d", seed)
			}
		})
	}
}

func TestHuntQueuesOrthogonalNeighbours(t *testing.T) {
	s := &HuntStrategy{huntState: newHuntState(engine.NewSeededRNG(1))}
	s.ProcessShotResult(3, 3, true, false)

	got := map[game.Coord]int{}
	for i := 0; i < 4; i++ {
		x := s.NextMove(nil)
		got[x]++
		s.ProcessShotResult(x.Row, x.Col, false, false)
	}
	assert.Equal(t, map[game.Coord]int{
		{Row: 2, Col: 3}: 1,
		{Row: 4, Col: 3}: 1,
		{Row: 3, Col: 2}: 1,
		{Row: 3, Col: 4}: 1,
	}, got)
	assert.Empty(t, s.queue)
}

func TestHuntQueueSkipsEdgesAndDuplicates(t *testing.T) {
	s := &HuntStrategy{huntState: newHuntState(engine.NewSeededRNG(1))}
	s.ProcessShotResult(0, 1, false, false)
	s.ProcessShotResult(0, 0, true, false)
	// (0,1) already shot, (-1,0) and (0,-1) off the grid
	assert.Equal(t, []game.Coord{{Row: 1, Col: 0}}, s.queue)

	s.ProcessShotResult(1, 0, true, false)
	assert.Equal(t, []game.Coord{{Row: 1, Col: 0}, {Row: 2, Col: 0}, {Row: 1, Col: 1}}, s.queue)
}

func TestHuntFollowsLineAfterQueueDrains(t *testing.T) {
	s := &HuntStrategy{huntState: newHuntState(engine.NewSeededRNG(1))}
	s.hits = []game.Coord{{Row: 5, Col: 4}, {Row: 5, Col: 5}}
	s.shot[5][4], s.shot[5][5], s.shot[5][3] = true, true, true
	assert.Equal(t, game.Coord{Row: 5, Col: 6}, s.NextMove(nil))
}

func TestHuntSearchesOnCheckerboard(t *testing.T) {
	s := &HuntStrategy{huntState: newHuntState(engine.NewSeededRNG(9))}
	for i := 0; i < 30; i++ {
		x := s.NextMove(nil)
		assert.Zero(t, (x.Row+x.Col)%2, "move %v off parity", x)
		s.ProcessShotResult(x.Row, x.Col, false, false)
	}
}

func TestSinkResetsHunt(t *testing.T) {
	s := &HuntStrategy{huntState: newHuntState(engine.NewSeededRNG(1))}
	s.ProcessShotResult(4, 4, true, false)
	s.ProcessShotResult(4, 5, true, false)
	require.NotEmpty(t, s.queue)
	s.ProcessShotResult(4, 6, true, true)

	assert.Empty(t, s.queue)
	assert.Empty(t, s.hits)
	assert.Equal(t, []int{4, 3, 2, 2, 2, 1, 1, 1, 1}, s.remaining)
}

func TestRandomFindsLastCell(t *testing.T) {
	s := &RandomStrategy{huntState: newHuntState(engine.NewSeededRNG(2))}
	for r := 0; r < game.Size; r++ {
		for c := 0; c < game.Size; c++ {
			if r != 7 || c != 2 {
				s.ProcessShotResult(r, c, false, false)
			}
		}
	}
	assert.Equal(t, game.Coord{Row: 7, Col: 2}, s.NextMove(nil))
}

func TestDensityOpensInTheCentre(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		s := &DensityStrategy{huntState: newHuntState(engine.NewSeededRNG(seed))}
		x := s.NextMove(nil)
		assert.True(t, x.Row >= 3 && x.Row <= 6 && x.Col >= 3 && x.Col <= 6, "seed %d opened at %v", seed, x)
		assert.Equal(t, 40, s.density[x.Row][x.Col])
	}
}

func TestDensityTargetMode(t *testing.T) {
	s := &DensityStrategy{huntState: newHuntState(engine.NewSeededRNG(4))}
	s.ProcessShotResult(5, 5, true, false)
	first := s.NextMove(nil)
	assert.Contains(t, neighbours(game.Coord{Row: 5, Col: 5}), first)

	s.ProcessShotResult(5, 6, true, false)
	next := s.NextMove(nil)
	assert.Contains(t, []game.Coord{{Row: 5, Col: 4}, {Row: 5, Col: 7}}, next)
}

func TestDensityAvoidsMisses(t *testing.T) {
	s := &DensityStrategy{huntState: newHuntState(engine.NewSeededRNG(4))}
	for r := 3; r <= 6; r++ {
		for c := 3; c <= 6; c++ {
			s.ProcessShotResult(r, c, false, false)
		}
	}
	x := s.NextMove(nil)
	assert.False(t, x.Row >= 3 && x.Row <= 6 && x.Col >= 3 && x.Col <= 6)
	s.buildDensity()
	assert.Zero(t, s.density[4][4])
}

func TestResetClearsHistory(t *testing.T) {
	for _, d := range allDifficulties {
		s, err := New(d, engine.NewSeededRNG(1))
		require.NoError(t, err)
		s.ProcessShotResult(1, 1, true, false)
		s.Reset()
		b := game.GenerateRandomBoard(engine.NewSeededRNG(5))
		play(t, s, &b)
	}
}

func TestParseDifficulty(t *testing.T) {
	d, err := ParseDifficulty(" HARD ")
	require.NoError(t, err)
	assert.Equal(t, Hard, d)

	d, err = ParseDifficulty("")
	require.NoError(t, err)
	assert.Equal(t, Easy, d)

	_, err = ParseDifficulty("nightmare")
	assert.ErrorIs(t, err, ErrUnknownDifficulty)
}

func TestThinkDelayRanges(t *testing.T) {
	for _, d := range allDifficulties {
		o, err := NewOpponent(d, engine.NewSeededRNG(1))
		require.NoError(t, err)
		for i := 0; i < 50; i++ {
			delay := o.ThinkDelay()
			assert.GreaterOrEqual(t, delay, thinkTimes[d].min)
			assert.Less(t, delay, thinkTimes[d].max)
		}
	}
	assert.Less(t, thinkTimes[Hard].max, thinkTimes[Easy].max)
}

func TestMoveWaitsForClock(t *testing.T) {
	mock := clock.NewMock()
	o, err := NewOpponent(Hard, engine.NewSeededRNG(1), WithClock(mock))
	require.NoError(t, err)

	done := make(chan game.Coord, 1)
	go func() {
		x, err := o.Move(context.Background(), nil)
		if err == nil {
			done <- x
		}
	}()

	select {
	case <-done:
		t.Fatal("move returned before any time passed")
	case <-time.After(20 * time.Millisecond):
	}
	require.Eventually(t, func() bool {
		mock.Add(500 * time.Millisecond)
		select {
		case x := <-done:
			return game.InBounds(x.Row, x.Col)
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestMoveWithoutThinkingAndCancel(t *testing.T) {
	o, err := NewOpponent(Easy, engine.NewSeededRNG(1), WithoutThinking())
	require.NoError(t, err)
	_, err = o.Move(context.Background(), nil)
	require.NoError(t, err)

	slow, err := NewOpponent(Easy, engine.NewSeededRNG(1), WithClock(clock.NewMock()))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = slow.Move(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
