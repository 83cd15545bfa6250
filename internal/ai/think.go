package ai

import (
	"context"
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pefman/seabattle/internal/engine"
	"github.com/pefman/seabattle/internal/game"
)

type thinkRange struct{ min, max time.Duration }

// Stronger opponents answer faster.
var thinkTimes = map[Difficulty]thinkRange{
	Easy:   {1000 * time.Millisecond, 3000 * time.Millisecond},
	Medium: {1500 * time.Millisecond, 3000 * time.Millisecond},
	Hard:   {500 * time.Millisecond, 1500 * time.Millisecond},
}

// Opponent is a Strategy with a human-looking pause before each move.
type Opponent struct {
	Strategy
	clock clock.Clock
	rng   *rand.Rand
	think thinkRange
}

type OpponentOption func(*Opponent)

// WithoutThinking removes the pause, for tests and batch runs.
func WithoutThinking() OpponentOption {
	return func(o *Opponent) { o.think = thinkRange{} }
}

func WithClock(c clock.Clock) OpponentOption {
	return func(o *Opponent) { o.clock = c }
}

func NewOpponent(d Difficulty, rng *rand.Rand, opts ...OpponentOption) (*Opponent, error) {
	s, err := New(d, rng)
	if err != nil {
		return nil, err
	}
	o := &Opponent{Strategy: s, clock: clock.New(), rng: rng, think: thinkTimes[d]}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ThinkDelay draws the pause for the next move.
func (o *Opponent) ThinkDelay() time.Duration {
	return engine.Jitter(o.rng, o.think.min, o.think.max)
}

// Think blocks for one think delay or until ctx is done.
func (o *Opponent) Think(ctx context.Context) error {
	d := o.ThinkDelay()
	if d <= 0 {
		return ctx.Err()
	}
	t := o.clock.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Move thinks, then picks the next coordinate.
func (o *Opponent) Move(ctx context.Context, observed *game.Board) (game.Coord, error) {
	if err := o.Think(ctx); err != nil {
		return game.Coord{}, err
	}
	return o.NextMove(observed), nil
}
