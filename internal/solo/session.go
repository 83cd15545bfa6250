// Package solo runs single-player games: a human fires at a server-generated
// fleet while an AI opponent fires back after a think delay.
package solo

import (
	"context"
	"math/rand"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pefman/seabattle/internal/ai"
	"github.com/pefman/seabattle/internal/engine"
	"github.com/pefman/seabattle/internal/game"
	"github.com/pefman/seabattle/internal/match"
	"github.com/pefman/seabattle/internal/metrics"
	"github.com/pefman/seabattle/internal/models"
)

// AIName is the player id the AI uses in outcomes and finish messages.
func AIName(d ai.Difficulty) string { return "ai:" + string(d) }

type Session struct {
	ID   string
	User string

	mu        sync.Mutex
	conn      match.Notifier
	opp       *ai.Opponent
	own       game.Board // the human's fleet, fired at by the AI
	target    game.Board // the AI's fleet
	humanTurn bool
	finished  bool
	moves     []match.Move

	clock    clock.Clock
	rng      *rand.Rand
	think    bool
	log      zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	onFinish func(match.Outcome)
	outcome  match.Outcome
}

type Option func(*Session)

func WithClock(c clock.Clock) Option { return func(s *Session) { s.clock = c } }

func WithRNG(r *rand.Rand) Option { return func(s *Session) { s.rng = r } }

// WithoutThinking makes the AI answer immediately.
func WithoutThinking() Option { return func(s *Session) { s.think = false } }

// WithFinishHook is called once, outside the session lock, when the game ends.
func WithFinishHook(fn func(match.Outcome)) Option { return func(s *Session) { s.onFinish = fn } }

// Start validates the request, deals the AI fleet and announces the game.
// A missing board is replaced by a random fleet.
func Start(user string, conn match.Notifier, req models.SoloStartRequest, log zerolog.Logger, opts ...Option) (*Session, error) {
	d, err := ai.ParseDifficulty(req.Difficulty)
	if err != nil {
		return nil, err
	}
	s := &Session{
		ID:        uuid.NewString(),
		User:      user,
		conn:      conn,
		humanTurn: true,
		clock:     clock.New(),
		think:     true,
		onFinish:  func(match.Outcome) {},
	}
	for _, o := range opts {
		o(s)
	}
	if s.rng == nil {
		s.rng = engine.NewRNG()
	}
	if req.Board != nil {
		if err := req.Board.ValidateFleet(); err != nil {
			return nil, errors.Wrap(match.ErrInvalidBoard, err.Error())
		}
		s.own = *req.Board
	} else {
		s.own = game.GenerateRandomBoard(s.rng)
	}
	s.target = game.GenerateRandomBoard(s.rng)

	aopts := []ai.OpponentOption{ai.WithClock(s.clock)}
	if !s.think {
		aopts = append(aopts, ai.WithoutThinking())
	}
	if s.opp, err = ai.NewOpponent(d, s.rng, aopts...); err != nil {
		return nil, err
	}
	s.log = log.With().Str("solo", s.ID).Str("user", user).Str("difficulty", string(d)).Logger()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.outcome = match.Outcome{
		MatchID: s.ID,
		Players: [2]string{user, AIName(d)},
		Started: s.clock.Now(),
	}

	metrics.SoloSessions.Inc()
	s.conn.Send(models.WsMsg{Type: models.OutSoloStarted, Data: models.SoloStarted{
		Difficulty: string(d), YourTurn: true, Board: s.own,
	}})
	s.log.Info().Msg("solo: started")
	return s, nil
}

func (s *Session) Difficulty() ai.Difficulty { return s.opp.Difficulty() }

// Shot fires the human's shot at the AI fleet.
func (s *Session) Shot(row, col int) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return match.ErrFinished
	}
	if !s.humanTurn {
		s.mu.Unlock()
		return match.ErrNotYourTurn
	}
	if !game.InBounds(row, col) {
		s.mu.Unlock()
		return match.ErrOutOfBounds
	}
	if s.target.IsShot(row, col) {
		s.mu.Unlock()
		return match.ErrCellShot
	}

	res := s.target.MakeShot(row, col)
	over := s.target.IsGameOver()
	s.record(s.User, row, col, res)
	metrics.Shots.WithLabelValues(metrics.ShotResult(res.Hit), "player").Inc()
	s.send(models.OutShotResult, models.ShotResult{Row: row, Col: col, Hit: res.Hit, Sunk: res.Sunk, GameOver: over, IsOwnShot: true})

	var done bool
	switch {
	case over:
		done = s.finishLocked(s.User, match.ReasonFleetDestroyed)
	case !res.Hit:
		s.humanTurn = false
		s.send(models.OutTurnChanged, models.TurnChanged{IsYourTurn: false})
		go s.aiTurn()
	}
	s.mu.Unlock()
	if done {
		s.onFinish(s.outcome)
	}
	return nil
}

// aiTurn keeps firing while the AI hits.
func (s *Session) aiTurn() {
	for {
		c, err := s.opp.Move(s.ctx, nil)
		if err != nil {
			return
		}

		s.mu.Lock()
		if s.finished {
			s.mu.Unlock()
			return
		}
		if s.own.IsShot(c.Row, c.Col) {
			// strategies never repeat a cell; guard anyway so the game cannot stall
			s.log.Warn().Int("row", c.Row).Int("col", c.Col).Msg("solo: ai picked a resolved cell")
			cells := s.own.UnshotCells()
			c = cells[s.rng.Intn(len(cells))]
		}
		res := s.own.MakeShot(c.Row, c.Col)
		s.opp.ProcessShotResult(c.Row, c.Col, res.Hit, res.Sunk)
		over := s.own.IsGameOver()
		s.record(s.outcome.Players[1], c.Row, c.Col, res)
		metrics.Shots.WithLabelValues(metrics.ShotResult(res.Hit), "ai").Inc()
		s.send(models.OutShotResult, models.ShotResult{Row: c.Row, Col: c.Col, Hit: res.Hit, Sunk: res.Sunk, GameOver: over})

		if over {
			done := s.finishLocked(s.outcome.Players[1], match.ReasonFleetDestroyed)
			s.mu.Unlock()
			if done {
				s.onFinish(s.outcome)
			}
			return
		}
		if !res.Hit {
			s.humanTurn = true
			s.send(models.OutTurnChanged, models.TurnChanged{IsYourTurn: true})
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
	}
}

// Leave concedes the game to the AI.
func (s *Session) Leave() {
	s.mu.Lock()
	done := s.finishLocked(s.outcome.Players[1], match.ReasonLeft)
	s.mu.Unlock()
	if done {
		s.onFinish(s.outcome)
	}
}

// Close stops the session without notifying the player, e.g. on disconnect.
func (s *Session) Close() {
	s.mu.Lock()
	s.conn = nil
	done := s.finishLocked(s.outcome.Players[1], match.ReasonDisconnected)
	s.mu.Unlock()
	if done {
		s.onFinish(s.outcome)
	}
}

func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *Session) HumanTurn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.humanTurn && !s.finished
}

func (s *Session) Moves() []match.Move {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]match.Move(nil), s.moves...)
}

func (s *Session) record(mover string, row, col int, res game.ShotResult) {
	s.moves = append(s.moves, match.Move{Mover: mover, Row: row, Col: col, Hit: res.Hit, Sunk: res.Sunk, At: s.clock.Now()})
}

func (s *Session) send(typ string, data any) {
	if s.conn != nil {
		s.conn.Send(models.WsMsg{Type: typ, Data: data})
	}
}

func (s *Session) finishLocked(winner string, reason match.Reason) bool {
	if s.finished {
		return false
	}
	s.finished = true
	s.cancel()
	s.send(models.OutMatchFinished, models.MatchFinished{Winner: winner, IsWinner: winner == s.User, Reason: string(reason)})

	s.outcome.Winner = winner
	s.outcome.Loser = s.outcome.Players[0]
	if winner == s.User {
		s.outcome.Loser = s.outcome.Players[1]
	}
	s.outcome.Reason = reason
	s.outcome.Moves = append([]match.Move(nil), s.moves...)
	s.outcome.Finished = s.clock.Now()

	metrics.SoloSessions.Dec()
	s.log.Info().Str("winner", winner).Str("reason", string(reason)).Int("moves", len(s.moves)).Msg("solo: finished")
	return true
}
