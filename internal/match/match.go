// Package match runs one paired game end to end: placement, alternating fire,
// placement and turn timers, disconnect grace and cleanup.
package match

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pefman/seabattle/internal/game"
	"github.com/pefman/seabattle/internal/metrics"
	"github.com/pefman/seabattle/internal/models"
)

var (
	ErrNotFound       = errors.New("match not found")
	ErrNotParticipant = errors.New("not a participant of this match")
	ErrWrongPhase     = errors.New("operation not allowed in this phase")
	ErrAlreadyReady   = errors.New("placement already submitted")
	ErrInvalidBoard   = errors.New("invalid board")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrOutOfBounds    = errors.New("cell out of bounds")
	ErrCellShot       = errors.New("cell already shot")
	ErrFinished       = errors.New("match already finished")
	ErrAborted        = errors.New("match aborted")
)

type Status string

const (
	StatusPlacement Status = "placement"
	StatusPlaying   Status = "playing"
	StatusFinished  Status = "finished"
)

// Notifier is the outbound side of a connection. Send must not block.
type Notifier interface {
	Send(msg models.WsMsg)
}

type Participant struct {
	UserID string
	Rating int
	Conn   Notifier
}

type Timeouts struct {
	Placement time.Duration
	Turn      time.Duration
	Grace     time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Placement: 30 * time.Second, Turn: 30 * time.Second, Grace: 10 * time.Second}
}

type seat struct {
	Participant
	board     *game.Board
	ready     bool
	connected bool
	grace     *clock.Timer
	graceGen  uint64
}

// Match holds both seats. Seat 0 is player 1 and fires first.
type Match struct {
	ID string

	mu       sync.Mutex
	clock    clock.Clock
	rng      *rand.Rand
	log      zerolog.Logger
	timeouts Timeouts

	seats    [2]*seat
	status   Status
	turn     int
	moves    []Move
	phase    *clock.Timer
	phaseGen uint64

	created  time.Time
	finished time.Time
	winner   string
	reason   Reason

	validate func(*game.Board) error
	pending  *Outcome
	onFinish func(*Match, Outcome)
}

func newMatch(id string, p1, p2 Participant, t Timeouts, clk clock.Clock, rng *rand.Rand, log zerolog.Logger, onFinish func(*Match, Outcome)) *Match {
	if onFinish == nil {
		onFinish = func(*Match, Outcome) {}
	}
	return &Match{
		ID:       id,
		clock:    clk,
		rng:      rng,
		log:      log.With().Str("match", id).Logger(),
		timeouts: t,
		seats: [2]*seat{
			{Participant: p1, connected: true},
			{Participant: p2, connected: true},
		},
		status:   StatusPlacement,
		created:  clk.Now(),
		validate: (*game.Board).ValidateFleet,
		onFinish: onFinish,
	}
}

// do serialises an operation on the match. A panic aborts this match only.
// The finish hook runs after the lock is released.
func (m *Match) do(op string, fn func() error) (err error) {
	m.mu.Lock()
	func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error().Str("op", op).Interface("panic", r).Msg("room: recovered from panic, aborting")
				m.finishLocked("", ReasonAborted)
				err = ErrAborted
			}
		}()
		err = fn()
	}()
	done := m.pending
	m.pending = nil
	m.mu.Unlock()

	if done != nil {
		m.onFinish(m, *done)
	}
	return err
}

func (m *Match) start() {
	_ = m.do("start", func() error {
		for i, s := range m.seats {
			opp := m.seats[1-i]
			send(s.Conn, models.OutOpponentFound, models.OpponentFound{
				MatchID:   m.ID,
				Opponent:  models.OpponentSummary{ID: opp.UserID, Rating: opp.Rating},
				IsPlayer1: i == 0,
			})
		}
		m.armPhase("placement", m.timeouts.Placement, m.placementTimeoutLocked)
		m.log.Info().Str("p1", m.seats[0].UserID).Str("p2", m.seats[1].UserID).Msg("room: created, waiting for placement")
		return nil
	})
}

func send(n Notifier, typ string, data any) {
	if n == nil {
		return
	}
	n.Send(models.WsMsg{Type: typ, Data: data})
}

func (m *Match) seatOf(user string) (int, error) {
	for i, s := range m.seats {
		if s.UserID == user {
			return i, nil
		}
	}
	return -1, ErrNotParticipant
}

// armPhase replaces the phase timer. A callback whose generation is stale
// (it lost the race for the lock to a re-arm or a finish) does nothing.
func (m *Match) armPhase(name string, d time.Duration, fn func()) {
	m.stopPhase()
	gen := m.phaseGen
	m.phase = m.clock.AfterFunc(d, func() {
		_ = m.do(name+"-timeout", func() error {
			if m.phaseGen != gen || m.status == StatusFinished {
				return nil
			}
			fn()
			return nil
		})
	})
}

func (m *Match) stopPhase() {
	if m.phase != nil {
		m.phase.Stop()
		m.phase = nil
	}
	m.phaseGen++
}

// SubmitPlacement records a participant's fleet. Invalid boards are answered
// with an invalid-board error and may be resubmitted until the timer fires.
func (m *Match) SubmitPlacement(user string, board game.Board) error {
	return m.do("placement", func() error {
		idx, err := m.seatOf(user)
		if err != nil {
			return err
		}
		if m.status != StatusPlacement {
			return ErrWrongPhase
		}
		s := m.seats[idx]
		if s.ready {
			return ErrAlreadyReady
		}
		if verr := m.validate(&board); verr != nil {
			send(s.Conn, models.OutError, models.ErrorMsg{Code: models.ErrCodeInvalidBoard, Message: verr.Error()})
			return errors.Wrap(ErrInvalidBoard, verr.Error())
		}
		b := board
		s.board = &b
		s.ready = true
		m.log.Debug().Str("user", user).Msg("room: placement ready")

		if m.seats[0].ready && m.seats[1].ready {
			m.beginPlayLocked()
		}
		return nil
	})
}

func (m *Match) beginPlayLocked() {
	m.status = StatusPlaying
	m.turn = 0
	first := m.seats[0].UserID
	for i, s := range m.seats {
		send(s.Conn, models.OutMatchStarted, models.MatchStarted{CurrentTurn: first, IsYourTurn: i == 0})
	}
	m.armPhase("turn", m.timeouts.Turn, m.turnTimeoutLocked)
	m.log.Info().Str("first", first).Msg("room: both fleets placed, battle started")
}

func (m *Match) placementTimeoutLocked() {
	if m.status != StatusPlacement {
		return
	}
	winner := ""
	for i, s := range m.seats {
		if s.ready {
			continue
		}
		opp := m.seats[1-i]
		send(s.Conn, models.OutPlacementTimedOut, struct{}{})
		if opp.ready {
			winner = opp.UserID
			send(opp.Conn, models.OutOpponentTimedOut, models.WinnerNotice{Winner: opp.UserID})
		}
	}
	m.log.Info().Str("winner", winner).Msg("room: placement timed out")
	m.finishLocked(winner, ReasonPlacementTimeout)
}

// SubmitShot fires at the opponent's board. Shots out of turn, out of bounds
// or at resolved cells are dropped and reported to the caller only.
func (m *Match) SubmitShot(user string, row, col int) error {
	return m.do("shot", func() error {
		idx, err := m.seatOf(user)
		if err != nil {
			return err
		}
		if m.status != StatusPlaying {
			return ErrWrongPhase
		}
		if idx != m.turn {
			return ErrNotYourTurn
		}
		if !game.InBounds(row, col) {
			return ErrOutOfBounds
		}
		if m.seats[1-idx].board.IsShot(row, col) {
			return ErrCellShot
		}
		m.fireLocked(idx, row, col, false)
		return nil
	})
}

func (m *Match) fireLocked(idx, row, col int, auto bool) {
	shooter, target := m.seats[idx], m.seats[1-idx]
	res := target.board.MakeShot(row, col)
	over := target.board.IsGameOver()

	m.moves = append(m.moves, Move{
		Mover: shooter.UserID, Row: row, Col: col,
		Hit: res.Hit, Sunk: res.Sunk, Auto: auto, At: m.clock.Now(),
	})
	origin := "player"
	if auto {
		origin = "auto"
	}
	metrics.Shots.WithLabelValues(metrics.ShotResult(res.Hit), origin).Inc()

	out := models.ShotResult{Row: row, Col: col, Hit: res.Hit, Sunk: res.Sunk, GameOver: over}
	out.IsOwnShot = true
	send(shooter.Conn, models.OutShotResult, out)
	out.IsOwnShot = false
	send(target.Conn, models.OutShotResult, out)

	if over {
		m.finishLocked(shooter.UserID, ReasonFleetDestroyed)
		return
	}
	if !res.Hit {
		m.turn = 1 - idx
		for i, s := range m.seats {
			send(s.Conn, models.OutTurnChanged, models.TurnChanged{IsYourTurn: i == m.turn})
		}
	}
	m.armPhase("turn", m.timeouts.Turn, m.turnTimeoutLocked)
}

func (m *Match) turnTimeoutLocked() {
	if m.status != StatusPlaying {
		return
	}
	idx := m.turn
	cells := m.seats[1-idx].board.UnshotCells()
	if len(cells) == 0 {
		panic(fmt.Sprintf("no unshot cells left on %s's board", m.seats[1-idx].UserID))
	}
	c := cells[m.rng.Intn(len(cells))]
	m.log.Info().Str("user", m.seats[idx].UserID).Int("row", c.Row).Int("col", c.Col).Msg("room: turn timed out, auto shot")
	send(m.seats[idx].Conn, models.OutShotTimedOut, models.ShotTimedOut{AutoMove: c})
	m.fireLocked(idx, c.Row, c.Col, true)
}

// Leave forfeits the match in favour of the opponent.
func (m *Match) Leave(user string) error {
	return m.do("leave", func() error {
		idx, err := m.seatOf(user)
		if err != nil {
			return err
		}
		if m.status == StatusFinished {
			return ErrFinished
		}
		opp := m.seats[1-idx]
		send(opp.Conn, models.OutOpponentLeft, models.WinnerNotice{Winner: opp.UserID})
		m.log.Info().Str("user", user).Msg("room: player left")
		m.finishLocked(opp.UserID, ReasonLeft)
		return nil
	})
}

// Disconnect starts the grace window for user. If they have not reconnected
// when it elapses the opponent wins.
func (m *Match) Disconnect(user string) error {
	return m.do("disconnect", func() error {
		idx, err := m.seatOf(user)
		if err != nil {
			return err
		}
		if m.status == StatusFinished {
			return ErrFinished
		}
		s := m.seats[idx]
		s.connected = false
		s.Conn = nil
		if s.grace != nil {
			s.grace.Stop()
		}
		s.graceGen++
		gen := s.graceGen
		s.grace = m.clock.AfterFunc(m.timeouts.Grace, func() {
			_ = m.do("grace-timeout", func() error {
				if m.status == StatusFinished || s.connected || s.graceGen != gen {
					return nil
				}
				opp := m.seats[1-idx]
				send(opp.Conn, models.OutOpponentDisconnected, models.WinnerNotice{Winner: opp.UserID})
				m.log.Info().Str("user", s.UserID).Msg("room: grace expired, forfeit")
				m.finishLocked(opp.UserID, ReasonDisconnected)
				return nil
			})
		})
		m.log.Info().Str("user", user).Dur("grace", m.timeouts.Grace).Msg("room: player disconnected")
		return nil
	})
}

// Reconnect attaches a new connection within the grace window and replays
// the current state to it.
func (m *Match) Reconnect(user string, conn Notifier) error {
	return m.do("reconnect", func() error {
		idx, err := m.seatOf(user)
		if err != nil {
			return err
		}
		if m.status == StatusFinished {
			return ErrFinished
		}
		s, opp := m.seats[idx], m.seats[1-idx]
		s.Conn = conn
		s.connected = true
		if s.grace != nil {
			s.grace.Stop()
			s.grace = nil
		}
		s.graceGen++

		state := models.MatchResumed{
			MatchID:    m.ID,
			Status:     string(m.status),
			Opponent:   models.OpponentSummary{ID: opp.UserID, Rating: opp.Rating},
			IsPlayer1:  idx == 0,
			Ready:      s.ready,
			IsYourTurn: m.status == StatusPlaying && m.turn == idx,
		}
		if s.board != nil {
			own := *s.board
			state.Own = &own
		}
		if opp.board != nil {
			masked := opp.board.Masked()
			state.Target = &masked
		}
		send(conn, models.OutMatchResumed, state)
		m.log.Info().Str("user", user).Msg("room: player reconnected")
		return nil
	})
}

// Abort finishes the match with no winner, e.g. on server shutdown.
func (m *Match) Abort() {
	_ = m.do("abort", func() error {
		m.finishLocked("", ReasonAborted)
		return nil
	})
}

func (m *Match) finishLocked(winner string, reason Reason) {
	if m.status == StatusFinished {
		return
	}
	m.status = StatusFinished
	m.finished = m.clock.Now()
	m.winner = winner
	m.reason = reason
	m.stopPhase()
	for _, s := range m.seats {
		if s.grace != nil {
			s.grace.Stop()
			s.grace = nil
		}
		s.graceGen++
	}
	for _, s := range m.seats {
		send(s.Conn, models.OutMatchFinished, models.MatchFinished{
			Winner:   winner,
			IsWinner: winner != "" && s.UserID == winner,
			Reason:   string(reason),
		})
	}

	o := Outcome{
		MatchID:  m.ID,
		Players:  [2]string{m.seats[0].UserID, m.seats[1].UserID},
		Ratings:  [2]int{m.seats[0].Rating, m.seats[1].Rating},
		Winner:   winner,
		Reason:   reason,
		Moves:    append([]Move(nil), m.moves...),
		Started:  m.created,
		Finished: m.finished,
	}
	if winner != "" {
		for _, s := range m.seats {
			if s.UserID != winner {
				o.Loser = s.UserID
			}
		}
	}
	m.pending = &o
	metrics.MatchesFinished.WithLabelValues(string(reason)).Inc()
	m.log.Info().Str("winner", winner).Str("reason", string(reason)).Int("moves", len(m.moves)).Msg("room: finished")
}

func (m *Match) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Players returns the user ids in seat order.
func (m *Match) Players() [2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return [2]string{m.seats[0].UserID, m.seats[1].UserID}
}

func (m *Match) Moves() []Move {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Move(nil), m.moves...)
}

// View summarises the match for /debug/matches.
func (m *Match) View() models.MatchView {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := models.MatchView{
		ID:      m.ID,
		Status:  string(m.status),
		Players: []string{m.seats[0].UserID, m.seats[1].UserID},
		Moves:   len(m.moves),
		Created: m.created.Unix(),
	}
	if m.status == StatusPlaying {
		v.Turn = m.seats[m.turn].UserID
	}
	return v
}
