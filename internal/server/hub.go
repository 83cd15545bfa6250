// Package server wires connections to the matchmaking queue, the live-match
// registry and solo sessions, and exposes the HTTP routes.
package server

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/pefman/seabattle/internal/api"
	"github.com/pefman/seabattle/internal/config"
	"github.com/pefman/seabattle/internal/match"
	"github.com/pefman/seabattle/internal/matchlog"
	"github.com/pefman/seabattle/internal/matchmaking"
	"github.com/pefman/seabattle/internal/models"
	"github.com/pefman/seabattle/internal/solo"
	"github.com/pefman/seabattle/internal/stats"
	"github.com/pefman/seabattle/internal/transport"
)

var ErrBusy = errors.New("already searching or playing")

// Conn is a live client connection.
type Conn interface {
	match.Notifier
	Close()
}

// Deps are the outcome collaborators. Any of them may be nil.
type Deps struct {
	Stats    *stats.Store
	MatchLog *matchlog.Log
	Profiles *api.Client
}

type Hub struct {
	log      zerolog.Logger
	deps     Deps
	queue    *matchmaking.Queue
	matches  *match.Registry
	soloOpts []solo.Option

	mu    sync.Mutex
	conns map[string]Conn
	solos map[string]*solo.Session
	wg    sync.WaitGroup
}

type Option func(*hubOptions)

type hubOptions struct {
	clock    clock.Clock
	soloOpts []solo.Option
	matchOps []match.Option
}

// WithClock drives every server-side timer from c.
func WithClock(c clock.Clock) Option {
	return func(o *hubOptions) {
		o.clock = c
		o.soloOpts = append(o.soloOpts, solo.WithClock(c))
	}
}

func WithSoloOptions(opts ...solo.Option) Option {
	return func(o *hubOptions) { o.soloOpts = append(o.soloOpts, opts...) }
}

func WithMatchOptions(opts ...match.Option) Option {
	return func(o *hubOptions) { o.matchOps = append(o.matchOps, opts...) }
}

func NewHub(cfg config.Config, deps Deps, log zerolog.Logger, opts ...Option) *Hub {
	o := hubOptions{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}
	h := &Hub{
		log:      log.With().Str("component", "hub").Logger(),
		deps:     deps,
		soloOpts: o.soloOpts,
		conns:    map[string]Conn{},
		solos:    map[string]*solo.Session{},
	}
	h.queue = matchmaking.New(matchmaking.Config{
		Tolerance: cfg.RatingTolerance,
		Timeout:   cfg.SearchTimeout,
	}, o.clock, h.searchTimedOut, log)

	var recorders []match.Recorder
	if deps.Stats != nil {
		recorders = append(recorders, deps.Stats)
	}
	if deps.MatchLog != nil {
		recorders = append(recorders, deps.MatchLog)
	}
	if deps.Profiles != nil {
		recorders = append(recorders, deps.Profiles)
	}
	mopts := []match.Option{
		match.WithClock(o.clock),
		match.WithTimeouts(match.Timeouts{
			Placement: cfg.PlacementTimeout,
			Turn:      cfg.TurnTimeout,
			Grace:     cfg.DisconnectGrace,
		}),
		match.WithRecorders(recorders...),
	}
	h.matches = match.NewRegistry(log, append(mopts, o.matchOps...)...)
	return h
}

func (h *Hub) Queue() *matchmaking.Queue { return h.queue }
func (h *Hub) Matches() *match.Registry  { return h.matches }

func (h *Hub) conn(user string) Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conns[user]
}

func (h *Hub) send(user, typ string, data any) {
	if c := h.conn(user); c != nil {
		c.Send(models.WsMsg{Type: typ, Data: data})
	}
}

// Attach registers c as user's connection, replacing any older one, and
// resumes a match that is waiting out its grace period.
func (h *Hub) Attach(user string, c Conn) {
	h.mu.Lock()
	old := h.conns[user]
	h.conns[user] = c
	h.mu.Unlock()
	if old != nil && old != c {
		h.log.Info().Str("user", user).Msg("ws: replacing older connection")
		old.Close()
	}

	c.Send(models.WsMsg{Type: models.OutWelcome, Data: models.Welcome{ID: user}})
	if m, ok := h.matches.ByUser(user); ok {
		if err := m.Reconnect(user, c); err != nil {
			h.log.Debug().Err(err).Str("user", user).Msg("ws: reconnect ignored")
		}
	}
}

// Detach is the disconnect path. A stale connection (already replaced by a
// newer one) is ignored.
func (h *Hub) Detach(user string, c Conn) {
	h.mu.Lock()
	if h.conns[user] != c {
		h.mu.Unlock()
		return
	}
	delete(h.conns, user)
	sess := h.solos[user]
	delete(h.solos, user)
	h.mu.Unlock()

	h.queue.Remove(user)
	if sess != nil {
		sess.Close()
	}
	if m, ok := h.matches.ByUser(user); ok {
		_ = m.Disconnect(user)
	}
}

func (h *Hub) searchTimedOut(e matchmaking.Entry) {
	h.send(e.UserID, models.OutSearchTimedOut, models.SearchTimedOut{SuggestAI: true})
}

func (h *Hub) busy(user string) bool {
	if h.queue.Contains(user) {
		return true
	}
	if _, ok := h.matches.ByUser(user); ok {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.solos[user] != nil
}

func (h *Hub) soloOf(user string) *solo.Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.solos[user]
}

func (h *Hub) replyError(user, code string, err error) {
	h.send(user, models.OutError, models.ErrorMsg{Code: code, Message: err.Error()})
}

// Handle dispatches one inbound message from user.
func (h *Hub) Handle(user string, in transport.Inbound) {
	log := h.log.With().Str("user", user).Str("type", in.Type).Logger()
	var err error
	switch in.Type {
	case models.InSearchOpponent:
		err = h.search(user, in)
	case models.InCancelSearch:
		h.queue.Cancel(user)
		h.send(user, models.OutSearchCancelled, nil)
	case models.InPlacementReady:
		var req models.PlacementRequest
		if err = in.Bind(&req); err != nil {
			break
		}
		err = h.withMatch(user, func(m *match.Match) error { return m.SubmitPlacement(user, req.Board) })
	case models.InSubmitShot:
		var req models.ShotRequest
		if err = in.Bind(&req); err != nil {
			break
		}
		err = h.withMatch(user, func(m *match.Match) error { return m.SubmitShot(user, req.Row, req.Col) })
	case models.InLeaveMatch:
		h.queue.Cancel(user)
		err = h.withMatch(user, func(m *match.Match) error { return m.Leave(user) })
	case models.InSoloStart:
		err = h.soloStart(user, in)
	case models.InSoloShot:
		var req models.ShotRequest
		if err = in.Bind(&req); err != nil {
			break
		}
		if s := h.soloOf(user); s != nil {
			err = s.Shot(req.Row, req.Col)
		} else {
			err = match.ErrNotFound
		}
	case models.InSoloLeave:
		if s := h.soloOf(user); s != nil {
			s.Leave()
		}
	default:
		h.send(user, models.OutError, models.ErrorMsg{Code: models.ErrCodeUnknownMessage, Message: in.Type})
		log.Debug().Msg("ws: unknown message")
		return
	}
	if err != nil {
		// protocol violations are dropped; only the log sees them
		log.Debug().Err(err).Msg("ws: message rejected")
	}
}

func (h *Hub) withMatch(user string, fn func(*match.Match) error) error {
	m, ok := h.matches.ByUser(user)
	if !ok {
		return match.ErrNotFound
	}
	return fn(m)
}

func (h *Hub) search(user string, in transport.Inbound) error {
	var req models.SearchRequest
	if err := in.Bind(&req); err != nil {
		h.replyError(user, models.ErrCodeBadRequest, err)
		return err
	}
	if _, ok := h.matches.ByUser(user); ok || h.soloOf(user) != nil {
		h.replyError(user, models.ErrCodeBusy, ErrBusy)
		return ErrBusy
	}

	for {
		opp, paired := h.queue.Search(matchmaking.Entry{UserID: user, Rating: req.Rating})
		if !paired {
			h.send(user, models.OutSearchingStarted, nil)
			return nil
		}
		oc, me := h.conn(opp.UserID), h.conn(user)
		if me == nil {
			// we went away mid-search; put the opponent back
			h.queue.Requeue(opp)
			return nil
		}
		if oc == nil {
			continue
		}
		m := h.matches.Create(
			match.Participant{UserID: opp.UserID, Rating: opp.Rating, Conn: oc},
			match.Participant{UserID: user, Rating: req.Rating, Conn: me},
		)
		h.resync(m, opp.UserID, oc)
		h.resync(m, user, me)
		return nil
	}
}

// resync catches a seat whose connection changed between pairing and match
// creation: a detach in that window never saw the match, an attach never
// resumed it.
func (h *Hub) resync(m *match.Match, user string, c Conn) {
	cur := h.conn(user)
	switch {
	case cur == c:
		return
	case cur == nil:
		h.log.Info().Str("user", user).Str("match", m.ID).Msg("ws: left while pairing")
		_ = m.Disconnect(user)
	default:
		_ = m.Reconnect(user, cur)
	}
}

func (h *Hub) soloStart(user string, in transport.Inbound) error {
	var req models.SoloStartRequest
	if err := in.Bind(&req); err != nil {
		h.replyError(user, models.ErrCodeBadRequest, err)
		return err
	}
	if h.busy(user) {
		h.replyError(user, models.ErrCodeBusy, ErrBusy)
		return ErrBusy
	}
	c := h.conn(user)
	if c == nil {
		return match.ErrNotFound
	}
	opts := append([]solo.Option{solo.WithFinishHook(h.soloFinished(user))}, h.soloOpts...)
	s, err := solo.Start(user, c, req, h.log, opts...)
	if err != nil {
		code := models.ErrCodeBadRequest
		if errors.Is(err, match.ErrInvalidBoard) {
			code = models.ErrCodeInvalidBoard
		}
		h.replyError(user, code, err)
		return err
	}
	h.mu.Lock()
	h.solos[user] = s
	h.mu.Unlock()
	return nil
}

// soloFinished drops the session and hands the game to the match log. Solo
// games never touch ratings.
func (h *Hub) soloFinished(user string) func(match.Outcome) {
	return func(o match.Outcome) {
		h.mu.Lock()
		if s := h.solos[user]; s != nil && s.ID == o.MatchID {
			delete(h.solos, user)
		}
		h.mu.Unlock()
		if h.deps.MatchLog == nil {
			return
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if err := h.deps.MatchLog.Record(context.Background(), o); err != nil {
				h.log.Warn().Err(err).Str("solo", o.MatchID).Msg("solo: match log failed")
			}
		}()
	}
}

// Close aborts live matches and solo sessions and waits for recorders.
func (h *Hub) Close() {
	h.mu.Lock()
	solos := make([]*solo.Session, 0, len(h.solos))
	for _, s := range h.solos {
		solos = append(solos, s)
	}
	h.mu.Unlock()
	for _, s := range solos {
		s.Close()
	}
	h.matches.Close()
	h.wg.Wait()
}
