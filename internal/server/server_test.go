package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/pefman/seabattle/internal/config"
	"github.com/pefman/seabattle/internal/game"
	"github.com/pefman/seabattle/internal/match"
	"github.com/pefman/seabattle/internal/matchlog"
	"github.com/pefman/seabattle/internal/models"
	"github.com/pefman/seabattle/internal/solo"
	"github.com/pefman/seabattle/internal/stats"
	"github.com/pefman/seabattle/internal/transport"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   []models.WsMsg
	closed bool
}

func (c *fakeConn) Send(m models.WsMsg) {
	c.mu.Lock()
	c.msgs = append(c.msgs, m)
	c.mu.Unlock()
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) has(typ string) bool {
	_, ok := c.last(typ)
	return ok
}

func (c *fakeConn) last(typ string) (models.WsMsg, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.msgs) - 1; i >= 0; i-- {
		if c.msgs[i].Type == typ {
			return c.msgs[i], true
		}
	}
	return models.WsMsg{}, false
}

func inbound(t *testing.T, raw string) transport.Inbound {
	t.Helper()
	in, err := transport.JSON{}.Decode([]byte(raw))
	require.NoError(t, err)
	return in
}

func newHub(t *testing.T, opts ...Option) (*Hub, Deps) {
	t.Helper()
	ml, err := matchlog.New("", zerolog.Nop())
	require.NoError(t, err)
	deps := Deps{Stats: stats.NewStore(nil), MatchLog: ml}
	h := NewHub(config.Default(), deps, zerolog.Nop(), opts...)
	t.Cleanup(h.Close)
	return h, deps
}

func TestSearchTimesOutWithAISuggestion(t *testing.T) {
	mock := clock.NewMock()
	h, _ := newHub(t, WithClock(mock))
	a := &fakeConn{}
	h.Attach("a", a)
	assert.True(t, a.has(models.OutWelcome))

	h.Handle("a", inbound(t, `{"type":"search-opponent","data":{"rating":1000}}`))
	assert.True(t, a.has(models.OutSearchingStarted))
	assert.Len(t, h.Queue().Snapshot(), 1)

	mock.Add(30 * time.Second)
	require.Eventually(t, func() bool { return a.has(models.OutSearchTimedOut) }, time.Second, 5*time.Millisecond)
	m, _ := a.last(models.OutSearchTimedOut)
	assert.True(t, m.Data.(models.SearchTimedOut).SuggestAI)
	assert.Equal(t, 0, h.Queue().Len())
}

func TestCancelAndUnknown(t *testing.T) {
	h, _ := newHub(t)
	a := &fakeConn{}
	h.Attach("a", a)

	h.Handle("a", inbound(t, `{"type":"search-opponent","data":{"rating":1000}}`))
	h.Handle("a", inbound(t, `{"type":"cancel-search"}`))
	assert.True(t, a.has(models.OutSearchCancelled))
	assert.Equal(t, 0, h.Queue().Len())

	h.Handle("a", inbound(t, `{"type":"fire-torpedo"}`))
	m, ok := a.last(models.OutError)
	require.True(t, ok)
	assert.Equal(t, models.ErrCodeUnknownMessage, m.Data.(models.ErrorMsg).Code)
}

func TestPairingAndReconnect(t *testing.T) {
	h, _ := newHub(t)
	a, b := &fakeConn{}, &fakeConn{}
	h.Attach("a", a)
	h.Attach("b", b)

	h.Handle("a", inbound(t, `{"type":"search-opponent","data":{"rating":1000}}`))
	h.Handle("b", inbound(t, `{"type":"search-opponent","data":{"rating":1190}}`))
	require.True(t, a.has(models.OutOpponentFound))
	found, _ := b.last(models.OutOpponentFound)
	assert.False(t, found.Data.(models.OpponentFound).IsPlayer1)
	assert.Equal(t, 1, h.Matches().Len())

	// busy users cannot start a solo game
	h.Handle("a", inbound(t, `{"type":"solo-start","data":{"difficulty":"easy"}}`))
	e, ok := a.last(models.OutError)
	require.True(t, ok)
	assert.Equal(t, models.ErrCodeBusy, e.Data.(models.ErrorMsg).Code)

	h.Detach("a", a)
	a2 := &fakeConn{}
	h.Attach("a", a2)
	require.True(t, a2.has(models.OutMatchResumed))

	// the first connection is stale now
	h.Detach("a", a)
	h.Handle("b", inbound(t, `{"type":"leave-match"}`))
	assert.True(t, a2.has(models.OutOpponentLeft))
	assert.Equal(t, 0, h.Matches().Len())
}

func TestOpponentRequeuedWhenSearcherIsGone(t *testing.T) {
	h, _ := newHub(t)
	a := &fakeConn{}
	h.Attach("a", a)
	h.Handle("a", inbound(t, `{"type":"search-opponent","data":{"rating":1000}}`))

	// "ghost" has no connection, so the pairing cannot be used
	h.Handle("ghost", inbound(t, `{"type":"search-opponent","data":{"rating":1100}}`))
	snap := h.Queue().Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].ID)
	assert.Equal(t, 0, h.Matches().Len())
	assert.False(t, a.has(models.OutOpponentFound))
}

func TestSeatDroppedWhilePairingGetsGrace(t *testing.T) {
	mock := clock.NewMock()
	h, _ := newHub(t, WithClock(mock))
	a, b := &fakeConn{}, &fakeConn{}
	h.Attach("a", a)
	h.Attach("b", b)

	// a leaves after being handed out by the queue but before the match exists
	h.Detach("a", a)
	m := h.matches.Create(
		match.Participant{UserID: "a", Rating: 1000, Conn: a},
		match.Participant{UserID: "b", Rating: 1000, Conn: b},
	)
	h.resync(m, "a", a)
	h.resync(m, "b", b)

	mock.Add(10 * time.Second)
	require.Eventually(t, func() bool { return b.has(models.OutOpponentDisconnected) }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return h.Matches().Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSeatReplacedWhilePairingIsResumed(t *testing.T) {
	h, _ := newHub(t)
	a1, a2, b := &fakeConn{}, &fakeConn{}, &fakeConn{}
	h.Attach("a", a1)
	h.Attach("b", b)
	h.Attach("a", a2)

	m := h.matches.Create(
		match.Participant{UserID: "a", Rating: 1000, Conn: a1},
		match.Participant{UserID: "b", Rating: 1000, Conn: b},
	)
	h.resync(m, "a", a1)
	assert.True(t, a2.has(models.OutMatchResumed))
}

func TestAttachReplacesOlderConnection(t *testing.T) {
	h, _ := newHub(t)
	a1, a2 := &fakeConn{}, &fakeConn{}
	h.Attach("a", a1)
	h.Attach("a", a2)
	a1.mu.Lock()
	defer a1.mu.Unlock()
	assert.True(t, a1.closed)
}

func TestSoloThroughHub(t *testing.T) {
	h, deps := newHub(t, WithSoloOptions(solo.WithoutThinking()))
	a := &fakeConn{}
	h.Attach("a", a)

	h.Handle("a", inbound(t, `{"type":"solo-start","data":{"difficulty":"hard"}}`))
	require.True(t, a.has(models.OutSoloStarted))

	h.Handle("a", inbound(t, `{"type":"search-opponent","data":{"rating":1000}}`))
	assert.Equal(t, 0, h.Queue().Len())

	h.Handle("a", inbound(t, `{"type":"solo-leave"}`))
	fin, ok := a.last(models.OutMatchFinished)
	require.True(t, ok)
	assert.Equal(t, "ai:hard", fin.Data.(models.MatchFinished).Winner)
	require.Eventually(t, func() bool { return deps.MatchLog.Len() == 1 }, time.Second, 5*time.Millisecond)

	// a new game is allowed once the old one is over
	h.Handle("a", inbound(t, `{"type":"solo-start","data":{"difficulty":"easy"}}`))
	assert.NotNil(t, h.soloOf("a"))
}

func TestSoloInvalidBoard(t *testing.T) {
	h, _ := newHub(t)
	a := &fakeConn{}
	h.Attach("a", a)
	h.Handle("a", inbound(t, `{"type":"solo-start","data":{"difficulty":"easy","board":[[1]]}}`))
	m, ok := a.last(models.OutError)
	require.True(t, ok)
	assert.Equal(t, models.ErrCodeInvalidBoard, m.Data.(models.ErrorMsg).Code)
}

// ---- end to end over real websockets ----

type wsPeer struct {
	t  *testing.T
	ws *websocket.Conn
}

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, user string) *wsPeer {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=" + user
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	p := &wsPeer{t: t, ws: ws}
	p.expect(models.OutWelcome)
	return p
}

func (p *wsPeer) send(typ string, data any) {
	require.NoError(p.t, p.ws.WriteJSON(map[string]any{"type": typ, "data": data}))
}

// expect skips frames until one of type typ arrives.
func (p *wsPeer) expect(typ string) json.RawMessage {
	p.t.Helper()
	_ = p.ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var f frame
		require.NoError(p.t, p.ws.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == typ {
			return f.Data
		}
	}
}

func TestWebSocketMatchEndToEnd(t *testing.T) {
	h, _ := newHub(t)
	srv := httptest.NewServer(h.Router(BuildInfo{Version: "test"}))
	defer srv.Close()

	a, b := dial(t, srv, "alice"), dial(t, srv, "bob")
	a.send(models.InSearchOpponent, models.SearchRequest{Rating: 1000})
	a.expect(models.OutSearchingStarted)

	resp, err := http.Get(srv.URL + "/lobby")
	require.NoError(t, err)
	var lobby []models.LobbyEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&lobby))
	resp.Body.Close()
	require.Len(t, lobby, 1)
	assert.Equal(t, "alice", lobby[0].ID)

	b.send(models.InSearchOpponent, models.SearchRequest{Rating: 1190})
	var found models.OpponentFound
	require.NoError(t, json.Unmarshal(a.expect(models.OutOpponentFound), &found))
	assert.True(t, found.IsPlayer1)
	assert.Equal(t, "bob", found.Opponent.ID)
	b.expect(models.OutOpponentFound)

	board := game.FirstFitBoard()
	a.send(models.InPlacementReady, models.PlacementRequest{Board: board})
	b.send(models.InPlacementReady, models.PlacementRequest{Board: board})
	var started models.MatchStarted
	require.NoError(t, json.Unmarshal(a.expect(models.OutMatchStarted), &started))
	assert.True(t, started.IsYourTurn)
	assert.Equal(t, "alice", started.CurrentTurn)

	a.send(models.InSubmitShot, models.ShotRequest{Row: 0, Col: 0})
	var shot models.ShotResult
	require.NoError(t, json.Unmarshal(b.expect(models.OutShotResult), &shot))
	assert.True(t, shot.Hit)
	assert.False(t, shot.IsOwnShot)

	resp, err = http.Get(srv.URL + "/debug/matches")
	require.NoError(t, err)
	var views []models.MatchView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&views))
	resp.Body.Close()
	require.Len(t, views, 1)
	assert.Equal(t, found.MatchID, views[0].ID)
	assert.Equal(t, 1, views[0].Moves)

	require.NoError(t, a.ws.Close())
	b.send(models.InLeaveMatch, nil)
	var fin models.MatchFinished
	require.NoError(t, json.Unmarshal(b.expect(models.OutMatchFinished), &fin))
	assert.Equal(t, "alice", fin.Winner)
	assert.False(t, fin.IsWinner)

	require.Eventually(t, func() bool {
		r, err := http.Get(srv.URL + "/api/matches/" + found.MatchID)
		if err != nil {
			return false
		}
		defer r.Body.Close()
		return r.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSoloOverMsgpack(t *testing.T) {
	h, _ := newHub(t, WithSoloOptions(solo.WithoutThinking()))
	srv := httptest.NewServer(h.Router(BuildInfo{Version: "test"}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?user=carol&codec=msgpack"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	board := game.FirstFitBoard()
	rows := make([][]int, game.Size)
	for r := range rows {
		rows[r] = make([]int, game.Size)
		for c := range rows[r] {
			rows[r][c] = int(board[r][c])
		}
	}
	out, err := msgpack.Marshal(map[string]any{
		"type": models.InSoloStart,
		"data": map[string]any{"difficulty": "easy", "board": rows},
	})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.BinaryMessage, out))

	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		kind, raw, err := ws.ReadMessage()
		require.NoError(t, err)
		require.Equal(t, websocket.BinaryMessage, kind)
		var f struct {
			Type string             `msgpack:"type"`
			Data msgpack.RawMessage `msgpack:"data"`
		}
		require.NoError(t, msgpack.Unmarshal(raw, &f))
		if f.Type != models.OutSoloStarted {
			continue
		}
		var started models.SoloStarted
		require.NoError(t, msgpack.Unmarshal(f.Data, &started))
		assert.Equal(t, board, started.Board)
		assert.True(t, started.YourTurn)
		break
	}
	require.Eventually(t, func() bool { return h.soloOf("carol") != nil }, time.Second, 5*time.Millisecond)
}

func TestHTTPRoutes(t *testing.T) {
	h, _ := newHub(t)
	srv := httptest.NewServer(h.Router(BuildInfo{Version: "1.2.3", Time: "now"}))
	defer srv.Close()

	get := func(path string) (int, map[string]any) {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		var body map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return resp.StatusCode, body
	}

	code, body := get("/version")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1.2.3", body["version"])

	code, body = get("/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])

	code, body = get("/api/stats/nobody")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "nobody", body["user"])

	code, _ = get("/api/matches/unknown")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = get("/api/leaderboard?n=5")
	assert.Equal(t, http.StatusOK, code)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws?codec=xml")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
