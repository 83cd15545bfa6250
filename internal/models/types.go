package models

import "github.com/pefman/seabattle/internal/game"

// ========================= Envelope =========================

// WsMsg is the frame exchanged in both directions.
type WsMsg struct {
	Type string      `json:"type" msgpack:"type"`
	Data interface{} `json:"data,omitempty" msgpack:"data,omitempty"`
}

// Inbound message types (client -> server).
const (
	InSearchOpponent = "search-opponent"
	InCancelSearch   = "cancel-search"
	InPlacementReady = "placement-ready"
	InSubmitShot     = "submit-shot"
	InLeaveMatch     = "leave-match"
	InSoloStart      = "solo-start"
	InSoloShot       = "solo-shot"
	InSoloLeave      = "solo-leave"
)

// Outbound message types (server -> client).
const (
	OutWelcome              = "welcome"
	OutSearchingStarted     = "searching-started"
	OutSearchCancelled      = "search-cancelled"
	OutSearchTimedOut       = "search-timed-out"
	OutOpponentFound        = "opponent-found"
	OutMatchStarted         = "match-started"
	OutShotResult           = "shot-result"
	OutTurnChanged          = "turn-changed"
	OutShotTimedOut         = "shot-timed-out"
	OutPlacementTimedOut    = "placement-timed-out"
	OutOpponentTimedOut     = "opponent-timed-out"
	OutMatchFinished        = "match-finished"
	OutOpponentLeft         = "opponent-left"
	OutOpponentDisconnected = "opponent-disconnected"
	OutMatchResumed         = "match-resumed"
	OutSoloStarted          = "solo-started"
	OutError                = "error"
)

// Error codes carried by OutError.
const (
	ErrCodeInvalidBoard   = "invalid-board"
	ErrCodeBadRequest     = "bad-request"
	ErrCodeBusy           = "busy"
	ErrCodeUnknownMessage = "unknown-message"
)

// ========================= Inbound payloads =========================

type SearchRequest struct {
	Rating int `json:"rating" msgpack:"rating"`
}

type PlacementRequest struct {
	Board game.Board `json:"board" msgpack:"board"`
}

type ShotRequest struct {
	Row int `json:"row" msgpack:"row"`
	Col int `json:"col" msgpack:"col"`
}

type SoloStartRequest struct {
	Difficulty string      `json:"difficulty" msgpack:"difficulty"`
	Board      *game.Board `json:"board,omitempty" msgpack:"board,omitempty"`
}

// ========================= Outbound payloads =========================

type Welcome struct {
	ID string `json:"id" msgpack:"id"`
}

type SearchTimedOut struct {
	SuggestAI bool `json:"suggestAI" msgpack:"suggestAI"`
}

type OpponentSummary struct {
	ID     string `json:"id" msgpack:"id"`
	Rating int    `json:"rating" msgpack:"rating"`
}

type OpponentFound struct {
	MatchID   string          `json:"matchId" msgpack:"matchId"`
	Opponent  OpponentSummary `json:"opponent" msgpack:"opponent"`
	IsPlayer1 bool            `json:"isPlayer1" msgpack:"isPlayer1"`
}

type MatchStarted struct {
	CurrentTurn string `json:"currentTurn" msgpack:"currentTurn"`
	IsYourTurn  bool   `json:"isYourTurn" msgpack:"isYourTurn"`
}

type ShotResult struct {
	Row       int  `json:"row" msgpack:"row"`
	Col       int  `json:"col" msgpack:"col"`
	Hit       bool `json:"hit" msgpack:"hit"`
	Sunk      bool `json:"sunk" msgpack:"sunk"`
	GameOver  bool `json:"gameOver" msgpack:"gameOver"`
	IsOwnShot bool `json:"isOwnShot" msgpack:"isOwnShot"`
}

type TurnChanged struct {
	IsYourTurn bool `json:"isYourTurn" msgpack:"isYourTurn"`
}

type ShotTimedOut struct {
	AutoMove game.Coord `json:"autoMove" msgpack:"autoMove"`
}

type MatchFinished struct {
	Winner   string `json:"winner" msgpack:"winner"`
	IsWinner bool   `json:"isWinner" msgpack:"isWinner"`
	Reason   string `json:"reason" msgpack:"reason"`
}

// WinnerNotice backs opponent-left, opponent-disconnected and opponent-timed-out.
type WinnerNotice struct {
	Winner string `json:"winner" msgpack:"winner"`
}

// MatchResumed is sent to a participant that reconnects inside the grace window.
type MatchResumed struct {
	MatchID    string          `json:"matchId" msgpack:"matchId"`
	Status     string          `json:"status" msgpack:"status"`
	Opponent   OpponentSummary `json:"opponent" msgpack:"opponent"`
	IsPlayer1  bool            `json:"isPlayer1" msgpack:"isPlayer1"`
	Ready      bool            `json:"ready" msgpack:"ready"`
	IsYourTurn bool            `json:"isYourTurn" msgpack:"isYourTurn"`
	Own        *game.Board     `json:"own,omitempty" msgpack:"own,omitempty"`
	Target     *game.Board     `json:"target,omitempty" msgpack:"target,omitempty"`
}

type SoloStarted struct {
	Difficulty string     `json:"difficulty" msgpack:"difficulty"`
	YourTurn   bool       `json:"yourTurn" msgpack:"yourTurn"`
	Board      game.Board `json:"board" msgpack:"board"`
}

type ErrorMsg struct {
	Code    string `json:"code" msgpack:"code"`
	Message string `json:"message" msgpack:"message"`
}

// ========================= HTTP views =========================

// LobbyEntry is one waiting player as exposed via /lobby.
type LobbyEntry struct {
	ID     string `json:"id"`
	Rating int    `json:"rating"`
	Since  int64  `json:"since"` // unix seconds
}

// MatchView is the /debug/matches summary of a live match.
type MatchView struct {
	ID      string   `json:"id"`
	Status  string   `json:"status"`
	Players []string `json:"players"`
	Turn    string   `json:"turn,omitempty"`
	Moves   int      `json:"moves"`
	Created int64    `json:"created"`
}
