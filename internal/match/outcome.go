package match

import (
	"context"
	"time"
)

type Reason string

const (
	ReasonFleetDestroyed   Reason = "fleet-destroyed"
	ReasonPlacementTimeout Reason = "placement-timeout"
	ReasonLeft             Reason = "left"
	ReasonDisconnected     Reason = "disconnected"
	ReasonAborted          Reason = "aborted"
)

// Move is one resolved shot. Auto marks shots fired by the turn timer.
type Move struct {
	Mover string    `json:"mover"`
	Row   int       `json:"row"`
	Col   int       `json:"col"`
	Hit   bool      `json:"hit"`
	Sunk  bool      `json:"sunk"`
	Auto  bool      `json:"auto,omitempty"`
	At    time.Time `json:"at"`
}

// Outcome is handed to every Recorder exactly once per finished match.
// Winner and Loser are empty when nobody won.
type Outcome struct {
	MatchID  string    `json:"matchId"`
	Players  [2]string `json:"players"`
	Ratings  [2]int    `json:"ratings"`
	Winner   string    `json:"winner,omitempty"`
	Loser    string    `json:"loser,omitempty"`
	Reason   Reason    `json:"reason"`
	Moves    []Move    `json:"moves"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

// Recorder consumes finished matches (stats, match log, profile service).
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

type RecorderFunc func(ctx context.Context, o Outcome) error

func (f RecorderFunc) Record(ctx context.Context, o Outcome) error { return f(ctx, o) }
