// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WaitingPlayers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seabattle",
		Name:      "waiting_players",
		Help:      "Players currently in the matchmaking wait-list.",
	})
	SearchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seabattle",
		Name:      "search_outcomes_total",
		Help:      "Matchmaking searches by how they ended.",
	}, []string{"outcome"}) // paired, queued, cancelled, timed_out
	LiveMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seabattle",
		Name:      "live_matches",
		Help:      "Matches that have not finished yet.",
	})
	MatchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seabattle",
		Name:      "matches_finished_total",
		Help:      "Finished matches by reason.",
	}, []string{"reason"})
	Shots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seabattle",
		Name:      "shots_total",
		Help:      "Resolved shots by result and origin.",
	}, []string{"result", "origin"}) // hit|miss, player|auto|ai
	SoloSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seabattle",
		Name:      "solo_sessions",
		Help:      "Active single-player sessions.",
	})
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "seabattle",
		Name:      "ws_connections",
		Help:      "Open WebSocket connections.",
	})
)

// ShotResult maps a hit flag to the label used by Shots.
func ShotResult(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}
