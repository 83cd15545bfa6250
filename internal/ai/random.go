package ai

import "github.com/pefman/seabattle/internal/game"

// RandomStrategy fires uniformly at cells it has not tried yet.
type RandomStrategy struct {
	huntState
}

func (s *RandomStrategy) Difficulty() Difficulty { return Easy }

func (s *RandomStrategy) NextMove(_ *game.Board) game.Coord {
	return s.pick(s.available())
}

func (s *RandomStrategy) ProcessShotResult(row, col int, hit, sunk bool) {
	s.record(row, col, hit, sunk)
}

func (s *RandomStrategy) Reset() { s.reset() }
