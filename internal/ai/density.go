package ai

import "github.com/pefman/seabattle/internal/game"

// woundedBoost multiplies the score of open cells next to an unresolved hit.
const woundedBoost = 5

// DensityStrategy finishes wounded ships first and otherwise fires at the
// cell covered by the most legal placements of the ships still afloat.
type DensityStrategy struct {
	huntState
	density [game.Size][game.Size]int
}

func (s *DensityStrategy) Difficulty() Difficulty { return Hard }

func (s *DensityStrategy) NextMove(_ *game.Board) game.Coord {
	if len(s.hits) > 0 {
		if next, ok := s.targetMove(); ok {
			return next
		}
	}
	s.buildDensity()
	best := 0
	var top []game.Coord
	for _, x := range s.available() {
		switch p := s.density[x.Row][x.Col]; {
		case p > best:
			best = p
			top = append(top[:0], x)
		case p == best:
			top = append(top, x)
		}
	}
	return s.pick(top)
}

func (s *DensityStrategy) targetMove() (game.Coord, bool) {
	if o, ok := s.direction(); ok {
		if next, ok := s.extendLine(o); ok {
			return next, true
		}
	}
	around := neighbours(s.hits[len(s.hits)-1])
	s.rng.Shuffle(len(around), func(i, j int) { around[i], around[j] = around[j], around[i] })
	for _, n := range around {
		if s.open(n.Row, n.Col) {
			return n, true
		}
	}
	return game.Coord{}, false
}

// blocked is true for cells known to be water: fired at and not an open hit.
func (s *DensityStrategy) blocked(r, c int) bool {
	if !s.shot[r][c] {
		return false
	}
	for _, h := range s.hits {
		if h.Row == r && h.Col == c {
			return false
		}
	}
	return true
}

func (s *DensityStrategy) fits(row, col, size int, o game.Orientation) bool {
	for i := 0; i < size; i++ {
		r, c := row, col+i
		if o == game.Vertical {
			r, c = row+i, col
		}
		if !game.InBounds(r, c) || s.blocked(r, c) {
			return false
		}
	}
	return true
}

func (s *DensityStrategy) buildDensity() {
	s.density = [game.Size][game.Size]int{}
	for _, size := range s.remaining {
		for _, o := range []game.Orientation{game.Horizontal, game.Vertical} {
			for r := 0; r < game.Size; r++ {
				for c := 0; c < game.Size; c++ {
					if !s.fits(r, c, size, o) {
						continue
					}
					for i := 0; i < size; i++ {
						if o == game.Vertical {
							s.density[r+i][c]++
						} else {
							s.density[r][c+i]++
						}
					}
				}
			}
		}
	}
	for _, h := range s.hits {
		for _, n := range neighbours(h) {
			if s.open(n.Row, n.Col) {
				s.density[n.Row][n.Col] *= woundedBoost
			}
		}
	}
}

func (s *DensityStrategy) ProcessShotResult(row, col int, hit, sunk bool) {
	s.record(row, col, hit, sunk)
}

func (s *DensityStrategy) Reset() {
	s.reset()
	s.density = [game.Size][game.Size]int{}
}
