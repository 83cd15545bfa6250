package ai

import "github.com/pefman/seabattle/internal/game"

// HuntStrategy queues the neighbours of every fresh hit, follows the ship line
// once two hits agree on an orientation, and otherwise searches on a
// checkerboard.
type HuntStrategy struct {
	huntState
}

func (s *HuntStrategy) Difficulty() Difficulty { return Medium }

func (s *HuntStrategy) NextMove(_ *game.Board) game.Coord {
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		if !s.shot[next.Row][next.Col] {
			return next
		}
	}
	if o, ok := s.direction(); ok {
		if next, ok := s.extendLine(o); ok {
			return next
		}
	}
	avail := s.available()
	parity := make([]game.Coord, 0, len(avail))
	for _, x := range avail {
		if (x.Row+x.Col)%2 == 0 {
			parity = append(parity, x)
		}
	}
	if len(parity) > 0 {
		return s.pick(parity)
	}
	return s.pick(avail)
}

func (s *HuntStrategy) ProcessShotResult(row, col int, hit, sunk bool) {
	s.record(row, col, hit, sunk)
	if !hit || sunk {
		return
	}
	for _, n := range neighbours(game.Coord{Row: row, Col: col}) {
		if s.open(n.Row, n.Col) && !s.queued(n) {
			s.queue = append(s.queue, n)
		}
	}
}

func (s *HuntStrategy) queued(x game.Coord) bool {
	for _, q := range s.queue {
		if q == x {
			return true
		}
	}
	return false
}

func (s *HuntStrategy) Reset() { s.reset() }
