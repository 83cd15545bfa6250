// Package ai implements the single-player opponents. Strategies only ever see
// their own shot history and the hit/sunk results reported back to them.
package ai

import (
	"math/rand"
	"strings"

	"github.com/pkg/errors"

	"github.com/pefman/seabattle/internal/game"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

var ErrUnknownDifficulty = errors.New("unknown difficulty")

func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Easy, Medium, Hard:
		return d, nil
	case "":
		return Easy, nil
	}
	return "", errors.Wrapf(ErrUnknownDifficulty, "%q", s)
}

// Strategy picks firing coordinates against a hidden board.
type Strategy interface {
	// NextMove returns the next cell to fire at. observed is the masked
	// opponent board and may be nil; strategies rely on their own history.
	NextMove(observed *game.Board) game.Coord
	// ProcessShotResult feeds back the outcome of the last shot.
	ProcessShotResult(row, col int, hit, sunk bool)
	Reset()
	Difficulty() Difficulty
}

// New builds the strategy for d.
func New(d Difficulty, rng *rand.Rand) (Strategy, error) {
	switch d {
	case Easy:
		return &RandomStrategy{huntState: newHuntState(rng)}, nil
	case Medium:
		return &HuntStrategy{huntState: newHuntState(rng)}, nil
	case Hard:
		return &DensityStrategy{huntState: newHuntState(rng)}, nil
	}
	return nil, errors.Wrapf(ErrUnknownDifficulty, "%q", d)
}

// huntState is the bookkeeping shared by every strategy.
type huntState struct {
	rng       *rand.Rand
	queue     []game.Coord
	hits      []game.Coord
	shot      [game.Size][game.Size]bool
	shots     int
	remaining []int
}

func newHuntState(rng *rand.Rand) huntState {
	h := huntState{rng: rng}
	h.reset()
	return h
}

func (h *huntState) reset() {
	h.queue = nil
	h.hits = nil
	h.shot = [game.Size][game.Size]bool{}
	h.shots = 0
	h.remaining = append([]int(nil), game.Fleet...)
}

func (h *huntState) available() []game.Coord {
	out := make([]game.Coord, 0, game.Size*game.Size-h.shots)
	for r := 0; r < game.Size; r++ {
		for c := 0; c < game.Size; c++ {
			if !h.shot[r][c] {
				out = append(out, game.Coord{Row: r, Col: c})
			}
		}
	}
	return out
}

func (h *huntState) open(r, c int) bool {
	return game.InBounds(r, c) && !h.shot[r][c]
}

func (h *huntState) pick(cells []game.Coord) game.Coord {
	if len(cells) == 0 {
		return game.Coord{}
	}
	return cells[h.rng.Intn(len(cells))]
}

// record updates history and, on a sink, drops the sunk size from the
// remaining fleet and clears the hunt.
func (h *huntState) record(row, col int, hit, sunk bool) {
	if !h.shot[row][col] {
		h.shot[row][col] = true
		h.shots++
	}
	if !hit {
		return
	}
	h.hits = append(h.hits, game.Coord{Row: row, Col: col})
	if !sunk {
		return
	}
	size := h.sunkSize(row, col)
	for i, s := range h.remaining {
		if s == size {
			h.remaining = append(h.remaining[:i], h.remaining[i+1:]...)
			break
		}
	}
	h.queue = nil
	h.hits = nil
}

// sunkSize counts the unresolved hits orthogonally connected to the sinking shot.
func (h *huntState) sunkSize(row, col int) int {
	var in, seen [game.Size][game.Size]bool
	for _, x := range h.hits {
		in[x.Row][x.Col] = true
	}
	n := 0
	stack := []game.Coord{{Row: row, Col: col}}
	seen[row][col] = true
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		n++
		for _, d := range [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}} {
			r, c := cur.Row+d[0], cur.Col+d[1]
			if game.InBounds(r, c) && in[r][c] && !seen[r][c] {
				seen[r][c] = true
				stack = append(stack, game.Coord{Row: r, Col: c})
			}
		}
	}
	return n
}

// direction infers the wounded ship's orientation from the first two hits.
func (h *huntState) direction() (game.Orientation, bool) {
	if len(h.hits) < 2 {
		return 0, false
	}
	a, b := h.hits[0], h.hits[1]
	switch {
	case a.Row == b.Row:
		return game.Horizontal, true
	case a.Col == b.Col:
		return game.Vertical, true
	}
	return 0, false
}

// extendLine returns the first open cell just beyond either end of the hit line.
func (h *huntState) extendLine(o game.Orientation) (game.Coord, bool) {
	first, last := h.hits[0], h.hits[0]
	for _, x := range h.hits[1:] {
		if o == game.Horizontal {
			if x.Col < first.Col {
				first = x
			}
			if x.Col > last.Col {
				last = x
			}
		} else {
			if x.Row < first.Row {
				first = x
			}
			if x.Row > last.Row {
				last = x
			}
		}
	}
	targets := []game.Coord{{Row: first.Row, Col: first.Col - 1}, {Row: last.Row, Col: last.Col + 1}}
	if o == game.Vertical {
		targets = []game.Coord{{Row: first.Row - 1, Col: first.Col}, {Row: last.Row + 1, Col: last.Col}}
	}
	for _, t := range targets {
		if h.open(t.Row, t.Col) {
			return t, true
		}
	}
	return game.Coord{}, false
}

func neighbours(x game.Coord) []game.Coord {
	return []game.Coord{
		{Row: x.Row - 1, Col: x.Col},
		{Row: x.Row + 1, Col: x.Col},
		{Row: x.Row, Col: x.Col - 1},
		{Row: x.Row, Col: x.Col + 1},
	}
}
