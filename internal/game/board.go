package game

import (
	"math/rand"
)

// Size is the side length of the grid.
const Size = 10

// Cell is the state of one grid square. It serialises as 0..4 on the wire.
type Cell uint8

const (
	Empty Cell = iota
	Ship
	Miss
	Hit
	Sunk
)

func (c Cell) String() string {
	switch c {
	case Empty:
		return "empty"
	case Ship:
		return "ship"
	case Miss:
		return "miss"
	case Hit:
		return "hit"
	case Sunk:
		return "sunk"
	}
	return "unknown"
}

// Fleet lists ship sizes in placement order (largest first).
var Fleet = []int{4, 3, 3, 2, 2, 2, 1, 1, 1, 1}

type Orientation uint8

const (
	Horizontal Orientation = iota
	Vertical
)

func (o Orientation) String() string {
	if o == Vertical {
		return "vertical"
	}
	return "horizontal"
}

type Coord struct {
	Row int `json:"row" msgpack:"row"`
	Col int `json:"col" msgpack:"col"`
}

// Board is a 10x10 grid indexed [row][col].
type Board [Size][Size]Cell

func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

var orthogonal = [4][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}

// footprint returns the cells a ship would occupy; ok is false when any of
// them falls outside the grid.
func footprint(row, col, size int, o Orientation) (cells []Coord, ok bool) {
	cells = make([]Coord, 0, size)
	for i := 0; i < size; i++ {
		r, c := row, col+i
		if o == Vertical {
			r, c = row+i, col
		}
		if !InBounds(r, c) {
			return nil, false
		}
		cells = append(cells, Coord{r, c})
	}
	return cells, true
}

// CanPlaceShip reports whether a ship fits at (row, col) without leaving the
// grid, overlapping, or touching another ship (diagonals included).
func (b *Board) CanPlaceShip(row, col, size int, o Orientation) bool {
	if size <= 0 {
		return false
	}
	cells, ok := footprint(row, col, size, o)
	if !ok {
		return false
	}
	own := func(r, c int) bool {
		for _, x := range cells {
			if x.Row == r && x.Col == c {
				return true
			}
		}
		return false
	}
	for _, cell := range cells {
		if b[cell.Row][cell.Col] != Empty {
			return false
		}
		for dr := -1; dr <= 1; dr++ {
			for dc := -1; dc <= 1; dc++ {
				r, c := cell.Row+dr, cell.Col+dc
				if (dr == 0 && dc == 0) || !InBounds(r, c) || own(r, c) {
					continue
				}
				if b[r][c] == Ship {
					return false
				}
			}
		}
	}
	return true
}

// PlaceShip marks the ship cells. Callers validate with CanPlaceShip first.
func (b *Board) PlaceShip(row, col, size int, o Orientation) {
	for i := 0; i < size; i++ {
		if o == Vertical {
			b[row+i][col] = Ship
		} else {
			b[row][col+i] = Ship
		}
	}
}

const (
	maxShipAttempts = 500
	maxRestarts     = 100
)

// GenerateRandomBoard places the whole fleet at random. A ship that cannot be
// placed within maxShipAttempts restarts the board; after maxRestarts the
// deterministic first-fit layout is returned instead.
func GenerateRandomBoard(rng *rand.Rand) Board {
	for i := 0; i < maxRestarts; i++ {
		if b, ok := tryRandomBoard(rng); ok {
			return b
		}
	}
	return FirstFitBoard()
}

func tryRandomBoard(rng *rand.Rand) (Board, bool) {
	var b Board
	for _, size := range Fleet {
		placed := false
		for attempt := 0; attempt < maxShipAttempts && !placed; attempt++ {
			o := Horizontal
			if rng.Intn(2) == 0 {
				o = Vertical
			}
			r, c := rng.Intn(Size), rng.Intn(Size)
			if b.CanPlaceShip(r, c, size, o) {
				b.PlaceShip(r, c, size, o)
				placed = true
			}
		}
		if !placed {
			return Board{}, false
		}
	}
	return b, true
}

// FirstFitBoard scans the grid row-major and drops each ship at the first legal
// slot, horizontal before vertical.
func FirstFitBoard() Board {
	var b Board
	for _, size := range Fleet {
	scan:
		for r := 0; r < Size; r++ {
			for c := 0; c < Size; c++ {
				for _, o := range []Orientation{Horizontal, Vertical} {
					if b.CanPlaceShip(r, c, size, o) {
						b.PlaceShip(r, c, size, o)
						break scan
					}
				}
			}
		}
	}
	return b
}

// IsShot reports whether the cell has already been resolved by a shot.
func (b *Board) IsShot(row, col int) bool {
	switch b[row][col] {
	case Miss, Hit, Sunk:
		return true
	}
	return false
}

// UnshotCells lists every cell still open to fire, row-major.
func (b *Board) UnshotCells() []Coord {
	out := make([]Coord, 0, Size*Size)
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if !b.IsShot(r, c) {
				out = append(out, Coord{r, c})
			}
		}
	}
	return out
}

// ShipCells counts cells still holding an unhit ship.
func (b *Board) ShipCells() int {
	n := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] == Ship {
				n++
			}
		}
	}
	return n
}

// IsGameOver is true once no SHIP cell remains.
func (b *Board) IsGameOver() bool {
	return b.ShipCells() == 0
}

// Masked returns the board as the opponent sees it: ships that were not hit
// are hidden.
func (b *Board) Masked() Board {
	out := *b
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if out[r][c] == Ship {
				out[r][c] = Empty
			}
		}
	}
	return out
}
