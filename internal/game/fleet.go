package game

import (
	"github.com/pkg/errors"
)

var (
	ErrInvalidCell   = errors.New("board holds a cell that is neither water nor ship")
	ErrShipShape     = errors.New("ships must be straight lines that do not touch")
	ErrFleetMismatch = errors.New("fleet does not match the required ship set")
)

// ships groups SHIP cells into 8-connected components. Legal ships never
// touch, so on a legal board every component is exactly one ship.
func (b *Board) ships() [][]Coord {
	var seen [Size][Size]bool
	var out [][]Coord
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] != Ship || seen[r][c] {
				continue
			}
			seen[r][c] = true
			queue := []Coord{{r, c}}
			var comp []Coord
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				comp = append(comp, cur)
				for dr := -1; dr <= 1; dr++ {
					for dc := -1; dc <= 1; dc++ {
						nr, nc := cur.Row+dr, cur.Col+dc
						if InBounds(nr, nc) && !seen[nr][nc] && b[nr][nc] == Ship {
							seen[nr][nc] = true
							queue = append(queue, Coord{nr, nc})
						}
					}
				}
			}
			out = append(out, comp)
		}
	}
	return out
}

// straight reports whether the cells form one contiguous row or column.
func straight(cells []Coord) bool {
	minR, maxR, minC, maxC := Size, -1, Size, -1
	for _, x := range cells {
		minR, maxR = min(minR, x.Row), max(maxR, x.Row)
		minC, maxC = min(minC, x.Col), max(maxC, x.Col)
	}
	switch {
	case minR == maxR:
		return maxC-minC+1 == len(cells)
	case minC == maxC:
		return maxR-minR+1 == len(cells)
	}
	return false
}

// CountPlacedShips returns ship size -> number of ships found on the board.
func (b *Board) CountPlacedShips() map[int]int {
	counts := map[int]int{}
	for _, s := range b.ships() {
		counts[len(s)]++
	}
	return counts
}

func fleetCounts() map[int]int {
	want := map[int]int{}
	for _, size := range Fleet {
		want[size]++
	}
	return want
}

// ValidateFleet checks a freshly placed board: only water and ship cells,
// straight non-touching ships, and exactly the Fleet multiset.
func (b *Board) ValidateFleet() error {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] != Empty && b[r][c] != Ship {
				return errors.Wrapf(ErrInvalidCell, "cell (%d,%d) = %d", r, c, b[r][c])
			}
		}
	}
	got := map[int]int{}
	for _, s := range b.ships() {
		if !straight(s) {
			return errors.Wrapf(ErrShipShape, "ship at (%d,%d)", s[0].Row, s[0].Col)
		}
		got[len(s)]++
	}
	want := fleetCounts()
	for size, n := range want {
		if got[size] != n {
			return errors.Wrapf(ErrFleetMismatch, "size %d: %d/%d", size, got[size], n)
		}
	}
	for size, n := range got {
		if want[size] == 0 {
			return errors.Wrapf(ErrFleetMismatch, "size %d: %d/0", size, n)
		}
	}
	return nil
}
