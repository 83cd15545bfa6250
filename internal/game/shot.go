package game

// ShotResult is the outcome of MakeShot.
type ShotResult struct {
	Hit         bool `json:"hit"`
	Sunk        bool `json:"sunk"`
	AlreadyShot bool `json:"-"`
}

// MakeShot resolves a shot at (row, col). A ship cell becomes HIT and, when the
// whole 4-connected group of hit cells has no unhit neighbour left, the group
// becomes SUNK. Water becomes MISS. Resolved cells are left untouched and
// reported with AlreadyShot; legality is the caller's job.
func (b *Board) MakeShot(row, col int) ShotResult {
	switch b[row][col] {
	case Ship:
		b[row][col] = Hit
		group, afloat := b.hitGroup(row, col)
		if afloat {
			return ShotResult{Hit: true}
		}
		for _, x := range group {
			b[x.Row][x.Col] = Sunk
		}
		return ShotResult{Hit: true, Sunk: true}
	case Empty:
		b[row][col] = Miss
		return ShotResult{}
	}
	return ShotResult{AlreadyShot: true}
}

// hitGroup walks the HIT cells orthogonally connected to (row, col) breadth
// first. afloat is true as soon as an unhit SHIP neighbour is seen.
func (b *Board) hitGroup(row, col int) (group []Coord, afloat bool) {
	var seen [Size][Size]bool
	queue := []Coord{{row, col}}
	seen[row][col] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		group = append(group, cur)
		for _, d := range orthogonal {
			r, c := cur.Row+d[0], cur.Col+d[1]
			if !InBounds(r, c) || seen[r][c] {
				continue
			}
			switch b[r][c] {
			case Ship:
				return nil, true
			case Hit:
				seen[r][c] = true
				queue = append(queue, Coord{r, c})
			}
		}
	}
	return group, false
}
