package stats

import "math"

const (
	KFactor   = 32
	minRating = 0
)

// Expected is the probability that a player rated r beats one rated opp.
func Expected(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

// RatingChange returns the Elo delta for result (1 win, 0.5 draw, 0 loss).
// Halves round up, so a -16.5 delta becomes -16.
func RatingChange(r, opp int, result float64) int {
	return int(math.Floor(KFactor*(result-Expected(r, opp)) + 0.5))
}

// NewRatings applies one game. winner is 1, 2, or 0 for a draw.
func NewRatings(r1, r2, winner int) (n1, n2 int) {
	s1, s2 := 0.5, 0.5
	switch winner {
	case 1:
		s1, s2 = 1, 0
	case 2:
		s1, s2 = 0, 1
	}
	n1 = max(minRating, r1+RatingChange(r1, r2, s1))
	n2 = max(minRating, r2+RatingChange(r2, r1, s2))
	return n1, n2
}
