package game

import (
	"fmt"

	"github.com/weiqigo/server/internal/board"
	"github.com/weiqigo/server/internal/score"
)

// handicapLines gives the star-point coordinates (low, middle, high) for
// the board sizes that carry standard handicap tables.
var handicapLines = map[int][3]int{
	9:  {2, 4, 6},
	13: {3, 6, 9},
	19: {3, 9, 15},
}

// HandicapStones returns the pre-placed black stones for a handicap game,
// following the standard star-point tables for 9/13/19 boards. Handicaps
// outside 2..9 or on unsupported sizes yield no stones.
func HandicapStones(size, handicap int) []board.Stone {
	lines, ok := handicapLines[size]
	if !ok || handicap < 2 || handicap > 9 {
		return []board.Stone{}
	}
	lo, mid, hi := lines[0], lines[1], lines[2]

	var points []board.Position
	corners := []board.Position{{X: lo, Y: lo}, {X: lo, Y: hi}, {X: hi, Y: lo}, {X: hi, Y: hi}}
	sides := []board.Position{{X: lo, Y: mid}, {X: hi, Y: mid}, {X: mid, Y: lo}, {X: mid, Y: hi}}
	center := board.Position{X: mid, Y: mid}

	switch handicap {
	case 2:
		points = []board.Position{{X: lo, Y: hi}, {X: hi, Y: lo}}
	case 3:
		points = []board.Position{{X: lo, Y: hi}, {X: hi, Y: lo}, {X: hi, Y: hi}}
	case 4:
		points = corners
	case 5:
		points = append(append([]board.Position{}, corners...), center)
	case 6:
		points = append(append([]board.Position{}, corners...), sides[0], sides[1])
	case 7:
		points = append(append([]board.Position{}, corners...), sides[0], sides[1], center)
	case 8:
		points = append(append([]board.Position{}, corners...), sides...)
	case 9:
		points = append(append(append([]board.Position{}, corners...), sides...), center)
	}

	stones := make([]board.Stone, len(points))
	for i, p := range points {
		stones[i] = board.Stone{Position: p, Color: board.Black}
	}
	return stones
}

// HandicapKomi is the reduced komi applied to handicap games. Territory
// and area rules alike settle on half a point so white cannot be jigo'd.
func HandicapKomi(rule score.Rule) float64 {
	return 0.5
}

// ResultString renders the compact result, e.g. "B+5.5", "W+R", "B+T".
func ResultString(winner board.Color, kind string, margin float64) string {
	prefix := "B"
	if winner == board.White {
		prefix = "W"
	}
	switch kind {
	case "resign":
		return prefix + "+R"
	case "timeout":
		return prefix + "+T"
	default:
		return fmt.Sprintf("%s+%g", prefix, margin)
	}
}
