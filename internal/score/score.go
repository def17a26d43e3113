// Package score computes final results for a finished or scoring-phase
// board under the five supported rule sets.
package score

import (
	"github.com/weiqigo/server/internal/board"
)

// Rule tags the scoring rule set a game was created with.
type Rule string

const (
	Chinese  Rule = "chinese"
	Japanese Rule = "japanese"
	Korean   Rule = "korean"
	AGA      Rule = "aga"
	Ing      Rule = "ing"
)

// Valid reports whether r is a known rule set.
func (r Rule) Valid() bool {
	switch r {
	case Chinese, Japanese, Korean, AGA, Ing:
		return true
	}
	return false
}

// IngDefaultKomi is the Ing-prescribed komi, applied when a game tagged
// with the Ing rule carries no komi of its own.
const IngDefaultKomi = 8

// Result is the final score record broadcast to the session group.
type Result struct {
	Black           float64 `json:"black"`
	White           float64 `json:"white"`
	BlackTerritory  int     `json:"blackTerritory"`
	WhiteTerritory  int     `json:"whiteTerritory"`
	BlackCaptures   int     `json:"blackCaptures"`
	WhiteCaptures   int     `json:"whiteCaptures"`
	DeadBlackStones int     `json:"deadBlackStones"`
	DeadWhiteStones int     `json:"deadWhiteStones"`
	Komi            float64 `json:"komi"`
}

// Winner returns the leading color, or "" on a drawn game.
func (r Result) Winner() board.Color {
	switch {
	case r.Black > r.White:
		return board.Black
	case r.White > r.Black:
		return board.White
	}
	return ""
}

// Margin returns the absolute point difference.
func (r Result) Margin() float64 {
	d := r.Black - r.White
	if d < 0 {
		return -d
	}
	return d
}

// Territory computes the ownership of every empty point on the effective
// board (dead stones already removed). A region belongs to the single color
// bordering it; regions touched by both colors are dame and are omitted.
// Keys are board.Position.Key() strings.
func Territory(b board.Board) map[string]board.Color {
	occ := map[board.Position]board.Color{}
	for _, s := range b.Stones {
		occ[s.Position] = s.Color
	}

	territory := map[string]board.Color{}
	seen := map[board.Position]bool{}

	for y := 0; y < b.Size; y++ {
		for x := 0; x < b.Size; x++ {
			start := board.Position{X: x, Y: y}
			if seen[start] {
				continue
			}
			if _, taken := occ[start]; taken {
				continue
			}

			// Flood-fill the empty region and record which colors border it.
			region := []board.Position{start}
			stack := []board.Position{start}
			seen[start] = true
			var touchesBlack, touchesWhite bool
			for len(stack) > 0 {
				cur := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, n := range board.Adjacent(cur, b.Size) {
					if c, taken := occ[n]; taken {
						if c == board.Black {
							touchesBlack = true
						} else {
							touchesWhite = true
						}
						continue
					}
					if seen[n] {
						continue
					}
					seen[n] = true
					region = append(region, n)
					stack = append(stack, n)
				}
			}

			var owner board.Color
			switch {
			case touchesBlack && !touchesWhite:
				owner = board.Black
			case touchesWhite && !touchesBlack:
				owner = board.White
			default:
				continue // dame or a fully empty board: nobody's point
			}
			for _, p := range region {
				territory[p.Key()] = owner
			}
		}
	}
	return territory
}

// Compute scores the board. dead is the set of conceded positions still on
// the stone list; they are removed first and counted as captures for the
// opponent where the rule set cares. blackCaptures/whiteCaptures are the
// in-game capture counts BY that color.
func Compute(b board.Board, dead []board.Position, blackCaptures, whiteCaptures int, komi float64, rule Rule) (Result, map[string]board.Color) {
	deadSet := make(map[board.Position]bool, len(dead))
	for _, p := range dead {
		deadSet[p] = true
	}

	effective := board.Board{Size: b.Size, Stones: make([]board.Stone, 0, len(b.Stones))}
	deadBlack, deadWhite := 0, 0
	liveBlack, liveWhite := 0, 0
	for _, s := range b.Stones {
		if deadSet[s.Position] {
			if s.Color == board.Black {
				deadBlack++
			} else {
				deadWhite++
			}
			continue
		}
		effective.Stones = append(effective.Stones, s)
		if s.Color == board.Black {
			liveBlack++
		} else {
			liveWhite++
		}
	}

	territory := Territory(effective)
	blackTerritory, whiteTerritory := 0, 0
	for _, owner := range territory {
		if owner == board.Black {
			blackTerritory++
		} else {
			whiteTerritory++
		}
	}

	if rule == Ing && komi == 0 {
		komi = IngDefaultKomi
	}

	res := Result{
		BlackTerritory:  blackTerritory,
		WhiteTerritory:  whiteTerritory,
		BlackCaptures:   blackCaptures,
		WhiteCaptures:   whiteCaptures,
		DeadBlackStones: deadBlack,
		DeadWhiteStones: deadWhite,
		Komi:            komi,
	}

	switch rule {
	case Japanese, Korean:
		// Territory counting: territory + captures, dead stones counted as
		// captures for the opponent. Korean differs from Japanese only in
		// ko handling, which is settled long before score time.
		res.Black = float64(blackTerritory + blackCaptures + deadWhite)
		res.White = float64(whiteTerritory+whiteCaptures+deadBlack) + komi
	default:
		// Chinese, AGA and Ing all resolve to area counting here: living
		// stones plus surrounded territory, komi to white. AGA pass-stone
		// bookkeeping and Ing fill-in counting yield the same totals under
		// this komi handling.
		res.Black = float64(blackTerritory + liveBlack)
		res.White = float64(whiteTerritory+liveWhite) + komi
	}

	return res, territory
}
