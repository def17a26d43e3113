package board

import "errors"

// Rejection reasons for Apply. The protocol layer maps these onto the
// client-facing error kinds one to one.
var (
	ErrOutOfBounds = errors.New("position out of bounds")
	ErrOccupied    = errors.New("position occupied")
	ErrKoViolation = errors.New("ko violation")
	ErrSuicide     = errors.New("suicide")
)

// Result is the outcome of a legal stone placement.
type Result struct {
	Stones      []Stone    // stone list after captures settle
	Captured    []Position // opponent stones removed by the move
	KoCandidate *Position  // set when exactly one stone was captured
}

// ConnectedGroup returns the maximal same-color connected component
// containing p. Iterative flood fill, O(group). Returns nil if p is empty.
func ConnectedGroup(p Position, stones []Stone, size int) []Position {
	occ := Board{Size: size, Stones: stones}.occupancy()
	return connectedGroup(p, occ, size)
}

func connectedGroup(p Position, occ occupancy, size int) []Position {
	color, ok := occ[p]
	if !ok {
		return nil
	}
	seen := map[Position]bool{p: true}
	group := []Position{p}
	stack := []Position{p}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range Adjacent(cur, size) {
			if seen[n] || occ[n] != color {
				continue
			}
			seen[n] = true
			group = append(group, n)
			stack = append(stack, n)
		}
	}
	return group
}

// Liberties counts the distinct empty points adjacent to the group.
func Liberties(group []Position, stones []Stone, size int) int {
	occ := Board{Size: size, Stones: stones}.occupancy()
	return liberties(group, occ, size)
}

func liberties(group []Position, occ occupancy, size int) int {
	seen := map[Position]bool{}
	count := 0
	for _, p := range group {
		for _, n := range Adjacent(p, size) {
			if _, taken := occ[n]; taken || seen[n] {
				continue
			}
			seen[n] = true
			count++
		}
	}
	return count
}

// Apply validates and applies a stone placement for color at p, honouring
// the current koPosition (nil when no ko is in force). On success it returns
// the settled stone list, the captured positions, and the ko candidate for
// the next move (set iff exactly one stone was captured).
//
// Rejections: ErrOutOfBounds, ErrOccupied, ErrKoViolation, ErrSuicide.
// The input board is never mutated.
func Apply(b Board, p Position, color Color, koPosition *Position) (Result, error) {
	if !WithinBounds(p, b.Size) {
		return Result{}, ErrOutOfBounds
	}
	occ := b.occupancy()
	if _, taken := occ[p]; taken {
		return Result{}, ErrOccupied
	}
	if koPosition != nil && *koPosition == p {
		return Result{}, ErrKoViolation
	}

	// Tentatively place the stone.
	occ[p] = color

	// Remove adjacent opponent groups left with zero liberties.
	opponent := color.Opponent()
	captured := []Position{}
	capturedSet := map[Position]bool{}
	for _, n := range Adjacent(p, b.Size) {
		if occ[n] != opponent || capturedSet[n] {
			continue
		}
		group := connectedGroup(n, occ, b.Size)
		if liberties(group, occ, b.Size) > 0 {
			continue
		}
		for _, g := range group {
			delete(occ, g)
			capturedSet[g] = true
			captured = append(captured, g)
		}
	}

	// With captures settled the mover's own group must breathe.
	own := connectedGroup(p, occ, b.Size)
	if liberties(own, occ, b.Size) == 0 {
		return Result{}, ErrSuicide
	}

	stones := make([]Stone, 0, len(b.Stones)+1-len(captured))
	for _, s := range b.Stones {
		if !capturedSet[s.Position] {
			stones = append(stones, s)
		}
	}
	stones = append(stones, Stone{Position: p, Color: color})

	res := Result{Stones: stones, Captured: captured}
	if len(captured) == 1 {
		ko := captured[0]
		res.KoCandidate = &ko
	}
	return res, nil
}
