package board

import "fmt"

// Color identifies a stone or a player side. The zero value means "no color"
// and never appears on the wire.
type Color string

const (
	Black Color = "black"
	White Color = "white"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == Black {
		return White
	}
	return Black
}

// Valid reports whether c is one of the two playable colors.
func (c Color) Valid() bool {
	return c == Black || c == White
}

// Position is a 0-indexed board coordinate, 0 ≤ x,y < size.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key renders a position as the "x,y" string used as map key in territory
// and dead-stone payloads.
func (p Position) Key() string {
	return fmt.Sprintf("%d,%d", p.X, p.Y)
}

// Stone is a placed stone.
type Stone struct {
	Position Position `json:"position"`
	Color    Color    `json:"color"`
}

// Board is the immutable-by-convention stone list plus its size.
// Sizes are bounded to 5..25; 9, 13 and 19 are the typical choices.
type Board struct {
	Size   int     `json:"size"`
	Stones []Stone `json:"stones"`
}

const (
	MinSize = 5
	MaxSize = 25
)

// New returns an empty board of the given size.
func New(size int) Board {
	return Board{Size: size, Stones: []Stone{}}
}

// ValidSize reports whether size is inside the supported bounds.
func ValidSize(size int) bool {
	return size >= MinSize && size <= MaxSize
}

// WithinBounds reports whether p lies on a board of the given size.
func WithinBounds(p Position, size int) bool {
	return p.X >= 0 && p.X < size && p.Y >= 0 && p.Y < size
}

// Adjacent returns the up-to-four orthogonal neighbours of p that lie on
// the board.
func Adjacent(p Position, size int) []Position {
	out := make([]Position, 0, 4)
	for _, d := range [4]Position{{0, -1}, {1, 0}, {0, 1}, {-1, 0}} {
		n := Position{X: p.X + d.X, Y: p.Y + d.Y}
		if WithinBounds(n, size) {
			out = append(out, n)
		}
	}
	return out
}

// StoneAt returns the color at p, or "" if the point is empty.
func (b Board) StoneAt(p Position) Color {
	for _, s := range b.Stones {
		if s.Position == p {
			return s.Color
		}
	}
	return ""
}

// occupancy is a point→color lookup built once per kernel call.
type occupancy map[Position]Color

func (b Board) occupancy() occupancy {
	occ := make(occupancy, len(b.Stones))
	for _, s := range b.Stones {
		occ[s.Position] = s.Color
	}
	return occ
}
