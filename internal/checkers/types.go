package checkers

import (
	"errors"
	"fmt"
)

// Size is the number of rows and columns on the board.
const Size = 8

var (
	ErrIllegalMove    = errors.New("illegal move")
	ErrMalformedState = errors.New("malformed state")
)

// Color identifies a side. White (light) starts on rows 0-2 and moves toward
// increasing rows; Black (dark) starts on rows 5-7 and moves the other way.
type Color uint8

const (
	NoColor Color = iota
	White
	Black
)

// String returns the wire name of the color.
func (c Color) String() string {
	switch c {
	case White:
		return "WHITE"
	case Black:
		return "BLACK"
	default:
		return "NONE"
	}
}

// Opponent returns the other side. NoColor has no opponent.
func (c Color) Opponent() Color {
	switch c {
	case White:
		return Black
	case Black:
		return White
	default:
		return NoColor
	}
}

// forward is the row delta of a regular piece's non-capturing step.
func (c Color) forward() int {
	if c == White {
		return 1
	}
	return -1
}

// promotionRow is the far back rank for c.
func (c Color) promotionRow() int {
	if c == White {
		return Size - 1
	}
	return 0
}

// ParseColor accepts the wire names WHITE and BLACK.
func ParseColor(s string) (Color, error) {
	switch s {
	case "WHITE":
		return White, nil
	case "BLACK":
		return Black, nil
	default:
		return NoColor, fmt.Errorf("unknown color %q", s)
	}
}

// Piece occupies a square. The zero value is an empty square.
type Piece struct {
	Color Color
	Queen bool
}

func (p Piece) Empty() bool { return p.Color == NoColor }

// Square addresses a board cell by row and column, both in [0, Size).
type Square struct {
	Row int
	Col int
}

func (s Square) Valid() bool {
	return s.Row >= 0 && s.Row < Size && s.Col >= 0 && s.Col < Size
}

// Playable reports whether s is one of the dark squares pieces live on.
func (s Square) Playable() bool { return (s.Row+s.Col)%2 != 0 }

func (s Square) String() string { return fmt.Sprintf("(%d,%d)", s.Row, s.Col) }

// Move is a single leap or step of one piece.
type Move struct {
	From Square
	To   Square
}

func (m Move) String() string { return m.From.String() + "->" + m.To.String() }

// MoveResult describes what an accepted move did to the board.
type MoveResult struct {
	Move     Move
	Captured *Square
	Promoted bool
}

// Capture reports whether the move removed an enemy piece.
func (r MoveResult) Capture() bool { return r.Captured != nil }
