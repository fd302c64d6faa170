package checkers

import (
	"fmt"
	"strings"
)

// TurnPrefix starts the last line of an encoded state.
const TurnPrefix = "TURN:"

// EncodedLines is the number of lines in an encoded state: one per board row
// plus the turn line.
const EncodedLines = Size + 1

func pieceSymbol(p Piece) byte {
	var b byte
	switch p.Color {
	case White:
		b = 'w'
	case Black:
		b = 'b'
	default:
		return '.'
	}
	if p.Queen {
		b -= 'a' - 'A'
	}
	return b
}

func symbolPiece(b byte) (Piece, bool) {
	switch b {
	case '.':
		return Piece{}, true
	case 'w':
		return Piece{Color: White}, true
	case 'W':
		return Piece{Color: White, Queen: true}, true
	case 'b':
		return Piece{Color: Black}, true
	case 'B':
		return Piece{Color: Black, Queen: true}, true
	default:
		return Piece{}, false
	}
}

// Encode renders s as eight rows of eight symbols followed by TURN:<color>.
// There is no trailing newline.
func Encode(s *GameState) string {
	var b strings.Builder
	b.Grow(EncodedLines * (Size + 1))
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			b.WriteByte(pieceSymbol(s.board[row][col]))
		}
		b.WriteByte('\n')
	}
	b.WriteString(TurnPrefix)
	b.WriteString(s.turn.String())
	return b.String()
}

// Lines returns Encode(s) split into its nine lines.
func Lines(s *GameState) []string {
	return strings.Split(Encode(s), "\n")
}

func (s *GameState) String() string { return Encode(s) }

// Decode parses the output of Encode into a fresh state. One trailing newline
// and CRLF line endings are tolerated; anything else that deviates from the
// format is rejected with an error wrapping ErrMalformedState.
func Decode(text string) (*GameState, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	return DecodeLines(strings.Split(text, "\n"))
}

// DecodeLines is Decode for input that is already split into lines.
func DecodeLines(lines []string) (*GameState, error) {
	if len(lines) != EncodedLines {
		return nil, fmt.Errorf("%w: want %d lines, got %d", ErrMalformedState, EncodedLines, len(lines))
	}
	s := &GameState{}
	for row := 0; row < Size; row++ {
		line := strings.TrimSuffix(lines[row], "\r")
		if len(line) != Size {
			return nil, fmt.Errorf("%w: row %d has %d symbols", ErrMalformedState, row, len(line))
		}
		for col := 0; col < Size; col++ {
			p, ok := symbolPiece(line[col])
			if !ok {
				return nil, fmt.Errorf("%w: unexpected symbol %q at (%d,%d)", ErrMalformedState, line[col], row, col)
			}
			s.board[row][col] = p
		}
	}
	turnLine := strings.TrimSuffix(lines[Size], "\r")
	if !strings.HasPrefix(turnLine, TurnPrefix) {
		return nil, fmt.Errorf("%w: missing %s line", ErrMalformedState, strings.TrimSuffix(TurnPrefix, ":"))
	}
	turn, err := ParseColor(strings.TrimSpace(strings.TrimPrefix(turnLine, TurnPrefix)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	s.turn = turn
	return s, nil
}

func (s *GameState) MarshalText() ([]byte, error) { return []byte(Encode(s)), nil }

// UnmarshalText replaces s only when text decodes cleanly.
func (s *GameState) UnmarshalText(text []byte) error {
	decoded, err := Decode(string(text))
	if err != nil {
		return err
	}
	*s = *decoded
	return nil
}
