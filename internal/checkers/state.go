package checkers

// GameState is one copy of the board plus the side to move. It is not safe
// for concurrent use; exactly one goroutine may own a given state.
type GameState struct {
	board [Size][Size]Piece
	turn  Color
}

// NewGameState returns the initial position: White on the dark squares of
// rows 0-2, Black on the dark squares of rows 5-7, White to move.
func NewGameState() *GameState {
	s := &GameState{turn: White}
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			if !(Square{row, col}).Playable() {
				continue
			}
			switch {
			case row < 3:
				s.board[row][col] = Piece{Color: White}
			case row > 4:
				s.board[row][col] = Piece{Color: Black}
			}
		}
	}
	return s
}

// NewEmptyState returns a board with no pieces and the given side to move.
func NewEmptyState(turn Color) *GameState {
	return &GameState{turn: turn}
}

func (s *GameState) Turn() Color { return s.turn }

// SwitchTurn passes the move to the other side. The engine never calls it;
// the driving layer does once a move or a whole capture chain is resolved.
func (s *GameState) SwitchTurn() { s.turn = s.turn.Opponent() }

// PieceAt returns the piece on sq; off-board squares read as empty.
func (s *GameState) PieceAt(sq Square) Piece {
	if !sq.Valid() {
		return Piece{}
	}
	return s.board[sq.Row][sq.Col]
}

// Place puts p on sq, replacing whatever was there. It exists for setting up
// positions and is not a move.
func (s *GameState) Place(sq Square, p Piece) {
	if sq.Valid() {
		s.board[sq.Row][sq.Col] = p
	}
}

// Count returns the number of pieces of color c on the board.
func (s *GameState) Count(c Color) int {
	n := 0
	for row := range s.board {
		for col := range s.board[row] {
			if s.board[row][col].Color == c {
				n++
			}
		}
	}
	return n
}

// Clone returns an independent copy.
func (s *GameState) Clone() *GameState {
	cp := *s
	return &cp
}

// Equal reports whether both states have the same occupancy, colors,
// promotion flags and turn.
func (s *GameState) Equal(o *GameState) bool {
	if s == nil || o == nil {
		return s == o
	}
	return s.board == o.board && s.turn == o.turn
}
