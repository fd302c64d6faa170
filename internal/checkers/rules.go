package checkers

import "fmt"

type direction struct{ dr, dc int }

var diagonals = [4]direction{{-1, -1}, {-1, 1}, {1, -1}, {1, 1}}

func (sq Square) step(d direction, n int) Square {
	return Square{Row: sq.Row + d.dr*n, Col: sq.Col + d.dc*n}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	if n < 0 {
		return -1
	}
	return 1
}

// HasCaptureMoves reports whether any piece of color c can jump an enemy
// piece right now. While it is true, c may only make capturing moves.
func (s *GameState) HasCaptureMoves(c Color) bool {
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			p := s.board[row][col]
			if p.Color != c {
				continue
			}
			if s.canCapture(Square{row, col}, p) {
				return true
			}
		}
	}
	return false
}

// CaptureAgain reports whether the piece standing on (row, col) has a further
// jump available. The driving layer calls it after a capture to decide whether
// the same piece must keep jumping before the turn passes.
func (s *GameState) CaptureAgain(row, col int) bool {
	sq := Square{row, col}
	p := s.PieceAt(sq)
	if p.Empty() {
		return false
	}
	return s.canCapture(sq, p)
}

func (s *GameState) canCapture(from Square, p Piece) bool {
	for _, d := range diagonals {
		if p.Queen {
			if s.queenRayCapture(from, p.Color, d) {
				return true
			}
			continue
		}
		mid, to := from.step(d, 1), from.step(d, 2)
		if !to.Valid() {
			continue
		}
		if m := s.PieceAt(mid); !m.Empty() && m.Color != p.Color && s.PieceAt(to).Empty() {
			return true
		}
	}
	return false
}

// queenRayCapture walks one diagonal ray. A jump exists when the first piece
// met is an enemy and the square right behind it is empty. An own piece or a
// second enemy in a row ends the ray.
func (s *GameState) queenRayCapture(from Square, c Color, d direction) bool {
	enemy := false
	for sq := from.step(d, 1); sq.Valid(); sq = sq.step(d, 1) {
		p := s.PieceAt(sq)
		switch {
		case p.Empty():
			if enemy {
				return true
			}
		case p.Color != c:
			if enemy {
				return false
			}
			enemy = true
		default:
			return false
		}
	}
	return false
}

// MakeMove validates the move (fromRow,fromCol)->(toRow,toCol) for the side to
// move and applies it when legal. It never switches the turn.
func (s *GameState) MakeMove(fromRow, fromCol, toRow, toCol int) bool {
	_, err := s.Play(Move{From: Square{fromRow, fromCol}, To: Square{toRow, toCol}})
	return err == nil
}

// Play is MakeMove with a description of the outcome. Rejections wrap
// ErrIllegalMove.
func (s *GameState) Play(m Move) (MoveResult, error) {
	if !m.From.Valid() || !m.To.Valid() {
		return MoveResult{}, fmt.Errorf("%w: %s leaves the board", ErrIllegalMove, m)
	}
	if m.From == m.To {
		return MoveResult{}, fmt.Errorf("%w: %s does not move", ErrIllegalMove, m)
	}
	p := s.PieceAt(m.From)
	if p.Empty() || p.Color != s.turn {
		return MoveResult{}, fmt.Errorf("%w: no %s piece on %s", ErrIllegalMove, s.turn, m.From)
	}
	if !s.isCapture(m, p) && s.HasCaptureMoves(s.turn) {
		return MoveResult{}, fmt.Errorf("%w: %s must capture", ErrIllegalMove, s.turn)
	}
	if p.Queen {
		return s.playQueen(m, p)
	}
	return s.playRegular(m, p)
}

// isCapture classifies m before any obstruction checks: a queen move along a
// diagonal with exactly one enemy ahead of any other piece and an empty
// destination, or a regular two-square diagonal leap over an enemy.
func (s *GameState) isCapture(m Move, p Piece) bool {
	dr, dc := m.To.Row-m.From.Row, m.To.Col-m.From.Col
	if !p.Queen {
		if abs(dr) != 2 || abs(dc) != 2 {
			return false
		}
		mid := s.PieceAt(Square{m.From.Row + dr/2, m.From.Col + dc/2})
		return !mid.Empty() && mid.Color != p.Color
	}
	if abs(dr) != abs(dc) {
		return false
	}
	d := direction{sign(dr), sign(dc)}
	enemy := false
	for sq := m.From.step(d, 1); sq != m.To; sq = sq.step(d, 1) {
		q := s.PieceAt(sq)
		if q.Empty() {
			continue
		}
		if q.Color == p.Color || enemy {
			break
		}
		enemy = true
	}
	return enemy && s.PieceAt(m.To).Empty()
}

func (s *GameState) playQueen(m Move, p Piece) (MoveResult, error) {
	dr, dc := m.To.Row-m.From.Row, m.To.Col-m.From.Col
	if abs(dr) != abs(dc) {
		return MoveResult{}, fmt.Errorf("%w: %s is not diagonal", ErrIllegalMove, m)
	}
	d := direction{sign(dr), sign(dc)}
	var captured *Square
	for sq := m.From.step(d, 1); sq != m.To; sq = sq.step(d, 1) {
		q := s.PieceAt(sq)
		if q.Empty() {
			continue
		}
		if q.Color == p.Color {
			return MoveResult{}, fmt.Errorf("%w: own piece on %s blocks %s", ErrIllegalMove, sq, m)
		}
		if captured != nil {
			return MoveResult{}, fmt.Errorf("%w: %s jumps more than one piece", ErrIllegalMove, m)
		}
		hit := sq
		captured = &hit
	}
	if !s.PieceAt(m.To).Empty() {
		return MoveResult{}, fmt.Errorf("%w: %s is occupied", ErrIllegalMove, m.To)
	}
	s.relocate(m)
	if captured != nil {
		s.board[captured.Row][captured.Col] = Piece{}
	}
	return MoveResult{Move: m, Captured: captured}, nil
}

func (s *GameState) playRegular(m Move, p Piece) (MoveResult, error) {
	dr, dc := m.To.Row-m.From.Row, m.To.Col-m.From.Col
	if !s.PieceAt(m.To).Empty() {
		return MoveResult{}, fmt.Errorf("%w: %s is occupied", ErrIllegalMove, m.To)
	}
	res := MoveResult{Move: m}
	switch {
	case dr == p.Color.forward() && abs(dc) == 1:
	case abs(dr) == 2 && abs(dc) == 2:
		mid := Square{m.From.Row + dr/2, m.From.Col + dc/2}
		if q := s.PieceAt(mid); q.Empty() || q.Color == p.Color {
			return MoveResult{}, fmt.Errorf("%w: nothing to jump on %s", ErrIllegalMove, mid)
		}
		s.board[mid.Row][mid.Col] = Piece{}
		res.Captured = &mid
	default:
		return MoveResult{}, fmt.Errorf("%w: %s is not a step or a jump", ErrIllegalMove, m)
	}
	s.relocate(m)
	if m.To.Row == p.Color.promotionRow() {
		s.board[m.To.Row][m.To.Col].Queen = true
		res.Promoted = true
	}
	return res, nil
}

func (s *GameState) relocate(m Move) {
	s.board[m.To.Row][m.To.Col] = s.board[m.From.Row][m.From.Col]
	s.board[m.From.Row][m.From.Col] = Piece{}
}

// HasAnyValidMoves reports whether c has any action at all. A queen only
// probes the four adjacent diagonal squares here, not its full range.
func (s *GameState) HasAnyValidMoves(c Color) bool {
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			p := s.board[row][col]
			if p.Color != c {
				continue
			}
			sq := Square{row, col}
			if s.canCapture(sq, p) {
				return true
			}
			for _, d := range diagonals {
				if !p.Queen && d.dr != c.forward() {
					continue
				}
				if to := sq.step(d, 1); to.Valid() && s.PieceAt(to).Empty() {
					return true
				}
			}
		}
	}
	return false
}

// IsGameOver reports whether either side has run out of pieces or moves.
func (s *GameState) IsGameOver() bool {
	for _, c := range [...]Color{White, Black} {
		if s.Count(c) == 0 || !s.HasAnyValidMoves(c) {
			return true
		}
	}
	return false
}

// Winner returns the side that still has moves when exactly one side is
// stuck. Otherwise there is no winner; together with IsGameOver that is a
// draw.
func (s *GameState) Winner() (Color, bool) {
	white, black := s.HasAnyValidMoves(White), s.HasAnyValidMoves(Black)
	switch {
	case !white && black:
		return Black, true
	case !black && white:
		return White, true
	default:
		return NoColor, false
	}
}
