package checkers

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sq(row, col int) Square { return Square{Row: row, Col: col} }

func setup(turn Color, pieces map[Square]Piece) *GameState {
	s := NewEmptyState(turn)
	for at, p := range pieces {
		s.Place(at, p)
	}
	return s
}

var (
	whiteMan   = Piece{Color: White}
	blackMan   = Piece{Color: Black}
	whiteQueen = Piece{Color: White, Queen: true}
)

func TestInitialState(t *testing.T) {
	s := NewGameState()
	assert.Equal(t, White, s.Turn())
	assert.Equal(t, 12, s.Count(White))
	assert.Equal(t, 12, s.Count(Black))

	empty := 0
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			p := s.PieceAt(sq(row, col))
			if p.Empty() {
				empty++
				continue
			}
			assert.True(t, sq(row, col).Playable(), "piece on light square (%d,%d)", row, col)
			assert.False(t, p.Queen)
			switch {
			case row <= 2:
				assert.Equal(t, White, p.Color)
			case row >= 5:
				assert.Equal(t, Black, p.Color)
			default:
				t.Fatalf("piece on middle row %d", row)
			}
		}
	}
	assert.Equal(t, 40, empty)
	assert.False(t, s.IsGameOver())
}

func TestSimpleMoves(t *testing.T) {
	tests := []struct {
		name  string
		turn  Color
		move  Move
		legal bool
	}{
		{"white forward left", White, Move{sq(2, 1), sq(3, 0)}, true},
		{"white forward right", White, Move{sq(2, 1), sq(3, 2)}, true},
		{"white two rows", White, Move{sq(2, 1), sq(4, 3)}, false},
		{"white sideways", White, Move{sq(2, 1), sq(2, 3)}, false},
		{"white onto occupied", White, Move{sq(1, 0), sq(2, 1)}, false},
		{"black piece on white turn", White, Move{sq(5, 0), sq(4, 1)}, false},
		{"empty origin", White, Move{sq(3, 0), sq(4, 1)}, false},
		{"off the board", White, Move{sq(2, 7), sq(3, 8)}, false},
		{"no movement", White, Move{sq(2, 1), sq(2, 1)}, false},
		{"black forward", Black, Move{sq(5, 0), sq(4, 1)}, true},
		{"black backward", Black, Move{sq(5, 0), sq(6, 1)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewGameState()
			if s.Turn() != tt.turn {
				s.SwitchTurn()
			}
			before := s.Clone()
			ok := s.MakeMove(tt.move.From.Row, tt.move.From.Col, tt.move.To.Row, tt.move.To.Col)
			require.Equal(t, tt.legal, ok)
			if !ok {
				assert.True(t, before.Equal(s), "rejected move changed the board")
				return
			}
			assert.True(t, s.PieceAt(tt.move.From).Empty())
			assert.Equal(t, tt.turn, s.PieceAt(tt.move.To).Color)
			assert.Equal(t, tt.turn, s.Turn(), "MakeMove must not switch the turn")
		})
	}
}

func TestPlayRejectionWrapsIllegalMove(t *testing.T) {
	s := NewGameState()
	_, err := s.Play(Move{sq(2, 1), sq(4, 3)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalMove))
}

func TestCaptureScenario(t *testing.T) {
	s := setup(White, map[Square]Piece{sq(2, 1): whiteMan, sq(3, 2): blackMan, sq(7, 0): blackMan})

	require.True(t, s.HasCaptureMoves(White))
	require.True(t, s.MakeMove(2, 1, 4, 3))
	assert.True(t, s.PieceAt(sq(3, 2)).Empty())
	assert.True(t, s.PieceAt(sq(2, 1)).Empty())
	assert.Equal(t, whiteMan, s.PieceAt(sq(4, 3)))
	assert.False(t, s.CaptureAgain(4, 3))

	chain := setup(White, map[Square]Piece{sq(2, 1): whiteMan, sq(3, 2): blackMan, sq(5, 4): blackMan})
	res, err := chain.Play(Move{sq(2, 1), sq(4, 3)})
	require.NoError(t, err)
	require.True(t, res.Capture())
	assert.Equal(t, sq(3, 2), *res.Captured)
	assert.True(t, chain.CaptureAgain(4, 3))
}

func TestMandatoryCaptureBlocksOtherPieces(t *testing.T) {
	s := setup(White, map[Square]Piece{sq(2, 1): whiteMan, sq(3, 2): blackMan, sq(2, 5): whiteMan})

	assert.False(t, s.MakeMove(2, 5, 3, 6), "non-capturing move while a capture exists")
	assert.False(t, s.MakeMove(2, 1, 3, 0), "capturing piece may not step either")
	assert.True(t, s.MakeMove(2, 1, 4, 3))
}

func TestRegularPieceCapturesBackwards(t *testing.T) {
	s := setup(White, map[Square]Piece{sq(4, 3): whiteMan, sq(3, 2): blackMan})

	require.True(t, s.HasCaptureMoves(White))
	require.True(t, s.MakeMove(4, 3, 2, 1))
	assert.True(t, s.PieceAt(sq(3, 2)).Empty())
	assert.False(t, s.PieceAt(sq(2, 1)).Queen)
}

func TestRegularCaptureNeedsEmptyLanding(t *testing.T) {
	s := setup(White, map[Square]Piece{sq(2, 1): whiteMan, sq(3, 2): blackMan, sq(4, 3): blackMan})

	assert.False(t, s.HasCaptureMoves(White))
	assert.False(t, s.MakeMove(2, 1, 4, 3))
}

func TestPromotion(t *testing.T) {
	t.Run("white simple move", func(t *testing.T) {
		s := setup(White, map[Square]Piece{sq(6, 1): whiteMan, sq(0, 7): blackMan})
		res, err := s.Play(Move{sq(6, 1), sq(7, 2)})
		require.NoError(t, err)
		assert.True(t, res.Promoted)
		assert.True(t, s.PieceAt(sq(7, 2)).Queen)
	})
	t.Run("black simple move", func(t *testing.T) {
		s := setup(Black, map[Square]Piece{sq(1, 2): blackMan, sq(7, 0): whiteMan})
		require.True(t, s.MakeMove(1, 2, 0, 1))
		assert.True(t, s.PieceAt(sq(0, 1)).Queen)
	})
	t.Run("first leap of a chain", func(t *testing.T) {
		s := setup(White, map[Square]Piece{sq(5, 2): whiteMan, sq(6, 3): blackMan, sq(6, 5): blackMan})
		res, err := s.Play(Move{sq(5, 2), sq(7, 4)})
		require.NoError(t, err)
		assert.True(t, res.Promoted)
		assert.True(t, s.PieceAt(sq(7, 4)).Queen)
		// Promoted mid-chain, the piece now jumps like a queen.
		assert.True(t, s.CaptureAgain(7, 4))
		require.True(t, s.MakeMove(7, 4, 4, 7))
		assert.True(t, s.PieceAt(sq(6, 5)).Empty())
	})
	t.Run("queen stays queen", func(t *testing.T) {
		s := setup(White, map[Square]Piece{sq(7, 2): whiteQueen, sq(0, 7): blackMan})
		require.True(t, s.MakeMove(7, 2, 3, 6))
		assert.True(t, s.PieceAt(sq(3, 6)).Queen)
	})
}

func TestQueenCapture(t *testing.T) {
	base := func() *GameState {
		return setup(White, map[Square]Piece{sq(4, 4): whiteQueen, sq(2, 2): blackMan, sq(7, 6): blackMan})
	}

	s := base()
	require.True(t, s.HasCaptureMoves(White))

	for _, landing := range []Square{sq(1, 1), sq(0, 0)} {
		s := base()
		res, err := s.Play(Move{sq(4, 4), landing})
		require.NoError(t, err, "landing on %s", landing)
		require.True(t, res.Capture())
		assert.Equal(t, sq(2, 2), *res.Captured)
		assert.True(t, s.PieceAt(sq(2, 2)).Empty())
		assert.Equal(t, whiteQueen, s.PieceAt(landing))
	}

	s = base()
	assert.False(t, s.MakeMove(4, 4, 3, 3), "stopping short of the enemy is not a capture")
	assert.False(t, s.MakeMove(4, 4, 5, 5), "captures are mandatory for queens too")
}

func TestQueenLongRangeApproach(t *testing.T) {
	s := setup(White, map[Square]Piece{sq(6, 6): whiteQueen, sq(2, 2): blackMan})

	require.True(t, s.HasCaptureMoves(White))
	require.True(t, s.MakeMove(6, 6, 1, 1))
	assert.True(t, s.PieceAt(sq(2, 2)).Empty())
}

func TestQueenStackedEnemiesBlock(t *testing.T) {
	s := setup(White, map[Square]Piece{sq(4, 4): whiteQueen, sq(2, 2): blackMan, sq(1, 1): blackMan})

	assert.False(t, s.HasCaptureMoves(White))
	assert.False(t, s.MakeMove(4, 4, 0, 0))
	assert.True(t, s.MakeMove(4, 4, 3, 3), "plain queen move is fine without captures")
}

func TestQueenPathBlockedByOwnPiece(t *testing.T) {
	s := setup(White, map[Square]Piece{sq(4, 4): whiteQueen, sq(2, 2): whiteMan, sq(0, 7): blackMan})

	assert.False(t, s.MakeMove(4, 4, 1, 1))
	assert.False(t, s.MakeMove(4, 4, 4, 6), "queens move along diagonals only")
	assert.True(t, s.MakeMove(4, 4, 3, 3))
}

func TestQueenCaptureAfterOwnPieceIsBlocked(t *testing.T) {
	s := setup(White, map[Square]Piece{sq(5, 5): whiteQueen, sq(4, 4): whiteMan, sq(3, 3): blackMan})

	// The man on (4,4) shadows the enemy for the queen but can jump it itself.
	assert.True(t, s.HasCaptureMoves(White))
	assert.False(t, s.MakeMove(5, 5, 2, 2))
	assert.True(t, s.MakeMove(4, 4, 2, 2))
}

func TestHasAnyValidMoves(t *testing.T) {
	tests := []struct {
		name   string
		pieces map[Square]Piece
		color  Color
		want   bool
	}{
		{"initial white", pieces(NewGameState()), White, true},
		{"regular on far rank", map[Square]Piece{sq(7, 0): whiteMan}, White, false},
		{"regular blocked forward", map[Square]Piece{sq(3, 0): whiteMan, sq(4, 1): whiteMan, sq(5, 2): whiteMan}, White, true},
		{"capture only", map[Square]Piece{sq(0, 1): blackMan, sq(1, 2): whiteMan}, Black, true},
		{"queen boxed in by double enemies", map[Square]Piece{sq(7, 0): whiteQueen, sq(6, 1): blackMan, sq(5, 2): blackMan}, White, false},
		{"queen with a free neighbour", map[Square]Piece{sq(7, 0): whiteQueen}, White, true},
		{"no pieces", map[Square]Piece{sq(7, 0): whiteMan}, Black, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setup(tt.color, tt.pieces)
			assert.Equal(t, tt.want, s.HasAnyValidMoves(tt.color))
		})
	}
}

func pieces(s *GameState) map[Square]Piece {
	out := map[Square]Piece{}
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			if p := s.board[row][col]; !p.Empty() {
				out[sq(row, col)] = p
			}
		}
	}
	return out
}

func TestGameOverAndWinner(t *testing.T) {
	t.Run("side without pieces loses", func(t *testing.T) {
		s := setup(Black, map[Square]Piece{sq(2, 1): whiteMan, sq(3, 4): whiteMan})
		assert.True(t, s.IsGameOver())
		winner, ok := s.Winner()
		require.True(t, ok)
		assert.Equal(t, White, winner)
	})
	t.Run("side without moves loses", func(t *testing.T) {
		s := setup(White, map[Square]Piece{sq(7, 0): whiteQueen, sq(6, 1): blackMan, sq(5, 2): blackMan})
		assert.True(t, s.IsGameOver())
		winner, ok := s.Winner()
		require.True(t, ok)
		assert.Equal(t, Black, winner)
	})
	t.Run("both stuck is a draw", func(t *testing.T) {
		s := setup(White, map[Square]Piece{sq(7, 0): whiteMan, sq(0, 1): blackMan})
		assert.True(t, s.IsGameOver())
		_, ok := s.Winner()
		assert.False(t, ok)
	})
	t.Run("running game", func(t *testing.T) {
		s := NewGameState()
		_, ok := s.Winner()
		assert.False(t, ok)
		assert.False(t, s.IsGameOver())
	})
}

// legalMoves finds every accepted move for the side to move by trying all of
// them on clones.
func legalMoves(s *GameState, from *Square) []MoveResult {
	var out []MoveResult
	for fr := 0; fr < Size; fr++ {
		for fc := 0; fc < Size; fc++ {
			if from != nil && *from != sq(fr, fc) {
				continue
			}
			if s.board[fr][fc].Color != s.turn {
				continue
			}
			for tr := 0; tr < Size; tr++ {
				for tc := 0; tc < Size; tc++ {
					res, err := s.Clone().Play(Move{sq(fr, fc), sq(tr, tc)})
					if err == nil {
						out = append(out, res)
					}
				}
			}
		}
	}
	return out
}

func TestRandomPlayoutsKeepInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for game := 0; game < 20; game++ {
		s := NewGameState()
		for ply := 0; ply < 200 && !s.IsGameOver(); ply++ {
			moves := legalMoves(s, nil)
			mustCapture := s.HasCaptureMoves(s.Turn())
			for _, m := range moves {
				if mustCapture {
					require.True(t, m.Capture(), "non-capture %s accepted while a capture exists\n%s", m.Move, s)
				}
			}
			if len(moves) == 0 {
				// Only possible when HasAnyValidMoves disagrees, which would
				// make IsGameOver true.
				t.Fatalf("no legal move but game not over\n%s", s)
			}
			pick := moves[rng.Intn(len(moves))]
			require.NoError(t, playMove(s, pick.Move))
			at := pick.Move.To
			for pick.Capture() && s.CaptureAgain(at.Row, at.Col) {
				next := legalMoves(s, &at)
				var captures []MoveResult
				for _, m := range next {
					if m.Capture() {
						captures = append(captures, m)
					}
				}
				require.NotEmpty(t, captures, "CaptureAgain true but no jump found\n%s", s)
				pick = captures[rng.Intn(len(captures))]
				require.NoError(t, playMove(s, pick.Move))
				at = pick.Move.To
			}
			s.SwitchTurn()

			decoded, err := Decode(Encode(s))
			require.NoError(t, err)
			require.True(t, s.Equal(decoded), "codec round trip differs\n%s", s)
			for row := 0; row < Size; row++ {
				for col := 0; col < Size; col++ {
					if !s.board[row][col].Empty() {
						require.True(t, sq(row, col).Playable())
					}
				}
			}
		}
	}
}

func playMove(s *GameState, m Move) error {
	_, err := s.Play(m)
	return err
}
