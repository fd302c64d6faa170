package checkers

// SelectState is the phase of the interaction that drives the engine.
type SelectState uint8

const (
	SelectIdle SelectState = iota
	SelectPiece
	SelectMustContinue
)

func (s SelectState) String() string {
	switch s {
	case SelectPiece:
		return "piece_selected"
	case SelectMustContinue:
		return "must_continue_capture"
	default:
		return "idle"
	}
}

// ClickOutcome tells the driving layer what a click did.
type ClickOutcome uint8

const (
	// Ignored: nothing changed.
	Ignored ClickOutcome = iota
	// PieceSelected: a piece of the player is now selected.
	PieceSelected
	// Rejected: the move was illegal; the selection is cleared and the turn
	// stays with the player.
	Rejected
	// ChainContinues: a capture landed and the same piece must jump again.
	ChainContinues
	// TurnComplete: the move or the whole chain is resolved; pass the turn.
	TurnComplete
	// ChainAbandoned: an illegal move was attempted mid-chain; the chain and
	// the turn end.
	ChainAbandoned
)

func (o ClickOutcome) String() string {
	switch o {
	case PieceSelected:
		return "piece_selected"
	case Rejected:
		return "rejected"
	case ChainContinues:
		return "chain_continues"
	case TurnComplete:
		return "turn_complete"
	case ChainAbandoned:
		return "chain_abandoned"
	default:
		return "ignored"
	}
}

// EndsTurn reports whether the driving layer must switch the turn and
// publish the state.
func (o ClickOutcome) EndsTurn() bool { return o == TurnComplete || o == ChainAbandoned }

// Selection is the short-lived capture-chain state machine. It lives beside a
// GameState, never inside it, and never switches the turn itself.
type Selection struct {
	state  SelectState
	square Square
	last   *MoveResult
	err    error
}

func (sel *Selection) State() SelectState { return sel.state }

// Square returns the selected piece's square; ok is false when idle.
func (sel *Selection) Square() (Square, bool) {
	return sel.square, sel.state != SelectIdle
}

// LastMove returns the most recent accepted move, if the last click made one.
func (sel *Selection) LastMove() *MoveResult { return sel.last }

// Err returns the rejection reason of the last click, if any.
func (sel *Selection) Err() error { return sel.err }

// Reset drops any selection, e.g. when a new snapshot is adopted.
func (sel *Selection) Reset() {
	sel.state = SelectIdle
	sel.square = Square{}
}

// Click feeds one user gesture on sq into the machine. mine is the color the
// local player controls; clicks are ignored while it is not mine's turn.
func (sel *Selection) Click(s *GameState, mine Color, sq Square) ClickOutcome {
	sel.last, sel.err = nil, nil
	if s.Turn() != mine || !sq.Valid() {
		return Ignored
	}
	switch sel.state {
	case SelectMustContinue:
		return sel.continueChain(s, sq)
	case SelectPiece:
		if p := s.PieceAt(sq); !p.Empty() && p.Color == mine {
			sel.square = sq
			return PieceSelected
		}
		return sel.play(s, sq)
	default:
		if p := s.PieceAt(sq); !p.Empty() && p.Color == mine {
			sel.state, sel.square = SelectPiece, sq
			return PieceSelected
		}
		return Ignored
	}
}

func (sel *Selection) play(s *GameState, to Square) ClickOutcome {
	res, err := s.Play(Move{From: sel.square, To: to})
	if err != nil {
		sel.err = err
		sel.Reset()
		return Rejected
	}
	sel.last = &res
	if res.Capture() && s.CaptureAgain(to.Row, to.Col) {
		sel.state, sel.square = SelectMustContinue, to
		return ChainContinues
	}
	sel.Reset()
	return TurnComplete
}

func (sel *Selection) continueChain(s *GameState, to Square) ClickOutcome {
	res, err := s.Play(Move{From: sel.square, To: to})
	if err != nil || !res.Capture() {
		// A non-capturing move cannot be accepted here: the selected piece
		// can still jump, so captures are mandatory.
		sel.err = err
		sel.Reset()
		return ChainAbandoned
	}
	sel.last = &res
	if s.CaptureAgain(to.Row, to.Col) {
		sel.square = to
		return ChainContinues
	}
	sel.Reset()
	return TurnComplete
}
