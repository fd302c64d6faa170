package protocol

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/park285/Cheese-Checkers/internal/checkers"
)

// Assembler turns a stream of lines from one peer into messages. Snapshot
// blocks span several lines and are only emitted once complete; single-line
// messages pass straight through. An Assembler belongs to one reader.
type Assembler struct {
	board   []string
	version uint64
	open    bool
}

// Pending reports whether a snapshot block is being collected.
func (a *Assembler) Pending() bool { return a.open }

func (a *Assembler) reset() {
	a.board = a.board[:0]
	a.version = 0
	a.open = false
}

func (a *Assembler) drop(reason string) error {
	err := fmt.Errorf("%w: snapshot block dropped after %d board lines: %s",
		checkers.ErrMalformedState, len(a.board), reason)
	a.reset()
	return err
}

// Feed consumes one line. It returns a message when one is complete, nil
// while a block is still being collected, and an error for a line or block
// that cannot be used. When a complete single-line message interrupts a
// pending block, both the message and the error for the dropped block are
// returned.
func (a *Assembler) Feed(line string) (*Message, error) {
	line = strings.TrimSuffix(line, "\r")

	if strings.HasPrefix(line, PrefixSnapshot) {
		var dropped error
		if a.open {
			dropped = a.drop("new header")
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(line, PrefixSnapshot), 10, 64)
		if err != nil {
			return nil, errors.Join(dropped, fmt.Errorf("%w: bad snapshot header %q", ErrMalformedMessage, line))
		}
		a.open, a.version = true, v
		return nil, dropped
	}

	if strings.HasPrefix(line, checkers.TurnPrefix) {
		if !a.open {
			return nil, fmt.Errorf("%w: %s line outside a snapshot block", checkers.ErrMalformedState, line)
		}
		lines := append(append([]string(nil), a.board...), line)
		version := a.version
		a.reset()
		s, err := checkers.DecodeLines(lines)
		if err != nil {
			return nil, err
		}
		return SnapshotMessage(version, s), nil
	}

	if isBoardLine(line) {
		if len(a.board) == checkers.Size {
			return nil, a.drop("too many board lines")
		}
		a.open = true
		a.board = append(a.board, line)
		return nil, nil
	}

	var dropped error
	if a.open {
		dropped = a.drop("interrupted")
	}
	msg, err := parseLine(line)
	return msg, errors.Join(dropped, err)
}

func isBoardLine(line string) bool {
	if len(line) != checkers.Size {
		return false
	}
	return strings.Trim(line, ".wbWB") == ""
}

func parseLine(line string) (*Message, error) {
	switch {
	case strings.HasPrefix(line, PrefixChat):
		return &Message{Kind: KindChat, Text: strings.TrimPrefix(line, PrefixChat)}, nil
	case strings.HasPrefix(line, PrefixColor):
		c, err := checkers.ParseColor(strings.TrimPrefix(line, PrefixColor))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return ColorMessage(c), nil
	case strings.HasPrefix(line, PrefixGameOver):
		c, err := parseResult(strings.TrimPrefix(line, PrefixGameOver))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		return GameOverMessage(c), nil
	default:
		return &Message{Kind: KindRaw, Text: line}, nil
	}
}
