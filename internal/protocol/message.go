// Package protocol implements the line-oriented wire format shared by the
// relay and the clients.
package protocol

import (
	"errors"
	"strconv"
	"strings"

	"github.com/park285/Cheese-Checkers/internal/checkers"
)

const (
	PrefixColor    = "COLOR:"
	PrefixChat     = "CHAT:"
	PrefixSnapshot = "SNAPSHOT:"
	PrefixGameOver = "GAME_OVER:"

	// Remis is the GAME_OVER payload for a draw.
	Remis = "REMIS"
)

// ErrMalformedMessage marks a line that carries a known prefix but an
// unusable payload.
var ErrMalformedMessage = errors.New("malformed message")

type Kind uint8

const (
	// KindRaw is any line the protocol does not know. It is kept verbatim so
	// it can still be forwarded.
	KindRaw Kind = iota
	KindColor
	KindChat
	KindSnapshot
	KindGameOver
)

func (k Kind) String() string {
	switch k {
	case KindColor:
		return "color"
	case KindChat:
		return "chat"
	case KindSnapshot:
		return "snapshot"
	case KindGameOver:
		return "game_over"
	default:
		return "raw"
	}
}

// Message is one logical protocol message. Which fields are set depends on
// Kind.
type Message struct {
	Kind Kind

	// Color is the assigned side (KindColor) or the winner (KindGameOver,
	// NoColor for a draw).
	Color checkers.Color

	// Text is the chat body (KindChat) or the whole line (KindRaw).
	Text string

	// Version tags a snapshot; zero means the sender did not tag it.
	Version uint64
	State   *checkers.GameState
}

func ColorMessage(c checkers.Color) *Message {
	return &Message{Kind: KindColor, Color: c}
}

// ChatMessage flattens line breaks so the chat travels as a single line.
func ChatMessage(text string) *Message {
	return &Message{Kind: KindChat, Text: FlattenLine(text)}
}

func SnapshotMessage(version uint64, s *checkers.GameState) *Message {
	return &Message{Kind: KindSnapshot, Version: version, State: s}
}

// GameOverMessage announces the end of the match; NoColor means a draw.
func GameOverMessage(winner checkers.Color) *Message {
	return &Message{Kind: KindGameOver, Color: winner}
}

// FlattenLine replaces line breaks with spaces.
func FlattenLine(text string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
}

// Lines renders m as wire lines, without line terminators.
func (m *Message) Lines() []string {
	switch m.Kind {
	case KindColor:
		return []string{PrefixColor + m.Color.String()}
	case KindChat:
		return []string{PrefixChat + FlattenLine(m.Text)}
	case KindGameOver:
		return []string{PrefixGameOver + ResultString(m.Color)}
	case KindSnapshot:
		board := checkers.Lines(m.State)
		if m.Version == 0 {
			return board
		}
		return append([]string{PrefixSnapshot + strconv.FormatUint(m.Version, 10)}, board...)
	default:
		return []string{m.Text}
	}
}

// ResultString is the GAME_OVER payload for winner.
func ResultString(winner checkers.Color) string {
	if winner == checkers.NoColor {
		return Remis
	}
	return winner.String()
}

func parseResult(s string) (checkers.Color, error) {
	if s == Remis {
		return checkers.NoColor, nil
	}
	return checkers.ParseColor(s)
}
