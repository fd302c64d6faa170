package checkers

import (
	"errors"
	"strings"
	"testing"
)

const initialEncoding = ".w.w.w.w\n" +
	"w.w.w.w.\n" +
	".w.w.w.w\n" +
	"........\n" +
	"........\n" +
	"b.b.b.b.\n" +
	".b.b.b.b\n" +
	"b.b.b.b.\n" +
	"TURN:WHITE"

func TestEncodeInitial(t *testing.T) {
	if got := Encode(NewGameState()); got != initialEncoding {
		t.Fatalf("unexpected encoding:\n%s", got)
	}
	if n := len(Lines(NewGameState())); n != EncodedLines {
		t.Fatalf("expected %d lines, got %d", EncodedLines, n)
	}
}

func TestEncodeQueens(t *testing.T) {
	s := NewEmptyState(Black)
	s.Place(Square{0, 1}, Piece{Color: Black, Queen: true})
	s.Place(Square{7, 0}, Piece{Color: White, Queen: true})
	s.Place(Square{3, 4}, Piece{Color: White})

	lines := Lines(s)
	if lines[0] != ".B......" || lines[7] != "W......." || lines[3] != "....w..." {
		t.Fatalf("unexpected rows: %q", lines)
	}
	if lines[8] != "TURN:BLACK" {
		t.Fatalf("unexpected turn line %q", lines[8])
	}

	back, err := Decode(Encode(s))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !back.Equal(s) {
		t.Fatalf("round trip mismatch:\n%s", back)
	}
}

func TestDecodeTolerance(t *testing.T) {
	for name, text := range map[string]string{
		"trailing newline": initialEncoding + "\n",
		"crlf":             strings.ReplaceAll(initialEncoding, "\n", "\r\n"),
		"crlf trailing":    strings.ReplaceAll(initialEncoding, "\n", "\r\n") + "\r\n",
	} {
		s, err := Decode(text)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if !s.Equal(NewGameState()) {
			t.Fatalf("%s: decoded state differs", name)
		}
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	rows := strings.Split(initialEncoding, "\n")
	with := func(i int, line string) string {
		cp := append([]string(nil), rows...)
		cp[i] = line
		return strings.Join(cp, "\n")
	}
	tests := map[string]string{
		"empty":          "",
		"missing turn":   strings.Join(rows[:8], "\n"),
		"extra line":     initialEncoding + "\nTURN:BLACK",
		"short row":      with(2, ".w.w.w."),
		"long row":       with(2, ".w.w.w.w."),
		"bad symbol":     with(4, "...x...."),
		"bad turn color": with(8, "TURN:RED"),
		"no turn prefix": with(8, "WHITE"),
		"turn none":      with(8, "TURN:NONE"),
		"two newlines":   initialEncoding + "\n\n",
	}
	for name, text := range tests {
		if _, err := Decode(text); !errors.Is(err, ErrMalformedState) {
			t.Fatalf("%s: expected ErrMalformedState, got %v", name, err)
		}
	}
}

func TestUnmarshalTextKeepsStateOnError(t *testing.T) {
	s := NewGameState()
	s.SwitchTurn()
	before := s.Clone()

	if err := s.UnmarshalText([]byte("garbage")); err == nil {
		t.Fatalf("expected error")
	}
	if !s.Equal(before) {
		t.Fatalf("state changed on failed unmarshal")
	}

	if err := s.UnmarshalText([]byte(initialEncoding)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s.Turn() != White {
		t.Fatalf("expected white to move, got %s", s.Turn())
	}
	raw, _ := s.MarshalText()
	if string(raw) != initialEncoding {
		t.Fatalf("marshal mismatch:\n%s", raw)
	}
}
