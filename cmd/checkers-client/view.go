package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/park285/Cheese-Checkers/internal/checkers"
	"github.com/park285/Cheese-Checkers/internal/client"
	"github.com/park285/Cheese-Checkers/internal/msgcat"
	"github.com/park285/Cheese-Checkers/internal/render"
)

// termView prints the game to a terminal.
type termView struct {
	mu   sync.Mutex
	out  io.Writer
	cat  *msgcat.Catalog
	last client.Frame
}

func newTermView(out io.Writer, cat *msgcat.Catalog) *termView {
	return &termView{out: out, cat: cat}
}

func (v *termView) say(key string, data map[string]any, fallback string) {
	fmt.Fprintln(v.out, v.cat.Text(key, data, fallback))
}

func (v *termView) Color(mine checkers.Color) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.say("client.color", map[string]any{"Color": mine.String()}, "You play "+mine.String()+".")
}

func (v *termView) Board(f client.Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.last = f
	fmt.Fprint(v.out, drawBoard(f))
	switch {
	case f.Mine == checkers.NoColor:
	case f.MustContinue && f.Selected != nil:
		v.say("client.chain", map[string]any{"Square": fmtSquare(*f.Selected)}, "Capture again.")
	case f.Selected != nil:
		v.say("client.selected", map[string]any{"Square": fmtSquare(*f.Selected)}, "Selected.")
	case f.State.Turn() == f.Mine:
		v.say("client.your_turn", map[string]any{"Color": f.Mine.String()}, "Your move.")
	default:
		v.say("client.their_turn", map[string]any{"Color": f.State.Turn().String()}, "Waiting for the opponent.")
	}
}

func (v *termView) Chat(text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.say("client.chat", map[string]any{"Text": text}, "chat> "+text)
}

func (v *termView) GameOver(winner checkers.Color) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if winner == checkers.NoColor {
		v.say("client.game_over.remis", nil, "Game over. Draw.")
		return
	}
	v.say("client.game_over.win", map[string]any{"Winner": winner.String()}, "Game over. "+winner.String()+" wins.")
}

func (v *termView) Rejected(outcome checkers.ClickOutcome, reason error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	msg := "rejected"
	if reason != nil {
		msg = reason.Error()
	}
	if outcome == checkers.ChainAbandoned {
		v.say("client.abandoned", map[string]any{"Reason": msg}, "Capture chain broken: "+msg)
		return
	}
	v.say("client.rejected", map[string]any{"Reason": msg}, "Illegal move: "+msg)
}

func (v *termView) print(key string, data map[string]any, fallback string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.say(key, data, fallback)
}

// savePNG renders the last drawn frame to path.
func (v *termView) savePNG(ctx context.Context, path string) error {
	v.mu.Lock()
	f := v.last
	v.mu.Unlock()
	if f.State == nil {
		return fmt.Errorf("no board yet")
	}
	img, err := render.RenderPNG(ctx, f.State, v.pngOptions(f))
	if err != nil {
		return err
	}
	return os.WriteFile(path, img, 0o644)
}

// pngOptions fills the image HUD from the catalog and orients the board to
// the player's side.
func (v *termView) pngOptions(f client.Frame) render.Options {
	turn := f.State.Turn().String()
	opts := render.Options{
		Header:   v.cat.Text("client.png_header", map[string]any{"Color": f.Mine.String()}, f.Mine.String()),
		Turn:     v.cat.Text("status.turn", map[string]any{"Turn": turn, "Version": f.Version}, turn),
		LastMove: f.LastMove,
		Flip:     f.Mine == checkers.Black,
	}
	if f.Selected != nil {
		opts.Highlight = []checkers.Square{*f.Selected}
	}
	return opts
}

// drawBoard prints the board from the player's side: row 7 on top for White,
// row 0 on top for Black.
func drawBoard(f client.Frame) string {
	flip := f.Mine == checkers.Black
	var b strings.Builder
	b.WriteString("\n    ")
	for i := 0; i < checkers.Size; i++ {
		col := i
		if flip {
			col = checkers.Size - 1 - i
		}
		fmt.Fprintf(&b, " %d ", col)
	}
	b.WriteString("\n")
	for i := 0; i < checkers.Size; i++ {
		row := checkers.Size - 1 - i
		if flip {
			row = i
		}
		fmt.Fprintf(&b, " %d  ", row)
		for j := 0; j < checkers.Size; j++ {
			col := j
			if flip {
				col = checkers.Size - 1 - j
			}
			sq := checkers.Square{Row: row, Col: col}
			sym := symbol(f.State.PieceAt(sq), sq)
			if f.Selected != nil && *f.Selected == sq {
				fmt.Fprintf(&b, "[%c]", sym)
			} else {
				fmt.Fprintf(&b, " %c ", sym)
			}
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func symbol(p checkers.Piece, sq checkers.Square) byte {
	switch {
	case p.Color == checkers.White && p.Queen:
		return 'W'
	case p.Color == checkers.White:
		return 'w'
	case p.Color == checkers.Black && p.Queen:
		return 'B'
	case p.Color == checkers.Black:
		return 'b'
	case sq.Playable():
		return '.'
	default:
		return ' '
	}
}

func fmtSquare(sq checkers.Square) string { return fmt.Sprintf("%d,%d", sq.Row, sq.Col) }
