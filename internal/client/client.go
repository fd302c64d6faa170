// Package client runs one player's side of a match: it keeps the local board,
// turns clicks into moves and publishes the board after every turn.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/Cheese-Checkers/internal/chatlog"
	"github.com/park285/Cheese-Checkers/internal/checkers"
	"github.com/park285/Cheese-Checkers/internal/obslog"
	"github.com/park285/Cheese-Checkers/internal/protocol"
)

var (
	ErrNotYourTurn  = errors.New("not your turn")
	ErrNoColor      = errors.New("no colour assigned yet")
	ErrGameOver     = errors.New("game is over")
	ErrStopped      = errors.New("client stopped")
	ErrDisconnected = errors.New("disconnected from relay")
)

// Frame is what a view needs to draw the board.
type Frame struct {
	// State is a copy; views may keep it.
	State        *checkers.GameState
	Mine         checkers.Color
	Version      uint64
	Selected     *checkers.Square
	MustContinue bool
	LastMove     *checkers.Move
}

// View is the presentation layer. The client calls it from its owner
// goroutine only; a view that is also used by other goroutines must do its
// own locking.
type View interface {
	Color(mine checkers.Color)
	Board(f Frame)
	Chat(text string)
	// GameOver reports the winner, NoColor for a draw.
	GameOver(winner checkers.Color)
	// Rejected reports a click that did not do what the player meant.
	// ChainAbandoned also ends the turn.
	Rejected(outcome checkers.ClickOutcome, reason error)
}

type eventKind uint8

const (
	evClick eventKind = iota
	evMove
	evSay
	evRedraw
)

type event struct {
	kind     eventKind
	from, to checkers.Square
	text     string
}

type Client struct {
	conn   protocol.Conn
	view   View
	chat   *chatlog.Log
	events chan event
	done   chan struct{}

	// Owned by the owner loop.
	state    *checkers.GameState
	sel      checkers.Selection
	mine     checkers.Color
	version  uint64
	over     bool
	lastMove *checkers.Move
}

// New wraps an established connection. chat may be nil.
func New(conn protocol.Conn, view View, chat *chatlog.Log) *Client {
	return &Client{
		conn:   conn,
		view:   view,
		chat:   chat,
		events: make(chan event, 16),
		done:   make(chan struct{}),
		state:  checkers.NewGameState(),
	}
}

// Dial connects to the relay at addr and returns an unstarted client.
func Dial(ctx context.Context, addr string, view View, chat *chatlog.Log) (*Client, error) {
	conn, err := protocol.Dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return New(conn, view, chat), nil
}

// Run serves the connection until the relay goes away or ctx is cancelled.
// It closes the connection on return.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.conn.Close()

	remote := make(chan *protocol.Message)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.receive(gctx, remote) })
	g.Go(func() error { return c.own(gctx, remote) })
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Click feeds one board click into the selection machine.
func (c *Client) Click(ctx context.Context, sq checkers.Square) error {
	return c.submit(ctx, event{kind: evClick, to: sq})
}

// Move plays from to to regardless of any earlier selection. While a capture
// chain is pending, from must be the chaining piece.
func (c *Client) Move(ctx context.Context, from, to checkers.Square) error {
	return c.submit(ctx, event{kind: evMove, from: from, to: to})
}

func (c *Client) Say(ctx context.Context, text string) error {
	return c.submit(ctx, event{kind: evSay, text: text})
}

// Redraw asks for a fresh View.Board call.
func (c *Client) Redraw(ctx context.Context) error {
	return c.submit(ctx, event{kind: evRedraw})
}

func (c *Client) submit(ctx context.Context, ev event) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) receive(ctx context.Context, remote chan<- *protocol.Message) error {
	var asm protocol.Assembler
	for {
		line, err := c.conn.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return ErrDisconnected
			}
			return fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		msg, err := asm.Feed(line)
		if err != nil {
			obslog.L().Warn("client_line_rejected", zap.Error(err))
		}
		if msg == nil {
			continue
		}
		select {
		case remote <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Client) own(ctx context.Context, remote <-chan *protocol.Message) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-remote:
			c.handleRemote(msg)
		case ev := <-c.events:
			if err := c.handleLocal(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handleRemote(msg *protocol.Message) {
	switch msg.Kind {
	case protocol.KindColor:
		c.mine = msg.Color
		obslog.L().Info("client_color", zap.Stringer("color", c.mine))
		c.view.Color(c.mine)
		c.view.Board(c.frame())
	case protocol.KindChat:
		if err := c.chat.Append(msg.Text); err != nil {
			obslog.L().Warn("client_chat_log_failed", zap.Error(err))
		}
		c.view.Chat(msg.Text)
	case protocol.KindSnapshot:
		c.adopt(msg)
	case protocol.KindGameOver:
		c.over = true
		c.sel.Reset()
		obslog.L().Info("client_game_over", zap.String("result", protocol.ResultString(msg.Color)))
		c.view.GameOver(msg.Color)
	default:
		obslog.L().Debug("client_unknown_line", zap.String("line", msg.Text))
	}
}

// adopt replaces the local board with a remote snapshot when its version is
// not older than the local one. Untagged snapshots are always adopted and
// keep the local version.
func (c *Client) adopt(msg *protocol.Message) {
	if msg.Version != 0 && msg.Version < c.version {
		obslog.L().Debug("client_snapshot_ignored",
			zap.Uint64("version", msg.Version),
			zap.Uint64("local", c.version))
		return
	}
	if !msg.State.Equal(c.state) {
		c.lastMove = nil
	}
	if msg.Version != 0 {
		c.version = msg.Version
	}
	c.state = msg.State
	c.sel.Reset()
	c.view.Board(c.frame())
}

func (c *Client) handleLocal(ctx context.Context, ev event) error {
	switch ev.kind {
	case evSay:
		return protocol.WriteMessage(ctx, c.conn, protocol.ChatMessage(ev.text))
	case evRedraw:
		c.view.Board(c.frame())
		return nil
	case evMove:
		return c.playMove(ctx, ev.from, ev.to)
	default:
		_, err := c.click(ctx, ev.to, false)
		return err
	}
}

// playMove plays from to to as one gesture. Any earlier selection is dropped,
// except a pending chain, which only its own piece may continue.
func (c *Client) playMove(ctx context.Context, from, to checkers.Square) error {
	if c.sel.State() == checkers.SelectMustContinue {
		if at, _ := c.sel.Square(); at != from {
			c.view.Rejected(checkers.Rejected, fmt.Errorf("%w: the piece on %s must capture again", checkers.ErrIllegalMove, at))
			return nil
		}
	} else {
		c.sel.Reset()
		out, err := c.click(ctx, from, true)
		if err != nil || out != checkers.PieceSelected {
			return err
		}
	}
	_, err := c.click(ctx, to, true)
	return err
}

// click runs one click and reports its result to the view. strict reports
// ignored clicks on empty squares too.
func (c *Client) click(ctx context.Context, sq checkers.Square, strict bool) (checkers.ClickOutcome, error) {
	if reason := c.blocked(); reason != nil {
		c.view.Rejected(checkers.Ignored, reason)
		return checkers.Ignored, nil
	}
	out := c.sel.Click(c.state, c.mine, sq)
	if last := c.sel.LastMove(); last != nil {
		mv := last.Move
		c.lastMove = &mv
	}
	switch out {
	case checkers.Ignored:
		if strict {
			c.view.Rejected(out, fmt.Errorf("%w: no %s piece on %s", checkers.ErrIllegalMove, c.mine, sq))
		}
	case checkers.Rejected:
		c.view.Rejected(out, c.sel.Err())
		c.view.Board(c.frame())
	case checkers.PieceSelected, checkers.ChainContinues:
		c.view.Board(c.frame())
	case checkers.ChainAbandoned:
		c.view.Rejected(out, c.sel.Err())
	}
	if out.EndsTurn() {
		return out, c.endTurn(ctx)
	}
	return out, nil
}

func (c *Client) blocked() error {
	switch {
	case c.over:
		return ErrGameOver
	case c.mine == checkers.NoColor:
		return ErrNoColor
	case c.state.Turn() != c.mine:
		return ErrNotYourTurn
	default:
		return nil
	}
}

// endTurn hands the move to the opponent and publishes the board, followed by
// the result when the game has ended.
func (c *Client) endTurn(ctx context.Context) error {
	c.state.SwitchTurn()
	c.version++
	c.view.Board(c.frame())
	if err := protocol.WriteMessage(ctx, c.conn, protocol.SnapshotMessage(c.version, c.state)); err != nil {
		return fmt.Errorf("send snapshot: %w", err)
	}
	obslog.L().Debug("client_snapshot_sent", zap.Uint64("version", c.version))
	if !c.state.IsGameOver() {
		return nil
	}
	winner, _ := c.state.Winner()
	c.over = true
	if err := protocol.WriteMessage(ctx, c.conn, protocol.GameOverMessage(winner)); err != nil {
		return fmt.Errorf("send game over: %w", err)
	}
	return nil
}

func (c *Client) frame() Frame {
	f := Frame{
		State:    c.state.Clone(),
		Mine:     c.mine,
		Version:  c.version,
		LastMove: c.lastMove,
	}
	if sq, ok := c.sel.Square(); ok {
		f.Selected = &sq
		f.MustContinue = c.sel.State() == checkers.SelectMustContinue
	}
	return f
}
