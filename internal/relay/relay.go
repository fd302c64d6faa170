// Package relay pairs two sessions into a match and fans every message out to
// both of them.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"nhooyr.io/websocket"

	"github.com/park285/Cheese-Checkers/internal/checkers"
	"github.com/park285/Cheese-Checkers/internal/config"
	"github.com/park285/Cheese-Checkers/internal/matchstore"
	"github.com/park285/Cheese-Checkers/internal/obslog"
	"github.com/park285/Cheese-Checkers/internal/protocol"
)

const (
	WSPath       = "/ws"
	storeTimeout = 5 * time.Second
)

// ErrRelayFull is returned for connections beyond the first two.
var ErrRelayFull = errors.New("relay already has two players")

// Archiver stores finished matches. *matchstore.Repository implements it.
type Archiver interface {
	SaveResult(ctx context.Context, m *matchstore.Match) error
}

type Relay struct {
	addr         string
	wsAddr       string
	sendQueue    int
	writeTimeout time.Duration

	store   matchstore.Store
	archive Archiver

	mu       sync.Mutex
	sessions []*session
	nextID   uint64
	paired   bool
	pairGen  uint64
	matchID  string
	latest   uint64
}

// pairing is a freshly formed pair whose match record is not open yet.
type pairing struct {
	gen          uint64
	white, black *session
}

// New builds a relay. archive may be nil.
func New(cfg *config.RelayConfig, store matchstore.Store, archive Archiver) *Relay {
	r := &Relay{
		addr:         cfg.Addr,
		wsAddr:       cfg.WSAddr,
		sendQueue:    cfg.SendQueue,
		writeTimeout: cfg.WriteTimeout,
		store:        store,
		archive:      archive,
	}
	if r.writeTimeout <= 0 {
		r.writeTimeout = 5 * time.Second
	}
	return r
}

// Serve listens on the configured TCP address and, if set, the WebSocket
// address. It returns when ctx is cancelled or a listener fails.
func (r *Relay) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", r.addr, err)
	}
	var wsLn net.Listener
	if r.wsAddr != "" {
		wsLn, err = net.Listen("tcp", r.wsAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen %s: %w", r.wsAddr, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.ServeTCP(gctx, ln) })
	if wsLn != nil {
		g.Go(func() error { return r.ServeWS(gctx, wsLn) })
	}
	return g.Wait()
}

// ServeTCP accepts line-framed sessions from ln until ctx is cancelled.
// Sessions are admitted in accept order.
func (r *Relay) ServeTCP(ctx context.Context, ln net.Listener) error {
	obslog.L().Info("relay_listen", zap.String("addr", ln.Addr().String()), zap.String("transport", "tcp"))
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		c := protocol.NewTCPConn(nc)
		s, p, err := r.admit(c)
		if err != nil {
			obslog.L().Info("relay_session_rejected", zap.String("remote", c.RemoteAddr()), zap.Error(err))
			_ = c.Close()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.run(ctx, s, p)
		}()
	}
}

// ServeWS accepts WebSocket sessions at WSPath until ctx is cancelled.
func (r *Relay) ServeWS(ctx context.Context, ln net.Listener) error {
	obslog.L().Info("relay_listen", zap.String("addr", ln.Addr().String()), zap.String("transport", "ws"))
	srv := &http.Server{
		Handler:           r.WSHandler(ctx),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// WSHandler upgrades requests on WSPath and runs them as sessions bound to
// ctx.
func (r *Relay) WSHandler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(WSPath, func(w http.ResponseWriter, req *http.Request) {
		ws, err := websocket.Accept(w, req, &websocket.AcceptOptions{
			CompressionMode: websocket.CompressionNoContextTakeover,
		})
		if err != nil {
			obslog.L().Warn("relay_ws_accept_failed", zap.String("remote", req.RemoteAddr), zap.Error(err))
			return
		}
		r.Handle(ctx, protocol.NewWSConn(ws, req.RemoteAddr))
	})
	return mux
}

// Handle admits c and serves it until it disconnects or ctx is cancelled.
// A connection beyond the first two is closed at once.
func (r *Relay) Handle(ctx context.Context, c protocol.Conn) {
	s, p, err := r.admit(c)
	if err != nil {
		obslog.L().Info("relay_session_rejected", zap.String("remote", c.RemoteAddr()), zap.Error(err))
		_ = c.Close()
		return
	}
	r.run(ctx, s, p)
}

// run serves s. p is set for the session that completed a pair; it opens the
// match record before reading.
func (r *Relay) run(ctx context.Context, s *session, p *pairing) {
	ctx, cancel := context.WithCancel(ctx)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		r.writeLoop(ctx, s)
	}()

	if p != nil {
		r.openMatch(ctx, p)
	}
	r.readLoop(ctx, s)

	r.remove(s)
	s.close()
	cancel()
	<-writerDone
	s.logger().Info("relay_session_closed")
}

func (r *Relay) admit(c protocol.Conn) (*session, *pairing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.paired || len(r.sessions) >= 2 {
		return nil, nil, ErrRelayFull
	}
	r.nextID++
	s := newSession(r.nextID, c, r.sendQueue)
	r.sessions = append(r.sessions, s)
	s.logger().Info("relay_session_open", zap.Int("sessions", len(r.sessions)))
	if len(r.sessions) < 2 {
		return s, nil, nil
	}
	return s, r.pairLocked(), nil
}

// pairLocked assigns colours to the two sessions and reserves the relay for
// them. The match record is opened later by openMatch.
func (r *Relay) pairLocked() *pairing {
	white, black := r.sessions[0], r.sessions[1]
	white.color, black.color = checkers.White, checkers.Black
	r.paired = true
	r.pairGen++
	r.latest = 0
	r.matchID = ""
	return &pairing{gen: r.pairGen, white: white, black: black}
}

// openMatch opens the match record outside the hub lock, then sends each side
// its colour. Colours are never sent before the match id is set.
func (r *Relay) openMatch(ctx context.Context, p *pairing) {
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	m, err := r.store.Open(sctx, p.white.conn.RemoteAddr(), p.black.conn.RemoteAddr())
	cancel()

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paired || r.pairGen != p.gen {
		obslog.L().Info("relay_match_open_abandoned", zap.Uint64("pair", p.gen))
		return
	}
	if err != nil {
		obslog.L().Error("relay_match_open_failed", zap.Error(err))
	} else {
		r.matchID = m.ID
		obslog.L().Info("relay_match_open",
			zap.String("match", m.ID),
			zap.String("white", m.White),
			zap.String("black", m.Black))
	}
	r.sendLocked(p.white, protocol.ColorMessage(checkers.White).Lines())
	r.sendLocked(p.black, protocol.ColorMessage(checkers.Black).Lines())
}

// remove drops s from the hub. Once every paired session is gone the relay
// accepts a new pair.
func (r *Relay) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, cur := range r.sessions {
		if cur == s {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			break
		}
	}
	if len(r.sessions) == 0 && r.paired {
		obslog.L().Info("relay_match_released", zap.String("match", r.matchID))
		r.paired = false
		r.matchID = ""
		r.latest = 0
	}
}

func (r *Relay) sendLocked(s *session, lines []string) {
	if s.enqueue(lines) {
		return
	}
	if s.markDone() {
		s.logger().Warn("relay_queue_full", zap.Int("capacity", cap(s.out)))
		// A WebSocket close waits for the peer; keep it off the hub lock.
		go s.close()
	}
}

// broadcastLocked delivers lines to every session, the sender included.
func (r *Relay) broadcastLocked(lines []string) {
	for _, s := range r.sessions {
		r.sendLocked(s, lines)
	}
}

func (r *Relay) broadcast(lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked(lines)
}

func (r *Relay) dispatch(ctx context.Context, from *session, msg *protocol.Message) {
	switch msg.Kind {
	case protocol.KindSnapshot:
		r.relaySnapshot(ctx, from, msg)
	case protocol.KindGameOver:
		r.broadcast(msg.Lines())
		r.finish(ctx, from, msg)
	default:
		r.broadcast(msg.Lines())
	}
}

// relaySnapshot forwards a snapshot unless its version is not newer than the
// last one forwarded for the match. Version 0 always passes. The check and
// the fan-out happen under one lock, so sessions see accepted snapshots in
// acceptance order.
func (r *Relay) relaySnapshot(ctx context.Context, from *session, msg *protocol.Message) {
	r.mu.Lock()
	if msg.Version != 0 && msg.Version <= r.latest {
		latest, id := r.latest, r.matchID
		r.mu.Unlock()
		from.logger().Warn("snapshot_stale",
			zap.String("match", id),
			zap.Uint64("version", msg.Version),
			zap.Uint64("latest", latest))
		return
	}
	if msg.Version != 0 {
		r.latest = msg.Version
	}
	id := r.matchID
	r.broadcastLocked(msg.Lines())
	r.mu.Unlock()

	if id == "" {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	ok, err := r.store.CommitSnapshot(sctx, id, msg.Version, checkers.Encode(msg.State))
	switch {
	case errors.Is(err, matchstore.ErrFinished):
		from.logger().Debug("snapshot_after_finish", zap.String("match", id), zap.Uint64("version", msg.Version))
	case err != nil:
		from.logger().Warn("snapshot_commit_failed", zap.String("match", id), zap.Error(err))
	case !ok:
		from.logger().Warn("snapshot_stale", zap.String("match", id), zap.Uint64("version", msg.Version), zap.String("source", "store"))
	default:
		from.logger().Debug("snapshot_committed", zap.String("match", id), zap.Uint64("version", msg.Version))
	}
}

func (r *Relay) finish(ctx context.Context, from *session, msg *protocol.Message) {
	r.mu.Lock()
	id := r.matchID
	r.mu.Unlock()
	if id == "" {
		return
	}
	result := protocol.ResultString(msg.Color)

	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	m, err := r.store.Finish(sctx, id, result)
	if errors.Is(err, matchstore.ErrFinished) {
		from.logger().Debug("relay_game_over_repeat", zap.String("match", id))
		return
	}
	if err != nil {
		from.logger().Warn("relay_finish_failed", zap.String("match", id), zap.Error(err))
		return
	}
	from.logger().Info("relay_game_over", zap.String("match", id), zap.String("result", result))
	if r.archive == nil {
		return
	}
	if err := r.archive.SaveResult(sctx, m); err != nil {
		from.logger().Warn("relay_archive_failed", zap.String("match", id), zap.Error(err))
	}
}
