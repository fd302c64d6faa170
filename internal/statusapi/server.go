// Package statusapi serves a read-only HTTP view of the relay's current match.
package statusapi

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/park285/Cheese-Checkers/internal/checkers"
	"github.com/park285/Cheese-Checkers/internal/matchstore"
	"github.com/park285/Cheese-Checkers/internal/msgcat"
	"github.com/park285/Cheese-Checkers/internal/obslog"
	"github.com/park285/Cheese-Checkers/internal/render"
	"github.com/park285/Cheese-Checkers/pkg/checkersdto"
)

const (
	PathHealth    = "/healthz"
	PathMatch     = "/api/match"
	PathBoard     = "/api/board"
	PathBoardPNG  = "/api/board.png"
	codeNoMatch   = "no_match"
	codeNotFound  = "not_found"
	codeInternal  = "internal"
	codeBadMethod = "method_not_allowed"
)

// MatchSource is the part of matchstore.Store the status API reads.
type MatchSource interface {
	Current(ctx context.Context) (*matchstore.Match, error)
}

type Server struct {
	src      MatchSource
	cat      *msgcat.Catalog
	renderer render.BoardRenderer
	timeout  time.Duration
}

func NewServer(src MatchSource, cat *msgcat.Catalog) *Server {
	return &Server{
		src:      src,
		cat:      cat,
		renderer: render.NewSVGBoardRenderer(),
		timeout:  5 * time.Second,
	}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts the server down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &fasthttp.Server{
		Handler:      s.Handler,
		Name:         "checkers-relay",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	obslog.L().Info("status_api_listen", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case <-ctx.Done():
		_ = srv.Shutdown()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler routes a single request.
func (s *Server) Handler(rc *fasthttp.RequestCtx) {
	if !rc.IsGet() && !rc.IsHead() {
		writeError(rc, fasthttp.StatusMethodNotAllowed, checkersdto.Error{Code: codeBadMethod, Message: "method not allowed"})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	switch string(rc.Path()) {
	case PathHealth:
		s.handleHealth(ctx, rc)
	case PathMatch:
		s.handleMatch(ctx, rc)
	case PathBoard:
		s.handleBoard(ctx, rc)
	case PathBoardPNG:
		s.handleBoardPNG(ctx, rc)
	default:
		writeError(rc, fasthttp.StatusNotFound, checkersdto.Error{Code: codeNotFound, Message: "not found"})
	}
}

func (s *Server) handleHealth(ctx context.Context, rc *fasthttp.RequestCtx) {
	m, err := s.src.Current(ctx)
	if err != nil {
		obslog.L().Warn("status_api_store_error", zap.Error(err))
		writeJSON(rc, fasthttp.StatusServiceUnavailable, checkersdto.Health{Status: "degraded"})
		return
	}
	writeJSON(rc, fasthttp.StatusOK, checkersdto.Health{Status: "ok", Match: m != nil})
}

func (s *Server) handleMatch(ctx context.Context, rc *fasthttp.RequestCtx) {
	m, state, ok := s.current(ctx, rc)
	if !ok {
		return
	}
	writeJSON(rc, fasthttp.StatusOK, MatchState(m, state))
}

func (s *Server) handleBoard(ctx context.Context, rc *fasthttp.RequestCtx) {
	_, state, ok := s.current(ctx, rc)
	if !ok {
		return
	}
	rc.SetStatusCode(fasthttp.StatusOK)
	rc.SetContentType("text/plain; charset=utf-8")
	rc.SetBodyString(checkers.Encode(state) + "\n")
}

func (s *Server) handleBoardPNG(ctx context.Context, rc *fasthttp.RequestCtx) {
	m, state, ok := s.current(ctx, rc)
	if !ok {
		return
	}
	data := map[string]any{
		"White":   m.White,
		"Black":   m.Black,
		"Turn":    state.Turn().String(),
		"Version": m.Version,
	}
	opts := render.Options{
		Header: s.cat.Text("status.header", data, m.White+" vs "+m.Black),
		Turn:   s.cat.Text("status.turn", data, state.Turn().String()),
	}
	img, err := s.renderer.RenderPNG(ctx, state, opts)
	if err != nil {
		obslog.L().Error("status_api_render_error", zap.String("match", m.ID), zap.Error(err))
		writeError(rc, fasthttp.StatusInternalServerError, checkersdto.Error{Code: codeInternal, Message: "render failed", Retryable: true})
		return
	}
	rc.SetStatusCode(fasthttp.StatusOK)
	rc.SetContentType("image/png")
	rc.SetBody(img)
}

// current loads the match and its board. A match with no committed snapshot
// shows the initial position. On failure the response is already written.
func (s *Server) current(ctx context.Context, rc *fasthttp.RequestCtx) (*matchstore.Match, *checkers.GameState, bool) {
	m, err := s.src.Current(ctx)
	if err != nil {
		obslog.L().Warn("status_api_store_error", zap.Error(err))
		writeError(rc, fasthttp.StatusServiceUnavailable, checkersdto.Error{Code: codeInternal, Message: "match store unavailable", Retryable: true})
		return nil, nil, false
	}
	if m == nil {
		writeError(rc, fasthttp.StatusNotFound, checkersdto.Error{Code: codeNoMatch, Message: s.cat.Text("status.no_match", nil, "no match yet")})
		return nil, nil, false
	}
	state, err := boardState(m)
	if err != nil {
		obslog.L().Error("status_api_board_corrupt", zap.String("match", m.ID), zap.Error(err))
		writeError(rc, fasthttp.StatusInternalServerError, checkersdto.Error{Code: codeInternal, Message: "stored board is malformed"})
		return nil, nil, false
	}
	return m, state, true
}

func boardState(m *matchstore.Match) (*checkers.GameState, error) {
	if m.Board == "" {
		return checkers.NewGameState(), nil
	}
	return checkers.Decode(m.Board)
}

// MatchState converts a stored match and its decoded board to the DTO.
func MatchState(m *matchstore.Match, state *checkers.GameState) checkersdto.MatchState {
	out := checkersdto.MatchState{
		ID:        m.ID,
		Status:    string(m.Status),
		White:     m.White,
		Black:     m.Black,
		Version:   m.Version,
		Snapshots: m.Snapshots,
		Result:    m.Result,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Result != "" {
		out.PDN = matchstore.ResultToPDN(m.Result)
	}
	if state != nil {
		out.Board = checkers.Lines(state)[:checkers.Size]
		out.Turn = state.Turn().String()
		out.WhitePieces = state.Count(checkers.White)
		out.BlackPieces = state.Count(checkers.Black)
	}
	return out
}

func writeJSON(rc *fasthttp.RequestCtx, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		rc.Error("encode error", fasthttp.StatusInternalServerError)
		return
	}
	rc.SetStatusCode(status)
	rc.SetContentType("application/json; charset=utf-8")
	rc.SetBody(b)
}

func writeError(rc *fasthttp.RequestCtx, status int, e checkersdto.Error) {
	writeJSON(rc, status, e)
}
