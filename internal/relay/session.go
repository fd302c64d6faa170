package relay

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/Cheese-Checkers/internal/checkers"
	"github.com/park285/Cheese-Checkers/internal/obslog"
	"github.com/park285/Cheese-Checkers/internal/protocol"
)

// session is one admitted connection. Each queued item is a whole message,
// so the writer never interleaves two senders' lines.
type session struct {
	id    uint64
	conn  protocol.Conn
	color checkers.Color

	out      chan []string
	done     chan struct{}
	doneOnce sync.Once
	connOnce sync.Once
}

func newSession(id uint64, c protocol.Conn, queue int) *session {
	if queue < 1 {
		queue = 1
	}
	return &session{
		id:   id,
		conn: c,
		out:  make(chan []string, queue),
		done: make(chan struct{}),
	}
}

// enqueue never blocks. It reports false when the session is closed or its
// queue is full.
func (s *session) enqueue(lines []string) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.out <- lines:
		return true
	default:
		return false
	}
}

// markDone stops delivery to s. It reports whether this call did it.
func (s *session) markDone() bool {
	first := false
	s.doneOnce.Do(func() {
		close(s.done)
		first = true
	})
	return first
}

func (s *session) close() {
	s.markDone()
	s.connOnce.Do(func() { _ = s.conn.Close() })
}

func (s *session) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *session) logger() *zap.Logger {
	return obslog.L().With(zap.Uint64("session", s.id), zap.String("remote", s.conn.RemoteAddr()))
}

func (r *Relay) writeLoop(ctx context.Context, s *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case lines := <-s.out:
			for _, line := range lines {
				wctx, cancel := context.WithTimeout(ctx, r.writeTimeout)
				err := s.conn.WriteLine(wctx, line)
				cancel()
				if err != nil {
					if !s.closed() && ctx.Err() == nil {
						s.logger().Warn("relay_write_failed", zap.Error(err))
					}
					s.close()
					return
				}
			}
		}
	}
}

func (r *Relay) readLoop(ctx context.Context, s *session) {
	var asm protocol.Assembler
	for {
		line, err := s.conn.ReadLine(ctx)
		if err != nil {
			if !s.closed() && ctx.Err() == nil {
				s.logger().Info("relay_session_read_end", zap.Error(err))
			}
			return
		}
		msg, err := asm.Feed(line)
		if err != nil {
			s.logger().Warn("relay_line_rejected", zap.Error(err))
		}
		if msg != nil {
			r.dispatch(ctx, s, msg)
		}
	}
}
