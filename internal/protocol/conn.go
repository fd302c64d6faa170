package protocol

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
)

const dialTimeout = 10 * time.Second

// Conn is a bidirectional line stream. ReadLine must be called from a single
// goroutine; WriteLine and Close may be called concurrently with it.
type Conn interface {
	ReadLine(ctx context.Context) (string, error)
	WriteLine(ctx context.Context, line string) error
	Close() error
	RemoteAddr() string
}

// WriteMessage writes every line of m in order.
func WriteMessage(ctx context.Context, c Conn, m *Message) error {
	for _, line := range m.Lines() {
		if err := c.WriteLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

type tcpConn struct {
	nc net.Conn
	r  *bufio.Reader
	wm sync.Mutex
}

// NewTCPConn frames nc with '\n'. A trailing '\r' is stripped on read.
func NewTCPConn(nc net.Conn) Conn {
	return &tcpConn{nc: nc, r: bufio.NewReader(nc)}
}

func (c *tcpConn) ReadLine(ctx context.Context) (string, error) {
	if err := c.nc.SetReadDeadline(time.Time{}); err != nil {
		return "", err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.nc.SetReadDeadline(time.Now()) })
	defer stop()

	line, err := c.r.ReadString('\n')
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}

func (c *tcpConn) WriteLine(ctx context.Context, line string) error {
	c.wm.Lock()
	defer c.wm.Unlock()
	deadline, _ := ctx.Deadline()
	if err := c.nc.SetWriteDeadline(deadline); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.nc.SetWriteDeadline(time.Now()) })
	defer stop()
	_, err := io.WriteString(c.nc, line+"\n")
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *tcpConn) Close() error { return c.nc.Close() }

func (c *tcpConn) RemoteAddr() string { return c.nc.RemoteAddr().String() }

type wsConn struct {
	ws     *websocket.Conn
	remote string
}

// NewWSConn carries one line per text frame.
func NewWSConn(ws *websocket.Conn, remote string) Conn {
	return &wsConn{ws: ws, remote: remote}
}

func (c *wsConn) ReadLine(ctx context.Context) (string, error) {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			return "", err
		}
		if typ != websocket.MessageText {
			continue
		}
		return strings.TrimSuffix(strings.TrimSuffix(string(data), "\n"), "\r"), nil
	}
}

func (c *wsConn) WriteLine(ctx context.Context, line string) error {
	return c.ws.Write(ctx, websocket.MessageText, []byte(line))
}

func (c *wsConn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "close")
}

func (c *wsConn) RemoteAddr() string { return c.remote }

// Dial connects to a relay. addr is host:port, tcp://host:port, or a ws:// or
// wss:// URL.
func Dial(ctx context.Context, addr string) (Conn, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("dial: empty address")
	}
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	if strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://") {
		ws, _, err := websocket.Dial(dialCtx, addr, &websocket.DialOptions{
			CompressionMode: websocket.CompressionNoContextTakeover,
		})
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", addr, err)
		}
		return NewWSConn(ws, addr), nil
	}

	var d net.Dialer
	nc, err := d.DialContext(dialCtx, "tcp", strings.TrimPrefix(addr, "tcp://"))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return NewTCPConn(nc), nil
}
