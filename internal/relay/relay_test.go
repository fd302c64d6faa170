package relay

import (
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/Cheese-Checkers/internal/checkers"
	"github.com/park285/Cheese-Checkers/internal/config"
	"github.com/park285/Cheese-Checkers/internal/matchstore"
	"github.com/park285/Cheese-Checkers/internal/protocol"
)

const waitFor = 2 * time.Second

type fakeArchive struct {
	saved chan *matchstore.Match
}

func (a *fakeArchive) SaveResult(_ context.Context, m *matchstore.Match) error {
	a.saved <- m
	return nil
}

func newTestRelay(t *testing.T, queue int) (*Relay, *matchstore.MemoryStore, *fakeArchive) {
	t.Helper()
	store := matchstore.NewMemoryStore()
	archive := &fakeArchive{saved: make(chan *matchstore.Match, 4)}
	cfg := &config.RelayConfig{SendQueue: queue, WriteTimeout: 10 * time.Second}
	return New(cfg, store, archive), store, archive
}

func startTCP(t *testing.T, r *Relay) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ServeTCP(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("ServeTCP: %v", err)
		}
	})
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) protocol.Conn {
	t.Helper()
	c, err := protocol.Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c protocol.Conn, lines ...string) {
	t.Helper()
	for _, l := range lines {
		if err := c.WriteLine(context.Background(), l); err != nil {
			t.Fatalf("write %q: %v", l, err)
		}
	}
}

func expect(t *testing.T, c protocol.Conn, want ...string) {
	t.Helper()
	for _, w := range want {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		got, err := c.ReadLine(ctx)
		cancel()
		if err != nil {
			t.Fatalf("read, want %q: %v", w, err)
		}
		if got != w {
			t.Fatalf("got %q, want %q", got, w)
		}
	}
}

// pair connects two clients and waits until both know their colour.
func pair(t *testing.T, addr string) (white, black protocol.Conn) {
	t.Helper()
	white = dial(t, addr)
	send(t, white, "CHAT:hello")
	expect(t, white, "CHAT:hello")
	black = dial(t, addr)
	expect(t, white, "COLOR:WHITE")
	expect(t, black, "COLOR:BLACK")
	return white, black
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPairingAndBroadcast(t *testing.T) {
	r, store, _ := newTestRelay(t, 16)
	a, b := pair(t, startTCP(t, r))

	send(t, b, "CHAT:from black")
	expect(t, a, "CHAT:from black")
	expect(t, b, "CHAT:from black")

	send(t, a, "SOMETHING ELSE")
	expect(t, a, "SOMETHING ELSE")
	expect(t, b, "SOMETHING ELSE")

	m, err := store.Current(context.Background())
	if err != nil || m == nil {
		t.Fatalf("expected an open match, got %v, %v", m, err)
	}
	if m.Status != matchstore.StatusActive || m.White == "" || m.White == m.Black {
		t.Fatalf("unexpected match record %+v", m)
	}
}

type slowOpenStore struct {
	*matchstore.MemoryStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowOpenStore) Open(ctx context.Context, white, black string) (*matchstore.Match, error) {
	s.entered <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.MemoryStore.Open(ctx, white, black)
}

func TestSlowMatchOpenDoesNotBlockTheHub(t *testing.T) {
	store := &slowOpenStore{
		MemoryStore: matchstore.NewMemoryStore(),
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	r := New(&config.RelayConfig{SendQueue: 16, WriteTimeout: 10 * time.Second}, store, nil)
	addr := startTCP(t, r)

	a := dial(t, addr)
	send(t, a, "CHAT:hello")
	expect(t, a, "CHAT:hello")
	b := dial(t, addr)
	select {
	case <-store.entered:
	case <-time.After(waitFor):
		t.Fatalf("match record was never opened")
	}

	// Broadcasts and admission keep working while the store is slow.
	send(t, a, "CHAT:waiting")
	expect(t, a, "CHAT:waiting")
	expect(t, b, "CHAT:waiting")
	c := dial(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	if line, err := c.ReadLine(ctx); err == nil {
		t.Fatalf("expected the third connection to be closed, read %q", line)
	}

	close(store.release)
	expect(t, a, "COLOR:WHITE")
	expect(t, b, "COLOR:BLACK")
	m, err := store.Current(context.Background())
	if err != nil || m == nil || m.Status != matchstore.StatusActive {
		t.Fatalf("expected an open match, got %+v, %v", m, err)
	}
}

func TestThirdConnectionIsClosed(t *testing.T) {
	r, _, _ := newTestRelay(t, 16)
	addr := startTCP(t, r)
	a, _ := pair(t, addr)

	c := dial(t, addr)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	if line, err := c.ReadLine(ctx); err == nil {
		t.Fatalf("expected the third connection to be closed, read %q", line)
	}

	send(t, a, "CHAT:still two")
	expect(t, a, "CHAT:still two")
}

func TestSnapshotVersioning(t *testing.T) {
	r, store, _ := newTestRelay(t, 16)
	a, b := pair(t, startTCP(t, r))
	ctx := context.Background()

	s := checkers.NewGameState()
	if !s.MakeMove(2, 1, 3, 2) {
		t.Fatalf("setup move rejected")
	}
	s.SwitchTurn()
	first := protocol.SnapshotMessage(1, s)
	if err := protocol.WriteMessage(ctx, a, first); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	expect(t, a, first.Lines()...)
	expect(t, b, first.Lines()...)

	// Same version from the other side is stale and never delivered.
	other := checkers.NewGameState()
	other.SwitchTurn()
	if err := protocol.WriteMessage(ctx, b, protocol.SnapshotMessage(1, other)); err != nil {
		t.Fatalf("write stale snapshot: %v", err)
	}
	send(t, b, "CHAT:after stale")
	expect(t, a, "CHAT:after stale")
	expect(t, b, "CHAT:after stale")

	// Untagged snapshots always pass.
	untagged := protocol.SnapshotMessage(0, s)
	if err := protocol.WriteMessage(ctx, b, untagged); err != nil {
		t.Fatalf("write untagged snapshot: %v", err)
	}
	expect(t, a, untagged.Lines()...)
	expect(t, b, untagged.Lines()...)

	eventually(t, "snapshot commits", func() bool {
		m, err := store.Current(ctx)
		return err == nil && m != nil && m.Snapshots == 2
	})
	m, _ := store.Current(ctx)
	if m.Version != 1 || m.Board != checkers.Encode(s) {
		t.Fatalf("unexpected stored snapshot: version=%d board=%q", m.Version, m.Board)
	}
}

func TestInterruptedBlockIsNotForwarded(t *testing.T) {
	r, _, _ := newTestRelay(t, 16)
	a, b := pair(t, startTCP(t, r))

	lines := checkers.Lines(checkers.NewGameState())
	send(t, a, "SNAPSHOT:3")
	send(t, a, lines[:4]...)
	send(t, a, "CHAT:interrupt")
	expect(t, a, "CHAT:interrupt")
	expect(t, b, "CHAT:interrupt")
}

func TestGameOverFinishesAndArchives(t *testing.T) {
	r, store, archive := newTestRelay(t, 16)
	a, b := pair(t, startTCP(t, r))

	send(t, a, "GAME_OVER:WHITE")
	expect(t, a, "GAME_OVER:WHITE")
	expect(t, b, "GAME_OVER:WHITE")

	select {
	case m := <-archive.saved:
		if m.Status != matchstore.StatusFinished || m.Result != "WHITE" {
			t.Fatalf("unexpected archived match %+v", m)
		}
	case <-time.After(waitFor):
		t.Fatalf("match was not archived")
	}

	// A repeated result is still relayed but not archived again.
	send(t, b, "GAME_OVER:REMIS")
	expect(t, a, "GAME_OVER:REMIS")
	expect(t, b, "GAME_OVER:REMIS")
	m, _ := store.Current(context.Background())
	if m.Result != "WHITE" {
		t.Fatalf("result overwritten: %+v", m)
	}
}

func TestDisconnectAndNewPair(t *testing.T) {
	r, store, _ := newTestRelay(t, 16)
	addr := startTCP(t, r)
	a, b := pair(t, addr)
	first, _ := store.Current(context.Background())

	_ = a.Close()
	send(t, b, "CHAT:alone")
	expect(t, b, "CHAT:alone")

	_ = b.Close()
	eventually(t, "relay release", func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return !r.paired && len(r.sessions) == 0
	})

	pair(t, addr)
	second, _ := store.Current(context.Background())
	if second == nil || second.ID == first.ID {
		t.Fatalf("expected a new match after both players left")
	}
}

func TestWebSocketSessions(t *testing.T) {
	r, _, _ := newTestRelay(t, 16)
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(r.WSHandler(ctx))
	defer srv.Close()
	defer cancel()

	addr := "ws://" + strings.TrimPrefix(srv.URL, "http://") + WSPath
	a, b := pair(t, addr)
	send(t, b, "CHAT:over ws")
	expect(t, a, "CHAT:over ws")
	expect(t, b, "CHAT:over ws")
	_ = a.Close()
	_ = b.Close()
}

// fakeConn is an in-memory Conn. A gated conn blocks every write until the
// conn is closed.
type fakeConn struct {
	name   string
	in     chan string
	out    chan string
	gated  bool
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(name string, gated bool) *fakeConn {
	return &fakeConn{
		name:   name,
		in:     make(chan string, 16),
		out:    make(chan string, 64),
		gated:  gated,
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadLine(ctx context.Context) (string, error) {
	select {
	case l := <-c.in:
		return l, nil
	case <-c.closed:
		return "", io.EOF
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *fakeConn) WriteLine(ctx context.Context, line string) error {
	if c.gated {
		select {
		case <-c.closed:
			return net.ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	select {
	case c.out <- line:
		return nil
	case <-c.closed:
		return net.ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) RemoteAddr() string { return c.name }

func (c *fakeConn) expect(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-c.out:
		if got != want {
			t.Fatalf("%s: got %q, want %q", c.name, got, want)
		}
	case <-time.After(waitFor):
		t.Fatalf("%s: timed out waiting for %q", c.name, want)
	}
}

func TestSlowSessionIsDroppedWithoutBlockingTheOther(t *testing.T) {
	r, _, _ := newTestRelay(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	fast := newFakeConn("fast", false)
	slow := newFakeConn("slow", true)
	wg.Add(1)
	go func() { defer wg.Done(); r.Handle(ctx, fast) }()
	fast.in <- "CHAT:ping"
	fast.expect(t, "CHAT:ping")

	wg.Add(1)
	go func() { defer wg.Done(); r.Handle(ctx, slow) }()
	fast.expect(t, "COLOR:WHITE")

	for _, l := range []string{"CHAT:1", "CHAT:2", "CHAT:3"} {
		fast.in <- l
		fast.expect(t, l)
	}
	select {
	case <-slow.closed:
	case <-time.After(waitFor):
		t.Fatalf("slow session was not closed")
	}

	fast.in <- "CHAT:after"
	fast.expect(t, "CHAT:after")
}
