package firewatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Fake transport
// ============================================================================

const waitFor = 2 * time.Second

var errDialRefused = errors.New("dial refused")

type fakeConn struct {
	inbound   chan []byte
	written   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	// holdReads keeps Read going after its context ends, like a socket
	// whose close has not been acknowledged yet. Only Close ends it.
	holdReads bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		written: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	done := ctx.Done()
	if c.holdReads {
		done = nil
	}
	select {
	case data := <-c.inbound:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	case <-done:
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	case c.written <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *fakeConn) Close(reason string) error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// push delivers a server message.
func (c *fakeConn) push(t *testing.T, msg string) {
	t.Helper()
	select {
	case c.inbound <- []byte(msg):
	case <-time.After(waitFor):
		t.Fatal("timed out pushing message")
	}
}

// expectPing waits for the next client message and checks it is a ping.
func (c *fakeConn) expectPing(t *testing.T) pingMessage {
	t.Helper()
	select {
	case data := <-c.written:
		var ping pingMessage
		require.NoError(t, json.Unmarshal(data, &ping))
		require.Equal(t, "ping", ping.Type)
		return ping
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for ping")
		return pingMessage{}
	}
}

type fakeDialer struct {
	mu        sync.Mutex
	dials     int
	failNext  int
	holdReads bool
	conns     chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	fail := d.failNext > 0
	if fail {
		d.failNext--
	}
	hold := d.holdReads
	d.mu.Unlock()

	if fail {
		return nil, errDialRefused
	}
	c := newFakeConn()
	c.holdReads = hold
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) failNextDials(n int) {
	d.mu.Lock()
	d.failNext = n
	d.mu.Unlock()
}

// holdConnReads makes every later connection ignore read cancellation.
func (d *fakeDialer) holdConnReads() {
	d.mu.Lock()
	d.holdReads = true
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// ============================================================================
// Stream harness
// ============================================================================

type reconnectEvent struct {
	attempt int
	delay   time.Duration
}

type harness struct {
	t          *testing.T
	clock      *clock.Mock
	dialer     *fakeDialer
	server     *httptest.Server
	snapshots  atomic.Int32
	stream     *StreamClient
	updates    chan Snapshot
	reconnects chan reconnectEvent
	timeouts   atomic.Int32

	handlerMu sync.Mutex
	handler   http.HandlerFunc
}

const bootstrapDoc = `{"type":"FeatureCollection","features":[]}`

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		t:          t,
		clock:      clock.NewMock(),
		dialer:     newFakeDialer(),
		updates:    make(chan Snapshot, 64),
		reconnects: make(chan reconnectEvent, 64),
	}
	h.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.snapshots.Add(1)
		h.handlerMu.Lock()
		fn := h.handler
		h.handlerMu.Unlock()
		if fn != nil {
			fn(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.Write([]byte(bootstrapDoc))
	}))
	t.Cleanup(h.server.Close)

	client := NewClient(h.server.URL)
	h.stream = client.Stream(&StreamConfig{
		Dialer: h.dialer,
		Clock:  h.clock,
	})
	h.stream.OnReconnecting(func(attempt int, delay time.Duration) {
		h.reconnects <- reconnectEvent{attempt: attempt, delay: delay}
	})
	h.stream.OnHeartbeatTimeout(func() { h.timeouts.Add(1) })
	t.Cleanup(h.stream.Stop)
	return h
}

// serveSnapshot overrides the snapshot endpoint.
func (h *harness) serveSnapshot(fn http.HandlerFunc) {
	h.handlerMu.Lock()
	h.handler = fn
	h.handlerMu.Unlock()
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.stream.Start(context.Background(), func(s Snapshot) {
		h.updates <- s
	}))
}

func (h *harness) expectConn() *fakeConn {
	h.t.Helper()
	select {
	case c := <-h.dialer.conns:
		return c
	case <-time.After(waitFor):
		h.t.Fatal("timed out waiting for dial")
		return nil
	}
}

func (h *harness) waitState(want ConnectionState) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.stream.State() == want },
		waitFor, time.Millisecond, "state never became %s", want)
}

// open starts the client and waits for the first session to be open.
func (h *harness) open() *fakeConn {
	h.t.Helper()
	h.start()
	c := h.expectConn()
	h.waitState(StateOpen)
	return c
}

func (h *harness) expectUpdate() Snapshot {
	h.t.Helper()
	select {
	case s := <-h.updates:
		return s
	case <-time.After(waitFor):
		h.t.Fatal("timed out waiting for update")
		return Snapshot{}
	}
}

// expectUpdateKind skips updates of other kinds, such as a bootstrap racing
// the stream.
func (h *harness) expectUpdateKind(kind UpdateKind) Snapshot {
	h.t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case s := <-h.updates:
			if s.Kind == kind {
				return s
			}
		case <-deadline:
			h.t.Fatalf("timed out waiting for %s update", kind)
			return Snapshot{}
		}
	}
}

func (h *harness) expectReconnect() reconnectEvent {
	h.t.Helper()
	select {
	case ev := <-h.reconnects:
		return ev
	case <-time.After(waitFor):
		h.t.Fatal("timed out waiting for reconnect")
		return reconnectEvent{}
	}
}

func (h *harness) noReconnect(wait time.Duration) {
	h.t.Helper()
	select {
	case ev := <-h.reconnects:
		h.t.Fatalf("unexpected reconnect %+v", ev)
	case <-time.After(wait):
	}
}

// waitMessages blocks until the loop has handled n messages of kind.
func (h *harness) waitMessages(kind string, n float64) {
	h.t.Helper()
	counter := h.stream.metrics.messages.WithLabelValues(kind)
	require.Eventually(h.t, func() bool { return testutil.ToFloat64(counter) >= n },
		waitFor, time.Millisecond, "never saw %v %s messages", n, kind)
}

func (h *harness) waitPings(n float64) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return testutil.ToFloat64(h.stream.metrics.pingsSent) >= n },
		waitFor, time.Millisecond, "never sent %v pings", n)
}
