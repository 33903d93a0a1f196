package firewatch

import (
	"context"
	"fmt"
	"net/http"

	"nhooyr.io/websocket"
)

// DefaultReadLimit bounds a single inbound message. Area documents are whole
// GeoJSON feature collections, so the websocket libraries' defaults are far
// too small.
const DefaultReadLimit int64 = 32 << 20

// Conn is one physical duplex connection.
type Conn interface {
	// Read blocks until a whole message arrives. Cancelling ctx closes the
	// connection.
	Read(ctx context.Context) ([]byte, error)
	// Write sends a single text message.
	Write(ctx context.Context, data []byte) error
	// Close closes the connection. It may be called more than once.
	Close(reason string) error
}

// Dialer opens Conns.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// ============================================================================
// nhooyr.io/websocket
// ============================================================================

// NhooyrDialer dials with nhooyr.io/websocket. It is the default Dialer.
type NhooyrDialer struct {
	// HTTPClient is used for the upgrade request. Its Timeout must be zero;
	// the dial context bounds the handshake instead.
	HTTPClient *http.Client
	HTTPHeader http.Header
	ReadLimit  int64
}

func (d *NhooyrDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: d.HTTPClient,
		HTTPHeader: d.HTTPHeader,
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)
	return &nhooyrConn{conn: conn}, nil
}

type nhooyrConn struct {
	conn *websocket.Conn
}

func (c *nhooyrConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *nhooyrConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *nhooyrConn) Close(reason string) error {
	return c.conn.Close(websocket.StatusNormalClosure, reason)
}
