// transport.go defines StreamConn, the contract shared by the two framing
// variants of the streaming connection, and implements the plain-websocket
// variant.
//
// A StreamConn manages exactly one session at a time; the reconnect loop
// lives in Client. Both variants deliver bare JSON objects from Recv and
// accept bare JSON objects in Send, so everything above the transport is
// framing-agnostic.
package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// reconnectWait is the fixed pause between a dropped connection and
	// the next dial attempt.
	reconnectWait = 5 * time.Second

	writeTimeout = 10 * time.Second // deadline for outgoing frames
)

var errNotConnected = errors.New("not connected")

// StreamConn is one framing variant of the duplex streaming connection.
// Connect dials and performs the variant's handshake. Recv blocks for the
// next inbound JSON message with all transport framing stripped; any error
// it returns means the session is dead. Send transmits one JSON payload.
// Close may be called from any goroutine and unblocks a pending Recv.
type StreamConn interface {
	Connect(ctx context.Context) error
	Recv() ([]byte, error)
	Send(data []byte) error
	Close() error
}

// Websocket is the plain-websocket variant: one socket straight to the
// exchange, every text frame that parses as a JSON object is a message.
type Websocket struct {
	url    string
	logger *slog.Logger

	connMu sync.Mutex // protects conn and serializes writes
	conn   *websocket.Conn
}

// NewWebsocket builds the plain-websocket transport for one currency.
func NewWebsocket(host, currency string, useSSL bool, logger *slog.Logger) *Websocket {
	scheme := "ws"
	if useSSL {
		scheme = "wss"
	}
	return &Websocket{
		url:    fmt.Sprintf("%s://%s/mtgox?Currency=%s", scheme, host, currency),
		logger: logger.With("component", "websocket"),
	}
}

// Connect dials the exchange. The server starts pushing ticker, depth and
// trade frames immediately; channel subscriptions only add to that.
func (w *Websocket) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}

	w.connMu.Lock()
	w.conn = conn
	w.connMu.Unlock()

	w.logger.Info("websocket connected", "url", w.url)
	return nil
}

// Recv blocks for the next JSON message. Frames that do not look like a
// JSON object are dropped here.
func (w *Websocket) Recv() ([]byte, error) {
	conn := w.current()
	if conn == nil {
		return nil, errNotConnected
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		if len(data) > 0 && data[0] == '{' {
			return data, nil
		}
	}
}

// Send writes one frame under a deadline so a stalled socket cannot wedge
// the caller.
func (w *Websocket) Send(data []byte) error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return errNotConnected
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// Close closes the current socket if one is open.
func (w *Websocket) Close() error {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

func (w *Websocket) current() *websocket.Conn {
	w.connMu.Lock()
	defer w.connMu.Unlock()
	return w.conn
}
