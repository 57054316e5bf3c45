// socketio.go implements the socket.io framing variant of the streaming
// connection (protocol revision 1, the dialect the exchange speaks).
//
// Session setup is two-step: an HTTP GET to /socket.io/1 returns a
// colon-delimited handshake line whose first field is the session id, then
// the websocket is opened at /socket.io/1/websocket/<sid>. After that the
// client announces the "/mtgox" endpoint with a "1::/mtgox" frame and
// consumes the two acknowledgement frames before normal traffic starts.
//
// On the wire every payload is prefixed with "4::/mtgox:"; heartbeat frames
// are a bare "2::" and must be echoed back verbatim or the server drops the
// session after a few missed beats.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
)

const (
	sioHeartbeat     = "2::"
	sioOpenEndpoint  = "1::/mtgox"
	sioPayloadPrefix = "4::/mtgox:"

	sioHandshakeTimeout = 20 * time.Second
)

// SocketIO is the socket.io framing variant of the streaming connection.
type SocketIO struct {
	host     string
	currency string
	useSSL   bool
	http     *resty.Client
	logger   *slog.Logger

	connMu sync.Mutex // protects conn and serializes writes (pongs included)
	conn   *websocket.Conn
}

// NewSocketIO builds the socket.io transport for one currency.
func NewSocketIO(host, currency string, useSSL bool, logger *slog.Logger) *SocketIO {
	return &SocketIO{
		host:     host,
		currency: currency,
		useSSL:   useSSL,
		http: resty.New().
			SetTimeout(sioHandshakeTimeout).
			SetHeader("User-Agent", userAgent),
		logger: logger.With("component", "socketio"),
	}
}

// Connect performs the handshake: fetch a session id over HTTP, open the
// websocket for that session and join the /mtgox endpoint.
func (s *SocketIO) Connect(ctx context.Context) error {
	scheme, wsScheme := "http", "ws"
	if s.useSSL {
		scheme, wsScheme = "https", "wss"
	}

	resp, err := s.http.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s://%s/socket.io/1?Currency=%s", scheme, s.host, s.currency))
	if err != nil {
		return fmt.Errorf("socket.io handshake: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("socket.io handshake: status %d: %s", resp.StatusCode(), resp.String())
	}
	sid, err := sessionID(resp.String())
	if err != nil {
		return fmt.Errorf("socket.io handshake: %w", err)
	}

	wsURL := fmt.Sprintf("%s://%s/socket.io/1/websocket/%s?Currency=%s", wsScheme, s.host, sid, s.currency)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	// Join the /mtgox endpoint and consume the two acknowledgement frames
	// before the conn is published for shared use.
	if err := writeFrame(conn, []byte(sioOpenEndpoint)); err != nil {
		conn.Close()
		return fmt.Errorf("join endpoint: %w", err)
	}
	for i := 0; i < 2; i++ {
		if _, _, err := conn.ReadMessage(); err != nil {
			conn.Close()
			return fmt.Errorf("handshake ack: %w", err)
		}
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	s.logger.Info("socket.io connected", "sid", sid)
	return nil
}

// Recv blocks for the next JSON message, echoing heartbeats in place and
// dropping every frame that is not a payload for the endpoint.
func (s *SocketIO) Recv() ([]byte, error) {
	conn := s.current()
	if conn == nil {
		return nil, errNotConnected
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		frame := string(data)
		if frame == sioHeartbeat {
			if err := s.write(data); err != nil {
				return nil, fmt.Errorf("heartbeat reply: %w", err)
			}
			continue
		}
		if payload, ok := strings.CutPrefix(frame, sioPayloadPrefix); ok {
			if len(payload) > 0 && payload[0] == '{' {
				return []byte(payload), nil
			}
		}
	}
}

// Send writes one payload frame with the endpoint prefix prepended.
func (s *SocketIO) Send(data []byte) error {
	frame := make([]byte, 0, len(sioPayloadPrefix)+len(data))
	frame = append(frame, sioPayloadPrefix...)
	frame = append(frame, data...)
	return s.write(frame)
}

// Close closes the current socket if one is open.
func (s *SocketIO) Close() error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *SocketIO) write(data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return errNotConnected
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *SocketIO) current() *websocket.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

// sessionID extracts the session id from the colon-delimited handshake
// line (sid:heartbeat_timeout:close_timeout:transports).
func sessionID(handshake string) (string, error) {
	sid, _, _ := strings.Cut(strings.TrimSpace(handshake), ":")
	if sid == "" {
		return "", fmt.Errorf("no session id in handshake reply %q", handshake)
	}
	return sid, nil
}

// writeFrame writes one text frame outside the shared-write path. Only
// used during connection setup, before the conn is visible to Send.
func writeFrame(conn *websocket.Conn, data []byte) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}
