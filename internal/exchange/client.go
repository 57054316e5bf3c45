// Package exchange implements the streaming and HTTP clients for the
// exchange API.
//
// The streaming side runs one of two framing variants (plain websocket or
// socket.io) under a shared reconnect discipline: any receive error closes
// the session, waits five seconds and dials again. After every (re)connect
// the client subscribes the depth, ticker and trades channels, issues the
// three signed bootstrap calls (account info, open orders, idkey) and,
// when configured, pulls the full depth and trade history snapshots on
// short-lived goroutines feeding their own signals.
//
// Authenticated streaming calls are correlated by request id and tracked
// in a pending table until the matching {result, id} frame arrives. The
// server sometimes drops a call issued right after connecting and answers
// with an {op:"remark", success:false} frame instead of acting on it;
// bootstrap calls named in such a remark are resent once with the same id.
// Calls that never get an answer are discarded by a background sweeper.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/5l1v3r1/goxtool/internal/config"
	"github.com/5l1v3r1/goxtool/internal/metrics"
	"github.com/5l1v3r1/goxtool/internal/signal"
	"github.com/5l1v3r1/goxtool/pkg/types"
)

const (
	// pendingTTL bounds how long an unanswered signed call stays in the
	// pending table before the sweeper discards it.
	pendingTTL    = 2 * time.Minute
	sweepInterval = 30 * time.Second
)

// bootstrapIDs are the fixed request ids of the calls issued after every
// (re)connect. Only these are eligible for the remark-triggered resend.
var bootstrapIDs = map[string]bool{
	"info":   true,
	"orders": true,
	"idkey":  true,
}

// pendingCall is one signed call awaiting its {result, id} frame.
type pendingCall struct {
	endpoint string
	params   map[string]any
	deadline time.Time
}

// Client drives the streaming connection and the REST API for one
// currency. A nil credentials pair puts it in read-only mode: public
// channels flow normally, signed calls are skipped.
type Client struct {
	cfg    config.GoxConfig
	creds  *Credentials
	conn   StreamConn
	rest   *Rest
	nonce  *Nonce
	logger *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]pendingCall

	// SignalRecv carries every inbound JSON frame in arrival order.
	// SignalFulldepth and SignalFullhistory carry the REST snapshot
	// results, so snapshot and push data reach consumers through the same
	// serialized bus.
	SignalRecv        *signal.Signal[[]byte]
	SignalFulldepth   *signal.Signal[*types.DepthSnapshot]
	SignalFullhistory *signal.Signal[[]types.TradeMsg]
	SignalDebug       *signal.Signal[string]
}

// NewClient builds the client with the transport variant selected by the
// configuration.
func NewClient(cfg config.GoxConfig, creds *Credentials, hub *signal.Hub, logger *slog.Logger) *Client {
	var conn StreamConn
	if cfg.UsePlainOldWebsocket {
		conn = NewWebsocket(cfg.WebsocketHost, cfg.Currency, cfg.UseSSL, logger)
	} else {
		conn = NewSocketIO(cfg.SocketIOHost, cfg.Currency, cfg.UseSSL, logger)
	}
	return NewClientWithConn(cfg, creds, conn, hub, logger)
}

// NewClientWithConn builds the client on a caller-supplied transport.
func NewClientWithConn(cfg config.GoxConfig, creds *Credentials, conn StreamConn, hub *signal.Hub, logger *slog.Logger) *Client {
	nonce := &Nonce{}
	return &Client{
		cfg:     cfg,
		creds:   creds,
		conn:    conn,
		rest:    NewRest(cfg, creds, nonce, logger),
		nonce:   nonce,
		logger:  logger.With("component", "client"),
		pending: make(map[string]pendingCall),

		SignalRecv:        signal.New[[]byte](hub, "client.recv"),
		SignalFulldepth:   signal.New[*types.DepthSnapshot](hub, "client.fulldepth"),
		SignalFullhistory: signal.New[[]types.TradeMsg](hub, "client.fullhistory"),
		SignalDebug:       signal.New[string](hub, "client.debug"),
	}
}

// Run connects and receives until ctx is cancelled, reconnecting after a
// fixed pause on any session error. Blocks.
func (c *Client) Run(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.sweepLoop(ctx)
	}()

	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return
		}

		metrics.ReconnectsTotal.Inc()
		c.debugf("%v, reconnecting in %v", err, reconnectWait)

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectWait):
		}
	}
}

// Close closes the streaming session; a blocked receive returns
// immediately. Safe to call from any goroutine.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) connectAndRead(ctx context.Context) error {
	if err := c.conn.Connect(ctx); err != nil {
		return err
	}
	defer c.conn.Close()

	metrics.ConnectionUp.Set(1)
	defer metrics.ConnectionUp.Set(0)

	c.channelSubscribe(ctx)

	for {
		data, err := c.conn.Recv()
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

// channelSubscribe runs after every (re)connect: subscribe the three
// public channels, issue the signed bootstrap calls and kick off the
// configured snapshot pulls without blocking the read loop.
func (c *Client) channelSubscribe(ctx context.Context) {
	for _, typ := range []string{"depth", "ticker", "trades"} {
		if err := c.SubscribeType(typ); err != nil {
			c.debugf("subscribe %s: %v", typ, err)
		}
	}

	for _, reqid := range []string{"info", "orders", "idkey"} {
		if err := c.SendSignedCall("private/"+reqid, nil, reqid); err != nil {
			c.debugf("call private/%s: %v", reqid, err)
		}
	}

	if c.cfg.LoadFulldepth {
		go c.requestFullDepth(ctx)
	}
	if c.cfg.LoadHistory {
		go c.requestHistory(ctx)
	}
}

// handleFrame forwards one inbound frame to the recv signal after peeking
// at it for the call-multiplexing concerns: a result resolves the pending
// entry with the same id, a failure remark may trigger a bootstrap resend.
func (c *Client) handleFrame(data []byte) {
	var peek struct {
		Op      string          `json:"op"`
		ID      string          `json:"id"`
		Success *bool           `json:"success"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(data, &peek); err == nil {
		if len(peek.Result) > 0 && peek.ID != "" {
			c.resolveCall(peek.ID)
		}
		if peek.Op == "remark" && peek.Success != nil && !*peek.Success && peek.ID != "" {
			c.retryCall(peek.ID)
		}
	}
	c.SignalRecv.Emit(c, data)
}

// resolveCall drops the pending entry once its result arrived.
func (c *Client) resolveCall(reqid string) {
	c.pendingMu.Lock()
	delete(c.pending, reqid)
	c.pendingMu.Unlock()
}

// retryCall resends a bootstrap call the server remarked as silently
// dropped. Such calls always succeed when sent again. Only calls still
// pending are resent, so a remark arriving after the result (or a second
// remark after the resend succeeded) is ignored.
func (c *Client) retryCall(reqid string) {
	if !bootstrapIDs[reqid] {
		return
	}
	c.pendingMu.Lock()
	call, pending := c.pending[reqid]
	c.pendingMu.Unlock()
	if !pending {
		return
	}

	metrics.CallResendsTotal.Inc()
	c.debugf("server dropped %s, resending", call.endpoint)
	if err := c.SendSignedCall(call.endpoint, call.params, reqid); err != nil {
		c.debugf("resend %s: %v", call.endpoint, err)
	}
}

// SendSignedCall signs and sends one streaming call under the given
// request id, recording it in the pending table until the matching result
// arrives. In read-only mode this logs and does nothing.
func (c *Client) SendSignedCall(endpoint string, params map[string]any, reqid string) error {
	if c.creds == nil {
		c.debugf("no credentials, cannot call %s", endpoint)
		return nil
	}
	if params == nil {
		params = map[string]any{}
	}

	op, err := buildCallOp(c.creds, types.CallRequest{
		ID:       reqid,
		Call:     endpoint,
		Nonce:    c.nonce.Next(),
		Params:   params,
		Currency: c.cfg.Currency,
		Item:     "BTC",
	})
	if err != nil {
		return err
	}
	frame, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal call envelope: %w", err)
	}

	c.pendingMu.Lock()
	c.pending[reqid] = pendingCall{
		endpoint: endpoint,
		params:   params,
		deadline: time.Now().Add(pendingTTL),
	}
	c.pendingMu.Unlock()

	metrics.CallsSentTotal.WithLabelValues(endpoint).Inc()
	if err := c.conn.Send(frame); err != nil {
		return fmt.Errorf("send call %s: %w", endpoint, err)
	}
	return nil
}

// Call issues a signed streaming call under a fresh unique request id and
// returns that id. The reply arrives later as a {result, id} frame on
// SignalRecv; callers correlate by the returned id.
func (c *Client) Call(endpoint string, params map[string]any) (string, error) {
	if c.creds == nil {
		return "", ErrNoCredentials
	}
	reqid := uuid.NewString()
	if err := c.SendSignedCall(endpoint, params, reqid); err != nil {
		return "", err
	}
	return reqid, nil
}

// SubscribeType subscribes one public channel by name ("depth", "ticker",
// "trades").
func (c *Client) SubscribeType(typ string) error {
	return c.sendOp(types.SubscribeOp{Op: "mtgox.subscribe", Type: typ})
}

// SubscribeKey subscribes the private account channel for the idkey
// obtained via private/idkey.
func (c *Client) SubscribeKey(key string) error {
	return c.sendOp(types.SubscribeOp{Op: "mtgox.subscribe", Key: key})
}

// Unsubscribe leaves one channel by its id.
func (c *Client) Unsubscribe(channel string) error {
	return c.sendOp(types.UnsubscribeOp{Op: "unsubscribe", Channel: channel})
}

func (c *Client) sendOp(op any) error {
	frame, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal op: %w", err)
	}
	return c.conn.Send(frame)
}

// AddOrder places an order over the signed REST surface. A price of 0
// submits at market.
func (c *Client) AddOrder(ctx context.Context, side types.Side, price, volume int64) (string, error) {
	if c.creds == nil {
		c.debugf("no credentials, cannot place order")
		return "", ErrNoCredentials
	}
	return c.rest.AddOrder(ctx, side, price, volume)
}

// CancelOrder cancels one order by oid over the signed REST surface.
func (c *Client) CancelOrder(ctx context.Context, oid string) error {
	if c.creds == nil {
		c.debugf("no credentials, cannot cancel order")
		return ErrNoCredentials
	}
	return c.rest.CancelOrder(ctx, oid)
}

// requestFullDepth pulls the complete depth snapshot and feeds it into the
// fulldepth signal. Runs on its own short-lived goroutine.
func (c *Client) requestFullDepth(ctx context.Context) {
	c.debugf("requesting initial full depth")
	snap, err := c.rest.FullDepth(ctx)
	if err != nil {
		c.debugf("fulldepth request failed: %v", err)
		return
	}
	c.SignalFulldepth.Emit(c, snap)
}

// requestHistory pulls the recent trades snapshot for the candle history.
func (c *Client) requestHistory(ctx context.Context) {
	c.debugf("requesting trade history")
	trades, err := c.rest.RecentTrades(ctx)
	if err != nil {
		c.debugf("history request failed: %v", err)
		return
	}
	c.SignalFullhistory.Emit(c, trades)
}

// sweepLoop periodically discards pending calls whose deadline passed
// without a result; they would otherwise accumulate across reconnects.
func (c *Client) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweepExpired(time.Now())
		}
	}
}

func (c *Client) sweepExpired(now time.Time) {
	var expired []pendingCall
	c.pendingMu.Lock()
	for reqid, call := range c.pending {
		if now.After(call.deadline) {
			delete(c.pending, reqid)
			expired = append(expired, call)
		}
	}
	c.pendingMu.Unlock()

	// Emitting outside the lock: a debug subscriber may issue calls.
	for _, call := range expired {
		metrics.CallsExpiredTotal.Inc()
		c.debugf("call %s got no result, dropping", call.endpoint)
	}
}

// debugf mirrors diagnostics to the debug signal, falling back to the
// logger when nobody subscribed yet.
func (c *Client) debugf(format string, args ...any) {
	signal.Debugf(c.SignalDebug, c.logger, c, format, args...)
}
