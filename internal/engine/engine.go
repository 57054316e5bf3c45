// Package engine is the central orchestrator of the live-market client.
//
// It wires together all subsystems:
//
//  1. Client keeps the streaming session alive and multiplexes signed calls.
//  2. Every inbound frame lands in the dispatcher, which fires one typed
//     signal per payload key it finds (ticker, depth, trade, user_order,
//     wallet, result, remark). A frame may legally carry several.
//  3. Book mirrors the public ladders and the account's own open orders.
//  4. History folds the public trade stream into OHLCV candles.
//  5. Strategies and the UI subscribe to the typed signals and act through
//     the command surface (Buy, Sell, Cancel, subscriptions).
//
// Lifecycle: New() → Start() → [runs until SIGINT] → Stop()
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/5l1v3r1/goxtool/internal/config"
	"github.com/5l1v3r1/goxtool/internal/exchange"
	"github.com/5l1v3r1/goxtool/internal/market"
	"github.com/5l1v3r1/goxtool/internal/metrics"
	"github.com/5l1v3r1/goxtool/internal/signal"
	"github.com/5l1v3r1/goxtool/pkg/types"
)

// Engine owns the client, the book, and the candle history for one quote
// currency, and translates raw stream frames into typed signals.
type Engine struct {
	cfg      config.Config
	currency string
	client   *exchange.Client
	hub      *signal.Hub
	book     *market.Book
	history  *market.History
	logger   *slog.Logger

	// mu guards the wallet map and the cached idkey.
	mu     sync.RWMutex
	wallet types.Wallet
	idkey  string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// One signal per dispatcher outcome. Subscribers run in registration
	// order on the hub's shared emission lock, so the book and history
	// updates they trigger are serialized application-wide.
	SignalDebug       *signal.Signal[string]
	SignalTicker      *signal.Signal[types.Ticker]
	SignalDepth       *signal.Signal[types.DepthUpdate]
	SignalTrade       *signal.Signal[types.Trade]
	SignalUserOrder   *signal.Signal[types.Order]
	SignalWallet      *signal.Signal[types.Wallet]
	SignalFulldepth   *signal.Signal[*types.DepthSnapshot]
	SignalFullhistory *signal.Signal[[]types.TradeMsg]
}

// New creates and wires all engine components. Empty credentials put the
// engine in read-only mode: public market data flows, commands fail fast.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	creds, err := exchange.ParseCredentials(cfg.Gox.SecretKey, cfg.Gox.SecretSecret)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	if creds == nil {
		logger.Info("no credentials configured, running read-only")
	}

	hub := signal.NewHub(logger)
	client := exchange.NewClient(cfg.Gox, creds, hub, logger)
	return build(cfg, client, hub, logger), nil
}

// build finishes construction on a ready-made client so tests can inject
// their own transport.
func build(cfg config.Config, client *exchange.Client, hub *signal.Hub, logger *slog.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:      cfg,
		currency: cfg.Gox.Currency,
		client:   client,
		hub:      hub,
		logger:   logger.With("component", "engine"),
		wallet:   make(types.Wallet),
		ctx:      ctx,
		cancel:   cancel,

		SignalDebug:       signal.New[string](hub, "debug"),
		SignalTicker:      signal.New[types.Ticker](hub, "ticker"),
		SignalDepth:       signal.New[types.DepthUpdate](hub, "depth"),
		SignalTrade:       signal.New[types.Trade](hub, "trade"),
		SignalUserOrder:   signal.New[types.Order](hub, "userorder"),
		SignalWallet:      signal.New[types.Wallet](hub, "wallet"),
		SignalFulldepth:   signal.New[*types.DepthSnapshot](hub, "fulldepth"),
		SignalFullhistory: signal.New[[]types.TradeMsg](hub, "fullhistory"),
	}

	// The book and history report their diagnostics straight onto the
	// engine's debug surface.
	e.book = market.NewBook(hub, e.currency, e.SignalDebug, logger)
	e.history = market.NewHistory(hub, cfg.Gox.CandleTimeframe, e.SignalDebug, logger)

	// Dispatcher input: every frame the client receives, plus the snapshot
	// pulls, funnel into the same signal wiring.
	client.SignalRecv.Connect(func(_ any, data []byte) { e.onFrame(data) })
	client.SignalFulldepth.Connect(func(_ any, snap *types.DepthSnapshot) {
		e.book.ApplyFullDepth(snap)
		e.SignalFulldepth.Emit(e, snap)
	})
	client.SignalFullhistory.Connect(func(_ any, trades []types.TradeMsg) {
		e.history.ReplaceFromTrades(trades)
		e.SignalFullhistory.Emit(e, trades)
	})
	client.SignalDebug.Connect(func(sender any, msg string) {
		if !e.SignalDebug.Emit(sender, msg) {
			e.logger.Debug(msg)
		}
	})

	// Book and history consume the typed signals like any other subscriber;
	// being registered first, they run before strategies see the event.
	e.SignalTicker.Connect(func(_ any, t types.Ticker) { e.book.ApplyTicker(t) })
	e.SignalDepth.Connect(func(_ any, u types.DepthUpdate) { e.book.ApplyDepth(u) })
	e.SignalTrade.Connect(func(_ any, tr types.Trade) {
		e.book.ApplyTrade(tr)
		e.history.ApplyTrade(tr)
	})
	e.SignalUserOrder.Connect(func(_ any, o types.Order) { e.book.ApplyUserOrder(o) })

	e.book.Changed.Connect(func(any, struct{}) {
		asks, bids, owns := e.book.Sizes()
		metrics.BookLevels.WithLabelValues("ask").Set(float64(asks))
		metrics.BookLevels.WithLabelValues("bid").Set(float64(bids))
		metrics.OwnOrders.Set(float64(owns))
	})
	e.history.Changed.Connect(func(any, int) {
		metrics.Candles.Set(float64(e.history.Length()))
	})

	return e
}

// Start launches the streaming session. It returns immediately; the client
// reconnects on its own until Stop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.client.Run(e.ctx)
	}()
	e.logger.Info("engine started", "currency", e.currency)
}

// Stop tears the session down and waits for the client goroutine.
func (e *Engine) Stop() {
	e.cancel()
	if err := e.client.Close(); err != nil {
		e.logger.Debug("closing session", "error", err)
	}
	e.wg.Wait()
	e.logger.Info("engine stopped")
}

// onFrame fires one handler per known key present in the frame. Unknown
// shapes are logged and dropped.
func (e *Engine) onFrame(data []byte) {
	var msg types.StreamMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		e.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	handled := false
	if msg.Ticker != nil {
		handled = true
		e.onTicker(msg.Ticker)
	}
	if msg.Depth != nil {
		handled = true
		e.onDepth(msg.Depth)
	}
	if msg.Trade != nil {
		handled = true
		e.onTrade(msg.Trade, msg.Channel)
	}
	if msg.UserOrder != nil {
		handled = true
		e.onUserOrder(msg.UserOrder)
	}
	if msg.Wallet != nil {
		handled = true
		e.onWallet()
	}
	if msg.Result != nil {
		handled = true
		e.onResult(msg.ID, msg.Result)
	}
	if msg.Op == "remark" {
		handled = true
		e.onRemark(&msg)
	}
	if !handled {
		e.logger.Warn("unhandled frame", "op", msg.Op, "channel", msg.Channel)
	}
}

func (e *Engine) onTicker(t *types.TickerMsg) {
	if t.Sell.Currency != e.currency {
		return
	}
	metrics.FramesTotal.WithLabelValues("ticker").Inc()
	e.SignalTicker.Emit(e, types.Ticker{Bid: t.Buy.ValueInt.Int(), Ask: t.Sell.ValueInt.Int()})
}

func (e *Engine) onDepth(d *types.DepthMsg) {
	if d.Currency != e.currency {
		return
	}
	metrics.FramesTotal.WithLabelValues("depth").Inc()
	e.SignalDepth.Emit(e, types.DepthUpdate{
		Side:  d.TypeStr,
		Price: d.PriceInt.Int(),
		Delta: d.VolumeInt.Int(),
		Total: d.TotalVolumeInt.Int(),
	})
}

func (e *Engine) onTrade(t *types.TradeMsg, channel string) {
	if t.PriceCurrency != e.currency {
		e.debugf("ignoring trade in %s", t.PriceCurrency)
		return
	}
	own := channel != types.PublicTradeChannel
	scope := "public"
	if own {
		scope = "own"
	}
	metrics.FramesTotal.WithLabelValues("trade").Inc()
	metrics.TradesTotal.WithLabelValues(scope).Inc()
	e.SignalTrade.Emit(e, types.Trade{
		Date:   t.Date.Int(),
		Price:  t.PriceInt.Int(),
		Volume: t.AmountInt.Int(),
		Own:    own,
	})
}

// onUserOrder translates one account-channel order push. A message without
// a price is a removal and carries no currency; anything else must match
// the engine's currency.
func (e *Engine) onUserOrder(o *types.UserOrderMsg) {
	metrics.FramesTotal.WithLabelValues("user_order").Inc()
	if o.Price == nil {
		e.SignalUserOrder.Emit(e, types.Order{OID: o.OID, Status: types.StatusRemoved})
		return
	}
	if o.Currency != e.currency {
		return
	}
	order := types.Order{
		Price:  o.Price.ValueInt.Int(),
		Side:   o.Type,
		OID:    o.OID,
		Status: o.Status,
	}
	if o.Amount != nil {
		order.Volume = o.Amount.ValueInt.Int()
	}
	e.SignalUserOrder.Emit(e, order)
}

// onWallet reacts to the opaque wallet push by pulling fresh account info;
// the push payload itself is never parsed.
func (e *Engine) onWallet() {
	metrics.FramesTotal.WithLabelValues("wallet").Inc()
	e.debugf("wallet changed, requesting account info")
	if err := e.client.SendSignedCall("private/info", map[string]any{}, "info"); err != nil {
		e.debugf("info call failed: %v", err)
	}
}

func (e *Engine) onResult(id string, result json.RawMessage) {
	metrics.FramesTotal.WithLabelValues("result").Inc()
	switch id {
	case "idkey":
		e.onIDKey(result)
	case "orders":
		e.onOrderList(result)
	case "info":
		e.onAccountInfo(result)
	default:
		e.debugf("result for call %s: %s", id, string(result))
	}
}

// onIDKey caches the account-channel key and subscribes it, which makes
// the server start pushing user_order, wallet, and own-trade frames.
func (e *Engine) onIDKey(result json.RawMessage) {
	var key string
	if err := json.Unmarshal(result, &key); err != nil {
		e.logger.Warn("malformed idkey result", "error", err)
		return
	}
	e.mu.Lock()
	e.idkey = key
	e.mu.Unlock()

	e.debugf("got idkey, subscribing to account channel")
	if err := e.client.SubscribeKey(key); err != nil {
		e.logger.Error("account channel subscribe failed", "error", err)
	}
}

// onOrderList replaces the own-order set with the private/orders reply,
// filtered to the engine's currency.
func (e *Engine) onOrderList(result json.RawMessage) {
	var entries []types.OrderListEntry
	if err := json.Unmarshal(result, &entries); err != nil {
		e.logger.Warn("malformed orders result", "error", err)
		return
	}
	e.book.ResetOwn()
	count := 0
	for _, entry := range entries {
		if entry.Currency != e.currency {
			continue
		}
		e.book.AddOwn(types.Order{
			Price:  entry.Price.ValueInt.Int(),
			Volume: entry.Amount.ValueInt.Int(),
			Side:   entry.Type,
			OID:    entry.OID,
			Status: entry.Status,
		})
		count++
	}
	e.debugf("got own order list: %d orders", count)
}

// onAccountInfo rebuilds the wallet from the private/info reply.
func (e *Engine) onAccountInfo(result json.RawMessage) {
	var info types.AccountInfo
	if err := json.Unmarshal(result, &info); err != nil {
		e.logger.Warn("malformed info result", "error", err)
		return
	}
	wallet := make(types.Wallet, len(info.Wallets))
	for currency, entry := range info.Wallets {
		wallet[currency] = entry.Balance.ValueInt.Int()
	}
	e.mu.Lock()
	e.wallet = wallet
	e.mu.Unlock()

	e.debugf("got account info")
	e.SignalWallet.Emit(e, e.Wallet())
}

// onRemark logs server remarks. The resend of silently dropped bootstrap
// calls already happened inside the client before the frame got here.
func (e *Engine) onRemark(msg *types.StreamMessage) {
	metrics.FramesTotal.WithLabelValues("remark").Inc()
	if msg.Success != nil && !*msg.Success {
		e.debugf("server dropped call %s: %s", msg.ID, msg.Message)
		return
	}
	e.debugf("server remark: %s", msg.Message)
}

// PlaceOrder submits a new order and announces it as pending under the
// returned oid. The server's own user_order push later confirms it; both
// carry the same oid, so the book never tracks a duplicate.
func (e *Engine) PlaceOrder(ctx context.Context, side types.Side, price, volume int64) (string, error) {
	oid, err := e.client.AddOrder(ctx, side, price, volume)
	if err != nil {
		e.logger.Error("order placement failed", "side", side, "error", err)
		return "", err
	}
	e.debugf("placed %s order %s at %s", side, oid, types.FormatMoney(price, e.currency))
	e.SignalUserOrder.Emit(e, types.Order{
		Price:  price,
		Volume: volume,
		Side:   side,
		OID:    oid,
		Status: types.StatusPending,
	})
	return oid, nil
}

// Buy submits a bid. A price of 0 buys at market.
func (e *Engine) Buy(ctx context.Context, price, volume int64) (string, error) {
	return e.PlaceOrder(ctx, types.Bid, price, volume)
}

// Sell submits an ask. A price of 0 sells at market.
func (e *Engine) Sell(ctx context.Context, price, volume int64) (string, error) {
	return e.PlaceOrder(ctx, types.Ask, price, volume)
}

// Cancel cancels one order by oid and announces its removal.
func (e *Engine) Cancel(ctx context.Context, oid string) error {
	if err := e.client.CancelOrder(ctx, oid); err != nil {
		e.logger.Error("cancel failed", "oid", oid, "error", err)
		return err
	}
	e.debugf("cancelled order %s", oid)
	e.SignalUserOrder.Emit(e, types.Order{OID: oid, Status: types.StatusRemoved})
	return nil
}

// CancelByPrice cancels every own order resting at the given price.
func (e *Engine) CancelByPrice(ctx context.Context, price int64) {
	e.cancelMatching(ctx, func(o types.Order) bool { return o.Price == price })
}

// CancelBySide cancels every own order on one side, or all own orders when
// side is empty.
func (e *Engine) CancelBySide(ctx context.Context, side types.Side) {
	e.cancelMatching(ctx, func(o types.Order) bool { return side == "" || o.Side == side })
}

// cancelMatching walks a snapshot of the own orders in reverse, so the
// removal signals arriving meanwhile cannot starve later matches. Orders
// still waiting for their server-assigned oid are skipped.
func (e *Engine) cancelMatching(ctx context.Context, match func(types.Order) bool) {
	owns := e.book.Owns()
	for i := len(owns) - 1; i >= 0; i-- {
		if !match(owns[i]) {
			continue
		}
		if owns[i].OID == "" {
			e.debugf("cannot cancel placeholder order, no oid yet")
			continue
		}
		if err := e.Cancel(ctx, owns[i].OID); err != nil {
			e.logger.Error("cancel failed", "oid", owns[i].OID, "error", err)
		}
	}
}

// SubscribeType subscribes an extra public channel by name.
func (e *Engine) SubscribeType(typ string) error { return e.client.SubscribeType(typ) }

// Unsubscribe leaves a channel by its id.
func (e *Engine) Unsubscribe(channel string) error { return e.client.Unsubscribe(channel) }

// Book returns the live order book.
func (e *Engine) Book() *market.Book { return e.book }

// History returns the live candle history.
func (e *Engine) History() *market.History { return e.history }

// Client returns the underlying exchange client.
func (e *Engine) Client() *exchange.Client { return e.client }

// Currency returns the quote currency this engine serves.
func (e *Engine) Currency() string { return e.currency }

// Wallet returns a copy of the last known account balances.
func (e *Engine) Wallet() types.Wallet {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(types.Wallet, len(e.wallet))
	for currency, balance := range e.wallet {
		out[currency] = balance
	}
	return out
}

// OwnVolumeAt reports the volume of own orders resting at a price.
func (e *Engine) OwnVolumeAt(price int64) int64 { return e.book.OwnVolumeAt(price) }

func (e *Engine) debugf(format string, args ...any) {
	signal.Debugf(e.SignalDebug, e.logger, e, format, args...)
}
