// Package market maintains the local view of the live market: the order
// book with the account's own orders, and the trade-derived candle history.
//
// Book mirrors the public order book for one currency pair. It is updated
// from two sources:
//   - the push stream via ApplyTicker, ApplyDepth, ApplyTrade and
//     ApplyUserOrder
//   - the REST fulldepth snapshot via ApplyFullDepth (initial load and
//     reconnect recovery)
//
// Every method is safe for concurrent use (RWMutex protected). Mutations
// emit the Changed signal exactly once when state actually changed; an
// update that turns out to be a no-op emits nothing. Signals are emitted
// after the lock is released, so subscribers may read the book freely.
package market

import (
	"log/slog"
	"sync"

	"github.com/5l1v3r1/goxtool/internal/signal"
	"github.com/5l1v3r1/goxtool/pkg/types"
)

// Book maintains the two price ladders, the own-order set and the cached
// top of book for one currency pair.
type Book struct {
	currency string
	logger   *slog.Logger
	debug    *signal.Signal[string]

	mu   sync.RWMutex
	asks []types.PriceLevel // ascending by price
	bids []types.PriceLevel // descending by price
	owns []types.Order      // arrival order, keyed by OID
	bid  int64              // cached best bid, ticker takes precedence
	ask  int64              // cached best ask

	// Changed fires once after every mutating update.
	Changed *signal.Signal[struct{}]
}

// NewBook creates an empty book for one quote currency. Debug narration
// goes to debug, operational errors to logger.
func NewBook(hub *signal.Hub, currency string, debug *signal.Signal[string], logger *slog.Logger) *Book {
	return &Book{
		currency: currency,
		logger:   logger.With("component", "book"),
		debug:    debug,
		Changed:  signal.New[struct{}](hub, "book.changed"),
	}
}

// ApplyTicker caches the new top of book and prunes levels the depth feed
// failed to remove: asks strictly below the new best ask and bids strictly
// above the new best bid cannot still rest there. The ticker is
// authoritative for the top of book.
func (b *Book) ApplyTicker(t types.Ticker) {
	b.mu.Lock()
	changed := b.bid != t.Bid || b.ask != t.Ask
	b.bid = t.Bid
	b.ask = t.Ask
	for len(b.asks) > 0 && b.asks[0].Price < t.Ask {
		b.asks = b.asks[1:]
		changed = true
	}
	for len(b.bids) > 0 && b.bids[0].Price > t.Bid {
		b.bids = b.bids[1:]
		changed = true
	}
	b.mu.Unlock()

	if changed {
		b.Changed.Emit(b, struct{}{})
	}
}

// ApplyDepth folds one depth delta into the ladder named by the update.
// Total is authoritative: a positive total overwrites the level's volume
// or inserts the level at its sort position, a total of zero removes the
// level. Updates that change nothing emit nothing.
func (b *Book) ApplyDepth(u types.DepthUpdate) {
	b.mu.Lock()
	var changed bool
	switch u.Side {
	case types.Ask:
		b.asks, changed = applyLevel(b.asks, u.Price, u.Total, func(resting int64) bool { return resting > u.Price })
	case types.Bid:
		b.bids, changed = applyLevel(b.bids, u.Price, u.Total, func(resting int64) bool { return resting < u.Price })
	default:
		b.logger.Warn("depth update with unknown side", "side", string(u.Side))
	}
	b.mu.Unlock()

	if changed {
		b.Changed.Emit(b, struct{}{})
	}
}

// applyLevel updates one ladder. insertBefore reports whether the new
// price sorts before a resting one, which parameterizes the ask/bid sort
// orders.
func applyLevel(lst []types.PriceLevel, price, total int64, insertBefore func(resting int64) bool) ([]types.PriceLevel, bool) {
	if total <= 0 {
		return removeLevel(lst, price)
	}
	for i := range lst {
		if lst[i].Price == price {
			if lst[i].Volume == total {
				return lst, false
			}
			lst[i].Volume = total
			return lst, true
		}
		if insertBefore(lst[i].Price) {
			lst = append(lst, types.PriceLevel{})
			copy(lst[i+1:], lst[i:])
			lst[i] = types.PriceLevel{Price: price, Volume: total}
			return lst, true
		}
	}
	return append(lst, types.PriceLevel{Price: price, Volume: total}), true
}

func removeLevel(lst []types.PriceLevel, price int64) ([]types.PriceLevel, bool) {
	for i := range lst {
		if lst[i].Price == price {
			return append(lst[:i], lst[i+1:]...), true
		}
	}
	return lst, false
}

// ApplyTrade consumes resting volume. A public trade decrements the level
// at the trade price on both ladders (the trade frame names no side; the
// untouched ladder simply has no level there) and refreshes the cached top
// of book from the new ladder tops. A trade echoed from the account
// channel decrements the matching own order instead and leaves the public
// ladders alone.
func (b *Book) ApplyTrade(tr types.Trade) {
	b.mu.Lock()
	var changed bool
	if tr.Own {
		b.owns, changed = consumeOwn(b.owns, tr.Price, tr.Volume)
	} else {
		var askHit, bidHit bool
		b.asks, askHit = consumeLevel(b.asks, tr.Price, tr.Volume)
		b.bids, bidHit = consumeLevel(b.bids, tr.Price, tr.Volume)
		changed = askHit || bidHit

		ask, bid := int64(0), int64(0)
		if len(b.asks) > 0 {
			ask = b.asks[0].Price
		}
		if len(b.bids) > 0 {
			bid = b.bids[0].Price
		}
		if b.ask != ask || b.bid != bid {
			b.ask, b.bid = ask, bid
			changed = true
		}
	}
	b.mu.Unlock()

	if changed {
		if tr.Own {
			b.debugf("trade fills own order at %s", types.FormatMoney(tr.Price, b.currency))
		}
		b.Changed.Emit(b, struct{}{})
	}
}

// consumeLevel subtracts traded volume from the level at price, removing
// the level once nothing rests there. Prices not in the ladder are ignored
// silently; the matching depth delta usually arrives separately.
func consumeLevel(lst []types.PriceLevel, price, volume int64) ([]types.PriceLevel, bool) {
	for i := range lst {
		if lst[i].Price != price {
			continue
		}
		lst[i].Volume -= volume
		if lst[i].Volume <= 0 {
			return append(lst[:i], lst[i+1:]...), true
		}
		return lst, true
	}
	return lst, false
}

func consumeOwn(owns []types.Order, price, volume int64) ([]types.Order, bool) {
	for i := range owns {
		if owns[i].Price != price {
			continue
		}
		owns[i].Volume -= volume
		if owns[i].Volume <= 0 {
			return append(owns[:i], owns[i+1:]...), true
		}
		return owns, true
	}
	return owns, false
}

// ApplyUserOrder reconciles one user_order event into the own-order set:
// a removal deletes by oid, an update for a known oid adjusts volume and
// status in place, an unknown oid appends a new order.
func (b *Book) ApplyUserOrder(o types.Order) {
	var verb string
	var removed types.Order

	b.mu.Lock()
	if o.Status == types.StatusRemoved {
		for i := range b.owns {
			if b.owns[i].OID == o.OID {
				removed = b.owns[i]
				b.owns = append(b.owns[:i], b.owns[i+1:]...)
				verb = "removing"
				break
			}
		}
	} else {
		verb = "adding"
		for i := range b.owns {
			if b.owns[i].OID == o.OID {
				b.owns[i].Volume = o.Volume
				b.owns[i].Status = o.Status
				verb = "updating"
				break
			}
		}
		if verb == "adding" {
			b.owns = append(b.owns, o)
		}
	}
	b.mu.Unlock()

	switch verb {
	case "removing":
		b.debugf("removing order %s price: %s type: %s", removed.OID,
			types.FormatMoney(removed.Price, b.currency), removed.Side)
	case "updating":
		b.debugf("updating order %s volume: %s status: %s", o.OID,
			types.FormatMoney(o.Volume, "BTC"), o.Status)
	case "adding":
		b.debugf("adding order %s price: %s type: %s", o.OID,
			types.FormatMoney(o.Price, b.currency), o.Side)
	default:
		// Removal for an oid that was never tracked: nothing changed.
		return
	}
	b.Changed.Emit(b, struct{}{})
}

// ApplyFullDepth wipes both ladders and reloads them from a snapshot.
// Asks arrive ascending and load as-is; bids arrive ascending too and are
// reversed so the best bid leads. The own-order set is not touched, it is
// owned by the private/orders flow.
func (b *Book) ApplyFullDepth(snap *types.DepthSnapshot) {
	if snap == nil {
		return
	}
	b.mu.Lock()
	b.asks = make([]types.PriceLevel, 0, len(snap.Asks))
	for _, e := range snap.Asks {
		b.asks = append(b.asks, types.PriceLevel{Price: e.PriceInt.Int(), Volume: e.AmountInt.Int()})
	}
	b.bids = make([]types.PriceLevel, 0, len(snap.Bids))
	for i := len(snap.Bids) - 1; i >= 0; i-- {
		e := snap.Bids[i]
		b.bids = append(b.bids, types.PriceLevel{Price: e.PriceInt.Int(), Volume: e.AmountInt.Int()})
	}
	b.mu.Unlock()

	b.debugf("got full depth: %d asks, %d bids", len(snap.Asks), len(snap.Bids))
	b.Changed.Emit(b, struct{}{})
}

// ResetOwn clears the own-order set ahead of a fresh private/orders load.
func (b *Book) ResetOwn() {
	b.mu.Lock()
	b.owns = nil
	b.mu.Unlock()
	b.Changed.Emit(b, struct{}{})
}

// AddOwn appends one order from the private/orders reply. Later changes
// arrive through ApplyUserOrder and ApplyTrade.
func (b *Book) AddOwn(o types.Order) {
	b.mu.Lock()
	b.owns = append(b.owns, o)
	b.mu.Unlock()
	b.Changed.Emit(b, struct{}{})
}

// Bid returns the cached best bid, 0 when unknown.
func (b *Book) Bid() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bid
}

// Ask returns the cached best ask, 0 when unknown.
func (b *Book) Ask() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ask
}

// Asks returns a copy of the ask ladder, ascending by price.
func (b *Book) Asks() []types.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.PriceLevel, len(b.asks))
	copy(out, b.asks)
	return out
}

// Bids returns a copy of the bid ladder, descending by price.
func (b *Book) Bids() []types.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.PriceLevel, len(b.bids))
	copy(out, b.bids)
	return out
}

// Owns returns a copy of the own-order set in arrival order.
func (b *Book) Owns() []types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.Order, len(b.owns))
	copy(out, b.owns)
	return out
}

// OwnVolumeAt sums the volume of own orders resting at a price, letting a
// strategy tell its own liquidity apart from the market's.
func (b *Book) OwnVolumeAt(price int64) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var volume int64
	for _, o := range b.owns {
		if o.Price == price {
			volume += o.Volume
		}
	}
	return volume
}

// Sizes returns the ladder and own-order counts.
func (b *Book) Sizes() (asks, bids, owns int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.asks), len(b.bids), len(b.owns)
}

func (b *Book) debugf(format string, args ...any) {
	signal.Debugf(b.debug, b.logger, b, format, args...)
}
