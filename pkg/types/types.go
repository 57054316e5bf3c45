// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the client: book sides, own
// orders, price levels, candles, wire message payloads, and the fixed-point
// money helpers. It has no dependencies on internal packages, so it can be
// imported by any layer.
package types

// Side is the book side an order rests on. The values match the exchange's
// wire strings so they compare directly against the type_str and trade_type
// fields of incoming messages.
type Side string

const (
	Bid Side = "bid"
	Ask Side = "ask"
)

// OrderStatus is the lifecycle state of an own order as reported by the
// exchange. The stream may carry further states (invalid, executing, ...);
// only the ones the engine acts on are named here.
type OrderStatus string

const (
	// StatusPending is set locally right after order placement succeeds,
	// before the first user_order push confirms the order.
	StatusPending OrderStatus = "pending"

	// StatusOpen means the order rests on the book.
	StatusOpen OrderStatus = "open"

	// StatusRemoved means the order left the book (filled or cancelled).
	StatusRemoved OrderStatus = "removed"
)

// PriceLevel is a single aggregated level of the public order book.
// Identity within a ladder is the price; volume is the total resting
// volume at that price and is always positive (zero-volume levels are
// removed from the ladder).
type PriceLevel struct {
	Price  int64
	Volume int64
}

// Order is an order belonging to the authenticated account. Identity is
// the OID. A freshly submitted order may exist briefly without an OID
// (placeholder); such an order cannot be cancelled until the server
// attaches the OID.
type Order struct {
	Price  int64
	Volume int64
	Side   Side
	OID    string
	Status OrderStatus
}

// Candle is one OHLCV bucket of the trade history. Time is the POSIX
// timestamp of the bucket open, prices and volume are fixed-point
// integers like everywhere else in the API.
type Candle struct {
	Time   int64
	Open   int64
	High   int64
	Low    int64
	Close  int64
	Volume int64
}

// Update folds one more trade into the candle: extends high/low, moves
// the close and adds to volume.
func (c *Candle) Update(price, volume int64) {
	if price > c.High {
		c.High = price
	}
	if price < c.Low {
		c.Low = price
	}
	c.Close = price
	c.Volume += volume
}

// Wallet maps a currency code to the account balance in that currency's
// fixed-point scale.
type Wallet map[string]int64

// Ticker is the payload of the ticker signal: best bid and best ask.
type Ticker struct {
	Bid int64
	Ask int64
}

// DepthUpdate is the payload of the depth signal. Delta is the signed
// volume change the feed reported; Total is the authoritative new total
// volume at the price (the book maintainer uses Total only).
type DepthUpdate struct {
	Side  Side
	Price int64
	Delta int64
	Total int64
}

// Trade is the payload of the trade signal. Own marks trades that arrived
// on the account channel rather than the public trade channel.
type Trade struct {
	Date   int64
	Price  int64
	Volume int64
	Own    bool
}
