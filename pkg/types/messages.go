// messages.go maps the exchange's JSON wire formats to Go structs.
//
// Stream messages arrive as one JSON object per frame; a frame is routed by
// which of its well-known keys are present, not by a single discriminator,
// so StreamMessage carries every known key as an optional field. REST
// replies share the {result, return} envelope.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// PublicTradeChannel is the channel UUID the exchange uses for the public
// trade stream. A trade frame on any other channel is an echo of a trade
// that involved one of the account's own orders.
const PublicTradeChannel = "dbf1dee9-4f2e-4a08-8cb7-748919a71b21"

// Int64 is an int64 that unmarshals from either a JSON number or a numeric
// string. The exchange is inconsistent about which one it sends for the
// various *_int fields.
type Int64 int64

// UnmarshalJSON implements json.Unmarshaler.
func (v *Int64) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*v = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("parse int64 value %q: %w", string(data), err)
	}
	*v = Int64(n)
	return nil
}

// MarshalJSON implements json.Marshaler; values are emitted as numbers.
func (v Int64) MarshalJSON() ([]byte, error) {
	return strconv.AppendInt(nil, int64(v), 10), nil
}

// Int returns the value as a plain int64.
func (v Int64) Int() int64 { return int64(v) }

// MoneyValue is the {value_int, currency} envelope the exchange wraps
// monetary amounts in.
type MoneyValue struct {
	ValueInt Int64  `json:"value_int"`
	Currency string `json:"currency,omitempty"`
}

// StreamMessage is the superset of every frame shape the push feed
// delivers. The dispatcher fires a handler for each key that is present;
// a single frame may legally carry several.
type StreamMessage struct {
	Op      string `json:"op,omitempty"`
	Channel string `json:"channel,omitempty"`

	Ticker    *TickerMsg      `json:"ticker,omitempty"`
	Depth     *DepthMsg       `json:"depth,omitempty"`
	Trade     *TradeMsg       `json:"trade,omitempty"`
	UserOrder *UserOrderMsg   `json:"user_order,omitempty"`
	Wallet    json.RawMessage `json:"wallet,omitempty"`

	// Result/ID carry the reply to a signed call; ID/Success/Message carry
	// remark frames.
	Result  json.RawMessage `json:"result,omitempty"`
	ID      string          `json:"id,omitempty"`
	Success *bool           `json:"success,omitempty"`
	Message string          `json:"message,omitempty"`
}

// TickerMsg is the payload under the "ticker" key: best bid (buy) and best
// ask (sell) for one currency.
type TickerMsg struct {
	Buy  MoneyValue `json:"buy"`
	Sell MoneyValue `json:"sell"`
}

// DepthMsg is the payload under the "depth" key: the new total volume at
// one price level of one ladder.
type DepthMsg struct {
	Currency       string `json:"currency"`
	TypeStr        Side   `json:"type_str"`
	PriceInt       Int64  `json:"price_int"`
	VolumeInt      Int64  `json:"volume_int"`
	TotalVolumeInt Int64  `json:"total_volume_int"`
}

// TradeMsg is the payload under the "trade" key and also the element type
// of the recent-trades snapshot.
type TradeMsg struct {
	Date          Int64  `json:"date"`
	PriceInt      Int64  `json:"price_int"`
	AmountInt     Int64  `json:"amount_int"`
	PriceCurrency string `json:"price_currency"`
	TradeType     Side   `json:"trade_type"`
}

// UserOrderMsg is the payload under the "user_order" key. A message
// without a price means the order was removed (filled or cancelled); one
// with a price is a placement or update.
type UserOrderMsg struct {
	OID      string      `json:"oid"`
	Currency string      `json:"currency,omitempty"`
	Price    *MoneyValue `json:"price,omitempty"`
	Amount   *MoneyValue `json:"amount,omitempty"`
	Type     Side        `json:"type,omitempty"`
	Status   OrderStatus `json:"status,omitempty"`
}

// RestResult is the {result, return} envelope of the HTTP API. Result is
// "success" when Return holds the payload; anything else is a failure and
// Error may carry a reason.
type RestResult[T any] struct {
	Result string `json:"result"`
	Return T      `json:"return"`
	Error  string `json:"error,omitempty"`
}

// OK reports whether the call succeeded.
func (r *RestResult[T]) OK() bool { return r.Result == "success" }

// DepthEntry is one level of the full-depth snapshot.
type DepthEntry struct {
	PriceInt  Int64 `json:"price_int"`
	AmountInt Int64 `json:"amount_int"`
}

// DepthSnapshot is the return payload of the fulldepth endpoint: complete
// ask and bid ladders, asks ascending and bids ascending as served.
type DepthSnapshot struct {
	Asks []DepthEntry `json:"asks"`
	Bids []DepthEntry `json:"bids"`
}

// OrderListEntry is one element of the private/orders reply.
type OrderListEntry struct {
	OID      string      `json:"oid"`
	Currency string      `json:"currency"`
	Item     string      `json:"item"`
	Type     Side        `json:"type"`
	Status   OrderStatus `json:"status"`
	Price    MoneyValue  `json:"price"`
	Amount   MoneyValue  `json:"amount"`
}

// AccountInfo is the private/info reply, reduced to the wallet balances
// the engine consumes.
type AccountInfo struct {
	Wallets map[string]WalletEntry `json:"Wallets"`
}

// WalletEntry is one currency's bucket inside AccountInfo.
type WalletEntry struct {
	Balance MoneyValue `json:"Balance"`
}

// SubscribeOp is the outbound {op:"mtgox.subscribe"} frame. Either Type
// (channel by name: "depth", "ticker", "trades") or Key (account channel
// by idkey) is set.
type SubscribeOp struct {
	Op   string `json:"op"`
	Type string `json:"type,omitempty"`
	Key  string `json:"key,omitempty"`
}

// UnsubscribeOp is the outbound {op:"unsubscribe"} frame.
type UnsubscribeOp struct {
	Op      string `json:"op"`
	Channel string `json:"channel"`
}

// CallOp is the outbound envelope for a signed streaming call. Call holds
// the base64 of key ‖ HMAC ‖ serialized CallRequest.
type CallOp struct {
	Op      string `json:"op"`
	Call    string `json:"call"`
	ID      string `json:"id"`
	Context string `json:"context"`
}

// CallRequest is the JSON body that gets signed and wrapped into a CallOp.
type CallRequest struct {
	ID       string         `json:"id"`
	Call     string         `json:"call"`
	Nonce    int64          `json:"nonce"`
	Params   map[string]any `json:"params"`
	Currency string         `json:"currency"`
	Item     string         `json:"item"`
}
