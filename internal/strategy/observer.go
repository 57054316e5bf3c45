package strategy

import (
	"log/slog"

	"github.com/5l1v3r1/goxtool/internal/engine"
	"github.com/5l1v3r1/goxtool/pkg/types"
)

func init() {
	Register("observer", func(eng *engine.Engine, logger *slog.Logger) (Strategy, error) {
		return NewObserver(eng, logger), nil
	})
}

// Observer is the built-in default strategy. It narrates market and
// account events to the log and answers a few inspection keys, and never
// places an order. It doubles as the template to copy when writing a
// real strategy.
type Observer struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// NewObserver binds the observer to the engine's signals.
func NewObserver(eng *engine.Engine, logger *slog.Logger) *Observer {
	o := &Observer{eng: eng, logger: logger.With("component", "observer")}
	currency := eng.Currency()

	eng.SignalTicker.Connect(func(_ any, t types.Ticker) {
		o.logger.Debug("ticker",
			"bid", types.FormatMoney(t.Bid, currency),
			"ask", types.FormatMoney(t.Ask, currency))
	})
	eng.SignalTrade.Connect(func(_ any, tr types.Trade) {
		if tr.Own {
			o.logger.Info("own order filled",
				"price", types.FormatMoney(tr.Price, currency),
				"volume", types.FormatMoney(tr.Volume, "BTC"))
			return
		}
		o.logger.Debug("trade",
			"price", types.FormatMoney(tr.Price, currency),
			"volume", types.FormatMoney(tr.Volume, "BTC"))
	})
	eng.SignalUserOrder.Connect(func(_ any, order types.Order) {
		o.logger.Info("own order",
			"oid", order.OID,
			"status", string(order.Status),
			"side", string(order.Side),
			"price", types.FormatMoney(order.Price, currency))
	})
	eng.SignalWallet.Connect(func(_ any, wallet types.Wallet) {
		for currency, balance := range wallet {
			o.logger.Info("balance", "currency", currency,
				"amount", types.FormatMoney(balance, currency))
		}
	})
	return o
}

// OnKey answers the inspection keys: b dumps the top of book, c the
// newest candle, o the own orders, w the wallet.
func (o *Observer) OnKey(key rune) {
	currency := o.eng.Currency()
	switch key {
	case 'b':
		book := o.eng.Book()
		asks, bids, owns := book.Sizes()
		o.logger.Info("book",
			"bid", types.FormatMoney(book.Bid(), currency),
			"ask", types.FormatMoney(book.Ask(), currency),
			"asks", asks, "bids", bids, "owns", owns)
	case 'c':
		candle, ok := o.eng.History().LastCandle()
		if !ok {
			o.logger.Info("no candles yet")
			return
		}
		o.logger.Info("candle",
			"time", candle.Time,
			"open", types.FormatMoney(candle.Open, currency),
			"high", types.FormatMoney(candle.High, currency),
			"low", types.FormatMoney(candle.Low, currency),
			"close", types.FormatMoney(candle.Close, currency),
			"volume", types.FormatMoney(candle.Volume, "BTC"))
	case 'o':
		owns := o.eng.Book().Owns()
		if len(owns) == 0 {
			o.logger.Info("no own orders")
			return
		}
		for _, order := range owns {
			o.logger.Info("own order",
				"oid", order.OID,
				"side", string(order.Side),
				"price", types.FormatMoney(order.Price, currency),
				"volume", types.FormatMoney(order.Volume, "BTC"),
				"status", string(order.Status))
		}
	case 'w':
		for currency, balance := range o.eng.Wallet() {
			o.logger.Info("balance", "currency", currency,
				"amount", types.FormatMoney(balance, currency))
		}
	default:
		o.logger.Debug("unbound key", "key", string(key))
	}
}

// OnBeforeUnload is a no-op: the observer holds no orders to flatten.
func (o *Observer) OnBeforeUnload() {
	o.logger.Info("observer unloading")
}
