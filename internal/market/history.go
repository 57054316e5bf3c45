// history.go keeps the trade-derived OHLCV candle history: fixed bucket
// width, newest candle first, fed by the live trade stream and rebuilt
// from the recent-trades snapshot.
package market

import (
	"log/slog"
	"sync"
	"time"

	"github.com/5l1v3r1/goxtool/internal/signal"
	"github.com/5l1v3r1/goxtool/pkg/types"
)

// History aggregates trades into candles of one fixed timeframe.
type History struct {
	timeframe int64 // bucket width in seconds
	logger    *slog.Logger
	debug     *signal.Signal[string]

	mu      sync.RWMutex
	candles []types.Candle // newest first

	// Changed fires with 1 for an in-place update of the newest candle
	// and with the new candle count when candles were added or the whole
	// history was rebuilt.
	Changed *signal.Signal[int]
}

// NewHistory creates an empty history with the given bucket width.
func NewHistory(hub *signal.Hub, timeframe time.Duration, debug *signal.Signal[string], logger *slog.Logger) *History {
	return &History{
		timeframe: int64(timeframe / time.Second),
		logger:    logger.With("component", "history"),
		debug:     debug,
		Changed:   signal.New[int](hub, "history.changed"),
	}
}

// ApplyTrade folds one live trade into the newest candle. A trade dated
// before the newest candle closes updates it in place, which also folds
// out-of-order trades into the newest candle rather than reopening a
// finished one; a trade dated at or past the close opens a new candle.
// Own-fill echoes never feed the candles: the same trade also arrives on
// the public channel.
func (h *History) ApplyTrade(tr types.Trade) {
	if tr.Own {
		return
	}

	h.mu.Lock()
	var payload int
	var opened bool
	if len(h.candles) > 0 && tr.Date < h.candles[0].Time+h.timeframe {
		h.candles[0].Update(tr.Price, tr.Volume)
		payload = 1
	} else {
		h.candles = append([]types.Candle{newCandle(h.bucket(tr.Date), tr.Price, tr.Volume)}, h.candles...)
		payload = len(h.candles)
		opened = true
	}
	h.mu.Unlock()

	if opened {
		h.debugf("opening new candle")
	}
	h.Changed.Emit(h, payload)
}

// ReplaceFromTrades rebuilds the whole history from a trades snapshot and
// emits a single change carrying the new candle count. The endpoint serves
// trades oldest first; should a trade regress into an older bucket it
// folds into the candle currently being built instead of corrupting
// finished ones.
func (h *History) ReplaceFromTrades(trades []types.TradeMsg) {
	// Built oldest-first for cheap appends, reversed at the end.
	var candles []types.Candle
	for _, t := range trades {
		bucket := h.bucket(t.Date.Int())
		price, volume := t.PriceInt.Int(), t.AmountInt.Int()
		if n := len(candles); n == 0 || bucket > candles[n-1].Time {
			candles = append(candles, newCandle(bucket, price, volume))
		} else {
			candles[n-1].Update(price, volume)
		}
	}
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	h.mu.Lock()
	h.candles = candles
	count := len(candles)
	h.mu.Unlock()

	h.debugf("got trade history: %d candles", count)
	h.Changed.Emit(h, count)
}

// Candles returns a copy of the history, newest first.
func (h *History) Candles() []types.Candle {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]types.Candle, len(h.candles))
	copy(out, h.candles)
	return out
}

// LastCandle returns the newest candle and whether one exists.
func (h *History) LastCandle() (types.Candle, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.candles) == 0 {
		return types.Candle{}, false
	}
	return h.candles[0], true
}

// Length returns the candle count.
func (h *History) Length() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.candles)
}

// Timeframe returns the bucket width in seconds.
func (h *History) Timeframe() int64 { return h.timeframe }

func (h *History) bucket(date int64) int64 {
	return date / h.timeframe * h.timeframe
}

func newCandle(bucket, price, volume int64) types.Candle {
	return types.Candle{Time: bucket, Open: price, High: price, Low: price, Close: price, Volume: volume}
}

func (h *History) debugf(format string, args ...any) {
	signal.Debugf(h.debug, h.logger, h, format, args...)
}
