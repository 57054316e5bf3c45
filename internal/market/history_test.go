package market

import (
	"testing"
	"time"

	"github.com/5l1v3r1/goxtool/internal/signal"
	"github.com/5l1v3r1/goxtool/pkg/types"
)

// newTestHistory returns a history and the Changed payloads in emission order.
func newTestHistory(t *testing.T, timeframe time.Duration) (*History, *[]int) {
	t.Helper()
	logger := testLogger()
	hub := signal.NewHub(logger)
	debug := signal.New[string](hub, "debug")
	h := NewHistory(hub, timeframe, debug, logger)

	payloads := new([]int)
	h.Changed.Connect(func(_ any, n int) { *payloads = append(*payloads, n) })
	return h, payloads
}

func TestFirstTradeOpensCandle(t *testing.T) {
	t.Parallel()
	h, payloads := newTestHistory(t, time.Minute)

	h.ApplyTrade(types.Trade{Date: 125, Price: 10, Volume: 3})

	want := types.Candle{Time: 120, Open: 10, High: 10, Low: 10, Close: 10, Volume: 3}
	got, ok := h.LastCandle()
	if !ok || got != want {
		t.Fatalf("LastCandle() = %v, %v, want %v", got, ok, want)
	}
	if len(*payloads) != 1 || (*payloads)[0] != 1 {
		t.Errorf("changed payloads = %v, want [1]", *payloads)
	}
}

func TestCandleRollover(t *testing.T) {
	t.Parallel()
	h, payloads := newTestHistory(t, time.Minute)

	h.ApplyTrade(types.Trade{Date: 1000, Price: 9, Volume: 1})

	// Dated before the candle closes at 1020: updates in place.
	h.ApplyTrade(types.Trade{Date: 1019, Price: 10, Volume: 1})
	got, _ := h.LastCandle()
	want := types.Candle{Time: 960, Open: 9, High: 10, Low: 9, Close: 10, Volume: 2}
	if got != want {
		t.Fatalf("candle after update = %v, want %v", got, want)
	}

	// Dated at the close: a fresh candle seeded from this trade alone.
	h.ApplyTrade(types.Trade{Date: 1020, Price: 12, Volume: 2})
	if h.Length() != 2 {
		t.Fatalf("Length() = %d after rollover, want 2", h.Length())
	}
	got, _ = h.LastCandle()
	want = types.Candle{Time: 1020, Open: 12, High: 12, Low: 12, Close: 12, Volume: 2}
	if got != want {
		t.Fatalf("candle after rollover = %v, want %v", got, want)
	}

	// An in-place update carries 1, an added candle carries the new count.
	wantPayloads := []int{1, 1, 2}
	if len(*payloads) != len(wantPayloads) {
		t.Fatalf("changed payloads = %v, want %v", *payloads, wantPayloads)
	}
	for i, p := range wantPayloads {
		if (*payloads)[i] != p {
			t.Fatalf("changed payloads = %v, want %v", *payloads, wantPayloads)
		}
	}
}

func TestOwnTradesNeverFeedCandles(t *testing.T) {
	t.Parallel()
	h, payloads := newTestHistory(t, time.Minute)

	h.ApplyTrade(types.Trade{Date: 100, Price: 10, Volume: 1, Own: true})

	if h.Length() != 0 {
		t.Errorf("Length() = %d after own trade, want 0", h.Length())
	}
	if len(*payloads) != 0 {
		t.Errorf("changed payloads = %v after own trade, want none", *payloads)
	}
}

func TestOutOfOrderTradeFoldsIntoNewestCandle(t *testing.T) {
	t.Parallel()
	h, _ := newTestHistory(t, time.Minute)

	h.ApplyTrade(types.Trade{Date: 1000, Price: 9, Volume: 1})
	h.ApplyTrade(types.Trade{Date: 1020, Price: 12, Volume: 2})

	// Dated inside the previous bucket; the finished candle stays closed.
	h.ApplyTrade(types.Trade{Date: 970, Price: 5, Volume: 1})

	if h.Length() != 2 {
		t.Fatalf("Length() = %d, want 2", h.Length())
	}
	got, _ := h.LastCandle()
	want := types.Candle{Time: 1020, Open: 12, High: 12, Low: 5, Close: 5, Volume: 3}
	if got != want {
		t.Fatalf("newest candle = %v, want %v", got, want)
	}
	older := h.Candles()[1]
	if older.Volume != 1 || older.Close != 9 {
		t.Errorf("older candle = %v, want it untouched", older)
	}
}

func TestReplaceFromTradesBuildsNewestFirst(t *testing.T) {
	t.Parallel()
	h, payloads := newTestHistory(t, time.Minute)

	h.ApplyTrade(types.Trade{Date: 1, Price: 1, Volume: 1})

	h.ReplaceFromTrades([]types.TradeMsg{
		{Date: 1000, PriceInt: 10, AmountInt: 1},
		{Date: 1010, PriceInt: 8, AmountInt: 2},
		{Date: 1030, PriceInt: 20, AmountInt: 1},
		{Date: 1090, PriceInt: 15, AmountInt: 5},
	})

	want := []types.Candle{
		{Time: 1080, Open: 15, High: 15, Low: 15, Close: 15, Volume: 5},
		{Time: 1020, Open: 20, High: 20, Low: 20, Close: 20, Volume: 1},
		{Time: 960, Open: 10, High: 10, Low: 8, Close: 8, Volume: 3},
	}
	got := h.Candles()
	if len(got) != len(want) {
		t.Fatalf("Candles() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Candles()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if last := (*payloads)[len(*payloads)-1]; last != 3 {
		t.Errorf("rebuild changed payload = %d, want 3", last)
	}
}

func TestReplaceFromTradesFoldsRegressingDates(t *testing.T) {
	t.Parallel()
	h, _ := newTestHistory(t, time.Minute)

	// The third trade regresses into an older bucket and folds into the
	// candle being built instead of corrupting the finished one.
	h.ReplaceFromTrades([]types.TradeMsg{
		{Date: 1000, PriceInt: 10, AmountInt: 1},
		{Date: 1070, PriceInt: 20, AmountInt: 1},
		{Date: 1010, PriceInt: 5, AmountInt: 2},
	})

	got := h.Candles()
	if len(got) != 2 {
		t.Fatalf("Candles() = %v, want 2 candles", got)
	}
	newest := types.Candle{Time: 1020, Open: 20, High: 20, Low: 5, Close: 5, Volume: 3}
	oldest := types.Candle{Time: 960, Open: 10, High: 10, Low: 10, Close: 10, Volume: 1}
	if got[0] != newest {
		t.Errorf("newest candle = %v, want %v", got[0], newest)
	}
	if got[1] != oldest {
		t.Errorf("oldest candle = %v, want %v", got[1], oldest)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	t.Parallel()
	h, _ := newTestHistory(t, time.Minute)

	trades := []types.TradeMsg{
		{Date: 100, PriceInt: 10, AmountInt: 1},
		{Date: 130, PriceInt: 11, AmountInt: 2},
		{Date: 170, PriceInt: 9, AmountInt: 1},
		{Date: 260, PriceInt: 14, AmountInt: 3},
	}

	h.ReplaceFromTrades(trades)
	first := h.Candles()
	h.ReplaceFromTrades(trades)
	second := h.Candles()

	if len(first) != len(second) {
		t.Fatalf("replay changed the candle count: %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("replay changed candle %d: %v then %v", i, first[i], second[i])
		}
	}
}

func TestReplaceFromTradesEmptySnapshot(t *testing.T) {
	t.Parallel()
	h, payloads := newTestHistory(t, time.Minute)

	h.ApplyTrade(types.Trade{Date: 100, Price: 10, Volume: 1})
	h.ReplaceFromTrades(nil)

	if h.Length() != 0 {
		t.Errorf("Length() = %d after empty rebuild, want 0", h.Length())
	}
	if last := (*payloads)[len(*payloads)-1]; last != 0 {
		t.Errorf("rebuild changed payload = %d, want 0", last)
	}
	if _, ok := h.LastCandle(); ok {
		t.Error("LastCandle() ok = true on empty history")
	}
}

func TestTimeframeInSeconds(t *testing.T) {
	t.Parallel()
	h, _ := newTestHistory(t, 15*time.Minute)

	if got := h.Timeframe(); got != 900 {
		t.Errorf("Timeframe() = %d, want 900", got)
	}
}
