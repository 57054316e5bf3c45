// money.go holds the fixed-point money helpers. Monetary values are int64
// everywhere in the engine; the scale depends on the unit: the base asset
// BTC uses 1e-8, the quote unit JPY uses 1e-3 and every other quote unit
// uses 1e-5. Formatting and parsing are the only places scaling happens;
// no floating-point arithmetic is ever performed on money inside the
// engine.
package types

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyScale returns the number of decimal places and the formatting width
// for a currency code.
func MoneyScale(currency string) (decimals int32, width int) {
	switch currency {
	case "BTC":
		return 8, 16
	case "JPY":
		return 3, 12
	default:
		return 5, 12
	}
}

// FormatMoney renders a fixed-point integer as a right-aligned decimal
// string in the currency's scale, e.g. 1010000 → "  10.10000" for USD.
func FormatMoney(v int64, currency string) string {
	decimals, width := MoneyScale(currency)
	s := decimal.New(v, -decimals).StringFixed(decimals)
	if pad := width - len(s); pad > 0 {
		s = strings.Repeat(" ", pad) + s
	}
	return s
}

// ParseMoney is the inverse of FormatMoney: it parses a decimal string in
// the currency's scale back to the fixed-point integer. Strings with more
// fractional digits than the scale allows are rejected rather than
// silently rounded.
func ParseMoney(s, currency string) (int64, error) {
	decimals, _ := MoneyScale(currency)
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parse money %q: %w", s, err)
	}
	shifted := d.Shift(decimals)
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("parse money %q: more than %d decimals for %s", s, decimals, currency)
	}
	return shifted.IntPart(), nil
}

// MoneyFromFloat converts a float (strategy/UI boundary value) to the
// fixed-point integer, rounding half away from zero.
func MoneyFromFloat(f float64, currency string) int64 {
	decimals, _ := MoneyScale(currency)
	return decimal.NewFromFloat(f).Shift(decimals).Round(0).IntPart()
}

// MoneyToFloat converts a fixed-point integer to a float for display or
// strategy math. Not suitable for exact round-trips; use FormatMoney for
// those.
func MoneyToFloat(v int64, currency string) float64 {
	decimals, _ := MoneyScale(currency)
	f, _ := decimal.New(v, -decimals).Float64()
	return f
}
