// rest.go is the HTTP side of the exchange API.
//
// Two surfaces live here:
//   - unauthenticated snapshot pulls: GET fulldepth (the complete book,
//     several megabytes) and GET trades (roughly the last 24 hours)
//   - signed calls: POST with an x-www-form-urlencoded body carrying a
//     fresh nonce, authenticated by the Rest-Key/Rest-Sign header pair
//
// Snapshot reads retry on transport errors and 5xx replies. Signed calls
// never retry: a repeated order/add is not idempotent.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/5l1v3r1/goxtool/internal/config"
	"github.com/5l1v3r1/goxtool/internal/metrics"
	"github.com/5l1v3r1/goxtool/pkg/types"
)

// userAgent identifies the client on every HTTP request.
const userAgent = "goxtool"

// Rest talks to the /api/1 HTTP endpoints for one currency pair.
type Rest struct {
	snapshots *resty.Client // GET snapshot endpoints, retried
	signed    *resty.Client // signed POST endpoints, never retried
	pair      string        // e.g. "BTCUSD"
	creds     *Credentials
	nonce     *Nonce
	rl        *RateLimiter
	logger    *slog.Logger
}

// NewRest creates the HTTP client pair for the configured currency.
func NewRest(cfg config.GoxConfig, creds *Credentials, nonce *Nonce, logger *slog.Logger) *Rest {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	base := fmt.Sprintf("%s://%s/api/1", scheme, cfg.HTTPHost)

	snapshots := resty.New().
		SetBaseURL(base).
		SetTimeout(60 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("User-Agent", userAgent)

	signed := resty.New().
		SetBaseURL(base).
		SetTimeout(15 * time.Second).
		SetHeader("User-Agent", userAgent)

	return &Rest{
		snapshots: snapshots,
		signed:    signed,
		pair:      "BTC" + cfg.Currency,
		creds:     creds,
		nonce:     nonce,
		rl:        NewRateLimiter(),
		logger:    logger.With("component", "rest"),
	}
}

// FullDepth fetches the complete order book snapshot.
func (r *Rest) FullDepth(ctx context.Context) (snap *types.DepthSnapshot, err error) {
	defer func() { metrics.ObserveRest("fulldepth", err) }()
	if err = r.rl.Snapshot.Wait(ctx); err != nil {
		return nil, err
	}

	var res types.RestResult[types.DepthSnapshot]
	resp, err := r.snapshots.R().
		SetContext(ctx).
		SetResult(&res).
		Get("/" + r.pair + "/fulldepth")
	if err != nil {
		return nil, fmt.Errorf("fulldepth: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("fulldepth: status %d: %s", resp.StatusCode(), resp.String())
	}
	if !res.OK() {
		return nil, fmt.Errorf("fulldepth: result %q: %s", res.Result, res.Error)
	}
	return &res.Return, nil
}

// RecentTrades fetches the recent public trade history, oldest first.
func (r *Rest) RecentTrades(ctx context.Context) (trades []types.TradeMsg, err error) {
	defer func() { metrics.ObserveRest("trades", err) }()
	if err = r.rl.Snapshot.Wait(ctx); err != nil {
		return nil, err
	}

	var res types.RestResult[[]types.TradeMsg]
	resp, err := r.snapshots.R().
		SetContext(ctx).
		SetResult(&res).
		Get("/" + r.pair + "/trades")
	if err != nil {
		return nil, fmt.Errorf("trades: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("trades: status %d: %s", resp.StatusCode(), resp.String())
	}
	if !res.OK() {
		return nil, fmt.Errorf("trades: result %q: %s", res.Result, res.Error)
	}
	return res.Return, nil
}

// SignedCall posts one authenticated call. endpoint is the path below
// /api/1 (e.g. "BTCUSD/private/order/add"); params must not contain the
// nonce, it is added here. The returned payload is the envelope's "return"
// field.
func (r *Rest) SignedCall(ctx context.Context, endpoint string, params url.Values) (ret json.RawMessage, err error) {
	defer func() { metrics.ObserveRest(endpoint, err) }()
	if r.creds == nil {
		return nil, ErrNoCredentials
	}
	if err = r.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("nonce", strconv.FormatInt(r.nonce.Next(), 10))
	body, sign := signForm(r.creds, params)

	var res types.RestResult[json.RawMessage]
	resp, err := r.signed.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetHeader("Rest-Key", r.creds.Key()).
		SetHeader("Rest-Sign", sign).
		SetBody(body).
		SetResult(&res).
		Post("/" + endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", endpoint, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", endpoint, resp.StatusCode(), resp.String())
	}
	if !res.OK() {
		if res.Error != "" {
			return nil, fmt.Errorf("%s: %s", endpoint, res.Error)
		}
		return nil, fmt.Errorf("%s: result %q", endpoint, res.Result)
	}
	return res.Return, nil
}

// AddOrder submits an order and returns the oid the server assigned.
// A price of 0 submits at market.
func (r *Rest) AddOrder(ctx context.Context, side types.Side, price, volume int64) (string, error) {
	params := url.Values{}
	params.Set("type", string(side))
	params.Set("amount_int", strconv.FormatInt(volume, 10))
	params.Set("price_int", strconv.FormatInt(price, 10))

	ret, err := r.SignedCall(ctx, r.pair+"/private/order/add", params)
	if err != nil {
		return "", err
	}
	var oid string
	if err := json.Unmarshal(ret, &oid); err != nil {
		return "", fmt.Errorf("order/add: decode oid: %w", err)
	}
	return oid, nil
}

// CancelOrder cancels one order by oid.
func (r *Rest) CancelOrder(ctx context.Context, oid string) error {
	params := url.Values{}
	params.Set("oid", oid)
	_, err := r.SignedCall(ctx, r.pair+"/private/order/cancel", params)
	return err
}
