package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/5l1v3r1/goxtool/pkg/types"
)

func newTestRest(t *testing.T, handler http.Handler, creds *Credentials) *Rest {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := testGoxConfig()
	cfg.HTTPHost = strings.TrimPrefix(srv.URL, "http://")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewRest(cfg, creds, &Nonce{}, logger)
}

func TestAddOrderSignsAndParsesReply(t *testing.T) {
	t.Parallel()
	creds := testCreds(t)

	var gotPath, gotKey, gotSign, gotAgent string
	var gotForm url.Values
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("Rest-Key")
		gotSign = r.Header.Get("Rest-Sign")
		gotAgent = r.Header.Get("User-Agent")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		gotForm, err = url.ParseQuery(string(body))
		if err != nil {
			t.Errorf("parse body: %v", err)
		}

		// The signature must verify over the exact body bytes.
		mac := hmac.New(sha512.New, creds.SecretBytes())
		mac.Write(body)
		if want := base64.StdEncoding.EncodeToString(mac.Sum(nil)); gotSign != want {
			t.Errorf("Rest-Sign = %q, want %q", gotSign, want)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"result":"success","return":"abcdef-000-111"}`))
	})

	rest := newTestRest(t, handler, creds)
	oid, err := rest.AddOrder(context.Background(), types.Bid, 1010000, 100000000)
	if err != nil {
		t.Fatalf("AddOrder() error: %v", err)
	}
	if oid != "abcdef-000-111" {
		t.Errorf("oid = %q, want %q", oid, "abcdef-000-111")
	}

	if gotPath != "/api/1/BTCUSD/private/order/add" {
		t.Errorf("path = %q, want /api/1/BTCUSD/private/order/add", gotPath)
	}
	if gotKey != testKey {
		t.Errorf("Rest-Key = %q, want the dashed key %q", gotKey, testKey)
	}
	if gotAgent != "goxtool" {
		t.Errorf("User-Agent = %q, want %q", gotAgent, "goxtool")
	}
	if gotForm.Get("type") != "bid" || gotForm.Get("price_int") != "1010000" || gotForm.Get("amount_int") != "100000000" {
		t.Errorf("form = %v, missing order fields", gotForm)
	}
	if gotForm.Get("nonce") == "" {
		t.Error("form carries no nonce")
	}
}

func TestCancelOrderSendsOID(t *testing.T) {
	t.Parallel()
	var gotForm url.Values
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotForm, _ = url.ParseQuery(string(body))
		w.Write([]byte(`{"result":"success","return":{"oid":"oid-1"}}`))
	})

	rest := newTestRest(t, handler, testCreds(t))
	if err := rest.CancelOrder(context.Background(), "oid-1"); err != nil {
		t.Fatalf("CancelOrder() error: %v", err)
	}
	if gotForm.Get("oid") != "oid-1" {
		t.Errorf("form oid = %q, want %q", gotForm.Get("oid"), "oid-1")
	}
}

func TestSignedCallErrorEnvelope(t *testing.T) {
	t.Parallel()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":"error","error":"Order amount is too low"}`))
	})

	rest := newTestRest(t, handler, testCreds(t))
	_, err := rest.AddOrder(context.Background(), types.Ask, 1010000, 1)
	if err == nil {
		t.Fatal("AddOrder() succeeded on an error envelope")
	}
	if !strings.Contains(err.Error(), "Order amount is too low") {
		t.Errorf("error %q does not carry the server reason", err)
	}
}

func TestSignedCallWithoutCredentials(t *testing.T) {
	t.Parallel()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("read-only client reached the server")
	})

	rest := newTestRest(t, handler, nil)
	if _, err := rest.SignedCall(context.Background(), "BTCUSD/private/info", nil); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("SignedCall() error = %v, want ErrNoCredentials", err)
	}
}

func TestFullDepthParsesSnapshot(t *testing.T) {
	t.Parallel()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/1/BTCUSD/fulldepth" {
			t.Errorf("path = %q, want /api/1/BTCUSD/fulldepth", r.URL.Path)
		}
		if r.Method != http.MethodGet {
			t.Errorf("method = %q, want GET", r.Method)
		}
		// The feed mixes quoted and bare integers; both must parse.
		w.Write([]byte(`{"result":"success","return":{
			"asks":[{"price_int":"1020000","amount_int":200000000},{"price_int":1030000,"amount_int":"50000000"}],
			"bids":[{"price_int":"990000","amount_int":"100000000"},{"price_int":"1000000","amount_int":"300000000"}]
		}}`))
	})

	rest := newTestRest(t, handler, nil)
	snap, err := rest.FullDepth(context.Background())
	if err != nil {
		t.Fatalf("FullDepth() error: %v", err)
	}
	if len(snap.Asks) != 2 || len(snap.Bids) != 2 {
		t.Fatalf("snapshot has %d asks, %d bids, want 2 and 2", len(snap.Asks), len(snap.Bids))
	}
	if snap.Asks[0].PriceInt.Int() != 1020000 || snap.Asks[1].AmountInt.Int() != 50000000 {
		t.Errorf("asks parsed wrong: %+v", snap.Asks)
	}
	if snap.Bids[1].PriceInt.Int() != 1000000 {
		t.Errorf("bids parsed wrong: %+v", snap.Bids)
	}
}

func TestRecentTradesParsesList(t *testing.T) {
	t.Parallel()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/1/BTCUSD/trades" {
			t.Errorf("path = %q, want /api/1/BTCUSD/trades", r.URL.Path)
		}
		w.Write([]byte(`{"result":"success","return":[
			{"date":1368133600,"price_int":"1010000","amount_int":"100000000","price_currency":"USD","trade_type":"bid"},
			{"date":1368133660,"price_int":"1020000","amount_int":"50000000","price_currency":"USD","trade_type":"ask"}
		]}`))
	})

	rest := newTestRest(t, handler, nil)
	trades, err := rest.RecentTrades(context.Background())
	if err != nil {
		t.Fatalf("RecentTrades() error: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2", len(trades))
	}
	if trades[0].Date.Int() != 1368133600 || trades[0].PriceInt.Int() != 1010000 {
		t.Errorf("first trade parsed wrong: %+v", trades[0])
	}
	if trades[1].TradeType != types.Ask {
		t.Errorf("second trade type = %q, want ask", trades[1].TradeType)
	}
}

func TestSnapshotRetriesOn5xx(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Error(w, "upstream overloaded", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"result":"success","return":{"asks":[],"bids":[]}}`))
	})

	rest := newTestRest(t, handler, nil)
	if _, err := rest.FullDepth(context.Background()); err != nil {
		t.Fatalf("FullDepth() did not recover from a 502: %v", err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hit %d times, want 2 (original + one retry)", hits.Load())
	}
}
