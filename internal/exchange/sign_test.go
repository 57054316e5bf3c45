package exchange

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/5l1v3r1/goxtool/pkg/types"
)

// unpackCallOp reverses the streaming call envelope: base64-decode, then
// split into the 16 key bytes, the 64 signature bytes and the JSON body.
func unpackCallOp(t *testing.T, op types.CallOp) (key, sig, body []byte) {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(op.Call)
	if err != nil {
		t.Fatalf("call field is not base64: %v", err)
	}
	if len(raw) < 16+sha512.Size {
		t.Fatalf("envelope too short: %d bytes", len(raw))
	}
	return raw[:16], raw[16 : 16+sha512.Size], raw[16+sha512.Size:]
}

func TestBuildCallOpEnvelope(t *testing.T) {
	t.Parallel()
	creds := testCreds(t)
	req := types.CallRequest{
		ID:       "orders",
		Call:     "private/orders",
		Nonce:    1368133600000000,
		Params:   map[string]any{},
		Currency: "USD",
		Item:     "BTC",
	}

	op, err := buildCallOp(creds, req)
	if err != nil {
		t.Fatalf("buildCallOp() error: %v", err)
	}
	if op.Op != "call" {
		t.Errorf("op = %q, want %q", op.Op, "call")
	}
	if op.ID != "orders" {
		t.Errorf("id = %q, want %q", op.ID, "orders")
	}
	if op.Context != "mtgox.com" {
		t.Errorf("context = %q, want %q", op.Context, "mtgox.com")
	}

	key, sig, body := unpackCallOp(t, op)

	if !bytes.Equal(key, creds.KeyBytes()) {
		t.Errorf("envelope key prefix = % x, want % x", key, creds.KeyBytes())
	}

	mac := hmac.New(sha512.New, creds.SecretBytes())
	mac.Write(body)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		t.Error("signature does not verify against the embedded body")
	}

	var got types.CallRequest
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("embedded body is not valid JSON: %v", err)
	}
	if got.ID != req.ID || got.Call != req.Call || got.Nonce != req.Nonce ||
		got.Currency != req.Currency || got.Item != req.Item {
		t.Errorf("embedded body = %+v, want %+v", got, req)
	}
}

func TestSignFormCoversExactBody(t *testing.T) {
	t.Parallel()
	creds := testCreds(t)
	params := url.Values{}
	params.Set("type", "bid")
	params.Set("amount_int", "100000000")
	params.Set("price_int", "1010000")
	params.Set("nonce", "1368133600000000")

	body, sign := signForm(creds, params)

	// The signature must verify over the byte-identical body string.
	mac := hmac.New(sha512.New, creds.SecretBytes())
	mac.Write([]byte(body))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if sign != want {
		t.Errorf("sign = %q, want %q", sign, want)
	}

	// And the body must decode back to the same params.
	decoded, err := url.ParseQuery(body)
	if err != nil {
		t.Fatalf("body does not parse as a form: %v", err)
	}
	for k := range params {
		if decoded.Get(k) != params.Get(k) {
			t.Errorf("param %q = %q after round trip, want %q", k, decoded.Get(k), params.Get(k))
		}
	}
}
