// sign.go builds the two signed request shapes of the exchange API.
//
// Streaming calls wrap a JSON body in a binary envelope: the 16 raw key
// bytes, then the HMAC-SHA-512 of the serialized body keyed with the
// decoded secret, then the body itself, base64-encoded into an {op:"call"}
// frame. REST calls sign the x-www-form-urlencoded body bytes and carry
// the signature in the Rest-Sign header next to the dashed key in Rest-Key.
package exchange

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/5l1v3r1/goxtool/pkg/types"
)

// callContext is the fixed context field of streaming call envelopes.
const callContext = "mtgox.com"

// buildCallOp signs one streaming call request and wraps it into the
// outbound envelope. The signature covers the exact serialized JSON bytes,
// so the body is marshalled once and reused.
func buildCallOp(creds *Credentials, req types.CallRequest) (types.CallOp, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return types.CallOp{}, fmt.Errorf("marshal call %s: %w", req.Call, err)
	}

	mac := hmac.New(sha512.New, creds.SecretBytes())
	mac.Write(body)

	payload := make([]byte, 0, len(creds.KeyBytes())+sha512.Size+len(body))
	payload = append(payload, creds.KeyBytes()...)
	payload = mac.Sum(payload)
	payload = append(payload, body...)

	return types.CallOp{
		Op:      "call",
		Call:    base64.StdEncoding.EncodeToString(payload),
		ID:      req.ID,
		Context: callContext,
	}, nil
}

// signForm encodes params as a form body (the caller has already added the
// nonce) and returns the body together with the base64 HMAC-SHA-512
// signature for the Rest-Sign header.
func signForm(creds *Credentials, params url.Values) (body, sign string) {
	body = params.Encode()
	mac := hmac.New(sha512.New, creds.SecretBytes())
	mac.Write([]byte(body))
	return body, base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
