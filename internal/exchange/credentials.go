package exchange

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrNoCredentials marks authenticated operations attempted without a
// configured key/secret pair. The client stays usable in read-only mode;
// only signed calls fail with this error.
var ErrNoCredentials = errors.New("no credentials configured")

// Credentials is the decoded API key/secret pair used to sign authenticated
// calls. A nil *Credentials means no credentials are configured and the
// client runs in read-only mode.
type Credentials struct {
	key         string // as configured, dashes included; sent in Rest-Key
	keyBytes    []byte // 16 bytes, hex-decoded with dashes stripped
	secretBytes []byte // 64 bytes, base64-decoded
}

// ParseCredentials validates and decodes the configured pair. Both values
// empty yields (nil, nil), the read-only marker. A half-configured or
// malformed pair is an error so a typo cannot silently disable trading.
func ParseCredentials(key, secret string) (*Credentials, error) {
	key = strings.TrimSpace(key)
	secret = strings.TrimSpace(secret)
	if key == "" && secret == "" {
		return nil, nil
	}
	if key == "" || secret == "" {
		return nil, fmt.Errorf("credentials: key and secret must be set together")
	}

	keyBytes, err := hex.DecodeString(strings.ReplaceAll(key, "-", ""))
	if err != nil {
		return nil, fmt.Errorf("credentials: key is not hex: %w", err)
	}
	if len(keyBytes) != 16 {
		return nil, fmt.Errorf("credentials: key decodes to %d bytes, want 16", len(keyBytes))
	}

	secretBytes, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, fmt.Errorf("credentials: secret is not base64: %w", err)
	}
	if len(secretBytes) != 64 {
		return nil, fmt.Errorf("credentials: secret decodes to %d bytes, want 64", len(secretBytes))
	}

	return &Credentials{key: key, keyBytes: keyBytes, secretBytes: secretBytes}, nil
}

// Key returns the key in its configured dashed form, the shape the
// Rest-Key header expects.
func (c *Credentials) Key() string { return c.key }

// KeyBytes returns the 16 raw key bytes prepended to streaming call
// envelopes.
func (c *Credentials) KeyBytes() []byte { return c.keyBytes }

// SecretBytes returns the decoded HMAC signing key.
func (c *Credentials) SecretBytes() []byte { return c.secretBytes }
