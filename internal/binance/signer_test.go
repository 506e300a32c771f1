package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"testing"
)

func TestSignMatchesReference(t *testing.T) {
	// Reference vector from the Binance API docs signed endpoint example.
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	signer := NewSigner(secret)

	params := url.Values{}
	params.Set("symbol", "LTCBTC")
	params.Set("side", "BUY")
	params.Set("type", "LIMIT")
	params.Set("timeInForce", "GTC")
	params.Set("quantity", "1")
	params.Set("price", "0.1")
	params.Set("recvWindow", "5000")
	params.Set("timestamp", "1499827319559")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(params.Encode()))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := signer.Sign(params); got != want {
		t.Errorf("Sign = %s, want %s", got, want)
	}
}

func TestSignDeterministicAcrossInsertionOrder(t *testing.T) {
	signer := NewSigner("secret")

	a := url.Values{}
	a.Set("symbol", "BTCUSDT")
	a.Set("limit", "100")
	a.Set("recvWindow", "5000")

	b := url.Values{}
	b.Set("recvWindow", "5000")
	b.Set("limit", "100")
	b.Set("symbol", "BTCUSDT")

	if signer.Sign(a) != signer.Sign(b) {
		t.Error("signature should not depend on parameter insertion order")
	}
}

func TestSignedQueryStampsTimestamp(t *testing.T) {
	signer := NewSigner("secret")

	params := url.Values{}
	params.Set("symbol", "BTCUSDT")

	query := signer.SignedQuery(params, 1700000000000)

	if !strings.Contains(query, "timestamp=1700000000000") {
		t.Errorf("query missing supplied timestamp: %s", query)
	}
	if !strings.Contains(query, "&signature=") {
		t.Errorf("query missing signature: %s", query)
	}

	// The signature must cover the stamped timestamp.
	base := strings.Split(query, "&signature=")[0]
	parsed, err := url.ParseQuery(base)
	if err != nil {
		t.Fatalf("failed to parse query: %v", err)
	}
	want := signer.Sign(parsed)
	if !strings.HasSuffix(query, want) {
		t.Errorf("signature does not cover stamped params")
	}
}

func TestSignedQueryLeavesParamsUntouched(t *testing.T) {
	signer := NewSigner("secret")

	params := url.Values{}
	params.Set("symbol", "BTCUSDT")

	signer.SignedQuery(params, 1700000000000)

	if params.Get("timestamp") != "" {
		t.Error("SignedQuery stamped the caller's params with a timestamp")
	}
	if len(params) != 1 || params.Get("symbol") != "BTCUSDT" {
		t.Errorf("caller's params mutated: %v", params)
	}
}

func TestSignedQueryNilParams(t *testing.T) {
	signer := NewSigner("secret")
	query := signer.SignedQuery(nil, 42)
	if !strings.HasPrefix(query, "timestamp=42&signature=") {
		t.Errorf("unexpected query for nil params: %s", query)
	}
}
