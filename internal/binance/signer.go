package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
)

// Signer produces the HMAC-SHA256 signatures Binance requires on
// account-level endpoints. The secret is held as bytes so each request
// avoids re-converting the key.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Sign computes the hex-encoded HMAC-SHA256 of the canonical query string
// built from params. Encoding is url.Values.Encode, which sorts keys, so
// the same parameter set always produces the same signature.
func (s *Signer) Sign(params url.Values) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(params.Encode()))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedQuery stamps a copy of params with the supplied epoch-millis
// timestamp, signs the result and returns the full query string with the
// signature appended. The caller's map is never mutated. The timestamp is
// injected here, not read from the clock, so callers control it for replay
// and testing.
func (s *Signer) SignedQuery(params url.Values, timestampMillis int64) string {
	signed := url.Values{}
	for k, vs := range params {
		for _, v := range vs {
			signed.Add(k, v)
		}
	}
	signed.Set("timestamp", strconv.FormatInt(timestampMillis, 10))
	signature := s.Sign(signed)
	return signed.Encode() + "&signature=" + signature
}
