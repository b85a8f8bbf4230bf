package httpClient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"strings"
)

// Param is one key=value pair of a GET query, kept in wire order.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered query. Encode joins the pairs with '&' without
// percent-encoding, so the signed string and the wire query are identical.
type Params []Param

func (p Params) Encode() string {
	var b strings.Builder
	for i, kv := range p {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(kv.Key)
		b.WriteByte('=')
		b.WriteString(kv.Value)
	}
	return b.String()
}

// Sign holds the API credentials and produces v5 HMAC-SHA256 signatures.
type Sign struct {
	apiKey     string
	apiSecret  string
	RecvWindow string
}

func NewSign(apiKey, apiSecret string) *Sign {
	return &Sign{apiKey: apiKey, apiSecret: apiSecret, RecvWindow: RECV_WINDOW}
}

// Signature returns hex(HMAC_SHA256(secret, timestamp || apiKey || recvWindow || payload)).
func (s *Sign) Signature(timestamp string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(s.apiSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(s.apiKey))
	mac.Write([]byte(s.RecvWindow))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// PostSignature signs the exact body bytes that go on the wire.
func (s *Sign) PostSignature(timestamp string, body []byte) string {
	return s.Signature(timestamp, body)
}

// GetSignature signs the query string in the order it is sent.
func (s *Sign) GetSignature(timestamp string, params Params) string {
	return s.Signature(timestamp, []byte(params.Encode()))
}

// Verify recomputes the signature and compares it case-insensitively.
func (s *Sign) Verify(timestamp string, payload []byte, signature string) bool {
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	want, _ := hex.DecodeString(s.Signature(timestamp, payload))
	return hmac.Equal(got, want)
}

// Apply sets the authentication headers of a signed request.
func (s *Sign) Apply(h http.Header, timestamp, signature string) {
	h.Set(HEADER_API_KEY, s.apiKey)
	h.Set(HEADER_SIGN, signature)
	h.Set(HEADER_SIGN_TYPE, SIGN_TYPE)
	h.Set(HEADER_TIMESTAMP, timestamp)
	h.Set(HEADER_RECV_WINDOW, s.RecvWindow)
}

func (s *Sign) LogValue() slog.Value {
	return slog.StringValue("[redacted]")
}

func (s *Sign) String() string { return "[redacted]" }
