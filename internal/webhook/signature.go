package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex-encoded HMAC of the raw request body.
const SignatureHeader = "X-Webhook-Signature"

// Sign computes the hex HMAC-SHA256 of a payload with the shared secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a supplied signature against the payload in
// constant time. An empty secret skips verification and reports true.
func VerifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" {
		return true
	}
	supplied, errDecode := hex.DecodeString(strings.TrimSpace(signature))
	if errDecode != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(supplied, mac.Sum(nil))
}
