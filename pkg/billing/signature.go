package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// ComputeSignature returns the hex-encoded HMAC-SHA256 of payload under
// secret. The MAC covers the raw request body byte for byte; callers must
// not re-serialize the payload before signing or verifying.
func ComputeSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time. A missing
// signature never verifies.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	expected := ComputeSignature(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expected))
}
