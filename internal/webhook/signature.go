package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySignature checks a provider HMAC-SHA256 signature of the form
// "sha256=<hex>" against the raw request body. A missing or ill-formed
// header fails verification; it never returns an error. Comparison is
// constant-time.
func VerifySignature(body []byte, signatureHeader, secret string) bool {
	if !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}
	provided, err := hex.DecodeString(signatureHeader[len(signaturePrefix):])
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(provided, mac.Sum(nil))
}

// SignBody computes the signature header value for a body. Helper for tests
// and webhook installation tooling.
func SignBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
