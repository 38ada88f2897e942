// Package webhook implements webhook signature verification and dispatch.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// SignaturePrefix is the scheme prefix GitHub puts on X-Hub-Signature-256.
const SignaturePrefix = "sha256="

// Sign computes the hex-encoded HMAC-SHA256 signature of body, including
// the scheme prefix.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return SignaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a claimed signature against the raw request body
// using a constant-time comparison. It fails closed: an empty secret, an
// empty body, or a missing signature all reject. The body must be the raw
// bytes as received; re-serializing parsed JSON breaks the signature.
func VerifySignature(secret, body []byte, claimed string) bool {
	if len(secret) == 0 || len(body) == 0 || claimed == "" {
		return false
	}
	expected := Sign(secret, body)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(claimed)) == 1
}
