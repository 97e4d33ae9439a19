// Package sign implements the request-authenticity signature: a keyed hash
// over the email fields, independent of the transport-level API key.
package sign

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Compute returns the lowercase hex HMAC-SHA256 over the exact
// concatenation to+subject+html using the shared secret. The html is the
// caller-supplied body, before sanitization.
func Compute(secret, to, subject, html string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(to))
	mac.Write([]byte(subject))
	mac.Write([]byte(html))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the expected HMAC for the given
// fields. Comparison is constant-time.
func Verify(secret, to, subject, html, signature string) bool {
	expected := Compute(secret, to, subject, html)
	return hmac.Equal([]byte(expected), []byte(signature))
}
