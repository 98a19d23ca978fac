// Package signature provides HMAC-SHA256 signing and verification for
// outbound webhook payloads.
package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// Prefix identifies the signing algorithm in the wire format.
const Prefix = "sha256="

// Sign computes the HMAC-SHA256 tag over the exact bytes placed on the
// wire and returns it as "sha256=<hex>". Callers must pass the serialized
// request body, not a re-serialization, or receivers will fail to verify.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return Prefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the signature for payload and compares it to sig in
// constant time. Signatures without the algorithm prefix are rejected.
func Verify(payload []byte, sig, secret string) bool {
	got, ok := strings.CutPrefix(sig, Prefix)
	if !ok {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(got), []byte(want))
}

// GenerateSecret returns a cryptographically random 256-bit signing secret,
// base64url-encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
