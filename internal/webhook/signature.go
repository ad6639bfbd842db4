package webhook

import (
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// Sign returns hex(keccak256(body || secret)) without a 0x prefix.
func Sign(body []byte, secret string) string {
	data := make([]byte, 0, len(body)+len(secret))
	data = append(data, body...)
	data = append(data, secret...)
	return hex.EncodeToString(crypto.Keccak256(data))
}

// VerifySignature reports whether provided equals keccak256(body || secret).
// The comparison ignores case and an optional 0x prefix.
func VerifySignature(body []byte, provided, secret string) bool {
	if provided == "" || secret == "" {
		return false
	}
	got := strings.ToLower(strings.TrimSpace(provided))
	got = strings.TrimPrefix(got, "0x")
	want := Sign(body, secret)
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
