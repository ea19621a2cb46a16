package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Commitment computes an HMAC-SHA256 tag over the concatenation of parts.
func Commitment(key []byte, parts ...[]byte) []byte {
	mac := hmac.New(sha256.New, key)
	for _, part := range parts {
		mac.Write(part)
	}
	return mac.Sum(nil)
}

// VerifyCommitment reports whether sum matches the commitment over parts.
// The comparison is constant time.
func VerifyCommitment(key []byte, sum []byte, parts ...[]byte) bool {
	return hmac.Equal(sum, Commitment(key, parts...))
}
