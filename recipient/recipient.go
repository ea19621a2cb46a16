// Package recipient defines the named public keys disclosures are addressed
// to.
package recipient

import (
	"bytes"
	"encoding/base64"

	"github.com/berkmancenter/rendezvous-client/crypto"
)

// Recipient is a named encryption target. Identity is defined by the public
// key bytes alone; the name is display metadata.
type Recipient struct {
	Name      string           `json:"name"`
	PublicKey crypto.PublicKey `json:"publicKey"`
}

// Equal reports whether both recipients hold the same public key, regardless
// of name.
func (r Recipient) Equal(other Recipient) bool {
	return bytes.Equal(r.PublicKey, other.PublicKey)
}

// Key returns a string form of the public key bytes, usable as a map key.
func (r Recipient) Key() string {
	return string(r.PublicKey)
}

// URLSafeKey returns the public key as unpadded URL-safe base64, the encoding
// rendezvous points expect in inbox paths.
func (r Recipient) URLSafeKey() string {
	return base64.RawURLEncoding.EncodeToString(r.PublicKey)
}
