// Package crypto holds the primitives shared by the disclosure pipeline and
// the inbox challenge authentication: X25519 key agreement with HKDF-SHA256
// key derivation, AES-GCM sealing in combined form, and HMAC-SHA256 share
// commitments.
package crypto

import (
	cryptoRand "crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the byte length of X25519 keys and of derived symmetric keys.
const KeySize = 32

type PrivateKey []byte

type PublicKey []byte

// GenerateKey creates a new X25519 key-agreement private key.
func GenerateKey() (PrivateKey, error) {
	priv := make([]byte, KeySize)
	if _, err := io.ReadFull(cryptoRand.Reader, priv); err != nil {
		return nil, fmt.Errorf("key generation failed: %w", err)
	}
	return priv, nil
}

// Public returns the public key matching k.
func (k PrivateKey) Public() (PublicKey, error) {
	pub, err := curve25519.X25519(k, curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}
	return pub, nil
}

// SharedKey derives a 32-byte symmetric key from an X25519 agreement between
// priv and peer, run through HKDF-SHA256 with an empty salt and the given
// info label. Both sides of an exchange must pass the same label.
func SharedKey(priv PrivateKey, peer PublicKey, info []byte) ([]byte, error) {
	if len(peer) != KeySize {
		return nil, fmt.Errorf("invalid X25519 public key length")
	}
	sharedSecret, err := curve25519.X25519(priv, peer)
	if err != nil {
		return nil, fmt.Errorf("key agreement failed: %w", err)
	}

	hkdfReader := hkdf.New(sha256.New, sharedSecret, []byte{}, info)
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, fmt.Errorf("hkdf read error: %w", err)
	}
	return key, nil
}
