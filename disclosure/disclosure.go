// Package disclosure implements the client-side pipeline that turns an
// anonymous disclosure into per-rendezvous-point verifiable shares and back:
// encrypt to the recipient, split into threshold shares with keyed
// commitments, then reconstruct, verify and decrypt on the receiving side.
package disclosure

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/berkmancenter/rendezvous-client/crypto"
	"github.com/berkmancenter/rendezvous-client/recipient"
)

// encryptionLabel is the HKDF info string for disclosure keys. It
// domain-separates them from the inbox challenge derivation, which uses an
// empty label.
const encryptionLabel = "disclosure-encryption"

var (
	// ErrCrypto wraps key agreement, sealing and splitting failures.
	ErrCrypto = errors.New("crypto failure")
	// ErrReconstruction wraps insufficient or inconsistent share sets.
	ErrReconstruction = errors.New("reconstruction failed")
	// ErrDecryption wraps AEAD open and plaintext decode failures.
	ErrDecryption = errors.New("decryption failed")
)

// Disclosure is an anonymous message addressed to a single recipient.
// Organization is provenance stamped by the receiving coordinator after
// reconstruction; the author never sets it.
type Disclosure struct {
	ID           uuid.UUID `json:"id"`
	Text         string    `json:"text"`
	Author       string    `json:"author"`
	Organization string    `json:"organization,omitempty"`
}

// New creates a disclosure with a fresh id. The id is bound into every
// share's commitment.
func New(text, author string) Disclosure {
	return Disclosure{ID: uuid.New(), Text: text, Author: author}
}

// seal encrypts the disclosure to the recipient under a fresh ephemeral key,
// returning the combined-form blob, the derived symmetric key (needed for
// share commitments) and the ephemeral public key.
func (d Disclosure) seal(to recipient.Recipient) (sealed, key []byte, ephemeralPub crypto.PublicKey, err error) {
	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	ephemeralPub, err = ephemeral.Public()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	key, err = crypto.SharedKey(ephemeral, to.PublicKey, []byte(encryptionLabel))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}

	plaintext, err := json.Marshal(d)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encoding disclosure: %w", err)
	}
	sealed, err = crypto.Seal(key, plaintext)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return sealed, key, ephemeralPub, nil
}

// Encrypt seals the disclosure to the recipient. The ephemeral public key is
// returned alongside the ciphertext because the recipient needs it before any
// key derivation can happen.
func (d Disclosure) Encrypt(to recipient.Recipient) (Encrypted, crypto.PublicKey, error) {
	sealed, _, ephemeralPub, err := d.seal(to)
	if err != nil {
		return Encrypted{}, nil, err
	}
	return Encrypted{Ciphertext: sealed}, ephemeralPub, nil
}
