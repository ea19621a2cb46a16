package disclosure

import (
	"encoding/json"
	"fmt"

	"github.com/corvus-ch/shamir"

	"github.com/berkmancenter/rendezvous-client/crypto"
)

// Encrypted is a sealed disclosure. The AEAD combined form embeds the nonce;
// the ephemeral public key travels with each share instead of the ciphertext,
// since the recipient needs it before it can derive the symmetric key.
type Encrypted struct {
	Ciphertext []byte `json:"ciphertext"`
}

// Reconstruct combines threshold shares back into the sealed blob. Each share
// records the threshold it was split with; shares below that count, mixed
// thresholds or duplicate indices fail with ErrReconstruction.
func Reconstruct(shares []VerifiableShare) (Encrypted, error) {
	if len(shares) == 0 {
		return Encrypted{}, fmt.Errorf("%w: no shares", ErrReconstruction)
	}

	threshold := -1
	parts := make(map[byte][]byte, len(shares))
	for _, share := range shares {
		if len(share.Data) < 3 {
			return Encrypted{}, fmt.Errorf("%w: malformed share", ErrReconstruction)
		}
		index, shareThreshold, payload := share.Data[0], int(share.Data[1]), share.Data[2:]
		if threshold == -1 {
			threshold = shareThreshold
		} else if threshold != shareThreshold {
			return Encrypted{}, fmt.Errorf("%w: inconsistent share thresholds", ErrReconstruction)
		}
		if index == wholeSecretIndex {
			if threshold != 1 {
				return Encrypted{}, fmt.Errorf("%w: malformed share", ErrReconstruction)
			}
			return Encrypted{Ciphertext: payload}, nil
		}
		if _, dup := parts[index]; dup {
			return Encrypted{}, fmt.Errorf("%w: duplicate share index", ErrReconstruction)
		}
		parts[index] = payload
	}

	if len(parts) < threshold {
		return Encrypted{}, fmt.Errorf("%w: %d of %d shares", ErrReconstruction, len(parts), threshold)
	}

	blob, err := shamir.Combine(parts)
	if err != nil {
		return Encrypted{}, fmt.Errorf("%w: %v", ErrReconstruction, err)
	}
	return Encrypted{Ciphertext: blob}, nil
}

// Decrypt re-derives the symmetric key from the recipient's private key and
// the sender's ephemeral public key, opens the sealed blob and decodes the
// disclosure. The AEAD tag is the integrity check against tampering or a
// wrong key.
func (e Encrypted) Decrypt(priv crypto.PrivateKey, ephemeralKey crypto.PublicKey) (Disclosure, error) {
	key, err := crypto.SharedKey(priv, ephemeralKey, []byte(encryptionLabel))
	if err != nil {
		return Disclosure{}, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	plaintext, err := crypto.Open(key, e.Ciphertext)
	if err != nil {
		return Disclosure{}, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	var d Disclosure
	if err := json.Unmarshal(plaintext, &d); err != nil {
		return Disclosure{}, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return d, nil
}
