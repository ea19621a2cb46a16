package disclosure

import (
	"fmt"

	"github.com/corvus-ch/shamir"
	"github.com/google/uuid"

	"github.com/berkmancenter/rendezvous-client/crypto"
	"github.com/berkmancenter/rendezvous-client/recipient"
)

// wholeSecretIndex marks the degenerate threshold-1 share, which carries the
// whole sealed blob. Shamir x coordinates are never zero, so the marker
// cannot collide with a real share index.
const wholeSecretIndex = 0

// VerifiableShare is one threshold share of an encrypted disclosure plus a
// keyed commitment binding it to the disclosure id and its own bytes, so a
// recipient can check a share before the remaining shares arrive.
//
// Data wire layout: index byte, threshold byte, share payload.
type VerifiableShare struct {
	Data         []byte           `json:"data"`
	Commitment   []byte           `json:"commitment"`
	EphemeralKey crypto.PublicKey `json:"ephemeralKey"`
}

// Verify re-derives the symmetric key from the recipient's private key and
// the share's ephemeral key, recomputes the commitment and compares in
// constant time. It never returns an error; any derivation failure reports
// the share as invalid.
func (s VerifiableShare) Verify(id uuid.UUID, priv crypto.PrivateKey) bool {
	key, err := crypto.SharedKey(priv, s.EphemeralKey, []byte(encryptionLabel))
	if err != nil {
		return false
	}
	return crypto.VerifyCommitment(key, s.Commitment, id[:], s.Data)
}

// EncryptAndSplit seals the disclosure to the recipient and splits the sealed
// blob into numberOfShares Shamir shares, any threshold of which reconstruct
// it. Every share carries the ephemeral public key and a commitment under the
// sealing key.
func (d Disclosure) EncryptAndSplit(to recipient.Recipient, numberOfShares, threshold int) ([]VerifiableShare, error) {
	if threshold < 1 || threshold > numberOfShares {
		return nil, fmt.Errorf("%w: invalid threshold %d of %d", ErrCrypto, threshold, numberOfShares)
	}

	sealed, key, ephemeralPub, err := d.seal(to)
	if err != nil {
		return nil, err
	}

	shares := make([]VerifiableShare, 0, numberOfShares)
	appendShare := func(index byte, payload []byte) {
		data := make([]byte, 0, len(payload)+2)
		data = append(data, index, byte(threshold))
		data = append(data, payload...)
		shares = append(shares, VerifiableShare{
			Data:         data,
			Commitment:   crypto.Commitment(key, d.ID[:], data),
			EphemeralKey: ephemeralPub,
		})
	}
	if threshold == 1 {
		// Shamir needs a threshold of at least two; a 1-of-N policy is just
		// the sealed blob handed to everyone.
		for i := 0; i < numberOfShares; i++ {
			appendShare(wholeSecretIndex, sealed)
		}
		return shares, nil
	}

	parts, err := shamir.Split(sealed, numberOfShares, threshold)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	for index, payload := range parts {
		appendShare(index, payload)
	}
	return shares, nil
}
