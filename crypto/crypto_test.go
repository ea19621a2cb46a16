package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSharedKeySymmetry(t *testing.T) {
	alicePriv, err := GenerateKey()
	assert.NoError(t, err)
	alicePub, err := alicePriv.Public()
	assert.NoError(t, err)

	bobPriv, err := GenerateKey()
	assert.NoError(t, err)
	bobPub, err := bobPriv.Public()
	assert.NoError(t, err)

	aliceKey, err := SharedKey(alicePriv, bobPub, []byte("label"))
	assert.NoError(t, err)
	bobKey, err := SharedKey(bobPriv, alicePub, []byte("label"))
	assert.NoError(t, err)

	assert.Equal(t, aliceKey, bobKey)
	assert.Len(t, aliceKey, KeySize)
}

func TestSharedKeyInfoSeparation(t *testing.T) {
	priv, _ := GenerateKey()
	peerPriv, _ := GenerateKey()
	peerPub, _ := peerPriv.Public()

	key1, err := SharedKey(priv, peerPub, nil)
	assert.NoError(t, err)
	key2, err := SharedKey(priv, peerPub, []byte("disclosure-encryption"))
	assert.NoError(t, err)

	assert.NotEqual(t, key1, key2)
}

func TestSharedKeyRejectsShortPeerKey(t *testing.T) {
	priv, _ := GenerateKey()
	_, err := SharedKey(priv, []byte("short"), nil)
	assert.Error(t, err)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	plaintext := []byte("The password is swordfish")

	sealed, err := Seal(key, plaintext)
	assert.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := Open(key, sealed)
	assert.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenWrongKeyFails(t *testing.T) {
	key := make([]byte, KeySize)
	sealed, err := Seal(key, []byte("secret"))
	assert.NoError(t, err)

	wrongKey := make([]byte, KeySize)
	wrongKey[0] = 1
	_, err = Open(wrongKey, sealed)
	assert.Error(t, err)
}

func TestOpenTruncatedBlobFails(t *testing.T) {
	key := make([]byte, KeySize)
	_, err := Open(key, []byte{1, 2, 3})
	assert.Error(t, err)
}

func TestCommitmentVerify(t *testing.T) {
	key := []byte("commitment-key")
	id := []byte("disclosure-id")
	data := []byte("share-data")

	sum := Commitment(key, id, data)
	assert.True(t, VerifyCommitment(key, sum, id, data))
	assert.False(t, VerifyCommitment(key, sum, id, []byte("other-data")))
	assert.False(t, VerifyCommitment(key, sum, []byte("other-id"), data))
	assert.False(t, VerifyCommitment([]byte("other-key"), sum, id, data))
}
