// Package types defines the JSON wire shapes shared with the rendezvous-point
// server. Binary fields are []byte, which encoding/json carries as standard
// base64 strings, matching what the server produces and expects.
package types

import (
	"github.com/berkmancenter/rendezvous-client/disclosure"
)

// CredentialResponse is the body of GET /credential.
type CredentialResponse struct {
	Credential   string `json:"credential"`
	Organization string `json:"organization"`
}

// Recipient is the registry entry stored by a rendezvous point. The public
// key stays base64-encoded server side; the client decodes it into
// recipient.Recipient.
type Recipient struct {
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
}

// DisclosureRequest is the body of POST /disclose.
type DisclosureRequest struct {
	ID        string                     `json:"id"`
	Recipient []byte                     `json:"recipient"`
	Share     disclosure.VerifiableShare `json:"share"`
}

// InboxChallengeResponse is the body of GET /inbox/{key}/challenge.
type InboxChallengeResponse struct {
	Token     []byte `json:"token"`
	Nonce     []byte `json:"nonce"`
	PublicKey []byte `json:"publicKey"`
}

// ChallengeAuth is the JSON carried inside the challenge bearer token: the
// challenge token sealed under the agreed key, plus the server-chosen nonce
// identifying which outstanding challenge is being answered.
type ChallengeAuth struct {
	EncryptedToken []byte `json:"encryptedToken"`
	Nonce          []byte `json:"nonce"`
}

// InboxResponse is one element of the GET /inbox/{key} listing.
type InboxResponse struct {
	ID    string                     `json:"id"`
	Org   string                     `json:"org"`
	Share disclosure.VerifiableShare `json:"share"`
}
