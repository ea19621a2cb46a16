// Package rendezvous implements the protocol client for rendezvous points:
// per-point operations and the fan-out coordination across the configured
// set.
package rendezvous

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"

	"github.com/berkmancenter/rendezvous-client/credential"
	"github.com/berkmancenter/rendezvous-client/crypto"
	"github.com/berkmancenter/rendezvous-client/disclosure"
	"github.com/berkmancenter/rendezvous-client/fronting"
	"github.com/berkmancenter/rendezvous-client/recipient"
	"github.com/berkmancenter/rendezvous-client/types"
)

var logger = log.New("rendezvous")

// SetLogLevel adjusts the package logger. The coordinator reports per-point
// partial failures at DEBUG and dropped shares at WARN.
func SetLogLevel(level log.Lvl) {
	logger.SetLevel(level)
}

// Point is the client for a single rendezvous point. Operations never let a
// transport failure escape as an error; they collapse to nil, false or empty
// so the coordinator can treat one point's failure as a partial result.
type Point struct {
	URL    *url.URL
	client *http.Client
}

// NewPoint returns a client whose traffic is domain-fronted.
func NewPoint(u *url.URL) *Point {
	return NewPointWithClient(u, &http.Client{Transport: fronting.Transport{}})
}

// NewPointWithClient returns a client that uses the given HTTP client
// unchanged. Used by tests and by callers that disable fronting.
func NewPointWithClient(u *url.URL, client *http.Client) *Point {
	return &Point{URL: u, client: client}
}

func (p *Point) get(ctx context.Context, segments ...string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL.JoinPath(segments...).String(), nil)
	if err != nil {
		return nil, err
	}
	return p.client.Do(req)
}

// RequestCredential fetches an organization credential from the point. Any
// failure yields nil.
func (p *Point) RequestCredential(ctx context.Context) *credential.Credential {
	resp, err := p.get(ctx, "credential")
	if err != nil {
		logger.Debugf("credential request to %s failed: %v", p.URL, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logger.Debugf("credential request to %s returned %d", p.URL, resp.StatusCode)
		return nil
	}

	var body types.CredentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil
	}
	cred := credential.New(p.URL, body.Credential)
	return &cred
}

// RegisterRecipient registers the recipient in the point's directory.
func (p *Point) RegisterRecipient(ctx context.Context, r recipient.Recipient) bool {
	body, err := json.Marshal(r)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL.JoinPath("register").String(), bytes.NewReader(body))
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Debugf("register at %s failed: %v", p.URL, err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// RequestRecipients lists the point's recipient directory. Failures yield an
// empty list, which the intersection treats as no data from this point.
func (p *Point) RequestRecipients(ctx context.Context) []recipient.Recipient {
	resp, err := p.get(ctx, "recipients")
	if err != nil {
		logger.Debugf("recipients request to %s failed: %v", p.URL, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var recipients []recipient.Recipient
	if err := json.NewDecoder(resp.Body).Decode(&recipients); err != nil {
		return nil
	}
	return recipients
}

// fetchInboxChallenge runs the challenge half of inbox authentication: the
// point hands out a token and a nonce, and the client proves possession of
// the recipient private key by sealing the token under the agreed key and
// echoing the nonce inside the bearer value.
func (p *Point) fetchInboxChallenge(ctx context.Context, r recipient.Recipient, priv crypto.PrivateKey) (string, bool) {
	resp, err := p.get(ctx, "inbox", r.URLSafeKey(), "challenge")
	if err != nil {
		logger.Debugf("inbox challenge from %s failed: %v", p.URL, err)
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", false
	}

	var challenge types.InboxChallengeResponse
	if err := json.NewDecoder(resp.Body).Decode(&challenge); err != nil {
		return "", false
	}

	key, err := crypto.SharedKey(priv, challenge.PublicKey, nil)
	if err != nil {
		return "", false
	}
	sealedToken, err := crypto.Seal(key, challenge.Token)
	if err != nil {
		return "", false
	}
	auth, err := json.Marshal(types.ChallengeAuth{
		EncryptedToken: sealedToken,
		Nonce:          challenge.Nonce,
	})
	if err != nil {
		return "", false
	}
	return "Bearer " + base64.StdEncoding.EncodeToString(auth), true
}

// CheckInbox lists the recipient's pending shares at this point, grouped by
// organization and disclosure id. Any step failing yields nil.
func (p *Point) CheckInbox(ctx context.Context, r recipient.Recipient, priv crypto.PrivateKey) map[string]map[uuid.UUID]disclosure.VerifiableShare {
	auth, ok := p.fetchInboxChallenge(ctx, r, priv)
	if !ok {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL.JoinPath("inbox", r.URLSafeKey()).String(), nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Authorization", auth)

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Debugf("inbox listing from %s failed: %v", p.URL, err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var items []types.InboxResponse
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil
	}

	result := make(map[string]map[uuid.UUID]disclosure.VerifiableShare)
	for _, item := range items {
		id, err := uuid.Parse(item.ID)
		if err != nil {
			continue
		}
		if result[item.Org] == nil {
			result[item.Org] = make(map[uuid.UUID]disclosure.VerifiableShare)
		}
		result[item.Org][id] = item.Share
	}
	return result
}

// DeleteInboxShare removes one disclosure's share from the recipient's inbox
// at this point.
func (p *Point) DeleteInboxShare(ctx context.Context, id uuid.UUID, r recipient.Recipient, priv crypto.PrivateKey) bool {
	auth, ok := p.fetchInboxChallenge(ctx, r, priv)
	if !ok {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.URL.JoinPath("inbox", r.URLSafeKey(), id.String()).String(), nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", auth)

	resp, err := p.client.Do(req)
	if err != nil {
		logger.Debugf("inbox delete at %s failed: %v", p.URL, err)
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// SubmitDisclosure posts one verifiable share under the credential's bearer
// token. The HTTP status is surfaced so the coordinator can apply its
// all-or-nothing policy.
func (p *Point) SubmitDisclosure(ctx context.Context, cred credential.Credential, r recipient.Recipient, id uuid.UUID, share disclosure.VerifiableShare) (int, error) {
	body, err := json.Marshal(types.DisclosureRequest{
		ID:        id.String(),
		Recipient: r.PublicKey,
		Share:     share,
	})
	if err != nil {
		return 0, fmt.Errorf("encoding disclosure request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.URL.JoinPath("disclose").String(), bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", cred.AuthorizationHeaderValue())

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}
