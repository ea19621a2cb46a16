package rendezvous

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/berkmancenter/rendezvous-client/credential"
	"github.com/berkmancenter/rendezvous-client/crypto"
	"github.com/berkmancenter/rendezvous-client/disclosure"
	"github.com/berkmancenter/rendezvous-client/recipient"
)

// Set is the configured collection of rendezvous points a client fans out
// to. Every aggregate operation runs one goroutine per point and always
// waits for all of them to settle; a failed point contributes an empty
// result to its slot, there is no retry and no early exit.
type Set []*Point

// DefaultSet returns the shipped rendezvous points.
func DefaultSet() Set {
	var set Set
	for _, raw := range []string{
		"https://rp1-246724171794.us-central1.run.app",
		"https://rp2-246724171794.us-central1.run.app",
		"https://rp3-246724171794.us-central1.run.app",
	} {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		set = append(set, NewPoint(u))
	}
	return set
}

// RequestCredentials collects a credential from every reachable point.
// Partial results are acceptable; the caller checks whether the collected
// credentials share an organization before using them.
func (s Set) RequestCredentials(ctx context.Context) credential.Set {
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		credentials credential.Set
	)
	for _, point := range s {
		wg.Add(1)
		go func(p *Point) {
			defer wg.Done()
			if cred := p.RequestCredential(ctx); cred != nil {
				mu.Lock()
				credentials = append(credentials, *cred)
				mu.Unlock()
			}
		}(point)
	}
	wg.Wait()
	return credentials
}

// RegisterRecipient registers the recipient with every point. A recipient
// must be discoverable everywhere to receive complete share sets later, so
// the overall result is the AND of all registrations.
func (s Set) RegisterRecipient(ctx context.Context, r recipient.Recipient) bool {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success = true
	)
	for _, point := range s {
		wg.Add(1)
		go func(p *Point) {
			defer wg.Done()
			if !p.RegisterRecipient(ctx, r) {
				mu.Lock()
				success = false
				mu.Unlock()
			}
		}(point)
	}
	wg.Wait()
	return success
}

// RequestCommonRecipients fetches every point's directory and intersects
// them by public-key bytes: the first point's list is the candidate set and
// every other list must contain each candidate.
func (s Set) RequestCommonRecipients(ctx context.Context) []recipient.Recipient {
	lists := make([][]recipient.Recipient, len(s))
	var wg sync.WaitGroup
	for i, point := range s {
		wg.Add(1)
		go func(i int, p *Point) {
			defer wg.Done()
			lists[i] = p.RequestRecipients(ctx)
		}(i, point)
	}
	wg.Wait()

	if len(lists) == 0 {
		return nil
	}

	var common []recipient.Recipient
	for _, candidate := range lists[0] {
		everywhere := true
		for _, list := range lists[1:] {
			if !containsKey(list, candidate) {
				everywhere = false
				break
			}
		}
		if everywhere {
			common = append(common, candidate)
		}
	}
	return common
}

func containsKey(list []recipient.Recipient, candidate recipient.Recipient) bool {
	for _, r := range list {
		if r.Equal(candidate) {
			return true
		}
	}
	return false
}

// SubmitDisclosure splits the disclosure into one verifiable share per
// credential and submits each share to its credential's issuer. Delivery is
// all-or-nothing: reconstruction needs every share, so a single rejection
// fails the whole submission. Credentials must all carry the same
// organization; the caller checks that via credential.Set.
func (s Set) SubmitDisclosure(ctx context.Context, d disclosure.Disclosure, to recipient.Recipient, credentials credential.Set) bool {
	if len(credentials) == 0 {
		return false
	}

	// TODO: support M-of-N thresholds once the servers do.
	shares, err := d.EncryptAndSplit(to, len(credentials), len(credentials))
	if err != nil {
		logger.Warnf("encrypt and split failed: %v", err)
		return false
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success = true
	)
	fail := func() {
		mu.Lock()
		success = false
		mu.Unlock()
	}
	for i, cred := range credentials {
		point := s.pointFor(cred.Issuer())
		if point == nil {
			logger.Warnf("no rendezvous point configured for issuer %s", cred.Issuer())
			fail()
			continue
		}
		wg.Add(1)
		go func(p *Point, cred credential.Credential, share disclosure.VerifiableShare) {
			defer wg.Done()
			status, err := p.SubmitDisclosure(ctx, cred, to, d.ID, share)
			if err != nil || status != http.StatusOK {
				logger.Debugf("submission to %s failed: status=%d err=%v", p.URL, status, err)
				fail()
			}
		}(point, cred, shares[i])
	}
	wg.Wait()
	return success
}

func (s Set) pointFor(issuer *url.URL) *Point {
	if issuer == nil {
		return nil
	}
	for _, p := range s {
		if p.URL.String() == issuer.String() {
			return p
		}
	}
	return nil
}

// CheckInbox polls every point and merges the returned shares by
// organization and disclosure id, appending duplicates. A disclosure whose
// group holds a verified share from every point is reconstructed, decrypted,
// stamped with its organization and returned; its shares are then deleted
// best-effort. Incomplete groups are skipped silently since they may
// complete on a later poll. Shares failing commitment verification are
// dropped as if absent.
func (s Set) CheckInbox(ctx context.Context, r recipient.Recipient, priv crypto.PrivateKey) []disclosure.Disclosure {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		allShares = map[string]map[uuid.UUID][]disclosure.VerifiableShare{}
	)
	for _, point := range s {
		wg.Add(1)
		go func(p *Point) {
			defer wg.Done()
			shares := p.CheckInbox(ctx, r, priv)
			if shares == nil {
				logger.Debugf("inbox check at %s contributed nothing", p.URL)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for org, orgShares := range shares {
				if allShares[org] == nil {
					allShares[org] = map[uuid.UUID][]disclosure.VerifiableShare{}
				}
				for id, share := range orgShares {
					allShares[org][id] = append(allShares[org][id], share)
				}
			}
		}(point)
	}
	wg.Wait()

	var disclosures []disclosure.Disclosure
	for org, orgShares := range allShares {
		for id, shares := range orgShares {
			verified := make([]disclosure.VerifiableShare, 0, len(shares))
			for _, share := range shares {
				if share.Verify(id, priv) {
					verified = append(verified, share)
				} else {
					logger.Warnf("dropping share with bad commitment for disclosure %s", id)
				}
			}
			if len(verified) < len(s) {
				continue
			}

			encrypted, err := disclosure.Reconstruct(verified)
			if err != nil {
				logger.Warnf("reconstruction of disclosure %s failed: %v", id, err)
				continue
			}
			d, err := encrypted.Decrypt(priv, verified[0].EphemeralKey)
			if err != nil {
				logger.Warnf("decryption of disclosure %s failed: %v", id, err)
				continue
			}
			d.Organization = org
			disclosures = append(disclosures, d)

			if !s.DeleteDisclosure(ctx, id, r, priv) {
				logger.Warnf("could not delete disclosure %s from every point", id)
			}
		}
	}
	return disclosures
}

// DeleteDisclosure removes the disclosure's shares from every point.
// Succeeds only if every point confirms the deletion.
func (s Set) DeleteDisclosure(ctx context.Context, id uuid.UUID, r recipient.Recipient, priv crypto.PrivateKey) bool {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success = true
	)
	for _, point := range s {
		wg.Add(1)
		go func(p *Point) {
			defer wg.Done()
			if !p.DeleteInboxShare(ctx, id, r, priv) {
				mu.Lock()
				success = false
				mu.Unlock()
			}
		}(point)
	}
	wg.Wait()
	return success
}
