package rendezvous_test

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berkmancenter/rendezvous-client/disclosure"
	"github.com/berkmancenter/rendezvous-client/rendezvous"
	"github.com/berkmancenter/rendezvous-client/rendezvoustest"
)

func newTestSet(t *testing.T, orgs ...string) ([]*rendezvoustest.Server, rendezvous.Set) {
	t.Helper()
	servers := make([]*rendezvoustest.Server, 0, len(orgs))
	var set rendezvous.Set
	for _, org := range orgs {
		server := rendezvoustest.NewServer(org)
		t.Cleanup(server.Close)
		servers = append(servers, server)
		set = append(set, pointFor(server))
	}
	return servers, set
}

func deadPoint(t *testing.T) *rendezvous.Point {
	t.Helper()
	u, err := url.Parse("http://127.0.0.1:1")
	require.NoError(t, err)
	return rendezvous.NewPointWithClient(u, http.DefaultClient)
}

func TestRequestCredentialsPartialSuccess(t *testing.T) {
	_, set := newTestSet(t, "Acme Corp", "Acme Corp")
	set = append(set, deadPoint(t))

	credentials := set.RequestCredentials(context.Background())
	assert.Len(t, credentials, 2)
	assert.Equal(t, "Acme Corp", credentials.CommonOrganization())
}

func TestRequestCredentialsMixedOrganizations(t *testing.T) {
	_, set := newTestSet(t, "Acme Corp", "Globex")

	credentials := set.RequestCredentials(context.Background())
	assert.Len(t, credentials, 2)
	assert.Equal(t, "", credentials.CommonOrganization())
}

func TestRegisterRecipientUnanimous(t *testing.T) {
	servers, set := newTestSet(t, "Acme", "Acme", "Acme")

	alice, _ := testRecipient(t, "Alice")
	assert.True(t, set.RegisterRecipient(context.Background(), alice))
	for _, server := range servers {
		recipients := pointFor(server).RequestRecipients(context.Background())
		require.Len(t, recipients, 1)
	}

	// One unreachable point fails the whole registration.
	set = append(set, deadPoint(t))
	assert.False(t, set.RegisterRecipient(context.Background(), alice))
}

func TestRequestCommonRecipientsIntersection(t *testing.T) {
	servers, set := newTestSet(t, "Acme", "Acme", "Acme")

	a, _ := testRecipient(t, "A")
	b, _ := testRecipient(t, "B")
	c, _ := testRecipient(t, "C")

	servers[0].AddRecipient(a.Name, a.PublicKey)
	servers[0].AddRecipient(b.Name, b.PublicKey)
	servers[1].AddRecipient(a.Name, a.PublicKey)
	servers[1].AddRecipient(c.Name, c.PublicKey)
	servers[2].AddRecipient(a.Name, a.PublicKey)

	common := set.RequestCommonRecipients(context.Background())
	require.Len(t, common, 1)
	assert.True(t, a.Equal(common[0]))
}

func TestSubmitDisclosureAllOrNothing(t *testing.T) {
	ctx := context.Background()
	servers, set := newTestSet(t, "Acme", "Acme", "Acme")

	alice, _ := testRecipient(t, "Alice")
	credentials := set.RequestCredentials(ctx)
	require.Len(t, credentials, 3)
	require.Equal(t, "Acme", credentials.CommonOrganization())

	d := disclosure.New("all or nothing", "nora")
	assert.True(t, set.SubmitDisclosure(ctx, d, alice, credentials))
	for _, server := range servers {
		assert.Equal(t, 1, server.DisclosureCount(alice.PublicKey))
	}

	// One point rejecting its share fails the whole submission.
	servers[1].FailSubmissions = true
	assert.False(t, set.SubmitDisclosure(ctx, disclosure.New("rejected", "nora"), alice, credentials))
}

func TestSubmitDisclosureWithoutCredentials(t *testing.T) {
	_, set := newTestSet(t, "Acme")
	alice, _ := testRecipient(t, "Alice")
	assert.False(t, set.SubmitDisclosure(context.Background(), disclosure.New("x", "y"), alice, nil))
}

func TestCheckInboxRequiresEveryShare(t *testing.T) {
	ctx := context.Background()
	servers, set := newTestSet(t, "Acme", "Acme", "Acme")

	alice, alicePriv := testRecipient(t, "Alice")
	d := disclosure.New("The password is swordfish", "nora")
	shares, err := d.EncryptAndSplit(alice, 3, 3)
	require.NoError(t, err)

	// Only two of three points hold a share: the disclosure must not appear.
	for i := 0; i < 2; i++ {
		cred := set[i].RequestCredential(ctx)
		require.NotNil(t, cred)
		status, err := set[i].SubmitDisclosure(ctx, *cred, alice, d.ID, shares[i])
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, status)
	}
	assert.Empty(t, set.CheckInbox(ctx, alice, alicePriv))

	// Once the third share lands, the disclosure is delivered exactly once.
	cred := set[2].RequestCredential(ctx)
	require.NotNil(t, cred)
	status, err := set[2].SubmitDisclosure(ctx, *cred, alice, d.ID, shares[2])
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, status)

	disclosures := set.CheckInbox(ctx, alice, alicePriv)
	require.Len(t, disclosures, 1)
	assert.Equal(t, d.ID, disclosures[0].ID)
	assert.Equal(t, "The password is swordfish", disclosures[0].Text)
	assert.Equal(t, "nora", disclosures[0].Author)
	assert.Equal(t, "Acme", disclosures[0].Organization)

	// Reconstructed shares were cleaned up, so a second poll is empty.
	assert.Empty(t, set.CheckInbox(ctx, alice, alicePriv))
	for _, server := range servers {
		assert.Equal(t, 0, server.DisclosureCount(alice.PublicKey))
	}
}

func TestCheckInboxDropsCorruptShares(t *testing.T) {
	ctx := context.Background()
	servers, set := newTestSet(t, "Acme", "Acme", "Acme")

	alice, alicePriv := testRecipient(t, "Alice")
	credentials := set.RequestCredentials(ctx)
	require.Len(t, credentials, 3)

	d := disclosure.New("tampered in transit", "nora")
	require.True(t, set.SubmitDisclosure(ctx, d, alice, credentials))

	// One point corrupts its stored share; its commitment no longer checks
	// out, so the group stays incomplete instead of failing decryption.
	servers[2].CorruptShares(alice.PublicKey)
	assert.Empty(t, set.CheckInbox(ctx, alice, alicePriv))

	// The intact shares stay on the servers for a later poll.
	assert.Equal(t, 1, servers[0].DisclosureCount(alice.PublicKey))
	assert.Equal(t, 1, servers[1].DisclosureCount(alice.PublicKey))
}

func TestDeleteDisclosureUnanimous(t *testing.T) {
	ctx := context.Background()
	servers, set := newTestSet(t, "Acme", "Acme", "Acme")

	alice, alicePriv := testRecipient(t, "Alice")
	credentials := set.RequestCredentials(ctx)
	d := disclosure.New("delete me", "nora")
	require.True(t, set.SubmitDisclosure(ctx, d, alice, credentials))

	servers[1].FailDeletes = true
	assert.False(t, set.DeleteDisclosure(ctx, d.ID, alice, alicePriv))

	servers[1].FailDeletes = false
	assert.True(t, set.DeleteDisclosure(ctx, d.ID, alice, alicePriv))
	for _, server := range servers {
		assert.Equal(t, 0, server.DisclosureCount(alice.PublicKey))
	}
}

func TestDefaultSet(t *testing.T) {
	set := rendezvous.DefaultSet()
	require.Len(t, set, 3)
	for _, point := range set {
		assert.Contains(t, point.URL.Host, "run.app")
	}
}
