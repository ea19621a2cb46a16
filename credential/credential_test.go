package credential

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	cryptoRand "crypto/rand"
	"net/url"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), cryptoRand.Reader)
	require.NoError(t, err)
	token, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func issuer(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestClaimsDecoded(t *testing.T) {
	issued := time.Now().Truncate(time.Second)
	expiry := issued.Add(48 * time.Hour)
	raw := signedToken(t, jwt.MapClaims{
		"org": "Acme Corp",
		"iat": issued.Unix(),
		"exp": expiry.Unix(),
	})

	c := New(issuer(t, "https://rp1.example.com"), raw)
	claims := c.Claims()
	require.NotNil(t, claims)
	assert.Equal(t, "Acme Corp", claims.Organization)
	assert.Equal(t, issued.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, expiry.Unix(), claims.Expiry.Unix())
}

func TestMalformedTokenYieldsNilClaims(t *testing.T) {
	u := issuer(t, "https://rp1.example.com")

	for _, raw := range []string{
		"",
		"not-a-jwt",
		"only.two",
		"!!!.!!!.!!!",
		signedToken(t, jwt.MapClaims{"iat": time.Now().Unix(), "exp": time.Now().Unix()}), // missing org
		signedToken(t, jwt.MapClaims{"org": "Acme", "exp": time.Now().Unix()}),            // missing iat
		signedToken(t, jwt.MapClaims{"org": "Acme", "iat": time.Now().Unix()}),            // missing exp
	} {
		c := New(u, raw)
		assert.Nil(t, c.Claims(), "token %q", raw)
		// The credential stays usable as a bearer token regardless.
		assert.Equal(t, "Bearer "+raw, c.AuthorizationHeaderValue())
	}
}

func TestAuthorizationHeaderValue(t *testing.T) {
	c := New(issuer(t, "https://rp1.example.com"), "opaque-token")
	assert.Equal(t, "Bearer opaque-token", c.AuthorizationHeaderValue())
}

func TestCommonOrganization(t *testing.T) {
	u := issuer(t, "https://rp1.example.com")
	now := time.Now()
	acme1 := New(u, signedToken(t, jwt.MapClaims{"org": "Acme", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()}))
	acme2 := New(u, signedToken(t, jwt.MapClaims{"org": "Acme", "iat": now.Unix(), "exp": now.Add(2 * time.Hour).Unix()}))
	other := New(u, signedToken(t, jwt.MapClaims{"org": "Globex", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()}))

	assert.Equal(t, "Acme", Set{acme1, acme2}.CommonOrganization())
	assert.Equal(t, "", Set{acme1, other}.CommonOrganization())
	assert.Equal(t, "", Set{}.CommonOrganization())
	assert.Equal(t, "", Set{New(u, "junk")}.CommonOrganization())
}

func TestSoonestExpiration(t *testing.T) {
	u := issuer(t, "https://rp1.example.com")
	now := time.Now()
	early := New(u, signedToken(t, jwt.MapClaims{"org": "Acme", "iat": now.Unix(), "exp": now.Add(time.Hour).Unix()}))
	late := New(u, signedToken(t, jwt.MapClaims{"org": "Acme", "iat": now.Unix(), "exp": now.Add(3 * time.Hour).Unix()}))

	soonest, ok := Set{late, early}.SoonestExpiration()
	assert.True(t, ok)
	assert.Equal(t, now.Add(time.Hour).Unix(), soonest.Unix())

	_, ok = Set{New(u, "junk")}.SoonestExpiration()
	assert.False(t, ok)
}
