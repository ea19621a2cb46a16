// Package credential wraps the opaque organization-issued bearer tokens
// handed out by rendezvous points.
package credential

import (
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the assertions embedded in a credential token. The signature is
// never checked client side; trust is delegated to the server accepting the
// bearer token.
type Claims struct {
	Organization string
	IssuedAt     time.Time
	Expiry       time.Time
}

// Credential is an opaque signed token together with the rendezvous point
// that issued it. The raw token leaves the package only as an Authorization
// header value.
type Credential struct {
	issuer *url.URL
	raw    string
	claims *Claims
}

// New wraps a raw token from the given issuer. Claims are decoded once here;
// a token whose claims cannot be decoded is still valid to hold and send, it
// just reports nil Claims.
func New(issuer *url.URL, raw string) Credential {
	return Credential{issuer: issuer, raw: raw, claims: decodeClaims(raw)}
}

// Issuer returns the base URL of the rendezvous point that issued the token.
func (c Credential) Issuer() *url.URL {
	return c.issuer
}

// Claims returns the decoded claims, or nil if the token is malformed.
func (c Credential) Claims() *Claims {
	return c.claims
}

// AuthorizationHeaderValue returns the bearer header value carrying the raw
// token.
func (c Credential) AuthorizationHeaderValue() string {
	return "Bearer " + c.raw
}

func decodeClaims(raw string) *Claims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil
	}
	org, ok := claims["org"].(string)
	if !ok {
		return nil
	}
	iat, err := claims.GetIssuedAt()
	if err != nil || iat == nil {
		return nil
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	return &Claims{Organization: org, IssuedAt: iat.Time, Expiry: exp.Time}
}

// Set is a collection of credentials, at most one per rendezvous point.
type Set []Credential

// CommonOrganization returns the single organization shared by every
// decodable credential in the set, or "" if there is none or they differ.
func (s Set) CommonOrganization() string {
	orgs := map[string]struct{}{}
	for _, c := range s {
		if claims := c.Claims(); claims != nil {
			orgs[claims.Organization] = struct{}{}
		}
	}
	if len(orgs) != 1 {
		return ""
	}
	for org := range orgs {
		return org
	}
	return ""
}

// SoonestExpiration returns the earliest expiry among decodable credentials.
// The second return is false when no credential carries claims.
func (s Set) SoonestExpiration() (time.Time, bool) {
	var soonest time.Time
	found := false
	for _, c := range s {
		claims := c.Claims()
		if claims == nil {
			continue
		}
		if !found || claims.Expiry.Before(soonest) {
			soonest = claims.Expiry
			found = true
		}
	}
	return soonest, found
}
