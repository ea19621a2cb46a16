// Package fronting disguises rendezvous traffic as requests to common CDN
// hostnames. The visible connection target, and so the TLS SNI, is the
// fronting host; the true destination rides in the encrypted application
// level Host header, which the CDN uses to route the request.
package fronting

import (
	"math/rand/v2"
	"net/http"
	"net/url"
)

// googleFrontingBases are common domains that share a CDN edge with Google
// properties.
var googleFrontingBases = []*url.URL{
	{Scheme: "https", Host: "ww.google.com"},
	{Scheme: "https", Host: "android.clients.google.com"},
	{Scheme: "https", Host: "clients3.google.com"},
	{Scheme: "https", Host: "clients4.google.com"},
}

// Wrap returns a copy of req whose connection target is frontingBase while
// the true destination is carried in the Host field. Path and query are
// preserved. The original request is left untouched.
func Wrap(req *http.Request, frontingBase *url.URL) *http.Request {
	wrapped := req.Clone(req.Context())
	wrapped.Host = req.URL.Host
	wrapped.URL.Scheme = frontingBase.Scheme
	wrapped.URL.Host = frontingBase.Host
	return wrapped
}

// WrapGoogleFronted fronts req via one of the Google CDN hosts. The front is
// drawn at random on every call, not pinned per session, so blocklisting a
// single front cannot correlate all of a client's traffic.
func WrapGoogleFronted(req *http.Request) *http.Request {
	return Wrap(req, googleFrontingBases[rand.IntN(len(googleFrontingBases))])
}

// Transport is an http.RoundTripper that fronts every outgoing request, so a
// whole http.Client can be pointed through it.
type Transport struct {
	// Base performs the fronted request; http.DefaultTransport when nil.
	Base http.RoundTripper
	// Bases overrides the fronting host pool; the Google pool when empty.
	Bases []*url.URL
}

func (t Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	bases := t.Bases
	if len(bases) == 0 {
		bases = googleFrontingBases
	}
	return base.RoundTrip(Wrap(req, bases[rand.IntN(len(bases))]))
}
