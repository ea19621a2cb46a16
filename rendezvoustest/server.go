// Package rendezvoustest provides an in-memory rendezvous point mirroring
// the production server's HTTP surface, for exercising the client against
// real round trips.
package rendezvoustest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	cryptoRand "crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/berkmancenter/rendezvous-client/crypto"
	"github.com/berkmancenter/rendezvous-client/disclosure"
	"github.com/berkmancenter/rendezvous-client/types"
)

type challenge struct {
	token               []byte
	nonce               []byte
	ephemeralPrivateKey crypto.PrivateKey
}

// Server is one in-memory rendezvous point. Zero-value fault flags make it
// behave like a healthy production server that releases inbox groups as soon
// as a single disclosure is present.
type Server struct {
	// FailSubmissions makes POST /disclose return 500.
	FailSubmissions bool
	// FailDeletes makes DELETE /inbox/... return 500.
	FailDeletes bool
	// ReleaseThreshold withholds an organization's inbox group until it
	// holds at least this many disclosures, like the production batching
	// gate. Defaults to 1.
	ReleaseThreshold int

	organization string
	signingKey   *ecdsa.PrivateKey
	server       *httptest.Server

	mu          sync.Mutex
	recipients  map[string]string                                           // publicKeyBase64 -> name
	challenges  map[string]map[string]challenge                             // urlKey -> nonce -> challenge
	disclosures map[string]map[string]map[string]disclosure.VerifiableShare // rawKey -> org -> disclosureID -> share
}

// NewServer starts a rendezvous point issuing credentials for the given
// organization. Callers must Close it.
func NewServer(organization string) *Server {
	signingKey, err := ecdsa.GenerateKey(elliptic.P256(), cryptoRand.Reader)
	if err != nil {
		panic(err)
	}

	s := &Server{
		ReleaseThreshold: 1,
		organization:     organization,
		signingKey:       signingKey,
		recipients:       map[string]string{},
		challenges:       map[string]map[string]challenge{},
		disclosures:      map[string]map[string]map[string]disclosure.VerifiableShare{},
	}

	e := echo.New()
	e.HideBanner = true
	e.GET("/credential", s.getCredential)
	e.POST("/disclose", s.postDisclose, echojwt.WithConfig(echojwt.Config{
		SigningKey:    &signingKey.PublicKey,
		SigningMethod: "ES256",
	}))
	e.POST("/register", s.postRegister)
	e.GET("/recipients", s.getRecipients)
	e.GET("/inbox/:key/challenge", s.getInboxChallenge)
	e.GET("/inbox/:key", s.getInbox, s.challengeAuth)
	e.DELETE("/inbox/:key/:id", s.deleteInboxID, s.challengeAuth)

	s.server = httptest.NewServer(e)
	return s
}

// URL returns the server's base URL.
func (s *Server) URL() *url.URL {
	u, err := url.Parse(s.server.URL)
	if err != nil {
		panic(err)
	}
	return u
}

func (s *Server) Close() {
	s.server.Close()
}

func (s *Server) getCredential(c echo.Context) error {
	claims := jwt.MapClaims{
		"org": s.organization,
		"exp": time.Now().Add(48 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signedToken, err := token.SignedString(s.signingKey)
	if err != nil {
		return c.String(http.StatusInternalServerError, "could not sign token")
	}
	return c.JSON(http.StatusOK, types.CredentialResponse{
		Credential:   signedToken,
		Organization: s.organization,
	})
}

func (s *Server) postDisclose(c echo.Context) error {
	if s.FailSubmissions {
		return c.String(http.StatusInternalServerError, "submission rejected")
	}

	var req types.DisclosureRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}

	user := c.Get("user").(*jwt.Token)
	claims := user.Claims.(jwt.MapClaims)
	org := claims["org"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(req.Recipient)
	if s.disclosures[key] == nil {
		s.disclosures[key] = make(map[string]map[string]disclosure.VerifiableShare)
	}
	if s.disclosures[key][org] == nil {
		s.disclosures[key][org] = make(map[string]disclosure.VerifiableShare)
	}
	s.disclosures[key][org][req.ID] = req.Share
	return c.String(http.StatusOK, "transmission successful")
}

func (s *Server) postRegister(c echo.Context) error {
	var r types.Recipient
	if err := c.Bind(&r); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[r.PublicKey] = r.Name
	return c.String(http.StatusOK, "ok")
}

func (s *Server) getRecipients(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []types.Recipient{}
	for key, name := range s.recipients {
		result = append(result, types.Recipient{Name: name, PublicKey: key})
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getInboxChallenge(c echo.Context) error {
	key := c.Param("key")

	token := make([]byte, 32)
	nonce := make([]byte, 32)
	if _, err := cryptoRand.Read(token); err != nil {
		return c.String(http.StatusInternalServerError, "failed to generate challenge")
	}
	if _, err := cryptoRand.Read(nonce); err != nil {
		return c.String(http.StatusInternalServerError, "failed to generate challenge")
	}
	ephemeral, err := crypto.GenerateKey()
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to generate challenge")
	}
	ephemeralPub, err := ephemeral.Public()
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to generate challenge")
	}

	s.mu.Lock()
	if s.challenges[key] == nil {
		s.challenges[key] = make(map[string]challenge)
	}
	s.challenges[key][base64.StdEncoding.EncodeToString(nonce)] = challenge{
		token:               token,
		nonce:               nonce,
		ephemeralPrivateKey: ephemeral,
	}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, types.InboxChallengeResponse{
		Token:     token,
		Nonce:     nonce,
		PublicKey: ephemeralPub,
	})
}

func (s *Server) challengeAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := c.Param("key")
		bearer := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
		if err := s.verifyChallenge(key, bearer); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, err)
		}
		return next(c)
	}
}

func (s *Server) verifyChallenge(urlKey string, bearer string) error {
	authBytes, err := base64.StdEncoding.DecodeString(bearer)
	if err != nil {
		return fmt.Errorf("invalid base64")
	}
	var auth types.ChallengeAuth
	if err := json.Unmarshal(authBytes, &auth); err != nil {
		return fmt.Errorf("invalid auth encoding")
	}

	s.mu.Lock()
	ch, ok := s.challenges[urlKey][base64.StdEncoding.EncodeToString(auth.Nonce)]
	if ok {
		// A challenge answers exactly one request.
		delete(s.challenges[urlKey], base64.StdEncoding.EncodeToString(auth.Nonce))
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no challenge")
	}

	peerKey, err := base64.RawURLEncoding.DecodeString(urlKey)
	if err != nil {
		return fmt.Errorf("invalid public key")
	}
	sharedKey, err := crypto.SharedKey(ch.ephemeralPrivateKey, peerKey, nil)
	if err != nil {
		return fmt.Errorf("key agreement failed")
	}
	decrypted, err := crypto.Open(sharedKey, auth.EncryptedToken)
	if err != nil || string(decrypted) != string(ch.token) {
		return fmt.Errorf("challenge failed")
	}
	return nil
}

func (s *Server) getInbox(c echo.Context) error {
	key, err := base64.RawURLEncoding.DecodeString(c.Param("key"))
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid key encoding")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	result := []types.InboxResponse{}
	for org, values := range s.disclosures[string(key)] {
		if len(values) >= s.ReleaseThreshold {
			for id, share := range values {
				result = append(result, types.InboxResponse{ID: id, Org: org, Share: share})
			}
		}
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) deleteInboxID(c echo.Context) error {
	if s.FailDeletes {
		return c.String(http.StatusInternalServerError, "deletion rejected")
	}

	key, err := base64.RawURLEncoding.DecodeString(c.Param("key"))
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid key encoding")
	}
	id := c.Param("id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if orgs, ok := s.disclosures[string(key)]; ok {
		for org, idMap := range orgs {
			if _, exists := idMap[id]; exists {
				delete(idMap, id)
				if len(idMap) == 0 {
					delete(orgs, org)
				}
			}
		}
		if len(orgs) == 0 {
			delete(s.disclosures, string(key))
		}
	}
	return c.String(http.StatusOK, "ok")
}

// AddRecipient seeds the directory without going through the HTTP surface.
func (s *Server) AddRecipient(name string, publicKey crypto.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recipients[base64.StdEncoding.EncodeToString(publicKey)] = name
}

// DisclosureCount reports how many shares are stored for the recipient.
func (s *Server) DisclosureCount(publicKey crypto.PublicKey) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, idMap := range s.disclosures[string(publicKey)] {
		count += len(idMap)
	}
	return count
}

// CorruptShares flips a bit in every stored share for the recipient,
// simulating a misbehaving rendezvous point.
func (s *Server) CorruptShares(publicKey crypto.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idMap := range s.disclosures[string(publicKey)] {
		for id, share := range idMap {
			data := append([]byte(nil), share.Data...)
			data[len(data)-1] ^= 0x01
			share.Data = data
			idMap[id] = share
		}
	}
}
