package ledger

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer injects the tiered auth headers: an anonymous-but-scoped API key
// plus a short-lived signed host-identity token. Callers treat it as an
// opaque header concern.
type Signer struct {
	apiKey     string
	hostSecret string
	now        func() time.Time
}

// NewSigner builds a signer; an empty apiKey leaves the signer in
// not-configured state.
func NewSigner(apiKey, hostSecret string) *Signer {
	return &Signer{
		apiKey:     strings.TrimSpace(apiKey),
		hostSecret: strings.TrimSpace(hostSecret),
		now:        time.Now,
	}
}

// Configured reports whether write access is available.
func (s *Signer) Configured() bool {
	return s != nil && s.apiKey != ""
}

// Apply sets the auth headers on a request.
func (s *Signer) Apply(req *http.Request, username string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	req.Header.Set("X-Api-Key", s.apiKey)
	if s.hostSecret == "" {
		return nil
	}

	now := s.now()
	claims := jwt.MapClaims{
		"iss": "finflow",
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.hostSecret))
	if err != nil {
		return err
	}
	req.Header.Set("X-Host-Identity", signed)
	return nil
}
