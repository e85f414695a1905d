package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the default lifetime for application access
// tokens minted at handoff redemption. Short-lived: downstream services are
// expected to verify against the JWKS endpoint, not to hold tokens long.
const DefaultAccessTokenTTL = 1 * time.Hour

// Claims are the application access-token claims. The subject identifies the
// authenticated principal as "{provider}:{provider_subject}".
type Claims struct {
	jwt.RegisteredClaims

	// Provider that authenticated the principal ("github", "google").
	Provider string `json:"prv,omitempty"`

	// Email as asserted by the provider. May be empty.
	Email string `json:"email,omitempty"`

	// Login is the provider-side account handle (GitHub login, Google email).
	Login string `json:"login,omitempty"`

	// Name is the display name from the provider, when available.
	Name string `json:"name,omitempty"`

	// Scopes granted to this token, e.g. "invitations:read".
	Scopes []string `json:"scopes,omitempty"`
}

// NewAccessClaims builds minimally-correct claims for a redeemed handoff.
func NewAccessClaims(
	subject, provider, email, login, name string,
	scopes []string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Provider: provider,
		Email:    email,
		Login:    login,
		Name:     name,
		Scopes:   scopes,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// ValidateIssuer checks the issuer matches the expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil // nothing to enforce
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiry ensures the token hasn't expired (exp) and isn't used
// before it is valid (nbf).
func (c *Claims) ValidateExpiry() error {
	now := time.Now().UTC()

	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}
