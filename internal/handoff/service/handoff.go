package service

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/driftboard/handoff/internal/handoff/provider"
	"github.com/driftboard/handoff/internal/handoff/store"
	"github.com/driftboard/handoff/pkg/cryptox"
	"github.com/driftboard/handoff/pkg/jwtx"
)

var (
	// Initiation failures (all map to 400).
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrInvalidReturnTarget = errors.New("return target not in allow-list")
	ErrWeakChallenge       = errors.New("challenge commitment is malformed or too weak")

	// Callback failures. All of them render the same generic failure
	// page to the browser; the distinctions matter only for logging and
	// for the failure code stored on the session.
	ErrInvalidState   = errors.New("callback state does not match a pending session")
	ErrProviderDenied = errors.New("provider reported an authorization error")
	ErrExchangeFailed = errors.New("code exchange or profile fetch failed")

	// Redemption failures.
	ErrSessionNotFound   = errors.New("session not found or expired")
	ErrNotAuthorizedYet  = errors.New("session not authorized yet")
	ErrChallengeMismatch = errors.New("verifier does not match challenge commitment")
	ErrSessionConsumed   = errors.New("session already redeemed or failed")
)

// DefaultMaxRedeemAttempts bounds verifier guesses before a session is
// force-failed. Enough for a client bug or two, far too few for brute
// force.
const DefaultMaxRedeemAttempts = 5

// DefaultSessionTTL is how long a handoff may stay in flight. Long
// enough for a human to complete a browser login, short enough that
// abandoned sessions don't pile up.
const DefaultSessionTTL = 10 * time.Minute

// AccessTokenScopes is the fixed scope set minted at redemption.
var AccessTokenScopes = []string{"invitations:read", "invitations:write"}

// HandoffService drives the full handoff lifecycle: initiation, the
// provider callback, and redemption.
type HandoffService struct {
	Store     store.Store
	Providers *provider.Registry
	Signer    jwtx.Signer

	Issuer   string
	Audience []string

	SessionTTL        time.Duration
	AccessTokenTTL    time.Duration
	MaxRedeemAttempts int

	// AllowedReturnTargets is the prefix allow-list for return_to. An
	// empty list rejects every non-empty return target.
	AllowedReturnTargets []string
}

func (s *HandoffService) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultSessionTTL
}

func (s *HandoffService) accessTokenTTL() time.Duration {
	if s.AccessTokenTTL > 0 {
		return s.AccessTokenTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *HandoffService) maxRedeemAttempts() int {
	if s.MaxRedeemAttempts > 0 {
		return s.MaxRedeemAttempts
	}
	return DefaultMaxRedeemAttempts
}

// sealedGrant is the JSON shape sealed into the session row between the
// callback and redemption. It never leaves the broker.
type sealedGrant struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitzero"`
}

func sealGrant(g provider.Grant) ([]byte, error) {
	raw, err := json.Marshal(sealedGrant{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		TokenType:    g.TokenType,
		Expiry:       g.Expiry,
	})
	if err != nil {
		return nil, err
	}
	return cryptox.Seal(raw)
}
