package handoffsdk

import (
	"time"

	"github.com/driftboard/handoff/pkg/jwtx"
)

// ErrorResponse is the uniform JSON error body.
type ErrorResponse struct {
	// Error is the machine-readable error code (e.g. "invalid_request",
	// "not_authorized_yet").
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error
	ErrorDescription string `json:"error_description"`
}

// InitRequest starts a handoff. AppChallenge is the lowercase hex
// SHA-256 commitment to a verifier the client keeps to itself.
type InitRequest struct {
	Provider     string `json:"provider"`
	AppChallenge string `json:"app_challenge"`
	ReturnTo     string `json:"return_to,omitempty"`
}

// InitResponse hands back the reclaim handle and the URL to open in the
// system browser.
type InitResponse struct {
	HandoffID    string    `json:"handoff_id"`
	AuthorizeURL string    `json:"authorize_url"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// RedeemRequest reclaims a completed handoff with the original verifier.
type RedeemRequest struct {
	HandoffID   string `json:"handoff_id"`
	AppVerifier string `json:"app_verifier"`
}

// RedeemResponse carries the application access token. Returned at most
// once per handoff.
type RedeemResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`

	Subject  string `json:"subject"`
	Provider string `json:"provider"`
	Email    string `json:"email,omitempty"`
	Login    string `json:"login,omitempty"`
	Name     string `json:"name,omitempty"`
}

// InvitationMintRequest creates a new invitation.
type InvitationMintRequest struct {
	Note string `json:"note,omitempty"`
}

// InvitationMintResponse returns the raw invitation token exactly once.
type InvitationMintResponse struct {
	InvitationToken string    `json:"invitation_token"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// InvitationResponse is the public view of an invitation.
type InvitationResponse struct {
	Note      string    `json:"note,omitempty"`
	CreatedBy string    `json:"created_by"`
	ExpiresAt time.Time `json:"expires_at"`
	Accepted  bool      `json:"accepted"`
}

// HealthChecks reports the status of critical dependencies.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}

// HealthResponse is returned by the livez and readyz endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// JWKSResponse is the JSON Web Key Set document.
type JWKSResponse = jwtx.JWKS
