package domain

import "time"

// SessionState tracks where a handoff session sits in its lifecycle.
type SessionState string

const (
	SessionPending    SessionState = "pending"    // waiting for the browser leg to complete
	SessionAuthorized SessionState = "authorized" // provider identity captured, awaiting redemption
	SessionRedeemed   SessionState = "redeemed"   // credential handed back to the initiating client
	SessionFailed     SessionState = "failed"     // terminal failure, reason in FailureCode
	SessionExpired    SessionState = "expired"    // TTL elapsed before reaching a terminal state
)

// Terminal reports whether a session in this state can never transition again.
func (s SessionState) Terminal() bool {
	return s == SessionRedeemed || s == SessionFailed || s == SessionExpired
}

// Failure codes recorded on sessions that end in SessionFailed.
const (
	FailureProviderDenied    = "provider_denied"
	FailureExchangeFailed    = "exchange_failed"
	FailureAttemptsExhausted = "attempts_exhausted"
)

// Session is one browser handoff in flight. The ID doubles as the
// reclaim handle given to the initiating client; the correlation token
// rides in the provider state parameter and never leaves the browser leg.
type Session struct {
	ID               string // random URL-safe token, not a ULID
	Provider         string // provider key, e.g. "github"
	Challenge        string // hex SHA-256 commitment to the client's verifier
	CorrelationToken string // binds the provider callback to this session
	ReturnTo         string // post-login browser destination, already validated
	State            SessionState

	// Populated once the provider leg completes.
	ProviderSubject string
	Email           string
	Login           string
	DisplayName     string
	SealedToken     []byte // provider access token, sealed at rest

	FailureCode string // set only when State == SessionFailed
	Attempts    int    // failed redemption attempts so far

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session's TTL has elapsed at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
