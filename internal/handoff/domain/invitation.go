package domain

import "time"

// Invitation gates first-time sign-in. Invitations are minted by an
// operator, fetched by token for display, and accepted exactly once by
// an authenticated subject.
type Invitation struct {
	ID               string // ULID
	TokenFingerprint string // fingerprint of the invitation token, never the token itself
	CreatedBy        string // subject that minted the invitation
	Note             string // free-form operator note shown to the invitee
	ExpiresAt        time.Time
	Accepted         bool
	AcceptedBy       string // subject that accepted, empty until accepted
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the invitation can no longer be accepted.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}
