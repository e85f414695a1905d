package store

import (
	"context"
	"errors"
	"time"

	"github.com/driftboard/handoff/internal/handoff/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when a guarded state transition finds the
	// row in a different state than the caller asserted. It is how the
	// store distinguishes "lost the race" from "never existed".
	ErrConflict = errors.New("store: state conflict")
)

// Store is the root data access interface. Concrete drivers (sqlite for
// now) implement this. Sub-repositories keep concerns tidy and testable.
type Store interface {
	Sessions() Sessions
	Invitations() Invitations

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources (optional for sqlite).
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// SessionUpdate carries the fields written when a session moves forward.
// Nil/zero fields that do not apply to a transition are left untouched.
type SessionUpdate struct {
	ProviderSubject string
	Email           string
	Login           string
	DisplayName     string
	SealedToken     []byte
	FailureCode     string

	// ClearSealedToken wipes the stored provider token as part of the
	// transition. Set on redemption so the credential never outlives
	// its single use.
	ClearSealedToken bool
}

type Sessions interface {
	// CreateSession inserts a new pending session. The session ID and
	// correlation token are both unique; a collision returns ErrAlreadyExists.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByID returns a session regardless of state. A
	// non-terminal row past its TTL is lazily flipped to expired first,
	// so callers always observe State == SessionExpired rather than a
	// stale pending/authorized state.
	GetSessionByID(ctx context.Context, id string) (domain.Session, error)

	// GetSessionByCorrelationToken looks up the session bound to a
	// provider callback. Same lazy-expiry behaviour as GetSessionByID.
	GetSessionByCorrelationToken(ctx context.Context, token string) (domain.Session, error)

	// TransitionSession atomically moves a session from one state to
	// another, applying upd. The update is guarded on the current state
	// and TTL; if the row exists but the guard fails it returns
	// ErrConflict, if the row is gone it returns ErrNotFound.
	TransitionSession(ctx context.Context, id string, from, to domain.SessionState, upd SessionUpdate) error

	// IncrementRedeemAttempts bumps the failed redemption counter and
	// returns the session with the new count.
	IncrementRedeemAttempts(ctx context.Context, id string) (domain.Session, error)

	// DeleteSession removes a session by ID.
	DeleteSession(ctx context.Context, id string) error

	// ExpireOverdueSessions flips every non-terminal session past its
	// TTL to the expired state. Returns the number of rows moved.
	ExpireOverdueSessions(ctx context.Context) (int64, error)

	// DeleteTerminalSessions removes terminal rows older than the cutoff
	// (housekeeping). Returns the number of rows removed.
	DeleteTerminalSessions(ctx context.Context, olderThan time.Time) (int64, error)
}

type Invitations interface {
	// CreateInvitation writes a new invitation (token_fingerprint is a
	// SHA-256 fingerprint of the opaque invitation token).
	CreateInvitation(ctx context.Context, inv domain.Invitation) error

	// GetActiveInvitationByFingerprint returns a not-accepted, not-expired
	// invitation by fingerprint.
	GetActiveInvitationByFingerprint(ctx context.Context, fingerprint string) (domain.Invitation, error)

	// MarkInvitationAccepted sets accepted=1, accepted_by=subject,
	// updated_at=now. Guarded on accepted=0; returns ErrConflict if the
	// invitation was already accepted.
	MarkInvitationAccepted(ctx context.Context, invitationID string, acceptedBy string) error

	// DeleteExpiredInvitations is housekeeping.
	DeleteExpiredInvitations(ctx context.Context) error
}
