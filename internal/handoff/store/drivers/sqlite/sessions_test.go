package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/driftboard/handoff/internal/handoff/domain"
	"github.com/driftboard/handoff/internal/handoff/store"
	"github.com/driftboard/handoff/internal/handoff/store/drivers/sqlite"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())

	t.Cleanup(func() { _ = s.Close() })
	return s
}

func pendingSession(id, correlationToken string, ttl time.Duration) domain.Session {
	now := time.Now().UTC()
	return domain.Session{
		ID:               id,
		Provider:         "github",
		Challenge:        "0000000000000000000000000000000000000000000000000000000000000000",
		CorrelationToken: correlationToken,
		ReturnTo:         "https://app.example.com/done",
		State:            domain.SessionPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
}

func TestSessionsCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := pendingSession("sess-1", "corr-1", time.Minute)
	require.NoError(t, s.Sessions().CreateSession(ctx, sess))

	got, err := s.Sessions().GetSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, domain.SessionPending, got.State)
	require.Equal(t, sess.Challenge, got.Challenge)
	require.Equal(t, sess.CorrelationToken, got.CorrelationToken)

	byToken, err := s.Sessions().GetSessionByCorrelationToken(ctx, "corr-1")
	require.NoError(t, err)
	require.Equal(t, "sess-1", byToken.ID)

	_, err = s.Sessions().GetSessionByID(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionsCorrelationTokenUnique(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Sessions().CreateSession(ctx, pendingSession("sess-1", "corr-dup", time.Minute)))

	err := s.Sessions().CreateSession(ctx, pendingSession("sess-2", "corr-dup", time.Minute))
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestSessionsTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Sessions().CreateSession(ctx, pendingSession("sess-1", "corr-1", time.Minute)))

	err := s.Sessions().TransitionSession(ctx, "sess-1", domain.SessionPending, domain.SessionAuthorized, store.SessionUpdate{
		ProviderSubject: "12345",
		Email:           "dev@example.com",
		Login:           "dev",
		SealedToken:     []byte("sealed"),
	})
	require.NoError(t, err)

	got, err := s.Sessions().GetSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, domain.SessionAuthorized, got.State)
	require.Equal(t, "12345", got.ProviderSubject)
	require.Equal(t, []byte("sealed"), got.SealedToken)

	// Redemption wipes the sealed credential alongside the state change.
	err = s.Sessions().TransitionSession(ctx, "sess-1", domain.SessionAuthorized, domain.SessionRedeemed, store.SessionUpdate{
		ClearSealedToken: true,
	})
	require.NoError(t, err)

	got, err = s.Sessions().GetSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, domain.SessionRedeemed, got.State)
	require.Empty(t, got.SealedToken)

	// Repeating the same transition must now fail: the guard no longer matches.
	err = s.Sessions().TransitionSession(ctx, "sess-1", domain.SessionPending, domain.SessionAuthorized, store.SessionUpdate{})
	require.ErrorIs(t, err, store.ErrConflict)

	// Unknown rows are not conflicts.
	err = s.Sessions().TransitionSession(ctx, "nope", domain.SessionPending, domain.SessionAuthorized, store.SessionUpdate{})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionsTransitionPreservesFieldsOnFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Sessions().CreateSession(ctx, pendingSession("sess-1", "corr-1", time.Minute)))
	require.NoError(t, s.Sessions().TransitionSession(ctx, "sess-1", domain.SessionPending, domain.SessionAuthorized, store.SessionUpdate{
		ProviderSubject: "12345",
		SealedToken:     []byte("sealed"),
	}))

	require.NoError(t, s.Sessions().TransitionSession(ctx, "sess-1", domain.SessionAuthorized, domain.SessionFailed, store.SessionUpdate{
		FailureCode: domain.FailureAttemptsExhausted,
	}))

	got, err := s.Sessions().GetSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, domain.SessionFailed, got.State)
	require.Equal(t, domain.FailureAttemptsExhausted, got.FailureCode)
	require.Equal(t, "12345", got.ProviderSubject, "identity fields survive the failure transition")
}

func TestSessionsLazyExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Sessions().CreateSession(ctx, pendingSession("sess-1", "corr-1", -time.Second)))

	got, err := s.Sessions().GetSessionByID(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, domain.SessionExpired, got.State)

	// Transitions against an overdue row lose to the TTL guard.
	err = s.Sessions().TransitionSession(ctx, "sess-1", domain.SessionPending, domain.SessionAuthorized, store.SessionUpdate{})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestSessionsIncrementRedeemAttempts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Sessions().CreateSession(ctx, pendingSession("sess-1", "corr-1", time.Minute)))

	for want := 1; want <= 3; want++ {
		got, err := s.Sessions().IncrementRedeemAttempts(ctx, "sess-1")
		require.NoError(t, err)
		require.Equal(t, want, got.Attempts)
	}

	_, err := s.Sessions().IncrementRedeemAttempts(ctx, "nope")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSessionsHousekeeping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Sessions().CreateSession(ctx, pendingSession("overdue", "corr-1", -time.Second)))
	require.NoError(t, s.Sessions().CreateSession(ctx, pendingSession("fresh", "corr-2", time.Minute)))

	moved, err := s.Sessions().ExpireOverdueSessions(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, moved)

	removed, err := s.Sessions().DeleteTerminalSessions(ctx, time.Now().UTC())
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	_, err = s.Sessions().GetSessionByID(ctx, "overdue")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.Sessions().GetSessionByID(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, domain.SessionPending, got.State)
}
