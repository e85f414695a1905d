package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/driftboard/handoff/internal/handoff/store"
	"github.com/stretchr/testify/require"
)

func TestWithTxCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Invitations().CreateInvitation(ctx, testInvitation("inv-1", "fp-1", time.Hour)); err != nil {
			return err
		}
		return tx.Invitations().MarkInvitationAccepted(ctx, "inv-1", "github:42")
	})
	require.NoError(t, err)

	// Both writes land together.
	_, err = s.Invitations().GetActiveInvitationByFingerprint(ctx, "fp-1")
	require.ErrorIs(t, err, store.ErrNotFound)
	err = s.Invitations().MarkInvitationAccepted(ctx, "inv-1", "github:43")
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Invitations().CreateInvitation(ctx, testInvitation("inv-1", "fp-1", time.Hour)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// The write inside the failed transaction never became visible.
	_, err = s.Invitations().GetActiveInvitationByFingerprint(ctx, "fp-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxRejectsNesting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		return tx.WithTx(ctx, func(store.Tx) error { return nil })
	})
	require.ErrorIs(t, err, sql.ErrTxDone)
}
