package sqlite

import (
	"context"
	"time"

	"github.com/driftboard/handoff/internal/handoff/domain"
	"github.com/driftboard/handoff/internal/handoff/store"
)

type invitationsRepo struct {
	db dbtx
}

func (r *invitationsRepo) CreateInvitation(ctx context.Context, inv domain.Invitation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO invitations (id, token_fingerprint, created_by, note, expires_at, accepted, accepted_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.TokenFingerprint, inv.CreatedBy, inv.Note,
		inv.ExpiresAt.UTC(), inv.Accepted, inv.AcceptedBy,
		inv.CreatedAt.UTC(), inv.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *invitationsRepo) GetActiveInvitationByFingerprint(ctx context.Context, fingerprint string) (domain.Invitation, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, token_fingerprint, created_by, note, expires_at, accepted, accepted_by, created_at, updated_at
		FROM invitations
		WHERE token_fingerprint = ? AND accepted = 0 AND expires_at > ?`,
		fingerprint, time.Now().UTC(),
	)

	var inv domain.Invitation
	err := row.Scan(
		&inv.ID, &inv.TokenFingerprint, &inv.CreatedBy, &inv.Note,
		&inv.ExpiresAt, &inv.Accepted, &inv.AcceptedBy,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return domain.Invitation{}, mapNotFound(err)
	}
	return inv, nil
}

func (r *invitationsRepo) MarkInvitationAccepted(ctx context.Context, invitationID string, acceptedBy string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invitations
		SET accepted = 1, accepted_by = ?, updated_at = ?
		WHERE id = ? AND accepted = 0`,
		acceptedBy, time.Now().UTC(), invitationID,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT 1 FROM invitations WHERE id = ?`, invitationID,
	).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

func (r *invitationsRepo) DeleteExpiredInvitations(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM invitations WHERE expires_at <= ?`, time.Now().UTC())
	return err
}
