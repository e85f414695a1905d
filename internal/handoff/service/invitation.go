package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/driftboard/handoff/internal/handoff/domain"
	"github.com/driftboard/handoff/internal/handoff/store"
	"github.com/driftboard/handoff/pkg/cryptox"
	"github.com/driftboard/handoff/pkg/idx"
	"github.com/driftboard/handoff/pkg/slogx"
)

var (
	ErrInvalidInvitationRequest  = errors.New("invalid invitation request")
	ErrInvitationNotFound        = errors.New("invitation not found or expired")
	ErrInvitationAlreadyAccepted = errors.New("invitation has already been accepted")
)

// DefaultInvitationTTL bounds how long a minted invitation stays valid.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// InvitationService mints and settles single-use invitations, the
// broker's only downstream contract.
type InvitationService struct {
	Store store.Store
	TTL   time.Duration
}

func (s *InvitationService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultInvitationTTL
}

// Mint creates a new invitation and returns the raw token. Only the
// fingerprint is stored.
func (s *InvitationService) Mint(ctx context.Context, createdBy, note string) (string, domain.Invitation, error) {
	log := slogx.FromContext(ctx)

	if createdBy == "" {
		return "", domain.Invitation{}, ErrInvalidInvitationRequest
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		log.Error("failed to generate invitation token", slog.Any("error", err))
		return "", domain.Invitation{}, err
	}

	now := time.Now().UTC()
	inv := domain.Invitation{
		ID:               idx.New().String(),
		TokenFingerprint: cryptox.FingerprintToken(token),
		CreatedBy:        createdBy,
		Note:             note,
		ExpiresAt:        now.Add(s.ttl()),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.Store.Invitations().CreateInvitation(ctx, inv); err != nil {
		log.Error("failed to create invitation",
			slog.String("invitation_id", inv.ID),
			slog.Any("error", err),
		)
		return "", domain.Invitation{}, err
	}

	log.Info("invitation minted",
		slog.String("invitation_id", inv.ID),
		slog.String("created_by", createdBy),
		slog.Time("expires_at", inv.ExpiresAt),
	)

	return token, inv, nil
}

// Get resolves a raw invitation token to its metadata.
func (s *InvitationService) Get(ctx context.Context, token string) (domain.Invitation, error) {
	if token == "" {
		return domain.Invitation{}, ErrInvitationNotFound
	}

	inv, err := s.Store.Invitations().GetActiveInvitationByFingerprint(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invitation{}, ErrInvitationNotFound
		}
		return domain.Invitation{}, err
	}
	return inv, nil
}

// Accept marks the invitation as used by the authenticated subject.
// Exactly one acceptance can succeed. The lookup and the acceptance run
// in one transaction so the invitation cannot change between them.
func (s *InvitationService) Accept(ctx context.Context, token, subject string) (domain.Invitation, error) {
	log := slogx.FromContext(ctx)

	if subject == "" {
		return domain.Invitation{}, ErrInvalidInvitationRequest
	}
	if token == "" {
		return domain.Invitation{}, ErrInvitationNotFound
	}
	fingerprint := cryptox.FingerprintToken(token)

	var inv domain.Invitation
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		inv, err = tx.Invitations().GetActiveInvitationByFingerprint(ctx, fingerprint)
		if err != nil {
			return err
		}
		return tx.Invitations().MarkInvitationAccepted(ctx, inv.ID, subject)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Warn("invitation acceptance race lost",
				slog.String("invitation_id", inv.ID),
			)
			return domain.Invitation{}, ErrInvitationAlreadyAccepted
		}
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invitation{}, ErrInvitationNotFound
		}
		log.Error("failed to accept invitation",
			slog.Any("error", err),
		)
		return domain.Invitation{}, err
	}

	inv.Accepted = true
	inv.AcceptedBy = subject

	log.Info("invitation accepted",
		slog.String("invitation_id", inv.ID),
		slog.String("subject", subject),
	)

	return inv, nil
}
