package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/driftboard/handoff/internal/handoff/domain"
	"github.com/driftboard/handoff/internal/handoff/store"
	"github.com/driftboard/handoff/pkg/cryptox"
	"github.com/driftboard/handoff/pkg/jwtx"
	"github.com/driftboard/handoff/pkg/slogx"
)

// RedeemResult is the payload a client receives exactly once per handoff.
type RedeemResult struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int

	Subject  string
	Provider string
	Email    string
	Login    string
	Name     string
}

// Redeem hands the application access token to whoever proves knowledge
// of the verifier committed at initiation. At most one caller ever
// succeeds; everyone else gets a precise refusal.
func (s *HandoffService) Redeem(ctx context.Context, sessionID, verifier string) (RedeemResult, error) {
	log := slogx.FromContext(ctx)

	session, err := s.Store.Sessions().GetSessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Debug("redeem against unknown session")
			return RedeemResult{}, ErrSessionNotFound
		}
		log.Error("failed to look up session for redemption", slog.Any("error", err))
		return RedeemResult{}, err
	}

	switch session.State {
	case domain.SessionExpired:
		// Indistinguishable from never having existed.
		log.Debug("redeem against expired session")
		return RedeemResult{}, ErrSessionNotFound

	case domain.SessionPending:
		// The client is polling before the browser leg finished. Routine.
		log.Debug("redeem before authorization",
			slog.String("provider", session.Provider),
		)
		return RedeemResult{}, ErrNotAuthorizedYet

	case domain.SessionRedeemed, domain.SessionFailed:
		log.Warn("redeem against consumed session",
			slog.String("provider", session.Provider),
			slog.String("state", string(session.State)),
		)
		return RedeemResult{}, ErrSessionConsumed

	case domain.SessionAuthorized:
		// fall through to verification below

	default:
		return RedeemResult{}, ErrSessionNotFound
	}

	// Prove knowledge of the verifier. The comparison is constant-time;
	// the commitment gives an attacker holding a stolen session ID
	// nothing to replay.
	if !cryptox.ConstantTimeEqual(cryptox.CommitVerifier(verifier), session.Challenge) {
		return RedeemResult{}, s.recordFailedAttempt(ctx, session)
	}

	// Winner takes the session: Authorized -> Redeemed, wiping the
	// sealed provider token in the same guarded write.
	err = s.Store.Sessions().TransitionSession(ctx, session.ID,
		domain.SessionAuthorized, domain.SessionRedeemed,
		store.SessionUpdate{ClearSealedToken: true})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Warn("lost redemption race",
				slog.String("provider", session.Provider),
			)
			return RedeemResult{}, ErrSessionConsumed
		}
		if errors.Is(err, store.ErrNotFound) {
			return RedeemResult{}, ErrSessionNotFound
		}
		log.Error("failed to redeem session", slog.Any("error", err))
		return RedeemResult{}, err
	}

	identity := domain.Identity{
		Provider: session.Provider,
		Subject:  session.ProviderSubject,
	}

	now := time.Now().UTC()
	ttl := s.accessTokenTTL()
	claims := jwtx.NewAccessClaims(
		identity.CanonicalSubject(),
		session.Provider,
		session.Email,
		session.Login,
		session.DisplayName,
		AccessTokenScopes,
		ttl,
		s.Issuer,
		s.Audience,
		now,
	)

	accessToken, err := s.Signer.Sign(claims)
	if err != nil {
		log.Error("failed to sign access token", slog.Any("error", err))
		return RedeemResult{}, err
	}

	log.Info("handoff redeemed",
		slog.String("provider", session.Provider),
		slog.String("subject", identity.CanonicalSubject()),
	)

	return RedeemResult{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(ttl.Seconds()),
		Subject:     identity.CanonicalSubject(),
		Provider:    session.Provider,
		Email:       session.Email,
		Login:       session.Login,
		Name:        session.DisplayName,
	}, nil
}

// recordFailedAttempt charges one attempt against the session's budget
// and force-fails it once the budget is spent. The session survives a
// mistyped verifier until then.
func (s *HandoffService) recordFailedAttempt(ctx context.Context, session domain.Session) error {
	log := slogx.FromContext(ctx)

	updated, err := s.Store.Sessions().IncrementRedeemAttempts(ctx, session.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		log.Error("failed to record redemption attempt", slog.Any("error", err))
		return err
	}

	log.Warn("challenge mismatch on redemption",
		slog.String("provider", session.Provider),
		slog.Int("attempts", updated.Attempts),
	)

	if updated.Attempts >= s.maxRedeemAttempts() {
		err := s.Store.Sessions().TransitionSession(ctx, session.ID,
			domain.SessionAuthorized, domain.SessionFailed,
			store.SessionUpdate{
				FailureCode:      domain.FailureAttemptsExhausted,
				ClearSealedToken: true,
			})
		if err != nil && !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrNotFound) {
			log.Error("failed to fail session after exhausted attempts", slog.Any("error", err))
		} else if err == nil {
			log.Warn("session failed after exhausted redemption attempts",
				slog.String("provider", session.Provider),
			)
		}
	}

	return ErrChallengeMismatch
}
