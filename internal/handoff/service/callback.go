package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/driftboard/handoff/internal/handoff/domain"
	"github.com/driftboard/handoff/internal/handoff/store"
	"github.com/driftboard/handoff/pkg/slogx"
)

// CallbackResult tells the HTTP layer where to send the browser after a
// successful provider leg.
type CallbackResult struct {
	SessionID string
	ReturnTo  string
}

// HandleCallback consumes the provider redirect. state is the
// correlation token minted at initiation; code and providerErr come
// straight from the provider's query string.
//
// On any failure the session (if one was matched) is moved to Failed
// with a failure code, and the returned error tells the handler to show
// the generic failure page. The browser never learns which step broke.
func (s *HandoffService) HandleCallback(ctx context.Context, state, code, providerErr string) (CallbackResult, error) {
	log := slogx.FromContext(ctx)

	if state == "" {
		log.Warn("callback without state parameter")
		return CallbackResult{}, ErrInvalidState
	}

	// 1. The state parameter must match a live session.
	session, err := s.Store.Sessions().GetSessionByCorrelationToken(ctx, state)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("callback with unknown state parameter")
			return CallbackResult{}, ErrInvalidState
		}
		log.Error("failed to look up session for callback", slog.Any("error", err))
		return CallbackResult{}, err
	}

	// 2. Only a pending session can accept a callback. A replayed or
	// late callback against any other state changes nothing.
	if session.State != domain.SessionPending {
		log.Warn("callback against non-pending session",
			slog.String("provider", session.Provider),
			slog.String("state", string(session.State)),
		)
		return CallbackResult{}, ErrInvalidState
	}

	// 3. The user may have declined at the provider.
	if providerErr != "" {
		log.Info("provider denied authorization",
			slog.String("provider", session.Provider),
			slog.String("provider_error", providerErr),
		)
		s.failSession(ctx, session.ID, domain.FailureProviderDenied)
		return CallbackResult{}, ErrProviderDenied
	}
	if code == "" {
		log.Warn("callback without authorization code",
			slog.String("provider", session.Provider),
		)
		s.failSession(ctx, session.ID, domain.FailureProviderDenied)
		return CallbackResult{}, ErrProviderDenied
	}

	adapter, err := s.Providers.Get(session.Provider)
	if err != nil {
		// A session for a provider that is no longer configured.
		log.Error("session references unconfigured provider",
			slog.String("provider", session.Provider),
		)
		s.failSession(ctx, session.ID, domain.FailureExchangeFailed)
		return CallbackResult{}, ErrExchangeFailed
	}

	// 4. Swap the code and resolve the identity.
	grant, err := adapter.Exchange(ctx, code)
	if err != nil {
		log.Error("code exchange failed",
			slog.String("provider", session.Provider),
			slog.Any("error", err),
		)
		s.failSession(ctx, session.ID, domain.FailureExchangeFailed)
		return CallbackResult{}, ErrExchangeFailed
	}

	identity, err := adapter.FetchIdentity(ctx, grant)
	if err != nil {
		log.Error("identity fetch failed",
			slog.String("provider", session.Provider),
			slog.Any("error", err),
		)
		s.failSession(ctx, session.ID, domain.FailureExchangeFailed)
		return CallbackResult{}, ErrExchangeFailed
	}

	sealed, err := sealGrant(grant)
	if err != nil {
		log.Error("failed to seal provider grant", slog.Any("error", err))
		s.failSession(ctx, session.ID, domain.FailureExchangeFailed)
		return CallbackResult{}, ErrExchangeFailed
	}

	// 5. Atomically move Pending -> Authorized. Losing this race (a
	// concurrent duplicate callback) leaves the winner's data intact.
	err = s.Store.Sessions().TransitionSession(ctx, session.ID,
		domain.SessionPending, domain.SessionAuthorized,
		store.SessionUpdate{
			ProviderSubject: identity.Subject,
			Email:           identity.Email,
			Login:           identity.Login,
			DisplayName:     identity.DisplayName,
			SealedToken:     sealed,
		})
	if err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			log.Warn("lost callback race",
				slog.String("provider", session.Provider),
			)
			return CallbackResult{}, ErrInvalidState
		}
		log.Error("failed to authorize session", slog.Any("error", err))
		return CallbackResult{}, err
	}

	log.Info("handoff session authorized",
		slog.String("provider", session.Provider),
		slog.String("subject", identity.CanonicalSubject()),
	)

	return CallbackResult{
		SessionID: session.ID,
		ReturnTo:  session.ReturnTo,
	}, nil
}

// failSession moves a session to Failed on a best-effort basis. The
// guarded transition means a racing success cannot be clobbered, and an
// error here never masks the original failure.
func (s *HandoffService) failSession(ctx context.Context, id, failureCode string) {
	err := s.Store.Sessions().TransitionSession(ctx, id,
		domain.SessionPending, domain.SessionFailed,
		store.SessionUpdate{FailureCode: failureCode})
	if err != nil && !errors.Is(err, store.ErrConflict) && !errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Error("failed to mark session failed",
			slog.String("failure_code", failureCode),
			slog.Any("error", err),
		)
	}
}
