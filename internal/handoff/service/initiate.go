package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/driftboard/handoff/internal/handoff/domain"
	"github.com/driftboard/handoff/pkg/cryptox"
	"github.com/driftboard/handoff/pkg/slogx"
)

// InitiateResult is handed back to the initiating client. The session ID
// is its reclaim handle; the authorize URL is opened in a system browser.
type InitiateResult struct {
	SessionID    string
	AuthorizeURL string
	ExpiresAt    time.Time
}

// Initiate starts a handoff: it records the client's challenge
// commitment, mints a correlation token for the provider state
// parameter, and returns the provider authorize URL.
func (s *HandoffService) Initiate(ctx context.Context, providerName, challenge, returnTo string) (InitiateResult, error) {
	log := slogx.FromContext(ctx)

	// 1. The provider must be one of the configured adapters.
	adapter, err := s.Providers.Get(providerName)
	if err != nil {
		log.Warn("handoff initiation with unknown provider",
			slog.String("provider", providerName),
		)
		return InitiateResult{}, ErrUnsupportedProvider
	}

	// 2. The challenge must be a full hex SHA-256 commitment. Anything
	// else can never be matched by a verifier and just burns a provider
	// round-trip.
	if !validChallenge(challenge) {
		log.Warn("handoff initiation with malformed challenge",
			slog.String("provider", providerName),
			slog.Int("challenge_len", len(challenge)),
		)
		return InitiateResult{}, ErrWeakChallenge
	}

	// 3. return_to is only honoured when it sits under an allow-listed prefix.
	if returnTo != "" && !s.allowedReturnTarget(returnTo) {
		log.Warn("handoff initiation with disallowed return target",
			slog.String("provider", providerName),
			slog.String("return_to", returnTo),
		)
		return InitiateResult{}, ErrInvalidReturnTarget
	}

	sessionID, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		log.Error("failed to generate session id", slog.Any("error", err))
		return InitiateResult{}, err
	}
	correlationToken, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		log.Error("failed to generate correlation token", slog.Any("error", err))
		return InitiateResult{}, err
	}

	now := time.Now().UTC()
	session := domain.Session{
		ID:               sessionID,
		Provider:         adapter.Name(),
		Challenge:        challenge,
		CorrelationToken: correlationToken,
		ReturnTo:         returnTo,
		State:            domain.SessionPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.sessionTTL()),
	}

	if err := s.Store.Sessions().CreateSession(ctx, session); err != nil {
		log.Error("failed to create handoff session",
			slog.String("provider", providerName),
			slog.Any("error", err),
		)
		return InitiateResult{}, err
	}

	log.Debug("handoff session created",
		slog.String("provider", adapter.Name()),
		slog.Time("expires_at", session.ExpiresAt),
	)

	// The correlation token rides in the provider state parameter; the
	// session ID never does.
	return InitiateResult{
		SessionID:    sessionID,
		AuthorizeURL: adapter.AuthorizeURL(correlationToken),
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// validChallenge accepts exactly the output shape of the commitment
// transform: 64 lowercase hex characters.
func validChallenge(challenge string) bool {
	if len(challenge) != 64 {
		return false
	}
	for _, c := range challenge {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func (s *HandoffService) allowedReturnTarget(returnTo string) bool {
	for _, prefix := range s.AllowedReturnTargets {
		if prefix != "" && strings.HasPrefix(returnTo, prefix) {
			return true
		}
	}
	return false
}
