package sqlite

import (
	"context"
	"time"

	"github.com/driftboard/handoff/internal/handoff/domain"
	"github.com/driftboard/handoff/internal/handoff/store"
)

type sessionsRepo struct {
	db dbtx
}

const sessionColumns = `id, provider, challenge, correlation_token, return_to, state,
	provider_subject, email, login, display_name, sealed_token, failure_code,
	attempts, created_at, expires_at`

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO handoff_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.Provider, s.Challenge, s.CorrelationToken, s.ReturnTo, string(s.State),
		s.ProviderSubject, s.Email, s.Login, s.DisplayName, s.SealedToken, s.FailureCode,
		s.Attempts, s.CreatedAt.UTC(), s.ExpiresAt.UTC(),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM handoff_sessions WHERE id = ?`, id)
}

func (r *sessionsRepo) GetSessionByCorrelationToken(ctx context.Context, token string) (domain.Session, error) {
	return r.getSession(ctx, `SELECT `+sessionColumns+` FROM handoff_sessions WHERE correlation_token = ?`, token)
}

func (r *sessionsRepo) getSession(ctx context.Context, query string, arg string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx, query, arg)

	var s domain.Session
	var state string
	err := row.Scan(
		&s.ID, &s.Provider, &s.Challenge, &s.CorrelationToken, &s.ReturnTo, &state,
		&s.ProviderSubject, &s.Email, &s.Login, &s.DisplayName, &s.SealedToken, &s.FailureCode,
		&s.Attempts, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.State = domain.SessionState(state)

	// Lazy expiry: an overdue non-terminal row is flipped so callers
	// never act on a stale pending/authorized state.
	if now := time.Now().UTC(); !s.State.Terminal() && s.Expired(now) {
		if _, err := r.db.ExecContext(ctx, `
			UPDATE handoff_sessions SET state = ?
			WHERE id = ? AND state = ?`,
			string(domain.SessionExpired), s.ID, string(s.State),
		); err != nil {
			return domain.Session{}, err
		}
		s.State = domain.SessionExpired
	}

	return s, nil
}

// TransitionSession is the single write path for session progress. The
// guard on state and TTL makes concurrent racers lose cleanly: exactly
// one UPDATE can match, everyone else sees zero rows and gets ErrConflict.
func (r *sessionsRepo) TransitionSession(ctx context.Context, id string, from, to domain.SessionState, upd store.SessionUpdate) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE handoff_sessions
		SET state            = ?,
		    provider_subject = COALESCE(NULLIF(?, ''), provider_subject),
		    email            = COALESCE(NULLIF(?, ''), email),
		    login            = COALESCE(NULLIF(?, ''), login),
		    display_name     = COALESCE(NULLIF(?, ''), display_name),
		    sealed_token     = CASE WHEN ? THEN NULL ELSE COALESCE(?, sealed_token) END,
		    failure_code     = COALESCE(NULLIF(?, ''), failure_code)
		WHERE id = ? AND state = ? AND expires_at > ?`,
		string(to),
		upd.ProviderSubject, upd.Email, upd.Login, upd.DisplayName,
		upd.ClearSealedToken, upd.SealedToken, upd.FailureCode,
		id, string(from), time.Now().UTC(),
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

	// Guard failed: distinguish a missing row from a lost race.
	var exists int
	err = r.db.QueryRowContext(ctx,
		`SELECT 1 FROM handoff_sessions WHERE id = ?`, id,
	).Scan(&exists)
	if err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

func (r *sessionsRepo) IncrementRedeemAttempts(ctx context.Context, id string) (domain.Session, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE handoff_sessions SET attempts = attempts + 1 WHERE id = ?`, id)
	if err != nil {
		return domain.Session{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.Session{}, err
	}
	if n == 0 {
		return domain.Session{}, store.ErrNotFound
	}
	return r.GetSessionByID(ctx, id)
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM handoff_sessions WHERE id = ?`, id)
	return err
}

func (r *sessionsRepo) ExpireOverdueSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE handoff_sessions SET state = ?
		WHERE state IN (?, ?) AND expires_at <= ?`,
		string(domain.SessionExpired),
		string(domain.SessionPending), string(domain.SessionAuthorized),
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sessionsRepo) DeleteTerminalSessions(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM handoff_sessions
		WHERE state IN (?, ?, ?) AND expires_at <= ?`,
		string(domain.SessionRedeemed), string(domain.SessionFailed), string(domain.SessionExpired),
		olderThan.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
