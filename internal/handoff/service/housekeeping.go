package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/driftboard/handoff/internal/handoff/store"
)

// HousekeepingService periodically sweeps the session and invitation
// tables: overdue sessions are expired with the same guarded transition
// every other writer uses, and terminal rows are deleted once they have
// no remaining diagnostic value.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Retention is how long terminal session rows are kept after their
	// deadline before deletion.
	Retention time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given
// interval. If interval is 0 or negative, defaults to 1 minute; sessions
// are minutes-lived so sweeping hourly would leave stale rows visible.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval, retention time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Minute
	}
	if retention <= 0 {
		retention = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:     store,
		Logger:    logger,
		Interval:  interval,
		Retention: retention,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs the sweep.
// Non-blocking; call Stop() to gracefully shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress sweep.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run a sweep immediately on startup
	s.Sweep()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-s.stopCh:
			return
		}
	}
}

// Sweep performs one housekeeping pass. Each step is independent -
// failures in one won't stop the others.
func (s *HousekeepingService) Sweep() {
	ctx := context.Background()

	expired, err := s.Store.Sessions().ExpireOverdueSessions(ctx)
	if err != nil {
		s.Logger.Error("failed to expire overdue sessions", "error", err)
	} else if expired > 0 {
		s.Logger.Info("expired overdue sessions", "count", expired)
	}

	cutoff := time.Now().UTC().Add(-s.Retention)
	removed, err := s.Store.Sessions().DeleteTerminalSessions(ctx, cutoff)
	if err != nil {
		s.Logger.Error("failed to delete terminal sessions", "error", err)
	} else if removed > 0 {
		s.Logger.Debug("deleted terminal sessions", "count", removed)
	}

	if err := s.Store.Invitations().DeleteExpiredInvitations(ctx); err != nil {
		s.Logger.Error("failed to delete expired invitations", "error", err)
	}
}
