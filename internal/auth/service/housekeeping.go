package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/proptrust/internal/auth/store"
	"github.com/aussiebroadwan/proptrust/pkg/metricsx"
)

// KeySyncer reloads signing keys, retiring and generating them as needed.
type KeySyncer interface {
	Sync(ctx context.Context) error
}

// HousekeepingService periodically deletes expired ledger tokens, blacklist
// entries and signing keys so no table grows without bound, then rotates
// signing keys. Correctness never depends on it: every lookup already
// filters on expiry.
type HousekeepingService struct {
	Store     store.Store
	Blacklist store.Blacklist
	Keys      KeySyncer // optional
	Metrics   *metricsx.Metrics
	Logger    *slog.Logger
	Interval  time.Duration
	Clock     Clock

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService defaults interval to one hour.
func NewHousekeepingService(st store.Store, bl store.Blacklist, m *metricsx.Metrics, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:     st,
		Blacklist: bl,
		Metrics:   m,
		Logger:    logger,
		Interval:  interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start runs a sweep immediately and then every Interval until Stop.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep performs one cleanup pass. Each table is independent; a failure in
// one is logged and the others still run.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	now := s.Clock.now()

	tokens, err := s.Store.Tokens().DeleteExpiredTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired ledger tokens", "error", err)
	} else {
		s.Metrics.HousekeepingDeleted("ledger_tokens", tokens)
	}

	var blacklisted int64
	if s.Blacklist != nil {
		blacklisted, err = s.Blacklist.DeleteExpired(ctx, now)
		if err != nil {
			s.Logger.Error("failed to delete expired blacklist entries", "error", err)
		} else {
			s.Metrics.HousekeepingDeleted("token_blacklist", blacklisted)
		}
	}

	keys, err := s.Store.SigningKeys().DeleteExpiredSigningKeys(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired signing keys", "error", err)
	} else {
		s.Metrics.HousekeepingDeleted("signing_keys", keys)
	}
	if s.Keys != nil {
		if err := s.Keys.Sync(ctx); err != nil {
			s.Logger.Error("failed to sync signing keys", "error", err)
		}
	}

	s.Logger.Info("housekeeping sweep completed",
		"ledger_tokens", tokens, "blacklist_entries", blacklisted, "signing_keys", keys)
}
