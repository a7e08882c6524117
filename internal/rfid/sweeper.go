package rfid

import (
	"context"
	"time"

	"wardrobe-backend/config"
	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/store"
)

// OfflineSweeper periodically flags devices whose last heartbeat is older
// than the configured threshold.
type OfflineSweeper struct {
	store        store.Store
	log          *logger.Logger
	interval     time.Duration
	offlineAfter time.Duration
	now          func() time.Time
}

func NewOfflineSweeper(st store.Store, log *logger.Logger, cfg config.RFIDConfig) *OfflineSweeper {
	if log == nil {
		log = logger.Nop()
	}
	return &OfflineSweeper{
		store:        st,
		log:          log,
		interval:     cfg.SweepInterval,
		offlineAfter: cfg.OfflineAfter,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (s *OfflineSweeper) Run(ctx context.Context) {
	if s.interval <= 0 || s.offlineAfter <= 0 {
		s.log.Info(ctx, "offline sweeper disabled")
		return
	}
	s.log.Info(ctx, "starting offline sweeper")

	s.SweepOnce(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info(ctx, "offline sweeper shutting down")
			return
		case <-timer.C:
			s.SweepOnce(ctx)
			timer.Reset(s.interval)
		}
	}
}

// SweepOnce marks stale devices offline and returns how many changed.
func (s *OfflineSweeper) SweepOnce(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.offlineAfter)
	n, err := s.store.MarkStaleDevicesOffline(ctx, cutoff)
	if err != nil {
		s.log.Error(ctx, "offline sweep failed", err)
		return 0
	}
	if n > 0 {
		s.log.Zerolog(ctx).Info().Int64("devices", n).Msg("marked devices offline")
	}
	return n
}
