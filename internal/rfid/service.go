// Package rfid reconciles reader sightings against the tag, item and device
// records and implements the tag to item association protocol.
package rfid

import (
	"time"

	"wardrobe-backend/config"
	"wardrobe-backend/internal/logger"
	"wardrobe-backend/internal/metrics"
	"wardrobe-backend/internal/model"
	"wardrobe-backend/internal/scancache"
	"wardrobe-backend/internal/store"
)

// Notifier is told when a scan moves a tagged item. Implementations must not block.
type Notifier interface {
	NotifyLocationChange(userID, itemID uint, location model.Location) bool
}

// Service is the RFID core. It is safe for concurrent use.
type Service struct {
	store    store.Store
	cache    scancache.Cache
	log      *logger.Logger
	metrics  *metrics.RFIDMetrics
	notifier Notifier
	cfg      config.RFIDConfig
	now      func() time.Time
	locks    *keyLock
}

// DefaultNextScanInterval is the poll interval, in milliseconds, suggested to
// devices when none is configured.
const DefaultNextScanInterval = 5000

type Option func(*Service)

func WithMetrics(m *metrics.RFIDMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(st store.Store, cache scancache.Cache, log *logger.Logger, cfg config.RFIDConfig, opts ...Option) *Service {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.HeartbeatIntervalMS <= 0 {
		cfg.HeartbeatIntervalMS = DefaultNextScanInterval
	}
	s := &Service{
		store: st,
		cache: cache,
		log:   log,
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
		locks: newKeyLock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) notify(userID, itemID uint, location model.Location) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyLocationChange(userID, itemID, location)
}
