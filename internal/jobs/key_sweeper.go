// key_sweeper.go implements the API key expiry sweeper. Expiry is already
// enforced at authentication time; the sweeper flips lapsed keys to revoked
// so key listings reflect reality without waiting for the next use attempt.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/easybits/easybits/internal/db/repositories"
)

// KeySweeper periodically revokes expired API keys.
type KeySweeper struct {
	keys     *repositories.APIKeyRepository
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

// NewKeySweeper creates a sweeper. intervalHours <= 0 defaults to hourly.
func NewKeySweeper(keys *repositories.APIKeyRepository, intervalHours int, logger *slog.Logger) *KeySweeper {
	if intervalHours <= 0 {
		intervalHours = 1
	}
	return &KeySweeper{
		keys:     keys,
		interval: time.Duration(intervalHours) * time.Hour,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called or the context ends.
func (s *KeySweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("key sweeper started", "interval", s.interval)

	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-s.stopChan:
			s.logger.Info("key sweeper stopped")
			return
		case <-ctx.Done():
			s.logger.Info("key sweeper context cancelled")
			return
		}
	}
}

// Stop stops the sweep loop.
func (s *KeySweeper) Stop() {
	close(s.stopChan)
}

func (s *KeySweeper) runSweep(ctx context.Context) {
	revoked, err := s.keys.ExpireKeys(ctx)
	if err != nil {
		s.logger.Error("key sweep failed", "error", err)
		return
	}
	if revoked > 0 {
		s.logger.Info("expired keys revoked", "count", revoked)
	}
}
