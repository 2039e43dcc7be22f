// Package jobs contains background workers. The purge job permanently removes
// soft-deleted files once their retention window closes: backend object first,
// database row second, so a crash between the two leaves a harmless orphan row
// that the next run retries.
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/easybits/easybits/internal/db/models"
	"github.com/easybits/easybits/internal/db/repositories"
	"github.com/easybits/easybits/internal/services"
	"github.com/easybits/easybits/internal/telemetry"
)

// purgeBatchSize caps how many files one run processes.
const purgeBatchSize = 500

// FilePurger periodically hard-deletes files whose retention expired.
type FilePurger struct {
	files    *repositories.FileRepository
	resolver services.ClientResolver
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
}

// NewFilePurger creates a purge job. intervalHours <= 0 defaults to daily.
func NewFilePurger(files *repositories.FileRepository, resolver services.ClientResolver, intervalHours int, logger *slog.Logger) *FilePurger {
	if intervalHours <= 0 {
		intervalHours = 24
	}
	return &FilePurger{
		files:    files,
		resolver: resolver,
		interval: time.Duration(intervalHours) * time.Hour,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start runs the purge loop until Stop is called or the context ends.
func (p *FilePurger) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("file purger started", "interval", p.interval)

	// Run immediately on start
	if _, err := p.RunOnce(ctx); err != nil {
		p.logger.Error("purge run failed", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.Error("purge run failed", "error", err)
			}
		case <-p.stopChan:
			p.logger.Info("file purger stopped")
			return
		case <-ctx.Done():
			p.logger.Info("file purger context cancelled")
			return
		}
	}
}

// Stop stops the purge loop.
func (p *FilePurger) Stop() {
	close(p.stopChan)
}

// RunOnce performs one purge pass and returns how many files were removed.
// Also invoked synchronously by the cron endpoint. Per-file failures are
// logged and skipped so one unreachable backend cannot stall the batch.
func (p *FilePurger) RunOnce(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() {
		telemetry.PurgeRunDuration.Observe(time.Since(start).Seconds())
	}()

	cutoff := time.Now().Add(-services.RetentionWindow)
	candidates, err := p.files.ListPurgeable(ctx, cutoff, purgeBatchSize)
	if err != nil {
		return 0, err
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	purged := 0
	for _, file := range candidates {
		if err := p.purgeFile(ctx, file); err != nil {
			p.logger.Warn("purge skipped file", "file_id", file.ID, "error", err)
			continue
		}
		purged++
		telemetry.FilesPurgedTotal.Inc()
	}

	p.logger.Info("purge run completed", "candidates", len(candidates), "purged", purged)
	return purged, nil
}

func (p *FilePurger) purgeFile(ctx context.Context, file *models.File) error {
	client, err := p.resolver.ResolveForFile(ctx, file)
	if err != nil {
		return err
	}

	// DeleteObject is idempotent, so retrying after a crash between the two
	// steps is safe.
	if err := client.DeleteObject(ctx, file.StorageKey); err != nil {
		return err
	}
	return p.files.HardDelete(ctx, file.ID)
}
