package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"github.com/sirupsen/logrus"
)

const DefaultCartMaxAge = 24 * time.Hour

// CleanupAbandonedCarts deletes draft sales older than maxAge together
// with their holds. Returns how many carts were removed (or would be,
// under dryRun).
func CleanupAbandonedCarts(ctx context.Context, logger *logrus.Logger, maxAge time.Duration, dryRun bool) (int64, error) {
	if maxAge <= 0 {
		maxAge = DefaultCartMaxAge
	}
	count, err := models.DeleteAbandonedDraftSales(ctx, maxAge, dryRun)
	if err != nil {
		config.LogError(logger, "cartCleanup.go", "CleanupAbandonedCarts", "delete abandoned carts", nil, err)
		return 0, err
	}
	if count > 0 {
		logger.WithFields(logrus.Fields{
			"carts":   count,
			"max_age": maxAge.String(),
			"dry_run": dryRun,
		}).Info("abandoned cart cleanup completed")
	}
	return count, nil
}

// StartCartCleanup runs the cleanup hourly until the context is cancelled.
func StartCartCleanup(ctx context.Context, logger *logrus.Logger, maxAge time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := CleanupAbandonedCarts(ctx, logger, maxAge, false); err != nil {
				continue
			}
		}
	}
}
