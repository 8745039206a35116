package workflow

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/retailpos_backend/config"
	"bitbucket.org/mmdatafocus/retailpos_backend/models"
	"github.com/sirupsen/logrus"
)

const DefaultSweepInterval = 2 * time.Minute

// SweepExpiredReservations flips expired active holds to released and
// reports how many were swept. Safe to run concurrently with request
// traffic; the flip is a single guarded update.
func SweepExpiredReservations(ctx context.Context, logger *logrus.Logger) (int64, error) {
	count, err := models.ReleaseExpiredReservations(ctx, false)
	if err != nil {
		config.LogError(logger, "reservationSweeper.go", "SweepExpiredReservations", "release expired reservations", nil, err)
		return 0, err
	}
	return count, nil
}

// StartReservationSweeper runs the sweep on a fixed interval until the
// context is cancelled. Intended to be launched once from main.
func StartReservationSweeper(ctx context.Context, logger *logrus.Logger, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.WithField("interval", interval.String()).Info("reservation sweeper started")
	for {
		select {
		case <-ctx.Done():
			logger.Info("reservation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := SweepExpiredReservations(ctx, logger); err != nil {
				// logged above; keep ticking
				continue
			}
		}
	}
}
