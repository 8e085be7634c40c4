package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const refreshTimeout = 30 * time.Second

// StatsRefresher recomputes cached ticket stats.
type StatsRefresher interface {
	RefreshStats(ctx context.Context) error
}

// StartStatsRefresher schedules refresher on a standard 5-field cron
// expression. An empty schedule disables the job and returns a nil scheduler.
// Callers stop the returned scheduler on shutdown.
func StartStatsRefresher(schedule string, refresher StatsRefresher, logger *zap.Logger) (*cron.Cron, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" || refresher == nil {
		logger.Info("stats refresher disabled")
		return nil, nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	scheduler := cron.New(cron.WithParser(parser))
	if _, err := scheduler.AddFunc(schedule, func() { refreshOnce(refresher, logger) }); err != nil {
		return nil, fmt.Errorf("invalid stats refresh schedule %q: %w", schedule, err)
	}
	scheduler.Start()
	logger.Info("stats refresher scheduled", zap.String("cron", schedule))
	return scheduler, nil
}

func refreshOnce(refresher StatsRefresher, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	start := time.Now()
	if err := refresher.RefreshStats(ctx); err != nil {
		logger.Warn("stats refresh failed", zap.Error(err))
		return
	}
	logger.Debug("stats refreshed", zap.Duration("took", time.Since(start)))
}
