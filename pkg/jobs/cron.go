// Package jobs runs the service's scheduled background work.
package jobs

import (
	"context"
	"database/sql"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jordanlanch/contentforge/pkg/logger"
	"github.com/jordanlanch/contentforge/pkg/metrics"
)

// poolSchedule samples the connection pool for the gauge
const poolSchedule = "@every 30s"

// StatsRecalculator rebuilds denormalized partner totals
type StatsRecalculator interface {
	RecalculateStats(ctx context.Context) (int, error)
}

// PoolStater exposes connection pool statistics
type PoolStater interface {
	Stats() sql.DBStats
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron     *cron.Cron
	partners StatsRecalculator
	pool     PoolStater
	metrics  *metrics.Metrics
	logger   logger.Logger
	schedule string
	timeout  time.Duration
}

// NewCronManager creates a new cron manager.
// pool and m may be nil, in which case the pool gauge job is not scheduled.
func NewCronManager(partners StatsRecalculator, pool PoolStater, m *metrics.Metrics, schedule string, log logger.Logger) *CronManager {
	if log == nil {
		log = logger.Nop()
	}
	return &CronManager{
		cron:     cron.New(),
		partners: partners,
		pool:     pool,
		metrics:  m,
		logger:   log.With("component", "jobs"),
		schedule: schedule,
		timeout:  10 * time.Minute,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	if _, err := cm.cron.AddFunc(cm.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cm.timeout)
		defer cancel()
		cm.RecalculateStats(ctx)
	}); err != nil {
		return err
	}

	jobs := 1
	if cm.pool != nil && cm.metrics != nil {
		if _, err := cm.cron.AddFunc(poolSchedule, cm.RecordPoolStats); err != nil {
			return err
		}
		jobs++
	}

	cm.logger.Info("cron jobs configured", "jobs", jobs, "stats_schedule", cm.schedule)
	return nil
}

// RecalculateStats runs one partner stats pass and logs the outcome
func (cm *CronManager) RecalculateStats(ctx context.Context) {
	start := time.Now()
	n, err := cm.partners.RecalculateStats(ctx)
	if err != nil {
		cm.logger.Error("partner stats recalculation failed", "error", err, "updated", n)
		return
	}
	cm.logger.Info("partner stats recalculated", "updated", n, "duration", time.Since(start))
}

// RecordPoolStats publishes the number of open connections
func (cm *CronManager) RecordPoolStats() {
	cm.metrics.UpdateDBConnections(float64(cm.pool.Stats().OpenConnections))
}

// Entries returns the number of scheduled jobs
func (cm *CronManager) Entries() int {
	return len(cm.cron.Entries())
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Info("starting cron scheduler")
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running jobs up to ctx's deadline
func (cm *CronManager) Stop(ctx context.Context) {
	cm.logger.Info("stopping cron scheduler")
	select {
	case <-cm.cron.Stop().Done():
	case <-ctx.Done():
		cm.logger.Warn("cron jobs still running at shutdown")
	}
}
