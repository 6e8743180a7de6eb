package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jordanlanch/leadbridge/pkg/models"
	"github.com/robfig/cron/v3"
)

// StatsLogSchedule is when the daily lead statistics are logged
const StatsLogSchedule = "0 4 * * *"

// Sweeper fails leads stranded in pending. *leads.Service implements it.
type Sweeper interface {
	SweepStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StatsSource reports lead statistics. *leads.Service implements it.
type StatsSource interface {
	Stats(ctx context.Context, req models.LeadStatsRequest) (*models.LeadStats, error)
}

// Config holds the schedule of the stale-pending sweep
type Config struct {
	SweepSchedule string
	StaleAfter    time.Duration
}

// CronManager manages scheduled jobs
type CronManager struct {
	cron    *cron.Cron
	sweeper Sweeper
	stats   StatsSource
	config  Config
	logger  *log.Logger
}

// NewCronManager creates a new cron manager. stats may be nil.
func NewCronManager(sweeper Sweeper, stats StatsSource, config Config, logger *log.Logger) *CronManager {
	if logger == nil {
		logger = log.Default()
	}

	return &CronManager{
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		stats:   stats,
		config:  config,
		logger:  logger,
	}
}

// SetupJobs configures all scheduled jobs
func (cm *CronManager) SetupJobs() error {
	cm.logger.Println("Setting up cron jobs...")

	if _, err := cm.cron.AddFunc(cm.config.SweepSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = cm.RunStaleSweep(ctx)
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", cm.config.SweepSchedule, err)
	}

	if cm.stats != nil {
		if _, err := cm.cron.AddFunc(StatsLogSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			cm.LogStats(ctx)
		}); err != nil {
			return err
		}
	}

	cm.logger.Println("✅ Cron jobs configured successfully")
	cm.logger.Printf("  - %s: Fail leads pending for more than %s", cm.config.SweepSchedule, cm.config.StaleAfter)
	if cm.stats != nil {
		cm.logger.Printf("  - %s: Log lead statistics", StatsLogSchedule)
	}

	return nil
}

// RunStaleSweep fails every lead pending for longer than the configured age
func (cm *CronManager) RunStaleSweep(ctx context.Context) (int64, error) {
	n, err := cm.sweeper.SweepStale(ctx, cm.config.StaleAfter)
	if err != nil {
		cm.logger.Printf("❌ Stale lead sweep failed: %v", err)
		return 0, err
	}
	if n > 0 {
		cm.logger.Printf("⚠️ Marked %d stale pending lead(s) as failed", n)
	}
	return n, nil
}

// LogStats logs the lead overview
func (cm *CronManager) LogStats(ctx context.Context) {
	stats, err := cm.stats.Stats(ctx, models.LeadStatsRequest{})
	if err != nil {
		cm.logger.Printf("❌ Failed to get lead stats: %v", err)
		return
	}

	o := stats.Overview
	cm.logger.Printf("📊 Lead Statistics:")
	cm.logger.Printf("  Total leads: %d", o.TotalLeads)
	cm.logger.Printf("  Pending: %d, Processed: %d, Failed: %d", o.PendingLeads, o.ProcessedLeads, o.FailedLeads)
	cm.logger.Printf("  Avg processing time: %.0fms", o.AvgProcessingTime)
}

// Start starts the cron scheduler
func (cm *CronManager) Start() {
	cm.logger.Println("🚀 Starting cron scheduler...")
	cm.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish
func (cm *CronManager) Stop() {
	cm.logger.Println("🛑 Stopping cron scheduler...")
	<-cm.cron.Stop().Done()
}

// Entries returns the number of scheduled jobs
func (cm *CronManager) Entries() int {
	return len(cm.cron.Entries())
}
