package di

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/config"
	"github.com/aristath/sentinel-vault/internal/reliability"
	"github.com/aristath/sentinel-vault/internal/scheduler"
)

const (
	rebalanceJobTimeout     = 5 * time.Minute
	feeCollectionJobTimeout = time.Minute
	backupJobTimeout        = 10 * time.Minute

	maintenanceSchedule   = "0 30 3 * * *" // 03:30 daily
	reportCleanupSchedule = "0 0 4 * * *"  // 04:00 daily
)

// RegisterJobs creates the scheduler and registers all jobs on it.
// Returns JobInstances for manual triggering via API.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)
	container.Scheduler = sched
	instances := &JobInstances{}

	rebalance := scheduler.NewRebalanceJob(container.Engine, rebalanceJobTimeout)
	rebalance.SetLogger(log)
	if err := sched.AddJob(cfg.Rebalance.Schedule, rebalance); err != nil {
		return nil, err
	}
	instances.Rebalance = rebalance

	feeCollection := scheduler.NewFeeCollectionJob(container.Vault, feeCollectionJobTimeout)
	feeCollection.SetLogger(log)
	if err := sched.AddJob(cfg.Fees.Schedule, feeCollection); err != nil {
		return nil, err
	}
	instances.FeeCollection = feeCollection

	maintenance := reliability.NewDailyMaintenanceJob(container.DB, cfg.DataDir, log)
	if err := sched.AddJob(maintenanceSchedule, maintenance); err != nil {
		return nil, err
	}
	instances.Maintenance = maintenance

	reportCleanup := scheduler.NewReportCleanupJob(
		container.RebalancingRepo,
		time.Duration(cfg.Rebalance.ReportRetentionDays)*24*time.Hour,
	)
	reportCleanup.SetLogger(log)
	if err := sched.AddJob(reportCleanupSchedule, reportCleanup); err != nil {
		return nil, err
	}
	instances.ReportCleanup = reportCleanup

	if container.BackupService != nil {
		backup := scheduler.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, backupJobTimeout)
		backup.SetLogger(log)
		if err := sched.AddJob(cfg.Backup.Schedule, backup); err != nil {
			return nil, err
		}
		instances.Backup = backup
	}

	log.Info().Int("jobs", len(instances.All())).Msg("Jobs registered")
	return instances, nil
}
