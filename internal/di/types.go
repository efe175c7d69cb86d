// Package di provides dependency injection wiring and initialization.
package di

import (
	"github.com/aristath/sentinel-vault/internal/access"
	"github.com/aristath/sentinel-vault/internal/adapters"
	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/guard"
	"github.com/aristath/sentinel-vault/internal/modules/allocation"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/modules/rebalancing"
	"github.com/aristath/sentinel-vault/internal/modules/reserve"
	"github.com/aristath/sentinel-vault/internal/modules/vault"
	"github.com/aristath/sentinel-vault/internal/reliability"
	"github.com/aristath/sentinel-vault/internal/scheduler"
)

// Container holds all dependencies for the application.
// It is created by Wire() and passed to the server for access to services.
type Container struct {
	// Database
	DB *database.DB

	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Reentrancy guards. The ledger and the engine share ManagerGuard.
	ManagerGuard *guard.Guard
	FeesGuard    *guard.Guard
	VaultGuard   *guard.Guard

	// Repositories
	AllocationRepo  *allocation.Repository
	RebalancingRepo *rebalancing.Repository
	FeeRepo         *fees.Repository
	ReserveRepo     *reserve.Repository
	VaultRepo       *vault.Repository

	// Services
	Adapters *adapters.Directory
	Ledger   *allocation.Ledger
	Reserve  *reserve.Account
	Engine   *rebalancing.Engine
	Accrual  *fees.Accrual
	Vault    *vault.Vault
	Access   *access.Controller

	// BackupService is nil when backups are not configured
	BackupService *reliability.BackupService

	Scheduler *scheduler.Scheduler
}

// JobInstances holds references to scheduled jobs for manual triggering
type JobInstances struct {
	Rebalance     scheduler.Job
	FeeCollection scheduler.Job
	Maintenance   scheduler.Job
	ReportCleanup scheduler.Job
	Backup        scheduler.Job // nil when backups are disabled
}

// All returns every configured job keyed by name
func (j *JobInstances) All() map[string]scheduler.Job {
	all := make(map[string]scheduler.Job)
	for _, job := range []scheduler.Job{j.Rebalance, j.FeeCollection, j.Maintenance, j.ReportCleanup, j.Backup} {
		if job != nil {
			all[job.Name()] = job
		}
	}
	return all
}

// Close releases the database connection
func (c *Container) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
