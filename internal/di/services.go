package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/access"
	"github.com/aristath/sentinel-vault/internal/adapters"
	"github.com/aristath/sentinel-vault/internal/config"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/guard"
	"github.com/aristath/sentinel-vault/internal/modules/allocation"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/modules/rebalancing"
	"github.com/aristath/sentinel-vault/internal/modules/reserve"
	"github.com/aristath/sentinel-vault/internal/modules/vault"
	"github.com/aristath/sentinel-vault/internal/reliability"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// InitializeServices builds the domain services in dependency order:
// events, guards, adapters, ledger, reserve, engine, accrual, vault.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	container.EventBus = events.NewBus()
	container.EventManager = events.NewManager(container.EventBus, log)

	container.ManagerGuard = guard.New("manager")
	container.FeesGuard = guard.New("fees")
	container.VaultGuard = guard.New("vault")

	directory, err := initializeAdapters(cfg, log)
	if err != nil {
		return err
	}
	container.Adapters = directory

	container.Ledger, err = allocation.NewLedger(
		allocation.Target{
			PrimaryBps: cfg.Allocation.PrimaryBps,
			YieldBps:   cfg.Allocation.YieldBps,
			BufferBps:  cfg.Allocation.BufferBps,
		},
		container.ManagerGuard,
		container.AllocationRepo,
		container.EventManager,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize allocation ledger: %w", err)
	}

	container.Reserve, err = reserve.NewAccount(container.ReserveRepo, log)
	if err != nil {
		return fmt.Errorf("failed to initialize reserve: %w", err)
	}

	container.Engine, err = rebalancing.NewEngine(
		container.Ledger,
		container.Adapters,
		container.Reserve,
		container.ManagerGuard,
		container.RebalancingRepo,
		container.EventManager,
		rebalancing.RiskParameters{
			Interval:     cfg.Rebalance.Interval,
			ThresholdBps: cfg.Rebalance.ThresholdBps,
		},
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize rebalance engine: %w", err)
	}

	container.Accrual, err = fees.NewAccrual(
		fees.Rates{
			ManagementBps:  cfg.Fees.ManagementBps,
			PerformanceBps: cfg.Fees.PerformanceBps,
		},
		container.FeesGuard,
		container.FeeRepo,
		container.EventManager,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize fee accrual: %w", err)
	}

	container.Vault, err = vault.New(
		vault.Config{
			Address:      cfg.VaultAddress,
			FeeRecipient: cfg.FeeRecipient,
			Decimals:     cfg.AssetDecimals,
		},
		container.Engine,
		container.Reserve,
		container.Accrual,
		container.VaultGuard,
		container.VaultRepo,
		container.EventManager,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize vault: %w", err)
	}

	container.Access = access.NewController(cfg.Admins, log)

	if cfg.Backup.Enabled() {
		store, err := reliability.NewS3Store(ctx, reliability.S3Config{
			Bucket:    cfg.Backup.Bucket,
			Endpoint:  cfg.Backup.Endpoint,
			Region:    cfg.Backup.Region,
			AccessKey: cfg.Backup.AccessKey,
			SecretKey: cfg.Backup.SecretKey,
		}, log)
		if err != nil {
			return fmt.Errorf("failed to initialize backup store: %w", err)
		}
		container.BackupService = reliability.NewBackupService(
			container.DB, store, cfg.Backup.Prefix, cfg.DataDir, container.EventManager, log)
	} else {
		log.Info().Msg("Backups disabled (BACKUP_S3_BUCKET not set)")
	}

	log.Info().Msg("Services initialized")
	return nil
}

// initializeAdapters registers remote and simulated strategies
func initializeAdapters(cfg *config.Config, log zerolog.Logger) (*adapters.Directory, error) {
	directory := adapters.NewDirectory(log)

	for _, endpoint := range cfg.Adapters {
		client := adapters.NewHTTPAdapter(endpoint.URL, cfg.AdapterTimeout, log)
		if err := directory.Register(endpoint.Address, client); err != nil {
			return nil, fmt.Errorf("failed to register adapter %s: %w", endpoint.Address.Hex(), err)
		}
	}
	for _, sim := range cfg.SimulatedAdapters {
		if err := directory.Register(sim.Address, adapters.NewSimulated(sim.AprBps)); err != nil {
			return nil, fmt.Errorf("failed to register simulated adapter %s: %w", sim.Address.Hex(), err)
		}
	}

	log.Info().
		Int("remote", len(cfg.Adapters)).
		Int("simulated", len(cfg.SimulatedAdapters)).
		Str("addresses", utils.JoinHex(directory.Addresses())).
		Msg("Adapters registered")
	return directory, nil
}
