package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/modules/allocation"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/modules/rebalancing"
	"github.com/aristath/sentinel-vault/internal/modules/reserve"
	"github.com/aristath/sentinel-vault/internal/modules/vault"
)

// InitializeRepositories creates all repositories over the vault database
func InitializeRepositories(container *Container, log zerolog.Logger) error {
	if container == nil || container.DB == nil {
		return fmt.Errorf("container database cannot be nil")
	}

	conn := container.DB.Conn()
	container.AllocationRepo = allocation.NewRepository(conn, log)
	container.RebalancingRepo = rebalancing.NewRepository(conn, log)
	container.FeeRepo = fees.NewRepository(conn, log)
	container.ReserveRepo = reserve.NewRepository(conn, log)
	container.VaultRepo = vault.NewRepository(conn, log)

	log.Debug().Msg("Repositories initialized")
	return nil
}
