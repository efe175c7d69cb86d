package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/config"
	"github.com/aristath/sentinel-vault/internal/database"
)

// InitializeDatabase opens vault.db and applies its schema
func InitializeDatabase(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileLedger, // Share balances and fee marks must survive a crash
		Name:    "vault",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vault database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate vault database: %w", err)
	}

	log.Info().Str("path", db.Path()).Msg("Vault database ready")
	return &Container{DB: db}, nil
}
