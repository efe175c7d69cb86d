package vault

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/database"
)

// Repository handles share accounting database operations
// Database: vault.db (vault_state, vault_balances tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new vault repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "vault").Logger(),
	}
}

// LoadSupply returns the stored total supply, or nil before the first mint
func (r *Repository) LoadSupply() (*big.Int, error) {
	var raw string
	err := r.db.QueryRow("SELECT total_supply FROM vault_state WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query total supply: %w", err)
	}
	supply, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid total supply %q", raw)
	}
	return supply, nil
}

// LoadBalances returns every stored share balance
func (r *Repository) LoadBalances() (map[common.Address]*big.Int, error) {
	rows, err := r.db.Query("SELECT owner, shares FROM vault_balances")
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	balances := make(map[common.Address]*big.Int)
	for rows.Next() {
		var owner, raw string
		if err := rows.Scan(&owner, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if !common.IsHexAddress(owner) {
			r.log.Warn().Str("owner", owner).Msg("Skipping balance with invalid owner")
			continue
		}
		shares, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return nil, fmt.Errorf("invalid balance %q for %s", raw, owner)
		}
		balances[common.HexToAddress(owner)] = shares
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating balances: %w", err)
	}
	return balances, nil
}

// SaveAccount writes owner's balance and the new supply in one transaction
func (r *Repository) SaveAccount(owner common.Address, balance, supply *big.Int) error {
	now := time.Now().Unix()
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			INSERT INTO vault_balances (owner, shares, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(owner) DO UPDATE SET
				shares = excluded.shares,
				updated_at = excluded.updated_at
		`, owner.Hex(), balance.String(), now); err != nil {
			return fmt.Errorf("failed to save balance: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO vault_state (id, total_supply, updated_at)
			VALUES (1, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				total_supply = excluded.total_supply,
				updated_at = excluded.updated_at
		`, supply.String(), now); err != nil {
			return fmt.Errorf("failed to save total supply: %w", err)
		}
		return nil
	})
}
