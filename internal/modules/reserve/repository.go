package reserve

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
)

// Repository handles reserve balance database operations
// Database: vault.db (reserve_balance table)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new reserve repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "reserve").Logger(),
	}
}

// LoadBalance returns the stored balance, or nil if none has been saved yet
func (r *Repository) LoadBalance() (*big.Int, error) {
	var raw string
	err := r.db.QueryRow("SELECT balance FROM reserve_balance WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query reserve balance: %w", err)
	}

	balance, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid reserve balance %q", raw)
	}
	return balance, nil
}

// SaveBalance upserts the balance
func (r *Repository) SaveBalance(balance *big.Int) error {
	_, err := r.db.Exec(`
		INSERT INTO reserve_balance (id, balance, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance = excluded.balance,
			updated_at = excluded.updated_at
	`, balance.String(), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save reserve balance: %w", err)
	}
	return nil
}
