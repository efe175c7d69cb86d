package fees

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// Repository handles fee rate and fee state database operations
// Database: vault.db (fee_rates, fee_states tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new fees repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "fees").Logger(),
	}
}

// LoadRates returns the stored rates, or nil if none have been saved yet
func (r *Repository) LoadRates() (*Rates, error) {
	var rates Rates
	err := r.db.QueryRow(
		"SELECT management_bps, performance_bps FROM fee_rates WHERE id = 1",
	).Scan(&rates.ManagementBps, &rates.PerformanceBps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query fee rates: %w", err)
	}
	return &rates, nil
}

// SaveRates upserts the rates
func (r *Repository) SaveRates(rates Rates) error {
	_, err := r.db.Exec(`
		INSERT INTO fee_rates (id, management_bps, performance_bps, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			management_bps = excluded.management_bps,
			performance_bps = excluded.performance_bps,
			updated_at = excluded.updated_at
	`, rates.ManagementBps, rates.PerformanceBps, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save fee rates: %w", err)
	}
	return nil
}

// LoadStates returns every consumer's fee state
func (r *Repository) LoadStates() (map[common.Address]State, error) {
	rows, err := r.db.Query("SELECT consumer, high_water_mark, last_collection FROM fee_states")
	if err != nil {
		return nil, fmt.Errorf("failed to query fee states: %w", err)
	}
	defer rows.Close()

	states := make(map[common.Address]State)
	for rows.Next() {
		var consumer, mark string
		var last int64
		if err := rows.Scan(&consumer, &mark, &last); err != nil {
			return nil, fmt.Errorf("failed to scan fee state: %w", err)
		}

		var state State
		if mark != "" {
			hwm, ok := new(big.Int).SetString(mark, 10)
			if !ok {
				return nil, fmt.Errorf("invalid high-water mark %q for %s", mark, consumer)
			}
			state.HighWaterMark = hwm
		}
		if last > 0 {
			state.LastCollection = time.Unix(last, 0).UTC()
		}
		states[common.HexToAddress(consumer)] = state
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating fee states: %w", err)
	}
	return states, nil
}

// SaveState upserts one consumer's fee state
func (r *Repository) SaveState(consumer common.Address, state State) error {
	var mark string
	if state.HighWaterMark != nil {
		mark = state.HighWaterMark.String()
	}
	var last int64
	if !state.LastCollection.IsZero() {
		last = state.LastCollection.Unix()
	}

	_, err := r.db.Exec(`
		INSERT INTO fee_states (consumer, high_water_mark, last_collection, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(consumer) DO UPDATE SET
			high_water_mark = excluded.high_water_mark,
			last_collection = excluded.last_collection,
			updated_at = excluded.updated_at
	`, consumer.Hex(), mark, last, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save fee state for %s: %w", consumer.Hex(), err)
	}
	return nil
}
