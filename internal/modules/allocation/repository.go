package allocation

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/database"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
)

// Repository handles allocation ledger database operations
// Database: vault.db (allocation_target, registry_entries tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new allocation repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "allocation").Logger(),
	}
}

// LoadTarget returns the stored split, or nil if none has been saved yet
func (r *Repository) LoadTarget() (*Target, error) {
	var t Target
	err := r.db.QueryRow(
		"SELECT primary_bps, yield_bps, buffer_bps FROM allocation_target WHERE id = 1",
	).Scan(&t.PrimaryBps, &t.YieldBps, &t.BufferBps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query allocation target: %w", err)
	}
	return &t, nil
}

// SaveTarget upserts the split
func (r *Repository) SaveTarget(target Target) error {
	_, err := r.db.Exec(`
		INSERT INTO allocation_target (id, primary_bps, yield_bps, buffer_bps, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			primary_bps = excluded.primary_bps,
			yield_bps = excluded.yield_bps,
			buffer_bps = excluded.buffer_bps,
			updated_at = excluded.updated_at
	`, target.PrimaryBps, target.YieldBps, target.BufferBps, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save allocation target: %w", err)
	}

	r.log.Debug().
		Uint64("primary_bps", target.PrimaryBps).
		Uint64("yield_bps", target.YieldBps).
		Uint64("buffer_bps", target.BufferBps).
		Msg("Saved allocation target")
	return nil
}

// LoadEntries returns a tier's entries in registry order
func (r *Repository) LoadEntries(tier domain.Tier) ([]registry.Entry, error) {
	rows, err := r.db.Query(
		"SELECT adapter, weight, active FROM registry_entries WHERE tier = ? ORDER BY position",
		tier.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query registry entries: %w", err)
	}
	defer rows.Close()

	var entries []registry.Entry
	for rows.Next() {
		var adapter, weight string
		var active int
		if err := rows.Scan(&adapter, &weight, &active); err != nil {
			return nil, fmt.Errorf("failed to scan registry entry: %w", err)
		}
		w, err := strconv.ParseUint(weight, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q for %s: %w", weight, adapter, err)
		}
		entries = append(entries, registry.Entry{
			Adapter: common.HexToAddress(adapter),
			Weight:  w,
			Active:  active == 1,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registry entries: %w", err)
	}
	return entries, nil
}

// SaveEntries replaces a tier's entries in one transaction
func (r *Repository) SaveEntries(tier domain.Tier, entries []registry.Entry) error {
	now := time.Now().Unix()
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM registry_entries WHERE tier = ?", tier.String()); err != nil {
			return fmt.Errorf("failed to clear registry entries: %w", err)
		}
		for i, e := range entries {
			active := 0
			if e.Active {
				active = 1
			}
			_, err := tx.Exec(`
				INSERT INTO registry_entries (tier, adapter, weight, active, position, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, tier.String(), e.Adapter.Hex(), strconv.FormatUint(e.Weight, 10), active, i, now)
			if err != nil {
				return fmt.Errorf("failed to insert registry entry %s: %w", e.Adapter.Hex(), err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.log.Debug().
		Str("tier", tier.String()).
		Int("entries", len(entries)).
		Msg("Saved registry entries")
	return nil
}
