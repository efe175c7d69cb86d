// Package allocation provides the allocation ledger: the top-level tier split
// and one weighted adapter registry per tier.
package allocation

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/guard"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
)

// Target is the top-level split in basis points.
type Target struct {
	PrimaryBps uint64 `json:"primary_bps"`
	YieldBps   uint64 `json:"yield_bps"`
	BufferBps  uint64 `json:"buffer_bps"`
}

// Validate enforces sum == 10000 and non-zero primary and yield tiers.
func (t Target) Validate() error {
	for _, bps := range []uint64{t.PrimaryBps, t.YieldBps, t.BufferBps} {
		if bps > domain.BasisPoints {
			return fmt.Errorf("%w: %d bps", domain.ErrTotalExceeds100Percent, bps)
		}
	}
	if t.PrimaryBps+t.YieldBps+t.BufferBps != domain.BasisPoints {
		return fmt.Errorf("%w: %d + %d + %d", domain.ErrTotalExceeds100Percent, t.PrimaryBps, t.YieldBps, t.BufferBps)
	}
	if t.PrimaryBps == 0 {
		return fmt.Errorf("%w: primary allocation must be positive", domain.ErrValueTooLow)
	}
	if t.YieldBps == 0 {
		return fmt.Errorf("%w: yield allocation must be positive", domain.ErrValueTooLow)
	}
	return nil
}

// Targets holds the per-tier target values for a given total value.
type Targets struct {
	Primary *big.Int `json:"primary"`
	Yield   *big.Int `json:"yield"`
	Buffer  *big.Int `json:"buffer"`
}

// ForTier returns the target of an adapter tier.
func (t Targets) ForTier(tier domain.Tier) *big.Int {
	if tier == domain.TierPrimary {
		return t.Primary
	}
	return t.Yield
}

// ComputeTargets splits totalValue by target, truncating each tier.
func ComputeTargets(target Target, totalValue *big.Int) Targets {
	return Targets{
		Primary: domain.MulDivBps(totalValue, target.PrimaryBps),
		Yield:   domain.MulDivBps(totalValue, target.YieldBps),
		Buffer:  domain.MulDivBps(totalValue, target.BufferBps),
	}
}

// Store persists ledger state. A nil Store keeps the ledger in memory.
type Store interface {
	LoadTarget() (*Target, error)
	SaveTarget(target Target) error
	LoadEntries(tier domain.Tier) ([]registry.Entry, error)
	SaveEntries(tier domain.Tier, entries []registry.Entry) error
}

// Ledger owns the allocation target and the tier registries.
// Mutations run under the manager guard shared with the rebalancing engine.
type Ledger struct {
	mu         sync.RWMutex
	target     Target
	registries map[domain.Tier]*registry.Registry

	guard   *guard.Guard
	store   Store
	emitter events.Emitter
	log     zerolog.Logger
}

// NewLedger builds a ledger from persisted state, falling back to defaultTarget
// when nothing has been stored yet.
func NewLedger(defaultTarget Target, g *guard.Guard, store Store, emitter events.Emitter, log zerolog.Logger) (*Ledger, error) {
	l := &Ledger{
		target:     defaultTarget,
		registries: make(map[domain.Tier]*registry.Registry, len(domain.Tiers)),
		guard:      g,
		store:      store,
		emitter:    emitter,
		log:        log.With().Str("service", "allocation").Logger(),
	}

	if store != nil {
		stored, err := store.LoadTarget()
		if err != nil {
			return nil, fmt.Errorf("failed to load allocation target: %w", err)
		}
		if stored != nil {
			l.target = *stored
		}
	}
	if err := l.target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid allocation target: %w", err)
	}

	for _, tier := range domain.Tiers {
		reg := registry.New()
		if store != nil {
			entries, err := store.LoadEntries(tier)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s registry: %w", tier, err)
			}
			if reg, err = registry.FromEntries(entries); err != nil {
				return nil, fmt.Errorf("failed to rebuild %s registry: %w", tier, err)
			}
		}
		l.registries[tier] = reg
	}

	return l, nil
}

// SetAllocation replaces the tier split.
func (l *Ledger) SetAllocation(primaryBps, yieldBps, bufferBps uint64) error {
	release, err := l.guard.Enter("set_allocation")
	if err != nil {
		return err
	}
	defer release()

	target := Target{PrimaryBps: primaryBps, YieldBps: yieldBps, BufferBps: bufferBps}
	if err := target.Validate(); err != nil {
		return err
	}
	if l.store != nil {
		if err := l.store.SaveTarget(target); err != nil {
			return fmt.Errorf("failed to persist allocation target: %w", err)
		}
	}

	l.mu.Lock()
	l.target = target
	l.mu.Unlock()

	l.log.Info().
		Uint64("primary_bps", primaryBps).
		Uint64("yield_bps", yieldBps).
		Uint64("buffer_bps", bufferBps).
		Msg("Allocation target updated")

	if l.emitter != nil {
		l.emitter.EmitTyped(events.AllocationChanged, "allocation", &events.AllocationChangedData{
			PrimaryBps: primaryBps,
			YieldBps:   yieldBps,
			BufferBps:  bufferBps,
		})
	}
	return nil
}

// Target returns the current split.
func (l *Ledger) Target() Target {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.target
}

// GetTargets computes per-tier targets for totalValue. Pure; never fails.
func (l *Ledger) GetTargets(totalValue *big.Int) Targets {
	return ComputeTargets(l.Target(), totalValue)
}

// Registry returns a snapshot of a tier's registry.
func (l *Ledger) Registry(tier domain.Tier) *registry.Registry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	reg, ok := l.registries[tier]
	if !ok {
		return registry.New()
	}
	return reg.Clone()
}

// ActiveEntries returns the active entries of a tier in registry order.
func (l *Ledger) ActiveEntries(tier domain.Tier) []registry.Entry {
	return l.Registry(tier).ActiveEntries()
}

// Entries returns all entries of a tier, removed ones included.
func (l *Ledger) Entries(tier domain.Tier) []registry.Entry {
	return l.Registry(tier).Entries()
}

// AddEntry registers adapter in tier.
func (l *Ledger) AddEntry(tier domain.Tier, adapter common.Address, weight uint64) error {
	return l.mutate("add_entry", tier, events.EntryAdded, []common.Address{adapter}, func(reg *registry.Registry) error {
		return reg.Add(adapter, weight)
	})
}

// AddEntries registers several adapters atomically: either all are added or none.
func (l *Ledger) AddEntries(tier domain.Tier, adapters []common.Address, weights []uint64) error {
	if len(adapters) == 0 {
		return domain.ErrEmptyArray
	}
	if len(adapters) != len(weights) {
		return fmt.Errorf("%w: %d adapters, %d weights", domain.ErrMismatchedArrayLengths, len(adapters), len(weights))
	}
	return l.mutate("add_entries", tier, events.EntryAdded, adapters, func(reg *registry.Registry) error {
		for i, adapter := range adapters {
			if err := reg.Add(adapter, weights[i]); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		}
		return nil
	})
}

// UpdateEntry changes an adapter's weight.
func (l *Ledger) UpdateEntry(tier domain.Tier, adapter common.Address, weight uint64) error {
	return l.mutate("update_entry", tier, events.EntryUpdated, []common.Address{adapter}, func(reg *registry.Registry) error {
		return reg.Update(adapter, weight)
	})
}

// RemoveEntry soft-deletes an adapter.
func (l *Ledger) RemoveEntry(tier domain.Tier, adapter common.Address) error {
	return l.mutate("remove_entry", tier, events.EntryRemoved, []common.Address{adapter}, func(reg *registry.Registry) error {
		return reg.Remove(adapter)
	})
}

// mutate applies fn to a clone of the tier registry, persists the clone and
// only then swaps it in.
func (l *Ledger) mutate(op string, tier domain.Tier, eventType events.EventType, touched []common.Address, fn func(*registry.Registry) error) error {
	release, err := l.guard.Enter(op)
	if err != nil {
		return err
	}
	defer release()

	l.mu.RLock()
	current, ok := l.registries[tier]
	l.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown tier %d", tier)
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if l.store != nil {
		if err := l.store.SaveEntries(tier, next.Entries()); err != nil {
			return fmt.Errorf("failed to persist %s registry: %w", tier, err)
		}
	}

	l.mu.Lock()
	l.registries[tier] = next
	l.mu.Unlock()

	for _, adapter := range touched {
		entry, _ := next.Get(adapter)
		l.log.Info().
			Str("op", op).
			Str("tier", tier.String()).
			Str("adapter", adapter.Hex()).
			Uint64("weight", entry.Weight).
			Bool("active", entry.Active).
			Uint64("total_active_weight", next.TotalActiveWeight()).
			Msg("Registry entry changed")

		if l.emitter != nil {
			l.emitter.EmitTyped(eventType, "allocation", &events.EntryChangedData{
				Type:    eventType,
				Tier:    tier.String(),
				Adapter: adapter.Hex(),
				Weight:  entry.Weight,
				Active:  entry.Active,
			})
		}
	}
	return nil
}
