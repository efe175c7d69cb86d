// Package fees computes management and performance fees per consumer (one
// record per vault) against assets under management and share price.
package fees

import (
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/guard"
)

const (
	// MaxManagementFeeBps caps the annual management rate at 10%.
	MaxManagementFeeBps uint64 = 1000
	// MaxPerformanceFeeBps caps the performance rate at 50%.
	MaxPerformanceFeeBps uint64 = 5000
)

// Rates are the configured fee rates in basis points.
type Rates struct {
	ManagementBps  uint64 `json:"management_bps"`
	PerformanceBps uint64 `json:"performance_bps"`
}

// Validate enforces the administrator bounds.
func (r Rates) Validate() error {
	if r.ManagementBps > MaxManagementFeeBps {
		return fmt.Errorf("%w: management fee %d bps exceeds %d", domain.ErrValueOutOfRange, r.ManagementBps, MaxManagementFeeBps)
	}
	if r.PerformanceBps > MaxPerformanceFeeBps {
		return fmt.Errorf("%w: performance fee %d bps exceeds %d", domain.ErrValueOutOfRange, r.PerformanceBps, MaxPerformanceFeeBps)
	}
	return nil
}

// State is the fee bookkeeping of one consumer. A nil HighWaterMark or a zero
// LastCollection means no baseline has been recorded yet.
type State struct {
	HighWaterMark  *big.Int
	LastCollection time.Time
}

func (s State) clone() State {
	out := State{LastCollection: s.LastCollection}
	if s.HighWaterMark != nil {
		out.HighWaterMark = new(big.Int).Set(s.HighWaterMark)
	}
	return out
}

// Store persists rates and per-consumer state. A nil Store keeps both in memory.
type Store interface {
	LoadRates() (*Rates, error)
	SaveRates(rates Rates) error
	LoadStates() (map[common.Address]State, error)
	SaveState(consumer common.Address, state State) error
}

// Accrual owns fee rates and per-consumer fee state.
type Accrual struct {
	mu     sync.RWMutex
	rates  Rates
	states map[common.Address]State

	guard   *guard.Guard
	store   Store
	emitter events.Emitter
	log     zerolog.Logger
}

// NewAccrual restores persisted rates and states, falling back to defaults.
func NewAccrual(defaults Rates, g *guard.Guard, store Store, emitter events.Emitter, log zerolog.Logger) (*Accrual, error) {
	a := &Accrual{
		rates:   defaults,
		states:  make(map[common.Address]State),
		guard:   g,
		store:   store,
		emitter: emitter,
		log:     log.With().Str("service", "fees").Logger(),
	}

	if store != nil {
		rates, err := store.LoadRates()
		if err != nil {
			return nil, fmt.Errorf("failed to load fee rates: %w", err)
		}
		if rates != nil {
			a.rates = *rates
		}
		states, err := store.LoadStates()
		if err != nil {
			return nil, fmt.Errorf("failed to load fee states: %w", err)
		}
		for consumer, state := range states {
			a.states[consumer] = state
		}
	}
	if err := a.rates.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fee rates: %w", err)
	}
	return a, nil
}

// Rates returns the configured rates.
func (a *Accrual) Rates() Rates {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.rates
}

// State returns a copy of consumer's fee state.
func (a *Accrual) State(consumer common.Address) (State, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.states[consumer]
	return s.clone(), ok
}

// SetRates replaces both rates.
func (a *Accrual) SetRates(managementBps, performanceBps uint64) error {
	release, err := a.guard.Enter("set_rates")
	if err != nil {
		return err
	}
	defer release()

	rates := Rates{ManagementBps: managementBps, PerformanceBps: performanceBps}
	if err := rates.Validate(); err != nil {
		return err
	}
	if a.store != nil {
		if err := a.store.SaveRates(rates); err != nil {
			return fmt.Errorf("failed to persist fee rates: %w", err)
		}
	}

	a.mu.Lock()
	a.rates = rates
	a.mu.Unlock()

	a.log.Info().
		Uint64("management_bps", managementBps).
		Uint64("performance_bps", performanceBps).
		Msg("Fee rates updated")

	if a.emitter != nil {
		a.emitter.EmitTyped(events.FeeRatesChanged, "fees", &events.FeeRatesChangedData{
			ManagementBps:  managementBps,
			PerformanceBps: performanceBps,
		})
	}
	return nil
}

// CalculateManagementFee prorates the annual management rate over the time
// since the consumer's last collection and advances the collection time.
// The first call only records the baseline and returns zero.
func (a *Accrual) CalculateManagementFee(consumer common.Address, totalAssets *big.Int, now time.Time) (*big.Int, error) {
	release, err := a.guard.Enter("calculate_management_fee")
	if err != nil {
		return nil, err
	}
	defer release()

	if consumer == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}

	a.mu.RLock()
	state := a.states[consumer].clone()
	rate := a.rates.ManagementBps
	a.mu.RUnlock()

	fee := new(big.Int)
	if state.LastCollection.IsZero() {
		state.LastCollection = now
		return fee, a.commit(consumer, state)
	}

	elapsed := now.Unix() - state.LastCollection.Unix()
	if elapsed <= 0 {
		return fee, nil
	}

	if totalAssets != nil && totalAssets.Sign() > 0 && rate > 0 {
		fee.Mul(totalAssets, new(big.Int).SetUint64(rate))
		fee.Mul(fee, big.NewInt(elapsed))
		denominator := new(big.Int).Mul(new(big.Int).SetUint64(domain.BasisPoints), big.NewInt(domain.SecondsPerYear))
		fee.Quo(fee, denominator)
	}

	state.LastCollection = now
	if err := a.commit(consumer, state); err != nil {
		return nil, err
	}

	a.log.Debug().
		Str("consumer", consumer.Hex()).
		Int64("elapsed_seconds", elapsed).
		Str("fee", fee.String()).
		Msg("Management fee accrued")
	return fee, nil
}

// CalculatePerformanceFee charges the performance rate on appreciation above
// the high-water mark, then ratchets the mark up to sharePrice. A price at or
// below the mark yields zero and leaves the mark alone. Without a mark the
// current price becomes the baseline.
func (a *Accrual) CalculatePerformanceFee(consumer common.Address, sharePrice, totalSupply *big.Int, decimals uint8) (*big.Int, error) {
	release, err := a.guard.Enter("calculate_performance_fee")
	if err != nil {
		return nil, err
	}
	defer release()

	if consumer == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if sharePrice == nil || sharePrice.Sign() < 0 {
		return nil, fmt.Errorf("%w: share price must be non-negative", domain.ErrValueTooLow)
	}

	a.mu.RLock()
	state := a.states[consumer].clone()
	rate := a.rates.PerformanceBps
	a.mu.RUnlock()

	fee := new(big.Int)
	if state.HighWaterMark == nil {
		state.HighWaterMark = new(big.Int).Set(sharePrice)
		return fee, a.commit(consumer, state)
	}
	if sharePrice.Cmp(state.HighWaterMark) <= 0 {
		return fee, nil
	}

	if totalSupply != nil && totalSupply.Sign() > 0 {
		gain := new(big.Int).Sub(sharePrice, state.HighWaterMark)
		fee = domain.MulDivBps(gain, rate)
		fee.Mul(fee, totalSupply)
		fee.Quo(fee, domain.Pow10(decimals))
	}

	previous := state.HighWaterMark
	state.HighWaterMark = new(big.Int).Set(sharePrice)
	if err := a.commit(consumer, state); err != nil {
		return nil, err
	}

	a.log.Debug().
		Str("consumer", consumer.Hex()).
		Str("previous_mark", previous.String()).
		Str("new_mark", sharePrice.String()).
		Str("fee", fee.String()).
		Msg("Performance fee accrued")
	return fee, nil
}

// SetHighWaterMark overrides a consumer's mark for migration or recovery.
func (a *Accrual) SetHighWaterMark(consumer common.Address, mark *big.Int) error {
	release, err := a.guard.Enter("set_high_water_mark")
	if err != nil {
		return err
	}
	defer release()

	if consumer == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if mark == nil || mark.Sign() < 0 {
		return fmt.Errorf("%w: high-water mark must be non-negative", domain.ErrValueTooLow)
	}

	a.mu.RLock()
	state := a.states[consumer].clone()
	a.mu.RUnlock()

	state.HighWaterMark = new(big.Int).Set(mark)
	if err := a.commit(consumer, state); err != nil {
		return err
	}
	a.log.Info().Str("consumer", consumer.Hex()).Str("mark", mark.String()).Msg("High-water mark set")
	return nil
}

// SetLastCollection overrides a consumer's last collection time.
func (a *Accrual) SetLastCollection(consumer common.Address, ts time.Time) error {
	release, err := a.guard.Enter("set_last_collection")
	if err != nil {
		return err
	}
	defer release()

	if consumer == (common.Address{}) {
		return domain.ErrZeroAddress
	}

	a.mu.RLock()
	state := a.states[consumer].clone()
	a.mu.RUnlock()

	state.LastCollection = ts
	if err := a.commit(consumer, state); err != nil {
		return err
	}
	a.log.Info().Str("consumer", consumer.Hex()).Time("last_collection", ts).Msg("Last collection set")
	return nil
}

// commit persists state and then publishes it. Caller holds the guard.
func (a *Accrual) commit(consumer common.Address, state State) error {
	if a.store != nil {
		if err := a.store.SaveState(consumer, state); err != nil {
			return fmt.Errorf("failed to persist fee state: %w", err)
		}
	}
	a.mu.Lock()
	a.states[consumer] = state
	a.mu.Unlock()
	return nil
}
