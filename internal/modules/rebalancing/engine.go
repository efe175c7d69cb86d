// Package rebalancing provides the rebalance engine: it measures every active
// adapter, compares holdings to ledger targets and moves capital between the
// liquidity buffer and the adapters, isolating failures per adapter.
package rebalancing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/guard"
	"github.com/aristath/sentinel-vault/internal/modules/allocation"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// MaxRebalanceInterval bounds SetRiskParameters.
const MaxRebalanceInterval = 365 * 24 * time.Hour

// RiskParameters gate automatic rebalancing.
type RiskParameters struct {
	Interval     time.Duration `json:"interval"`
	ThresholdBps uint64        `json:"threshold_bps"`
}

// Validate enforces threshold in [1, 10000] and interval in [0, 365d].
func (p RiskParameters) Validate() error {
	if p.ThresholdBps == 0 {
		return fmt.Errorf("%w: threshold must be at least 1 bps", domain.ErrValueTooLow)
	}
	if p.ThresholdBps > domain.BasisPoints {
		return fmt.Errorf("%w: threshold %d bps", domain.ErrValueTooHigh, p.ThresholdBps)
	}
	if p.Interval < 0 || p.Interval > MaxRebalanceInterval {
		return fmt.Errorf("%w: interval %s", domain.ErrValueOutOfRange, p.Interval)
	}
	return nil
}

// State is the persisted engine state.
type State struct {
	LastRebalance time.Time
	Params        RiskParameters
}

// Store persists engine state and pass reports. A nil Store keeps state in memory.
type Store interface {
	LoadState() (*State, error)
	SaveState(state State) error
	SaveReport(report *Report) error
}

// Engine drives rebalance passes. Mutating calls share the manager guard with
// the allocation ledger, so no registry change can land mid-pass.
type Engine struct {
	ledger   *allocation.Ledger
	resolver domain.AdapterResolver
	reserve  domain.Reserve
	guard    *guard.Guard
	store    Store
	emitter  events.Emitter
	now      func() time.Time

	mu            sync.RWMutex
	params        RiskParameters
	lastRebalance time.Time // zero: never rebalanced

	log zerolog.Logger
}

// NewEngine creates an engine, restoring persisted state when available.
func NewEngine(
	ledger *allocation.Ledger,
	resolver domain.AdapterResolver,
	reserve domain.Reserve,
	g *guard.Guard,
	store Store,
	emitter events.Emitter,
	defaults RiskParameters,
	log zerolog.Logger,
) (*Engine, error) {
	e := &Engine{
		ledger:   ledger,
		resolver: resolver,
		reserve:  reserve,
		guard:    g,
		store:    store,
		emitter:  emitter,
		now:      time.Now,
		params:   defaults,
		log:      log.With().Str("service", "rebalancing").Logger(),
	}

	if store != nil {
		state, err := store.LoadState()
		if err != nil {
			return nil, fmt.Errorf("failed to load engine state: %w", err)
		}
		if state != nil {
			e.params = state.Params
			e.lastRebalance = state.LastRebalance
		}
	}
	if err := e.params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid risk parameters: %w", err)
	}
	return e, nil
}

// SetClock replaces the time source.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// RiskParameters returns the current gate configuration.
func (e *Engine) RiskParameters() RiskParameters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// LastRebalanceTimestamp returns the completion time of the last pass,
// or the zero time if none has run.
func (e *Engine) LastRebalanceTimestamp() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastRebalance
}

// SetRiskParameters updates the interval and threshold.
func (e *Engine) SetRiskParameters(interval time.Duration, thresholdBps uint64) error {
	release, err := e.guard.Enter("set_risk_parameters")
	if err != nil {
		return err
	}
	defer release()

	params := RiskParameters{Interval: interval, ThresholdBps: thresholdBps}
	if err := params.Validate(); err != nil {
		return err
	}

	e.mu.RLock()
	state := State{LastRebalance: e.lastRebalance, Params: params}
	e.mu.RUnlock()
	if e.store != nil {
		if err := e.store.SaveState(state); err != nil {
			return fmt.Errorf("failed to persist risk parameters: %w", err)
		}
	}

	e.mu.Lock()
	e.params = params
	e.mu.Unlock()

	e.log.Info().
		Dur("interval", interval).
		Uint64("threshold_bps", thresholdBps).
		Msg("Risk parameters updated")

	if e.emitter != nil {
		e.emitter.EmitTyped(events.RiskParametersChanged, "rebalancing", &events.RiskParametersChangedData{
			IntervalSeconds: int64(interval / time.Second),
			ThresholdBps:    thresholdBps,
		})
	}
	return nil
}

// Snapshot measures the buffer and every active adapter and computes targets.
// A failed or panicking ValueOf counts as zero for that adapter. Removed
// entries that still hold capital are included with a zero target so their
// residual is valued and withdrawn.
func (e *Engine) Snapshot(ctx context.Context) *Snapshot {
	snap := &Snapshot{
		Buffer:     domain.CopyBig(e.reserve.Balance()),
		TotalValue: new(big.Int),
	}
	snap.TotalValue.Add(snap.TotalValue, snap.Buffer)

	type tierView struct {
		tier      domain.Tier
		positions []Position
	}
	views := make([]tierView, 0, len(domain.Tiers))

	for _, tier := range domain.Tiers {
		view := tierView{tier: tier}
		for _, entry := range e.ledger.ActiveEntries(tier) {
			pos := Position{Tier: tier, Entry: entry, Current: new(big.Int)}
			adapter, ok := e.resolver.Resolve(entry.Adapter)
			if !ok {
				pos.ValueErr = fmt.Errorf("%w: %s", domain.ErrAdapterNotRegistered, entry.Adapter.Hex())
			} else if value, err := valueOf(ctx, adapter); err != nil {
				pos.ValueErr = err
			} else {
				pos.Current = value
			}
			if pos.ValueErr != nil {
				e.log.Warn().
					Err(pos.ValueErr).
					Str("tier", tier.String()).
					Str("adapter", entry.Adapter.Hex()).
					Msg("Adapter value unavailable, counting as zero")
			}
			snap.TotalValue.Add(snap.TotalValue, pos.Current)
			view.positions = append(view.positions, pos)
		}
		for _, pos := range e.residuals(ctx, tier) {
			snap.TotalValue.Add(snap.TotalValue, pos.Current)
			view.positions = append(view.positions, pos)
		}
		views = append(views, view)
	}

	snap.Targets = e.ledger.GetTargets(snap.TotalValue)

	for _, view := range views {
		reg := e.ledger.Registry(view.tier)
		shares := reg.Distribute(snap.Targets.ForTier(view.tier))
		targetOf := make(map[string]*big.Int, len(shares))
		for _, s := range shares {
			targetOf[s.Entry.Adapter.Hex()] = s.Amount
		}
		for _, pos := range view.positions {
			pos.Target = new(big.Int)
			if !pos.Removed {
				pos.Target = domain.CopyBig(targetOf[pos.Entry.Adapter.Hex()])
			}
			pos.Delta = new(big.Int).Sub(pos.Target, pos.Current)
			// An unvalued adapter's deviation says nothing about drift.
			if dev := pos.DeviationBps(); pos.ValueErr == nil && dev > snap.MaxDeviationBps {
				snap.MaxDeviationBps = dev
			}
			snap.Positions = append(snap.Positions, pos)
		}
	}

	return snap
}

// residuals values tier's removed entries and returns those still holding
// capital. Unresolvable or unvaluable removed adapters are skipped.
func (e *Engine) residuals(ctx context.Context, tier domain.Tier) []Position {
	var out []Position
	for _, entry := range e.ledger.Entries(tier) {
		if entry.Active {
			continue
		}
		adapter, ok := e.resolver.Resolve(entry.Adapter)
		if !ok {
			continue
		}
		value, err := valueOf(ctx, adapter)
		if err != nil {
			e.log.Debug().
				Err(err).
				Str("tier", tier.String()).
				Str("adapter", entry.Adapter.Hex()).
				Msg("Removed adapter value unavailable, skipping residual")
			continue
		}
		if value.Sign() > 0 {
			out = append(out, Position{Tier: tier, Entry: entry, Current: value, Removed: true})
		}
	}
	return out
}

// GetTotalValue returns buffer plus every adapter's value, counting failed
// valuations as zero.
func (e *Engine) GetTotalValue(ctx context.Context) *big.Int {
	return e.Snapshot(ctx).TotalValue
}

// TotalAssets returns the total value for pricing. It fails with
// ErrValuationUnavailable when any active adapter could not be valued.
func (e *Engine) TotalAssets(ctx context.Context) (*big.Int, error) {
	snap := e.Snapshot(ctx)
	if unvalued := snap.Unvalued(); len(unvalued) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrValuationUnavailable, strings.Join(unvalued, ","))
	}
	return snap.TotalValue, nil
}

// GetTierValue returns the summed value of a tier's active adapters.
func (e *Engine) GetTierValue(ctx context.Context, tier domain.Tier) *big.Int {
	return e.Snapshot(ctx).TierValue(tier)
}

// IsRebalanceNeeded evaluates the gate without moving capital.
func (e *Engine) IsRebalanceNeeded(ctx context.Context) bool {
	snap := e.Snapshot(ctx)
	_, err := e.gate(e.now(), snap.MaxDeviationBps)
	return err == nil
}

// gate passes once the interval has elapsed or when drift reaches the threshold.
func (e *Engine) gate(now time.Time, maxDeviationBps uint64) (intervalElapsed bool, err error) {
	e.mu.RLock()
	params, last := e.params, e.lastRebalance
	e.mu.RUnlock()

	intervalElapsed = last.IsZero() || now.Sub(last) >= params.Interval
	if intervalElapsed || maxDeviationBps >= params.ThresholdBps {
		return intervalElapsed, nil
	}
	return false, fmt.Errorf("%w: max deviation %d bps below threshold %d bps, next window at %s",
		domain.ErrTooEarly, maxDeviationBps, params.ThresholdBps, last.Add(params.Interval).Format(time.RFC3339))
}

// Rebalance runs one pass. It returns ErrTooEarly when the gate is closed and
// ErrReentrantCall when another mutating call is in progress; adapter failures
// are recorded in the report instead of failing the call.
func (e *Engine) Rebalance(ctx context.Context) (*Report, error) {
	release, err := e.guard.Enter("rebalance")
	if err != nil {
		return nil, err
	}
	defer release()
	defer utils.OperationTimer("rebalance", e.log)()

	started := e.now()
	snap := e.Snapshot(ctx)

	intervalElapsed, err := e.gate(started, snap.MaxDeviationBps)
	if err != nil {
		e.log.Debug().Err(err).Msg("Rebalance gate closed")
		return nil, err
	}

	report := &Report{
		ID:              uuid.New().String(),
		StartedAt:       started,
		TotalValue:      snap.TotalValue,
		Targets:         snap.Targets,
		MaxDeviationBps: snap.MaxDeviationBps,
		IntervalElapsed: intervalElapsed,
	}

	e.log.Info().
		Str("pass_id", report.ID).
		Str("total_value", snap.TotalValue.String()).
		Uint64("max_deviation_bps", snap.MaxDeviationBps).
		Bool("interval_elapsed", intervalElapsed).
		Msg("Rebalance started")

	// Withdrawals first so their proceeds can fund deposits in the same pass.
	// While any adapter is unvalued the total is understated, so targets are
	// too low: deposits stay safe but withdrawals from valued adapters wait.
	report.Degraded = snap.Degraded()
	var budget *big.Int // deposit allowance over the buffer target; nil is unlimited
	if report.Degraded {
		budget = new(big.Int).Sub(snap.Buffer, snap.Targets.Buffer)
		if budget.Sign() < 0 {
			budget.SetInt64(0)
		}
	}
	for _, pos := range snap.Positions {
		if pos.ValueErr != nil || pos.Delta.Sign() >= 0 {
			continue
		}
		if report.Degraded && !pos.Removed {
			report.Outcomes = append(report.Outcomes, hold(pos))
			continue
		}
		report.Outcomes = append(report.Outcomes, e.withdraw(ctx, pos, new(big.Int).Neg(pos.Delta)))
	}
	for _, pos := range snap.Positions {
		switch {
		case pos.ValueErr != nil:
			out := hold(pos)
			out.Requested = new(big.Int)
			report.Outcomes = append(report.Outcomes, e.fail(out, pos.ValueErr))
		case pos.Delta.Sign() > 0 && budget != nil && budget.Sign() == 0:
			report.Outcomes = append(report.Outcomes, hold(pos))
		case pos.Delta.Sign() > 0:
			out := e.deposit(ctx, pos, budget)
			if budget != nil {
				budget.Sub(budget, out.Moved)
			}
			report.Outcomes = append(report.Outcomes, out)
		case pos.Delta.Sign() == 0:
			report.Outcomes = append(report.Outcomes, hold(pos))
		}
	}

	completed := e.now()
	report.CompletedAt = completed

	e.mu.Lock()
	e.lastRebalance = completed
	state := State{LastRebalance: completed, Params: e.params}
	e.mu.Unlock()

	e.persist(state, report)

	e.log.Info().
		Str("pass_id", report.ID).
		Int("moves", report.Moves()).
		Int("failures", report.Failures()).
		Bool("degraded", report.Degraded).
		Dur("duration", completed.Sub(started)).
		Msg("Rebalance completed")

	if e.emitter != nil {
		e.emitter.EmitTyped(events.RebalanceCompleted, "rebalancing", &events.RebalanceCompletedData{
			ReportID:        report.ID,
			TotalValue:      report.TotalValue.String(),
			MaxDeviationBps: report.MaxDeviationBps,
			Moves:           report.Moves(),
			Failures:        report.Failures(),
			Partial:         report.Partial(),
		})
	}

	return report, nil
}

// RaiseLiquidity withdraws from adapters until the buffer holds at least
// amount or every adapter has been drained. Yield adapters are tapped before
// primary ones. It returns the buffer balance afterwards.
func (e *Engine) RaiseLiquidity(ctx context.Context, amount *big.Int) (*big.Int, []Outcome, error) {
	release, err := e.guard.Enter("raise_liquidity")
	if err != nil {
		return nil, nil, err
	}
	defer release()

	var outcomes []Outcome
	balance := e.reserve.Balance()
	if balance.Cmp(amount) >= 0 {
		return balance, nil, nil
	}

	snap := e.Snapshot(ctx)
	for i := len(domain.Tiers) - 1; i >= 0; i-- {
		tier := domain.Tiers[i]
		for _, pos := range snap.Positions {
			if pos.Tier != tier || pos.ValueErr != nil || pos.Current.Sign() == 0 {
				continue
			}
			short := new(big.Int).Sub(amount, e.reserve.Balance())
			if short.Sign() <= 0 {
				return e.reserve.Balance(), outcomes, nil
			}
			outcomes = append(outcomes, e.withdraw(ctx, pos, domain.MinBig(short, pos.Current)))
		}
	}

	balance = e.reserve.Balance()
	e.log.Info().
		Str("requested", amount.String()).
		Str("buffer", balance.String()).
		Int("withdrawals", len(outcomes)).
		Msg("Liquidity raised")
	return balance, outcomes, nil
}

func (e *Engine) withdraw(ctx context.Context, pos Position, amount *big.Int) Outcome {
	out := Outcome{
		Tier:      pos.Tier,
		Adapter:   pos.Entry.Adapter.Hex(),
		Action:    ActionWithdraw,
		Requested: new(big.Int).Set(amount),
		Moved:     new(big.Int),
	}

	adapter, ok := e.resolver.Resolve(pos.Entry.Adapter)
	if !ok {
		return e.fail(out, domain.ErrAdapterNotRegistered)
	}

	actual, err := isolate(func() (*big.Int, error) { return adapter.Withdraw(ctx, amount) })
	if err != nil {
		return e.fail(out, err)
	}
	if err := e.reserve.Credit(actual); err != nil {
		return e.fail(out, fmt.Errorf("failed to credit buffer with %s: %w", actual, err))
	}
	out.Moved = actual
	return out
}

// deposit funds an underweight adapter from the buffer, capped at the
// buffer's balance and at budget when set. A failed adapter call refunds
// the buffer.
func (e *Engine) deposit(ctx context.Context, pos Position, budget *big.Int) Outcome {
	out := Outcome{
		Tier:      pos.Tier,
		Adapter:   pos.Entry.Adapter.Hex(),
		Action:    ActionDeposit,
		Requested: new(big.Int).Set(pos.Delta),
		Moved:     new(big.Int),
	}

	adapter, ok := e.resolver.Resolve(pos.Entry.Adapter)
	if !ok {
		return e.fail(out, domain.ErrAdapterNotRegistered)
	}

	amount := domain.MinBig(pos.Delta, e.reserve.Balance())
	if budget != nil {
		amount = domain.MinBig(amount, budget)
	}
	if amount.Sign() == 0 {
		return e.fail(out, fmt.Errorf("%w: buffer is empty", domain.ErrInsufficientBalance))
	}
	if err := e.reserve.Debit(amount); err != nil {
		return e.fail(out, fmt.Errorf("failed to fund deposit: %w", err))
	}

	if _, err := isolate(func() (*big.Int, error) { return adapter.Deposit(ctx, amount) }); err != nil {
		if refundErr := e.reserve.Credit(amount); refundErr != nil {
			err = fmt.Errorf("%w (refund of %s also failed: %v)", err, amount, refundErr)
		}
		return e.fail(out, err)
	}
	out.Moved = amount
	return out
}

// hold records a position left untouched. Requested carries the delta that
// was not applied.
func hold(pos Position) Outcome {
	return Outcome{
		Tier:      pos.Tier,
		Adapter:   pos.Entry.Adapter.Hex(),
		Action:    ActionHold,
		Requested: new(big.Int).Abs(pos.Delta),
		Moved:     new(big.Int),
	}
}

func (e *Engine) fail(out Outcome, err error) Outcome {
	out.Err = err.Error()
	e.log.Warn().
		Err(err).
		Str("tier", out.Tier.String()).
		Str("adapter", out.Adapter).
		Str("action", string(out.Action)).
		Str("requested", out.Requested.String()).
		Msg("Adapter interaction failed, continuing pass")
	return out
}

func (e *Engine) persist(state State, report *Report) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveState(state); err != nil {
		e.log.Error().Err(err).Msg("Failed to persist engine state")
		e.emitError(err, report.ID)
	}
	if err := e.store.SaveReport(report); err != nil {
		e.log.Error().Err(err).Str("pass_id", report.ID).Msg("Failed to persist rebalance report")
		e.emitError(err, report.ID)
	}
}

func (e *Engine) emitError(err error, passID string) {
	if e.emitter == nil {
		return
	}
	e.emitter.EmitTyped(events.ErrorOccurred, "rebalancing", &events.ErrorEventData{
		Error:   err.Error(),
		Context: map[string]interface{}{"pass_id": passID},
	})
}

// errAdapterPanic wraps a recovered adapter panic.
var errAdapterPanic = errors.New("adapter panicked")

// isolate runs one adapter call, converting a panic into an error.
func isolate(call func() (*big.Int, error)) (result *big.Int, err error) {
	defer func() {
		if p := recover(); p != nil {
			result = nil
			err = fmt.Errorf("%w: %v", errAdapterPanic, p)
		}
	}()

	result, err = call()
	if err == nil && result == nil {
		result = new(big.Int)
	}
	if err == nil && result.Sign() < 0 {
		return nil, fmt.Errorf("adapter returned negative amount %s", result)
	}
	return result, err
}

func valueOf(ctx context.Context, adapter domain.Adapter) (*big.Int, error) {
	return isolate(func() (*big.Int, error) { return adapter.ValueOf(ctx) })
}
