// Package vault provides share accounting on top of the rebalancing engine:
// deposits mint shares and trigger an allocation pass, withdrawals burn shares
// and raise liquidity from adapters when the buffer is short, and fee
// collection mints fee shares to the recipient.
package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/events"
	"github.com/aristath/sentinel-vault/internal/guard"
	"github.com/aristath/sentinel-vault/internal/modules/fees"
	"github.com/aristath/sentinel-vault/internal/modules/rebalancing"
)

// Engine is the slice of the rebalancing engine the vault drives.
type Engine interface {
	GetTotalValue(ctx context.Context) *big.Int
	TotalAssets(ctx context.Context) (*big.Int, error)
	Rebalance(ctx context.Context) (*rebalancing.Report, error)
	RaiseLiquidity(ctx context.Context, amount *big.Int) (*big.Int, []rebalancing.Outcome, error)
}

// Store persists share balances and supply. A nil Store keeps them in memory.
type Store interface {
	LoadSupply() (*big.Int, error)
	LoadBalances() (map[common.Address]*big.Int, error)
	SaveAccount(owner common.Address, balance, supply *big.Int) error
}

// Config identifies the vault and its fee recipient.
type Config struct {
	Address      common.Address
	FeeRecipient common.Address
	Decimals     uint8
}

// DepositResult describes a processed deposit.
type DepositResult struct {
	Shares *big.Int
	Report *rebalancing.Report // nil when no pass ran
}

// FeeCollection describes one fee collection.
type FeeCollection struct {
	ManagementFee  *big.Int
	PerformanceFee *big.Int
	SharesMinted   *big.Int
	SharePrice     *big.Int
}

// Vault owns share balances.
type Vault struct {
	cfg     Config
	engine  Engine
	reserve domain.Reserve
	accrual *fees.Accrual
	guard   *guard.Guard
	store   Store
	emitter events.Emitter
	now     func() time.Time

	mu          sync.RWMutex
	totalSupply *big.Int
	balances    map[common.Address]*big.Int

	log zerolog.Logger
}

// New creates a vault, restoring persisted balances.
func New(
	cfg Config,
	engine Engine,
	reserve domain.Reserve,
	accrual *fees.Accrual,
	g *guard.Guard,
	store Store,
	emitter events.Emitter,
	log zerolog.Logger,
) (*Vault, error) {
	if cfg.Address == (common.Address{}) {
		return nil, fmt.Errorf("vault address: %w", domain.ErrZeroAddress)
	}
	if cfg.FeeRecipient == (common.Address{}) {
		return nil, fmt.Errorf("fee recipient: %w", domain.ErrZeroAddress)
	}

	v := &Vault{
		cfg:         cfg,
		engine:      engine,
		reserve:     reserve,
		accrual:     accrual,
		guard:       g,
		store:       store,
		emitter:     emitter,
		now:         time.Now,
		totalSupply: new(big.Int),
		balances:    make(map[common.Address]*big.Int),
		log:         log.With().Str("service", "vault").Str("vault", cfg.Address.Hex()).Logger(),
	}

	if store != nil {
		supply, err := store.LoadSupply()
		if err != nil {
			return nil, fmt.Errorf("failed to load total supply: %w", err)
		}
		if supply != nil {
			v.totalSupply = supply
		}
		balances, err := store.LoadBalances()
		if err != nil {
			return nil, fmt.Errorf("failed to load balances: %w", err)
		}
		for owner, balance := range balances {
			v.balances[owner] = balance
		}
	}
	return v, nil
}

// SetClock replaces the time source used for fee accrual.
func (v *Vault) SetClock(now func() time.Time) {
	v.now = now
}

// Address returns the vault's consumer id.
func (v *Vault) Address() common.Address {
	return v.cfg.Address
}

// Decimals returns the share and asset precision.
func (v *Vault) Decimals() uint8 {
	return v.cfg.Decimals
}

// TotalSupply returns outstanding shares.
func (v *Vault) TotalSupply() *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return new(big.Int).Set(v.totalSupply)
}

// BalanceOf returns owner's shares.
func (v *Vault) BalanceOf(owner common.Address) *big.Int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return domain.CopyBig(v.balances[owner])
}

// TotalAssets is the buffer plus every adapter's value. Adapters that cannot
// be valued count as zero; pricing paths reject that case instead.
func (v *Vault) TotalAssets(ctx context.Context) *big.Int {
	return v.engine.GetTotalValue(ctx)
}

// SharePrice is assets per 10^decimals shares; 10^decimals at zero supply.
func (v *Vault) SharePrice(ctx context.Context) *big.Int {
	return sharePrice(v.TotalAssets(ctx), v.TotalSupply(), v.cfg.Decimals)
}

func sharePrice(totalAssets, supply *big.Int, decimals uint8) *big.Int {
	unit := domain.Pow10(decimals)
	if supply.Sign() == 0 {
		return unit
	}
	price := new(big.Int).Mul(totalAssets, unit)
	return price.Quo(price, supply)
}

// Deposit credits assets to the buffer, mints shares to owner and runs an
// allocation pass. A closed rebalance gate is not an error.
func (v *Vault) Deposit(ctx context.Context, owner common.Address, assets *big.Int) (*DepositResult, error) {
	release, err := v.guard.Enter("deposit")
	if err != nil {
		return nil, err
	}
	defer release()

	if owner == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if assets == nil || assets.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit must be positive", domain.ErrValueTooLow)
	}

	totalAssets, err := v.engine.TotalAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("deposit rejected: %w", err)
	}
	supply := v.TotalSupply()

	shares := new(big.Int).Set(assets)
	if supply.Sign() > 0 && totalAssets.Sign() > 0 {
		shares.Mul(assets, supply)
		shares.Quo(shares, totalAssets)
	}
	if shares.Sign() == 0 {
		return nil, fmt.Errorf("%w: deposit of %s mints no shares", domain.ErrValueTooLow, assets)
	}

	if err := v.reserve.Credit(assets); err != nil {
		return nil, fmt.Errorf("failed to credit buffer: %w", err)
	}
	if err := v.mint(owner, shares); err != nil {
		if rollbackErr := v.reserve.Debit(assets); rollbackErr != nil {
			v.log.Error().Err(rollbackErr).Str("assets", assets.String()).Msg("Failed to roll back buffer credit")
		}
		return nil, err
	}

	v.log.Info().
		Str("owner", owner.Hex()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Deposit processed")
	v.emitFlow(events.DepositProcessed, owner, assets, shares)

	result := &DepositResult{Shares: shares}
	report, err := v.engine.Rebalance(ctx)
	switch {
	case err == nil:
		result.Report = report
	case errors.Is(err, domain.ErrTooEarly):
		v.log.Debug().Msg("Deposit left in buffer until next rebalance window")
	default:
		v.log.Warn().Err(err).Msg("Allocation after deposit skipped")
	}
	return result, nil
}

// Withdraw burns shares from owner and pays out their asset value from the
// buffer, raising liquidity from adapters first when needed.
func (v *Vault) Withdraw(ctx context.Context, owner common.Address, shares *big.Int) (*big.Int, error) {
	release, err := v.guard.Enter("withdraw")
	if err != nil {
		return nil, err
	}
	defer release()

	if owner == (common.Address{}) {
		return nil, domain.ErrZeroAddress
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, fmt.Errorf("%w: shares must be positive", domain.ErrValueTooLow)
	}
	if balance := v.BalanceOf(owner); balance.Cmp(shares) < 0 {
		return nil, fmt.Errorf("%w: %s holds %s shares, requested %s", domain.ErrInsufficientBalance, owner.Hex(), balance, shares)
	}

	totalAssets, err := v.engine.TotalAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("withdrawal rejected: %w", err)
	}
	supply := v.TotalSupply()
	assets := new(big.Int).Mul(shares, totalAssets)
	assets.Quo(assets, supply)

	if v.reserve.Balance().Cmp(assets) < 0 {
		if _, _, err := v.engine.RaiseLiquidity(ctx, assets); err != nil {
			return nil, fmt.Errorf("failed to raise liquidity: %w", err)
		}
	}
	if err := v.reserve.Debit(assets); err != nil {
		return nil, fmt.Errorf("failed to pay out %s: %w", assets, err)
	}
	if err := v.burn(owner, shares); err != nil {
		if rollbackErr := v.reserve.Credit(assets); rollbackErr != nil {
			v.log.Error().Err(rollbackErr).Str("assets", assets.String()).Msg("Failed to roll back buffer debit")
		}
		return nil, err
	}

	v.log.Info().
		Str("owner", owner.Hex()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Msg("Withdrawal processed")
	v.emitFlow(events.WithdrawalProcessed, owner, assets, shares)
	return assets, nil
}

// CollectFees accrues management and performance fees for this vault and
// mints the equivalent shares to the fee recipient.
func (v *Vault) CollectFees(ctx context.Context) (*FeeCollection, error) {
	release, err := v.guard.Enter("collect_fees")
	if err != nil {
		return nil, err
	}
	defer release()

	totalAssets, err := v.engine.TotalAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("fee collection deferred: %w", err)
	}
	supply := v.TotalSupply()
	price := sharePrice(totalAssets, supply, v.cfg.Decimals)

	management, err := v.accrual.CalculateManagementFee(v.cfg.Address, totalAssets, v.now())
	if err != nil {
		return nil, fmt.Errorf("failed to calculate management fee: %w", err)
	}
	performance, err := v.accrual.CalculatePerformanceFee(v.cfg.Address, price, supply, v.cfg.Decimals)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate performance fee: %w", err)
	}

	collection := &FeeCollection{
		ManagementFee:  management,
		PerformanceFee: performance,
		SharesMinted:   new(big.Int),
		SharePrice:     price,
	}

	// Minting fee/(assets-fee) of supply leaves the recipient holding exactly
	// fee worth of assets after dilution.
	fee := new(big.Int).Add(management, performance)
	net := new(big.Int).Sub(totalAssets, fee)
	if fee.Sign() > 0 && supply.Sign() > 0 && net.Sign() > 0 {
		collection.SharesMinted.Mul(fee, supply)
		collection.SharesMinted.Quo(collection.SharesMinted, net)
	}
	if collection.SharesMinted.Sign() > 0 {
		if err := v.mint(v.cfg.FeeRecipient, collection.SharesMinted); err != nil {
			return nil, err
		}
	}

	v.log.Info().
		Str("management_fee", management.String()).
		Str("performance_fee", performance.String()).
		Str("shares_minted", collection.SharesMinted.String()).
		Str("share_price", price.String()).
		Msg("Fees collected")

	if v.emitter != nil {
		v.emitter.EmitTyped(events.FeesCollected, "vault", &events.FeesCollectedData{
			Consumer:       v.cfg.Address.Hex(),
			ManagementFee:  management.String(),
			PerformanceFee: performance.String(),
			SharesMinted:   collection.SharesMinted.String(),
			Recipient:      v.cfg.FeeRecipient.Hex(),
		})
	}
	return collection, nil
}

func (v *Vault) mint(owner common.Address, shares *big.Int) error {
	return v.apply(owner, shares)
}

func (v *Vault) burn(owner common.Address, shares *big.Int) error {
	return v.apply(owner, new(big.Int).Neg(shares))
}

// apply adds delta to owner's balance and the supply, persisting first.
func (v *Vault) apply(owner common.Address, delta *big.Int) error {
	v.mu.RLock()
	balance := new(big.Int).Add(domain.CopyBig(v.balances[owner]), delta)
	supply := new(big.Int).Add(v.totalSupply, delta)
	v.mu.RUnlock()

	if balance.Sign() < 0 || supply.Sign() < 0 {
		return fmt.Errorf("%w: balance would go negative", domain.ErrInsufficientBalance)
	}
	if v.store != nil {
		if err := v.store.SaveAccount(owner, balance, supply); err != nil {
			return fmt.Errorf("failed to persist shares: %w", err)
		}
	}

	v.mu.Lock()
	v.balances[owner] = balance
	v.totalSupply = supply
	v.mu.Unlock()
	return nil
}

func (v *Vault) emitFlow(eventType events.EventType, owner common.Address, assets, shares *big.Int) {
	if v.emitter == nil {
		return
	}
	v.emitter.EmitTyped(eventType, "vault", &events.VaultFlowData{
		Type:   eventType,
		Owner:  owner.Hex(),
		Assets: assets.String(),
		Shares: shares.String(),
	})
}
