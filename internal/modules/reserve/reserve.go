// Package reserve holds the vault's idle base-asset balance: the liquidity
// buffer the rebalancing engine funds deposits from and returns withdrawals to.
package reserve

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
)

// Store persists the balance. A nil Store keeps it in memory.
type Store interface {
	LoadBalance() (*big.Int, error)
	SaveBalance(balance *big.Int) error
}

// Account implements domain.Reserve with write-through persistence.
type Account struct {
	mu      sync.Mutex
	balance *big.Int
	store   Store
	log     zerolog.Logger
}

var _ domain.Reserve = (*Account)(nil)

// NewAccount loads the stored balance, starting from zero if none exists.
func NewAccount(store Store, log zerolog.Logger) (*Account, error) {
	a := &Account{
		balance: new(big.Int),
		store:   store,
		log:     log.With().Str("service", "reserve").Logger(),
	}
	if store != nil {
		balance, err := store.LoadBalance()
		if err != nil {
			return nil, fmt.Errorf("failed to load reserve balance: %w", err)
		}
		if balance != nil {
			a.balance = balance
		}
	}
	return a, nil
}

// Balance returns a copy of the current balance.
func (a *Account) Balance() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.balance)
}

// Debit removes amount from the buffer.
func (a *Account) Debit(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: negative debit", domain.ErrValueTooLow)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: reserve holds %s, debit %s", domain.ErrInsufficientBalance, a.balance, amount)
	}
	return a.apply(new(big.Int).Sub(a.balance, amount))
}

// Credit adds amount to the buffer.
func (a *Account) Credit(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: negative credit", domain.ErrValueTooLow)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	return a.apply(new(big.Int).Add(a.balance, amount))
}

// apply persists next and then swaps it in. Caller holds mu.
func (a *Account) apply(next *big.Int) error {
	if a.store != nil {
		if err := a.store.SaveBalance(next); err != nil {
			return fmt.Errorf("failed to persist reserve balance: %w", err)
		}
	}
	a.log.Debug().
		Str("from", a.balance.String()).
		Str("to", next.String()).
		Msg("Reserve balance changed")
	a.balance = next
	return nil
}
