package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Adapter is the narrow port every strategy or synthetic-asset integration
// satisfies. Implementations are external collaborators: any call may fail,
// and the engine isolates those failures per adapter.
type Adapter interface {
	// Deposit moves amount (already made available by the caller) into the
	// adapter and returns the shares or receipt amount it minted.
	Deposit(ctx context.Context, amount *big.Int) (*big.Int, error)

	// Withdraw pulls amount back to the vault and returns what was actually
	// delivered, which may be less than requested.
	Withdraw(ctx context.Context, amount *big.Int) (*big.Int, error)

	// ValueOf reports the adapter's holdings in base-asset units.
	// It must not mutate adapter state.
	ValueOf(ctx context.Context) (*big.Int, error)
}

// AdapterResolver maps registry addresses to live adapter implementations.
type AdapterResolver interface {
	Resolve(addr common.Address) (Adapter, bool)
}

// Reserve is the idle liquidity buffer held by the vault in base-asset units.
// Debit models the token transfer out of the buffer and may fail.
type Reserve interface {
	Balance() *big.Int
	Debit(amount *big.Int) error
	Credit(amount *big.Int) error
}
