package testing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aristath/sentinel-vault/internal/domain"
)

// ErrMockRevert is the default failure returned by mocks set to fail.
var ErrMockRevert = errors.New("execution reverted")

// MockAdapter is an in-memory domain.Adapter with failure and callback injection.
type MockAdapter struct {
	mu          sync.Mutex
	value       *big.Int
	depositErr  error
	withdrawErr error
	valueErr    error
	panicOn     string
	onDeposit   func(ctx context.Context, amount *big.Int)
	deposits    int
	withdrawals int
}

// NewMockAdapter creates a mock adapter holding value.
func NewMockAdapter(value int64) *MockAdapter {
	return &MockAdapter{value: big.NewInt(value)}
}

// SetValue overrides the reported holdings (simulates yield or loss).
func (m *MockAdapter) SetValue(value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = big.NewInt(value)
}

// FailDeposits makes Deposit return err (nil clears).
func (m *MockAdapter) FailDeposits(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.depositErr = err
}

// FailWithdrawals makes Withdraw return err (nil clears).
func (m *MockAdapter) FailWithdrawals(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdrawErr = err
}

// FailValue makes ValueOf return err (nil clears).
func (m *MockAdapter) FailValue(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.valueErr = err
}

// PanicOn makes the named method ("deposit", "withdraw", "value") panic.
func (m *MockAdapter) PanicOn(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panicOn = method
}

// OnDeposit registers a hook invoked before a deposit is applied.
// The mock lock is not held while the hook runs.
func (m *MockAdapter) OnDeposit(fn func(ctx context.Context, amount *big.Int)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onDeposit = fn
}

// Value returns the current holdings.
func (m *MockAdapter) Value() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.value)
}

// Calls returns how many deposits and withdrawals succeeded.
func (m *MockAdapter) Calls() (deposits, withdrawals int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deposits, m.withdrawals
}

// Deposit implements domain.Adapter.
func (m *MockAdapter) Deposit(ctx context.Context, amount *big.Int) (*big.Int, error) {
	m.mu.Lock()
	hook := m.onDeposit
	m.mu.Unlock()
	if hook != nil {
		hook(ctx, amount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn == "deposit" {
		panic("mock adapter: deposit panic")
	}
	if m.depositErr != nil {
		return nil, m.depositErr
	}
	m.value.Add(m.value, amount)
	m.deposits++
	return new(big.Int).Set(amount), nil
}

// Withdraw implements domain.Adapter. It delivers at most the current holdings.
func (m *MockAdapter) Withdraw(_ context.Context, amount *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn == "withdraw" {
		panic("mock adapter: withdraw panic")
	}
	if m.withdrawErr != nil {
		return nil, m.withdrawErr
	}
	actual := new(big.Int).Set(amount)
	if actual.Cmp(m.value) > 0 {
		actual.Set(m.value)
	}
	m.value.Sub(m.value, actual)
	m.withdrawals++
	return actual, nil
}

// ValueOf implements domain.Adapter.
func (m *MockAdapter) ValueOf(context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn == "value" {
		panic("mock adapter: value panic")
	}
	if m.valueErr != nil {
		return nil, m.valueErr
	}
	return new(big.Int).Set(m.value), nil
}

// MockResolver is a map-backed domain.AdapterResolver.
type MockResolver struct {
	mu       sync.RWMutex
	adapters map[common.Address]domain.Adapter
}

// NewMockResolver creates an empty resolver.
func NewMockResolver() *MockResolver {
	return &MockResolver{adapters: make(map[common.Address]domain.Adapter)}
}

// Set registers adapter under addr.
func (r *MockResolver) Set(addr common.Address, adapter domain.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[addr] = adapter
}

// Resolve implements domain.AdapterResolver.
func (r *MockResolver) Resolve(addr common.Address) (domain.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[addr]
	return a, ok
}

// MockReserve is an in-memory domain.Reserve whose debits can be made to fail.
type MockReserve struct {
	mu       sync.Mutex
	balance  *big.Int
	debitErr error
}

// NewMockReserve creates a reserve holding balance.
func NewMockReserve(balance int64) *MockReserve {
	return &MockReserve{balance: big.NewInt(balance)}
}

// FailDebits makes Debit return err (nil clears).
func (r *MockReserve) FailDebits(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.debitErr = err
}

// Balance implements domain.Reserve.
func (r *MockReserve) Balance() *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return new(big.Int).Set(r.balance)
}

// Debit implements domain.Reserve.
func (r *MockReserve) Debit(amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.debitErr != nil {
		return r.debitErr
	}
	if amount.Cmp(r.balance) > 0 {
		return fmt.Errorf("%w: have %s, need %s", domain.ErrInsufficientBalance, r.balance, amount)
	}
	r.balance.Sub(r.balance, amount)
	return nil
}

// Credit implements domain.Reserve.
func (r *MockReserve) Credit(amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balance.Add(r.balance, amount)
	return nil
}
