package adapters

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
)

// Simulated is an in-process strategy that accrues simple interest at a fixed
// annual rate. It backs dev mode and demos.
type Simulated struct {
	mu        sync.Mutex
	principal *big.Int
	aprBps    uint64
	accrued   time.Time
	now       func() time.Time
}

// NewSimulated creates an empty strategy yielding aprBps per year.
func NewSimulated(aprBps uint64) *Simulated {
	return &Simulated{
		principal: new(big.Int),
		aprBps:    aprBps,
		now:       time.Now,
	}
}

// SetClock replaces the time source.
func (s *Simulated) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Deposit implements domain.Adapter.
func (s *Simulated) Deposit(_ context.Context, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: deposit must be positive", domain.ErrValueTooLow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accrue()
	s.principal.Add(s.principal, amount)
	return new(big.Int).Set(amount), nil
}

// Withdraw implements domain.Adapter. It delivers at most the current value.
func (s *Simulated) Withdraw(_ context.Context, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: withdrawal must be positive", domain.ErrValueTooLow)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accrue()
	actual := domain.MinBig(amount, s.principal)
	s.principal.Sub(s.principal, actual)
	return actual, nil
}

// ValueOf implements domain.Adapter.
func (s *Simulated) ValueOf(context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accrue()
	return new(big.Int).Set(s.principal), nil
}

// accrue folds interest since the last accrual into principal.
func (s *Simulated) accrue() {
	now := s.now()
	if s.accrued.IsZero() {
		s.accrued = now
		return
	}
	elapsed := now.Unix() - s.accrued.Unix()
	if elapsed <= 0 {
		return
	}
	interest := domain.MulDivBps(s.principal, s.aprBps)
	interest.Mul(interest, big.NewInt(elapsed))
	interest.Quo(interest, big.NewInt(domain.SecondsPerYear))
	if interest.Sign() == 0 && s.principal.Sign() > 0 {
		return
	}
	s.principal.Add(s.principal, interest)
	s.accrued = now
}
