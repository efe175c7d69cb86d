// Package guard provides the call-scoped reentrancy guard shared by the
// state-mutating entry points of a component.
package guard

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/aristath/sentinel-vault/internal/domain"
)

// Guard serializes a mutating surface. A second Enter while the guard is held,
// whether nested on the same call path or from another goroutine, fails fast
// with domain.ErrReentrantCall instead of blocking.
type Guard struct {
	name   string
	held   atomic.Bool
	holder atomic.Value // string: operation currently holding the guard
}

// New creates a guard. The name shows up in error messages.
func New(name string) *Guard {
	return &Guard{name: name}
}

// Enter acquires the guard for op. The returned release func must be deferred;
// it is idempotent so early returns and panics unwind cleanly.
//
//	release, err := g.Enter("rebalance")
//	if err != nil {
//		return err
//	}
//	defer release()
func (g *Guard) Enter(op string) (func(), error) {
	if !g.held.CompareAndSwap(false, true) {
		current, _ := g.holder.Load().(string)
		return func() {}, fmt.Errorf("%w: %s.%s while %s is in progress", domain.ErrReentrantCall, g.name, op, current)
	}
	g.holder.Store(op)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.holder.Store("")
			g.held.Store(false)
		})
	}, nil
}

// Held reports whether some operation currently holds the guard.
func (g *Guard) Held() bool {
	return g.held.Load()
}
