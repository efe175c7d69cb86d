// Package registry provides the weighted, insertion-ordered adapter registry
// used by each allocation tier.
package registry

import (
	"fmt"
	"math/big"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aristath/sentinel-vault/internal/domain"
)

// Entry is one adapter in a tier. Removed entries stay in the registry with
// Weight 0 and Active false.
type Entry struct {
	Adapter common.Address `json:"adapter"`
	Weight  uint64         `json:"weight"`
	Active  bool           `json:"active"`
}

// Share is an entry's portion of a tier value.
type Share struct {
	Entry  Entry    `json:"entry"`
	Amount *big.Int `json:"amount"`
}

// Registry is not safe for concurrent use; owners hand out clones to readers.
type Registry struct {
	entries     map[common.Address]*Entry
	order       []common.Address
	totalActive uint64
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[common.Address]*Entry),
	}
}

// FromEntries rebuilds a registry from persisted entries, preserving order.
func FromEntries(entries []Entry) (*Registry, error) {
	r := New()
	for _, e := range entries {
		if _, exists := r.entries[e.Adapter]; exists {
			return nil, fmt.Errorf("%w: duplicate entry %s", domain.ErrAlreadyExists, e.Adapter.Hex())
		}
		entry := e
		if !entry.Active {
			entry.Weight = 0
		}
		if entry.Active {
			total, carry := bits.Add64(r.totalActive, entry.Weight, 0)
			if carry != 0 {
				return nil, fmt.Errorf("%w: total active weight overflows", domain.ErrValueTooHigh)
			}
			r.totalActive = total
		}
		r.entries[entry.Adapter] = &entry
		r.order = append(r.order, entry.Adapter)
	}
	return r, nil
}

// Add registers a new adapter with weight.
func (r *Registry) Add(adapter common.Address, weight uint64) error {
	if adapter == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if weight == 0 {
		return fmt.Errorf("%w: weight must be positive", domain.ErrValueTooLow)
	}
	if _, exists := r.entries[adapter]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, adapter.Hex())
	}
	total, carry := bits.Add64(r.totalActive, weight, 0)
	if carry != 0 {
		return fmt.Errorf("%w: total active weight overflows", domain.ErrValueTooHigh)
	}

	r.entries[adapter] = &Entry{Adapter: adapter, Weight: weight, Active: true}
	r.order = append(r.order, adapter)
	r.totalActive = total
	return nil
}

// Update changes an entry's weight. Updating a removed entry re-activates it.
func (r *Registry) Update(adapter common.Address, weight uint64) error {
	entry, exists := r.entries[adapter]
	if !exists {
		return fmt.Errorf("%w: %s", domain.ErrTokenNotFound, adapter.Hex())
	}
	if weight == 0 {
		return fmt.Errorf("%w: weight must be positive", domain.ErrValueTooLow)
	}

	base := r.totalActive
	if entry.Active {
		base -= entry.Weight
	}
	total, carry := bits.Add64(base, weight, 0)
	if carry != 0 {
		return fmt.Errorf("%w: total active weight overflows", domain.ErrValueTooHigh)
	}

	entry.Weight = weight
	entry.Active = true
	r.totalActive = total
	return nil
}

// Remove soft-deletes an active entry. Remaining weights are untouched, so
// their share of the tier grows with the smaller denominator.
func (r *Registry) Remove(adapter common.Address) error {
	entry, exists := r.entries[adapter]
	if !exists || !entry.Active {
		return fmt.Errorf("%w: %s", domain.ErrTokenNotFound, adapter.Hex())
	}
	r.totalActive -= entry.Weight
	entry.Weight = 0
	entry.Active = false
	return nil
}

// Get returns the entry for adapter, active or not.
func (r *Registry) Get(adapter common.Address) (Entry, bool) {
	entry, exists := r.entries[adapter]
	if !exists {
		return Entry{}, false
	}
	return *entry, true
}

// Entries returns every entry, removed ones included, in insertion order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, addr := range r.order {
		out = append(out, *r.entries[addr])
	}
	return out
}

// ActiveEntries returns active entries in insertion order.
func (r *Registry) ActiveEntries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, addr := range r.order {
		if e := r.entries[addr]; e.Active {
			out = append(out, *e)
		}
	}
	return out
}

// TotalActiveWeight is the denominator of every share.
func (r *Registry) TotalActiveWeight() uint64 {
	return r.totalActive
}

// TargetShare returns tierValue * weight / totalActiveWeight, truncated.
// Removed entries get zero.
func (r *Registry) TargetShare(adapter common.Address, tierValue *big.Int) (*big.Int, error) {
	entry, exists := r.entries[adapter]
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrTokenNotFound, adapter.Hex())
	}
	if !entry.Active || r.totalActive == 0 {
		return new(big.Int), nil
	}
	return r.share(entry.Weight, tierValue), nil
}

// Distribute splits tierValue across active entries. The last active entry
// absorbs the truncation remainder, so the amounts sum to exactly tierValue
// whenever at least one entry is active.
func (r *Registry) Distribute(tierValue *big.Int) []Share {
	active := r.ActiveEntries()
	shares := make([]Share, 0, len(active))
	if len(active) == 0 {
		return shares
	}

	allocated := new(big.Int)
	for i, e := range active {
		var amount *big.Int
		if i == len(active)-1 {
			amount = new(big.Int).Sub(domain.CopyBig(tierValue), allocated)
			if amount.Sign() < 0 {
				amount.SetInt64(0)
			}
		} else {
			amount = r.share(e.Weight, tierValue)
		}
		allocated.Add(allocated, amount)
		shares = append(shares, Share{Entry: e, Amount: amount})
	}
	return shares
}

// Clone returns an independent copy.
func (r *Registry) Clone() *Registry {
	c := &Registry{
		entries:     make(map[common.Address]*Entry, len(r.entries)),
		order:       append([]common.Address(nil), r.order...),
		totalActive: r.totalActive,
	}
	for addr, e := range r.entries {
		entry := *e
		c.entries[addr] = &entry
	}
	return c
}

func (r *Registry) share(weight uint64, tierValue *big.Int) *big.Int {
	if tierValue == nil || tierValue.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(tierValue, new(big.Int).SetUint64(weight))
	return out.Quo(out, new(big.Int).SetUint64(r.totalActive))
}
