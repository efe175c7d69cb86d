// Package adapters provides the adapter implementations the engine talks to:
// remote strategy services over HTTP and simulated in-process strategies,
// both resolved by address through a Directory.
package adapters

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
)

// Directory maps adapter addresses to implementations.
type Directory struct {
	mu       sync.RWMutex
	adapters map[common.Address]domain.Adapter
	log      zerolog.Logger
}

// NewDirectory creates an empty directory.
func NewDirectory(log zerolog.Logger) *Directory {
	return &Directory{
		adapters: make(map[common.Address]domain.Adapter),
		log:      log.With().Str("component", "adapter_directory").Logger(),
	}
}

// Register binds addr to adapter.
func (d *Directory) Register(addr common.Address, adapter domain.Adapter) error {
	if addr == (common.Address{}) {
		return domain.ErrZeroAddress
	}
	if adapter == nil {
		return fmt.Errorf("nil adapter for %s", addr.Hex())
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.adapters[addr]; exists {
		return fmt.Errorf("%w: adapter %s", domain.ErrAlreadyExists, addr.Hex())
	}
	d.adapters[addr] = adapter

	d.log.Info().Str("adapter", addr.Hex()).Str("kind", fmt.Sprintf("%T", adapter)).Msg("Adapter registered")
	return nil
}

// Resolve implements domain.AdapterResolver.
func (d *Directory) Resolve(addr common.Address) (domain.Adapter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	adapter, ok := d.adapters[addr]
	return adapter, ok
}

// Addresses returns registered addresses sorted by hex.
func (d *Directory) Addresses() []common.Address {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]common.Address, 0, len(d.adapters))
	for addr := range d.adapters {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}
