package rebalancing

import (
	"math/big"
	"time"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/allocation"
	"github.com/aristath/sentinel-vault/internal/modules/registry"
)

// Action is what a pass did with one adapter.
type Action string

const (
	ActionDeposit  Action = "deposit"
	ActionWithdraw Action = "withdraw"
	ActionHold     Action = "hold"
)

// Position is one adapter's row in a tier snapshot.
type Position struct {
	Tier     domain.Tier
	Entry    registry.Entry
	Current  *big.Int
	Target   *big.Int
	Delta    *big.Int // Target - Current
	ValueErr error    // set when ValueOf failed and Current was taken as zero
	Removed  bool     // inactive entry still holding capital; Target is zero
}

// DeviationBps is |Delta| relative to Target.
func (p Position) DeviationBps() uint64 {
	return domain.DeviationBps(p.Current, p.Target)
}

// Snapshot is the ephemeral per-pass view of every active adapter.
type Snapshot struct {
	Buffer          *big.Int
	TotalValue      *big.Int
	Targets         allocation.Targets
	Positions       []Position
	MaxDeviationBps uint64
}

// TierValue sums the current value of tier's active adapters.
func (s *Snapshot) TierValue(tier domain.Tier) *big.Int {
	total := new(big.Int)
	for _, p := range s.Positions {
		if p.Tier == tier && !p.Removed {
			total.Add(total, p.Current)
		}
	}
	return total
}

// Degraded reports whether any active adapter could not be valued, in which
// case TotalValue understates the vault.
func (s *Snapshot) Degraded() bool {
	return len(s.Unvalued()) > 0
}

// Unvalued returns the active adapters whose ValueOf failed.
func (s *Snapshot) Unvalued() []string {
	out := make([]string, 0)
	for _, p := range s.Positions {
		if p.ValueErr != nil && !p.Removed {
			out = append(out, p.Entry.Adapter.Hex())
		}
	}
	return out
}

// Outcome is the tagged result of one adapter interaction.
type Outcome struct {
	Tier      domain.Tier
	Adapter   string
	Action    Action
	Requested *big.Int
	Moved     *big.Int
	Err       string
}

// Failed reports whether the interaction was recorded as a failure.
func (o Outcome) Failed() bool {
	return o.Err != ""
}

// Report summarises one rebalance pass.
type Report struct {
	ID              string
	StartedAt       time.Time
	CompletedAt     time.Time
	TotalValue      *big.Int
	Targets         allocation.Targets
	MaxDeviationBps uint64
	IntervalElapsed bool
	Degraded        bool // withdrawals from valued adapters were deferred
	Outcomes        []Outcome
}

// Failures counts failed adapter interactions.
func (r *Report) Failures() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}

// Moves counts successful deposits and withdrawals.
func (r *Report) Moves() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Failed() && o.Action != ActionHold {
			n++
		}
	}
	return n
}

// Partial reports whether some adapters could not be moved.
func (r *Report) Partial() bool {
	return r.Failures() > 0
}
