// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// BasisPoints is the 100% unit for all percentage math.
const BasisPoints uint64 = 10000

// SecondsPerYear is the proration base for annual fee rates.
const SecondsPerYear int64 = 365 * 24 * 60 * 60

// Tier identifies an adapter-backed allocation bucket.
// The liquidity buffer is the third bucket and has no registry.
type Tier int

const (
	// TierPrimary holds synthetic real-world-asset positions.
	TierPrimary Tier = iota
	// TierYield holds yield-bearing strategies.
	TierYield
)

// Tiers lists adapter tiers in processing order.
var Tiers = []Tier{TierPrimary, TierYield}

// String returns the tier name used in storage and the API.
func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierYield:
		return "yield"
	default:
		return "unknown"
	}
}

// ParseTier converts a tier name to a Tier.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "primary", "rwa":
		return TierPrimary, nil
	case "yield":
		return TierYield, nil
	default:
		return 0, fmt.Errorf("unknown tier %q", s)
	}
}

// MulDivBps returns amount * bps / 10000, truncating.
func MulDivBps(amount *big.Int, bps uint64) *big.Int {
	if amount == nil || amount.Sign() <= 0 || bps == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(bps))
	return out.Quo(out, new(big.Int).SetUint64(BasisPoints))
}

// DeviationBps returns |current - target| relative to target in basis points.
// A zero target with a non-zero current counts as a full 10000 bps deviation.
func DeviationBps(current, target *big.Int) uint64 {
	if target == nil || target.Sign() == 0 {
		if current == nil || current.Sign() == 0 {
			return 0
		}
		return BasisPoints
	}
	diff := new(big.Int).Sub(current, target)
	diff.Abs(diff)
	diff.Mul(diff, new(big.Int).SetUint64(BasisPoints))
	diff.Quo(diff, target)
	if !diff.IsUint64() {
		return ^uint64(0)
	}
	return diff.Uint64()
}

// MinBig returns the smaller of a and b.
func MinBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// CopyBig returns a defensive copy; nil becomes zero.
func CopyBig(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}

// Pow10 returns 10^decimals.
func Pow10(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
