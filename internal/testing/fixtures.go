package testing

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Well-known addresses used across tests.
var (
	AdminAddress    = common.HexToAddress("0x000000000000000000000000000000000000ad01")
	VaultAddress    = common.HexToAddress("0x000000000000000000000000000000000000a001")
	FeeRecipient    = common.HexToAddress("0x000000000000000000000000000000000000fee0")
	DepositorAlice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	DepositorBob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	RWAAdapter      = common.HexToAddress("0x0000000000000000000000000000000000001001")
	StrategyA       = common.HexToAddress("0x0000000000000000000000000000000000002001")
	StrategyB       = common.HexToAddress("0x0000000000000000000000000000000000002002")
	StrategyC       = common.HexToAddress("0x0000000000000000000000000000000000002003")
	UnknownStrategy = common.HexToAddress("0x000000000000000000000000000000000000dead")
)

// Units returns n as a *big.Int.
func Units(n int64) *big.Int {
	return big.NewInt(n)
}
