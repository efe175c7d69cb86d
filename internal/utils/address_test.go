package utils

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAddressList(t *testing.T) {
	a := common.HexToAddress("0x000000000000000000000000000000000000ad01")
	b := common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	got, err := ParseAddressList("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseAddressList("0x000000000000000000000000000000000000ad01, 0x0000000000000000000000000000000000000b0b;0x000000000000000000000000000000000000AD01")
	require.NoError(t, err)
	assert.Equal(t, []common.Address{a, b}, got)

	_, err = ParseAddressList("0x1234")
	assert.Error(t, err)
}

func TestJoinHex(t *testing.T) {
	a := common.HexToAddress("0x000000000000000000000000000000000000ad01")
	assert.Equal(t, "", JoinHex(nil))
	assert.Equal(t, a.Hex(), JoinHex([]common.Address{a}))

	set := AddressSet([]common.Address{a, a})
	assert.Len(t, set, 1)
}
