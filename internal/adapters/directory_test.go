package adapters

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-vault/internal/domain"
	testhelpers "github.com/aristath/sentinel-vault/internal/testing"
)

func TestDirectory_RegisterResolve(t *testing.T) {
	d := NewDirectory(zerolog.Nop())
	adapter := NewSimulated(0)

	require.NoError(t, d.Register(testhelpers.StrategyB, adapter))
	require.NoError(t, d.Register(testhelpers.StrategyA, NewSimulated(0)))

	got, ok := d.Resolve(testhelpers.StrategyB)
	require.True(t, ok)
	assert.Same(t, adapter, got)

	_, ok = d.Resolve(testhelpers.UnknownStrategy)
	assert.False(t, ok)

	assert.Equal(t, []common.Address{testhelpers.StrategyA, testhelpers.StrategyB}, d.Addresses())
}

func TestDirectory_RegisterRejects(t *testing.T) {
	d := NewDirectory(zerolog.Nop())

	assert.ErrorIs(t, d.Register(common.Address{}, NewSimulated(0)), domain.ErrZeroAddress)
	assert.Error(t, d.Register(testhelpers.StrategyA, nil))

	require.NoError(t, d.Register(testhelpers.StrategyA, NewSimulated(0)))
	assert.ErrorIs(t, d.Register(testhelpers.StrategyA, NewSimulated(0)), domain.ErrAlreadyExists)
}
