package domain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTier(t *testing.T) {
	tier, err := ParseTier("yield")
	require.NoError(t, err)
	assert.Equal(t, TierYield, tier)

	tier, err = ParseTier(" RWA ")
	require.NoError(t, err)
	assert.Equal(t, TierPrimary, tier)

	_, err = ParseTier("buffer")
	assert.Error(t, err)
}

func TestMulDivBps(t *testing.T) {
	assert.Equal(t, int64(40000), MulDivBps(big.NewInt(100000), 4000).Int64())
	assert.Equal(t, int64(0), MulDivBps(big.NewInt(1), 9999).Int64(), "truncates toward zero")
	assert.Equal(t, int64(0), MulDivBps(nil, 5000).Int64())
}

func TestDeviationBps(t *testing.T) {
	tests := []struct {
		name     string
		current  int64
		target   int64
		expected uint64
	}{
		{"on target", 500, 500, 0},
		{"over by 10%", 550, 500, 1000},
		{"under by 50%", 250, 500, 5000},
		{"zero target with holdings", 10, 0, 10000},
		{"zero target and empty", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeviationBps(big.NewInt(tt.current), big.NewInt(tt.target)))
		})
	}
}

func TestIsConfigurationError(t *testing.T) {
	assert.True(t, IsConfigurationError(ErrZeroAddress))
	assert.False(t, IsConfigurationError(ErrTooEarly))
	assert.False(t, IsConfigurationError(ErrTokenNotFound))
}
