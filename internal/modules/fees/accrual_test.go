package fees

import (
	"math/big"
	"math/rand"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/guard"
	testhelpers "github.com/aristath/sentinel-vault/internal/testing"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestAccrual(t *testing.T, rates Rates) (*Accrual, *guard.Guard) {
	t.Helper()
	g := guard.New("fees")
	a, err := NewAccrual(rates, g, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	return a, g
}

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.Pow10(18))
}

// tenths returns n/10 with 18 decimals.
func tenths(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), domain.Pow10(17))
}

func TestManagementFee_FirstCallRecordsBaseline(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{ManagementBps: 200, PerformanceBps: 1000})
	vault := testhelpers.VaultAddress

	fee, err := a.CalculateManagementFee(vault, big.NewInt(1_000_000), t0)
	require.NoError(t, err)
	assert.Equal(t, "0", fee.String())

	state, ok := a.State(vault)
	require.True(t, ok)
	assert.Equal(t, t0, state.LastCollection)

	fee, err = a.CalculateManagementFee(vault, big.NewInt(1_000_000), t0.Add(365*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "20000", fee.String())
}

func TestManagementFee_Prorated(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{ManagementBps: 100})
	vault := testhelpers.VaultAddress

	_, err := a.CalculateManagementFee(vault, big.NewInt(0), t0)
	require.NoError(t, err)

	// Half a year on 1,000,000 at 1% is 5,000.
	half := t0.Add(time.Duration(domain.SecondsPerYear/2) * time.Second)
	fee, err := a.CalculateManagementFee(vault, big.NewInt(1_000_000), half)
	require.NoError(t, err)
	assert.Equal(t, "5000", fee.String())

	// One second on a tiny balance truncates to zero but still advances the clock.
	fee, err = a.CalculateManagementFee(vault, big.NewInt(1_000_000), half.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "0", fee.String())
	state, _ := a.State(vault)
	assert.Equal(t, half.Add(time.Second), state.LastCollection)
}

func TestManagementFee_ClockNeverMovesBack(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{ManagementBps: 100})
	vault := testhelpers.VaultAddress

	_, err := a.CalculateManagementFee(vault, big.NewInt(1_000_000), t0)
	require.NoError(t, err)

	fee, err := a.CalculateManagementFee(vault, big.NewInt(1_000_000), t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "0", fee.String())

	state, _ := a.State(vault)
	assert.Equal(t, t0, state.LastCollection)
}

func TestPerformanceFee_NoClawbackBelowMark(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{PerformanceBps: 2000})
	vault := testhelpers.VaultAddress
	require.NoError(t, a.SetHighWaterMark(vault, tenths(10)))

	fee, err := a.CalculatePerformanceFee(vault, tenths(9), eth(1000), 18)
	require.NoError(t, err)
	assert.Equal(t, "0", fee.String())

	state, _ := a.State(vault)
	assert.Equal(t, tenths(10).String(), state.HighWaterMark.String())
}

func TestPerformanceFee_ChargesAppreciation(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{PerformanceBps: 2000})
	vault := testhelpers.VaultAddress
	require.NoError(t, a.SetHighWaterMark(vault, tenths(10)))

	// (1.2 - 1.0) * 20% * 1000 shares = 40 units.
	fee, err := a.CalculatePerformanceFee(vault, tenths(12), eth(1000), 18)
	require.NoError(t, err)
	assert.Equal(t, eth(40).String(), fee.String())

	state, _ := a.State(vault)
	assert.Equal(t, tenths(12).String(), state.HighWaterMark.String())

	// Same price again: nothing new to charge.
	fee, err = a.CalculatePerformanceFee(vault, tenths(12), eth(1000), 18)
	require.NoError(t, err)
	assert.Equal(t, "0", fee.String())
}

func TestPerformanceFee_ZeroSupplyStillRatchets(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{PerformanceBps: 2000})
	vault := testhelpers.VaultAddress
	require.NoError(t, a.SetHighWaterMark(vault, tenths(10)))

	fee, err := a.CalculatePerformanceFee(vault, tenths(15), big.NewInt(0), 18)
	require.NoError(t, err)
	assert.Equal(t, "0", fee.String())

	state, _ := a.State(vault)
	assert.Equal(t, tenths(15).String(), state.HighWaterMark.String())
}

func TestPerformanceFee_FirstCallRecordsBaseline(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{PerformanceBps: 2000})
	vault := testhelpers.VaultAddress

	fee, err := a.CalculatePerformanceFee(vault, tenths(11), eth(1000), 18)
	require.NoError(t, err)
	assert.Equal(t, "0", fee.String())

	state, ok := a.State(vault)
	require.True(t, ok)
	assert.Equal(t, tenths(11).String(), state.HighWaterMark.String())
}

func TestPerformanceFee_MarkIsMonotonic(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{PerformanceBps: 1500})
	vault := testhelpers.VaultAddress
	rng := rand.New(rand.NewSource(7))

	prev := new(big.Int)
	for i := 0; i < 200; i++ {
		price := big.NewInt(rng.Int63n(2_000_000) + 1)
		_, err := a.CalculatePerformanceFee(vault, price, big.NewInt(rng.Int63n(1_000_000)), 6)
		require.NoError(t, err)

		state, _ := a.State(vault)
		require.GreaterOrEqual(t, state.HighWaterMark.Cmp(prev), 0, "mark decreased at step %d", i)
		prev = state.HighWaterMark
	}
}

func TestFeeStateIsPerConsumer(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{ManagementBps: 100})

	_, err := a.CalculateManagementFee(testhelpers.VaultAddress, big.NewInt(1), t0)
	require.NoError(t, err)

	_, ok := a.State(testhelpers.DepositorAlice)
	assert.False(t, ok)

	_, err = a.CalculateManagementFee(common.Address{}, big.NewInt(1), t0)
	assert.ErrorIs(t, err, domain.ErrZeroAddress)
}

func TestSetRates(t *testing.T) {
	a, _ := newTestAccrual(t, Rates{})

	tests := []struct {
		name        string
		management  uint64
		performance uint64
		wantErr     error
	}{
		{"zero rates", 0, 0, nil},
		{"at bounds", MaxManagementFeeBps, MaxPerformanceFeeBps, nil},
		{"management too high", MaxManagementFeeBps + 1, 0, domain.ErrValueOutOfRange},
		{"performance too high", 0, MaxPerformanceFeeBps + 1, domain.ErrValueOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := a.Rates()
			err := a.SetRates(tt.management, tt.performance)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, a.Rates())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Rates{ManagementBps: tt.management, PerformanceBps: tt.performance}, a.Rates())
		})
	}

	_, err := NewAccrual(Rates{ManagementBps: 5000}, guard.New("fees"), nil, nil, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrValueOutOfRange)
}

func TestCalculationsRejectedWhileGuardHeld(t *testing.T) {
	a, g := newTestAccrual(t, Rates{ManagementBps: 100})

	release, err := g.Enter("collect")
	require.NoError(t, err)

	_, err = a.CalculateManagementFee(testhelpers.VaultAddress, big.NewInt(1), t0)
	assert.ErrorIs(t, err, domain.ErrReentrantCall)
	_, ok := a.State(testhelpers.VaultAddress)
	assert.False(t, ok)

	release()
	_, err = a.CalculateManagementFee(testhelpers.VaultAddress, big.NewInt(1), t0)
	assert.NoError(t, err)
}

func TestAccrual_PersistsThroughRepository(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "vault")
	defer cleanup()

	repo := NewRepository(db.Conn(), zerolog.Nop())
	a, err := NewAccrual(Rates{ManagementBps: 100}, guard.New("fees"), repo, nil, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, a.SetRates(250, 1000))
	_, err = a.CalculateManagementFee(testhelpers.VaultAddress, big.NewInt(1), t0)
	require.NoError(t, err)
	require.NoError(t, a.SetHighWaterMark(testhelpers.VaultAddress, eth(1)))
	_, err = a.CalculatePerformanceFee(testhelpers.FeeRecipient, tenths(12), eth(1), 18)
	require.NoError(t, err)

	restored, err := NewAccrual(Rates{}, guard.New("fees"), repo, nil, zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, Rates{ManagementBps: 250, PerformanceBps: 1000}, restored.Rates())

	state, ok := restored.State(testhelpers.VaultAddress)
	require.True(t, ok)
	assert.True(t, t0.Equal(state.LastCollection))
	assert.Equal(t, eth(1).String(), state.HighWaterMark.String())

	other, ok := restored.State(testhelpers.FeeRecipient)
	require.True(t, ok)
	assert.True(t, other.LastCollection.IsZero())
	assert.Equal(t, tenths(12).String(), other.HighWaterMark.String())
}
