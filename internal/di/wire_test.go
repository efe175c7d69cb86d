package di

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-vault/internal/config"
	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/scheduler"
	testhelpers "github.com/aristath/sentinel-vault/internal/testing"
)

func testConfig(t *testing.T, dataDir string) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:       dataDir,
		Port:          8080,
		DevMode:       true,
		VaultAddress:  testhelpers.VaultAddress,
		FeeRecipient:  testhelpers.FeeRecipient,
		Admins:        []common.Address{testhelpers.AdminAddress},
		AssetDecimals: 6,
		Allocation:    config.AllocationConfig{PrimaryBps: 4000, YieldBps: 5000, BufferBps: 1000},
		Rebalance:     config.RebalanceConfig{Interval: time.Hour, ThresholdBps: 500, Schedule: "@every 1h"},
		Fees:          config.FeeConfig{ManagementBps: 200, PerformanceBps: 2000, Schedule: "@daily"},
		SimulatedAdapters: []config.SimulatedAdapter{
			{Address: testhelpers.RWAAdapter, AprBps: 0},
			{Address: testhelpers.StrategyA, AprBps: 0},
		},
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t, t.TempDir())

	container, jobs, err := Wire(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { container.Close() })

	// Verify container is fully populated
	assert.NotNil(t, container.DB)
	assert.NotNil(t, container.EventManager)
	assert.NotNil(t, container.Ledger)
	assert.NotNil(t, container.Engine)
	assert.NotNil(t, container.Accrual)
	assert.NotNil(t, container.Vault)
	assert.NotNil(t, container.Access)
	assert.NotNil(t, container.Scheduler)
	assert.Nil(t, container.BackupService)
	assert.Equal(t, []common.Address{testhelpers.RWAAdapter, testhelpers.StrategyA}, container.Adapters.Addresses())

	// Backups disabled, so no backup job
	assert.Nil(t, jobs.Backup)
	assert.ElementsMatch(t, []string{"rebalance", "fee_collection", "daily_maintenance", "report_cleanup"}, keys(jobs.All()))
}

func TestWire_DepositSurvivesRestart(t *testing.T) {
	dataDir := t.TempDir()
	cfg := testConfig(t, dataDir)
	ctx := context.Background()

	container, _, err := Wire(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, container.Ledger.AddEntry(domain.TierPrimary, testhelpers.RWAAdapter, 1))
	require.NoError(t, container.Ledger.AddEntry(domain.TierYield, testhelpers.StrategyA, 1))

	result, err := container.Vault.Deposit(ctx, testhelpers.DepositorAlice, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "1000000", result.Shares.String())
	require.NotNil(t, result.Report)
	assert.Equal(t, "100000", container.Reserve.Balance().String())
	require.NoError(t, container.Close())

	restarted, _, err := Wire(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { restarted.Close() })

	assert.Equal(t, "1000000", restarted.Vault.BalanceOf(testhelpers.DepositorAlice).String())
	assert.Equal(t, "1000000", restarted.Vault.TotalSupply().String())
	assert.Equal(t, "100000", restarted.Reserve.Balance().String())
	assert.Len(t, restarted.Ledger.ActiveEntries(domain.TierYield), 1)
	assert.False(t, restarted.Engine.LastRebalanceTimestamp().IsZero())
}

func TestWire_DuplicateAdapter(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Adapters = []config.AdapterEndpoint{{Address: testhelpers.RWAAdapter, URL: "http://127.0.0.1:1"}}

	_, _, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, domain.ErrAlreadyExists)
}

func TestRegisterJobs_InvalidSchedule(t *testing.T) {
	cfg := testConfig(t, t.TempDir())
	cfg.Rebalance.Schedule = "every now and then"

	_, _, err := Wire(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func keys(m map[string]scheduler.Job) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
