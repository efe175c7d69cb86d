package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-vault/internal/domain"
)

const (
	vaultHex = "0x000000000000000000000000000000000000a001"
	feeHex   = "0x000000000000000000000000000000000000fee0"
	adminHex = "0x000000000000000000000000000000000000ad01"
	stratHex = "0x0000000000000000000000000000000000002001"
)

func setRequired(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("VAULT_DATA_DIR", dir)
	t.Setenv("VAULT_ADDRESS", vaultHex)
	t.Setenv("FEE_RECIPIENT", feeHex)
	t.Setenv("ADMIN_ADDRESSES", adminHex)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	dir := setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "vault.db"), cfg.DatabasePath())
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, common.HexToAddress(vaultHex), cfg.VaultAddress)
	assert.Equal(t, []common.Address{common.HexToAddress(adminHex)}, cfg.Admins)
	assert.Equal(t, uint8(6), cfg.AssetDecimals)
	assert.Equal(t, AllocationConfig{PrimaryBps: 4000, YieldBps: 5000, BufferBps: 1000}, cfg.Allocation)
	assert.Equal(t, 24*time.Hour, cfg.Rebalance.Interval)
	assert.Equal(t, uint64(500), cfg.Rebalance.ThresholdBps)
	assert.Equal(t, "@every 1h", cfg.Rebalance.Schedule)
	assert.Equal(t, uint64(200), cfg.Fees.ManagementBps)
	assert.Equal(t, uint64(2000), cfg.Fees.PerformanceBps)
	assert.Equal(t, 30*time.Second, cfg.AdapterTimeout)
	assert.False(t, cfg.Backup.Enabled())
	assert.Empty(t, cfg.Adapters)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("VAULT_PORT", "9090")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("DEFAULT_ALLOCATION", "3000, 6000, 1000")
	t.Setenv("REBALANCE_INTERVAL", "30m")
	t.Setenv("ADAPTERS", "0x0000000000000000000000000000000000001001=http://rwa:9000")
	t.Setenv("SIMULATED_ADAPTERS", stratHex+"=450")
	t.Setenv("ADAPTER_TIMEOUT", "5s")
	t.Setenv("BACKUP_S3_BUCKET", "vault-backups")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, AllocationConfig{PrimaryBps: 3000, YieldBps: 6000, BufferBps: 1000}, cfg.Allocation)
	assert.Equal(t, 30*time.Minute, cfg.Rebalance.Interval)
	require.Len(t, cfg.Adapters, 1)
	assert.Equal(t, "http://rwa:9000", cfg.Adapters[0].URL)
	require.Len(t, cfg.SimulatedAdapters, 1)
	assert.Equal(t, common.HexToAddress(stratHex), cfg.SimulatedAdapters[0].Address)
	assert.Equal(t, uint64(450), cfg.SimulatedAdapters[0].AprBps)
	assert.Equal(t, 5*time.Second, cfg.AdapterTimeout)
	assert.True(t, cfg.Backup.Enabled())
	assert.Equal(t, 30, cfg.Backup.RetentionDays)
	assert.Equal(t, 90, cfg.Rebalance.ReportRetentionDays)
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		val  string
	}{
		{"bad vault address", "VAULT_ADDRESS", "0x123"},
		{"bad admin list", "ADMIN_ADDRESSES", "0xabc, nope"},
		{"allocation arity", "DEFAULT_ALLOCATION", "5000,5000"},
		{"allocation sum", "DEFAULT_ALLOCATION", "5000,5000,1000"},
		{"adapter url", "ADAPTERS", stratHex + "=ftp://host"},
		{"simulated without dev mode", "SIMULATED_ADAPTERS", stratHex + "=100"},
		{"bad port", "VAULT_PORT", "70000"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tc.key, tc.val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:          8080,
			VaultAddress:  common.HexToAddress(vaultHex),
			FeeRecipient:  common.HexToAddress(feeHex),
			Admins:        []common.Address{common.HexToAddress(adminHex)},
			AssetDecimals: 18,
			Allocation:    AllocationConfig{PrimaryBps: 4000, YieldBps: 5000, BufferBps: 1000},
		}
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.VaultAddress = common.Address{}
	assert.ErrorIs(t, cfg.Validate(), domain.ErrZeroAddress)

	cfg = valid()
	cfg.FeeRecipient = common.Address{}
	assert.ErrorIs(t, cfg.Validate(), domain.ErrZeroAddress)

	cfg = valid()
	cfg.Admins = nil
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.DevMode = true
	addr := common.HexToAddress(stratHex)
	cfg.Adapters = []AdapterEndpoint{{Address: addr, URL: "http://x"}}
	cfg.SimulatedAdapters = []SimulatedAdapter{{Address: addr, AprBps: 100}}
	assert.ErrorIs(t, cfg.Validate(), domain.ErrAlreadyExists)

	cfg = valid()
	cfg.Backup = BackupConfig{Bucket: "b", AccessKey: "key"}
	assert.Error(t, cfg.Validate())
}
