// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the database and backup staging (always absolute)
	Port     int
	LogLevel string
	DevMode  bool

	VaultAddress  common.Address
	FeeRecipient  common.Address
	Admins        []common.Address
	AssetDecimals uint8

	Allocation AllocationConfig
	Rebalance  RebalanceConfig
	Fees       FeeConfig

	Adapters          []AdapterEndpoint
	SimulatedAdapters []SimulatedAdapter
	AdapterTimeout    time.Duration

	Backup BackupConfig
}

// AllocationConfig is the default tier split used before one is stored
type AllocationConfig struct {
	PrimaryBps uint64
	YieldBps   uint64
	BufferBps  uint64
}

// RebalanceConfig holds default risk parameters and the pass schedule
type RebalanceConfig struct {
	Interval     time.Duration
	ThresholdBps uint64
	Schedule     string

	ReportRetentionDays int // 0 keeps reports forever
}

// FeeConfig holds default fee rates and the collection schedule
type FeeConfig struct {
	ManagementBps  uint64
	PerformanceBps uint64
	Schedule       string
}

// AdapterEndpoint binds an adapter address to a remote strategy service
type AdapterEndpoint struct {
	Address common.Address
	URL     string
}

// SimulatedAdapter is an in-process strategy used in dev mode
type SimulatedAdapter struct {
	Address common.Address
	AprBps  uint64
}

// BackupConfig holds S3-compatible backup settings. Backups are disabled
// when Bucket is empty.
type BackupConfig struct {
	Bucket    string
	Endpoint  string // empty for AWS, set for R2/MinIO
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
	Schedule  string

	RetentionDays int
}

// Enabled reports whether backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("VAULT_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("VAULT_PORT", 8080),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		AssetDecimals:  uint8(getEnvAsInt("ASSET_DECIMALS", 6)),
		AdapterTimeout: getEnvAsDuration("ADAPTER_TIMEOUT", 30*time.Second),
		Rebalance: RebalanceConfig{
			Interval:     getEnvAsDuration("REBALANCE_INTERVAL", 24*time.Hour),
			ThresholdBps: uint64(getEnvAsInt("REBALANCE_THRESHOLD_BPS", 500)),
			Schedule:     getEnv("REBALANCE_SCHEDULE", "@every 1h"),

			ReportRetentionDays: getEnvAsInt("REPORT_RETENTION_DAYS", 90),
		},
		Fees: FeeConfig{
			ManagementBps:  uint64(getEnvAsInt("MANAGEMENT_FEE_BPS", 200)),
			PerformanceBps: uint64(getEnvAsInt("PERFORMANCE_FEE_BPS", 2000)),
			Schedule:       getEnv("FEE_SCHEDULE", "@daily"),
		},
		Backup: BackupConfig{
			Bucket:    getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:  getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:    getEnv("BACKUP_S3_REGION", "us-east-1"),
			AccessKey: getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey: getEnv("BACKUP_S3_SECRET_KEY", ""),
			Prefix:    getEnv("BACKUP_S3_PREFIX", "sentinel-vault"),
			Schedule:  getEnv("BACKUP_SCHEDULE", "@daily"),

			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	if cfg.VaultAddress, err = parseOptionalAddress("VAULT_ADDRESS"); err != nil {
		return nil, err
	}
	if cfg.FeeRecipient, err = parseOptionalAddress("FEE_RECIPIENT"); err != nil {
		return nil, err
	}
	if cfg.Admins, err = utils.ParseAddressList(getEnv("ADMIN_ADDRESSES", "")); err != nil {
		return nil, fmt.Errorf("ADMIN_ADDRESSES: %w", err)
	}
	if cfg.Allocation, err = parseAllocation(getEnv("DEFAULT_ALLOCATION", "4000,5000,1000")); err != nil {
		return nil, fmt.Errorf("DEFAULT_ALLOCATION: %w", err)
	}
	if cfg.Adapters, err = parseAdapterEndpoints(getEnv("ADAPTERS", "")); err != nil {
		return nil, fmt.Errorf("ADAPTERS: %w", err)
	}
	if cfg.SimulatedAdapters, err = parseSimulatedAdapters(getEnv("SIMULATED_ADAPTERS", "")); err != nil {
		return nil, fmt.Errorf("SIMULATED_ADAPTERS: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent.
// Fee and risk bounds are enforced by the modules that own them.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.VaultAddress == (common.Address{}) {
		return fmt.Errorf("VAULT_ADDRESS: %w", domain.ErrZeroAddress)
	}
	if c.FeeRecipient == (common.Address{}) {
		return fmt.Errorf("FEE_RECIPIENT: %w", domain.ErrZeroAddress)
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("ADMIN_ADDRESSES: at least one administrator is required")
	}
	if c.AssetDecimals > 36 {
		return fmt.Errorf("ASSET_DECIMALS: %d exceeds 36", c.AssetDecimals)
	}
	if sum := c.Allocation.PrimaryBps + c.Allocation.YieldBps + c.Allocation.BufferBps; sum != domain.BasisPoints {
		return fmt.Errorf("DEFAULT_ALLOCATION: %w (got %d bps)", domain.ErrTotalExceeds100Percent, sum)
	}
	if len(c.SimulatedAdapters) > 0 && !c.DevMode {
		return fmt.Errorf("SIMULATED_ADAPTERS requires DEV_MODE=true")
	}

	seen := make(map[common.Address]struct{})
	for _, a := range c.Adapters {
		seen[a.Address] = struct{}{}
	}
	for _, s := range c.SimulatedAdapters {
		if _, dup := seen[s.Address]; dup {
			return fmt.Errorf("adapter %s: %w", s.Address.Hex(), domain.ErrAlreadyExists)
		}
		seen[s.Address] = struct{}{}
	}

	if c.Rebalance.ReportRetentionDays < 0 {
		return fmt.Errorf("REPORT_RETENTION_DAYS cannot be negative")
	}
	if c.Backup.Enabled() && c.Backup.RetentionDays <= 0 {
		return fmt.Errorf("BACKUP_RETENTION_DAYS must be positive")
	}
	if c.Backup.Enabled() && (c.Backup.AccessKey == "") != (c.Backup.SecretKey == "") {
		return fmt.Errorf("BACKUP_S3_ACCESS_KEY and BACKUP_S3_SECRET_KEY must be set together")
	}
	return nil
}

// DatabasePath returns the vault database file path
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "vault.db")
}

func parseOptionalAddress(key string) (common.Address, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return common.Address{}, nil
	}
	addr, err := utils.ParseAddress(raw)
	if err != nil {
		return common.Address{}, fmt.Errorf("%s: %w", key, err)
	}
	return addr, nil
}

// parseAllocation parses "primary,yield,buffer" in basis points
func parseAllocation(raw string) (AllocationConfig, error) {
	parts := utils.ParseCSV(raw)
	if len(parts) != 3 {
		return AllocationConfig{}, fmt.Errorf("expected primary,yield,buffer bps, got %q", raw)
	}
	values := make([]uint64, 3)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return AllocationConfig{}, fmt.Errorf("invalid bps %q: %w", p, err)
		}
		values[i] = v
	}
	return AllocationConfig{PrimaryBps: values[0], YieldBps: values[1], BufferBps: values[2]}, nil
}

// parseAdapterEndpoints parses "0xaddr=http://host;0xaddr=http://host"
func parseAdapterEndpoints(raw string) ([]AdapterEndpoint, error) {
	pairs, err := utils.ParseKeyValueList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]AdapterEndpoint, 0, len(pairs))
	for _, kv := range pairs {
		addr, err := utils.ParseAddress(kv.Key)
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(kv.Value, "http://") && !strings.HasPrefix(kv.Value, "https://") {
			return nil, fmt.Errorf("adapter %s: invalid URL %q", addr.Hex(), kv.Value)
		}
		out = append(out, AdapterEndpoint{Address: addr, URL: kv.Value})
	}
	return out, nil
}

// parseSimulatedAdapters parses "0xaddr=aprBps;0xaddr=aprBps"
func parseSimulatedAdapters(raw string) ([]SimulatedAdapter, error) {
	pairs, err := utils.ParseKeyValueList(raw)
	if err != nil {
		return nil, err
	}
	out := make([]SimulatedAdapter, 0, len(pairs))
	for _, kv := range pairs {
		addr, err := utils.ParseAddress(kv.Key)
		if err != nil {
			return nil, err
		}
		apr, err := strconv.ParseUint(kv.Value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("adapter %s: invalid apr %q", addr.Hex(), kv.Value)
		}
		out = append(out, SimulatedAdapter{Address: addr, AprBps: apr})
	}
	return out, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
