package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConnectionString(t *testing.T) {
	connStr := buildConnectionString("/data/vault.db", ProfileLedger)
	assert.Contains(t, connStr, "/data/vault.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, connStr, "synchronous(FULL)")

	memStr := buildConnectionString("file:vault?mode=memory&cache=shared", ProfileStandard)
	assert.Contains(t, memStr, "cache=shared&_pragma=journal_mode(WAL)")
	assert.NotContains(t, memStr, "shared?")
}

func TestNew_RejectsUnknownProfile(t *testing.T) {
	_, err := New(Config{
		Path:    "file:profile_test?mode=memory&cache=shared",
		Profile: "cache",
		Name:    "vault",
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `unknown database profile "cache"`)

	db, err := New(Config{Path: "file:profile_default?mode=memory&cache=shared", Name: "vault"})
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, ProfileStandard, db.Profile())
}

func TestMigrateCreatesTables(t *testing.T) {
	db, err := New(Config{
		Path:    "file:migrate_test?mode=memory&cache=shared",
		Profile: ProfileLedger,
		Name:    "vault",
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate())
	// Reapplying must be harmless.
	require.NoError(t, db.Migrate())

	for _, table := range []string{
		"allocation_target",
		"registry_entries",
		"engine_state",
		"rebalance_reports",
		"fee_rates",
		"fee_states",
		"reserve_balance",
		"vault_state",
		"vault_balances",
	} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestSnapshotTo(t *testing.T) {
	dir := t.TempDir()
	db, err := New(Config{Path: filepath.Join(dir, "vault.db"), Profile: ProfileLedger, Name: "vault"})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate())

	_, err = db.Exec("INSERT INTO vault_state (id, total_supply, updated_at) VALUES (1, '42', 0)")
	require.NoError(t, err)

	target := filepath.Join(dir, "snapshot.db")
	require.NoError(t, db.SnapshotTo(context.Background(), target))
	assert.Error(t, db.SnapshotTo(context.Background(), target), "refuses to overwrite")

	snap, err := New(Config{Path: target, Profile: ProfileStandard, Name: "snapshot"})
	require.NoError(t, err)
	defer snap.Close()

	var supply string
	require.NoError(t, snap.QueryRow("SELECT total_supply FROM vault_state WHERE id = 1").Scan(&supply))
	assert.Equal(t, "42", supply)
}
