package reliability

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"

	testhelpers "github.com/aristath/sentinel-vault/internal/testing"
)

func TestDailyMaintenanceJob(t *testing.T) {
	db, cleanup := testhelpers.NewTestDB(t, "vault")
	defer cleanup()

	job := NewDailyMaintenanceJob(db, t.TempDir(), zerolog.Nop())
	assert.Equal(t, "daily_maintenance", job.Name())

	job.usage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 50 << 30}, nil
	}
	assert.NoError(t, job.Run())

	job.usage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 1 << 30}, nil
	}
	assert.NoError(t, job.Run(), "low space only warns")

	job.usage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Free: 100 << 20}, nil
	}
	assert.Error(t, job.Run())

	job.usage = func(string) (*disk.UsageStat, error) {
		return nil, errors.New("no such device")
	}
	assert.Error(t, job.Run())
}
