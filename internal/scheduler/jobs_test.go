package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/rebalancing"
	"github.com/aristath/sentinel-vault/internal/modules/vault"
	"github.com/aristath/sentinel-vault/internal/reliability"
)

type fakeRebalancer struct {
	report *rebalancing.Report
	err    error
	calls  int
}

func (f *fakeRebalancer) Rebalance(ctx context.Context) (*rebalancing.Report, error) {
	f.calls++
	return f.report, f.err
}

func TestRebalanceJob_Run(t *testing.T) {
	engine := &fakeRebalancer{report: &rebalancing.Report{ID: "pass-1"}}
	job := NewRebalanceJob(engine, 0)

	assert.Equal(t, "rebalance", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, 1, engine.calls)
}

func TestRebalanceJob_ToleratesClosedGate(t *testing.T) {
	for _, err := range []error{domain.ErrTooEarly, domain.ErrReentrantCall} {
		job := NewRebalanceJob(&fakeRebalancer{err: err}, 0)
		assert.NoError(t, job.Run(), err.Error())
	}
}

func TestRebalanceJob_PropagatesOtherErrors(t *testing.T) {
	job := NewRebalanceJob(&fakeRebalancer{err: errors.New("ledger unavailable")}, 0)
	assert.EqualError(t, job.Run(), "ledger unavailable")
}

type fakeCollector struct {
	err error
}

func (f *fakeCollector) CollectFees(ctx context.Context) (*vault.FeeCollection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &vault.FeeCollection{
		ManagementFee:  big.NewInt(10),
		PerformanceFee: big.NewInt(0),
		SharesMinted:   big.NewInt(10),
		SharePrice:     big.NewInt(1000000),
	}, nil
}

func TestFeeCollectionJob_Run(t *testing.T) {
	job := NewFeeCollectionJob(&fakeCollector{}, 0)
	assert.Equal(t, "fee_collection", job.Name())
	assert.NoError(t, job.Run())

	busy := NewFeeCollectionJob(&fakeCollector{err: domain.ErrReentrantCall}, 0)
	assert.NoError(t, busy.Run())

	unvalued := NewFeeCollectionJob(&fakeCollector{err: fmt.Errorf("fee collection deferred: %w", domain.ErrValuationUnavailable)}, 0)
	assert.NoError(t, unvalued.Run())

	broken := NewFeeCollectionJob(&fakeCollector{err: domain.ErrInsufficientBalance}, 0)
	assert.ErrorIs(t, broken.Run(), domain.ErrInsufficientBalance)
}

type fakeBackupper struct {
	uploadErr error
	rotateErr error
	rotated   []int
}

func (f *fakeBackupper) CreateAndUploadBackup(ctx context.Context) (*reliability.BackupInfo, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &reliability.BackupInfo{}, nil
}

func (f *fakeBackupper) RotateOldBackups(ctx context.Context, retentionDays int) (int, error) {
	f.rotated = append(f.rotated, retentionDays)
	return 0, f.rotateErr
}

func TestBackupJob_Run(t *testing.T) {
	backups := &fakeBackupper{}
	job := NewBackupJob(backups, 30, 0)

	assert.Equal(t, "backup", job.Name())
	require.NoError(t, job.Run())
	assert.Equal(t, []int{30}, backups.rotated)
}

func TestBackupJob_UploadFailureSkipsRotation(t *testing.T) {
	backups := &fakeBackupper{uploadErr: errors.New("bucket missing")}
	job := NewBackupJob(backups, 30, 0)

	assert.EqualError(t, job.Run(), "bucket missing")
	assert.Empty(t, backups.rotated)
}

func TestBackupJob_RotationFailureIsNotFatal(t *testing.T) {
	backups := &fakeBackupper{rotateErr: errors.New("list denied")}
	job := NewBackupJob(backups, 30, 0)

	assert.NoError(t, job.Run())
}

type fakePruner struct {
	cutoff time.Time
	err    error
}

func (f *fakePruner) DeleteReportsBefore(cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestReportCleanupJob_Run(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}
	job := NewReportCleanupJob(pruner, 30*24*time.Hour)
	job.now = func() time.Time { return now }

	assert.Equal(t, "report_cleanup", job.Name())
	require.NoError(t, job.Run())
	assert.True(t, now.AddDate(0, 0, -30).Equal(pruner.cutoff))

	pruner.err = errors.New("locked")
	assert.ErrorContains(t, job.Run(), "locked")
}

func TestReportCleanupJob_DisabledRetention(t *testing.T) {
	pruner := &fakePruner{}
	job := NewReportCleanupJob(pruner, 0)

	require.NoError(t, job.Run())
	assert.True(t, pruner.cutoff.IsZero())
}
