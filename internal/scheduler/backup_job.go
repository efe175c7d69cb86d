package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/reliability"
)

// Backupper uploads and rotates database backups
type Backupper interface {
	CreateAndUploadBackup(ctx context.Context) (*reliability.BackupInfo, error)
	RotateOldBackups(ctx context.Context, retentionDays int) (int, error)
}

// BackupJob uploads a backup and then prunes old ones
type BackupJob struct {
	backups       Backupper
	retentionDays int
	timeout       time.Duration
	log           zerolog.Logger
}

// NewBackupJob creates a new BackupJob
func NewBackupJob(backups Backupper, retentionDays int, timeout time.Duration) *BackupJob {
	return &BackupJob{
		backups:       backups,
		retentionDays: retentionDays,
		timeout:       timeout,
		log:           zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *BackupJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *BackupJob) Name() string {
	return "backup"
}

// Run uploads a backup. Rotation failures are logged; the upload already
// succeeded.
func (j *BackupJob) Run() error {
	ctx, cancel := contextWithOptionalTimeout(j.timeout)
	defer cancel()

	if _, err := j.backups.CreateAndUploadBackup(ctx); err != nil {
		return err
	}
	if _, err := j.backups.RotateOldBackups(ctx, j.retentionDays); err != nil {
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}
	return nil
}
