package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// ReportPruner deletes stored rebalance reports
type ReportPruner interface {
	DeleteReportsBefore(cutoff time.Time) (int64, error)
}

// ReportCleanupJob prunes rebalance reports past their retention window
type ReportCleanupJob struct {
	reports   ReportPruner
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewReportCleanupJob creates a new ReportCleanupJob
func NewReportCleanupJob(reports ReportPruner, retention time.Duration) *ReportCleanupJob {
	return &ReportCleanupJob{
		reports:   reports,
		retention: retention,
		now:       time.Now,
		log:       zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *ReportCleanupJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *ReportCleanupJob) Name() string {
	return "report_cleanup"
}

// Run deletes reports older than the retention window
func (j *ReportCleanupJob) Run() error {
	if j.retention <= 0 {
		return nil
	}

	cutoff := j.now().Add(-j.retention)
	deleted, err := j.reports.DeleteReportsBefore(cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune reports: %w", err)
	}

	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Time("cutoff", cutoff).
			Msg("Pruned old rebalance reports")
	}
	return nil
}
