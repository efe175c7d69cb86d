package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/rebalancing"
)

// Rebalancer runs allocation passes
type Rebalancer interface {
	Rebalance(ctx context.Context) (*rebalancing.Report, error)
}

// RebalanceJob attempts a pass on every tick; a closed gate is the normal
// outcome between windows.
type RebalanceJob struct {
	engine  Rebalancer
	timeout time.Duration
	log     zerolog.Logger
}

// NewRebalanceJob creates a new RebalanceJob
func NewRebalanceJob(engine Rebalancer, timeout time.Duration) *RebalanceJob {
	return &RebalanceJob{
		engine:  engine,
		timeout: timeout,
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *RebalanceJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Run executes one pass
func (j *RebalanceJob) Run() error {
	ctx, cancel := contextWithOptionalTimeout(j.timeout)
	defer cancel()

	report, err := j.engine.Rebalance(ctx)
	switch {
	case errors.Is(err, domain.ErrTooEarly):
		j.log.Debug().Err(err).Msg("Rebalance not due")
		return nil
	case errors.Is(err, domain.ErrReentrantCall):
		j.log.Info().Msg("Rebalance skipped, another operation holds the engine")
		return nil
	case err != nil:
		return err
	}

	j.log.Info().
		Str("pass_id", report.ID).
		Int("moves", report.Moves()).
		Int("failures", report.Failures()).
		Msg("Scheduled rebalance completed")
	return nil
}

func contextWithOptionalTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
