package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/vault"
)

// FeeCollector accrues and mints fees
type FeeCollector interface {
	CollectFees(ctx context.Context) (*vault.FeeCollection, error)
}

// FeeCollectionJob collects management and performance fees
type FeeCollectionJob struct {
	vault   FeeCollector
	timeout time.Duration
	log     zerolog.Logger
}

// NewFeeCollectionJob creates a new FeeCollectionJob
func NewFeeCollectionJob(v FeeCollector, timeout time.Duration) *FeeCollectionJob {
	return &FeeCollectionJob{
		vault:   v,
		timeout: timeout,
		log:     zerolog.Nop(),
	}
}

// SetLogger sets the logger for the job
func (j *FeeCollectionJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *FeeCollectionJob) Name() string {
	return "fee_collection"
}

// Run collects fees once. A vault busy with a deposit or withdrawal, or one
// with an adapter that cannot be valued, is retried on the next tick.
func (j *FeeCollectionJob) Run() error {
	ctx, cancel := contextWithOptionalTimeout(j.timeout)
	defer cancel()

	collection, err := j.vault.CollectFees(ctx)
	if errors.Is(err, domain.ErrReentrantCall) {
		j.log.Info().Msg("Fee collection skipped, vault busy")
		return nil
	}
	if errors.Is(err, domain.ErrValuationUnavailable) {
		j.log.Warn().Err(err).Msg("Fee collection skipped, valuation incomplete")
		return nil
	}
	if err != nil {
		return err
	}

	j.log.Info().
		Str("management_fee", collection.ManagementFee.String()).
		Str("performance_fee", collection.PerformanceFee.String()).
		Str("shares_minted", collection.SharesMinted.String()).
		Msg("Scheduled fee collection completed")
	return nil
}
