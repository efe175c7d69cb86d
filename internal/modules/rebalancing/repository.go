package rebalancing

import (
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/modules/allocation"
)

// Repository handles engine state and rebalance report database operations
// Database: vault.db (engine_state, rebalance_reports tables)
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new rebalancing repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "rebalancing").Logger(),
	}
}

// LoadState returns the stored engine state, or nil if none has been saved yet
func (r *Repository) LoadState() (*State, error) {
	var last, interval int64
	var threshold uint64
	err := r.db.QueryRow(
		"SELECT last_rebalance, interval_seconds, threshold_bps FROM engine_state WHERE id = 1",
	).Scan(&last, &interval, &threshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query engine state: %w", err)
	}

	state := &State{
		Params: RiskParameters{
			Interval:     time.Duration(interval) * time.Second,
			ThresholdBps: threshold,
		},
	}
	if last > 0 {
		state.LastRebalance = time.Unix(last, 0).UTC()
	}
	return state, nil
}

// SaveState upserts the engine state
func (r *Repository) SaveState(state State) error {
	var last int64
	if !state.LastRebalance.IsZero() {
		last = state.LastRebalance.Unix()
	}

	_, err := r.db.Exec(`
		INSERT INTO engine_state (id, last_rebalance, interval_seconds, threshold_bps, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_rebalance = excluded.last_rebalance,
			interval_seconds = excluded.interval_seconds,
			threshold_bps = excluded.threshold_bps,
			updated_at = excluded.updated_at
	`, last, int64(state.Params.Interval/time.Second), state.Params.ThresholdBps, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to save engine state: %w", err)
	}
	return nil
}

// reportRecord is the msgpack payload of a stored report. Amounts are decimal
// strings since they may exceed 64 bits.
type reportRecord struct {
	ID              string          `msgpack:"id"`
	StartedAt       int64           `msgpack:"started_at"`
	CompletedAt     int64           `msgpack:"completed_at"`
	TotalValue      string          `msgpack:"total_value"`
	PrimaryTarget   string          `msgpack:"primary_target"`
	YieldTarget     string          `msgpack:"yield_target"`
	BufferTarget    string          `msgpack:"buffer_target"`
	MaxDeviationBps uint64          `msgpack:"max_deviation_bps"`
	IntervalElapsed bool            `msgpack:"interval_elapsed"`
	Degraded        bool            `msgpack:"degraded,omitempty"`
	Outcomes        []outcomeRecord `msgpack:"outcomes"`
}

type outcomeRecord struct {
	Tier      string `msgpack:"tier"`
	Adapter   string `msgpack:"adapter"`
	Action    string `msgpack:"action"`
	Requested string `msgpack:"requested"`
	Moved     string `msgpack:"moved"`
	Err       string `msgpack:"err,omitempty"`
}

func encodeReport(report *Report) ([]byte, error) {
	rec := reportRecord{
		ID:              report.ID,
		StartedAt:       report.StartedAt.UnixNano(),
		CompletedAt:     report.CompletedAt.UnixNano(),
		TotalValue:      domain.CopyBig(report.TotalValue).String(),
		PrimaryTarget:   domain.CopyBig(report.Targets.Primary).String(),
		YieldTarget:     domain.CopyBig(report.Targets.Yield).String(),
		BufferTarget:    domain.CopyBig(report.Targets.Buffer).String(),
		MaxDeviationBps: report.MaxDeviationBps,
		IntervalElapsed: report.IntervalElapsed,
		Degraded:        report.Degraded,
		Outcomes:        make([]outcomeRecord, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		rec.Outcomes = append(rec.Outcomes, outcomeRecord{
			Tier:      o.Tier.String(),
			Adapter:   o.Adapter,
			Action:    string(o.Action),
			Requested: domain.CopyBig(o.Requested).String(),
			Moved:     domain.CopyBig(o.Moved).String(),
			Err:       o.Err,
		})
	}
	return msgpack.Marshal(&rec)
}

func decodeReport(payload []byte) (*Report, error) {
	var rec reportRecord
	if err := msgpack.Unmarshal(payload, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}

	report := &Report{
		ID:              rec.ID,
		StartedAt:       time.Unix(0, rec.StartedAt).UTC(),
		CompletedAt:     time.Unix(0, rec.CompletedAt).UTC(),
		MaxDeviationBps: rec.MaxDeviationBps,
		IntervalElapsed: rec.IntervalElapsed,
		Degraded:        rec.Degraded,
	}

	var err error
	if report.TotalValue, err = parseAmount(rec.TotalValue); err != nil {
		return nil, err
	}
	report.Targets = allocation.Targets{}
	if report.Targets.Primary, err = parseAmount(rec.PrimaryTarget); err != nil {
		return nil, err
	}
	if report.Targets.Yield, err = parseAmount(rec.YieldTarget); err != nil {
		return nil, err
	}
	if report.Targets.Buffer, err = parseAmount(rec.BufferTarget); err != nil {
		return nil, err
	}

	for _, o := range rec.Outcomes {
		tier, err := domain.ParseTier(o.Tier)
		if err != nil {
			return nil, err
		}
		requested, err := parseAmount(o.Requested)
		if err != nil {
			return nil, err
		}
		moved, err := parseAmount(o.Moved)
		if err != nil {
			return nil, err
		}
		report.Outcomes = append(report.Outcomes, Outcome{
			Tier:      tier,
			Adapter:   o.Adapter,
			Action:    Action(o.Action),
			Requested: requested,
			Moved:     moved,
			Err:       o.Err,
		})
	}
	return report, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

// SaveReport stores a completed pass
func (r *Repository) SaveReport(report *Report) error {
	payload, err := encodeReport(report)
	if err != nil {
		return fmt.Errorf("failed to encode report %s: %w", report.ID, err)
	}

	_, err = r.db.Exec(`
		INSERT INTO rebalance_reports (id, started_at, completed_at, total_value, max_deviation_bps, failures, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		report.ID,
		report.StartedAt.Unix(),
		report.CompletedAt.Unix(),
		domain.CopyBig(report.TotalValue).String(),
		report.MaxDeviationBps,
		report.Failures(),
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", report.ID, err)
	}

	r.log.Debug().
		Str("pass_id", report.ID).
		Int("payload_bytes", len(payload)).
		Msg("Saved rebalance report")
	return nil
}

// GetReport returns one report by id
func (r *Repository) GetReport(id string) (*Report, error) {
	var payload []byte
	err := r.db.QueryRow("SELECT payload FROM rebalance_reports WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: report %s", domain.ErrTokenNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report %s: %w", id, err)
	}
	return decodeReport(payload)
}

// ListReports returns the most recent reports, newest first
func (r *Repository) ListReports(limit int) ([]*Report, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.Query(
		"SELECT payload FROM rebalance_reports ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		report, err := decodeReport(payload)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}

// DeleteReportsBefore removes reports of passes started before cutoff and
// returns how many were deleted
func (r *Repository) DeleteReportsBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec("DELETE FROM rebalance_reports WHERE started_at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete reports: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted reports: %w", err)
	}
	return deleted, nil
}
