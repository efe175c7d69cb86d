package rebalancing

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// DriftStatistics summarises max-deviation readings across recent passes.
// Reporting only; the engine itself never uses floating point.
type DriftStatistics struct {
	Passes         int     `json:"passes"`
	MeanBps        float64 `json:"mean_bps"`
	StdDevBps      float64 `json:"std_dev_bps"`
	MaxBps         float64 `json:"max_bps"`
	MedianBps      float64 `json:"median_bps"`
	FailureRate    float64 `json:"failure_rate"`
	PartialPasses  int     `json:"partial_passes"`
	TotalFailures  int     `json:"total_failures"`
	TotalMovements int     `json:"total_movements"`
}

// ComputeDriftStatistics aggregates reports.
func ComputeDriftStatistics(reports []*Report) DriftStatistics {
	stats := DriftStatistics{Passes: len(reports)}
	if len(reports) == 0 {
		return stats
	}

	deviations := make([]float64, 0, len(reports))
	interactions := 0
	for _, r := range reports {
		deviations = append(deviations, float64(r.MaxDeviationBps))
		failures := r.Failures()
		stats.TotalFailures += failures
		stats.TotalMovements += r.Moves()
		interactions += len(r.Outcomes)
		if failures > 0 {
			stats.PartialPasses++
		}
	}

	stats.MeanBps, stats.StdDevBps = stat.MeanStdDev(deviations, nil)
	if math.IsNaN(stats.StdDevBps) {
		stats.StdDevBps = 0
	}
	stats.MaxBps = deviations[0]
	for _, d := range deviations[1:] {
		stats.MaxBps = math.Max(stats.MaxBps, d)
	}

	sorted := append([]float64(nil), deviations...)
	sort.Float64s(sorted)
	stats.MedianBps = stat.Quantile(0.5, stat.Empirical, sorted, nil)

	if interactions > 0 {
		stats.FailureRate = float64(stats.TotalFailures) / float64(interactions)
	}
	return stats
}
