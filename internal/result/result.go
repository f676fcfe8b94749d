// Package result aggregates a completed test run's checker verdict,
// network statistics, and latency distribution into the single validity
// report a test produces.
package result

import (
	"sort"
	"time"

	"github.com/distlab/maelstrom/internal/history"
	"github.com/distlab/maelstrom/internal/workload"
)

// LatencyStats summarizes end-to-end request latency across a run, in
// milliseconds.
type LatencyStats struct {
	Count  int     `json:"count"`
	Median float64 `json:"median_ms"`
	P99    float64 `json:"p99_ms"`
	Max    float64 `json:"max_ms"`
}

// NetworkStats summarizes the journal's send/recv counters.
type NetworkStats struct {
	Sends int `json:"sends"`
	Recvs int `json:"recvs"`
}

// Result is the final validity report for one test run.
type Result struct {
	RunID     string                  `json:"run_id"`
	Workload  string                  `json:"workload"`
	Valid     bool                    `json:"valid"`
	Anomalies []string                `json:"anomalies,omitempty"`
	History   []history.Record        `json:"history"`
	Latency   LatencyStats            `json:"latency"`
	Network   NetworkStats            `json:"network"`
	Check     workload.CheckResult    `json:"check"`
}

// Build assembles a Result from a closed history, a checker verdict, and
// the network's send/recv counters.
func Build(runID, workloadName string, records []history.Record, check workload.CheckResult, sends, recvs int) Result {
	return Result{
		RunID:     runID,
		Workload:  workloadName,
		Valid:     check.Valid,
		Anomalies: check.Anomalies,
		History:   records,
		Latency:   latencyStats(records),
		Network:   NetworkStats{Sends: sends, Recvs: recvs},
		Check:     check,
	}
}

// latencyStats computes end-to-end latency per client process by pairing
// each invoke with its immediately following completion, mirroring the
// same per-process pairing the checker package uses.
func latencyStats(records []history.Record) LatencyStats {
	pending := map[int32]history.Record{}
	var samplesMS []float64
	for _, r := range records {
		if r.Process == history.NemesisProcess {
			continue
		}
		if r.Type == history.Invoke {
			pending[r.Process] = r
			continue
		}
		inv, ok := pending[r.Process]
		delete(pending, r.Process)
		if !ok {
			continue
		}
		ms := float64(r.TimeNanos-inv.TimeNanos) / float64(time.Millisecond)
		samplesMS = append(samplesMS, ms)
	}
	if len(samplesMS) == 0 {
		return LatencyStats{}
	}
	sort.Float64s(samplesMS)
	return LatencyStats{
		Count:  len(samplesMS),
		Median: percentile(samplesMS, 0.5),
		P99:    percentile(samplesMS, 0.99),
		Max:    samplesMS[len(samplesMS)-1],
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
